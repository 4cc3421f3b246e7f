package engram

import (
	"context"
	"net/http"
)

// Prune archives low-importance events of one scope past the retention
// window. Returns the number archived. Objective-scope events and
// summaries are never pruned.
func (c *Client) Prune(ctx context.Context, req PruneRequest) (int, error) {
	var resp struct {
		Archived int `json:"archived"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/v1/prune", nil, req, &resp); err != nil {
		return 0, err
	}
	return resp.Archived, nil
}
