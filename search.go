package engram

import (
	"context"
	"net/http"
)

// Search runs one tiered hybrid search. A partial response (some tiers
// skipped) is not an error; check SearchResponse.Partial.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	var resp SearchResponse
	if _, err := c.do(ctx, http.MethodPost, "/v1/search", nil, req, &resp); err != nil {
		return SearchResponse{}, err
	}
	return resp, nil
}
