package engram

import (
	"context"
	"net/http"
	"net/url"
)

// WriteEvent validates, policy-scans and persists one memory event.
// Secret-shaped content is rejected with ErrPolicyViolation and leaves
// no trace; the detector name is available on the *APIError.
func (c *Client) WriteEvent(ctx context.Context, req WriteRequest) (Event, error) {
	var event Event
	if _, err := c.do(ctx, http.MethodPost, "/v1/events", nil, req, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// DeleteEvent permanently removes one event. This is the explicit hard
// delete; routine lifecycle management goes through Prune.
func (c *Client) DeleteEvent(ctx context.Context, project, id string) error {
	q := url.Values{}
	if project != "" {
		q.Set("project", project)
	}
	_, err := c.do(ctx, http.MethodDelete, "/v1/events/"+url.PathEscape(id), q, nil, nil)
	return err
}
