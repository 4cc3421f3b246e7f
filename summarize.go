package engram

import (
	"context"
	"net/http"
	"net/url"
)

// Summarize condenses a thread's unsummarized events into one summary
// event. Returns nil when the thread is below the summarization threshold;
// re-invocation with no new events never duplicates a summary.
func (c *Client) Summarize(ctx context.Context, project, threadID string) (*Event, error) {
	q := url.Values{}
	if project != "" {
		q.Set("project", project)
	}
	path := "/v1/threads/" + url.PathEscape(threadID) + "/summarize"

	var event Event
	status, err := c.do(ctx, http.MethodPost, path, q, nil, &event)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &event, nil
}

// SummarizeStatus reports how many events await summarization in a thread
// and when the summarizer last ran, for external schedulers.
func (c *Client) SummarizeStatus(ctx context.Context, project, threadID string) (SummarizeStatus, error) {
	q := url.Values{}
	if project != "" {
		q.Set("project", project)
	}
	path := "/v1/threads/" + url.PathEscape(threadID) + "/summarize/status"

	var status SummarizeStatus
	if _, err := c.do(ctx, http.MethodGet, path, q, nil, &status); err != nil {
		return SummarizeStatus{}, err
	}
	return status, nil
}
