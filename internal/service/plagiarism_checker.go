package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// PlagiarismChecker scores a coding answer against known sources.
type PlagiarismChecker interface {
	Check(ctx context.Context, job PlagiarismJob) (float64, error)
}

// HTTPPlagiarismChecker calls an external similarity service over HTTP.
type HTTPPlagiarismChecker struct {
	client *resty.Client
}

// NewHTTPPlagiarismChecker creates a checker for the service at baseURL.
func NewHTTPPlagiarismChecker(baseURL, token string, timeout time.Duration) *HTTPPlagiarismChecker {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPPlagiarismChecker{client: client}
}

// Check posts the answer and reads similarity_score (0-100) from the reply.
// Replies wrapped in a "data" envelope are accepted too.
func (c *HTTPPlagiarismChecker) Check(ctx context.Context, job PlagiarismJob) (float64, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"reference_id": fmt.Sprintf("%s/%s", job.SessionID, job.QuestionID),
			"group":        job.JobID,
			"content":      job.Answer,
		}).
		Post("/v1/similarity")
	if err != nil {
		return 0, fmt.Errorf("call plagiarism checker: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("plagiarism checker returned %s", resp.Status())
	}

	body := resp.String()
	score := gjson.Get(body, "similarity_score")
	if !score.Exists() {
		score = gjson.Get(body, "data.similarity_score")
	}
	if !score.Exists() || score.Type != gjson.Number {
		return 0, fmt.Errorf("plagiarism checker reply has no similarity_score")
	}

	v := score.Float()
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("similarity score %v out of range 0-100", v)
	}
	return v, nil
}
