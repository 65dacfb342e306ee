// Package client talks to the question, scoring and assistant collaborators
// over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"carbon-quiz/internal/chat"
	"carbon-quiz/internal/domain"
	"carbon-quiz/internal/submission"
)

const (
	questionsPath = "/api/questions"
	calculatePath = "/api/calculate"

	// maxBody caps how much of a response is read.
	maxBody = 1 << 20
)

// Client is the question source and scorer backed by a running server.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Questions fetches the question set. Any failure is a *domain.FetchError.
func (c *Client) Questions(ctx context.Context) ([]domain.Question, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+questionsPath, nil)
	if err != nil {
		return nil, &domain.FetchError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, &domain.FetchError{Status: resp.StatusCode, Err: fmt.Errorf("server returned %s", resp.Status)}
	}

	var questions []domain.Question
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&questions); err != nil {
		return nil, &domain.FetchError{Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)}
	}
	return questions, nil
}

// Score implements submission.Scorer. Failures are *domain.SubmissionError
// carrying the raw response; no default results are ever substituted.
func (c *Client) Score(ctx context.Context, body submission.Request) (domain.Results, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.Results{}, &domain.SubmissionError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+calculatePath, bytes.NewReader(payload))
	if err != nil {
		return domain.Results{}, &domain.SubmissionError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Results{}, &domain.SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return domain.Results{}, &domain.SubmissionError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode/100 != 2 {
		return domain.Results{}, &domain.SubmissionError{
			Status: resp.StatusCode,
			Body:   string(raw),
			Err:    fmt.Errorf("server returned %s", resp.Status),
		}
	}
	results, err := domain.DecodeResults(raw)
	if err != nil {
		return domain.Results{}, &domain.SubmissionError{Status: resp.StatusCode, Body: string(raw), Err: err}
	}
	return results, nil
}

// Assistant posts chat turns to the assistant collaborator.
type Assistant struct {
	url  string
	http *http.Client
}

func NewAssistant(url string, timeout time.Duration) *Assistant {
	return &Assistant{url: url, http: &http.Client{Timeout: timeout}}
}

// Reply implements chat.Assistant. Failures, including an empty endpoint,
// are *domain.AssistantError.
func (a *Assistant) Reply(ctx context.Context, body chat.Request) (chat.Reply, error) {
	if a.url == "" {
		return chat.Reply{}, &domain.AssistantError{Err: domain.ErrAssistantUnavailable}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return chat.Reply{}, &domain.AssistantError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return chat.Reply{}, &domain.AssistantError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return chat.Reply{}, &domain.AssistantError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return chat.Reply{}, &domain.AssistantError{Status: resp.StatusCode, Err: fmt.Errorf("assistant returned %s", resp.Status)}
	}

	var reply chat.Reply
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&reply); err != nil {
		return chat.Reply{}, &domain.AssistantError{Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)}
	}
	return reply, nil
}
