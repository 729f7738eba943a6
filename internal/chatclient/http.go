package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"chat-gateway/internal/models"
	"chat-gateway/internal/reconciler"
)

// APIError is a non-2xx response from the HTTP API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) sendHTTP(ctx context.Context, entry reconciler.Entry) (models.MessageView, error) {
	var msg models.MessageView
	path := "/conversations/" + url.PathEscape(entry.ConversationID) + "/messages"
	err := c.do(ctx, http.MethodPost, path, map[string]string{"content": entry.Content, "type": entry.Type}, &msg)
	return msg, err
}

// LoadHistory fetches a page of messages and resets the conversation's timeline with it.
func (c *Client) LoadHistory(ctx context.Context, conversationID string, limit, skip int) ([]models.MessageView, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var messages []models.MessageView
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	c.Timeline(conversationID).Reset(messages)
	return messages, nil
}

// Conversations lists the caller's conversations, newest first.
func (c *Client) Conversations(ctx context.Context) ([]models.ConversationView, error) {
	var out []models.ConversationView
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead marks the conversation read over HTTP and returns how many messages changed.
func (c *Client) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	var out struct {
		Success       bool  `json:"success"`
		ModifiedCount int64 `json:"modifiedCount"`
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/read"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return 0, err
	}
	return out.ModifiedCount, nil
}
