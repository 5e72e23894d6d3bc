// Package credentials fetches the group access URL and the speech token a
// call needs before it starts.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/core"
)

const (
	NegotiatePath   = "/api/negotiate"
	SpeechTokenPath = "/api/speech-token"
)

var ErrEmptyCredential = errors.New("empty credential in response")

// CredentialError reports a failed credential request. Status is zero when
// no HTTP response was received.
type CredentialError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *CredentialError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("credential %s: status %d: %v", e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("credential %s: %v", e.Endpoint, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

type Client struct {
	baseURL string
	http    *http.Client
}

var _ core.CredentialProvider = (*Client)(nil)

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) GroupAccess(ctx context.Context) (core.GroupAccess, error) {
	var out core.GroupAccess
	if err := c.post(ctx, NegotiatePath, &out); err != nil {
		return core.GroupAccess{}, err
	}
	if out.URL == "" {
		return core.GroupAccess{}, &CredentialError{Endpoint: NegotiatePath, Err: ErrEmptyCredential}
	}
	return out, nil
}

func (c *Client) SpeechToken(ctx context.Context) (core.SpeechToken, error) {
	var out core.SpeechToken
	if err := c.post(ctx, SpeechTokenPath, &out); err != nil {
		return core.SpeechToken{}, err
	}
	if out.Token == "" || out.Region == "" {
		return core.SpeechToken{}, &CredentialError{Endpoint: SpeechTokenPath, Err: ErrEmptyCredential}
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return &CredentialError{Endpoint: path, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &CredentialError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return &CredentialError{Endpoint: path, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &CredentialError{Endpoint: path, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &CredentialError{Endpoint: path, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
