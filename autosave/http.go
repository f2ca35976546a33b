package autosave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSaver returns a SaveFunc that PUTs the payload to endpoint as JSON.
// A 409 response is reported as a ConflictError.
func HTTPSaver(client *http.Client, endpoint string) SaveFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, payload json.RawMessage) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build save request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("save request: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusConflict:
			return &ConflictError{RemoteUpdatedAt: lastModified(resp)}
		case resp.StatusCode >= http.StatusBadRequest:
			return &HTTPError{StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
		}
		return nil
	}
}

// HTTPLoader returns a LoadFunc that GETs endpoint. The body is the remote
// payload and Last-Modified its timestamp; 404 means nothing stored.
func HTTPLoader(client *http.Client, endpoint string) LoadFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) (Remote, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return Remote{}, fmt.Errorf("build load request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return Remote{}, fmt.Errorf("load request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return Remote{}, nil
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return Remote{}, &HTTPError{StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return Remote{}, fmt.Errorf("read load response: %w", err)
		}
		if !json.Valid(body) {
			return Remote{}, errors.New("load response is not json")
		}
		return Remote{Data: body, UpdatedAt: lastModified(resp)}, nil
	}
}

func lastModified(resp *http.Response) time.Time {
	raw := resp.Header.Get("Last-Modified")
	if raw == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
