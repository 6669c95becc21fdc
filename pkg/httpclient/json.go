package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// NewJSONRequest builds a request whose body is the JSON encoding of in.
// A nil in produces a request without a body. The body stays rewindable so
// the retrying Client can resend it.
func NewJSONRequest(ctx context.Context, method, url string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// DoJSON sends req through doer and decodes a 2xx body into out (which may be
// nil). Non-2xx answers are turned into errors by ParseResponseError. The raw
// response body is returned for audit logging.
func DoJSON(ctx context.Context, doer Doer, req *http.Request, out any, serviceName string) (json.RawMessage, error) {
	resp, err := doer.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", serviceName, err)
	}

	if !IsSuccess(resp.StatusCode) {
		return nil, ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", serviceName, err)
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, fmt.Errorf("decode %s response: %w", serviceName, err)
		}
	}
	return raw, nil
}
