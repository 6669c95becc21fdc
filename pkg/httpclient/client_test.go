package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mockURL = "https://upstream.test/api/v1/receipts"

func mockedClient(t *testing.T, retries int) *Client {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)

	return NewWithHTTPClient(hc, Config{
		MaxRetries:   retries,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		UserAgent:    "syncbridge/test",
	})
}

func newGet(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, mockURL, http.NoBody)
	require.NoError(t, err)
	return req
}

// sequence answers with the given statuses in order, repeating the last one.
func sequence(statuses ...int) httpmock.Responder {
	calls := 0
	return func(*http.Request) (*http.Response, error) {
		status := statuses[min(calls, len(statuses)-1)]
		calls++
		return httpmock.NewStringResponse(status, `{}`), nil
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "syncbridge", cfg.UserAgent)
	assert.NotNil(t, New(cfg).httpClient)
}

func TestDo_SetsUserAgent(t *testing.T) {
	c := mockedClient(t, 0)
	httpmock.RegisterResponder(http.MethodGet, mockURL, func(r *http.Request) (*http.Response, error) {
		return httpmock.NewStringResponse(http.StatusOK, r.Header.Get("User-Agent")), nil
	})

	resp, err := c.Do(context.Background(), newGet(t))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "syncbridge/test", string(body))

	req := newGet(t)
	req.Header.Set("User-Agent", "custom")
	resp, err = c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "custom", string(body))
}

func TestDo_RetryPolicy(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		retries   int
		wantCode  int
		wantCalls int
	}{
		{"5xx then success", []int{500, 502, 200}, 3, 200, 3},
		{"429 retried", []int{429, 200}, 3, 200, 2},
		{"retries exhausted", []int{503}, 2, 503, 3},
		{"501 not retried", []int{501}, 3, 501, 1},
		{"4xx not retried", []int{404}, 3, 404, 1},
		{"no retries configured", []int{500, 200}, 0, 500, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mockedClient(t, tt.retries)
			httpmock.RegisterResponder(http.MethodGet, mockURL, sequence(tt.statuses...))

			resp, err := c.Do(context.Background(), newGet(t))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Equal(t, tt.wantCalls, httpmock.GetTotalCallCount())
		})
	}
}

func TestDo_RetryAfterCappedByMaxWait(t *testing.T) {
	c := mockedClient(t, 1)
	calls := 0
	httpmock.RegisterResponder(http.MethodGet, mockURL, func(*http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			resp := httpmock.NewStringResponse(http.StatusTooManyRequests, `{}`)
			resp.Header.Set("Retry-After", "120")
			return resp, nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
	})

	start := time.Now()
	resp, err := c.Do(context.Background(), newGet(t))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	_, ok := retryAfter(resp)
	assert.False(t, ok)

	resp.Header.Set("Retry-After", "3")
	d, ok := retryAfter(resp)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	resp.Header.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	_, ok = retryAfter(resp)
	assert.False(t, ok)
}

func TestDo_RewindsBodyOnRetry(t *testing.T) {
	c := mockedClient(t, 2)
	var bodies []string
	httpmock.RegisterResponder(http.MethodPost, mockURL, func(r *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			return httpmock.NewStringResponse(http.StatusBadGateway, `{}`), nil
		}
		return httpmock.NewStringResponse(http.StatusCreated, `{}`), nil
	})

	req, err := http.NewRequest(http.MethodPost, mockURL, strings.NewReader(`{"phone_number":"+380"}`))
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{`{"phone_number":"+380"}`, `{"phone_number":"+380"}`}, bodies)
}

func TestDo_UnrewindableBodyNotRetried(t *testing.T) {
	c := mockedClient(t, 3)
	httpmock.RegisterResponder(http.MethodPost, mockURL, httpmock.NewStringResponder(http.StatusInternalServerError, `{}`))

	req, err := http.NewRequest(http.MethodPost, mockURL, io.NopCloser(strings.NewReader(`{}`)))
	require.NoError(t, err)
	req.GetBody = nil

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestDo_TransportErrors(t *testing.T) {
	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	t.Run("retried then reported", func(t *testing.T) {
		c := mockedClient(t, 2)
		httpmock.RegisterResponder(http.MethodGet, mockURL, httpmock.NewErrorResponder(dialErr))

		_, err := c.Do(context.Background(), newGet(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GET /api/v1/receipts failed after 3 attempts")
		assert.Equal(t, 3, httpmock.GetTotalCallCount())
	})

	t.Run("canceled context not retried", func(t *testing.T) {
		c := mockedClient(t, 3)
		ctx, cancel := context.WithCancel(context.Background())
		httpmock.RegisterResponder(http.MethodGet, mockURL, func(*http.Request) (*http.Response, error) {
			cancel()
			return nil, dialErr
		})

		_, err := c.Do(ctx, newGet(t))
		require.Error(t, err)
		assert.Equal(t, 1, httpmock.GetTotalCallCount())
	})
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(&net.OpError{Op: "read", Err: errors.New("reset")}))
	assert.False(t, isRetryableError(errors.New("plain")))
}

func TestAddJitter(t *testing.T) {
	assert.Equal(t, time.Duration(0), addJitter(0))

	base := 100 * time.Millisecond
	for i := 0; i < 200; i++ {
		d := addJitter(base)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestBackoff_CappedAtMax(t *testing.T) {
	c := NewWithHTTPClient(&http.Client{}, Config{RetryWaitMin: time.Second, RetryWaitMax: 4 * time.Second})
	assert.LessOrEqual(t, c.backoff(0), 1250*time.Millisecond)
	assert.GreaterOrEqual(t, c.backoff(10), 3*time.Second)
	assert.LessOrEqual(t, c.backoff(70), 5*time.Second)
}
