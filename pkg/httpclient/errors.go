package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/Swed0ua/Integration-SK-Surve/pkg/errors"
)

// upstreamErrorBody covers the error shapes returned by the POS and
// back-office APIs: a nested {"error":{"code","message"}} object, a flat
// {"error","errorDescription"} pair, or a bare {"message"}.
type upstreamErrorBody struct {
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"errorDescription"`
	Message          string          `json:"message"`
}

type nestedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. The upstream status is preserved on the error and the
// raw body is kept in the message for diagnosis.
//
// The caller should only invoke this when resp.StatusCode indicates an error
// (i.e., not 2xx). The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message := extractError(bodyBytes)
	return mapUpstreamError(resp.StatusCode, code, message, strings.TrimSpace(string(bodyBytes)), serviceName)
}

// extractError pulls a code and message out of a structured error body.
// Both are empty when the body is not one of the known shapes.
func extractError(body []byte) (code, message string) {
	var parsed upstreamErrorBody
	if json.Unmarshal(body, &parsed) != nil {
		return "", ""
	}

	if len(parsed.Error) > 0 && string(parsed.Error) != "null" {
		var nested nestedError
		if json.Unmarshal(parsed.Error, &nested) == nil && (nested.Code != "" || nested.Message != "") {
			return nested.Code, nested.Message
		}
		var flat string
		if json.Unmarshal(parsed.Error, &flat) == nil {
			code = flat
		}
	}

	switch {
	case parsed.ErrorDescription != "":
		message = parsed.ErrorDescription
	case parsed.Message != "":
		message = parsed.Message
	default:
		message = code
	}
	return code, message
}

// mapUpstreamError translates an upstream HTTP status into an AppError.
func mapUpstreamError(status int, code, message, rawBody, serviceName string) error {
	if message == "" {
		message = rawBody
	}
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		appErr := apperrors.Unauthorized(qualifiedMsg)
		appErr.Status = status
		return appErr
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualifiedMsg)
	default:
		appErr := apperrors.Upstream(serviceName, status, message)
		if code != "" {
			appErr.Code = code
		}
		return appErr
	}
}

// IsSuccess returns true for 2xx status codes.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
