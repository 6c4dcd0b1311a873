package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Kind classifies why an API call failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindValidation
	KindRateLimited
	KindServer
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// APIError is returned by every Client method that fails.
type APIError struct {
	Op      string
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsKind reports whether any error in err's chain is an *APIError of kind k.
func IsKind(err error, k Kind) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == k
	}
	return false
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *APIError.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// errorBody matches the API's error envelope:
//
//	{"error": {"status": 401, "title": "Unauthorized", "message": "Invalid token"}}
//
// Some deployments answer with a plain string instead of the object.
type errorBody struct {
	Error json.RawMessage `json:"error"`
}

type errorDetail struct {
	Status  int    `json:"status"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func newStatusError(op string, status int, body []byte) *APIError {
	return &APIError{
		Op:      op,
		Kind:    kindForStatus(status),
		Status:  status,
		Message: errorMessage(body),
	}
}

func errorMessage(body []byte) string {
	var envelope errorBody
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var detail errorDetail
		if err := json.Unmarshal(envelope.Error, &detail); err == nil {
			if detail.Message != "" {
				return detail.Message
			}
			return detail.Title
		}
		var msg string
		if err := json.Unmarshal(envelope.Error, &msg); err == nil {
			return msg
		}
	}
	return truncate(strings.TrimSpace(string(body)), maxMessageLen)
}

const maxMessageLen = 200

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
