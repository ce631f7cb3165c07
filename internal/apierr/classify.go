package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
)

// FromError classifies a failure that produced no HTTP response.
func FromError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	out := classifyTransport(err)
	out.Cause = err
	return out
}

func classifyTransport(err error) *ClassifiedError {
	if errors.Is(err, context.DeadlineExceeded) {
		return New(KindTimeout, "")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return New(KindTimeout, "")
	}
	if errors.Is(err, context.Canceled) {
		return New(KindNetwork, "request canceled")
	}

	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
		urlErr *url.Error
	)
	switch {
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.As(err, &urlErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return New(KindNetwork, "")
	}
	return New(KindUnknown, "")
}

// FromResponse classifies a non-2xx HTTP response.
func FromResponse(status int, body []byte) *ClassifiedError {
	detail, fields := parseDetail(body)

	var out *ClassifiedError
	switch {
	case status == http.StatusUnauthorized:
		out = New(KindAuthentication, "")
	case status == http.StatusForbidden:
		out = New(KindAuthorization, "")
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		msg := detail
		if msg == "" {
			msg = MsgValidation
		}
		out = Validation(msg, fields)
	case status == http.StatusTooManyRequests:
		out = New(KindRateLimited, "")
	case status >= 500:
		out = New(KindServerError, "")
	case status == http.StatusConflict:
		out = New(KindConflict, detail)
	case status == http.StatusNotFound:
		out = New(KindNotFound, detail)
	default:
		msg := detail
		if msg == "" {
			msg = statusText(status)
		}
		out = New(KindUnknown, msg)
	}
	out.StatusCode = status
	return out
}

// errorBody is the {detail: string | [{loc, msg}]} envelope.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type fieldDetail struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

func parseDetail(body []byte) (string, map[string]string) {
	if len(body) == 0 {
		return "", nil
	}
	var env errorBody
	if err := json.Unmarshal(body, &env); err != nil || len(env.Detail) == 0 {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(env.Detail, &text); err == nil {
		return strings.TrimSpace(text), nil
	}

	var items []fieldDetail
	if err := json.Unmarshal(env.Detail, &items); err != nil {
		return "", nil
	}
	fields := make(map[string]string, len(items))
	var first string
	for _, item := range items {
		if item.Msg == "" {
			continue
		}
		if first == "" {
			first = item.Msg
		}
		name := fieldName(item.Loc)
		if name == "" {
			continue
		}
		if _, seen := fields[name]; !seen {
			fields[name] = item.Msg
		}
	}
	if len(fields) == 0 {
		fields = nil
	}
	return first, fields
}

// fieldName takes the innermost element of loc, e.g. ["body","email"] -> "email".
// Positional locations (array indexes) have no field name.
func fieldName(loc []any) string {
	if len(loc) == 0 {
		return ""
	}
	s, ok := loc[len(loc)-1].(string)
	if !ok || s == "body" {
		return ""
	}
	return s
}
