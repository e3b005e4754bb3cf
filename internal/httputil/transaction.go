package httputil

import (
	"strconv"

	"github.com/getsentry/sentry-go"
)

const (
	// HTTPStatusCodeTag is the name of the HTTP status code tag.
	HTTPStatusCodeTag = "http.response.status_code"
	// HTTPMethodTag is the name of the HTTP method tag.
	HTTPMethodTag = "http.request.method"
)

// SetHTTPStatusCodeTag tags events with the status code of the response and
// the method of the request that produced them.
func SetHTTPStatusCodeTag(e *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint == nil {
		return e
	}
	if e.Tags == nil {
		e.Tags = make(map[string]string)
	}
	if hint.Response != nil {
		if _, exists := e.Tags[HTTPStatusCodeTag]; !exists {
			e.Tags[HTTPStatusCodeTag] = strconv.Itoa(hint.Response.StatusCode)
		}
	}
	if hint.Request != nil {
		if _, exists := e.Tags[HTTPMethodTag]; !exists {
			e.Tags[HTTPMethodTag] = hint.Request.Method
		}
	}
	return e
}
