package errorutil

import "errors"

// ErrDataIntegrity is a base error type to use for failures that are due to
// unrecoverable data integrity issues.
var ErrDataIntegrity = errors.New("data integrity error")

// ErrMalformedEvent is returned when a single event can't be applied. The
// stream it came from keeps going.
var ErrMalformedEvent = errors.New("malformed event")

// ErrStreamFailed marks a transport failure, as opposed to the stream ending normally.
var ErrStreamFailed = errors.New("event stream failed")

// ErrSuperseded is returned by a rebuild that was replaced by a newer one
// before it could publish its result.
var ErrSuperseded = errors.New("rebuild superseded")
