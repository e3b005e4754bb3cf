package sample

import (
	"fmt"

	"github.com/JetBrains/intellij-plugins-sub025/internal/errorutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
)

// Kind tags the variant held by an Event.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPerformance
	KindCreate
	KindDelete
	KindReference
)

type (
	// Performance is one observed call stack slice. Frames are ordered
	// outermost first, the last frame is the one currently executing.
	Performance struct {
		Frames    []frame.Frame
		Timestamp int64
		Duration  uint64
	}

	// CreateObject records the birth of an object. Frames is the allocation site.
	CreateObject struct {
		Frames    []frame.Frame
		Timestamp int64
		ID        uint64
		ClassName string
		Size      int64
	}

	// DeleteObject records the death of an object. Size may have drifted from
	// the size reported at creation.
	DeleteObject struct {
		Frames    []frame.Frame
		Timestamp int64
		ID        uint64
		Size      int64
	}

	// Reference is an edge from a referring object to a referenced one.
	Reference struct {
		Timestamp  int64
		ReferrerID uint64
		ReferentID uint64
	}

	// Event holds exactly one of the variants, selected by Kind.
	Event struct {
		Kind        Kind
		Performance *Performance
		Create      *CreateObject
		Delete      *DeleteObject
		Reference   *Reference
	}
)

func (k Kind) String() string {
	switch k {
	case KindPerformance:
		return "performance"
	case KindCreate:
		return "create"
	case KindDelete:
		return "delete"
	case KindReference:
		return "reference"
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) Kind {
	switch s {
	case "performance":
		return KindPerformance
	case "create":
		return KindCreate
	case "delete":
		return KindDelete
	case "reference":
		return KindReference
	}
	return KindUnknown
}

func NewPerformance(p Performance) Event {
	return Event{Kind: KindPerformance, Performance: &p}
}

func NewCreate(c CreateObject) Event {
	return Event{Kind: KindCreate, Create: &c}
}

func NewDelete(d DeleteObject) Event {
	return Event{Kind: KindDelete, Delete: &d}
}

func NewReference(referrerID, referentID uint64) Event {
	return Event{Kind: KindReference, Reference: &Reference{ReferrerID: referrerID, ReferentID: referentID}}
}

func (p Performance) Stack() []frame.Frame  { return p.Frames }
func (c CreateObject) Stack() []frame.Frame { return c.Frames }
func (d DeleteObject) Stack() []frame.Frame { return d.Frames }

// Innermost returns the frame that was executing, if any.
func (p Performance) Innermost() (frame.Frame, bool) {
	if len(p.Frames) == 0 {
		return "", false
	}
	return p.Frames[len(p.Frames)-1], true
}

// Timestamp returns the timestamp of whichever variant the event holds.
func (e Event) Timestamp() int64 {
	switch e.Kind {
	case KindPerformance:
		return e.Performance.Timestamp
	case KindCreate:
		return e.Create.Timestamp
	case KindDelete:
		return e.Delete.Timestamp
	case KindReference:
		return e.Reference.Timestamp
	}
	return 0
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("sample: %w: %s", errorutil.ErrMalformedEvent, fmt.Sprintf(format, args...))
}

// Validate rejects events that can't be applied to a profile.
func (e Event) Validate() error {
	switch e.Kind {
	case KindPerformance:
		if e.Performance == nil {
			return malformed("performance event without payload")
		}
		return validateFrames(e.Performance.Frames)
	case KindCreate:
		c := e.Create
		if c == nil {
			return malformed("create event without payload")
		}
		if c.Size < 0 {
			return malformed("object %d has negative size %d", c.ID, c.Size)
		}
		if c.ClassName == "" {
			return malformed("object %d has no class name", c.ID)
		}
		return validateFrames(c.Frames)
	case KindDelete:
		d := e.Delete
		if d == nil {
			return malformed("delete event without payload")
		}
		if d.Size < 0 {
			return malformed("object %d has negative size %d", d.ID, d.Size)
		}
		return validateFrames(d.Frames)
	case KindReference:
		if e.Reference == nil {
			return malformed("reference event without payload")
		}
		return nil
	}
	return malformed("unknown event kind %d", e.Kind)
}

func validateFrames(frames []frame.Frame) error {
	for i, f := range frames {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("sample: frame %d: %w", i, err)
		}
	}
	return nil
}

// TotalDuration sums the durations of samples.
func TotalDuration(samples []Performance) uint64 {
	var total uint64
	for _, s := range samples {
		total += s.Duration
	}
	return total
}
