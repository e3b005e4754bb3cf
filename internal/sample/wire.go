package sample

import (
	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
)

// RawEvent is the flat record used on the wire, in HTTP payloads and Kafka
// messages alike.
type RawEvent struct {
	Type       string        `json:"type"`
	Timestamp  int64         `json:"timestamp"`
	Frames     []frame.Frame `json:"frames,omitempty"`
	Duration   uint64        `json:"duration,omitempty"`
	ID         uint64        `json:"id,omitempty"`
	ClassName  string        `json:"class_name,omitempty"`
	Size       int64         `json:"size,omitempty"`
	ReferrerID uint64        `json:"referrer_id,omitempty"`
	ReferentID uint64        `json:"referent_id,omitempty"`
}

// ToEvent converts and validates a wire record.
func (r RawEvent) ToEvent() (Event, error) {
	var e Event
	switch ParseKind(r.Type) {
	case KindPerformance:
		e = NewPerformance(Performance{Frames: r.Frames, Timestamp: r.Timestamp, Duration: r.Duration})
	case KindCreate:
		e = NewCreate(CreateObject{
			Frames:    r.Frames,
			Timestamp: r.Timestamp,
			ID:        r.ID,
			ClassName: r.ClassName,
			Size:      r.Size,
		})
	case KindDelete:
		e = NewDelete(DeleteObject{Frames: r.Frames, Timestamp: r.Timestamp, ID: r.ID, Size: r.Size})
	case KindReference:
		e = Event{Kind: KindReference, Reference: &Reference{
			Timestamp:  r.Timestamp,
			ReferrerID: r.ReferrerID,
			ReferentID: r.ReferentID,
		}}
	default:
		return Event{}, malformed("unknown event type %q", r.Type)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// FromEvent builds the wire record for e.
func FromEvent(e Event) RawEvent {
	r := RawEvent{Type: e.Kind.String(), Timestamp: e.Timestamp()}
	switch e.Kind {
	case KindPerformance:
		r.Frames = e.Performance.Frames
		r.Duration = e.Performance.Duration
	case KindCreate:
		r.Frames = e.Create.Frames
		r.ID = e.Create.ID
		r.ClassName = e.Create.ClassName
		r.Size = e.Create.Size
	case KindDelete:
		r.Frames = e.Delete.Frames
		r.ID = e.Delete.ID
		r.Size = e.Delete.Size
	case KindReference:
		r.ReferrerID = e.Reference.ReferrerID
		r.ReferentID = e.Reference.ReferentID
	}
	return r
}
