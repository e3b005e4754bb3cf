package main

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
	"github.com/JetBrains/intellij-plugins-sub025/internal/stream"
)

type (
	PostEventsResponse struct {
		Accepted int      `json:"accepted"`
		Rejected int      `json:"rejected"`
		Errors   []string `json:"errors,omitempty"`
	}
)

// postEvents ingests a batch of wire events. Malformed events are counted
// and reported, the rest of the batch still goes through. With Kafka
// configured, events are published and ingested by the consumer instead.
func (e *environment) postEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := hubFromContext(ctx)

	s := sentry.StartSpan(ctx, "json.unmarshal")
	var raw []sample.RawEvent
	err := json.NewDecoder(r.Body).Decode(&raw)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var response PostEventsResponse
	reject := func(i int, err error) {
		response.Rejected++
		response.Errors = append(response.Errors, fmt.Sprintf("event %d: %v", i, err))
		e.logger.Warn().Err(err).Int("index", i).Msg("event rejected")
	}

	s = sentry.StartSpan(ctx, "processing")
	events := make([]sample.Event, 0, len(raw))
	for i, re := range raw {
		event, err := re.ToEvent()
		if err != nil {
			reject(i, err)
			continue
		}
		if e.eventsWriter != nil {
			events = append(events, event)
			continue
		}
		if err := e.store.Ingest(event); err != nil {
			reject(i, err)
			continue
		}
		response.Accepted++
	}
	s.Finish()

	status := http.StatusOK
	if e.eventsWriter != nil && len(events) > 0 {
		messages, err := stream.EncodeMessages(events)
		if err != nil {
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s = sentry.StartSpan(ctx, "processing.publish")
		err = e.eventsWriter.WriteMessages(ctx, messages...)
		s.Finish()
		if err != nil {
			hub.CaptureException(err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		response.Accepted = len(events)
		status = http.StatusAccepted
	}

	writeJSON(ctx, w, status, response)
}
