package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	jsoniter "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"

	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/grouping"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
	"github.com/JetBrains/intellij-plugins-sub025/internal/scope"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ObjectResponse is a live object as exposed by the memory routes.
type ObjectResponse struct {
	ID        uint64        `json:"id"`
	ClassName string        `json:"class_name"`
	Size      int64         `json:"size"`
	Timestamp int64         `json:"timestamp"`
	Frames    []frame.Frame `json:"frames"`
}

func newObjectResponse(c sample.CreateObject) ObjectResponse {
	frames := c.Frames
	if frames == nil {
		frames = []frame.Frame{}
	}
	return ObjectResponse{
		ID:        c.ID,
		ClassName: c.ClassName,
		Size:      c.Size,
		Timestamp: c.Timestamp,
		Frames:    frames,
	}
}

func newObjectResponses(objects []sample.CreateObject) []ObjectResponse {
	out := make([]ObjectResponse, 0, len(objects))
	for _, o := range objects {
		out = append(out, newObjectResponse(o))
	}
	return out
}

// hubFromContext falls back on the global hub for requests that didn't go
// through the sentry middleware.
func hubFromContext(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	hub := hubFromContext(ctx)

	s := sentry.StartSpan(ctx, "json.marshal")
	b, err := json.Marshal(v)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func (e *environment) scopeFromRequest(r *http.Request) (string, scope.Filter, error) {
	name := r.URL.Query().Get("scope")
	if name == "" {
		name = "all"
	}
	filter, err := scope.FromName(name, e.config.ProjectRoots)
	return name, filter, err
}

func directionFromRequest(r *http.Request, fallback grouping.Direction) (grouping.Direction, bool) {
	switch r.URL.Query().Get("direction") {
	case "":
		return fallback, true
	case grouping.TopDown.String():
		return grouping.TopDown, true
	case grouping.BottomUp.String():
		return grouping.BottomUp, true
	}
	return 0, false
}

func objectIDFromRequest(r *http.Request) (uint64, error) {
	ps := httprouter.ParamsFromContext(r.Context())
	return strconv.ParseUint(ps.ByName("id"), 10, 64)
}

func toFrames(values []string) []frame.Frame {
	frames := make([]frame.Frame, 0, len(values))
	for _, v := range values {
		frames = append(frames, frame.Frame(v))
	}
	return frames
}
