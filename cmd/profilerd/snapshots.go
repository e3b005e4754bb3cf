package main

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/JetBrains/intellij-plugins-sub025/internal/errorutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/httputil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/snapshot"
	"github.com/JetBrains/intellij-plugins-sub025/internal/storageutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/store"
)

type (
	PostSnapshotResponse struct {
		SessionID  string `json:"session_id"`
		SnapshotID string `json:"snapshot_id"`
		Events     int    `json:"events"`
	}

	PostRestoreResponse struct {
		Stats store.Stats `json:"stats"`
	}
)

func (e *environment) postSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := hubFromContext(ctx)

	sessionID := e.store.SessionID()
	snapshotID := uuid.New().String()
	hub.Scope().SetTags(map[string]string{
		"session_id":  sessionID,
		"snapshot_id": snapshotID,
	})

	events := e.store.Events()

	s := sentry.StartSpan(ctx, "storage.write")
	err := snapshot.Write(ctx, e.snapshots, snapshot.StoragePath(sessionID, snapshotID), events)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, http.StatusCreated, PostSnapshotResponse{
		SessionID:  sessionID,
		SnapshotID: snapshotID,
		Events:     len(events),
	})
}

func (e *environment) postRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := hubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)

	sessionIDs, logger, ok := httputil.GetRequiredQueryValues(w, r, "session_id")
	if !ok {
		return
	}
	snapshotID := ps.ByName("snapshot_id")
	hub.Scope().SetTags(map[string]string{
		"session_id":  sessionIDs[0],
		"snapshot_id": snapshotID,
	})

	s := sentry.StartSpan(ctx, "storage.read")
	events, err := snapshot.Read(ctx, e.snapshots, snapshot.StoragePath(sessionIDs[0], snapshotID))
	s.Finish()
	switch {
	case err == nil:
	case errors.Is(err, storageutil.ErrObjectNotFound):
		w.WriteHeader(http.StatusNotFound)
		return
	case errors.Is(err, errorutil.ErrDataIntegrity), errors.Is(err, errorutil.ErrMalformedEvent):
		hub.CaptureException(err)
		logger.Warn().Err(err).Str("snapshot_id", snapshotID).Msg("corrupted snapshot")
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	default:
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s = sentry.StartSpan(ctx, "processing.restore")
	err = e.store.Restore(events)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	writeJSON(ctx, w, http.StatusOK, PostRestoreResponse{Stats: e.store.Stats()})
}
