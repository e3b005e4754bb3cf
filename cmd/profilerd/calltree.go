package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/JetBrains/intellij-plugins-sub025/internal/calltree"
	"github.com/JetBrains/intellij-plugins-sub025/internal/errorutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/grouping"
	"github.com/JetBrains/intellij-plugins-sub025/internal/httputil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/metrics"
	"github.com/JetBrains/intellij-plugins-sub025/internal/nodetree"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
	"github.com/JetBrains/intellij-plugins-sub025/internal/scope"
)

const defaultFunctionsLimit = 100

type (
	CallTreeResponse struct {
		SessionID   string               `json:"session_id"`
		Scope       string               `json:"scope"`
		Direction   string               `json:"direction"`
		TotalNS     uint64               `json:"total_ns"`
		SampleCount int                  `json:"sample_count"`
		Frames      []calltree.FrameTime `json:"frames"`
		Tree        []*nodetree.Node     `json:"tree"`
	}

	CalleesResponse struct {
		Prefix    []frame.Frame    `json:"prefix"`
		Inclusive calltree.TimeMap `json:"inclusive"`
		Self      calltree.TimeMap `json:"self"`
		Tree      []*nodetree.Node `json:"tree"`
	}

	GetFunctionsResponse struct {
		Functions []metrics.FunctionMetrics `json:"functions"`
	}

	CallersResponse struct {
		Targets []frame.Frame    `json:"targets"`
		TotalNS uint64           `json:"total_ns"`
		Tree    []*nodetree.Node `json:"tree"`
	}
)

// rebuildCallTree maps rebuild failures to status codes. It returns false
// once a response has been written.
func (e *environment) rebuildCallTree(ctx context.Context, w http.ResponseWriter, filter scope.Filter) (*calltree.CallTree, bool) {
	hub := hubFromContext(ctx)

	s := sentry.StartSpan(ctx, "calltree.rebuild")
	ct, err := e.store.RebuildCallTree(ctx, filter)
	s.Finish()
	switch {
	case err == nil:
		return ct, true
	case errors.Is(err, errorutil.ErrSuperseded):
		w.WriteHeader(http.StatusConflict)
	case ctx.Err() != nil:
		// client is gone
	default:
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
	}
	return nil, false
}

// requestedCallTree rebuilds the call tree from the samples held now, in the
// scope of the request.
func (e *environment) requestedCallTree(w http.ResponseWriter, r *http.Request) (*calltree.CallTree, bool) {
	ctx := r.Context()
	_, filter, err := e.scopeFromRequest(r)
	if err != nil {
		hubFromContext(ctx).CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	return e.rebuildCallTree(ctx, w, filter)
}

// materialize builds the nodes found below path in tree, the roots when path
// is empty.
func (e *environment) materialize(ctx context.Context, tree *calltree.Tree, path []frame.Frame, opts nodetree.Options, collapse bool) []*nodetree.Node {
	s := sentry.StartSpan(ctx, "calltree.materialize")
	nodes := nodetree.FromChildren(tree, path, opts)
	if collapse {
		nodes = nodetree.CollapseAll(nodes)
	}
	s.Finish()

	s = sentry.StartSpan(ctx, "calltree.resolve")
	if err := nodetree.ResolveAll(ctx, e.resolver, nodes); err != nil {
		// locations are optional, the tree is still served without them
		hubFromContext(ctx).CaptureException(err)
		e.logger.Warn().Err(err).Msg("can't resolve frame locations")
	}
	s.Finish()
	return nodes
}

func (e *environment) getCallTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := hubFromContext(ctx)

	name, filter, err := e.scopeFromRequest(r)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	hub.Scope().SetTag("scope", name)

	direction, ok := directionFromRequest(r, grouping.TopDown)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	depth, err := httputil.GetIntQueryParameter(r, "depth", 0)
	if err != nil || depth < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ct, ok := e.rebuildCallTree(ctx, w, filter)
	if !ok {
		return
	}

	tree := ct.TopDown()
	if direction == grouping.BottomUp {
		tree = ct.BottomUp()
	}

	writeJSON(ctx, w, http.StatusOK, CallTreeResponse{
		SessionID:   e.store.SessionID(),
		Scope:       name,
		Direction:   direction.String(),
		TotalNS:     ct.Total(),
		SampleCount: ct.SampleCount(),
		Frames:      ct.Frames(),
		Tree: e.materialize(ctx, tree, nil, nodetree.Options{
			MaxDepth: depth,
			Total:    ct.Total(),
		}, r.URL.Query().Get("collapse") == "true"),
	})
}

func (e *environment) getCallees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values, _, ok := httputil.GetRequiredQueryValues(w, r, "frame")
	if !ok {
		return
	}
	prefix := toFrames(values)

	depth, err := httputil.GetIntQueryParameter(r, "depth", 0)
	if err != nil || depth < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ct, ok := e.requestedCallTree(w, r)
	if !ok {
		return
	}

	// the tree and the time maps both start from the root, below prefix
	inclusive, self := ct.CalleesTimeMaps(prefix)
	writeJSON(ctx, w, http.StatusOK, CalleesResponse{
		Prefix:    prefix,
		Inclusive: inclusive,
		Self:      self,
		Tree: e.materialize(ctx, ct.TopDown(), prefix, nodetree.Options{
			MaxDepth: depth,
			Total:    ct.Total(),
		}, false),
	})
}

func (e *environment) getCallers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values, _, ok := httputil.GetRequiredQueryValues(w, r, "frame")
	if !ok {
		return
	}
	targets := toFrames(values)

	depth, err := httputil.GetIntQueryParameter(r, "depth", 0)
	if err != nil || depth < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ct, ok := e.requestedCallTree(w, r)
	if !ok {
		return
	}

	writeJSON(ctx, w, http.StatusOK, CallersResponse{
		Targets: targets,
		TotalNS: ct.Total(),
		Tree: e.materialize(ctx, ct.Callers(targets), nil, nodetree.Options{
			MaxDepth: depth,
			Total:    ct.Total(),
			Counts: func(members []sample.Performance) (int, int) {
				return ct.Counts(members, targets)
			},
		}, false),
	})
}

func (e *environment) getFunctions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := hubFromContext(ctx)

	name, filter, err := e.scopeFromRequest(r)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	hub.Scope().SetTag("scope", name)

	limit, err := httputil.GetIntQueryParameter(r, "limit", defaultFunctionsLimit)
	if err != nil || limit < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if limit == 0 {
		limit = defaultFunctionsLimit
	}

	s := sentry.StartSpan(ctx, "functions.aggregate")
	functions := e.store.FunctionMetrics(filter, uint(limit))
	s.Finish()

	writeJSON(ctx, w, http.StatusOK, GetFunctionsResponse{Functions: functions})
}
