package main

import (
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/julienschmidt/httprouter"

	"github.com/JetBrains/intellij-plugins-sub025/internal/allocation"
	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/grouping"
	"github.com/JetBrains/intellij-plugins-sub025/internal/httputil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
)

type (
	ClassSummary struct {
		*allocation.ClassGroup
		PageCount int `json:"page_count"`
	}

	ClassesResponse struct {
		Classes    []ClassSummary `json:"classes"`
		TotalBytes int64          `json:"total_bytes"`
		LiveCount  int            `json:"live_count"`
		PageSize   int            `json:"page_size"`
	}

	ClassPageResponse struct {
		ClassName string           `json:"class_name"`
		Page      int              `json:"page"`
		PageCount int              `json:"page_count"`
		Objects   []ObjectResponse `json:"objects"`
	}

	BackReferencesResponse struct {
		Object         *ObjectResponse  `json:"object,omitempty"`
		BackReferences []ObjectResponse `json:"back_references"`
	}

	RetainerResponse struct {
		ObjectResponse
		Referent uint64 `json:"referent"`
		Depth    int    `json:"depth"`
	}

	RetainersResponse struct {
		ID        uint64             `json:"id"`
		Retainers []RetainerResponse `json:"retainers"`
	}

	// AllocationSite is a merged allocation path with the live bytes
	// allocated under it.
	AllocationSite struct {
		Frame    frame.Frame       `json:"frame"`
		Name     string            `json:"name"`
		Bytes    int64             `json:"bytes"`
		Count    int               `json:"count"`
		Children []*AllocationSite `json:"children,omitempty"`
	}

	AllocationSitesResponse struct {
		Direction  string            `json:"direction"`
		Scope      string            `json:"scope"`
		TotalBytes int64             `json:"total_bytes"`
		Sites      []*AllocationSite `json:"sites"`
	}
)

func (e *environment) pageSize(r *http.Request) (int, bool) {
	pageSize, err := httputil.GetIntQueryParameter(r, "page_size", e.config.MemoryPageSize)
	if err != nil || pageSize < 0 {
		return 0, false
	}
	return pageSize, true
}

func (e *environment) getClasses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pageSize, ok := e.pageSize(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s := sentry.StartSpan(ctx, "memory.snapshot")
	snapshot := e.store.RebuildMemorySnapshot(pageSize)
	s.Finish()

	classes := make([]ClassSummary, 0, len(snapshot.Classes))
	for _, c := range snapshot.Classes {
		classes = append(classes, ClassSummary{ClassGroup: c, PageCount: c.PageCount()})
	}

	writeJSON(ctx, w, http.StatusOK, ClassesResponse{
		Classes:    classes,
		TotalBytes: snapshot.TotalBytes,
		LiveCount:  snapshot.LiveCount,
		PageSize:   snapshot.PageSize,
	})
}

func (e *environment) getClassPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := hubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)

	className := ps.ByName("class")
	hub.Scope().SetTag("class_name", className)

	page, err := strconv.Atoi(ps.ByName("page"))
	if err != nil || page < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	pageSize, ok := e.pageSize(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	snapshot := e.store.RebuildMemorySnapshot(pageSize)
	class, ok := snapshot.Class(className)
	if !ok || page >= class.PageCount() {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	writeJSON(ctx, w, http.StatusOK, ClassPageResponse{
		ClassName: className,
		Page:      page,
		PageCount: class.PageCount(),
		Objects:   newObjectResponses(class.Page(page)),
	})
}

func (e *environment) getBackReferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := objectIDFromRequest(r)
	if err != nil {
		hubFromContext(ctx).CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var response BackReferencesResponse
	if o, ok := e.store.LiveObject(id); ok {
		object := newObjectResponse(o)
		response.Object = &object
	}
	response.BackReferences = newObjectResponses(e.store.BackReferencesOf(id))

	writeJSON(ctx, w, http.StatusOK, response)
}

func (e *environment) getRetainers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := objectIDFromRequest(r)
	if err != nil {
		hubFromContext(ctx).CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	limit, err := httputil.GetIntQueryParameter(r, "limit", 100)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s := sentry.StartSpan(ctx, "memory.retainers")
	retainers := e.store.Retainers(id, limit)
	s.Finish()

	response := RetainersResponse{
		ID:        id,
		Retainers: make([]RetainerResponse, 0, len(retainers)),
	}
	for _, rt := range retainers {
		response.Retainers = append(response.Retainers, RetainerResponse{
			ObjectResponse: newObjectResponse(rt.Object),
			Referent:       rt.Referent,
			Depth:          rt.Depth,
		})
	}

	writeJSON(ctx, w, http.StatusOK, response)
}

func (e *environment) getAllocationSites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := hubFromContext(ctx)

	name, filter, err := e.scopeFromRequest(r)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	direction, ok := directionFromRequest(r, grouping.BottomUp)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	depth, err := httputil.GetIntQueryParameter(r, "depth", 0)
	if err != nil || depth < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s := sentry.StartSpan(ctx, "memory.allocation_sites")
	tree := e.store.AllocationSites(direction, filter)
	sites := allocationSites(tree, tree.Roots(), 1, depth)
	s.Finish()

	var total int64
	for _, site := range sites {
		total += site.Bytes
	}

	writeJSON(ctx, w, http.StatusOK, AllocationSitesResponse{
		Direction:  direction.String(),
		Scope:      name,
		TotalBytes: total,
		Sites:      sites,
	})
}

func allocationSites(t *grouping.Tree[sample.CreateObject, frame.Frame], nodes []*grouping.Node[sample.CreateObject, frame.Frame], depth, maxDepth int) []*AllocationSite {
	sites := make([]*AllocationSite, 0, len(nodes))
	for _, n := range nodes {
		site := &AllocationSite{
			Frame: n.Key,
			Name:  n.Key.Name(),
			Bytes: n.Metric,
			Count: len(n.Members),
		}
		if maxDepth == 0 || depth < maxDepth {
			site.Children = allocationSites(t, t.Expand(n), depth+1, maxDepth)
		}
		sites = append(sites, site)
	}
	return sites
}

func (e *environment) deletePerformance(w http.ResponseWriter, r *http.Request) {
	e.store.ClearPerformance()
	w.WriteHeader(http.StatusNoContent)
}

func (e *environment) deleteMemory(w http.ResponseWriter, r *http.Request) {
	e.store.ClearMemory()
	w.WriteHeader(http.StatusNoContent)
}

func (e *environment) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, e.store.Stats())
}
