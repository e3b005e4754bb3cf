package allocation

import (
	"sort"

	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/grouping"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
	"github.com/JetBrains/intellij-plugins-sub025/internal/scope"
)

type idSet map[uint64]struct{}

// Graph tracks live objects, the bytes they hold and the references between
// them. It isn't safe for concurrent use, callers serialize access.
type Graph struct {
	live  map[uint64]sample.CreateObject
	known idSet

	// referrer -> referent -> timestamp of the first sighting
	referents map[uint64]map[uint64]int64
	// referent -> referrers, the reverse of referents
	referrers map[uint64]idSet

	totalBytes int64
}

func NewGraph() *Graph {
	return &Graph{
		live:      make(map[uint64]sample.CreateObject),
		known:     make(idSet),
		referents: make(map[uint64]map[uint64]int64),
		referrers: make(map[uint64]idSet),
	}
}

// OnCreate starts tracking an object. A create for an id that is still live
// replaces the previous object.
func (g *Graph) OnCreate(c sample.CreateObject) {
	if previous, ok := g.live[c.ID]; ok {
		g.totalBytes -= previous.Size
	}
	g.live[c.ID] = c
	g.known[c.ID] = struct{}{}
	g.totalBytes += c.Size
}

// OnDelete stops tracking an object and releases the size recorded when it
// was created, whatever size the delete reports. Unknown ids are ignored and
// false is returned.
func (g *Graph) OnDelete(d sample.DeleteObject) bool {
	c, ok := g.live[d.ID]
	if !ok {
		return false
	}
	delete(g.live, d.ID)
	g.totalBytes -= c.Size
	return true
}

// OnReference records that referrerID references referentID. Edges form a
// set, recording one twice is a no-op. Edges from objects never created are
// ignored and false is returned. Edges outlive both of their ends.
func (g *Graph) OnReference(r sample.Reference) bool {
	if _, ok := g.known[r.ReferrerID]; !ok {
		return false
	}
	referents, ok := g.referents[r.ReferrerID]
	if !ok {
		referents = make(map[uint64]int64)
		g.referents[r.ReferrerID] = referents
	}
	if _, exists := referents[r.ReferentID]; exists {
		return true
	}
	referents[r.ReferentID] = r.Timestamp
	referrers, ok := g.referrers[r.ReferentID]
	if !ok {
		referrers = make(idSet)
		g.referrers[r.ReferentID] = referrers
	}
	referrers[r.ReferrerID] = struct{}{}
	return true
}

// TotalAllocatedBytes returns the bytes held by live objects.
func (g *Graph) TotalAllocatedBytes() int64 {
	return g.totalBytes
}

func (g *Graph) LiveCount() int {
	return len(g.live)
}

// Live returns the create sample of a live object.
func (g *Graph) Live(id uint64) (sample.CreateObject, bool) {
	c, ok := g.live[id]
	return c, ok
}

// EdgeCount returns the number of recorded references, dangling ones included.
func (g *Graph) EdgeCount() int {
	var n int
	for _, referents := range g.referents {
		n += len(referents)
	}
	return n
}

// BackReferencesOf returns the live objects referencing id, ordered by id.
func (g *Graph) BackReferencesOf(id uint64) []sample.CreateObject {
	ids := g.liveReferrers(id)
	objects := make([]sample.CreateObject, 0, len(ids))
	for _, r := range ids {
		objects = append(objects, g.live[r])
	}
	return objects
}

func (g *Graph) liveReferrers(id uint64) []uint64 {
	referrers := g.referrers[id]
	ids := make([]uint64, 0, len(referrers))
	for r := range referrers {
		if _, ok := g.live[r]; ok {
			ids = append(ids, r)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LiveObjects returns every live object ordered by id.
func (g *Graph) LiveObjects() []sample.CreateObject {
	objects := make([]sample.CreateObject, 0, len(g.live))
	for _, c := range g.live {
		objects = append(objects, c)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].ID < objects[j].ID })
	return objects
}

func size(c sample.CreateObject) int64 {
	return c.Size
}

// AllocationSites groups live objects by their allocation frames, weighted
// by bytes.
func (g *Graph) AllocationSites(direction grouping.Direction, filter scope.Filter) *grouping.Tree[sample.CreateObject, frame.Frame] {
	return grouping.NewTree(g.LiveObjects(), grouping.FrameAt[sample.CreateObject](direction, filter), grouping.SumOf(size))
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		live:       make(map[uint64]sample.CreateObject, len(g.live)),
		known:      make(idSet, len(g.known)),
		referents:  make(map[uint64]map[uint64]int64, len(g.referents)),
		referrers:  make(map[uint64]idSet, len(g.referrers)),
		totalBytes: g.totalBytes,
	}
	for id, o := range g.live {
		c.live[id] = o
	}
	for id := range g.known {
		c.known[id] = struct{}{}
	}
	for referrer, referents := range g.referents {
		m := make(map[uint64]int64, len(referents))
		for id, ts := range referents {
			m[id] = ts
		}
		c.referents[referrer] = m
	}
	for referent, referrers := range g.referrers {
		s := make(idSet, len(referrers))
		for id := range referrers {
			s[id] = struct{}{}
		}
		c.referrers[referent] = s
	}
	return c
}

// Events describes the live state as a timestamp ordered event log: one
// create per live object and one reference per edge leaving a live object.
func (g *Graph) Events() []sample.Event {
	events := make([]sample.Event, 0, len(g.live))
	for _, o := range g.LiveObjects() {
		events = append(events, sample.NewCreate(o))
	}
	referrers := make([]uint64, 0, len(g.referents))
	for id := range g.referents {
		if _, ok := g.live[id]; ok {
			referrers = append(referrers, id)
		}
	}
	sort.Slice(referrers, func(i, j int) bool { return referrers[i] < referrers[j] })
	for _, referrer := range referrers {
		referents := make([]uint64, 0, len(g.referents[referrer]))
		for id := range g.referents[referrer] {
			referents = append(referents, id)
		}
		sort.Slice(referents, func(i, j int) bool { return referents[i] < referents[j] })
		created := g.live[referrer].Timestamp
		for _, referent := range referents {
			ts := g.referents[referrer][referent]
			if ts < created {
				// the referrer id was reused, replay must see it created first
				ts = created
			}
			events = append(events, sample.Event{Kind: sample.KindReference, Reference: &sample.Reference{
				Timestamp:  ts,
				ReferrerID: referrer,
				ReferentID: referent,
			}})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp() < events[j].Timestamp()
	})
	return events
}
