package allocation

import (
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
)

// Retainer is one object found while walking back references.
type Retainer struct {
	Object sample.CreateObject `json:"-"`
	// Referent is the id of the object this retainer references.
	Referent uint64 `json:"referent"`
	// Depth is 1 for direct referrers of the walk's origin.
	Depth int `json:"depth"`
}

// Walker lazily walks back references breadth first. Every id is visited at
// most once, so cycles terminate. The graph must not change while walking.
type Walker struct {
	g       *Graph
	queue   []Retainer
	visited idSet
}

// Retainers starts a walk answering "what keeps id alive".
func (g *Graph) Retainers(id uint64) *Walker {
	w := &Walker{g: g, visited: idSet{id: {}}}
	w.enqueue(id, 1)
	return w
}

func (w *Walker) enqueue(referent uint64, depth int) {
	for _, r := range w.g.liveReferrers(referent) {
		if _, ok := w.visited[r]; ok {
			continue
		}
		w.visited[r] = struct{}{}
		w.queue = append(w.queue, Retainer{Object: w.g.live[r], Referent: referent, Depth: depth})
	}
}

// Next returns the next retainer, or false once the walk is over.
func (w *Walker) Next() (Retainer, bool) {
	if len(w.queue) == 0 {
		return Retainer{}, false
	}
	r := w.queue[0]
	w.queue = w.queue[1:]
	w.enqueue(r.Object.ID, r.Depth+1)
	return r, true
}

// Collect drains up to limit retainers. A limit <= 0 drains the whole walk.
func (w *Walker) Collect(limit int) []Retainer {
	var retainers []Retainer
	for limit <= 0 || len(retainers) < limit {
		r, ok := w.Next()
		if !ok {
			break
		}
		retainers = append(retainers, r)
	}
	return retainers
}
