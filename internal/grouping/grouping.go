// Package grouping partitions sample sets level by level. One algorithm,
// parameterized by a classifier and a metric, backs CPU hot path grouping,
// caller/callee expansion and allocation site grouping.
package grouping

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

type (
	// Classifier returns the grouping key of s at depth, or false when s has
	// nothing at that depth (stack exhausted or filtered out).
	Classifier[S any, K ~string] func(s S, depth int) (K, bool)

	// Metric scores the members of a group. Siblings are ordered by it.
	Metric[S any] func(members []S) int64

	// Node is one merged path node: every member shares the key at Depth and
	// the keys of all ancestors, as listed in Path.
	Node[S any, K ~string] struct {
		Key     K
		Path    []K
		Depth   int
		Members []S
		Metric  int64
	}
)

// Group partitions samples by their key at depth. Keys are returned in first
// seen order. Samples the classifier rejects are left out.
func Group[S any, K ~string](samples []S, depth int, classify Classifier[S, K]) ([]K, map[K][]S) {
	groups := make(map[K][]S)
	var keys []K
	for _, s := range samples {
		k, ok := classify(s, depth)
		if !ok {
			continue
		}
		if _, exists := groups[k]; !exists {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], s)
	}
	return keys, groups
}

// Build groups samples at len(parent) and returns one node per key, sorted by
// metric in descending order. Ties keep first seen order.
func Build[S any, K ~string](samples []S, parent []K, classify Classifier[S, K], metric Metric[S]) []*Node[S, K] {
	depth := len(parent)
	keys, groups := Group(samples, depth, classify)
	nodes := make([]*Node[S, K], 0, len(keys))
	for _, k := range keys {
		path := make([]K, depth+1)
		copy(path, parent)
		path[depth] = k
		members := groups[k]
		nodes = append(nodes, &Node[S, K]{
			Key:     k,
			Path:    path,
			Depth:   depth,
			Members: members,
			Metric:  metric(members),
		})
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Metric > nodes[j].Metric
	})
	return nodes
}

// Tree expands groupings on demand. The grouping below a path is computed the
// first time it's requested and memoized, so asking twice returns the same
// nodes. A Tree is safe for concurrent use.
type Tree[S any, K ~string] struct {
	samples  []S
	classify Classifier[S, K]
	metric   Metric[S]

	mu   sync.Mutex
	memo map[string][]*Node[S, K]
}

func NewTree[S any, K ~string](samples []S, classify Classifier[S, K], metric Metric[S]) *Tree[S, K] {
	return &Tree[S, K]{
		samples:  samples,
		classify: classify,
		metric:   metric,
		memo:     make(map[string][]*Node[S, K]),
	}
}

// Samples returns the sample set the tree was built from.
func (t *Tree[S, K]) Samples() []S {
	return t.samples
}

// Roots returns the nodes at depth 0.
func (t *Tree[S, K]) Roots() []*Node[S, K] {
	return t.Children(nil)
}

// Expand returns the children of n.
func (t *Tree[S, K]) Expand(n *Node[S, K]) []*Node[S, K] {
	return t.Children(n.Path)
}

// Children returns the grouping one level below path. Unknown paths have no
// children.
func (t *Tree[S, K]) Children(path []K) []*Node[S, K] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.childrenLocked(path)
}

// Find returns the node at path, if any.
func (t *Tree[S, K]) Find(path []K) (*Node[S, K], bool) {
	if len(path) == 0 {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findLocked(path)
}

func (t *Tree[S, K]) findLocked(path []K) (*Node[S, K], bool) {
	last := path[len(path)-1]
	for _, n := range t.childrenLocked(path[:len(path)-1]) {
		if n.Key == last {
			return n, true
		}
	}
	return nil, false
}

func (t *Tree[S, K]) childrenLocked(path []K) []*Node[S, K] {
	key := pathKey(path)
	if nodes, ok := t.memo[key]; ok {
		return nodes
	}
	members := t.samples
	if len(path) > 0 {
		parent, ok := t.findLocked(path)
		if !ok {
			return nil
		}
		members = parent.Members
	}
	nodes := Build(members, path, t.classify, t.metric)
	t.memo[key] = nodes
	return nodes
}

func pathKey[K ~string](path []K) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(path)))
	for _, k := range path {
		b.WriteByte(0)
		b.WriteString(string(k))
	}
	return b.String()
}
