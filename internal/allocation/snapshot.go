package allocation

import (
	"sort"

	"github.com/JetBrains/intellij-plugins-sub025/internal/grouping"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
)

type (
	// ClassGroup is every live instance of one class.
	ClassGroup struct {
		ClassName     string `json:"class_name"`
		Count         int    `json:"count"`
		RetainedBytes int64  `json:"retained_bytes"`

		instances []sample.CreateObject
		pageSize  int
	}

	// Snapshot is the live heap grouped by class, largest classes first and
	// ties by name.
	Snapshot struct {
		Classes    []*ClassGroup `json:"classes"`
		TotalBytes int64         `json:"total_bytes"`
		LiveCount  int           `json:"live_count"`
		PageSize   int           `json:"page_size"`
	}
)

func className(c sample.CreateObject, depth int) (string, bool) {
	if depth != 0 {
		return "", false
	}
	return c.ClassName, true
}

// Snapshot groups live objects by class. Instances of a class are handed out
// in pages of at most pageSize, grouping.DefaultPageSize when pageSize <= 0.
func (g *Graph) Snapshot(pageSize int) Snapshot {
	if pageSize <= 0 {
		pageSize = grouping.DefaultPageSize
	}
	nodes := grouping.Build[sample.CreateObject, string](g.LiveObjects(), nil, className, grouping.SumOf(size))
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Metric != nodes[j].Metric {
			return nodes[i].Metric > nodes[j].Metric
		}
		return nodes[i].Key < nodes[j].Key
	})
	s := Snapshot{
		Classes:    make([]*ClassGroup, 0, len(nodes)),
		TotalBytes: g.totalBytes,
		LiveCount:  len(g.live),
		PageSize:   pageSize,
	}
	for _, n := range nodes {
		s.Classes = append(s.Classes, &ClassGroup{
			ClassName:     n.Key,
			Count:         len(n.Members),
			RetainedBytes: n.Metric,
			instances:     n.Members,
			pageSize:      pageSize,
		})
	}
	return s
}

// Class returns the group of a class.
func (s Snapshot) Class(name string) (*ClassGroup, bool) {
	for _, c := range s.Classes {
		if c.ClassName == name {
			return c, true
		}
	}
	return nil, false
}

// PageCount returns the number of instance pages of the class.
func (c *ClassGroup) PageCount() int {
	return grouping.PageCount(len(c.instances), c.pageSize)
}

// Page returns the i-th page of instances, ordered by id.
func (c *ClassGroup) Page(i int) []sample.CreateObject {
	return grouping.Page(c.instances, c.pageSize, i)
}
