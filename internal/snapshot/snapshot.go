// Package snapshot stores event logs in a columnar layout.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/JetBrains/intellij-plugins-sub025/internal/errorutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
	"github.com/JetBrains/intellij-plugins-sub025/internal/storageutil"
)

const (
	Version = 1

	noStack = -1
)

// Columns holds one entry per event in every per-event column. Fields an
// event kind doesn't have are left at their zero value.
type Columns struct {
	Version int `json:"version"`

	Frames  []frame.Frame `json:"frames"`
	Stacks  [][]int       `json:"stacks"`
	Classes []string      `json:"classes"`

	Kinds       []string      `json:"kinds"`
	Timestamps  []int64       `json:"timestamps"`
	StackIDs    []int         `json:"stack_ids"`
	Durations   []uint64      `json:"durations"`
	ObjectIDs   []uint64      `json:"object_ids"`
	ClassIDs    []int         `json:"class_ids"`
	Sizes       []int64       `json:"sizes"`
	ReferrerIDs []uint64      `json:"referrer_ids"`
	ReferentIDs []uint64      `json:"referent_ids"`
}

type encoder struct {
	c       *Columns
	frames  frame.Dictionary
	stacks  map[string]int
	classes map[string]int
	key     strings.Builder
}

func (e *encoder) stack(frames []frame.Frame) int {
	if len(frames) == 0 {
		return noStack
	}
	ids := make([]int, len(frames))
	e.key.Reset()
	for i, f := range frames {
		ids[i] = e.frames.Intern(f)
		e.key.WriteString(strconv.Itoa(ids[i]))
		e.key.WriteByte(',')
	}
	k := e.key.String()
	if id, ok := e.stacks[k]; ok {
		return id
	}
	id := len(e.c.Stacks)
	e.stacks[k] = id
	e.c.Stacks = append(e.c.Stacks, ids)
	return id
}

func (e *encoder) class(name string) int {
	if id, ok := e.classes[name]; ok {
		return id
	}
	id := len(e.c.Classes)
	e.classes[name] = id
	e.c.Classes = append(e.c.Classes, name)
	return id
}

// Encode lays events out in columns, ordered by timestamp. Events sharing a
// timestamp keep their relative order.
func Encode(events []sample.Event) Columns {
	ordered := make([]sample.Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp() < ordered[j].Timestamp()
	})

	n := len(ordered)
	c := Columns{
		Version:     Version,
		Kinds:       make([]string, n),
		Timestamps:  make([]int64, n),
		StackIDs:    make([]int, n),
		Durations:   make([]uint64, n),
		ObjectIDs:   make([]uint64, n),
		ClassIDs:    make([]int, n),
		Sizes:       make([]int64, n),
		ReferrerIDs: make([]uint64, n),
		ReferentIDs: make([]uint64, n),
	}
	e := encoder{c: &c, stacks: make(map[string]int), classes: make(map[string]int)}
	for i, ev := range ordered {
		c.Kinds[i] = ev.Kind.String()
		c.Timestamps[i] = ev.Timestamp()
		c.StackIDs[i] = noStack
		switch ev.Kind {
		case sample.KindPerformance:
			c.StackIDs[i] = e.stack(ev.Performance.Frames)
			c.Durations[i] = ev.Performance.Duration
		case sample.KindCreate:
			c.StackIDs[i] = e.stack(ev.Create.Frames)
			c.ObjectIDs[i] = ev.Create.ID
			c.ClassIDs[i] = e.class(ev.Create.ClassName)
			c.Sizes[i] = ev.Create.Size
		case sample.KindDelete:
			c.StackIDs[i] = e.stack(ev.Delete.Frames)
			c.ObjectIDs[i] = ev.Delete.ID
			c.Sizes[i] = ev.Delete.Size
		case sample.KindReference:
			c.ReferrerIDs[i] = ev.Reference.ReferrerID
			c.ReferentIDs[i] = ev.Reference.ReferentID
		}
	}
	c.Frames = e.frames.Frames()
	return c
}

func corrupted(format string, args ...interface{}) error {
	return fmt.Errorf("snapshot: %w: %s", errorutil.ErrDataIntegrity, fmt.Sprintf(format, args...))
}

// Len returns the number of events held.
func (c Columns) Len() int {
	return len(c.Kinds)
}

func (c Columns) check() error {
	if c.Version != Version {
		return corrupted("unsupported version %d", c.Version)
	}
	n := c.Len()
	for name, l := range map[string]int{
		"timestamps":   len(c.Timestamps),
		"stack_ids":    len(c.StackIDs),
		"durations":    len(c.Durations),
		"object_ids":   len(c.ObjectIDs),
		"class_ids":    len(c.ClassIDs),
		"sizes":        len(c.Sizes),
		"referrer_ids": len(c.ReferrerIDs),
		"referent_ids": len(c.ReferentIDs),
	} {
		if l != n {
			return corrupted("column %s has %d entries, expected %d", name, l, n)
		}
	}
	for i, stack := range c.Stacks {
		for _, id := range stack {
			if id < 0 || id >= len(c.Frames) {
				return corrupted("stack %d references unknown frame %d", i, id)
			}
		}
	}
	return nil
}

func (c Columns) frames(i int) ([]frame.Frame, error) {
	id := c.StackIDs[i]
	if id == noStack {
		return nil, nil
	}
	if id < 0 || id >= len(c.Stacks) {
		return nil, corrupted("event %d references unknown stack %d", i, id)
	}
	frames := make([]frame.Frame, len(c.Stacks[id]))
	for j, fid := range c.Stacks[id] {
		frames[j] = c.Frames[fid]
	}
	return frames, nil
}

// Decode rebuilds the events held by c. Every event is validated.
func (c Columns) Decode() ([]sample.Event, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	events := make([]sample.Event, 0, c.Len())
	for i, name := range c.Kinds {
		kind := sample.ParseKind(name)
		frames, err := c.frames(i)
		if err != nil {
			return nil, err
		}
		var ev sample.Event
		switch kind {
		case sample.KindPerformance:
			ev = sample.NewPerformance(sample.Performance{
				Frames:    frames,
				Timestamp: c.Timestamps[i],
				Duration:  c.Durations[i],
			})
		case sample.KindCreate:
			class := c.ClassIDs[i]
			if class < 0 || class >= len(c.Classes) {
				return nil, corrupted("event %d references unknown class %d", i, class)
			}
			ev = sample.NewCreate(sample.CreateObject{
				Frames:    frames,
				Timestamp: c.Timestamps[i],
				ID:        c.ObjectIDs[i],
				ClassName: c.Classes[class],
				Size:      c.Sizes[i],
			})
		case sample.KindDelete:
			ev = sample.NewDelete(sample.DeleteObject{
				Frames:    frames,
				Timestamp: c.Timestamps[i],
				ID:        c.ObjectIDs[i],
				Size:      c.Sizes[i],
			})
		case sample.KindReference:
			ev = sample.Event{Kind: sample.KindReference, Reference: &sample.Reference{
				Timestamp:  c.Timestamps[i],
				ReferrerID: c.ReferrerIDs[i],
				ReferentID: c.ReferentIDs[i],
			}}
		default:
			return nil, corrupted("event %d has unknown kind %q", i, name)
		}
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("snapshot: event %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// StoragePath returns the object name of a snapshot of a session.
func StoragePath(sessionID, snapshotID string) string {
	return fmt.Sprintf(
		"%s/%s",
		strings.ReplaceAll(sessionID, "-", ""),
		strings.ReplaceAll(snapshotID, "-", ""),
	)
}

// Write stores events under name.
func Write(ctx context.Context, h storageutil.ObjectHandler, name string, events []sample.Event) error {
	return storageutil.CompressedWrite(ctx, h, name, Encode(events))
}

// Read loads the events stored under name.
func Read(ctx context.Context, h storageutil.ObjectHandler, name string) ([]sample.Event, error) {
	var c Columns
	if err := storageutil.UnmarshalCompressed(ctx, h, name, &c); err != nil {
		return nil, err
	}
	return c.Decode()
}
