// Package location maps frames to source locations for presentation.
package location

import (
	"context"
	"strconv"
	"strings"

	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
)

type (
	Location struct {
		frame.Location
		File string `json:"file,omitempty"`
		Line uint32 `json:"line,omitempty"`
	}

	// Resolver finds the source location of a frame. A frame that can't be
	// located isn't an error, Resolve returns false instead.
	Resolver interface {
		Resolve(ctx context.Context, f frame.Frame) (Location, bool, error)
	}
)

// FrameParser resolves frames locally from their description. A trailing
// "[file:line]" part, when present, gives the file and line.
type FrameParser struct{}

func (FrameParser) Resolve(_ context.Context, f frame.Frame) (Location, bool, error) {
	l := Location{Location: frame.Parse(f)}
	if l.Method == "" {
		return Location{}, false, nil
	}
	l.File, l.Line = splitFileLine(l.Extra)
	return l, true, nil
}

func splitFileLine(extra string) (string, uint32) {
	i := strings.LastIndexByte(extra, ':')
	if i <= 0 {
		return "", 0
	}
	line, err := strconv.ParseUint(extra[i+1:], 10, 32)
	if err != nil {
		return "", 0
	}
	return extra[:i], uint32(line)
}

// Chain tries resolvers in order and returns the first location found.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, f frame.Frame) (Location, bool, error) {
	for _, r := range c {
		l, ok, err := r.Resolve(ctx, f)
		if err != nil {
			return Location{}, false, err
		}
		if ok && l.File != "" {
			return l, true, nil
		}
	}
	return FrameParser{}.Resolve(ctx, f)
}
