package scope

import (
	"fmt"
	"strings"

	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
)

// Filter restricts which frames take part in grouping and accounting.
type Filter interface {
	Matches(f frame.Frame) bool
}

// Func adapts a plain function to a Filter.
type Func func(f frame.Frame) bool

func (fn Func) Matches(f frame.Frame) bool {
	return fn(f)
}

type entireProgram struct{}

func (entireProgram) Matches(frame.Frame) bool { return true }

func (entireProgram) String() string { return "all" }

// EntireProgram is the default scope, every frame matches.
var EntireProgram Filter = entireProgram{}

type projectOnly struct {
	roots []string
}

// ProjectOnly matches frames whose package is one of roots or nested under
// one of them. Frames without a package never match.
func ProjectOnly(roots ...string) Filter {
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		r = strings.TrimSpace(r)
		if r != "" {
			cleaned = append(cleaned, r)
		}
	}
	return projectOnly{roots: cleaned}
}

func (p projectOnly) Matches(f frame.Frame) bool {
	pkg := f.Package()
	if pkg == "" {
		return false
	}
	for _, root := range p.roots {
		if IsUnder(pkg, root) {
			return true
		}
	}
	return false
}

func (p projectOnly) String() string {
	return "project(" + strings.Join(p.roots, ",") + ")"
}

// IsUnder reports whether pkg equals root or is nested under it.
func IsUnder(pkg, root string) bool {
	if !strings.HasPrefix(pkg, root) {
		return false
	}
	if len(pkg) == len(root) {
		return true
	}
	rest := pkg[len(root):]
	return strings.HasPrefix(rest, ".") ||
		strings.HasPrefix(rest, "/") ||
		strings.HasPrefix(rest, "::")
}

var libraryPackagePrefixes = []string{
	"java",
	"javax",
	"jdk",
	"sun",
	"kotlin",
	"kotlinx",
	"node",
	"node_modules",
	"std",
	"runtime",
}

// NoLibraries drops frames coming from runtime and standard library packages.
var NoLibraries Filter = Func(func(f frame.Frame) bool {
	pkg := f.Package()
	for _, prefix := range libraryPackagePrefixes {
		if IsUnder(pkg, prefix) {
			return false
		}
	}
	return true
})

// And matches frames accepted by every filter.
func And(filters ...Filter) Filter {
	return Func(func(f frame.Frame) bool {
		for _, filter := range filters {
			if !filter.Matches(f) {
				return false
			}
		}
		return true
	})
}

// Not inverts a filter.
func Not(filter Filter) Filter {
	return Func(func(f frame.Frame) bool {
		return !filter.Matches(f)
	})
}

// OrDefault returns EntireProgram for a nil filter.
func OrDefault(filter Filter) Filter {
	if filter == nil {
		return EntireProgram
	}
	return filter
}

// Apply returns the frames matching the filter, in their original order. The
// input slice is returned as is when every frame matches.
func Apply(filter Filter, frames []frame.Frame) []frame.Frame {
	filter = OrDefault(filter)
	if filter == EntireProgram {
		return frames
	}
	for i, f := range frames {
		if filter.Matches(f) {
			continue
		}
		filtered := make([]frame.Frame, i, len(frames))
		copy(filtered, frames[:i])
		for _, f := range frames[i+1:] {
			if filter.Matches(f) {
				filtered = append(filtered, f)
			}
		}
		return filtered
	}
	return frames
}

// FromName resolves a scope name as used by the HTTP API.
func FromName(name string, projectRoots []string) (Filter, error) {
	switch name {
	case "", "all":
		return EntireProgram, nil
	case "project":
		return ProjectOnly(projectRoots...), nil
	case "no_libraries":
		return NoLibraries, nil
	}
	return nil, fmt.Errorf("scope: unknown scope %q", name)
}
