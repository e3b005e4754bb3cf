package frame

import (
	"fmt"
	"hash"
	"hash/fnv"
	"strings"

	"github.com/JetBrains/intellij-plugins-sub025/internal/errorutil"
)

type (
	// Frame is a single stack location as reported by the profiling agent,
	// e.g. "pkg::Class/method(sig)[extra]".
	Frame string

	Location struct {
		Package   string `json:"package,omitempty"`
		Class     string `json:"class,omitempty"`
		Method    string `json:"method,omitempty"`
		Signature string `json:"signature,omitempty"`
		Extra     string `json:"extra,omitempty"`
	}
)

const packageSeparator = "::"

// Parse splits a frame description into its parts. It never fails: frames
// that don't follow the agent's convention are returned as a bare method.
func Parse(f Frame) Location {
	s := string(f)
	var l Location
	if strings.HasSuffix(s, "]") {
		if i := strings.LastIndexByte(s, '['); i >= 0 {
			l.Extra = s[i+1 : len(s)-1]
			s = s[:i]
		}
	}
	if i := strings.IndexByte(s, '('); i >= 0 {
		l.Signature = s[i:]
		s = s[:i]
	}
	if i := strings.Index(s, packageSeparator); i >= 0 {
		l.Package = s[:i]
		s = s[i+len(packageSeparator):]
	}
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		l.Class = s[:i]
		s = s[i+1:]
	}
	l.Method = s
	return l
}

// Validate reports whether the frame can be used as a grouping key.
func (f Frame) Validate() error {
	if f == "" {
		return fmt.Errorf("frame: %w: empty frame", errorutil.ErrMalformedEvent)
	}
	if strings.ContainsAny(string(f), "\x00\n\r") {
		return fmt.Errorf("frame: %w: control character in %q", errorutil.ErrMalformedEvent, string(f))
	}
	return nil
}

func (f Frame) Package() string {
	return Parse(f).Package
}

// Name returns a short, human readable name for the frame.
func (f Frame) Name() string {
	l := Parse(f)
	if l.Class == "" {
		return l.Method
	}
	return l.Class + "." + l.Method
}

func (f Frame) WriteToHash(h hash.Hash) {
	if f == "" {
		h.Write([]byte("-"))
		return
	}
	h.Write([]byte(f))
}

// Fingerprint returns a stable 64-bit identifier of the frame.
func (f Frame) Fingerprint() uint64 {
	h := fnv.New64()
	f.WriteToHash(h)
	return h.Sum64()
}

func (l Location) String() string {
	var b strings.Builder
	if l.Package != "" {
		b.WriteString(l.Package)
		b.WriteString(packageSeparator)
	}
	if l.Class != "" {
		b.WriteString(l.Class)
		b.WriteByte('/')
	}
	b.WriteString(l.Method)
	b.WriteString(l.Signature)
	if l.Extra != "" {
		b.WriteByte('[')
		b.WriteString(l.Extra)
		b.WriteByte(']')
	}
	return b.String()
}

// Contains reports whether f appears in frames.
func Contains(frames []Frame, f Frame) bool {
	for _, fr := range frames {
		if fr == f {
			return true
		}
	}
	return false
}
