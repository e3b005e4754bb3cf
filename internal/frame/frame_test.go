package frame

import (
	"errors"
	"testing"

	"github.com/JetBrains/intellij-plugins-sub025/internal/errorutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/testutil"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  Location
	}{
		{
			name:  "full frame",
			frame: "app.server::Handler/serve(int, string)[line 42]",
			want: Location{
				Package:   "app.server",
				Class:     "Handler",
				Method:    "serve",
				Signature: "(int, string)",
				Extra:     "line 42",
			},
		},
		{
			name:  "no package",
			frame: "Handler/serve()",
			want:  Location{Class: "Handler", Method: "serve", Signature: "()"},
		},
		{
			name:  "bare method",
			frame: "main",
			want:  Location{Method: "main"},
		},
		{
			name:  "nested class path",
			frame: "lib::Outer/Inner/run",
			want:  Location{Package: "lib", Class: "Outer/Inner", Method: "run"},
		},
		{
			name:  "brackets inside signature are kept",
			frame: "lib::A/b(int[])",
			want:  Location{Package: "lib", Class: "A", Method: "b", Signature: "(int[])"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.frame)
			if diff := testutil.Diff(got, tt.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestLocationStringRoundTrip(t *testing.T) {
	for _, f := range []Frame{
		"app.server::Handler/serve(int, string)[line 42]",
		"lib::Outer/Inner/run",
		"main",
	} {
		if got := Frame(Parse(f).String()); got != f {
			t.Fatalf("expected %q, got %q", f, got)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Frame("").Validate(); !errors.Is(err, errorutil.ErrMalformedEvent) {
		t.Fatalf("expected a malformed event error, got %v", err)
	}
	if err := Frame("a\nb").Validate(); !errors.Is(err, errorutil.ErrMalformedEvent) {
		t.Fatalf("expected a malformed event error, got %v", err)
	}
	if err := Frame("pkg::A/b").Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestName(t *testing.T) {
	if got := Frame("pkg::A/b(x)").Name(); got != "A.b" {
		t.Fatalf("expected A.b, got %q", got)
	}
	if got := Frame("main").Name(); got != "main" {
		t.Fatalf("expected main, got %q", got)
	}
}

func TestDictionary(t *testing.T) {
	var d Dictionary
	a := d.Intern("a")
	b := d.Intern("b")
	if again := d.Intern("a"); again != a {
		t.Fatalf("expected interning to be idempotent, got %d and %d", a, again)
	}
	if a == b {
		t.Fatal("expected distinct ids for distinct frames")
	}
	if f, ok := d.Frame(b); !ok || f != "b" {
		t.Fatalf("expected b, got %q (%v)", f, ok)
	}
	if _, ok := d.Frame(42); ok {
		t.Fatal("expected unknown id to miss")
	}
	if _, ok := d.Lookup("c"); ok {
		t.Fatal("expected lookup not to intern")
	}
	if d.Len() != 2 {
		t.Fatalf("expected 2 frames, got %d", d.Len())
	}
}
