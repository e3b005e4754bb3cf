package location

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/testutil"
)

func TestFrameParser(t *testing.T) {
	tests := []struct {
		name   string
		frame  frame.Frame
		want   Location
		wantOK bool
	}{
		{
			name:  "with file and line",
			frame: "app::Server/serve(int)[Server.java:42]",
			want: Location{
				Location: frame.Location{
					Package:   "app",
					Class:     "Server",
					Method:    "serve",
					Signature: "(int)",
					Extra:     "Server.java:42",
				},
				File: "Server.java",
				Line: 42,
			},
			wantOK: true,
		},
		{
			name:  "extra without a line",
			frame: "app::Server/serve[native]",
			want: Location{
				Location: frame.Location{
					Package: "app",
					Class:   "Server",
					Method:  "serve",
					Extra:   "native",
				},
			},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := FrameParser{}.Resolve(context.Background(), tt.frame)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("expected %v, got %v", tt.wantOK, ok)
			}
			if diff := testutil.Diff(got, tt.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestHTTPResolver(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("frame") {
		case "app::Server/serve":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"file":"src/app/Server.kt","line":17}`))
		case "app::Broken/call":
			w.WriteHeader(http.StatusBadRequest)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	r, err := NewHTTPResolver(server.URL, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	l, ok, err := r.Resolve(ctx, "app::Server/serve")
	if err != nil || !ok {
		t.Fatalf("expected a location, got %v, %v", ok, err)
	}
	if l.File != "src/app/Server.kt" || l.Line != 17 || l.Class != "Server" {
		t.Fatalf("unexpected location: %+v", l)
	}

	if _, ok, err := r.Resolve(ctx, "app::Missing/call"); ok || err != nil {
		t.Fatalf("expected not found, got %v, %v", ok, err)
	}
	if _, _, err := r.Resolve(ctx, "app::Broken/call"); err == nil {
		t.Fatal("expected an error")
	}

	chain := Chain{r}
	l, ok, err = chain.Resolve(ctx, "app::Missing/call[Missing.kt:3]")
	if err != nil || !ok || l.File != "Missing.kt" || l.Line != 3 {
		t.Fatalf("expected the local fallback, got %+v, %v, %v", l, ok, err)
	}
}

func TestNewHTTPResolverRequiresHost(t *testing.T) {
	if _, err := NewHTTPResolver("", zerolog.Nop()); err == nil {
		t.Fatal("expected an error")
	}
}
