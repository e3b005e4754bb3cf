package httputil

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/getsentry/sentry-go"

	"github.com/JetBrains/intellij-plugins-sub025/internal/testutil"
)

func TestDecompressPayload(t *testing.T) {
	payload := []byte(`[{"type":"performance","duration":10}]`)

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write(payload)
	_ = bw.Close()

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write(payload)
	_ = gw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
		wantCode int
	}{
		{name: "identity", body: payload, wantCode: http.StatusOK},
		{name: "brotli", encoding: "br", body: br.Bytes(), wantCode: http.StatusOK},
		{name: "gzip", encoding: "gzip", body: gz.Bytes(), wantCode: http.StatusOK},
		{name: "broken gzip", encoding: "gzip", body: payload, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []byte
			handler := DecompressPayload(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = io.ReadAll(r.Body)
			}))
			req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(tt.body))
			if tt.encoding != "" {
				req.Header.Set("Content-Encoding", tt.encoding)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantCode == http.StatusOK && !bytes.Equal(got, payload) {
				t.Fatalf("unexpected body %q", got)
			}
		})
	}
}

func TestGetRequiredQueryValues(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/calltree/callees?frame=a&frame=&frame=b", nil)
	values, _, ok := GetRequiredQueryValues(rec, req, "frame")
	if !ok {
		t.Fatal("expected values")
	}
	if diff := testutil.Diff(values, []string{"a", "b"}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/calltree/callees?frame=", nil)
	if _, _, ok := GetRequiredQueryValues(rec, req, "frame"); ok || rec.Code != http.StatusBadRequest {
		t.Fatalf("expected a bad request, got %d", rec.Code)
	}
}

func TestGetIntQueryParameter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/memory/classes?page_size=20&limit=x", nil)
	if v, err := GetIntQueryParameter(req, "page_size", 500); err != nil || v != 20 {
		t.Fatalf("got %d, %v", v, err)
	}
	if v, err := GetIntQueryParameter(req, "depth", 3); err != nil || v != 3 {
		t.Fatalf("got %d, %v", v, err)
	}
	if _, err := GetIntQueryParameter(req, "limit", 0); err == nil {
		t.Fatal("expected an error")
	}
}

func TestSetHTTPStatusCodeTag(t *testing.T) {
	e := SetHTTPStatusCodeTag(&sentry.Event{}, &sentry.EventHint{
		Request:  httptest.NewRequest(http.MethodDelete, "/memory", nil),
		Response: &http.Response{StatusCode: http.StatusNoContent},
	})
	want := map[string]string{
		HTTPStatusCodeTag: "204",
		HTTPMethodTag:     http.MethodDelete,
	}
	if diff := testutil.Diff(e.Tags, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}
