package httputil

import (
	"compress/gzip"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
)

// DecompressPayload swaps the request body for a decompressing reader when
// the payload is brotli or gzip encoded.
func DecompressPayload(next http.Handler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		switch r.Header.Get("Content-Encoding") {
		case "br":
			r.Body = io.NopCloser(brotli.NewReader(r.Body))
		case "gzip":
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, "invalid gzip payload", http.StatusBadRequest)
				return
			}
			defer zr.Close()
			r.Body = zr
		}
		r.Header.Del("Content-Encoding")

		next.ServeHTTP(w, r)
	})
}
