package httputil

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// GetRequiredQueryValues reads every value of the key query parameter. If
// there is none, it writes a 400 status code with the reason and returns
// false.
func GetRequiredQueryValues(w http.ResponseWriter, r *http.Request, key string) ([]string, zerolog.Logger, bool) {
	values := r.URL.Query()[key]
	nonEmpty := values[:0:0]
	for _, v := range values {
		if v != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}
	if len(nonEmpty) == 0 {
		http.Error(w, fmt.Sprintf("expected %s query parameter", key), http.StatusBadRequest)
		return nil, zerolog.Nop(), false
	}
	return nonEmpty, log.With().Strs(key, nonEmpty).Logger(), true
}

// GetIntQueryParameter parses the key query parameter, returning fallback
// when it is absent.
func GetIntQueryParameter(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s query parameter: %w", key, err)
	}
	return v, nil
}
