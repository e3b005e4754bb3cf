package location

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type (
	// HTTPResolver asks a remote navigation service for source locations.
	HTTPResolver struct {
		http   *httpclient.Client
		logger zerolog.Logger
		url    string
	}

	resolveResponse struct {
		File string `json:"file"`
		Line uint32 `json:"line"`
	}
)

func NewHTTPResolver(host string, logger zerolog.Logger) (*HTTPResolver, error) {
	if host == "" {
		return nil, errors.New("host must be set")
	}
	return &HTTPResolver{
		url:    strings.TrimRight(host, "/") + "/resolve",
		logger: logger,
		http: httpclient.NewClient(
			httpclient.WithHTTPTimeout(5*time.Second),
			httpclient.WithRetryCount(2),
			httpclient.WithRetrier(heimdall.NewRetrier(heimdall.NewConstantBackoff(50*time.Millisecond, 10*time.Millisecond))),
		),
	}, nil
}

func (r *HTTPResolver) Resolve(ctx context.Context, f frame.Frame) (Location, bool, error) {
	l := Location{Location: frame.Parse(f)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url+"?frame="+url.QueryEscape(string(f)), nil)
	if err != nil {
		return Location{}, false, err
	}
	req.Header.Set("accept", "application/json")
	resp, err := r.http.Do(req)
	if err != nil {
		return Location{}, false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Location{}, false, nil
	case resp.StatusCode >= 400:
		return Location{}, false, fmt.Errorf("location: resolving %q: http status %d", string(f), resp.StatusCode)
	}
	var body resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, false, err
	}
	l.File = body.File
	l.Line = body.Line
	r.logger.Debug().Str("frame", string(f)).Str("file", l.File).Uint32("line", l.Line).Msg("frame resolved")
	return l, l.File != "", nil
}
