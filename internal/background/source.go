package background

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"net/http"

	"github.com/tidwall/gjson"

	"idforge/pkg/platform/sentinel"
)

// Source yields a fresh background image URL.
type Source interface {
	Next(ctx context.Context) (string, error)
}

const maxSourceBody = 64 << 10

// HTTPSource asks a random-image endpoint for a picture. Redirecting endpoints
// resolve to the final image URL; JSON endpoints are read for a "url" field.
type HTTPSource struct {
	client *http.Client
	url    string
}

func NewHTTPSource(client *http.Client, url string) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{client: client, url: url}
}

func (s *HTTPSource) Next(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("build background request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch background: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch background: status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return resp.Request.URL.String(), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBody))
	if err != nil {
		return "", fmt.Errorf("read background response: %w", err)
	}
	url := gjson.GetBytes(body, "url").String()
	if url == "" {
		return "", fmt.Errorf("background response has no url: %w", sentinel.ErrCorrupt)
	}
	return url, nil
}

// StaticSource picks uniformly from a fixed list.
type StaticSource struct {
	urls []string
}

func NewStaticSource(urls ...string) *StaticSource {
	return &StaticSource{urls: urls}
}

func (s *StaticSource) Next(context.Context) (string, error) {
	if len(s.urls) == 0 {
		return "", fmt.Errorf("static background list is empty: %w", sentinel.ErrNotFound)
	}
	return s.urls[rand.IntN(len(s.urls))], nil
}
