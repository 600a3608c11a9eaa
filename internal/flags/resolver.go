package flags

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"idforge/internal/iconcache"
	"idforge/pkg/platform/sentinel"
)

const (
	maxIconBytes   = 256 << 10
	svgContentType = "image/svg+xml"
)

// HTTPResolver fetches icons from a CDN. "{code}" in template is replaced by
// the lower-case country code. A 404 means the code has no flag.
func HTTPResolver(client *http.Client, template string) iconcache.Resolver[Icon] {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, code string) (Icon, bool, error) {
		url := strings.ReplaceAll(template, "{code}", strings.ToLower(code))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Icon{}, false, fmt.Errorf("build flag request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return Icon{}, false, fmt.Errorf("fetch flag %s: %w: %w", code, sentinel.ErrUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return Icon{}, false, nil
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return Icon{}, false, fmt.Errorf("fetch flag %s: status %d: %w", code, resp.StatusCode, sentinel.ErrUnavailable)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxIconBytes+1))
		if err != nil {
			return Icon{}, false, fmt.Errorf("read flag %s: %w", code, err)
		}
		if len(data) > maxIconBytes {
			return Icon{}, false, fmt.Errorf("flag %s exceeds %d bytes: %w", code, maxIconBytes, sentinel.ErrCorrupt)
		}
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = svgContentType
		}
		return Icon{Code: code, ContentType: contentType, Data: data}, true, nil
	}
}

// FSResolver reads "<code>.svg" (lower case) from fsys.
func FSResolver(fsys fs.FS) iconcache.Resolver[Icon] {
	return func(_ context.Context, code string) (Icon, bool, error) {
		name := path.Join(".", strings.ToLower(code)+".svg")
		data, err := fs.ReadFile(fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			return Icon{}, false, nil
		}
		if err != nil {
			return Icon{}, false, fmt.Errorf("read flag asset %s: %w", name, err)
		}
		return Icon{Code: code, ContentType: svgContentType, Data: data}, true, nil
	}
}
