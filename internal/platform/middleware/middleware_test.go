package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idforge/internal/platform/metrics"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func TestClientAttrs(t *testing.T) {
	t.Run("browser", func(t *testing.T) {
		attr := ClientAttrs(chromeUA)
		assert.Equal(t, "client", attr.Key)
		got := map[string]any{}
		for _, a := range attr.Value.Group() {
			got[a.Key] = a.Value.Any()
		}
		assert.Equal(t, "Chrome", got["browser"])
		assert.Equal(t, false, got["bot"])
		assert.Equal(t, false, got["mobile"])
	})

	t.Run("crawler", func(t *testing.T) {
		attr := ClientAttrs("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
		var bot bool
		for _, a := range attr.Value.Group() {
			if a.Key == "bot" {
				bot = a.Value.Bool()
			}
		}
		assert.True(t, bot)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, ClientAttrs("").Value.Group())
	})
}

func TestLogger_WritesRequestLine(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	m := metrics.New(prometheus.NewRegistry())

	h := RequestID(Logger(log, m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	req := httptest.NewRequest(http.MethodGet, "/api/geo", nil)
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set(RequestIDHeader, "rid-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request", line["msg"])
	assert.Equal(t, "rid-1", line["request_id"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
	client, ok := line["client"].(map[string]any)
	require.True(t, ok, "client group missing: %s", buf.String())
	assert.Equal(t, "Chrome", client["browser"])

	assert.Equal(t, 1.0, promtest.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/api/geo", "418")))
}

func TestRecovery(t *testing.T) {
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := Recovery(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
