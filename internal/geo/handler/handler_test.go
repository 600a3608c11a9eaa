package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idforge/internal/geo"
	"idforge/pkg/testutil"
)

type recordingDetector struct {
	ip   string
	info geo.Info
}

func (d *recordingDetector) Detect(_ context.Context, ip string) geo.Info {
	d.ip = ip
	return d.info
}

func TestHandleDetect(t *testing.T) {
	det := &recordingDetector{info: geo.Info{IP: "198.51.100.4", Country: "FR"}}
	r := chi.NewRouter()
	New(det, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).Register(r)

	req := testutil.WithClientIP(testutil.NewRequest(t, http.MethodGet, "/api/geo"), "198.51.100.4")
	rr := testutil.DoRequest(r, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "198.51.100.4", det.ip)
	assert.Contains(t, rr.Body.String(), `"accurate":false`)
	assert.Equal(t, det.info, *testutil.UnmarshalResponse[geo.Info](t, rr))
}

func TestHandleDetect_PrivateAddressAsksForCaller(t *testing.T) {
	det := &recordingDetector{ip: "unset", info: geo.Info{IP: "203.0.113.1", Country: "NL"}}
	r := chi.NewRouter()
	New(det, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).Register(r)

	req := testutil.WithClientIP(testutil.NewRequest(t, http.MethodGet, "/api/geo"), "127.0.0.1")
	rr := testutil.DoRequest(r, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "", det.ip)
}
