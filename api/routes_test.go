package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvsim104/plant"
)

type sessions int

func (s sessions) Sessions() int { return int(s) }

func newTestServer(t *testing.T) (*Server, *plant.Station, *prometheus.Registry) {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "pvsim_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	st := plant.NewStation(plant.Options{Seed: 1, Logger: l})
	return &Server{station: st, sessions: sessions(2), gatherer: reg, log: l, started: time.Now()}, st, reg
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.RegisterRoutes(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got HealthDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, 2, got.Sessions)
}

func TestPoints(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.RegisterRoutes()

	rec := do(t, h, http.MethodGet, "/api/points", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []PointDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 45)

	rec = do(t, h, http.MethodGet, "/api/points?group=environment", "")
	var env []PointDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Len(t, env, 6)
	assert.Equal(t, 100, env[0].Address)
	require.NotNil(t, env[0].Value)
	assert.Equal(t, 800.0, *env[0].Value)
	assert.Nil(t, env[0].LastReport)
}

func TestPoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.RegisterRoutes()

	rec := do(t, h, http.MethodGet, "/api/points/1002", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p PointDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "INV2_Status", p.Name)
	require.NotNil(t, p.State)
	assert.True(t, *p.State)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/points/2001", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/points/abc", "").Code)
}

func TestInverterCommand(t *testing.T) {
	s, st, _ := newTestServer(t)
	h := s.RegisterRoutes()

	rec := do(t, h, http.MethodPost, "/api/inverters/3/state", `{"running": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got CommandDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, CommandDTO{Inverter: 3, From: "RUNNING", To: "STOPPED"}, got)
	assert.False(t, st.Registry().Get(1003).State)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/inverters/4/state", `{"running": true}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/inverters/0/state", `{"running": true}`).Code)
}

func TestMetrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.RegisterRoutes(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pvsim_test_total 1")
}
