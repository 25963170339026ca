package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskmill/taskmill/pkg/monitor"
	"github.com/taskmill/taskmill/pkg/sched"
)

type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

func setupTestServer(t *testing.T) (*httptest.Server, *monitor.Monitor, *sched.Scheduler) {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)

	s, err := sched.New(sched.Config{Logger: quiet})
	require.NoError(t, err)
	_, err = s.Every("day").At("09:00").Do(func(ctx context.Context, args sched.Args) error {
		sched.Println(ctx, "daily ran")
		return nil
	}, nil)
	require.NoError(t, err)

	mon := monitor.New(s, monitor.Options{Name: "test-app", Logger: quiet})
	ts := httptest.NewServer(NewHandler(mon))
	t.Cleanup(ts.Close)
	return ts, mon, s
}

func TestHealthEndpoints(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("x-request-id"))

	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, "healthy", health.Status)
	require.Equal(t, "taskmill", health.Service)
	require.NotEmpty(t, health.Timestamp)

	live, err := http.Get(ts.URL + "/health/live")
	require.NoError(t, err)
	defer live.Body.Close()
	require.Equal(t, http.StatusOK, live.StatusCode)
}

func TestMonitorMountedUnderPrefix(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/@taskmonitor/json/all")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Success []map[string]any `json:"success"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Len(t, envelope.Success, 1)
}

func TestRerunRoundTrip(t *testing.T) {
	ts, mon, s := setupTestServer(t)

	var body bytes.Buffer
	require.NoError(t, json.NewEncoder(&body).Encode(map[string]any{
		"jobid":     0,
		"api_token": mon.Token(),
	}))
	resp, err := http.Post(ts.URL+"/@taskmonitor/rerun", "application/json", &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, true, envelope["success"])

	// Rerun workers are tracked, so Join leaves a completed record behind.
	s.Join()
	j, err := s.GetByID(0)
	require.NoError(t, err)
	rec := j.Record()
	require.NotNil(t, rec.End)
	require.Contains(t, rec.Log, "daily ran")
}

func TestTrailingSlashesStripped(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownRouteIs404(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
