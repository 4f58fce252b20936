package health

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
	"github.com/IbrahimO9/discord-music-bot/pkg/metrics"
)

type staticSessions int

func (s staticSessions) Len() int { return int(s) }

func TestRoutes(t *testing.T) {
	m := metrics.NewMetrics()
	m.IncCounter("track_started")
	srv := httptest.NewServer(NewServer("0", staticSessions(2), m, logger.Nop()).Router())
	defer srv.Close()

	t.Run("root banner", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK || string(body) != banner {
			t.Errorf("GET / = %d %q", resp.StatusCode, body)
		}
	})

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var got healthResponse
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got.Status != "ok" || got.Sessions != 2 {
			t.Errorf("healthz = %+v", got)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var got metrics.Summary
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got.Counters["track_started"] != 1 {
			t.Errorf("counters = %v", got.Counters)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/healthz", "text/plain", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("POST /healthz = %d", resp.StatusCode)
		}
	})
}

func TestMetricsDisabled(t *testing.T) {
	m := metrics.NewMetrics()
	m.Disable()
	rec := httptest.NewRecorder()
	NewServer("0", nil, m, logger.Nop()).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
