package recorder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProber(baseURL string, profiles ...string) *SiteProber {
	if len(profiles) == 0 {
		profiles = []string{"chrome131"}
	}
	return NewSiteProber(SiteProberConfig{
		BaseURL:  baseURL,
		Profiles: profiles,
	}, nil)
}

// streamSite fakes the two site endpoints the prober talks to.
type streamSite struct {
	roomStatus    string // payload for both endpoints
	pageStatus    int    // page fetch response code
	sessionStatus int    // session endpoint response code
	gotCSRF       atomic.Value
	sessionHits   atomic.Int64
	fallbackHits  atomic.Int64
}

func (s *streamSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/get_edge_hls_url_ajax/", func(w http.ResponseWriter, r *http.Request) {
		s.sessionHits.Add(1)
		s.gotCSRF.Store(r.Header.Get("X-CSRFToken"))
		if s.sessionStatus != 0 && s.sessionStatus != http.StatusOK {
			w.WriteHeader(s.sessionStatus)
			return
		}
		w.Write([]byte(`{"room_status":"` + s.roomStatus + `","url":"https://edge/p.m3u8"}`))
	})
	mux.HandleFunc("/api/chatvideocontext/", func(w http.ResponseWriter, r *http.Request) {
		s.fallbackHits.Add(1)
		w.Write([]byte(`{"room_status":"` + s.roomStatus + `"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if s.pageStatus != 0 && s.pageStatus != http.StatusOK {
			w.WriteHeader(s.pageStatus)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok123"})
		w.Write([]byte("<html></html>"))
	})
	return mux
}

func TestSiteProberPublicRoomIsOnline(t *testing.T) {
	site := &streamSite{roomStatus: "public"}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	status := newTestProber(srv.URL).Probe(context.Background(), "alice")
	assert.Equal(t, StatusOnline, status)
	assert.Equal(t, "tok123", site.gotCSRF.Load(), "session call must carry the page's csrf token")
	assert.EqualValues(t, 0, site.fallbackHits.Load(), "fallback should not fire when primary succeeds")
}

func TestSiteProberNonPublicRoomIsOffline(t *testing.T) {
	for _, roomStatus := range []string{"offline", "private", "away", "hidden"} {
		site := &streamSite{roomStatus: roomStatus}
		srv := httptest.NewServer(site.handler())

		status := newTestProber(srv.URL).Probe(context.Background(), "alice")
		assert.Equal(t, StatusOffline, status, "room_status=%q", roomStatus)
		srv.Close()
	}
}

func TestSiteProberFallsBackWhenSessionEndpointFails(t *testing.T) {
	site := &streamSite{roomStatus: "public", sessionStatus: http.StatusInternalServerError}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	status := newTestProber(srv.URL).Probe(context.Background(), "alice")
	assert.Equal(t, StatusOnline, status)
	assert.Greater(t, site.fallbackHits.Load(), int64(0))
}

func TestSiteProberBlockedPageSkipsToNextProfile(t *testing.T) {
	site := &streamSite{roomStatus: "public", pageStatus: http.StatusForbidden}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	// Every primary attempt gets blocked at the page fetch, so the session
	// endpoint is never reached; the fallback still determines the status.
	status := newTestProber(srv.URL, "chrome131", "chrome124").Probe(context.Background(), "alice")
	assert.Equal(t, StatusOnline, status)
	assert.EqualValues(t, 0, site.sessionHits.Load())
}

func TestSiteProberUnreachableSiteIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // probe against a dead listener

	status := newTestProber(srv.URL).Probe(context.Background(), "alice")
	assert.Equal(t, StatusUnknown, status)
}

func TestSiteProberCancelledContextIsUnknown(t *testing.T) {
	site := &streamSite{roomStatus: "public"}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	status := newTestProber(srv.URL).Probe(ctx, "alice")
	require.Equal(t, StatusUnknown, status)
}
