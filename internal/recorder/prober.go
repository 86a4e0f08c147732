package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Status is the tri-state result of a liveness probe. Unknown is never
// treated as offline: the scheduler simply skips the model for one cycle.
type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Prober checks whether a named stream is currently broadcasting.
type Prober interface {
	Probe(ctx context.Context, model string) Status
}

// Browser fingerprints the prober can masquerade as, keyed by profile name.
// The list and order used at runtime is configuration; unknown names fall
// back to the newest entry.
var profileUserAgents = map[string]string{
	"chrome131": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"chrome124": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"chrome120": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"chrome116": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36",
	"chrome110": "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36",
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// SiteProberConfig tunes the probe behaviour. Profile names and ordering are
// operational tuning, not core design.
type SiteProberConfig struct {
	BaseURL        string
	Profiles       []string
	AttemptTimeout time.Duration
	ProfileDelay   time.Duration // fixed inter-profile delay; throughput/stealth tradeoff
}

// SiteProber probes the streaming site directly. The primary strategy
// fetches the model page to obtain a session anti-forgery token and then
// asks the viewing-session endpoint for the room status; the fallback is a
// simpler public status endpoint. Both walk the same ordered profile list,
// and a blocking response (403) moves straight to the next profile.
type SiteProber struct {
	cfg SiteProberConfig
	log *zap.Logger
}

// NewSiteProber creates a prober against cfg.BaseURL.
func NewSiteProber(cfg SiteProberConfig, log *zap.Logger) *SiteProber {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 25 * time.Second
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = []string{"chrome131", "chrome124", "chrome120", "chrome116", "chrome110"}
	}
	return &SiteProber{cfg: cfg, log: log}
}

// Probe runs the primary strategy across all profiles, then the fallback
// strategy across all profiles. Exhausting both yields StatusUnknown.
func (p *SiteProber) Probe(ctx context.Context, model string) Status {
	for _, profile := range p.cfg.Profiles {
		if !p.interProfileDelay(ctx) {
			return StatusUnknown
		}
		status, err := p.probeViaSession(ctx, profile, model)
		if err != nil {
			p.log.Debug("primary probe attempt failed",
				zap.String("model", model), zap.String("profile", profile), zap.Error(err))
			continue
		}
		return status
	}

	for _, profile := range p.cfg.Profiles {
		if !p.interProfileDelay(ctx) {
			return StatusUnknown
		}
		status, err := p.probeViaStatusEndpoint(ctx, profile, model)
		if err != nil {
			p.log.Debug("fallback probe attempt failed",
				zap.String("model", model), zap.String("profile", profile), zap.Error(err))
			continue
		}
		return status
	}

	p.log.Debug("probe exhausted all profiles", zap.String("model", model))
	return StatusUnknown
}

func (p *SiteProber) interProfileDelay(ctx context.Context) bool {
	if p.cfg.ProfileDelay <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(p.cfg.ProfileDelay):
		return true
	}
}

// probeViaSession is the primary strategy: fetch the model page, pick up the
// csrf cookie, then request the viewing session and read room_status.
func (p *SiteProber) probeViaSession(ctx context.Context, profile, model string) (Status, error) {
	client, err := p.newClient()
	if err != nil {
		return StatusUnknown, err
	}
	pageURL := p.cfg.BaseURL + "/" + model + "/"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return StatusUnknown, err
	}
	p.setCommonHeaders(req, profile)
	resp, err := client.Do(req)
	if err != nil {
		return StatusUnknown, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return StatusUnknown, fmt.Errorf("blocked (403)")
	}

	csrf := cookieValue(client, pageURL, "csrftoken")

	form := url.Values{}
	form.Set("room_slug", model)
	form.Set("bandwidth", "high")
	apiReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/get_edge_hls_url_ajax/", strings.NewReader(form.Encode()))
	if err != nil {
		return StatusUnknown, err
	}
	p.setCommonHeaders(apiReq, profile)
	apiReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	apiReq.Header.Set("X-CSRFToken", csrf)
	apiReq.Header.Set("Referer", pageURL)
	apiReq.Header.Set("Origin", p.cfg.BaseURL)
	apiReq.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	apiReq.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	apiResp, err := client.Do(apiReq)
	if err != nil {
		return StatusUnknown, err
	}
	defer apiResp.Body.Close()
	if apiResp.StatusCode != http.StatusOK {
		return StatusUnknown, fmt.Errorf("session endpoint status %d", apiResp.StatusCode)
	}
	return decodeRoomStatus(apiResp.Body)
}

// probeViaStatusEndpoint is the fallback strategy: a plain GET against the
// public room context endpoint.
func (p *SiteProber) probeViaStatusEndpoint(ctx context.Context, profile, model string) (Status, error) {
	client, err := p.newClient()
	if err != nil {
		return StatusUnknown, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.cfg.BaseURL+"/api/chatvideocontext/"+model+"/", nil)
	if err != nil {
		return StatusUnknown, err
	}
	p.setCommonHeaders(req, profile)
	resp, err := client.Do(req)
	if err != nil {
		return StatusUnknown, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return StatusUnknown, fmt.Errorf("status endpoint status %d", resp.StatusCode)
	}
	return decodeRoomStatus(resp.Body)
}

func decodeRoomStatus(r io.Reader) (Status, error) {
	var payload struct {
		RoomStatus string `json:"room_status"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return StatusUnknown, fmt.Errorf("decode room status: %w", err)
	}
	if payload.RoomStatus == "public" {
		return StatusOnline, nil
	}
	return StatusOffline, nil
}

// newClient builds a fresh client per attempt so cookies never leak between
// masquerade profiles.
func (p *SiteProber) newClient() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{Jar: jar, Timeout: p.cfg.AttemptTimeout}, nil
}

func (p *SiteProber) setCommonHeaders(req *http.Request, profile string) {
	ua, ok := profileUserAgents[profile]
	if !ok {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

func cookieValue(client *http.Client, rawURL, name string) string {
	u, err := url.Parse(rawURL)
	if err != nil || client.Jar == nil {
		return ""
	}
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
