package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"lytter/internal/metrics"
	"lytter/internal/model"
)

// Window scopes a fetch to [From, To] epoch seconds. Zero bounds are open.
type Window struct {
	From int64
	To   int64
}

// Track is one event as reported by the remote API. Optional identifier
// fields are always empty strings, never absent, so downstream equality
// checks see stable types. NowPlaying tracks carry no usable timestamp.
type Track struct {
	Artist     string
	ArtistMBID string
	Album      string
	AlbumMBID  string
	Name       string
	MBID       string
	Timestamp  int64
	NowPlaying bool
}

// Scrobble converts a completed track to its stored form.
func (t Track) Scrobble() model.Scrobble {
	return model.Scrobble{
		Artist:     t.Artist,
		ArtistMBID: t.ArtistMBID,
		Album:      t.Album,
		AlbumMBID:  t.AlbumMBID,
		Track:      t.Name,
		TrackMBID:  t.MBID,
		Timestamp:  t.Timestamp,
	}
}

// Page is one page of recent tracks plus the total page count reported by
// the API for the requested window.
type Page struct {
	Tracks     []Track
	TotalPages int
}

// Client fetches one page of scrobbles for the configured user.
type Client interface {
	RecentTracks(ctx context.Context, w Window, page, limit int) (Page, error)
}

// Config carries everything the HTTP client needs; no ambient state.
type Config struct {
	APIKey      string
	User        string
	BaseURL     string
	Timeout     time.Duration
	RPS         float64
	Burst       int
	MaxAttempts int
	BaseBackoff time.Duration
}

// HTTPClient talks to the audioscrobbler user.getrecenttracks endpoint.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	user        string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://ws.audioscrobbler.com/2.0/"
	}
	if cfg.Timeout <= 0 { cfg.Timeout = 30 * time.Second }
	if cfg.RPS <= 0 { cfg.RPS = 2.0 }
	if cfg.Burst <= 0 { cfg.Burst = 5 }
	if cfg.MaxAttempts <= 0 { cfg.MaxAttempts = 5 }
	if cfg.BaseBackoff <= 0 { cfg.BaseBackoff = 500 * time.Millisecond }
	return &HTTPClient{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		user:        cfg.User,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
	}
}

// RecentTracks fetches one page of the user's listening history.
func (c *HTTPClient) RecentTracks(ctx context.Context, w Window, page, limit int) (Page, error) {
	q := url.Values{}
	q.Set("method", "user.getrecenttracks")
	q.Set("user", c.user)
	q.Set("api_key", c.apiKey)
	q.Set("limit", strconv.Itoa(clamp(limit, 1, 200)))
	q.Set("extended", "0")
	q.Set("page", strconv.Itoa(page))
	q.Set("format", "json")
	if w.From > 0 { q.Set("from", strconv.FormatInt(w.From, 10)) }
	if w.To > 0 { q.Set("to", strconv.FormatInt(w.To, 10)) }

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil { return Page{}, &FatalError{Err: err} }
	req.Header.Set("Accept", "application/json")
	if err := c.limiter.Wait(ctx); err != nil { return Page{}, err }
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Page{}, err
		}
		return Page{}, &TransientError{Page: page, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		// 429/5xx were already retried away; anything still >= 400 is an
		// API-level rejection, not a flaky page.
		return Page{}, &FatalError{Err: fmt.Errorf("lastfm api status %d", resp.StatusCode)}
	}
	out, err := decodePage(json.NewDecoder(resp.Body))
	if err != nil { return Page{}, &FatalError{Err: err} }
	return out, nil
}

// rawTrack mirrors the wire shape; uts and totalPages arrive as strings.
type rawTrack struct {
	Artist struct {
		Text string `json:"#text"`
		MBID string `json:"mbid"`
	} `json:"artist"`
	Album struct {
		Text string `json:"#text"`
		MBID string `json:"mbid"`
	} `json:"album"`
	Name string `json:"name"`
	MBID string `json:"mbid"`
	Date *struct {
		UTS string `json:"uts"`
	} `json:"date"`
	Attr *struct {
		NowPlaying string `json:"nowplaying"`
	} `json:"@attr"`
}

func decodePage(dec *json.Decoder) (Page, error) {
	var raw struct {
		RecentTracks *struct {
			Track json.RawMessage `json:"track"`
			Attr  struct {
				TotalPages string `json:"totalPages"`
			} `json:"@attr"`
		} `json:"recenttracks"`
		ErrorCode int    `json:"error"`
		Message   string `json:"message"`
	}
	if err := dec.Decode(&raw); err != nil { return Page{}, err }
	if raw.ErrorCode != 0 {
		return Page{}, fmt.Errorf("lastfm api error %d: %s", raw.ErrorCode, raw.Message)
	}
	if raw.RecentTracks == nil {
		return Page{}, errors.New("missing recenttracks envelope")
	}
	totalPages, err := strconv.Atoi(raw.RecentTracks.Attr.TotalPages)
	if err != nil {
		return Page{}, fmt.Errorf("bad totalPages %q", raw.RecentTracks.Attr.TotalPages)
	}
	tracks, err := decodeTracks(raw.RecentTracks.Track)
	if err != nil { return Page{}, err }
	return Page{Tracks: tracks, TotalPages: totalPages}, nil
}

// decodeTracks accepts the API's array form and its single-object form (a
// one-track page is serialized as a bare object).
func decodeTracks(raw json.RawMessage) ([]Track, error) {
	if len(raw) == 0 { return nil, nil }
	var list []rawTrack
	if err := json.Unmarshal(raw, &list); err != nil {
		var single rawTrack
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return nil, fmt.Errorf("bad track payload: %w", err)
		}
		list = []rawTrack{single}
	}
	out := make([]Track, 0, len(list))
	for _, rt := range list {
		t := Track{
			Artist:     rt.Artist.Text,
			ArtistMBID: rt.Artist.MBID,
			Album:      rt.Album.Text,
			AlbumMBID:  rt.Album.MBID,
			Name:       rt.Name,
			MBID:       rt.MBID,
		}
		if rt.Attr != nil && rt.Attr.NowPlaying == "true" {
			t.NowPlaying = true
		} else if rt.Date != nil {
			uts, err := strconv.ParseInt(rt.Date.UTS, 10, 64)
			if err != nil { return nil, fmt.Errorf("bad uts %q", rt.Date.UTS) }
			t.Timestamp = uts
		} else {
			// Neither completion date nor now-playing marker; the
			// envelope is not one we know how to store.
			return nil, errors.New("track without date or nowplaying marker")
		}
		out = append(out, t)
	}
	return out, nil
}

func clamp(v, min, max int) int { if v < min { return min }; if v > max { return max }; return v }

func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				lastErr = fmt.Errorf("lastfm api status %d", resp.StatusCode)
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				metrics.IncAPIRetry("recenttracks")
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 { wait = d }
					}
				}
				// jitter +/-20%
				jitter := time.Duration(float64(wait) * 0.2)
				if jitter > 0 {
					wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil { return nil, ctx.Err() }
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v", c.maxAttempts, lastErr)
}
