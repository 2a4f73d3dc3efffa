package lastfm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(ts *httptest.Server) *HTTPClient {
	return NewHTTPClient(Config{
		APIKey:      "k",
		User:        "me",
		BaseURL:     ts.URL,
		RPS:         1000,
		Burst:       1000,
		MaxAttempts: 2,
		BaseBackoff: time.Millisecond,
	})
}

const pageBody = `{"recenttracks":{"track":[
  {"artist":{"#text":"Lüt","mbid":"amb"},"album":{"#text":"Pangea","mbid":""},"name":"Mersmak","mbid":"tmb","date":{"uts":"1700000100"}},
  {"artist":{"#text":"Kvelertak","mbid":""},"album":{"#text":"","mbid":""},"name":"Bruane Brenn","mbid":"","@attr":{"nowplaying":"true"}}
],"@attr":{"totalPages":"3"}}}`

func TestRecentTracksDecodesPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("method") != "user.getrecenttracks" || q.Get("user") != "me" || q.Get("api_key") != "k" {
			t.Errorf("unexpected query: %v", q)
		}
		if q.Get("from") != "100" || q.Get("to") != "200" {
			t.Errorf("window not forwarded: %v", q)
		}
		_, _ = w.Write([]byte(pageBody))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	p, err := c.RecentTracks(context.Background(), Window{From: 100, To: 200}, 1, 200)
	if err != nil { t.Fatal(err) }
	if p.TotalPages != 3 { t.Fatalf("totalPages = %d, want 3", p.TotalPages) }
	if len(p.Tracks) != 2 { t.Fatalf("tracks = %d, want 2", len(p.Tracks)) }

	first := p.Tracks[0]
	if first.Artist != "Lüt" || first.Name != "Mersmak" || first.Timestamp != 1700000100 {
		t.Fatalf("unexpected track: %+v", first)
	}
	if first.AlbumMBID != "" {
		t.Fatalf("missing mbid should map to empty string, got %q", first.AlbumMBID)
	}
	if !p.Tracks[1].NowPlaying || p.Tracks[1].Timestamp != 0 {
		t.Fatalf("nowplaying not flagged: %+v", p.Tracks[1])
	}
}

func TestRecentTracksSingleObjectTrack(t *testing.T) {
	body := `{"recenttracks":{"track":{"artist":{"#text":"Beck","mbid":""},"album":{"#text":"","mbid":""},"name":"Loser","mbid":"","date":{"uts":"42"}},"@attr":{"totalPages":"1"}}}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer ts.Close()

	p, err := newTestClient(ts).RecentTracks(context.Background(), Window{}, 1, 200)
	if err != nil { t.Fatal(err) }
	if len(p.Tracks) != 1 || p.Tracks[0].Artist != "Beck" || p.Tracks[0].Timestamp != 42 {
		t.Fatalf("single-object track not handled: %+v", p.Tracks)
	}
}

func TestRecentTracksRetriesOn429(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(pageBody))
	}))
	defer ts.Close()

	if _, err := newTestClient(ts).RecentTracks(context.Background(), Window{}, 1, 200); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if attempts < 2 { t.Fatalf("expected at least 2 attempts, got %d", attempts) }
}

func TestRecentTracksTransientOn5xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := newTestClient(ts).RecentTracks(context.Background(), Window{}, 4, 200)
	var te *TransientError
	if !errors.As(err, &te) { t.Fatalf("want TransientError, got %v", err) }
	if te.Page != 4 { t.Fatalf("page = %d, want 4", te.Page) }
}

func TestRecentTracksFatalOnAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":6,"message":"User not found"}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts).RecentTracks(context.Background(), Window{}, 1, 200)
	var fe *FatalError
	if !errors.As(err, &fe) { t.Fatalf("want FatalError, got %v", err) }
}

func TestRecentTracksFatalOnBadEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"unexpected":true}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts).RecentTracks(context.Background(), Window{}, 1, 200)
	var fe *FatalError
	if !errors.As(err, &fe) { t.Fatalf("want FatalError, got %v", err) }
}
