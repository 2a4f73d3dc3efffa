package gaps

import (
	"context"
	"errors"
	"testing"

	"lytter/internal/ingest"
	"lytter/internal/lastfm"
	"lytter/internal/model"
	"lytter/internal/store/scrobbledb"
)

func mustStore(t *testing.T, timestamps ...int64) *scrobbledb.DB {
	t.Helper()
	db, err := scrobbledb.Open(":memory:")
	if err != nil { t.Fatal(err) }
	t.Cleanup(func() { _ = db.Close() })
	for _, ts := range timestamps {
		if _, err := db.InsertIfAbsent(context.Background(), model.Scrobble{Artist: "a", Track: "t", Timestamp: ts}); err != nil {
			t.Fatal(err)
		}
	}
	return db
}

// windowClient serves tracks per requested window and records the windows it
// was asked for.
type windowClient struct {
	byFrom  map[int64][]lastfm.Track
	fail    map[int64]error
	windows []lastfm.Window
}

func (c *windowClient) RecentTracks(ctx context.Context, w lastfm.Window, page, limit int) (lastfm.Page, error) {
	c.windows = append(c.windows, w)
	if err, ok := c.fail[w.From]; ok {
		return lastfm.Page{}, err
	}
	return lastfm.Page{Tracks: c.byFrom[w.From], TotalPages: 1}, nil
}

func TestFindReportsOnlyThresholdBreaches(t *testing.T) {
	db := mustStore(t, 1000, 5000, 5100, 9000)
	found, err := Find(context.Background(), db, 0, 3600)
	if err != nil { t.Fatal(err) }
	if len(found) != 2 { t.Fatalf("found %d gaps, want 2: %v", len(found), found) }
	if found[0] != (model.Gap{Newer: 9000, Older: 5100, Seconds: 3900}) {
		t.Fatalf("first gap = %+v", found[0])
	}
	if found[1] != (model.Gap{Newer: 5000, Older: 1000, Seconds: 4000}) {
		t.Fatalf("second gap = %+v", found[1])
	}
}

func TestFindHonorsCutoff(t *testing.T) {
	db := mustStore(t, 1000, 5000, 9000)
	found, err := Find(context.Background(), db, 4000, 3600)
	if err != nil { t.Fatal(err) }
	// Only 9000 and 5000 are inside the lookback; 1000 is out of range.
	if len(found) != 1 || found[0].Newer != 9000 || found[0].Older != 5000 {
		t.Fatalf("found = %v", found)
	}
}

func TestBackfillDryRunApplySymmetry(t *testing.T) {
	db := mustStore(t, 1000, 9000)
	ctx := context.Background()
	g := model.Gap{Newer: 9000, Older: 1000, Seconds: 8000}
	fc := &windowClient{byFrom: map[int64][]lastfm.Track{
		1000: {
			{Artist: "a", Name: "t", Timestamp: 4000},
			{Artist: "a", Name: "t", Timestamp: 3000},
			{Artist: "a", Name: "t", Timestamp: 1000}, // already stored
		},
	}}
	filler := NewFiller(db, fc, &ingest.Guard{}, 200)

	dry, err := filler.Backfill(ctx, []model.Gap{g}, false)
	if err != nil { t.Fatal(err) }
	if dry.TotalInserted != 2 { t.Fatalf("dry run counted %d, want 2", dry.TotalInserted) }
	if exists, _ := db.Exists(ctx, 3000); exists {
		t.Fatal("dry run must not write")
	}

	applied, err := filler.Backfill(ctx, []model.Gap{g}, true)
	if err != nil { t.Fatal(err) }
	if applied.TotalInserted != dry.TotalInserted {
		t.Fatalf("apply inserted %d, dry run said %d", applied.TotalInserted, dry.TotalInserted)
	}

	again, err := filler.Backfill(ctx, []model.Gap{g}, false)
	if err != nil { t.Fatal(err) }
	if again.TotalInserted != 0 { t.Fatalf("second dry run counted %d, want 0", again.TotalInserted) }

	if len(fc.windows) == 0 || fc.windows[0] != (lastfm.Window{From: 1000, To: 9000}) {
		t.Fatalf("window = %+v", fc.windows)
	}
}

func TestBackfillIsolatesPerGapFailures(t *testing.T) {
	db := mustStore(t, 1000, 9000, 20000)
	ctx := context.Background()
	gapA := model.Gap{Newer: 9000, Older: 1000, Seconds: 8000}
	gapB := model.Gap{Newer: 20000, Older: 9000, Seconds: 11000}
	fc := &windowClient{
		byFrom: map[int64][]lastfm.Track{
			9000: {{Artist: "a", Name: "t", Timestamp: 15000}},
		},
		fail: map[int64]error{
			1000: &lastfm.TransientError{Page: 1, Err: errors.New("down")},
		},
	}
	filler := NewFiller(db, fc, &ingest.Guard{}, 200)

	rep, err := filler.Backfill(ctx, []model.Gap{gapA, gapB}, true)
	if err != nil { t.Fatal(err) }
	if rep.Failed != 1 { t.Fatalf("failed = %d, want 1", rep.Failed) }
	if rep.Results[0].Err == nil { t.Fatal("first gap should report its error") }
	if rep.TotalInserted != 1 { t.Fatalf("inserted %d, want 1", rep.TotalInserted) }
	if exists, _ := db.Exists(ctx, 15000); !exists {
		t.Fatal("second gap was not filled")
	}
}

func TestBackfillRespectsGuard(t *testing.T) {
	db := mustStore(t)
	g := &ingest.Guard{}
	filler := NewFiller(db, &windowClient{}, g, 200)
	if err := g.Acquire(); err != nil { t.Fatal(err) }
	defer g.Release()
	_, err := filler.Backfill(context.Background(), []model.Gap{{Newer: 2, Older: 1, Seconds: 1}}, false)
	if !errors.Is(err, ingest.ErrBusy) { t.Fatalf("want ErrBusy, got %v", err) }
}
