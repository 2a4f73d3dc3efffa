package scrobbledb

import (
	"context"
	"testing"

	"lytter/internal/model"
)

func mustOpen(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil { t.Fatal(err) }
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func scrobble(artist, track string, ts int64) model.Scrobble {
	return model.Scrobble{Artist: artist, Track: track, Timestamp: ts}
}

func TestInsertIfAbsentUniqueness(t *testing.T) {
	db := mustOpen(t)
	ctx := context.Background()

	ins, err := db.InsertIfAbsent(ctx, scrobble("Lüt", "Mersmak", 1000))
	if err != nil { t.Fatal(err) }
	if !ins { t.Fatal("first insert should report inserted") }

	// Same timestamp with different fields must not overwrite the row.
	ins, err = db.InsertIfAbsent(ctx, scrobble("Other", "Other", 1000))
	if err != nil { t.Fatal(err) }
	if ins { t.Fatal("duplicate timestamp should not insert") }

	counts, err := db.ArtistPlayCounts(ctx)
	if err != nil { t.Fatal(err) }
	if len(counts) != 1 || counts["Lüt"] != 1 {
		t.Fatalf("store mutated on duplicate insert: %v", counts)
	}
	exists, err := db.Exists(ctx, 1000)
	if err != nil || !exists { t.Fatalf("exists: %v %v", exists, err) }
}

func TestLatestAndOldestTimestamp(t *testing.T) {
	db := mustOpen(t)
	ctx := context.Background()

	ts, err := db.LatestTimestamp(ctx)
	if err != nil { t.Fatal(err) }
	if ts != 0 { t.Fatalf("empty store latest = %d, want 0", ts) }

	for _, v := range []int64{500, 2000, 1500} {
		if _, err := db.InsertIfAbsent(ctx, scrobble("A", "T", v)); err != nil { t.Fatal(err) }
	}
	ts, err = db.LatestTimestamp(ctx)
	if err != nil || ts != 2000 { t.Fatalf("latest = %d %v, want 2000", ts, err) }
	ts, err = db.OldestTimestamp(ctx)
	if err != nil || ts != 500 { t.Fatalf("oldest = %d %v, want 500", ts, err) }
}

func TestTimestampsSinceDescending(t *testing.T) {
	db := mustOpen(t)
	ctx := context.Background()
	for _, v := range []int64{100, 400, 200, 300} {
		if _, err := db.InsertIfAbsent(ctx, scrobble("A", "T", v)); err != nil { t.Fatal(err) }
	}
	got, err := db.TimestampsSince(ctx, 150)
	if err != nil { t.Fatal(err) }
	want := []int64{400, 300, 200}
	if len(got) != len(want) { t.Fatalf("got %v, want %v", got, want) }
	for i := range want {
		if got[i] != want[i] { t.Fatalf("got %v, want %v", got, want) }
	}
}

func TestArtistAggregates(t *testing.T) {
	db := mustOpen(t)
	ctx := context.Background()
	rows := []model.Scrobble{
		{Artist: "Lüt", Track: "Mersmak", Timestamp: 10},
		{Artist: "Lüt", Track: "Mersmak", Timestamp: 30},
		{Artist: "Lüt", Track: "Gass", Timestamp: 20},
		{Artist: "Kvelertak", Track: "Bruane Brenn", Album: "Meir", Timestamp: 40},
	}
	for _, s := range rows {
		if _, err := db.InsertIfAbsent(ctx, s); err != nil { t.Fatal(err) }
	}

	ts, err := db.TimestampsForArtist(ctx, "Lüt")
	if err != nil { t.Fatal(err) }
	if len(ts) != 3 || ts[0] != 10 || ts[2] != 30 {
		t.Fatalf("timestamps not ascending: %v", ts)
	}

	tracks, err := db.TracksForArtist(ctx, "Lüt")
	if err != nil { t.Fatal(err) }
	if len(tracks) != 2 || tracks[0].Track != "Mersmak" || tracks[0].Plays != 2 {
		t.Fatalf("unexpected tracks: %v", tracks)
	}

	st, err := db.Stats(ctx)
	if err != nil { t.Fatal(err) }
	if st.TotalScrobbles != 4 || st.UniqueArtists != 2 || st.UniqueTracks != 3 || st.UniqueAlbums != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.Latest.Unix() != 40 || st.Oldest.Unix() != 10 {
		t.Fatalf("unexpected stats range: %+v", st)
	}
}
