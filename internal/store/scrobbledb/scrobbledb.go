package scrobbledb

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"lytter/internal/model"
)

// DB wraps the SQLite database holding the scrobble history.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil { return nil, err }
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil { return nil, err }
	db := &DB{sql: d}
	if err := db.migrate(); err != nil { _ = d.Close(); return nil, err }
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS musiclibrary (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  artist TEXT NOT NULL,
	  artist_mbid TEXT,
	  album TEXT,
	  album_mbid TEXT,
	  track TEXT NOT NULL,
	  track_mbid TEXT,
	  timestamp INTEGER UNIQUE NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_musiclibrary_artist ON musiclibrary(artist);
	`)
	return err
}

// InsertIfAbsent stores a scrobble unless one with the same timestamp already
// exists. The duplicate case is an expected outcome, reported through the
// returned bool rather than an error; an existing row is never overwritten.
func (d *DB) InsertIfAbsent(ctx context.Context, s model.Scrobble) (bool, error) {
	res, err := d.sql.ExecContext(ctx, `INSERT OR IGNORE INTO musiclibrary
		(artist, artist_mbid, album, album_mbid, track, track_mbid, timestamp)
		VALUES(?,?,?,?,?,?,?)`,
		s.Artist, s.ArtistMBID, s.Album, s.AlbumMBID, s.Track, s.TrackMBID, s.Timestamp)
	if err != nil { return false, err }
	n, err := res.RowsAffected()
	if err != nil { return false, err }
	return n == 1, nil
}

// Exists reports whether a scrobble with the given timestamp is stored.
func (d *DB) Exists(ctx context.Context, ts int64) (bool, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT 1 FROM musiclibrary WHERE timestamp = ?`, ts)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows { return false, nil }
		return false, err
	}
	return true, nil
}

// LatestTimestamp returns the newest stored timestamp, 0 when empty.
func (d *DB) LatestTimestamp(ctx context.Context) (int64, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM musiclibrary`)
	var ts sql.NullInt64
	if err := row.Scan(&ts); err != nil { return 0, err }
	if !ts.Valid { return 0, nil }
	return ts.Int64, nil
}

// OldestTimestamp returns the oldest stored timestamp, 0 when empty.
func (d *DB) OldestTimestamp(ctx context.Context) (int64, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT MIN(timestamp) FROM musiclibrary`)
	var ts sql.NullInt64
	if err := row.Scan(&ts); err != nil { return 0, err }
	if !ts.Valid { return 0, nil }
	return ts.Int64, nil
}

// TimestampsSince returns timestamps strictly newer than cutoff, newest first.
func (d *DB) TimestampsSince(ctx context.Context, cutoff int64) ([]int64, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT timestamp FROM musiclibrary WHERE timestamp > ? ORDER BY timestamp DESC`, cutoff)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil { return nil, err }
		out = append(out, ts)
	}
	return out, rows.Err()
}

// TimestampsForArtist returns all play timestamps for an artist, oldest first.
func (d *DB) TimestampsForArtist(ctx context.Context, artist string) ([]int64, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT timestamp FROM musiclibrary WHERE artist = ? ORDER BY timestamp`, artist)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil { return nil, err }
		out = append(out, ts)
	}
	return out, rows.Err()
}

// TrackCount is a track name with its play count.
type TrackCount struct {
	Track string
	Plays int
}

// TracksForArtist returns the artist's tracks with play counts, most played first.
func (d *DB) TracksForArtist(ctx context.Context, artist string) ([]TrackCount, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT track, COUNT(*) AS plays FROM musiclibrary WHERE artist = ? GROUP BY track ORDER BY plays DESC`, artist)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []TrackCount
	for rows.Next() {
		var tc TrackCount
		if err := rows.Scan(&tc.Track, &tc.Plays); err != nil { return nil, err }
		out = append(out, tc)
	}
	return out, rows.Err()
}

// ArtistPlayCounts returns every distinct artist with its play count.
func (d *DB) ArtistPlayCounts(ctx context.Context) (map[string]int, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT artist, COUNT(*) FROM musiclibrary GROUP BY artist`)
	if err != nil { return nil, err }
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var artist string
		var plays int
		if err := rows.Scan(&artist, &plays); err != nil { return nil, err }
		out[artist] = plays
	}
	return out, rows.Err()
}

// Stats summarizes the stored history.
type Stats struct {
	TotalScrobbles int
	UniqueArtists  int
	UniqueTracks   int
	UniqueAlbums   int
	Latest         time.Time
	Oldest         time.Time
}

func (d *DB) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := d.sql.QueryRowContext(ctx, `SELECT COUNT(*),
		COUNT(DISTINCT artist),
		COUNT(DISTINCT track),
		COUNT(DISTINCT CASE WHEN album != '' THEN album END),
		COALESCE(MAX(timestamp), 0),
		COALESCE(MIN(timestamp), 0)
		FROM musiclibrary`)
	var latest, oldest int64
	if err := row.Scan(&st.TotalScrobbles, &st.UniqueArtists, &st.UniqueTracks, &st.UniqueAlbums, &latest, &oldest); err != nil {
		return st, err
	}
	if latest > 0 { st.Latest = time.Unix(latest, 0).UTC() }
	if oldest > 0 { st.Oldest = time.Unix(oldest, 0).UTC() }
	return st, nil
}
