package model

// Scrobble is one completed listening event as stored locally.
// Timestamp is seconds since epoch and is unique across the store.
type Scrobble struct {
	Artist     string
	ArtistMBID string
	Album      string
	AlbumMBID  string
	Track      string
	TrackMBID  string
	Timestamp  int64
}

// Gap is a suspicious interval between two adjacent stored timestamps.
// Derived per run, never persisted.
type Gap struct {
	Newer   int64
	Older   int64
	Seconds int64
}
