package ingest

import (
	"context"
	"errors"

	"lytter/internal/lastfm"
	"lytter/internal/logging"
	"lytter/internal/metrics"
)

// PageFunc receives each page's tracks in the order the remote returned them
// (newest first). Returning stop=true ends the walk before the page ceiling;
// the paginator itself knows nothing about why.
type PageFunc func(page int, tracks []lastfm.Track) (stop bool, err error)

// Walk reports how a pagination run went.
type Walk struct {
	TotalPages   int
	PagesFetched int
	PagesSkipped int
	StoppedEarly bool
}

// Collect fetches page 1 to learn the pagination extent, clamps the walk to
// min(totalPages, maxPages) when maxPages > 0, and visits pages sequentially.
// A transient failure on a non-first page is logged and skipped; any failure
// on the first page aborts, since totalPages is unknowable. A fatal decode
// failure on a later page also aborts: the envelope shape is broken, not the
// network.
func Collect(ctx context.Context, client lastfm.Client, w lastfm.Window, maxPages, pageSize int, visit PageFunc) (Walk, error) {
	var walk Walk
	first, err := client.RecentTracks(ctx, w, 1, pageSize)
	if err != nil {
		return walk, err
	}
	metrics.PagesFetched.Inc()
	walk.TotalPages = first.TotalPages
	walk.PagesFetched = 1

	ceiling := first.TotalPages
	if maxPages > 0 && maxPages < ceiling {
		ceiling = maxPages
	}

	stop, err := visit(1, first.Tracks)
	if err != nil { return walk, err }
	if stop {
		walk.StoppedEarly = true
		return walk, nil
	}

	for page := 2; page <= ceiling; page++ {
		p, err := client.RecentTracks(ctx, w, page, pageSize)
		if err != nil {
			var te *lastfm.TransientError
			if errors.As(err, &te) {
				logging.Warn("page_skipped", map[string]any{"page": page, "error": err.Error()})
				metrics.PagesSkipped.Inc()
				walk.PagesSkipped++
				continue
			}
			return walk, err
		}
		metrics.PagesFetched.Inc()
		walk.PagesFetched++
		stop, err := visit(page, p.Tracks)
		if err != nil { return walk, err }
		if stop {
			walk.StoppedEarly = true
			return walk, nil
		}
	}
	return walk, nil
}
