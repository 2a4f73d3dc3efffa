package ingest

import (
	"context"

	"lytter/internal/config"
	"lytter/internal/lastfm"
	"lytter/internal/logging"
	"lytter/internal/metrics"
	"lytter/internal/store/scrobbledb"
)

// Mode selects how far a sync run walks the remote history.
type Mode int

const (
	// ModeIncremental walks a small prefix of the newest pages and stops
	// early once the fetched data clearly overlaps what is stored.
	ModeIncremental Mode = iota
	// ModeThorough is incremental with a higher page ceiling.
	ModeThorough
	// ModeFull walks every page with no overlap heuristic.
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeThorough:
		return "thorough"
	default:
		return "incremental"
	}
}

// Options control a single sync run.
type Options struct {
	Mode Mode
	// PagesCap further limits the walk when > 0.
	PagesCap int
}

// Report summarizes a sync run.
type Report struct {
	Inserted     int
	TotalPages   int
	PagesFetched int
	PagesSkipped int
	StopReason   string
}

// Controller drives sync runs against one store.
type Controller struct {
	store  *scrobbledb.DB
	client lastfm.Client
	guard  *Guard
	cfg    config.SyncConfig
}

func NewController(store *scrobbledb.DB, client lastfm.Client, guard *Guard, cfg config.SyncConfig) *Controller {
	if cfg.PageSize <= 0 { cfg.PageSize = 200 }
	if cfg.IncrementalPages <= 0 { cfg.IncrementalPages = 5 }
	if cfg.ThoroughPages <= 0 { cfg.ThoroughPages = 20 }
	if cfg.ExistingRunThreshold <= 0 { cfg.ExistingRunThreshold = 50 }
	return &Controller{store: store, client: client, guard: guard, cfg: cfg}
}

// Run executes one sync. Every newly discovered event is durably inserted as
// it is seen, so an interrupted run leaves the store valid and a re-run picks
// up where it left off.
func (c *Controller) Run(ctx context.Context, opts Options) (Report, error) {
	if err := c.guard.Acquire(); err != nil {
		return Report{}, err
	}
	defer c.guard.Release()

	var rep Report
	incremental := opts.Mode != ModeFull

	// High-water mark before the run; the event-granularity stop only fires
	// for events at or below it.
	latest, err := c.store.LatestTimestamp(ctx)
	if err != nil { return rep, err }

	maxPages := opts.PagesCap
	if incremental {
		ceiling := c.cfg.IncrementalPages
		if opts.Mode == ModeThorough {
			ceiling = c.cfg.ThoroughPages
		}
		if maxPages <= 0 || maxPages > ceiling {
			maxPages = ceiling
		}
	}

	consecutiveExisting := 0
	visit := func(page int, tracks []lastfm.Track) (bool, error) {
		pageNew := 0
		for _, t := range tracks {
			if t.NowPlaying {
				continue
			}
			inserted, err := c.store.InsertIfAbsent(ctx, t.Scrobble())
			if err != nil { return false, err }
			if !inserted {
				consecutiveExisting++
				// A run of existing events newer than the high-water mark
				// can happen when the remote briefly perturbs ordering; only
				// older-or-equal duplicates count as evidence we are done.
				if consecutiveExisting >= c.cfg.ExistingRunThreshold &&
					incremental && latest > 0 && t.Timestamp <= latest {
					rep.StopReason = "existing-run"
					return true, nil
				}
				continue
			}
			consecutiveExisting = 0
			pageNew++
			rep.Inserted++
			metrics.ScrobblesInserted.Inc()
		}
		if incremental && pageNew == 0 {
			rep.StopReason = "page-without-new"
			return true, nil
		}
		return false, nil
	}

	walk, err := Collect(ctx, c.client, lastfm.Window{}, maxPages, c.cfg.PageSize, visit)
	rep.TotalPages = walk.TotalPages
	rep.PagesFetched = walk.PagesFetched
	rep.PagesSkipped = walk.PagesSkipped
	if err != nil {
		return rep, err
	}
	if rep.StopReason == "" {
		rep.StopReason = "pages-exhausted"
	}
	logging.Info("sync_done", map[string]any{
		"mode":     opts.Mode.String(),
		"inserted": rep.Inserted,
		"pages":    rep.PagesFetched,
		"skipped":  rep.PagesSkipped,
		"stop":     rep.StopReason,
	})
	return rep, nil
}
