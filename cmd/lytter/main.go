package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lytter/internal/cmdlog"
	"lytter/internal/config"
	"lytter/internal/gaps"
	"lytter/internal/ingest"
	"lytter/internal/jobs"
	"lytter/internal/lastfm"
	"lytter/internal/metrics"
	"lytter/internal/search"
	"lytter/internal/store/scrobbledb"
	"lytter/internal/theme"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "update":
		cmdUpdate()
	case "gapcheck":
		cmdGapcheck()
	case "status":
		cmdStatus()
	case "search":
		cmdSearch()
	case "watch":
		cmdWatch()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: lytter <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init      Create a config file at ./lytter.yaml")
	fmt.Println("  update    Sync new scrobbles (use -full or -thorough for deeper runs)")
	fmt.Println("  gapcheck  Find suspicious gaps in recent history and optionally fill them")
	fmt.Println("  status    Show database totals and recency")
	fmt.Println("  search    Fuzzy search stored artists")
	fmt.Println("  watch     Run incremental updates on a schedule")
}

func newClient(cfg config.Config) *lastfm.HTTPClient {
	return lastfm.NewHTTPClient(lastfm.Config{
		APIKey:      cfg.Credentials.APIKey,
		User:        cfg.Account.Username,
		BaseURL:     cfg.API.BaseURL,
		Timeout:     time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		RPS:         cfg.API.RPS,
		Burst:       cfg.API.Burst,
		MaxAttempts: cfg.API.MaxAttempts,
		BaseBackoff: time.Duration(cfg.API.BaseBackoffMillis) * time.Millisecond,
	})
}

// loadOrDefault falls back to defaults when no config file exists; commands
// that never touch the network only need the storage path.
func loadOrDefault(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		cfg = config.Default()
		cfg.ResolveEnv()
	}
	return cfg
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./lytter.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdUpdate() {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	cfgPath := fs.String("config", "./lytter.yaml", "config path")
	full := fs.Bool("full", false, "walk the entire remote history")
	thorough := fs.Bool("thorough", false, "incremental with a higher page ceiling")
	pages := fs.Int("pages", 0, "limit number of pages to fetch (0 = no limit)")
	_ = fs.Parse(os.Args[2:])

	err := cmdlog.Run("update", func() error {
		cfg := loadOrDefault(*cfgPath)
		if err := cfg.Validate(); err != nil { return err }
		db, err := scrobbledb.Open(cfg.Storage.DBPath)
		if err != nil { return err }
		defer db.Close()

		mode := ingest.ModeIncremental
		switch {
		case *full:
			mode = ingest.ModeFull
		case *thorough:
			mode = ingest.ModeThorough
		}
		ctrl := ingest.NewController(db, newClient(cfg), &ingest.Guard{}, cfg.Sync)
		rep, err := ctrl.Run(context.Background(), ingest.Options{Mode: mode, PagesCap: *pages})
		if err != nil { return err }
		fmt.Printf("Mode: %s\n", mode)
		fmt.Printf("Pages fetched: %d (skipped %d of %d total)\n", rep.PagesFetched, rep.PagesSkipped, rep.TotalPages)
		fmt.Printf("New scrobbles: %d\n", rep.Inserted)
		fmt.Printf("Stopped: %s\n", rep.StopReason)
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func cmdGapcheck() {
	fs := flag.NewFlagSet("gapcheck", flag.ExitOnError)
	cfgPath := fs.String("config", "./lytter.yaml", "config path")
	hours := fs.Int("hours", 0, "hours back to check (default from config)")
	threshold := fs.Int("gap-threshold", 0, "gap threshold in seconds (default from config)")
	fix := fs.Bool("fix", false, "actually fill gaps (default is a dry run)")
	_ = fs.Parse(os.Args[2:])

	err := cmdlog.Run("gapcheck", func() error {
		cfg := loadOrDefault(*cfgPath)
		if err := cfg.Validate(); err != nil { return err }
		db, err := scrobbledb.Open(cfg.Storage.DBPath)
		if err != nil { return err }
		defer db.Close()

		lookbackHours := cfg.Gaps.LookbackHours
		if *hours > 0 { lookbackHours = *hours }
		thresholdSecs := int64(cfg.Gaps.ThresholdSeconds)
		if *threshold > 0 { thresholdSecs = int64(*threshold) }

		ctx := context.Background()
		cutoff := time.Now().Add(-time.Duration(lookbackHours) * time.Hour).Unix()
		found, err := gaps.Find(ctx, db, cutoff, thresholdSecs)
		if err != nil { return err }
		if len(found) == 0 {
			fmt.Println("No suspicious gaps found.")
			return nil
		}
		metrics.GapsFound.Add(float64(len(found)))
		fmt.Printf("Found %d suspicious gaps:\n", len(found))
		for i, g := range found {
			fmt.Printf("%d. %ds gap between %s and %s\n", i+1, g.Seconds,
				time.Unix(g.Newer, 0).UTC().Format(time.RFC3339),
				time.Unix(g.Older, 0).UTC().Format(time.RFC3339))
		}

		filler := gaps.NewFiller(db, newClient(cfg), &ingest.Guard{}, cfg.Sync.PageSize)
		rep, err := filler.Backfill(ctx, found, *fix)
		if err != nil { return err }
		for _, r := range rep.Results {
			if r.Err != nil {
				fmt.Printf("gap %d..%d: fetch failed: %v\n", r.Gap.Older, r.Gap.Newer, r.Err)
				continue
			}
			if *fix {
				fmt.Printf("gap %d..%d: added %d of %d fetched\n", r.Gap.Older, r.Gap.Newer, r.Inserted, r.Fetched)
			} else {
				fmt.Printf("gap %d..%d: would add %d of %d fetched\n", r.Gap.Older, r.Gap.Newer, r.Inserted, r.Fetched)
			}
		}
		if *fix {
			fmt.Printf("Added %d missing scrobbles (%d gaps failed)\n", rep.TotalInserted, rep.Failed)
		} else {
			fmt.Printf("Dry run: would add %d missing scrobbles (%d gaps failed); use -fix to apply\n", rep.TotalInserted, rep.Failed)
		}
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func cmdStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath := fs.String("config", "./lytter.yaml", "config path")
	_ = fs.Parse(os.Args[2:])

	err := cmdlog.Run("status", func() error {
		cfg := loadOrDefault(*cfgPath)
		db, err := scrobbledb.Open(cfg.Storage.DBPath)
		if err != nil { return err }
		defer db.Close()

		st, err := db.Stats(context.Background())
		if err != nil { return err }
		fmt.Println("Scrobble database status")
		fmt.Println("========================")
		fmt.Printf("Total scrobbles: %d\n", st.TotalScrobbles)
		fmt.Printf("Unique artists:  %d\n", st.UniqueArtists)
		fmt.Printf("Unique tracks:   %d\n", st.UniqueTracks)
		fmt.Printf("Unique albums:   %d\n", st.UniqueAlbums)
		if !st.Latest.IsZero() {
			fmt.Printf("Latest scrobble: %s\n", st.Latest.Format(time.RFC3339))
			behind := time.Since(st.Latest)
			switch {
			case behind > 24*time.Hour:
				fmt.Printf("Database is %d days behind\n", int(behind.Hours())/24)
			case behind > time.Hour:
				fmt.Printf("Database is %d hours behind\n", int(behind.Hours()))
			default:
				fmt.Println("Database is up to date")
			}
		}
		if !st.Oldest.IsZero() {
			fmt.Printf("Oldest scrobble: %s\n", st.Oldest.Format(time.RFC3339))
			spanDays := int(st.Latest.Sub(st.Oldest).Hours()) / 24
			if spanDays < 1 { spanDays = 1 }
			fmt.Printf("Data span: %d days\n", spanDays)
			fmt.Printf("Average: %.1f scrobbles/day\n", float64(st.TotalScrobbles)/float64(spanDays))
		}
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func cmdSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	cfgPath := fs.String("config", "./lytter.yaml", "config path")
	query := fs.String("q", "", "artist search query")
	limit := fs.Int("limit", 10, "maximum results")
	_ = fs.Parse(os.Args[2:])

	err := cmdlog.Run("search", func() error {
		cfg := loadOrDefault(*cfgPath)
		db, err := scrobbledb.Open(cfg.Storage.DBPath)
		if err != nil { return err }
		defer db.Close()

		matches, err := search.Search(context.Background(), db, *query, *limit)
		if err != nil { return err }
		if len(matches) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, m := range matches {
			fmt.Printf("%-40s plays=%-6d similarity=%.1f\n", m.Artist, m.Plays, m.Similarity)
		}
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func cmdWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cfgPath := fs.String("config", "./lytter.yaml", "config path")
	interval := fs.Int("interval", 0, "minutes between runs (default from config)")
	_ = fs.Parse(os.Args[2:])

	err := cmdlog.Run("watch", func() error {
		cfg := loadOrDefault(*cfgPath)
		if err := cfg.Validate(); err != nil { return err }
		db, err := scrobbledb.Open(cfg.Storage.DBPath)
		if err != nil { return err }
		defer db.Close()

		metrics.StartServer(cfg.Metrics.Addr)
		minutes := cfg.Sync.IntervalMinutes
		if *interval > 0 { minutes = *interval }
		if minutes <= 0 { minutes = 60 }
		theme.PrintBanner()
		fmt.Printf("Updating every %d minutes; Ctrl-C to stop.\n", minutes)
		ctrl := ingest.NewController(db, newClient(cfg), &ingest.Guard{}, cfg.Sync)
		return jobs.RunUpdateLoop(context.Background(), ctrl, time.Duration(minutes)*time.Minute)
	})
	if err != nil && err != context.Canceled {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}
