package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/plumefeed/plume/internal/cache"
	"github.com/plumefeed/plume/internal/config"
	"github.com/plumefeed/plume/internal/feed"
	"github.com/plumefeed/plume/internal/ops"
	"github.com/plumefeed/plume/internal/profile"
	"github.com/plumefeed/plume/internal/source"
	"github.com/plumefeed/plume/internal/thread"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		configPath  = flag.String("config", "", "Path to configuration file")
		feedArg     = flag.String("feed", "global", "Feed to follow: global, tag:<tag>, author:<pubkey>")
		threadArg   = flag.String("thread", "", "Load the thread around an event id instead of a feed")
		stream      = flag.Bool("stream", false, "Also stream live items for the selected feed")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("plume %s (%s)\n", version, commit)
		os.Exit(0)
	}

	if *configPath == "" {
		fmt.Println("plume - Nostr feed synchronization and caching engine")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  plume --config <path> [--feed global|tag:<tag>|author:<pubkey>]")
		fmt.Println("  plume --config <path> --thread <event-id>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *feedArg, *threadArg, *stream); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, feedArg, threadArg string, stream bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := ops.NewLogger(&cfg.Logging)
	log.Info("starting plume", "version", version, "cache_engine", cfg.Caching.Engine)

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	src := source.New(ctx, &cfg.Relays, cfg.Identity.Nsec, log)
	profileTTL := time.Duration(cfg.Feeds.TTL.Profile) * time.Second
	batcher := profile.NewBatcher(src, store, profileTTL, cfg.Profiles.BatchLimit, log)

	if threadArg != "" {
		return runThread(ctx, cfg, src, store, batcher, log, threadArg)
	}

	scope, err := parseScope(feedArg)
	if err != nil {
		return err
	}

	manager := feed.NewManager(src, store, batcher, cfg.Feeds, log)
	sync := manager.Feed(scope)

	sync.Subscribe(func(st feed.State) {
		log.Info("feed state",
			"phase", st.Phase,
			"items", len(st.Items),
			"pending", st.PendingCount,
			"has_more", st.HasMore,
			"refreshing", st.IsRefreshingInBackground)
	})

	sync.Load(ctx)

	if stream {
		live, err := src.Stream(ctx, scope.Filter())
		if err != nil {
			return fmt.Errorf("failed to open live stream: %w", err)
		}
		go func() {
			for item := range live {
				log.Info("live item",
					"id", item.ID,
					"author", profile.TruncatedLabel(item.AuthorID))
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
	return nil
}

func runThread(ctx context.Context, cfg *config.Config, src *source.RelaySource, store cache.Store, batcher *profile.Batcher, log *ops.Logger, targetID string) error {
	ttl := time.Duration(cfg.Feeds.TTL.Global) * time.Second
	rec := thread.NewReconstructor(targetID, src, store, batcher, cfg.Threads, ttl, log)

	if err := rec.Load(ctx); err != nil {
		return err
	}

	st := rec.State()
	if st.Root != nil {
		log.Info("thread root", "id", st.Root.ID, "author", profile.TruncatedLabel(st.Root.AuthorID))
	}
	for _, entry := range st.Entries {
		indent := strings.Repeat("  ", entry.DisplayDepth)
		fmt.Printf("%s- %s: %.80s\n", indent, profile.TruncatedLabel(entry.Item.AuthorID), entry.Item.Content)
	}
	return nil
}

func buildStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.Caching.Engine {
	case "redis":
		store, err := cache.NewRedis(cfg.Caching.RedisURL, cfg.Caching.StaleGraceRatio)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		return store, nil
	default:
		store := cache.NewMemory(cfg.Caching.StaleGraceRatio)
		store.StartJanitor(ctx, time.Minute)
		return store, nil
	}
}

func parseScope(arg string) (feed.Scope, error) {
	switch {
	case arg == "global":
		return feed.Global(), nil
	case strings.HasPrefix(arg, "tag:"):
		return feed.Tag(strings.TrimPrefix(arg, "tag:")), nil
	case strings.HasPrefix(arg, "author:"):
		return feed.Author(strings.TrimPrefix(arg, "author:")), nil
	default:
		return feed.Scope{}, fmt.Errorf("unknown feed: %s", arg)
	}
}
