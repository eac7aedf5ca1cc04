// Command vtslice pre-slices the images of texture sets into a
// virtual-texture slice cache.
//
// Usage:
//
//	vtslice -manifest sets.toml [-config vtex.toml] [-j 4] [-verify]
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/loov/hrtime"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/vtex"
	"github.com/gogpu/vtex/backend/headless"
)

func main() {
	var (
		manifestPath = flag.String("manifest", "", "TOML manifest of texture sets")
		configPath   = flag.String("config", "", "vtex TOML configuration (defaults if empty)")
		cacheRoot    = flag.String("cache", "", "override the configured cache root")
		jobs         = flag.Int("j", runtime.GOMAXPROCS(0), "texture sets sliced in parallel")
		verify       = flag.Bool("verify", false, "stream every slice through a headless manager")
		verbose      = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *manifestPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	vtex.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := vtex.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = vtex.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *cacheRoot != "" {
		cfg.CacheRoot = *cacheRoot
	}

	sets, err := loadManifest(*manifestPath)
	if err != nil {
		log.Fatalf("Failed to load manifest: %v", err)
	}

	adapter := headless.New()
	mgr, err := vtex.NewManager(adapter, cfg)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	defer mgr.Close()

	start := hrtime.Now()
	loaded, err := sliceSets(context.Background(), mgr, sets.Sets, *jobs)
	if err != nil {
		log.Fatalf("Failed to slice: %v", err)
	}
	log.Printf("Sliced %d texture sets into %s in %v\n", len(loaded), cfg.CacheRoot, hrtime.Since(start))

	if !*verify {
		return
	}

	start = hrtime.Now()
	var frame uint64
	var total verifyResult
	for name, set := range loaded {
		if set.Fallback != nil {
			log.Printf("%s: uses default textures: %v\n", name, set.Fallback)
			continue
		}
		for _, id := range set.Textures {
			if id < vtex.ReservedTextureCount {
				continue
			}
			res, err := verifyTexture(mgr, adapter, id, &frame)
			if err != nil {
				log.Fatalf("Failed to verify %s: %v", name, err)
			}
			total.Slices += res.Slices
			total.Uploaded += res.Uploaded
			total.Failed += res.Failed
		}
	}
	log.Printf("Verified %d slices (%d uploads) in %v\n", total.Slices, total.Uploaded, hrtime.Since(start))
	if total.Failed > 0 {
		log.Fatalf("%d slices failed to load", total.Failed)
	}
}

// sliceSets loads the sets with at most jobs loaders running at once.
func sliceSets(ctx context.Context, mgr *vtex.Manager, sets []vtex.TextureSetDesc, jobs int) (map[string]vtex.LoadedTextureSet, error) {
	var (
		mu     sync.Mutex
		loaded = make(map[string]vtex.LoadedTextureSet, len(sets))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, jobs))
	for _, desc := range sets {
		g.Go(func() error {
			res, err := mgr.LoadTextureSet(ctx, desc)
			if err != nil {
				return err
			}
			mu.Lock()
			loaded[desc.Name] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Flush the table staging so indices become final.
	if _, err := mgr.Update(0); err != nil {
		return nil, err
	}
	return loaded, nil
}
