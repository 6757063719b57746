// warc-import indexes WARC files already on local disk, in place, without
// copying their bytes through the record host. Intended for trusted bulk
// imports; resulting collections are always published.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/webarchive/backend/internal/config"
	"github.com/webarchive/backend/internal/domain"
	"github.com/webarchive/backend/internal/importer"
	"github.com/webarchive/backend/internal/index"
	"github.com/webarchive/backend/internal/replay"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "configuration file")
		user       = flag.String("user", "", "user to import under (required)")
		coll       = flag.String("coll", "", "existing collection to import into (default: per-archive)")
	)
	flag.Parse()

	if *user == "" || flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: warc-import -user USER [-coll COLL] FILE...\n")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "creating directories: %v\n", err)
		os.Exit(1)
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "connecting to redis at %s: %v\n", cfg.Redis.Addr, err)
		os.Exit(1)
	}

	duck, err := index.OpenDuckIndex(cfg.Storage.IndexPath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening local index: %v\n", err)
		os.Exit(1)
	}
	defer duck.Close()

	store := domain.NewStore(rdb, log)
	tracker := importer.NewTracker(rdb, cfg.Upload.StatusExpireSeconds, log)
	inplace := func(t *importer.Tracker, path string) importer.Transport {
		return importer.NewInplaceTransport(duck, t, path, log)
	}
	im := importer.NewImporter(cfg, store, tracker, replay.NewLocator(nil), nil, inplace, log)

	exitCode := 0
	for _, path := range flag.Args() {
		result, err := im.ImportFile(ctx, *user, path, *coll)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			exitCode = 1
			continue
		}
		fmt.Printf("%s -> collection %q (upload %s)\n", path, result.Coll, result.UploadID)
	}
	os.Exit(exitCode)
}
