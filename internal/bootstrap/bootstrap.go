// Package bootstrap provides dependency initialization for the proxy server
// and the CLI client.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maauso/videogen/internal/apiclient"
	"github.com/maauso/videogen/internal/cache"
	"github.com/maauso/videogen/internal/config"
	"github.com/maauso/videogen/internal/history"
	"github.com/maauso/videogen/internal/job"
	"github.com/maauso/videogen/internal/kv"
	"github.com/maauso/videogen/internal/media"
	"github.com/maauso/videogen/internal/prefs"
	"github.com/maauso/videogen/internal/provider"
	"github.com/maauso/videogen/internal/server"
	"github.com/maauso/videogen/internal/storage"
	"github.com/maauso/videogen/internal/upstream"
)

// NewServer builds the proxy HTTP handler.
func NewServer(cfg *config.Config, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	client := upstream.NewClient(
		upstream.WithBaseURL(cfg.UpstreamBaseURL),
		upstream.WithRateLimit(cfg.UpstreamRPS, cfg.UpstreamBurst),
	)
	handlers := server.NewHandlers(client, server.Keys{
		Veo3:  cfg.Veo3APIKey,
		Sora2: cfg.Sora2APIKey,
	}, logger)
	return server.NewRouter(handlers, logger, server.DefaultConfig())
}

// Client holds the initialized dependencies of the CLI client.
type Client struct {
	Registry   *provider.Registry
	Store      *kv.FileStore
	Cache      *cache.Cache
	History    *history.Store
	Prefs      *prefs.Prefs
	Controller *job.Controller
	Preparer   *media.Preparer
}

// Close stops every poller.
func (c *Client) Close() {
	c.Controller.Close()
}

// NewClient opens the local store and wires the job controller against the
// proxy at cfg.ProxyURL.
func NewClient(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...job.ControllerOption) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir, err := cfg.DataPath()
	if err != nil {
		return nil, err
	}
	store, err := kv.OpenFileStore(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	registry := provider.DefaultRegistry()
	videoCache := cache.New(store, cache.WithLogger(logger))
	hist := history.NewStore(store, history.WithLogger(logger))

	preparer, err := initPreparer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	ctrlOpts := append([]job.ControllerOption{
		job.WithPollInterval(cfg.PollInterval),
		job.WithRequestTimeout(cfg.RequestTimeout),
		job.WithLogger(logger),
	}, opts...)
	ctrl := job.NewController(registry, apiclient.New(cfg.ProxyURL), videoCache, hist, ctrlOpts...)

	return &Client{
		Registry:   registry,
		Store:      store,
		Cache:      videoCache,
		History:    hist,
		Prefs:      prefs.New(store, registry),
		Controller: ctrl,
		Preparer:   preparer,
	}, nil
}

// initPreparer creates the image pipeline. Images are published to S3 when
// a bucket is configured and inlined as data URLs otherwise.
func initPreparer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*media.Preparer, error) {
	var (
		temp storage.Storage
		host media.ImageHost
	)
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, cfg.S3())
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Debug("S3 image host configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		temp, host = s3Store, s3Store
	} else {
		localStore, err := storage.NewLocalStorage(cfg.TempDir)
		if err != nil {
			return nil, fmt.Errorf("create local storage: %w", err)
		}
		temp = localStore
	}

	encoder := media.NewFFmpegEncoder(cfg.FFmpegPath, temp)
	compressor := media.NewCompressor(encoder, media.CompressOptions{ThresholdBytes: cfg.ImageMaxBytes}, logger)
	return media.NewPreparer(compressor, host, logger), nil
}
