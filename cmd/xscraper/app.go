package main

import (
	"fmt"
	"time"

	"xscraper/internal/archive"
	"xscraper/internal/metrics"
	"xscraper/pkg/auth"
	"xscraper/pkg/config"
	"xscraper/pkg/extractor"
	"xscraper/pkg/fetcher"
	"xscraper/pkg/logger"
	"xscraper/pkg/ratelimit"
	"xscraper/pkg/retry"
)

// app holds the wired collaborators shared by fetch and batch.
type app struct {
	cfg     *config.Config
	runner  *fetcher.Runner
	archive *archive.Store
}

func (a *app) close() {
	if a.archive != nil {
		a.archive.Close()
	}
}

// newApp loads configuration, initializes logging and wires the
// session runner. extractorBin and authToken are flag overrides and
// may be empty.
func newApp(flags map[string]interface{}, extractorBin, authToken, profile string) (*app, error) {
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	log := logger.GetLogger()

	token, err := resolveToken(cfg, authToken, profile)
	if err != nil {
		return nil, err
	}
	cfg.Auth.Token = token

	binPath, err := extractor.ResolveBinary(extractorBin)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	ext := extractor.NewRunner(binPath, log, limiter)

	path := cfg.Archive.Path
	if path == "" {
		if path, err = archive.DefaultPath(); err != nil {
			return nil, err
		}
	}
	store, err := archive.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	backoff := retry.DefaultExponentialBackoff()
	if cfg.RateLimit.RetryDelay > 0 {
		backoff.BaseDelay = cfg.RateLimit.RetryDelay
	}
	runner := fetcher.NewRunner(ext, log, fetcher.Options{
		Archiver:   store,
		MaxRetries: cfg.RateLimit.MaxRetries,
		Backoff:    backoff,
	})

	metrics.StartServer(cfg.Metrics.Addr)

	return &app{cfg: cfg, runner: runner, archive: store}, nil
}

// resolveToken picks the auth token: flag, then config, then the
// stored profile. An empty token means guest mode.
func resolveToken(cfg *config.Config, flagToken, flagProfile string) (string, error) {
	if flagToken != "" {
		return flagToken, nil
	}
	if cfg.Auth.Token != "" {
		return cfg.Auth.Token, nil
	}

	profile := flagProfile
	if profile == "" {
		profile = cfg.Auth.Profile
	}

	mgr, err := auth.NewManager()
	if err != nil {
		return "", nil
	}
	token, err := mgr.Token(profile)
	if err != nil {
		// no stored credential, fall through to guest mode
		return "", nil
	}
	return token, nil
}
