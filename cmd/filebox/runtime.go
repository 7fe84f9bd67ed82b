package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"filebox/internal/auth"
	"filebox/internal/blobstore"
	"filebox/internal/config"
	"filebox/internal/store"
	"filebox/internal/telemetry"
	"filebox/internal/transfer"
)

// fileboxRuntime holds the storage and service graph shared by srv and the
// offline admin commands.
type fileboxRuntime struct {
	store     *store.Store
	chunks    blobstore.ChunkStore
	tokens    *auth.TokenManager
	files     *transfer.Service
	telemetry *telemetry.Provider
}

func openRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *fileboxRuntime, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	secret, ephemeral, err := cfg.TokenSecret()
	if err != nil {
		return nil, err
	}
	if ephemeral {
		logger.Warn("no auth.token_secret configured; using an ephemeral secret, issued tokens stop working on restart")
	}
	tokens, err := auth.NewTokenManager(secret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	rt := &fileboxRuntime{tokens: tokens}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	logger.Info("opening database", "path", cfg.DBPath)
	rt.store, err = store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	rt.chunks, err = openChunkStore(ctx, cfg, rt.store)
	if err != nil {
		return nil, err
	}
	logger.Info("chunk store ready", "backend", cfg.StorageBackend(), "compression", cfg.Storage.Compression)

	rt.telemetry, err = telemetry.New(ctx, telemetry.Config{
		ServiceName:    "filebox",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return nil, err
	}

	rt.files, err = transfer.NewService(auth.NewGate(tokens), rt.chunks, rt.store, transfer.Options{
		ChunkSize:      cfg.Storage.ChunkSizeBytes,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		Tracer:         rt.telemetry.Tracer(),
		Meter:          rt.telemetry.Meter(),
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func openChunkStore(ctx context.Context, cfg *config.Config, st *store.Store) (blobstore.ChunkStore, error) {
	compression, err := blobstore.ParseCompression(cfg.Storage.Compression)
	if err != nil {
		return nil, err
	}
	if cfg.StorageBackend() == config.BackendSQLite {
		return st.Blobs(compression), nil
	}
	backend, err := blobstore.NewBackend(ctx, cfg.BackendOptions())
	if err != nil {
		return nil, err
	}
	return blobstore.NewObjectStore(backend, compression)
}

func (rt *fileboxRuntime) Close(ctx context.Context) error {
	var errs []error
	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry.Shutdown(ctx))
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	return errors.Join(errs...)
}
