package main

import (
	"context"
	"fmt"

	"github.com/MrCodeEU/facetrack/pkg/config"
	"github.com/MrCodeEU/facetrack/pkg/logging"
	"github.com/MrCodeEU/facetrack/pkg/recognition"
	"github.com/MrCodeEU/facetrack/pkg/roster"
	"github.com/MrCodeEU/facetrack/pkg/storage"
	"github.com/MrCodeEU/facetrack/pkg/storage/postgres"
	"github.com/MrCodeEU/facetrack/pkg/tracker"
)

// backend bundles the roster store and attendance sinks for the
// configured storage backend.
type backend struct {
	store roster.Store
	sink  storage.Sink
	csv   *storage.CSVSink
	// events and pool are set for the postgres backend only.
	events *postgres.Sink
	pool   *postgres.Pool
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	csvSink, err := storage.NewCSVSink(cfg.Storage.AttendanceDir, loc)
	if err != nil {
		return nil, err
	}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		logging.Info("Connecting to PostgreSQL database...")
		pool, err := postgres.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		events := postgres.NewSink(pool)
		return &backend{
			store:  postgres.NewRosterStore(pool),
			sink:   storage.MultiSink{csvSink, events},
			csv:    csvSink,
			events: events,
			pool:   pool,
		}, nil

	default:
		store, err := storage.NewFileStore(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
		if err != nil {
			return nil, err
		}
		return &backend{store: store, sink: csvSink, csv: csvSink}, nil
	}
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

// newExtractor loads the dlib models.
func newExtractor(cfg *config.Config) (*recognition.DlibExtractor, error) {
	ex := recognition.NewDlibExtractor()
	ex.SetUseCNN(cfg.Recognition.UseCNN)
	if err := ex.LoadModels(cfg.Recognition.ModelPath); err != nil {
		return nil, fmt.Errorf("%w (run 'facetrack models download' first)", err)
	}
	return ex, nil
}

// loadRoster creates a roster backed by b and loads the stored identities.
// ex may be nil for commands that never detect faces.
func loadRoster(ctx context.Context, b *backend, ex recognition.Extractor) (*roster.Roster, error) {
	r := roster.New(ex, b.store)
	if err := r.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	return r, nil
}

// newTracker builds a tracker from the configuration. ex may be nil for
// commands that never process frames.
func newTracker(cfg *config.Config, r *roster.Roster, ex recognition.Extractor, sink storage.Sink) (*tracker.Tracker, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	opts := tracker.Options{
		Roster:        r,
		Matcher:       recognition.NewMatcher(cfg.Recognition.Threshold),
		Mode:          cfg.Attendance.Mode,
		Location:      loc,
		Cooldown:      cfg.CooldownDuration(),
		Sink:          sink,
		MaxFrameWidth: cfg.Recognition.MaxFrameWidth,
	}
	if ex != nil {
		opts.Extractor = ex
	}
	return tracker.New(opts)
}
