package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/mfcctl/internal/errors"
	"codeberg.org/mutker/mfcctl/internal/logger"
	"codeberg.org/mutker/mfcctl/internal/mfc"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation
type noopCollector struct{}

func NewService(cfg Config) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If the archive is disabled, return a no-op collector
	if !cfg.Enabled {
		logger.Debug().Msg("Sample archive disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	repo, err := NewRepository(cfg)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to create sample repository")
		return nil, err
	}

	logger.Debug().
		Str("db_path", cfg.DBPath).
		Bool("enabled", cfg.Enabled).
		Msg("Sample archive service initialized")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) Record(ctx context.Context, at time.Time, batch []*mfc.Sample) error {
	errFactory := errors.New()

	if len(batch) == 0 {
		return errFactory.New(ErrInvalidSamples)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(at, batch); err != nil {
			return errFactory.Wrap(ErrSampleCollection, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}
	return nil
}

func (*noopCollector) Record(_ context.Context, _ time.Time, _ []*mfc.Sample) error {
	return nil
}

func (*noopCollector) Close() error {
	return nil
}
