package service

import (
	"context"
	"time"

	"evocrm/internal/constants"

	"github.com/sirupsen/logrus"
)

// RetentionStore deletes messages and their attachments past the retention
// window.
type RetentionStore interface {
	CleanupOldMessages(retentionDays int) error
}

// MediaCleaner removes stale files from the media cache.
type MediaCleaner interface {
	CleanupOldFiles(maxAge time.Duration) error
}

// Scheduler runs the retention cleanup on a fixed interval. A retention of
// zero days disables message deletion; media files are still aged out.
type Scheduler struct {
	store         RetentionStore
	media         MediaCleaner
	retentionDays int
	intervalHours int
	logger        *logrus.Logger
	stopCh        chan struct{}
}

func NewScheduler(store RetentionStore, media MediaCleaner, retentionDays, intervalHours int, logger *logrus.Logger) *Scheduler {
	if intervalHours <= 0 {
		intervalHours = constants.DefaultCleanupIntervalHours
	}
	return &Scheduler{
		store:         store,
		media:         media,
		retentionDays: retentionDays,
		intervalHours: intervalHours,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.intervalHours) * time.Hour)
	defer ticker.Stop()

	s.logger.Info("Starting cleanup scheduler")

	s.runCleanup()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runCleanup() {
	if s.retentionDays <= 0 {
		s.logger.Debug("Retention disabled, skipping message cleanup")
	} else {
		s.logger.WithField("retentionDays", s.retentionDays).Info("Running scheduled cleanup")
		if err := s.store.CleanupOldMessages(s.retentionDays); err != nil {
			s.logger.WithError(err).Error("Failed to cleanup old messages")
		}
	}

	if s.media != nil && s.retentionDays > 0 {
		maxAge := time.Duration(s.retentionDays) * 24 * time.Hour
		if err := s.media.CleanupOldFiles(maxAge); err != nil {
			s.logger.WithError(err).Error("Failed to cleanup media cache")
		}
	}
}
