package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/videolytics/utm-tracker/internal/models"
)

const defaultEnrichTimeout = 2 * time.Second

// ClickRepository defines the persistence boundary for click events.
type ClickRepository interface {
	Create(ctx context.Context, click *models.ClickEvent) (*models.ClickEvent, error)
}

// Enricher derives country, device type and browser from a visit's raw
// context. Best-effort: any field of the result may be empty, and a non-nil
// error still comes with whatever was derived.
type Enricher interface {
	Enrich(ctx context.Context, ipAddress, userAgent string) (models.Enrichment, error)
}

// Recorder ingests raw visit events: it stamps them, enriches them within a
// bounded timeout and appends them to the click history. Enrichment failures
// degrade the event instead of failing it, so click capture never breaks the
// redirect experience.
type Recorder struct {
	clickRepo     ClickRepository
	enricher      Enricher
	enrichTimeout time.Duration
	logger        *slog.Logger
}

// NewRecorder creates a new Recorder. A non-positive timeout falls back to
// the default.
func NewRecorder(clickRepo ClickRepository, enricher Enricher, enrichTimeout time.Duration, logger *slog.Logger) *Recorder {
	if enrichTimeout <= 0 {
		enrichTimeout = defaultEnrichTimeout
	}

	return &Recorder{
		clickRepo:     clickRepo,
		enricher:      enricher,
		enrichTimeout: enrichTimeout,
		logger:        logger,
	}
}

// Record appends one click event for the link. The timestamp is assigned here,
// not taken from the caller.
func (r *Recorder) Record(ctx context.Context, linkID int64, visit models.VisitContext) (*models.ClickEvent, error) {
	const op = "service.Recorder.Record"

	click := &models.ClickEvent{
		LinkID:    linkID,
		ClickedAt: time.Now().UTC(),
		UserAgent: visit.UserAgent,
		IPAddress: visit.IPAddress,
		Referrer:  visit.Referrer,
	}

	ectx, cancel := context.WithTimeout(ctx, r.enrichTimeout)
	defer cancel()

	enrichment, err := r.enricher.Enrich(ectx, visit.IPAddress, visit.UserAgent)
	if err != nil {
		r.logger.Warn(
			"click enrichment failed",
			slog.Int64("link_id", linkID),
			slog.Any("err", err),
		)
	}
	click.Enrichment = enrichment

	created, err := r.clickRepo.Create(ctx, click)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to persist click: %w", op, err)
	}

	return created, nil
}
