package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/videolytics/utm-tracker/internal/database"
	"github.com/videolytics/utm-tracker/internal/models"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	// ErrSlugTaken is returned when a caller-chosen pretty slug is already reserved.
	// Caller-chosen slugs are never silently mutated; picking another one is up to the caller.
	ErrSlugTaken = errors.New("pretty slug already taken")
	// ErrSlugRetriesExceeded is returned when the maximum number of retries for
	// generating a unique pretty slug is exceeded.
	ErrSlugRetriesExceeded = errors.New("maximum retries exceeded for generating pretty slug")
)

const (
	defaultUTMSource = "youtube"
	defaultUTMMedium = "video"

	slugAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	defaultSlugLength    = 7
	defaultRecordTimeout = 5 * time.Second

	maxSlugRetries = 5
)

// LinkRepository defines the interface for working with tracking links at the
// business logic layer.
type LinkRepository interface {
	// Create inserts a fully-built tracking link. The storage layer's unique
	// constraint on pretty_slug is the final arbiter for slug reservation;
	// a violation is reported as database.ErrSlugExists.
	Create(ctx context.Context, link *models.TrackingLink) (*models.TrackingLink, error)

	// GetByID retrieves a tracking link by its id.
	GetByID(ctx context.Context, id int64) (*models.TrackingLink, error)

	// GetActiveBySlug retrieves an active tracking link by its pretty slug.
	// Inactive and unknown slugs both yield database.ErrLinkNotFound.
	GetActiveBySlug(ctx context.Context, slug string) (*models.TrackingLink, error)

	// Deactivate marks the link inactive and advances updated_at. Idempotent.
	Deactivate(ctx context.Context, id int64) error

	// UpdateSlug replaces the link's pretty slug and advances updated_at.
	UpdateSlug(ctx context.Context, id int64, slug string) (*models.TrackingLink, error)

	// Delete removes the link and cascades deletion of all its click events.
	Delete(ctx context.Context, id int64) error
}

// ClickReader exposes the click history of a link for the stats surface.
type ClickReader interface {
	ListByLink(ctx context.Context, linkID int64, limit int) ([]*models.ClickEvent, error)
	CountByLink(ctx context.Context, linkID int64) (int64, error)
}

// ClickRecorder ingests a single visit for a resolved link.
type ClickRecorder interface {
	Record(ctx context.Context, linkID int64, visit models.VisitContext) (*models.ClickEvent, error)
}

// CreateLinkParams carries the caller-supplied fields for link creation.
// Zero-valued UTM source/medium take the "youtube"/"video" defaults and an
// empty campaign defaults to the video id.
type CreateLinkParams struct {
	VideoID        string
	DestinationURL string
	UTM            models.UTMParams
	// PrettySlug is an optional caller-chosen slug candidate. When empty,
	// a random slug is generated.
	PrettySlug string
}

// Options tunes the link service. Zero values fall back to defaults.
type Options struct {
	// SlugLength is the length of generated pretty slugs.
	SlugLength int
	// RedirectToTrackingURL makes ResolveAndRecord return the stored tracking
	// URL (with UTM parameters re-embedded) instead of the plain destination.
	RedirectToTrackingURL bool
	// RecordTimeout bounds the detached click-recording work spawned per visit.
	RecordTimeout time.Duration
}

// LinkService provides the core tracking-link operations: creation with slug
// allocation, lookup, redirect resolution with click recording, deactivation
// and cascading deletion.
type LinkService struct {
	linkRepo LinkRepository
	clicks   ClickReader
	recorder ClickRecorder
	logger   *slog.Logger

	slugLength            int
	redirectToTrackingURL bool
	recordTimeout         time.Duration

	wg sync.WaitGroup
}

// NewLinkService creates a new LinkService with the provided collaborators.
func NewLinkService(linkRepo LinkRepository, clicks ClickReader, recorder ClickRecorder, logger *slog.Logger, opts Options) *LinkService {
	if opts.SlugLength <= 0 {
		opts.SlugLength = defaultSlugLength
	}
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = defaultRecordTimeout
	}

	return &LinkService{
		linkRepo:              linkRepo,
		clicks:                clicks,
		recorder:              recorder,
		logger:                logger,
		slugLength:            opts.SlugLength,
		redirectToTrackingURL: opts.RedirectToTrackingURL,
		recordTimeout:         opts.RecordTimeout,
	}
}

// CreateLink composes the tracking URL, reserves a pretty slug and persists
// the link. Slug reservation is optimistic: the insert is attempted and the
// storage layer's unique constraint decides. A caller-chosen slug fails fast
// with ErrSlugTaken on collision; generated slugs are retried up to a bounded
// attempt count.
func (s *LinkService) CreateLink(ctx context.Context, params CreateLinkParams) (*models.TrackingLink, error) {
	const op = "service.LinkService.CreateLink"

	utm := params.UTM
	if utm.Source == "" {
		utm.Source = defaultUTMSource
	}
	if utm.Medium == "" {
		utm.Medium = defaultUTMMedium
	}
	if utm.Campaign == "" {
		utm.Campaign = params.VideoID
	}

	trackingURL, err := BuildTrackingURL(params.DestinationURL, utm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	link := &models.TrackingLink{
		VideoID:        params.VideoID,
		DestinationURL: params.DestinationURL,
		UTM:            utm,
		TrackingURL:    trackingURL,
	}

	if params.PrettySlug != "" {
		slug := params.PrettySlug
		link.PrettySlug = &slug

		created, err := s.linkRepo.Create(ctx, link)
		if err != nil {
			if errors.Is(err, database.ErrSlugExists) {
				return nil, fmt.Errorf("%s: %w", op, ErrSlugTaken)
			}

			return nil, fmt.Errorf("%s: failed to create link: %w", op, err)
		}

		return created, nil
	}

	for i := 0; i < maxSlugRetries; i++ {
		slug, err := gonanoid.Generate(slugAlphabet, s.slugLength)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate slug: %w", op, err)
		}

		link.PrettySlug = &slug

		created, err := s.linkRepo.Create(ctx, link)
		if err != nil {
			if errors.Is(err, database.ErrSlugExists) {
				continue
			}

			return nil, fmt.Errorf("%s: failed to create link: %w", op, err)
		}

		return created, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrSlugRetriesExceeded)
}

// GetLink retrieves a tracking link by id, active or not.
func (s *LinkService) GetLink(ctx context.Context, id int64) (*models.TrackingLink, error) {
	const op = "service.LinkService.GetLink"

	link, err := s.linkRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get link: %w", op, err)
	}

	return link, nil
}

// ResolveAndRecord resolves a slug (or, for non-aliased links, a numeric id)
// to the visitor-facing destination and triggers click recording for the
// visit. Recording is detached from the request lifecycle: it survives client
// disconnects and its failure never turns into a failed redirect.
func (s *LinkService) ResolveAndRecord(ctx context.Context, slugOrID string, visit models.VisitContext) (string, error) {
	const op = "service.LinkService.ResolveAndRecord"

	link, err := s.lookupActive(ctx, slugOrID)
	if err != nil {
		return "", fmt.Errorf("%s: failed to resolve link: %w", op, err)
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.recordTimeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		if _, err := s.recorder.Record(rctx, link.ID, visit); err != nil {
			s.logger.Error(
				"failed to record click",
				slog.Int64("link_id", link.ID),
				slog.Any("err", err),
			)
		}
	}()

	if s.redirectToTrackingURL {
		return link.TrackingURL, nil
	}

	return link.DestinationURL, nil
}

func (s *LinkService) lookupActive(ctx context.Context, slugOrID string) (*models.TrackingLink, error) {
	link, err := s.linkRepo.GetActiveBySlug(ctx, slugOrID)
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, database.ErrLinkNotFound) {
		return nil, err
	}

	id, convErr := strconv.ParseInt(slugOrID, 10, 64)
	if convErr != nil {
		return nil, err
	}

	link, err = s.linkRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !link.IsActive {
		return nil, database.ErrLinkNotFound
	}

	return link, nil
}

// DeactivateLink marks the link inactive. Its slug stops resolving, becoming
// indistinguishable from an unknown one.
func (s *LinkService) DeactivateLink(ctx context.Context, id int64) error {
	const op = "service.LinkService.DeactivateLink"

	if err := s.linkRepo.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("%s: failed to deactivate link: %w", op, err)
	}

	return nil
}

// DeleteLink removes the link and all of its click history. Destructive and
// meant for rare administrative use.
func (s *LinkService) DeleteLink(ctx context.Context, id int64) error {
	const op = "service.LinkService.DeleteLink"

	if err := s.linkRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("%s: failed to delete link: %w", op, err)
	}

	return nil
}

// RegenerateSlug replaces the link's pretty slug with a freshly generated one.
func (s *LinkService) RegenerateSlug(ctx context.Context, id int64) (*models.TrackingLink, error) {
	const op = "service.LinkService.RegenerateSlug"

	for i := 0; i < maxSlugRetries; i++ {
		slug, err := gonanoid.Generate(slugAlphabet, s.slugLength)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate slug: %w", op, err)
		}

		link, err := s.linkRepo.UpdateSlug(ctx, id, slug)
		if err != nil {
			if errors.Is(err, database.ErrSlugExists) {
				continue
			}

			return nil, fmt.Errorf("%s: failed to regenerate slug: %w", op, err)
		}

		return link, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrSlugRetriesExceeded)
}

// GetClicks returns the most recent click events for a link along with the
// total click count.
func (s *LinkService) GetClicks(ctx context.Context, linkID int64, limit int) ([]*models.ClickEvent, int64, error) {
	const op = "service.LinkService.GetClicks"

	if _, err := s.linkRepo.GetByID(ctx, linkID); err != nil {
		return nil, 0, fmt.Errorf("%s: failed to get link: %w", op, err)
	}

	clicks, err := s.clicks.ListByLink(ctx, linkID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: failed to list clicks: %w", op, err)
	}

	count, err := s.clicks.CountByLink(ctx, linkID)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: failed to count clicks: %w", op, err)
	}

	return clicks, count, nil
}

// Drain waits for all in-flight click recordings to finish. Called on shutdown.
func (s *LinkService) Drain() {
	s.wg.Wait()
}
