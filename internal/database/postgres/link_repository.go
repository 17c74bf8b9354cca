package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/videolytics/utm-tracker/internal/database"
	"github.com/videolytics/utm-tracker/internal/models"
)

type linkRecord struct {
	ID             int64          `db:"id"`
	VideoID        string         `db:"video_id"`
	DestinationURL string         `db:"destination_url"`
	UTMSource      string         `db:"utm_source"`
	UTMMedium      string         `db:"utm_medium"`
	UTMCampaign    string         `db:"utm_campaign"`
	UTMContent     sql.NullString `db:"utm_content"`
	UTMTerm        sql.NullString `db:"utm_term"`
	TrackingURL    string         `db:"tracking_url"`
	PrettySlug     sql.NullString `db:"pretty_slug"`
	IsActive       bool           `db:"is_active"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r *linkRecord) ToTrackingLink() *models.TrackingLink {
	link := &models.TrackingLink{
		ID:             r.ID,
		VideoID:        r.VideoID,
		DestinationURL: r.DestinationURL,
		UTM: models.UTMParams{
			Source:   r.UTMSource,
			Medium:   r.UTMMedium,
			Campaign: r.UTMCampaign,
			Content:  r.UTMContent.String,
			Term:     r.UTMTerm.String,
		},
		TrackingURL: r.TrackingURL,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}

	if r.PrettySlug.Valid {
		slug := r.PrettySlug.String
		link.PrettySlug = &slug
	}

	return link
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{
		db: db,
	}
}

func (r *LinkRepository) Create(ctx context.Context, link *models.TrackingLink) (*models.TrackingLink, error) {
	const op = "database.postgres.LinkRepository.Create"

	rec := new(linkRecord)
	query := `INSERT INTO utm_links(video_id, destination_url, utm_source, utm_medium, utm_campaign, utm_content, utm_term, tracking_url, pretty_slug)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query,
		link.VideoID,
		link.DestinationURL,
		link.UTM.Source,
		link.UTM.Medium,
		link.UTM.Campaign,
		nullString(link.UTM.Content),
		nullString(link.UTM.Term),
		link.TrackingURL,
		link.PrettySlug,
	)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrSlugExists)
		}

		return nil, fmt.Errorf("%s: failed to create link record: %w", op, err)
	}

	return rec.ToTrackingLink(), nil
}

func (r *LinkRepository) GetByID(ctx context.Context, id int64) (*models.TrackingLink, error) {
	const op = "database.postgres.LinkRepository.GetByID"

	rec := new(linkRecord)
	query := `SELECT * FROM utm_links WHERE id = $1`

	err := r.db.GetContext(ctx, rec, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.ToTrackingLink(), nil
}

// GetActiveBySlug only returns active links. An inactive slug is reported as
// not found, so visitors can't probe for deactivated links.
func (r *LinkRepository) GetActiveBySlug(ctx context.Context, slug string) (*models.TrackingLink, error) {
	const op = "database.postgres.LinkRepository.GetActiveBySlug"

	rec := new(linkRecord)
	query := `SELECT * FROM utm_links WHERE pretty_slug = $1 AND is_active`

	err := r.db.GetContext(ctx, rec, query, slug)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.ToTrackingLink(), nil
}

func (r *LinkRepository) Deactivate(ctx context.Context, id int64) error {
	const op = "database.postgres.LinkRepository.Deactivate"

	query := `UPDATE utm_links
		SET is_active = FALSE, updated_at = now()
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: failed to deactivate link record: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}

	return nil
}

func (r *LinkRepository) UpdateSlug(ctx context.Context, id int64, slug string) (*models.TrackingLink, error) {
	const op = "database.postgres.LinkRepository.UpdateSlug"

	rec := new(linkRecord)
	query := `UPDATE utm_links
		SET pretty_slug = $1, updated_at = now()
		WHERE id = $2
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, slug, id)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrSlugExists)
		}
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to update link record: %w", op, err)
	}

	return rec.ToTrackingLink(), nil
}

// Delete removes the link together with all of its click events in a single
// transaction, so no orphaned click rows can remain.
func (r *LinkRepository) Delete(ctx context.Context, id int64) error {
	const op = "database.postgres.LinkRepository.Delete"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM link_clicks WHERE utm_link_id = $1`, id); err != nil {
		return fmt.Errorf("%s: failed to delete click records: %w", op, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM utm_links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: failed to delete link record: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	return nil
}
