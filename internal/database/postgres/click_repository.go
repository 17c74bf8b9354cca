package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/videolytics/utm-tracker/internal/models"
)

type clickRecord struct {
	ID         int64          `db:"id"`
	UTMLinkID  int64          `db:"utm_link_id"`
	ClickedAt  time.Time      `db:"clicked_at"`
	UserAgent  sql.NullString `db:"user_agent"`
	IPAddress  sql.NullString `db:"ip_address"`
	Referrer   sql.NullString `db:"referrer"`
	Country    sql.NullString `db:"country"`
	DeviceType sql.NullString `db:"device_type"`
	Browser    sql.NullString `db:"browser"`
}

func (r *clickRecord) ToClickEvent() *models.ClickEvent {
	return &models.ClickEvent{
		ID:        r.ID,
		LinkID:    r.UTMLinkID,
		ClickedAt: r.ClickedAt,
		UserAgent: r.UserAgent.String,
		IPAddress: r.IPAddress.String,
		Referrer:  r.Referrer.String,
		Enrichment: models.Enrichment{
			Country:    r.Country.String,
			DeviceType: r.DeviceType.String,
			Browser:    r.Browser.String,
		},
	}
}

type ClickRepository struct {
	db *sqlx.DB
}

func NewClickRepository(db *sqlx.DB) *ClickRepository {
	return &ClickRepository{
		db: db,
	}
}

func (r *ClickRepository) Create(ctx context.Context, click *models.ClickEvent) (*models.ClickEvent, error) {
	const op = "database.postgres.ClickRepository.Create"

	rec := new(clickRecord)
	query := `INSERT INTO link_clicks(utm_link_id, clicked_at, user_agent, ip_address, referrer, country, device_type, browser)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query,
		click.LinkID,
		click.ClickedAt,
		nullString(click.UserAgent),
		nullString(click.IPAddress),
		nullString(click.Referrer),
		nullString(click.Enrichment.Country),
		nullString(click.Enrichment.DeviceType),
		nullString(click.Enrichment.Browser),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create click record: %w", op, err)
	}

	return rec.ToClickEvent(), nil
}

func (r *ClickRepository) ListByLink(ctx context.Context, linkID int64, limit int) ([]*models.ClickEvent, error) {
	const op = "database.postgres.ClickRepository.ListByLink"

	var recs []clickRecord
	query := `SELECT * FROM link_clicks
		WHERE utm_link_id = $1
		ORDER BY clicked_at DESC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &recs, query, linkID, limit); err != nil {
		return nil, fmt.Errorf("%s: failed to list click records: %w", op, err)
	}

	clicks := make([]*models.ClickEvent, 0, len(recs))
	for i := range recs {
		clicks = append(clicks, recs[i].ToClickEvent())
	}

	return clicks, nil
}

func (r *ClickRepository) CountByLink(ctx context.Context, linkID int64) (int64, error) {
	const op = "database.postgres.ClickRepository.CountByLink"

	var count int64
	query := `SELECT COUNT(*) FROM link_clicks WHERE utm_link_id = $1`

	if err := r.db.GetContext(ctx, &count, query, linkID); err != nil {
		return 0, fmt.Errorf("%s: failed to count click records: %w", op, err)
	}

	return count, nil
}
