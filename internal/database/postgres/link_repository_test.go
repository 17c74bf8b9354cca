package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/videolytics/utm-tracker/internal/database"
	"github.com/videolytics/utm-tracker/internal/models"
)

var errUnknown = errors.New("unknown error")

var linkColumns = []string{
	"id", "video_id", "destination_url", "utm_source", "utm_medium", "utm_campaign",
	"utm_content", "utm_term", "tracking_url", "pretty_slug", "is_active", "created_at", "updated_at",
}

func setupLinkRepository(t testing.TB) (*LinkRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	db := sqlx.NewDb(mockDB, "sqlmock")
	repo := NewLinkRepository(db)

	t.Cleanup(func() {
		mockDB.Close()
		db.Close()
	})

	return repo, mock
}

func testLink(slug string) *models.TrackingLink {
	link := &models.TrackingLink{
		VideoID:        "abc123",
		DestinationURL: "https://example.com/page",
		UTM: models.UTMParams{
			Source:   "youtube",
			Medium:   "video",
			Campaign: "abc123",
		},
		TrackingURL: "https://example.com/page?utm_source=youtube&utm_medium=video&utm_campaign=abc123",
	}
	if slug != "" {
		link.PrettySlug = &slug
	}
	return link
}

func linkRow(slug string) *sqlmock.Rows {
	var slugVal any
	if slug != "" {
		slugVal = slug
	}
	return sqlmock.NewRows(linkColumns).
		AddRow(1, "abc123", "https://example.com/page", "youtube", "video", "abc123",
			nil, nil, "https://example.com/page?utm_source=youtube&utm_medium=video&utm_campaign=abc123",
			slugVal, true, time.Time{}, time.Time{})
}

func TestLinkRepository_Create(t *testing.T) {
	t.Run("slug exists", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`INSERT INTO utm_links`).
			WillReturnError(&pgconn.PgError{Code: uniqueViolationErrCode})

		link, err := repo.Create(context.TODO(), testLink("spring-sale"))

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrSlugExists)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`INSERT INTO utm_links`).
			WillReturnError(errUnknown)

		link, err := repo.Create(context.TODO(), testLink("spring-sale"))

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`INSERT INTO utm_links`).
			WillReturnRows(linkRow("spring-sale"))

		link, err := repo.Create(context.TODO(), testLink("spring-sale"))

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.Equal(t, int64(1), link.ID)
		assert.Equal(t, "abc123", link.VideoID)
		if assert.NotNil(t, link.PrettySlug) {
			assert.Equal(t, "spring-sale", *link.PrettySlug)
		}
		assert.True(t, link.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLinkRepository_GetByID(t *testing.T) {
	t.Run("link not found", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`SELECT \* FROM utm_links`).
			WithArgs(int64(2)).
			WillReturnError(sql.ErrNoRows)

		link, err := repo.GetByID(context.TODO(), 2)

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrLinkNotFound)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`SELECT \* FROM utm_links`).
			WithArgs(int64(1)).
			WillReturnRows(linkRow(""))

		link, err := repo.GetByID(context.TODO(), 1)

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.Nil(t, link.PrettySlug)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLinkRepository_GetActiveBySlug(t *testing.T) {
	t.Run("link not found", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`SELECT \* FROM utm_links`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		link, err := repo.GetActiveBySlug(context.TODO(), "missing")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrLinkNotFound)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`SELECT \* FROM utm_links`).
			WithArgs("spring-sale").
			WillReturnRows(linkRow("spring-sale"))

		link, err := repo.GetActiveBySlug(context.TODO(), "spring-sale")

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.True(t, link.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLinkRepository_Deactivate(t *testing.T) {
	t.Run("link not found", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectExec(`UPDATE utm_links`).
			WithArgs(int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Deactivate(context.TODO(), 2)

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrLinkNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectExec(`UPDATE utm_links`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Deactivate(context.TODO(), 1)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLinkRepository_UpdateSlug(t *testing.T) {
	t.Run("slug exists", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`UPDATE utm_links`).
			WithArgs("taken", int64(1)).
			WillReturnError(&pgconn.PgError{Code: uniqueViolationErrCode})

		link, err := repo.UpdateSlug(context.TODO(), 1, "taken")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrSlugExists)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("link not found", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`UPDATE utm_links`).
			WithArgs("fresh", int64(2)).
			WillReturnError(sql.ErrNoRows)

		link, err := repo.UpdateSlug(context.TODO(), 2, "fresh")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrLinkNotFound)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`UPDATE utm_links`).
			WithArgs("spring-sale", int64(1)).
			WillReturnRows(linkRow("spring-sale"))

		link, err := repo.UpdateSlug(context.TODO(), 1, "spring-sale")

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLinkRepository_Delete(t *testing.T) {
	t.Run("link not found", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM link_clicks`).
			WithArgs(int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DELETE FROM utm_links`).
			WithArgs(int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.Delete(context.TODO(), 2)

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrLinkNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success cascades clicks", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM link_clicks`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec(`DELETE FROM utm_links`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.Delete(context.TODO(), 1)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
