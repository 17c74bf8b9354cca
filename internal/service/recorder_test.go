package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/videolytics/utm-tracker/internal/models"
)

type MockClickRepository struct {
	mock.Mock
}

func (r *MockClickRepository) Create(ctx context.Context, click *models.ClickEvent) (*models.ClickEvent, error) {
	args := r.Called(ctx, click)
	created, _ := args.Get(0).(*models.ClickEvent)
	return created, args.Error(1)
}

type MockEnricher struct {
	mock.Mock
}

func (e *MockEnricher) Enrich(ctx context.Context, ipAddress, userAgent string) (models.Enrichment, error) {
	args := e.Called(ctx, ipAddress, userAgent)
	return args.Get(0).(models.Enrichment), args.Error(1)
}

func setupRecorder() (*Recorder, *MockClickRepository, *MockEnricher) {
	clickRepo := new(MockClickRepository)
	enricher := new(MockEnricher)
	rec := NewRecorder(clickRepo, enricher, time.Second, discardLogger())
	return rec, clickRepo, enricher
}

func TestRecorder_Record(t *testing.T) {
	visit := models.VisitContext{
		UserAgent: "Mozilla/5.0",
		IPAddress: "203.0.113.7",
		Referrer:  "https://news.example.com",
	}

	t.Run("success with enrichment", func(t *testing.T) {
		rec, clickRepo, enricher := setupRecorder()

		enrichment := models.Enrichment{Country: "US", DeviceType: "desktop", Browser: "Firefox"}

		enricher.On("Enrich", mock.Anything, visit.IPAddress, visit.UserAgent).
			Return(enrichment, nil).Once()
		clickRepo.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				click := args.Get(1).(*models.ClickEvent)
				assert.Equal(t, int64(1), click.LinkID)
				assert.False(t, click.ClickedAt.IsZero())
				assert.Equal(t, visit.UserAgent, click.UserAgent)
				assert.Equal(t, visit.Referrer, click.Referrer)
				assert.Equal(t, enrichment, click.Enrichment)
			}).
			Return(&models.ClickEvent{ID: 1, LinkID: 1, Enrichment: enrichment}, nil).Once()

		click, err := rec.Record(context.TODO(), 1, visit)

		assert.NoError(t, err)
		assert.NotNil(t, click)
		clickRepo.AssertExpectations(t)
		enricher.AssertExpectations(t)
	})

	t.Run("enrichment failure degrades the event", func(t *testing.T) {
		rec, clickRepo, enricher := setupRecorder()

		enricher.On("Enrich", mock.Anything, visit.IPAddress, visit.UserAgent).
			Return(models.Enrichment{DeviceType: "desktop", Browser: "Firefox"}, errors.New("lookup timed out")).Once()
		clickRepo.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				click := args.Get(1).(*models.ClickEvent)
				assert.Empty(t, click.Enrichment.Country)
				assert.Equal(t, "desktop", click.Enrichment.DeviceType)
			}).
			Return(&models.ClickEvent{ID: 1, LinkID: 1}, nil).Once()

		click, err := rec.Record(context.TODO(), 1, visit)

		assert.NoError(t, err)
		assert.NotNil(t, click)
	})

	t.Run("empty visit context", func(t *testing.T) {
		rec, clickRepo, enricher := setupRecorder()

		enricher.On("Enrich", mock.Anything, "", "").
			Return(models.Enrichment{}, nil).Once()
		clickRepo.On("Create", mock.Anything, mock.Anything).
			Return(&models.ClickEvent{ID: 1, LinkID: 1}, nil).Once()

		click, err := rec.Record(context.TODO(), 1, models.VisitContext{})

		assert.NoError(t, err)
		assert.NotNil(t, click)
	})

	t.Run("persistence failure surfaces", func(t *testing.T) {
		rec, clickRepo, enricher := setupRecorder()

		errUnknown := errors.New("unknown error")

		enricher.On("Enrich", mock.Anything, visit.IPAddress, visit.UserAgent).
			Return(models.Enrichment{}, nil).Once()
		clickRepo.On("Create", mock.Anything, mock.Anything).
			Return(nil, errUnknown).Once()

		click, err := rec.Record(context.TODO(), 1, visit)

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, click)
	})
}
