package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/videolytics/utm-tracker/internal/models"
	"github.com/videolytics/utm-tracker/internal/service"
)

// LinkService defines the interface for the core tracking-link business logic.
type LinkService interface {
	// CreateLink mints a tracking URL for a video destination and reserves a pretty slug.
	// It returns the stored link or an error if the destination is invalid or the slug is taken.
	CreateLink(ctx context.Context, params service.CreateLinkParams) (*models.TrackingLink, error)

	// GetLink retrieves a tracking link by its numeric identifier.
	// It returns the link details or an error if the link doesn't exist.
	GetLink(ctx context.Context, id int64) (*models.TrackingLink, error)

	// ResolveAndRecord looks up an active link by slug or numeric id, records the click
	// asynchronously, and returns the URL the visitor should be redirected to.
	ResolveAndRecord(ctx context.Context, slugOrID string, visit models.VisitContext) (string, error)

	// DeactivateLink disables the link, making its slug no longer resolvable.
	// It returns an error if the link doesn't exist.
	DeactivateLink(ctx context.Context, id int64) error

	// DeleteLink permanently removes the link and its recorded clicks.
	DeleteLink(ctx context.Context, id int64) error

	// RegenerateSlug replaces the link's pretty slug with a freshly generated one.
	RegenerateSlug(ctx context.Context, id int64) (*models.TrackingLink, error)

	// GetClicks retrieves the most recent click events for the link along with the total count.
	GetClicks(ctx context.Context, linkID int64, limit int) ([]*models.ClickEvent, int64, error)
}

// getValidate initializes a new validator instance for validating incoming request payloads.
// It customizes tag name extraction from struct fields to match JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter initializes and returns a new HTTP router with all routes and middleware configured.
func NewRouter(logger *httplog.Logger, linkSvc LinkService) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/r/{slug}", handleRedirect(linkSvc))

	r.Route("/api/v1", func(r chi.Router) {
		validate := getValidate()

		r.Get("/ping", handlePing)

		r.Route("/links", func(r chi.Router) {
			r.Post("/", handleCreateLink(linkSvc, validate))

			r.Route("/{linkID}", func(r chi.Router) {
				r.Get("/", handleGetLink(linkSvc))
				r.Delete("/", handleDeleteLink(linkSvc))
				r.Post("/deactivate", handleDeactivateLink(linkSvc))
				r.Post("/slug", handleRegenerateSlug(linkSvc))
				r.Get("/clicks", handleGetLinkClicks(linkSvc))
			})
		})
	})

	return r
}
