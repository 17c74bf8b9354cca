package http

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/videolytics/utm-tracker/internal/database"
	"github.com/videolytics/utm-tracker/internal/models"
	"github.com/videolytics/utm-tracker/internal/service"
	"github.com/videolytics/utm-tracker/pkg/response"
)

// defaultClicksLimit caps the number of click events returned per request.
const defaultClicksLimit = 50

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// linkRequest represents the request payload for creating a tracking link.
type linkRequest struct {
	VideoID        string `json:"video_id" validate:"required,max=255"`
	DestinationURL string `json:"destination_url" validate:"required,url"`
	UTMSource      string `json:"utm_source" validate:"omitempty,max=100"`
	UTMMedium      string `json:"utm_medium" validate:"omitempty,max=100"`
	UTMCampaign    string `json:"utm_campaign" validate:"omitempty,max=255"`
	UTMContent     string `json:"utm_content" validate:"omitempty,max=255"`
	UTMTerm        string `json:"utm_term" validate:"omitempty,max=255"`
	PrettySlug     string `json:"pretty_slug" validate:"omitempty,max=100"`
}

// linkResponse represents the response payload for a tracking link operation.
type linkResponse struct {
	ID             int64     `json:"id"`
	VideoID        string    `json:"video_id"`
	DestinationURL string    `json:"destination_url"`
	UTMSource      string    `json:"utm_source"`
	UTMMedium      string    `json:"utm_medium"`
	UTMCampaign    string    `json:"utm_campaign"`
	UTMContent     string    `json:"utm_content,omitempty"`
	UTMTerm        string    `json:"utm_term,omitempty"`
	TrackingURL    string    `json:"tracking_url"`
	PrettySlug     *string   `json:"pretty_slug"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// toLinkResponse converts a tracking link from the business layer into a response payload.
func toLinkResponse(link *models.TrackingLink) linkResponse {
	return linkResponse{
		ID:             link.ID,
		VideoID:        link.VideoID,
		DestinationURL: link.DestinationURL,
		UTMSource:      link.UTM.Source,
		UTMMedium:      link.UTM.Medium,
		UTMCampaign:    link.UTM.Campaign,
		UTMContent:     link.UTM.Content,
		UTMTerm:        link.UTM.Term,
		TrackingURL:    link.TrackingURL,
		PrettySlug:     link.PrettySlug,
		IsActive:       link.IsActive,
		CreatedAt:      link.CreatedAt,
		UpdatedAt:      link.UpdatedAt,
	}
}

// clickResponse represents a single recorded click event in a response payload.
type clickResponse struct {
	ID         int64     `json:"id"`
	LinkID     int64     `json:"link_id"`
	ClickedAt  time.Time `json:"clicked_at"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Referrer   string    `json:"referrer,omitempty"`
	Country    string    `json:"country,omitempty"`
	DeviceType string    `json:"device_type,omitempty"`
	Browser    string    `json:"browser,omitempty"`
}

// clickStatsResponse bundles recent click events with the total recorded count.
type clickStatsResponse struct {
	Total  int64           `json:"total"`
	Clicks []clickResponse `json:"clicks"`
}

func toClickStatsResponse(clicks []*models.ClickEvent, total int64) clickStatsResponse {
	resp := clickStatsResponse{
		Total:  total,
		Clicks: make([]clickResponse, 0, len(clicks)),
	}

	for _, click := range clicks {
		resp.Clicks = append(resp.Clicks, clickResponse{
			ID:         click.ID,
			LinkID:     click.LinkID,
			ClickedAt:  click.ClickedAt,
			UserAgent:  click.UserAgent,
			IPAddress:  click.IPAddress,
			Referrer:   click.Referrer,
			Country:    click.Enrichment.Country,
			DeviceType: click.Enrichment.DeviceType,
			Browser:    click.Enrichment.Browser,
		})
	}

	return resp
}

// linkIDFromRequest extracts and parses the numeric link identifier from the URL path.
func linkIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "linkID"), 10, 64)
}

// visitFromRequest captures the visitor context used for click enrichment.
// The port is stripped from the remote address so only the host survives.
func visitFromRequest(r *http.Request) models.VisitContext {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	return models.VisitContext{
		UserAgent: r.UserAgent(),
		IPAddress: ip,
		Referrer:  r.Referer(),
	}
}

// handleCreateLink handles POST requests to mint a new tracking link.
//
// The request must contain a video identifier and a valid destination URL. The handler
// validates the input, calls the link service, and returns the stored link with its
// tracking URL and reserved pretty slug.
func handleCreateLink(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleCreateLink"
	const successMsg = "The tracking link has been created successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req linkRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		link, err := svc.CreateLink(r.Context(), service.CreateLinkParams{
			VideoID:        req.VideoID,
			DestinationURL: req.DestinationURL,
			UTM: models.UTMParams{
				Source:   req.UTMSource,
				Medium:   req.UTMMedium,
				Campaign: req.UTMCampaign,
				Content:  req.UTMContent,
				Term:     req.UTMTerm,
			},
			PrettySlug: req.PrettySlug,
		})
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidDestinationURL):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.BadRequestResponse)
			case errors.Is(err, service.ErrSlugTaken):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.SlugTakenResponse)
			case errors.Is(err, service.ErrSlugRetriesExceeded):
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.SlugExhaustedResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

// handleGetLink handles GET requests to fetch a tracking link by its id.
func handleGetLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleGetLink"
	const successMsg = "The tracking link was successfully retrieved."

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := linkIDFromRequest(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		link, err := svc.GetLink(r.Context(), id)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.LinkNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

// handleDeactivateLink handles POST requests to deactivate a tracking link.
//
// Once deactivated, the link's slug resolves the same as an unknown slug. The handler
// returns a success message or a 404 error if the link doesn't exist.
func handleDeactivateLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleDeactivateLink"
	const successMsg = "The tracking link was successfully deactivated."

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := linkIDFromRequest(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := svc.DeactivateLink(r.Context(), id); err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.LinkNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

// handleDeleteLink handles DELETE requests to permanently remove a tracking link
// along with its recorded clicks.
func handleDeleteLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleDeleteLink"
	const successMsg = "The tracking link was successfully deleted."

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := linkIDFromRequest(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := svc.DeleteLink(r.Context(), id); err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.LinkNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

// handleRegenerateSlug handles POST requests to replace a link's pretty slug
// with a freshly generated one. The previous slug stops resolving immediately.
func handleRegenerateSlug(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleRegenerateSlug"
	const successMsg = "The pretty slug was successfully regenerated."

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := linkIDFromRequest(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		link, err := svc.RegenerateSlug(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, database.ErrLinkNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.LinkNotFoundResponse)
			case errors.Is(err, service.ErrSlugRetriesExceeded):
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.SlugExhaustedResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

// handleGetLinkClicks handles GET requests to retrieve recorded click events for a link.
//
// The handler returns the most recent clicks together with the total count, or a 404
// error if the link doesn't exist. An optional "limit" query parameter caps the number
// of returned events.
func handleGetLinkClicks(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleGetLinkClicks"
	const successMsg = "The click events were successfully retrieved."

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := linkIDFromRequest(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		limit := defaultClicksLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.BadRequestResponse)
				return
			}
			limit = parsed
		}

		clicks, total, err := svc.GetClicks(r.Context(), id, limit)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.LinkNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toClickStatsResponse(clicks, total)))
	}
}

// handleRedirect handles public redirect requests for pretty slugs.
//
// The handler resolves the slug, schedules click recording in the background, and
// issues a 302 redirect to the resolved URL. Unknown and deactivated slugs both
// receive the same 404 response.
func handleRedirect(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		dest, err := svc.ResolveAndRecord(r.Context(), slug, visitFromRequest(r))
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.LinkNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		http.Redirect(w, r, dest, http.StatusFound)
	}
}
