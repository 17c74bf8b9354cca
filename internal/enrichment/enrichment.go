// Package enrichment derives country, device type and browser from the raw
// context of a visit. Geo lookups go to an external IP geolocation service and
// are strictly best-effort: callers are expected to persist whatever was
// derived even when the lookup fails.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mileusna/useragent"
	"github.com/videolytics/utm-tracker/internal/models"
)

const (
	defaultBaseURL = "http://ip-api.com"
	defaultTimeout = 2 * time.Second
)

// ErrLookupFailed is returned when the geolocation service can't resolve the IP.
var ErrLookupFailed = errors.New("geo lookup failed")

type Option func(*Service)

func WithBaseURL(baseURL string) Option {
	return func(s *Service) {
		s.baseURL = baseURL
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.client = client
	}
}

// Service enriches visits using the ip-api.com JSON endpoint for country
// resolution and user-agent parsing for device type and browser.
type Service struct {
	client  *http.Client
	baseURL string
}

func New(opts ...Option) *Service {
	s := &Service{
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: defaultBaseURL,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Enrich derives what it can from the visit context. The user-agent part
// never fails; a geo lookup error is returned alongside the already-derived
// fields so the caller can persist a partially enriched event.
func (s *Service) Enrich(ctx context.Context, ipAddress, userAgent string) (models.Enrichment, error) {
	const op = "enrichment.Service.Enrich"

	var enr models.Enrichment

	if userAgent != "" {
		ua := useragent.Parse(userAgent)
		enr.DeviceType = deviceType(ua)
		enr.Browser = ua.Name
	}

	if !isPublicIP(ipAddress) {
		return enr, nil
	}

	country, err := s.lookupCountry(ctx, ipAddress)
	if err != nil {
		return enr, fmt.Errorf("%s: %w", op, err)
	}
	enr.Country = country

	return enr, nil
}

func deviceType(ua useragent.UserAgent) string {
	switch {
	case ua.Bot:
		return "bot"
	case ua.Mobile:
		return "mobile"
	case ua.Tablet:
		return "tablet"
	case ua.Desktop:
		return "desktop"
	default:
		return ""
	}
}

func isPublicIP(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsUnspecified()
}

func (s *Service) lookupCountry(ctx context.Context, ipAddress string) (string, error) {
	url := fmt.Sprintf("%s/json/%s?fields=status,countryCode", s.baseURL, ipAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status code %d", ErrLookupFailed, resp.StatusCode)
	}

	var payload struct {
		Status      string `json:"status"`
		CountryCode string `json:"countryCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if payload.Status != "success" || payload.CountryCode == "" {
		return "", ErrLookupFailed
	}

	return payload.CountryCode, nil
}
