package service

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/videolytics/utm-tracker/internal/models"
)

// ErrInvalidDestinationURL is returned when the destination doesn't parse as an absolute URL.
var ErrInvalidDestinationURL = errors.New("invalid destination url")

var utmKeys = []string{"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term"}

// BuildTrackingURL appends the UTM parameters to the destination URL and
// returns the canonical tracking URL. Existing query parameters are preserved,
// except same-named UTM parameters, which are replaced by the supplied values.
// The function is pure; the result is computed once at creation and stored.
func BuildTrackingURL(destinationURL string, params models.UTMParams) (string, error) {
	const op = "service.BuildTrackingURL"

	u, err := url.Parse(destinationURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidDestinationURL)
	}

	existing := u.Query()
	for _, key := range utmKeys {
		existing.Del(key)
	}

	var query strings.Builder
	query.WriteString(existing.Encode())

	appendParam := func(key, value string) {
		if value == "" {
			return
		}
		if query.Len() > 0 {
			query.WriteByte('&')
		}
		query.WriteString(key)
		query.WriteByte('=')
		query.WriteString(url.QueryEscape(value))
	}

	appendParam("utm_source", params.Source)
	appendParam("utm_medium", params.Medium)
	appendParam("utm_campaign", params.Campaign)
	appendParam("utm_content", params.Content)
	appendParam("utm_term", params.Term)

	u.RawQuery = query.String()

	return u.String(), nil
}
