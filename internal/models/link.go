package models

import "time"

// UTMParams holds the UTM query parameters embedded into a tracking URL.
type UTMParams struct {
	// Source identifies the traffic source, e.g. "youtube".
	Source string
	// Medium identifies the marketing medium, e.g. "video".
	Medium string
	// Campaign identifies the campaign; conventionally the video ID.
	Campaign string
	// Content optionally differentiates links pointing to the same destination.
	Content string
	// Term optionally carries search terms.
	Term string
}

// TrackingLink represents a UTM tracking link associated with a video.
type TrackingLink struct {
	// ID is the unique identifier for the tracking link record.
	ID int64
	// VideoID is the identifier of the associated video. It is a plain value,
	// not a foreign key, so links can be created for videos that don't exist yet.
	VideoID string
	// DestinationURL is the URL the visitor is ultimately sent to.
	DestinationURL string
	// UTM holds the UTM parameters embedded into the tracking URL.
	UTM UTMParams
	// TrackingURL is the destination URL with the UTM parameters appended.
	// It is computed once at creation and stored as is.
	TrackingURL string
	// PrettySlug is the optional short alias used for redirection.
	// It is unique across all links when present.
	PrettySlug *string
	// IsActive reports whether the link still resolves. Inactive links are
	// indistinguishable from unknown ones to visitors.
	IsActive bool
	// CreatedAt is the timestamp indicating when the link was created.
	CreatedAt time.Time
	// UpdatedAt is the timestamp indicating when the link was last updated.
	UpdatedAt time.Time
}
