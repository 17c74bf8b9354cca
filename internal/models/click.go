package models

import "time"

// VisitContext carries the raw request context captured for a visit.
// All fields are optional; missing values are stored as empty strings.
type VisitContext struct {
	UserAgent string
	IPAddress string
	Referrer  string
}

// Enrichment holds the values derived from a visit's raw context.
// Any field may be empty when enrichment fails or is skipped.
type Enrichment struct {
	// Country is the ISO 3166-1 alpha-2 code derived from the IP address.
	Country string
	// DeviceType is one of "desktop", "mobile", "tablet" or "bot".
	DeviceType string
	// Browser is the browser name derived from the user agent.
	Browser string
}

// ClickEvent represents a single recorded visit to a tracking link.
// Events are append-only: they are created once at ingestion and never mutated.
type ClickEvent struct {
	// ID is the unique identifier for the click event record.
	ID int64
	// LinkID is the owning tracking link.
	LinkID int64
	// ClickedAt is the server-assigned ingestion timestamp.
	ClickedAt time.Time
	// UserAgent, IPAddress and Referrer are the raw captured request context.
	UserAgent string
	IPAddress string
	Referrer  string
	// Enrichment holds the derived country, device type and browser.
	Enrichment Enrichment
}
