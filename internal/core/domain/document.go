package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is a stored source registered by URL. The URL is the identity:
// registering the same URL twice yields the same ID with the filename
// replaced.
type Document struct {
	ID        int64          `json:"id"`
	URL       string         `json:"url"`
	Filename  string         `json:"filename"`
	Status    DocumentStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
