package models

import "time"

// FileInfo represents metadata about a file stored by the transfer server.
type FileInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Org         string    `json:"org,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Status      string    `json:"status"` // "uploaded", "processing", "processed", "error"
}

// Usage summarises what an organisation already stores.
type Usage struct {
	Org   string   `json:"org"`
	Used  int64    `json:"used"`
	Names []string `json:"names"`
}
