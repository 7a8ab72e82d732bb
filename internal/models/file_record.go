package models

import "time"

// Status represents the lifecycle status of a file record.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"

	// Validation rejections.
	StatusDuplicated               Status = "duplicated"
	StatusExceded                  Status = "exceded"
	StatusFileType                 Status = "fileType"
	StatusOrgFileSizeLimitExceeded Status = "orgFileSizeLimitExceeded"
)

// IsTerminal reports whether no further transition can happen without a new submission.
func (s Status) IsTerminal() bool {
	return s != StatusUploading && s != StatusProcessing
}

// IsError reports whether the status counts towards the error total.
func (s Status) IsError() bool {
	return s != StatusCompleted && s != StatusUploading && s != StatusProcessing
}

// FileRecord tracks a single file through validation, transfer and processing.
type FileRecord struct {
	Key           string    `json:"key"`          // Batch-local correlation key
	ID            string    `json:"id,omitempty"` // Adapter-assigned, set once the transfer phase completes
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	MimeType      string    `json:"mimeType"`
	Progress      int       `json:"progress"` // 0-100
	Status        Status    `json:"status"`
	StatusMessage string    `json:"statusMessage,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	UserEmail     string    `json:"userEmail,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
