package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// WorkspaceRecord is the stored workspace blob of one user.
type WorkspaceRecord struct {
	UserID    string
	State     json.RawMessage
	Version   int64
	UpdatedAt time.Time
}

// ImageRecord describes an uploaded image that canvas elements reference
// through Locator.
type ImageRecord struct {
	ID          string
	UserID      string
	Locator     string
	ContentType string
	SizeBytes   int64
	Width       int
	Height      int
	CreatedAt   time.Time
}
