package model

import "time"

type Image struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Filename       string    `json:"filename"`
	ObjectKey      string    `json:"object_key"`
	ContentType    string    `json:"content_type"`
	SizeBytes      int64     `json:"size_bytes"`
	UsageCount     int       `json:"usage_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// UsageCorrection reports an image whose stored usage count drifted.
type UsageCorrection struct {
	ImageID  int64 `json:"image_id"`
	Previous int   `json:"previous"`
	Actual   int   `json:"actual"`
}

type Document struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	Filename       string    `json:"filename"`
	ObjectKey      string    `json:"-"`
	ContentType    string    `json:"content_type"`
	SizeBytes      int64     `json:"size_bytes"`
	UploadedBy     *int64    `json:"uploaded_by"`
	CreatedAt      time.Time `json:"created_at"`
}
