package domain

import (
	"errors"
	"time"
)

var (
	ErrDraftNotFound   = errors.New("draft not found")
	ErrHistoryNotFound = errors.New("history record not found")
	ErrNotDelivered    = errors.New("delivery not confirmed")
	ErrInvalidURL      = errors.New("invalid remote url")
	ErrHostNotAllowed  = errors.New("remote host not allowed")
	ErrNotAnImage      = errors.New("remote content is not an image")
	ErrTooLarge        = errors.New("remote content exceeds size limit")
)

// UploadedImage describes an object that has been written to the bucket.
type UploadedImage struct {
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	PublicURL   string    `json:"url"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// DraftPost is a queued (image URL, caption) pair awaiting delivery
// to the Telegram channel.
type DraftPost struct {
	ID        string    `json:"id"`
	ImageURL  string    `json:"url"`
	Caption   string    `json:"caption,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRecord is kept for every completed upload. Deleting a record
// never touches the stored object.
type HistoryRecord struct {
	ID        string    `json:"id"`
	PublicURL string    `json:"url"`
	FileName  string    `json:"file_name"`
	CreatedAt time.Time `json:"created_at"`
}

// SendReport is the per-draft outcome of a bulk send.
type SendReport struct {
	ID       string `json:"id"`
	ImageURL string `json:"url"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}
