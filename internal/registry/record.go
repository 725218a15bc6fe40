// Package registry implements the ephemeral content registry: short code
// generation, expiry resolution and the in-memory metadata store that
// tracks what each code points at and whether it has been consumed.
package registry

import (
	"encoding/json"
	"errors"
	"time"
)

// Kind tells whether a record points at an uploaded file or carries text inline.
type Kind string

const (
	KindFile Kind = "file"
	KindText Kind = "text"
)

// ContentRecord is the metadata stored for one issued code.
type ContentRecord struct {
	Code          string
	Kind          Kind
	LocationRef   string
	InlineContent string
	DisplayName   string
	MediaType     string
	SizeBytes     int64
	Checksum      string // hex SHA-256 of the file bytes
	Consumed      bool
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

var (
	errMissingCode     = errors.New("record has no code")
	errUnknownKind     = errors.New("record kind must be file or text")
	errTextHasLocation = errors.New("text record must not carry file fields")
	errFileHasInline   = errors.New("file record must not carry inline content")
	errFileNoLocation  = errors.New("file record requires a location reference")
)

// Validate checks the kind-dependent field invariants.
func (r ContentRecord) Validate() error {
	if r.Code == "" {
		return errMissingCode
	}
	switch r.Kind {
	case KindText:
		if r.LocationRef != "" || r.DisplayName != "" || r.MediaType != "" || r.SizeBytes != 0 || r.Checksum != "" {
			return errTextHasLocation
		}
	case KindFile:
		if r.InlineContent != "" {
			return errFileHasInline
		}
		if r.LocationRef == "" {
			return errFileNoLocation
		}
	default:
		return errUnknownKind
	}
	return nil
}

// Expired reports whether the record is past its expiry at now.
func (r ContentRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// RecordView is the wire shape used by the HTTP layer. Times are epoch
// milliseconds so browser clients can feed them straight into Date.
type RecordView struct {
	Code          string `json:"code"`
	Type          Kind   `json:"type"`
	URL           string `json:"url"`
	Content       string `json:"content,omitempty"`
	OriginalName  string `json:"originalName,omitempty"`
	MimeType      string `json:"mimeType,omitempty"`
	Size          int64  `json:"size,omitempty"`
	SHA256        string `json:"sha256,omitempty"`
	HasDownloaded bool   `json:"hasDownloaded"`
	ExpiresAt     int64  `json:"expiresAt"`
	Remaining     string `json:"remaining,omitempty"`
}

// View renders the record without any raw file bytes. A non-zero now
// also fills in the human readable time remaining.
func (r ContentRecord) View(now time.Time) RecordView {
	v := RecordView{
		Code:          r.Code,
		Type:          r.Kind,
		URL:           r.LocationRef,
		Content:       r.InlineContent,
		OriginalName:  r.DisplayName,
		MimeType:      r.MediaType,
		Size:          r.SizeBytes,
		SHA256:        r.Checksum,
		HasDownloaded: r.Consumed,
		ExpiresAt:     r.ExpiresAt.UnixMilli(),
	}
	if !now.IsZero() {
		v.Remaining = FormatRemaining(r.ExpiresAt, now)
	}
	return v
}

func (r ContentRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.View(time.Time{}))
}
