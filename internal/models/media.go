package models

import "time"

// Recognized media types. Unknown values are defaulted to Book at the
// upload boundary rather than stored verbatim.
const (
	MediaTypeBook     = "Book"
	MediaTypeMagazine = "Magazine"
	MediaTypePaper    = "Paper"
	MediaTypeArticle  = "Article"
)

// ValidMediaType reports whether t is one of the recognized media types.
func ValidMediaType(t string) bool {
	switch t {
	case MediaTypeBook, MediaTypeMagazine, MediaTypePaper, MediaTypeArticle:
		return true
	}
	return false
}

// Media is a library entry. DeletedAt == nil means active; non-nil means
// soft-deleted and hidden from default listings until restored or purged.
type Media struct {
	ID              string     `gorm:"primaryKey;size:36"` // UUID
	Title           string     `gorm:"size:255;not null"`
	Author          *string    `gorm:"size:255"`
	Description     *string    `gorm:"type:text"`
	Language        *string    `gorm:"size:32"`
	PublicationDate *string    `gorm:"size:32"`
	MediaType       string     `gorm:"size:16;not null;default:Book"`
	CoverURL        *string    `gorm:"size:512"`
	UploadedBy      uint       `gorm:"index;not null"`
	UploadedAt      time.Time  `gorm:"index"`
	UpdatedAt       time.Time
	DeletedAt       *time.Time `gorm:"index"`

	Uploader User        `gorm:"foreignKey:UploadedBy"`
	Files    []MediaFile `gorm:"foreignKey:MediaID"`
}

// File formats a media entry may carry, at most one of each per entry.
const (
	FileTypeEpub = "epub"
	FileTypePdf  = "pdf"
)

// MediaFile is a stored binary attached to a media entry.
type MediaFile struct {
	ID        uint   `gorm:"primaryKey"`
	MediaID   string `gorm:"size:36;not null;uniqueIndex:idx_media_file_type"`
	FileURL   string `gorm:"size:512;not null"`
	FileType  string `gorm:"size:8;not null;uniqueIndex:idx_media_file_type"`
	CreatedAt time.Time
}
