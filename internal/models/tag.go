package models

import "time"

// Tag is a globally shared label, created on first use and never deleted
// by the library core.
type Tag struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:64;uniqueIndex;not null"`
	CreatedAt time.Time
}

// MediaTag links a media entry to a tag. Link rows are removed
// explicitly when the entry is purged; the tag itself persists.
type MediaTag struct {
	MediaID string `gorm:"size:36;primaryKey"`
	TagID   uint   `gorm:"primaryKey"`
}
