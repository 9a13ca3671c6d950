package models

import "time"

// Collection is a user-owned grouping of media entries. Names are unique
// per owner.
type Collection struct {
	ID          uint    `gorm:"primaryKey"`
	Name        string  `gorm:"size:128;not null;uniqueIndex:idx_collection_owner_name"`
	Description *string `gorm:"type:text"`
	UserID      uint    `gorm:"not null;uniqueIndex:idx_collection_owner_name;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CollectionMedia links a collection to a media entry. Membership is not
// severed when the entry is soft-deleted; filtered views simply skip it.
// Purge removes the link rows along with the entry.
type CollectionMedia struct {
	CollectionID uint   `gorm:"primaryKey"`
	MediaID      string `gorm:"size:36;primaryKey"`
}
