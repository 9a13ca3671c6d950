package models

import "time"

// User represents a library member. Accounts are created by the access
// gate on the first admitted sign-in and are never deleted.
type User struct {
	ID              uint    `gorm:"primaryKey"`
	Email           *string `gorm:"size:255;uniqueIndex"` // may be absent for some providers
	DisplayName     string  `gorm:"size:64"`
	Provider        string  `gorm:"size:32;not null"` // e.g. github
	ProviderSubject string  `gorm:"size:128;uniqueIndex;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
