package models

import "time"

// Invitation is a single-use, time-boxed credential that admits one new
// member. Email-scoped invitations admit only that address; a nil email
// means the invitation is usable by any new member.
type Invitation struct {
	ID        uint       `gorm:"primaryKey"`
	Token     string     `gorm:"size:64;uniqueIndex;not null"`
	Email     *string    `gorm:"size:255;index"`
	CreatedBy uint       `gorm:"index;not null"`
	CreatedAt time.Time
	ExpiresAt time.Time  `gorm:"index;not null"`
	UsedAt    *time.Time `gorm:"index"`

	Creator User `gorm:"foreignKey:CreatedBy"`
}

// IsUsed returns true once the invitation has been consumed.
// UsedAt is written exactly once and never cleared.
func (i *Invitation) IsUsed() bool {
	return i.UsedAt != nil
}

// IsExpired returns true if the invitation has passed its expiry.
func (i *Invitation) IsExpired(now time.Time) bool {
	return i.ExpiresAt.Before(now)
}

// ConsumableBy reports whether the invitation can admit the given email.
// An empty invitation email matches any candidate.
func (i *Invitation) ConsumableBy(email string, now time.Time) bool {
	if i.IsUsed() || i.IsExpired(now) {
		return false
	}
	return i.Email == nil || *i.Email == email
}

// Status returns a human-readable state for listings.
func (i *Invitation) Status(now time.Time) string {
	if i.IsUsed() {
		return "used"
	}
	if i.IsExpired(now) {
		return "expired"
	}
	return "pending"
}
