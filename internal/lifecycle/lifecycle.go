// Package lifecycle governs the soft-delete, grace-period, restore and
// purge transitions of library entries.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/andrepetsch/secret-library/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// RetentionDays is the grace window during which a soft-deleted entry
// may still be restored.
const RetentionDays = 7

var (
	ErrNotFound       = errors.New("media not found")
	ErrForbidden      = errors.New("media belongs to another member")
	ErrAlreadyDeleted = errors.New("media already deleted")
	ErrNotDeleted     = errors.New("media is not deleted")
)

type Manager struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewManager(db *gorm.DB, log zerolog.Logger) *Manager {
	return &Manager{db: db, log: log}
}

// SoftDelete hides the entry and starts the grace window. Only the
// uploader may delete, and only an active entry; deleting twice is an
// error, not a no-op.
func (m *Manager) SoftDelete(mediaID string, requester uint) error {
	var media models.Media
	if err := m.db.First(&media, "id = ?", mediaID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load media: %w", err)
	}
	if media.UploadedBy != requester {
		return ErrForbidden
	}
	if media.DeletedAt != nil {
		return ErrAlreadyDeleted
	}

	// guard on deleted_at so two racing deletes produce one winner
	res := m.db.Model(&models.Media{}).
		Where("id = ? AND deleted_at IS NULL", mediaID).
		Update("deleted_at", time.Now())
	if res.Error != nil {
		return fmt.Errorf("soft delete media: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyDeleted
	}

	m.log.Info().Str("media_id", mediaID).Uint("user_id", requester).Msg("media soft-deleted")
	return nil
}

// Restore clears the deletion mark within the grace window. Only the
// uploader may restore, and only a soft-deleted entry.
func (m *Manager) Restore(mediaID string, requester uint) error {
	var media models.Media
	if err := m.db.First(&media, "id = ?", mediaID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load media: %w", err)
	}
	if media.UploadedBy != requester {
		return ErrForbidden
	}
	if media.DeletedAt == nil {
		return ErrNotDeleted
	}

	res := m.db.Model(&models.Media{}).
		Where("id = ? AND deleted_at IS NOT NULL", mediaID).
		Update("deleted_at", nil)
	if res.Error != nil {
		return fmt.Errorf("restore media: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// the sweeper purged it between the read and the update
		return ErrNotFound
	}

	m.log.Info().Str("media_id", mediaID).Uint("user_id", requester).Msg("media restored")
	return nil
}

// ListActive returns all non-deleted entries, newest upload first.
// The active listing is library-wide.
func (m *Manager) ListActive() ([]models.Media, error) {
	var list []models.Media
	if err := m.db.Preload("Files").Preload("Uploader").
		Where("deleted_at IS NULL").
		Order("uploaded_at DESC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	return list, nil
}

// ListDeleted returns the requester's own soft-deleted entries, most
// recently deleted first. Members only ever see their own trash.
func (m *Manager) ListDeleted(requester uint) ([]models.Media, error) {
	var list []models.Media
	if err := m.db.Preload("Files").Preload("Uploader").
		Where("deleted_at IS NOT NULL AND uploaded_by = ?", requester).
		Order("deleted_at DESC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list deleted media: %w", err)
	}
	return list, nil
}

// RemainingDays reports how many whole days of the grace window are
// left, rounded up, never negative. Purely informational.
func RemainingDays(deletedAt, now time.Time) int {
	rem := deletedAt.Add(RetentionDays * 24 * time.Hour).Sub(now)
	if rem <= 0 {
		return 0
	}
	days := int(rem / (24 * time.Hour))
	if rem%(24*time.Hour) != 0 {
		days++
	}
	return days
}
