package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/andrepetsch/secret-library/internal/models"
	"github.com/andrepetsch/secret-library/internal/storage"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Sweeper permanently removes entries whose grace window has elapsed.
// Safe to run concurrently or repeatedly; with nothing past the window
// a sweep is a no-op.
type Sweeper struct {
	db    *gorm.DB
	blobs storage.BlobStore
	batch int
	log   zerolog.Logger
}

func NewSweeper(db *gorm.DB, blobs storage.BlobStore, batchSize int, log zerolog.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{db: db, blobs: blobs, batch: batchSize, log: log}
}

// Sweep purges everything soft-deleted for longer than the retention
// window, in bounded batches so one invocation cannot run unbounded.
// Partial progress is fine; the next sweep picks up the rest.
//
// Row removal is scoped to the same predicate used for selection, so an
// entry restored after selection is never purged and never loses its
// artifacts. Artifact deletion is best-effort: a dangling blob is an
// acceptable residual, an un-purged row is not.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-RetentionDays * 24 * time.Hour)
	purged := 0

	for {
		select {
		case <-ctx.Done():
			return purged, ctx.Err()
		default:
		}

		var selected []models.Media
		if err := s.db.
			Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
			Limit(s.batch).
			Find(&selected).Error; err != nil {
			return purged, fmt.Errorf("select expired media: %w", err)
		}
		if len(selected) == 0 {
			return purged, nil
		}

		ids := make([]string, 0, len(selected))
		for i := range selected {
			ids = append(ids, selected[i].ID)
		}

		// re-check the predicate inside the transaction and remove the
		// entity rows plus every link row keyed by the confirmed set
		var confirmed []models.Media
		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Preload("Files").
				Where("id IN ? AND deleted_at IS NOT NULL AND deleted_at < ?", ids, cutoff).
				Find(&confirmed).Error; err != nil {
				return err
			}
			if len(confirmed) == 0 {
				return nil
			}
			confirmedIDs := make([]string, 0, len(confirmed))
			for i := range confirmed {
				confirmedIDs = append(confirmedIDs, confirmed[i].ID)
			}

			if err := tx.Where("media_id IN ?", confirmedIDs).Delete(&models.MediaFile{}).Error; err != nil {
				return err
			}
			if err := tx.Where("media_id IN ?", confirmedIDs).Delete(&models.MediaTag{}).Error; err != nil {
				return err
			}
			if err := tx.Where("media_id IN ?", confirmedIDs).Delete(&models.CollectionMedia{}).Error; err != nil {
				return err
			}

			res := tx.Where("id IN ? AND deleted_at IS NOT NULL AND deleted_at < ?", confirmedIDs, cutoff).
				Delete(&models.Media{})
			if res.Error != nil {
				return res.Error
			}
			purged += int(res.RowsAffected)
			return nil
		})
		if err != nil {
			return purged, fmt.Errorf("purge media batch: %w", err)
		}

		// artifacts last: a row restored mid-sweep keeps its blobs
		for i := range confirmed {
			media := &confirmed[i]
			for _, f := range media.Files {
				if err := s.blobs.Delete(f.FileURL); err != nil {
					s.log.Warn().Err(err).Str("media_id", media.ID).Str("url", f.FileURL).
						Msg("delete artifact failed, leaving dangling blob")
				}
			}
			if media.CoverURL != nil {
				if err := s.blobs.Delete(*media.CoverURL); err != nil {
					s.log.Warn().Err(err).Str("media_id", media.ID).Str("url", *media.CoverURL).
						Msg("delete cover failed, leaving dangling blob")
				}
			}
			s.log.Info().Str("media_id", media.ID).Str("title", media.Title).Msg("media purged")
		}

		if len(selected) < s.batch {
			return purged, nil
		}
	}
}
