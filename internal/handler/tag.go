package handler

import (
	"net/http"

	"github.com/andrepetsch/secret-library/internal/models"
	"github.com/andrepetsch/secret-library/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListTags returns all known tags, for pickers and filters.
func ListTags(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tags []models.Tag
		if err := db.Order("name ASC").Find(&tags).Error; err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to list tags")
			return
		}

		items := make([]gin.H, 0, len(tags))
		for i := range tags {
			items = append(items, gin.H{
				"id":   tags[i].ID,
				"name": tags[i].Name,
			})
		}

		util.Success(c, util.Response{
			"items": items,
		})
	}
}
