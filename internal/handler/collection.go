package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/andrepetsch/secret-library/internal/middleware"
	"github.com/andrepetsch/secret-library/internal/models"
	"github.com/andrepetsch/secret-library/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CollectionHandler 负责收藏夹相关接口
type CollectionHandler struct {
	DB *gorm.DB
}

func NewCollectionHandler(db *gorm.DB) *CollectionHandler {
	return &CollectionHandler{DB: db}
}

type collectionReq struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// List returns the member's collections with their visible media.
func (h *CollectionHandler) List(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	var collections []models.Collection
	if err := h.DB.Where("user_id = ?", user.ID).
		Order("name ASC").
		Find(&collections).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to list collections")
		return
	}

	items := make([]gin.H, 0, len(collections))
	for i := range collections {
		item, err := h.collectionResp(&collections[i])
		if err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to list collections")
			return
		}
		items = append(items, item)
	}

	util.Success(c, util.Response{
		"items": items,
	})
}

// Create adds a new collection. Names are unique per owner.
func (h *CollectionHandler) Create(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	var req collectionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid request")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "collection name is required")
		return
	}

	var count int64
	if err := h.DB.Model(&models.Collection{}).
		Where("user_id = ? AND name = ?", user.ID, name).
		Count(&count).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to check collections")
		return
	}
	if count > 0 {
		util.Error(c, http.StatusConflict, util.CodeConflict, "a collection with this name already exists")
		return
	}

	collection := models.Collection{
		Name:        name,
		Description: req.Description,
		UserID:      user.ID,
	}
	if err := h.DB.Create(&collection).Error; err != nil {
		// unique index catches a racing duplicate
		util.Error(c, http.StatusConflict, util.CodeConflict, "a collection with this name already exists")
		return
	}

	item, err := h.collectionResp(&collection)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load collection")
		return
	}
	util.Success(c, util.Response{
		"collection": item,
	})
}

// Get returns one owned collection with its visible media.
func (h *CollectionHandler) Get(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	collection, ok := h.loadOwned(c, user.ID)
	if !ok {
		return
	}

	item, err := h.collectionResp(collection)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load collection")
		return
	}
	util.Success(c, util.Response{
		"collection": item,
	})
}

// Update renames or re-describes an owned collection.
func (h *CollectionHandler) Update(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	collection, ok := h.loadOwned(c, user.ID)
	if !ok {
		return
	}

	var req collectionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid request")
		return
	}

	if name := strings.TrimSpace(req.Name); name != "" && name != collection.Name {
		var count int64
		if err := h.DB.Model(&models.Collection{}).
			Where("user_id = ? AND name = ? AND id <> ?", user.ID, name, collection.ID).
			Count(&count).Error; err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to check collections")
			return
		}
		if count > 0 {
			util.Error(c, http.StatusConflict, util.CodeConflict, "a collection with this name already exists")
			return
		}
		collection.Name = name
	}
	if req.Description != nil {
		collection.Description = req.Description
	}

	if err := h.DB.Save(collection).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to update collection")
		return
	}

	item, err := h.collectionResp(collection)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load collection")
		return
	}
	util.Success(c, util.Response{
		"collection": item,
	})
}

// Delete removes an owned collection and its membership rows. The media
// entries themselves are untouched.
func (h *CollectionHandler) Delete(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	collection, ok := h.loadOwned(c, user.ID)
	if !ok {
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection_id = ?", collection.ID).Delete(&models.CollectionMedia{}).Error; err != nil {
			return err
		}
		return tx.Delete(collection).Error
	})
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to delete collection")
		return
	}

	util.Success(c, util.Response{
		"message": "collection deleted",
	})
}

type collectionMediaReq struct {
	MediaID string `json:"media_id" binding:"required"`
}

// AddMedia puts an active media entry into an owned collection.
// Soft-deleted entries cannot be added.
func (h *CollectionHandler) AddMedia(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	collection, ok := h.loadOwned(c, user.ID)
	if !ok {
		return
	}

	var req collectionMediaReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "media_id is required")
		return
	}

	var media models.Media
	if err := h.DB.First(&media, "id = ?", req.MediaID).Error; err != nil || media.DeletedAt != nil {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load media")
			return
		}
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "media not found")
		return
	}

	link := models.CollectionMedia{CollectionID: collection.ID, MediaID: media.ID}
	if err := h.DB.FirstOrCreate(&link, link).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to add media to collection")
		return
	}

	item, err := h.collectionResp(collection)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load collection")
		return
	}
	util.Success(c, util.Response{
		"collection": item,
	})
}

// RemoveMedia takes a media entry out of an owned collection.
func (h *CollectionHandler) RemoveMedia(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	collection, ok := h.loadOwned(c, user.ID)
	if !ok {
		return
	}

	mediaID := c.Query("media_id")
	if mediaID == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "media_id is required")
		return
	}

	if err := h.DB.Where("collection_id = ? AND media_id = ?", collection.ID, mediaID).
		Delete(&models.CollectionMedia{}).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to remove media from collection")
		return
	}

	item, err := h.collectionResp(collection)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load collection")
		return
	}
	util.Success(c, util.Response{
		"collection": item,
	})
}

// loadOwned fetches the collection in the URL and enforces ownership.
func (h *CollectionHandler) loadOwned(c *gin.Context, userID uint) (*models.Collection, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid collection id")
		return nil, false
	}

	var collection models.Collection
	if err := h.DB.First(&collection, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "collection not found")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load collection")
		}
		return nil, false
	}
	if collection.UserID != userID {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "you can only access your own collections")
		return nil, false
	}
	return &collection, true
}

// collectionResp renders a collection with its non-deleted media only.
// Soft-deleted members stay linked but disappear from the view.
func (h *CollectionHandler) collectionResp(collection *models.Collection) (gin.H, error) {
	var media []models.Media
	if err := h.DB.Preload("Files").Preload("Uploader").
		Joins("JOIN collection_media ON collection_media.media_id = media.id").
		Where("collection_media.collection_id = ? AND media.deleted_at IS NULL", collection.ID).
		Order("media.uploaded_at DESC").
		Find(&media).Error; err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(media))
	for i := range media {
		ids = append(ids, media[i].ID)
	}
	tags, err := tagsByMedia(h.DB, ids)
	if err != nil {
		return nil, err
	}

	items := make([]gin.H, 0, len(media))
	for i := range media {
		items = append(items, mediaResp(&media[i], tags[media[i].ID], false))
	}

	return gin.H{
		"id":          collection.ID,
		"name":        collection.Name,
		"description": collection.Description,
		"media":       items,
		"media_count": len(items),
		"created_at":  collection.CreatedAt,
	}, nil
}
