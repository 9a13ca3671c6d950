package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/andrepetsch/secret-library/internal/lifecycle"
	"github.com/andrepetsch/secret-library/internal/middleware"
	"github.com/andrepetsch/secret-library/internal/models"
	"github.com/andrepetsch/secret-library/internal/storage"
	"github.com/andrepetsch/secret-library/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaHandler 负责媒体条目相关接口
type MediaHandler struct {
	DB      *gorm.DB
	Blobs   storage.BlobStore
	Manager *lifecycle.Manager
	Sweeper *lifecycle.Sweeper
}

func NewMediaHandler(db *gorm.DB, blobs storage.BlobStore, manager *lifecycle.Manager, sweeper *lifecycle.Sweeper) *MediaHandler {
	return &MediaHandler{
		DB:      db,
		Blobs:   blobs,
		Manager: manager,
		Sweeper: sweeper,
	}
}

// uploadMeta is the validated metadata accepted alongside an upload.
// Exactly these fields are recognized; unknown media types default to
// Book instead of being stored verbatim.
type uploadMeta struct {
	Title           string
	Author          *string
	Description     *string
	Language        *string
	PublicationDate *string
	MediaType       string
	Tags            []string
	MediaID         string
}

func parseUploadMeta(c *gin.Context) (*uploadMeta, error) {
	meta := &uploadMeta{
		Title:   strings.TrimSpace(c.PostForm("title")),
		MediaID: strings.TrimSpace(c.PostForm("mediaId")),
	}
	if meta.Title == "" {
		return nil, errors.New("title is required")
	}

	optional := func(field string) *string {
		if v := strings.TrimSpace(c.PostForm(field)); v != "" {
			return &v
		}
		return nil
	}
	meta.Author = optional("author")
	meta.Description = optional("description")
	meta.Language = optional("language")
	meta.PublicationDate = optional("publicationDate")

	meta.MediaType = c.PostForm("mediaType")
	if !models.ValidMediaType(meta.MediaType) {
		meta.MediaType = models.MediaTypeBook
	}

	meta.Tags = splitTags(c.PostForm("tags"))
	return meta, nil
}

func splitTags(csv string) []string {
	var tags []string
	for _, p := range strings.Split(csv, ",") {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// fileTypeOf maps the uploaded part to epub/pdf, preferring the declared
// content type and falling back to the file extension.
func fileTypeOf(contentType, filename string) (string, bool) {
	switch contentType {
	case "application/epub+zip":
		return models.FileTypeEpub, true
	case "application/pdf":
		return models.FileTypePdf, true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".epub":
		return models.FileTypeEpub, true
	case ".pdf":
		return models.FileTypePdf, true
	}
	return "", false
}

// Upload creates a new media entry from a multipart upload, or attaches
// an additional file to an existing entry when mediaId is given. An
// entry carries at most one file per format.
func (h *MediaHandler) Upload(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "file is required")
		return
	}

	meta, err := parseUploadMeta(c)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}

	fileType, ok := fileTypeOf(fileHeader.Header.Get("Content-Type"), fileHeader.Filename)
	if !ok {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "only EPUB and PDF files are allowed")
		return
	}

	if meta.MediaID != "" {
		h.addFile(c, user, meta.MediaID, fileHeader, fileType)
		return
	}

	fileURL, err := h.saveBlob(fileHeader)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to store file")
		return
	}

	media := models.Media{
		ID:              uuid.New().String(),
		Title:           meta.Title,
		Author:          meta.Author,
		Description:     meta.Description,
		Language:        meta.Language,
		PublicationDate: meta.PublicationDate,
		MediaType:       meta.MediaType,
		UploadedBy:      user.ID,
		UploadedAt:      time.Now(),
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&media).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.MediaFile{
			MediaID:  media.ID,
			FileURL:  fileURL,
			FileType: fileType,
		}).Error; err != nil {
			return err
		}
		return replaceMediaTags(tx, media.ID, meta.Tags)
	})
	if err != nil {
		_ = h.Blobs.Delete(fileURL)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to save media")
		return
	}

	h.respondWithMedia(c, media.ID)
}

// addFile attaches an additional format to an existing, owned entry.
func (h *MediaHandler) addFile(c *gin.Context, user *models.User, mediaID string, fileHeader *multipart.FileHeader, fileType string) {
	var media models.Media
	if err := h.DB.First(&media, "id = ?", mediaID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "media not found")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load media")
		}
		return
	}
	if media.UploadedBy != user.ID {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "you can only add files to your own media")
		return
	}

	var count int64
	if err := h.DB.Model(&models.MediaFile{}).
		Where("media_id = ? AND file_type = ?", mediaID, fileType).
		Count(&count).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to check files")
		return
	}
	if count > 0 {
		util.Error(c, http.StatusConflict, util.CodeConflict, "a "+strings.ToUpper(fileType)+" file already exists for this media")
		return
	}

	fileURL, err := h.saveBlob(fileHeader)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to store file")
		return
	}

	if err := h.DB.Create(&models.MediaFile{
		MediaID:  mediaID,
		FileURL:  fileURL,
		FileType: fileType,
	}).Error; err != nil {
		_ = h.Blobs.Delete(fileURL)
		// the unique index catches a racing duplicate upload
		util.Error(c, http.StatusConflict, util.CodeConflict, "a "+strings.ToUpper(fileType)+" file already exists for this media")
		return
	}

	h.respondWithMedia(c, mediaID)
}

func (h *MediaHandler) saveBlob(fileHeader *multipart.FileHeader) (string, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	return h.Blobs.Save(fileHeader.Filename, src)
}

// List returns the library-wide active listing.
func (h *MediaHandler) List(c *gin.Context) {
	list, err := h.Manager.ListActive()
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to list media")
		return
	}

	items, err := h.toMediaList(list, false)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to list media")
		return
	}

	util.Success(c, util.Response{
		"items": items,
	})
}

// ListDeleted returns the current member's trash with the remaining
// grace days per entry.
func (h *MediaHandler) ListDeleted(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	list, err := h.Manager.ListDeleted(user.ID)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to list deleted media")
		return
	}

	items, err := h.toMediaList(list, true)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to list deleted media")
		return
	}

	util.Success(c, util.Response{
		"items": items,
	})
}

// Get fetches a single entry by id.
func (h *MediaHandler) Get(c *gin.Context) {
	h.respondWithMedia(c, c.Param("id"))
}

type updateMediaReq struct {
	Title           *string   `json:"title"`
	Author          *string   `json:"author"`
	Description     *string   `json:"description"`
	Language        *string   `json:"language"`
	PublicationDate *string   `json:"publicationDate"`
	MediaType       *string   `json:"mediaType"`
	Tags            *[]string `json:"tags"`
}

// Update edits an owned entry's metadata. Only provided fields change;
// a provided tag list replaces the previous one.
func (h *MediaHandler) Update(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	id := c.Param("id")

	var req updateMediaReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid request")
		return
	}

	var media models.Media
	if err := h.DB.First(&media, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "media not found")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load media")
		}
		return
	}
	if media.UploadedBy != user.ID {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "you can only edit your own media")
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Author != nil {
		updates["author"] = req.Author
	}
	if req.Description != nil {
		updates["description"] = req.Description
	}
	if req.Language != nil {
		updates["language"] = req.Language
	}
	if req.PublicationDate != nil {
		updates["publication_date"] = req.PublicationDate
	}
	if req.MediaType != nil && models.ValidMediaType(*req.MediaType) {
		updates["media_type"] = *req.MediaType
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.Media{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return err
			}
		}
		if req.Tags != nil {
			return replaceMediaTags(tx, id, *req.Tags)
		}
		return nil
	})
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to update media")
		return
	}

	h.respondWithMedia(c, id)
}

// Delete soft-deletes an owned entry, starting the grace window.
func (h *MediaHandler) Delete(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	if err := h.Manager.SoftDelete(c.Param("id"), user.ID); err != nil {
		lifecycleError(c, err)
		return
	}

	util.Success(c, util.Response{
		"message": "media soft deleted",
	})
}

// Restore brings an owned entry back from the trash.
func (h *MediaHandler) Restore(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	id := c.Param("id")
	if err := h.Manager.Restore(id, user.ID); err != nil {
		lifecycleError(c, err)
		return
	}

	h.respondWithMedia(c, id)
}

// Cleanup runs the purge sweep on demand.
func (h *MediaHandler) Cleanup(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	purged, err := h.Sweeper.Sweep(c.Request.Context())
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "cleanup failed")
		return
	}

	util.Success(c, util.Response{
		"purged_count": purged,
	})
}

func lifecycleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "media not found")
	case errors.Is(err, lifecycle.ErrForbidden):
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "media belongs to another member")
	case errors.Is(err, lifecycle.ErrAlreadyDeleted):
		util.Error(c, http.StatusConflict, util.CodeInvalidState, "media already deleted")
	case errors.Is(err, lifecycle.ErrNotDeleted):
		util.Error(c, http.StatusConflict, util.CodeInvalidState, "media is not deleted")
	default:
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "operation failed")
	}
}

// ---------- 响应组装 ----------

func (h *MediaHandler) respondWithMedia(c *gin.Context, id string) {
	var media models.Media
	if err := h.DB.Preload("Files").Preload("Uploader").First(&media, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "media not found")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load media")
		}
		return
	}

	tags, err := tagsByMedia(h.DB, []string{media.ID})
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load tags")
		return
	}

	util.Success(c, util.Response{
		"media": mediaResp(&media, tags[media.ID], false),
	})
}

func (h *MediaHandler) toMediaList(list []models.Media, withRemaining bool) ([]gin.H, error) {
	ids := make([]string, 0, len(list))
	for i := range list {
		ids = append(ids, list[i].ID)
	}
	tags, err := tagsByMedia(h.DB, ids)
	if err != nil {
		return nil, err
	}

	items := make([]gin.H, 0, len(list))
	for i := range list {
		items = append(items, mediaResp(&list[i], tags[list[i].ID], withRemaining))
	}
	return items, nil
}

func mediaResp(m *models.Media, tags []string, withRemaining bool) gin.H {
	files := make([]gin.H, 0, len(m.Files))
	for i := range m.Files {
		f := &m.Files[i]
		files = append(files, gin.H{
			"id":        f.ID,
			"file_url":  f.FileURL,
			"file_type": f.FileType,
		})
	}
	if tags == nil {
		tags = []string{}
	}

	resp := gin.H{
		"id":               m.ID,
		"title":            m.Title,
		"author":           m.Author,
		"description":      m.Description,
		"language":         m.Language,
		"publication_date": m.PublicationDate,
		"media_type":       m.MediaType,
		"cover_url":        m.CoverURL,
		"uploaded_at":      m.UploadedAt,
		"files":            files,
		"tags":             tags,
		"uploader": gin.H{
			"name":  m.Uploader.DisplayName,
			"email": m.Uploader.Email,
		},
	}
	if m.DeletedAt != nil {
		resp["deleted_at"] = m.DeletedAt
		if withRemaining {
			resp["remaining_days"] = lifecycle.RemainingDays(*m.DeletedAt, time.Now())
		}
	}
	return resp
}

// ---------- tag 帮助函数 ----------

// replaceMediaTags clears the entry's tag links and relinks the given
// names, creating unseen tags on first use.
func replaceMediaTags(tx *gorm.DB, mediaID string, names []string) error {
	if err := tx.Where("media_id = ?", mediaID).Delete(&models.MediaTag{}).Error; err != nil {
		return err
	}
	for _, name := range uniqueNames(names) {
		var tag models.Tag
		if err := tx.Where("name = ?", name).FirstOrCreate(&tag, models.Tag{Name: name}).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.MediaTag{MediaID: mediaID, TagID: tag.ID}).Error; err != nil {
			return err
		}
	}
	return nil
}

func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// tagsByMedia loads the tag names of each media id in one query.
func tagsByMedia(db *gorm.DB, mediaIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(mediaIDs))
	if len(mediaIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		MediaID string
		Name    string
	}
	if err := db.Model(&models.MediaTag{}).
		Select("media_tags.media_id, tags.name").
		Joins("JOIN tags ON tags.id = media_tags.tag_id").
		Where("media_tags.media_id IN ?", mediaIDs).
		Order("tags.name ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, r := range rows {
		result[r.MediaID] = append(result[r.MediaID], r.Name)
	}
	return result, nil
}
