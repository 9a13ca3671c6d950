package middleware

import (
	"net/http"

	"github.com/andrepetsch/secret-library/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuditMiddleware records mutating requests of signed-in members.
func AuditMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// 只记录登录用户的写操作
		if c.Request.Method == http.MethodGet {
			return
		}
		user := CurrentUser(c)
		if user == nil {
			return
		}

		userID := user.ID
		entry := models.AuditLog{
			UserID:    &userID,
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			Status:    c.Writer.Status(),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}

		_ = db.Create(&entry).Error
	}
}
