package telegram

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter собирает HTTP-маршруты: проверка живости и раздача
// сохранённых изображений (оригиналы, кропы, тепловые карты).
// db может быть nil — тогда /healthz проверяет только сам процесс.
func NewRouter(db *sql.DB, mediaRoot string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if mediaRoot != "" {
		r.Static("/media", mediaRoot)
	}

	return r
}
