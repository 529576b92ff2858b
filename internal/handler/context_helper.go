package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/homeschool-api/internal/middleware"
	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentClaims(c)
}

// viewerFromContext returns the authenticated principal or false when the
// request carries no claims.
func viewerFromContext(c *gin.Context) (models.Viewer, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.Viewer{}, false
	}
	return models.ViewerFromClaims(claims), true
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(c *gin.Context, name string) (*calendar.Date, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	date, err := calendar.Parse(raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, name+" must be a YYYY-MM-DD date")
	}
	return &date, nil
}

func queryPage(c *gin.Context) (page, size int) {
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		size = v
	}
	return page, size
}

func requestMeta(c *gin.Context) models.LoginRequest {
	return models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}
