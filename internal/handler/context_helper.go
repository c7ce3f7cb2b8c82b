package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/classgrid/timetable-engine/internal/middleware"
	"github.com/classgrid/timetable-engine/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
