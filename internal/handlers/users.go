package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-gateway/internal/service"
)

type UserHandler struct {
	svc *service.Service
	log *slog.Logger
}

func NewUserHandler(svc *service.Service, log *slog.Logger) *UserHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UserHandler{svc: svc, log: log}
}

// Search finds other users by name or email.
func (h *UserHandler) Search(c *gin.Context) {
	users, err := h.svc.SearchUsers(c.Request.Context(), userIDFromContext(c), c.Query("q"))
	if err != nil {
		respondError(c, h.log, err, "failed to search users")
		return
	}
	c.JSON(http.StatusOK, users)
}
