package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OnlineLister reports the users with at least one live connection.
type OnlineLister interface {
	ListOnline() []string
}

// ListOnline returns the online user ids.
func ListOnline(presence OnlineLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"users": presence.ListOnline()})
	}
}
