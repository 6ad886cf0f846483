package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ledger-core/internal/pkg/logging"
)

// MakeListDeadLetterHandler exposes the dead-letter queue for operator
// inspection: the terminal outcome for a command whose errors exhausted
// every retry.
func MakeListDeadLetterHandler(container HandlerDependencies) gin.HandlerFunc {
	store := container.GetStore()

	return func(c *gin.Context) {
		limit := 50
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		items, err := store.ListDeadLetter(c.Request.Context(), limit)
		if err != nil {
			logging.Error("dead_letter listing failed", err, nil)
			c.JSON(http.StatusInternalServerError, gin.H{"code": "dead_letter_query_failed", "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}
