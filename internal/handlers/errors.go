package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/draftforge/draftforge-backend/internal/pipeline/graph"
	"github.com/draftforge/draftforge-backend/internal/pipeline/parser"
	"github.com/draftforge/draftforge-backend/internal/pipeline/ratelimit"
	"github.com/draftforge/draftforge-backend/internal/platform/gemini"
)

// writeError maps pipeline failures to HTTP responses. The body always
// carries an error code the UI can branch on.
func writeError(c *gin.Context, err error) {
	var rle *ratelimit.RateLimitError
	if errors.As(err, &rle) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":    "rate_limited",
			"message":  err.Error(),
			"reset_at": rle.ResetAt.Format(time.RFC3339),
		})
		return
	}

	var pe *parser.ParseError
	if errors.As(err, &pe) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "parse_error",
			"message": pe.Reason,
			"preview": pe.Preview,
		})
		return
	}

	if kind := gemini.KindOf(err); kind != "" {
		status := http.StatusBadGateway
		switch kind {
		case gemini.ErrNotConfigured:
			status = http.StatusServiceUnavailable
		case gemini.ErrRateLimited:
			status = http.StatusTooManyRequests
		case gemini.ErrTimeout:
			status = http.StatusGatewayTimeout
		case gemini.ErrSafetyBlocked, gemini.ErrPromptBlocked:
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": string(kind), "message": err.Error()})
		return
	}

	switch {
	case errors.Is(err, graph.ErrSelectionFull), errors.Is(err, graph.ErrProblemAlreadySolved):
		c.JSON(http.StatusConflict, gin.H{"error": "selection_conflict", "message": err.Error()})
	case errors.Is(err, graph.ErrUnknownSuggestion):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_suggestion", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": err.Error()})
	}
}
