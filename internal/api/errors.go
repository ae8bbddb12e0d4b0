package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"docsynth/internal/synthesis"
)

// statusFor maps the synthesis error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		validation *synthesis.ValidationError
		empty      *synthesis.EmptySourceSetError
		notFound   *synthesis.NotFoundError
		race       *synthesis.RaceAmbiguousError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &empty):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &race):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"success": false, "status": "error", "error": err.Error()}
	var race *synthesis.RaceAmbiguousError
	if errors.As(err, &race) && race.JobID != "" {
		body["jobId"] = race.JobID
	}
	if status == http.StatusInternalServerError {
		log.Printf("api: %s %s failed (operator %q): %v", c.Request.Method, c.FullPath(), operatorOf(c), err)
	}
	c.JSON(status, body)
}
