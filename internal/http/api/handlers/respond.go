package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/QRMenuBilling/internal/invoice"
	"github.com/router-for-me/QRMenuBilling/internal/usage"
	log "github.com/sirupsen/logrus"
)

// parseIDParam reads a positive integer path parameter.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// writeError maps domain errors onto HTTP statuses. Unknown errors are logged
// and reported as fallback.
func writeError(c *gin.Context, err error, fallback string) {
	var limitErr *usage.LimitError
	switch {
	case errors.Is(err, invoice.ErrNotFound), errors.Is(err, usage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &limitErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":     "limit exceeded",
			"resource":  limitErr.Resource,
			"limit":     limitErr.Limit,
			"current":   limitErr.Current,
			"requested": limitErr.Requested,
		})
	case errors.Is(err, invoice.ErrInvalidTransition),
		errors.Is(err, invoice.ErrInvoiceLocked),
		errors.Is(err, invoice.ErrSequenceExhausted),
		errors.Is(err, usage.ErrLimitExceeded),
		errors.Is(err, usage.ErrInactiveSubscription):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, invoice.ErrInvalidInput),
		errors.Is(err, usage.ErrUnknownResource),
		errors.Is(err, usage.ErrInvalidAmount):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
