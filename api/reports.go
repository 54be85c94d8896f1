package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skyfare/ticketing/internal/domain"
	"github.com/skyfare/ticketing/internal/repository"
)

// ReportHandler serves ledger and audit queries for reconciliation and
// back-office reporting. All endpoints are read-only.
type ReportHandler struct {
	ledger repository.LedgerRepository
	audit  repository.AuditRepository
}

func NewReportHandler(ledger repository.LedgerRepository, audit repository.AuditRepository) *ReportHandler {
	return &ReportHandler{ledger: ledger, audit: audit}
}

func (h *ReportHandler) Register(router *gin.RouterGroup) {
	router.GET("/ledger", h.ledgerByRange)
	router.GET("/ledger/:booking_id", h.ledgerByBooking)
	router.GET("/audit", h.auditByRange)
	router.GET("/audit/:booking_id", h.auditByBooking)
}

func (h *ReportHandler) ledgerByBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "booking_id must be a uuid"})
		return
	}
	entries, err := h.ledger.EntriesByBooking(c.Request.Context(), bookingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *ReportHandler) ledgerByRange(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		writeError(c, err)
		return
	}
	entries, err := h.ledger.EntriesByDateRange(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *ReportHandler) auditByBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "booking_id must be a uuid"})
		return
	}
	entries, err := h.audit.EntriesByBooking(c.Request.Context(), bookingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *ReportHandler) auditByRange(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		writeError(c, err)
		return
	}
	entries, err := h.audit.EntriesByDateRange(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func dateRange(c *gin.Context) (time.Time, time.Time, error) {
	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		return time.Time{}, time.Time{}, &domain.ValidationError{Conditions: []string{"from must be YYYY-MM-DD"}}
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		return time.Time{}, time.Time{}, &domain.ValidationError{Conditions: []string{"to must be YYYY-MM-DD"}}
	}
	return from, to.Add(24 * time.Hour), nil
}
