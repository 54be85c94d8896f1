package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skyfare/ticketing/internal/domain"
	"github.com/skyfare/ticketing/internal/gds"
	"github.com/skyfare/ticketing/internal/service/orchestrator"
)

// TicketUseCase is the lifecycle surface of the orchestrator.
type TicketUseCase interface {
	IssueTicket(ctx context.Context, input orchestrator.IssueTicketInput) (*orchestrator.IssueTicketResult, error)
	VoidTicket(ctx context.Context, input orchestrator.VoidTicketInput) (*orchestrator.VoidTicketResult, error)
	RefundTicket(ctx context.Context, input orchestrator.RefundTicketInput) (*orchestrator.RefundTicketResult, error)
	ReissueTicket(ctx context.Context, input orchestrator.ReissueTicketInput) (*orchestrator.ReissueTicketResult, error)
}

type TicketHandler struct {
	service TicketUseCase
}

func NewTicketHandler(service TicketUseCase) *TicketHandler {
	return &TicketHandler{service: service}
}

func (h *TicketHandler) Register(router *gin.RouterGroup) {
	router.POST("/issue", h.issue)
	router.POST("/:id/void", h.void)
	router.POST("/:id/refund", h.refund)
	router.POST("/:id/reissue", h.reissue)
}

type issueTicketRequest struct {
	BookingID      string `json:"booking_id" binding:"required"`
	PassengerID    string `json:"passenger_id"`
	PaymentMethod  string `json:"payment_method"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

func (h *TicketHandler) issue(c *gin.Context) {
	var req issueTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "booking_id must be a uuid"})
		return
	}
	var passengerID uuid.UUID
	if req.PassengerID != "" {
		passengerID, err = uuid.Parse(req.PassengerID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "passenger_id must be a uuid"})
			return
		}
	}

	result, err := h.service.IssueTicket(c.Request.Context(), orchestrator.IssueTicketInput{
		BookingID:      bookingID,
		PassengerID:    passengerID,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
		Actor:          actorFrom(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type voidTicketRequest struct {
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

func (h *TicketHandler) void(c *gin.Context) {
	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticket id must be a uuid"})
		return
	}
	var req voidTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.VoidTicket(c.Request.Context(), orchestrator.VoidTicketInput{
		TicketID:       ticketID,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		Actor:          actorFrom(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type refundTicketRequest struct {
	RefundType     string `json:"refund_type" binding:"required"`
	AmountMinor    int64  `json:"amount_minor"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

func (h *TicketHandler) refund(c *gin.Context) {
	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticket id must be a uuid"})
		return
	}
	var req refundTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	refundType := gds.RefundType(req.RefundType)
	if refundType != gds.RefundTypeFull && refundType != gds.RefundTypePartial {
		writeError(c, &domain.ValidationError{Conditions: []string{"refund_type must be full or partial"}})
		return
	}

	result, err := h.service.RefundTicket(c.Request.Context(), orchestrator.RefundTicketInput{
		TicketID:       ticketID,
		RefundType:     refundType,
		AmountMinor:    req.AmountMinor,
		IdempotencyKey: req.IdempotencyKey,
		Actor:          actorFrom(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type reissueSegmentRequest struct {
	Origin       string `json:"origin" binding:"required"`
	Destination  string `json:"destination" binding:"required"`
	FlightNumber string `json:"flight_number" binding:"required"`
	Departure    string `json:"departure" binding:"required"`
}

type reissueTicketRequest struct {
	NewSegments    []reissueSegmentRequest `json:"new_segments" binding:"required"`
	IdempotencyKey string                  `json:"idempotency_key" binding:"required"`
}

func (h *TicketHandler) reissue(c *gin.Context) {
	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticket id must be a uuid"})
		return
	}
	var req reissueTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	segments := make([]gds.ReissueSegment, 0, len(req.NewSegments))
	for _, s := range req.NewSegments {
		departure, err := time.Parse(time.RFC3339, s.Departure)
		if err != nil {
			writeError(c, &domain.ValidationError{Conditions: []string{"departure must be RFC 3339"}})
			return
		}
		segments = append(segments, gds.ReissueSegment{
			Origin:       s.Origin,
			Destination:  s.Destination,
			FlightNumber: s.FlightNumber,
			Departure:    departure,
		})
	}

	result, err := h.service.ReissueTicket(c.Request.Context(), orchestrator.ReissueTicketInput{
		TicketID:       ticketID,
		NewSegments:    segments,
		IdempotencyKey: req.IdempotencyKey,
		Actor:          actorFrom(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
