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

// BookingUseCase is the booking-side surface of the orchestrator.
type BookingUseCase interface {
	CreateBooking(ctx context.Context, input orchestrator.CreateBookingInput) (*orchestrator.CreateBookingResult, error)
	RetrieveBooking(ctx context.Context, pnr string) (*orchestrator.BookingSnapshot, error)
	RecordPayment(ctx context.Context, bookingID uuid.UUID, actor string) error
	CancelBooking(ctx context.Context, input orchestrator.CancelBookingInput) (*orchestrator.CancelBookingResult, error)
}

type BookingHandler struct {
	service BookingUseCase
}

func NewBookingHandler(service BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/:pnr", h.retrieve)
	router.POST("/:pnr/payment", h.recordPayment)
	router.POST("/:pnr/cancel", h.cancel)
}

type passengerRequest struct {
	FirstName      string `json:"first_name" binding:"required"`
	LastName       string `json:"last_name" binding:"required"`
	PTC            string `json:"ptc" binding:"required"`
	Birthdate      string `json:"birthdate" binding:"required"`
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	DocumentExpiry string `json:"document_expiry"`
	Nationality    string `json:"nationality"`
}

type createBookingRequest struct {
	AgentID            string             `json:"agent_id" binding:"required"`
	Vendor             string             `json:"vendor" binding:"required"`
	ItineraryRef       string             `json:"itinerary_ref" binding:"required"`
	PricingSolutionKey string             `json:"pricing_solution_key" binding:"required"`
	Passengers         []passengerRequest `json:"passengers" binding:"required"`
	ContactEmail       string             `json:"contact_email"`
	ContactPhone       string             `json:"contact_phone"`
	IdempotencyKey     string             `json:"idempotency_key" binding:"required"`
}

type bookingResponse struct {
	BookingID string `json:"booking_id"`
	PNR       string `json:"pnr"`
	Status    string `json:"status"`
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id must be a uuid"})
		return
	}

	passengers := make([]orchestrator.PassengerInput, 0, len(req.Passengers))
	for _, p := range req.Passengers {
		input, err := toPassengerInput(p)
		if err != nil {
			writeError(c, err)
			return
		}
		passengers = append(passengers, input)
	}

	result, err := h.service.CreateBooking(c.Request.Context(), orchestrator.CreateBookingInput{
		AgentID:            agentID,
		Vendor:             req.Vendor,
		ItineraryRef:       req.ItineraryRef,
		PricingSolutionKey: req.PricingSolutionKey,
		Passengers:         passengers,
		Contact: gds.ContactInfo{
			Email: req.ContactEmail,
			Phone: req.ContactPhone,
		},
		IdempotencyKey: req.IdempotencyKey,
		Actor:          actorFrom(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, bookingResponse{
		BookingID: result.BookingID.String(),
		PNR:       result.PNR,
		Status:    result.Status,
	})
}

func (h *BookingHandler) retrieve(c *gin.Context) {
	snapshot, err := h.service.RetrieveBooking(c.Request.Context(), c.Param("pnr"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *BookingHandler) recordPayment(c *gin.Context) {
	snapshot, err := h.service.RetrieveBooking(c.Request.Context(), c.Param("pnr"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.service.RecordPayment(c.Request.Context(), snapshot.Booking.ID, actorFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "payment_captured"})
}

type cancelBookingRequest struct {
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

func (h *BookingHandler) cancel(c *gin.Context) {
	var req cancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snapshot, err := h.service.RetrieveBooking(c.Request.Context(), c.Param("pnr"))
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := h.service.CancelBooking(c.Request.Context(), orchestrator.CancelBookingInput{
		BookingID:      snapshot.Booking.ID,
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

func toPassengerInput(p passengerRequest) (orchestrator.PassengerInput, error) {
	birthdate, err := time.Parse("2006-01-02", p.Birthdate)
	if err != nil {
		return orchestrator.PassengerInput{}, &domain.ValidationError{Conditions: []string{"birthdate must be YYYY-MM-DD"}}
	}
	var expiry time.Time
	if p.DocumentExpiry != "" {
		expiry, err = time.Parse("2006-01-02", p.DocumentExpiry)
		if err != nil {
			return orchestrator.PassengerInput{}, &domain.ValidationError{Conditions: []string{"document_expiry must be YYYY-MM-DD"}}
		}
	}
	return orchestrator.PassengerInput{
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		PTC:            p.PTC,
		Birthdate:      birthdate,
		DocumentType:   p.DocumentType,
		DocumentNumber: p.DocumentNumber,
		DocumentExpiry: expiry,
		Nationality:    p.Nationality,
	}, nil
}

func actorFrom(c *gin.Context) string {
	if actor := c.GetHeader("X-Actor"); actor != "" {
		return actor
	}
	return "api"
}
