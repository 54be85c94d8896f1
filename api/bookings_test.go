package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skyfare/ticketing/internal/domain"
	"github.com/skyfare/ticketing/internal/service/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) CreateBooking(ctx context.Context, input orchestrator.CreateBookingInput) (*orchestrator.CreateBookingResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.CreateBookingResult), args.Error(1)
}

func (m *MockBookingUseCase) RetrieveBooking(ctx context.Context, pnr string) (*orchestrator.BookingSnapshot, error) {
	args := m.Called(ctx, pnr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.BookingSnapshot), args.Error(1)
}

func (m *MockBookingUseCase) RecordPayment(ctx context.Context, bookingID uuid.UUID, actor string) error {
	args := m.Called(ctx, bookingID, actor)
	return args.Error(0)
}

func (m *MockBookingUseCase) CancelBooking(ctx context.Context, input orchestrator.CancelBookingInput) (*orchestrator.CancelBookingResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.CancelBookingResult), args.Error(1)
}

func bookingRouter(service BookingUseCase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewBookingHandler(service).Register(router.Group("/bookings"))
	return router
}

func validCreateBody() map[string]any {
	return map[string]any{
		"agent_id":             uuid.New().String(),
		"vendor":               "galileo",
		"itinerary_ref":        "itin-1",
		"pricing_solution_key": "psk-1",
		"passengers": []map[string]any{{
			"first_name": "IVAN",
			"last_name":  "PETROV",
			"ptc":        "ADT",
			"birthdate":  "1990-04-12",
		}},
		"contact_email":   "ivan@example.com",
		"idempotency_key": "nonce-1",
	}
}

func TestBookingHandler_Create(t *testing.T) {
	mockService := &MockBookingUseCase{}
	router := bookingRouter(mockService)

	bookingID := uuid.New()
	mockService.On("CreateBooking", mock.Anything, mock.AnythingOfType("orchestrator.CreateBookingInput")).
		Return(&orchestrator.CreateBookingResult{
			BookingID: bookingID,
			PNR:       "ABC123",
			Status:    "PENDING_PAYMENT",
		}, nil).Once()

	body, _ := json.Marshal(validCreateBody())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bookings/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "agent-42")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var rsp bookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rsp))
	assert.Equal(t, bookingID.String(), rsp.BookingID)
	assert.Equal(t, "ABC123", rsp.PNR)
	assert.Equal(t, "PENDING_PAYMENT", rsp.Status)

	input := mockService.Calls[0].Arguments.Get(1).(orchestrator.CreateBookingInput)
	assert.Equal(t, "galileo", input.Vendor)
	assert.Equal(t, "agent-42", input.Actor)
	require.Len(t, input.Passengers, 1)
	assert.Equal(t, "IVAN", input.Passengers[0].FirstName)
	assert.Equal(t, 1990, input.Passengers[0].Birthdate.Year())
}

func TestBookingHandler_Create_MissingFields(t *testing.T) {
	mockService := &MockBookingUseCase{}
	router := bookingRouter(mockService)

	body, _ := json.Marshal(map[string]any{"vendor": "galileo"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bookings/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestBookingHandler_Create_BadBirthdate(t *testing.T) {
	mockService := &MockBookingUseCase{}
	router := bookingRouter(mockService)

	payload := validCreateBody()
	payload["passengers"] = []map[string]any{{
		"first_name": "IVAN",
		"last_name":  "PETROV",
		"ptc":        "ADT",
		"birthdate":  "12.04.1990",
	}}
	body, _ := json.Marshal(payload)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bookings/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var rsp struct {
		ErrorKind  string   `json:"error_kind"`
		Conditions []string `json:"conditions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rsp))
	assert.Equal(t, "validation", rsp.ErrorKind)
	assert.Contains(t, rsp.Conditions, "birthdate must be YYYY-MM-DD")
	mockService.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestBookingHandler_Retrieve(t *testing.T) {
	mockService := &MockBookingUseCase{}
	router := bookingRouter(mockService)

	booking := &domain.Booking{ID: uuid.New(), PNR: "ABC123", Status: domain.BookingStatusConfirmed}
	mockService.On("RetrieveBooking", mock.Anything, "ABC123").
		Return(&orchestrator.BookingSnapshot{Booking: booking}, nil).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bookings/ABC123", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var rsp orchestrator.BookingSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rsp))
	require.NotNil(t, rsp.Booking)
	assert.Equal(t, "ABC123", rsp.Booking.PNR)
}

func TestBookingHandler_Retrieve_NotFound(t *testing.T) {
	mockService := &MockBookingUseCase{}
	router := bookingRouter(mockService)

	mockService.On("RetrieveBooking", mock.Anything, "ZZZ999").
		Return(nil, domain.ErrNotFound).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bookings/ZZZ999", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBookingHandler_RecordPayment(t *testing.T) {
	mockService := &MockBookingUseCase{}
	router := bookingRouter(mockService)

	booking := &domain.Booking{ID: uuid.New(), PNR: "ABC123", Status: domain.BookingStatusPendingPayment}
	mockService.On("RetrieveBooking", mock.Anything, "ABC123").
		Return(&orchestrator.BookingSnapshot{Booking: booking}, nil).Once()
	mockService.On("RecordPayment", mock.Anything, booking.ID, "api").
		Return(nil).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bookings/ABC123/payment", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_Cancel(t *testing.T) {
	mockService := &MockBookingUseCase{}
	router := bookingRouter(mockService)

	booking := &domain.Booking{ID: uuid.New(), PNR: "ABC123", Status: domain.BookingStatusConfirmed}
	mockService.On("RetrieveBooking", mock.Anything, "ABC123").
		Return(&orchestrator.BookingSnapshot{Booking: booking}, nil).Once()
	mockService.On("CancelBooking", mock.Anything, mock.AnythingOfType("orchestrator.CancelBookingInput")).
		Return(&orchestrator.CancelBookingResult{Status: "CANCELLED"}, nil).Once()

	body, _ := json.Marshal(map[string]any{"reason": "schedule change", "idempotency_key": "nonce-9"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bookings/ABC123/cancel", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	input := mockService.Calls[1].Arguments.Get(1).(orchestrator.CancelBookingInput)
	assert.Equal(t, booking.ID, input.BookingID)
	assert.Equal(t, "schedule change", input.Reason)
}
