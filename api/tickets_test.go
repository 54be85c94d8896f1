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

type MockTicketUseCase struct {
	mock.Mock
}

func (m *MockTicketUseCase) IssueTicket(ctx context.Context, input orchestrator.IssueTicketInput) (*orchestrator.IssueTicketResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.IssueTicketResult), args.Error(1)
}

func (m *MockTicketUseCase) VoidTicket(ctx context.Context, input orchestrator.VoidTicketInput) (*orchestrator.VoidTicketResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.VoidTicketResult), args.Error(1)
}

func (m *MockTicketUseCase) RefundTicket(ctx context.Context, input orchestrator.RefundTicketInput) (*orchestrator.RefundTicketResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.RefundTicketResult), args.Error(1)
}

func (m *MockTicketUseCase) ReissueTicket(ctx context.Context, input orchestrator.ReissueTicketInput) (*orchestrator.ReissueTicketResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.ReissueTicketResult), args.Error(1)
}

func ticketRouter(service TicketUseCase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewTicketHandler(service).Register(router.Group("/tickets"))
	return router
}

func TestTicketHandler_Issue(t *testing.T) {
	mockService := &MockTicketUseCase{}
	router := ticketRouter(mockService)

	bookingID := uuid.New()
	ticketID := uuid.New()

	mockService.On("IssueTicket", mock.Anything, mock.AnythingOfType("orchestrator.IssueTicketInput")).
		Return(&orchestrator.IssueTicketResult{
			TicketID:     ticketID,
			TicketNumber: "0012345678901",
			Status:       "ISSUED",
			AmountMinor:  50000,
		}, nil).Once()

	body, _ := json.Marshal(map[string]any{
		"booking_id":      bookingID.String(),
		"idempotency_key": "nonce-1",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tickets/issue", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var rsp orchestrator.IssueTicketResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rsp))
	assert.Equal(t, ticketID, rsp.TicketID)
	assert.Equal(t, int64(50000), rsp.AmountMinor)

	input := mockService.Calls[0].Arguments.Get(1).(orchestrator.IssueTicketInput)
	assert.Equal(t, bookingID, input.BookingID)
	assert.Equal(t, "nonce-1", input.IdempotencyKey)
}

func TestTicketHandler_Issue_MissingIdempotencyKey(t *testing.T) {
	mockService := &MockTicketUseCase{}
	router := ticketRouter(mockService)

	body, _ := json.Marshal(map[string]any{"booking_id": uuid.New().String()})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tickets/issue", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "IssueTicket", mock.Anything, mock.Anything)
}

func TestTicketHandler_Void_ValidationErrorBody(t *testing.T) {
	mockService := &MockTicketUseCase{}
	router := ticketRouter(mockService)

	mockService.On("VoidTicket", mock.Anything, mock.AnythingOfType("orchestrator.VoidTicketInput")).
		Return(nil, &domain.ValidationError{Conditions: []string{
			"Ticket issued more than 24 hours ago",
			"ticket has a flown coupon",
		}}).Once()

	body, _ := json.Marshal(map[string]any{"idempotency_key": "nonce-2"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tickets/"+uuid.New().String()+"/void", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var rsp struct {
		ErrorKind  string   `json:"error_kind"`
		Conditions []string `json:"conditions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rsp))
	assert.Equal(t, "validation", rsp.ErrorKind)
	assert.Len(t, rsp.Conditions, 2)
}

func TestTicketHandler_Refund_InvalidType(t *testing.T) {
	mockService := &MockTicketUseCase{}
	router := ticketRouter(mockService)

	body, _ := json.Marshal(map[string]any{
		"refund_type":     "whole",
		"idempotency_key": "nonce-3",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tickets/"+uuid.New().String()+"/refund", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	mockService.AssertNotCalled(t, "RefundTicket", mock.Anything, mock.Anything)
}

func TestTicketHandler_Void_ConflictStatus(t *testing.T) {
	mockService := &MockTicketUseCase{}
	router := ticketRouter(mockService)

	ticketID := uuid.New()
	mockService.On("VoidTicket", mock.Anything, mock.AnythingOfType("orchestrator.VoidTicketInput")).
		Return(nil, &domain.ConflictError{EntityID: ticketID.String(), Operation: "void_ticket"}).Once()

	body, _ := json.Marshal(map[string]any{"idempotency_key": "nonce-4"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tickets/"+ticketID.String()+"/void", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTicketHandler_Issue_IndeterminateStatus(t *testing.T) {
	mockService := &MockTicketUseCase{}
	router := ticketRouter(mockService)

	mockService.On("IssueTicket", mock.Anything, mock.AnythingOfType("orchestrator.IssueTicketInput")).
		Return(nil, &domain.IndeterminateError{EntityID: uuid.New().String(), Operation: "issue_ticket"}).Once()

	body, _ := json.Marshal(map[string]any{
		"booking_id":      uuid.New().String(),
		"idempotency_key": "nonce-5",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tickets/issue", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)

	var rsp struct {
		ErrorKind string `json:"error_kind"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rsp))
	assert.Equal(t, "indeterminate", rsp.ErrorKind)
}
