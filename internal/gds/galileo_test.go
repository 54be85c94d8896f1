package gds

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skyfare/ticketing/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type capturedRequest struct {
	path string
	body []byte
}

func galileoFixture(t *testing.T, response string) (*GalileoAdapter, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.body, _ = io.ReadAll(r.Body)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	client := NewClient("galileo", config.VendorConfig{
		BaseURL:      srv.URL,
		TargetBranch: "P105",
		PointOfSale:  "SVO",
	}, zap.NewNop())
	return NewGalileoAdapter(client).(*GalileoAdapter), captured
}

func TestGalileoSearch_WireFields(t *testing.T) {
	adapter, captured := galileoFixture(t, `{"airPricingSolution":[
		{"key":"sol-1","totalPrice":"500.00","carrier":"SU",
		 "airSegment":[{"origin":"SVO","destination":"JFK","flightNumber":"SU100","departureTime":"2026-09-01T10:30:00"}]}
	]}`)

	departure := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	res, err := adapter.SearchFlights(context.Background(), SearchParams{
		Legs:       []SearchLeg{{Origin: "SVO", Destination: "JFK", Departure: departure}},
		Passengers: []SearchPassenger{{Code: "ADT", Quantity: 2}},
	})

	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "/air/lowfaresearch", captured.path)
	body := string(captured.body)
	assert.Equal(t, "P105", gjson.Get(body, "targetBranch").String())
	assert.Equal(t, "SVO", gjson.Get(body, "billingPointOfSaleInfo.origin").String())
	assert.Equal(t, "ADT", gjson.Get(body, "searchPassenger.0.code").String())
	assert.Equal(t, int64(2), gjson.Get(body, "searchPassenger.0.quantity").Int())
	assert.Equal(t, "SVO", gjson.Get(body, "searchAirLeg.0.searchOrigin").String())
	assert.Equal(t, "JFK", gjson.Get(body, "searchAirLeg.0.searchDestination").String())
	assert.Equal(t, "2026-09-01T00:00:00", gjson.Get(body, "searchAirLeg.0.searchDepartureTime").String())

	data := res.Data.(SearchData)
	require.Len(t, data.Options, 1)
	assert.Equal(t, "sol-1", data.Options[0].PricingSolutionKey)
	assert.Equal(t, int64(50000), data.Options[0].TotalAmountMinor)
}

func TestGalileoCreateBooking_WireFields(t *testing.T) {
	adapter, captured := galileoFixture(t, `{"universalRecord":{
		"locatorCode":"ABC123","status":"ACTIVE","totalPrice":"500.00"}}`)

	res, err := adapter.CreateBooking(context.Background(), BookingParams{
		PricingSolutionKey: "sol-1",
		Travelers: []TravelerInfo{
			{FirstName: "IVAN", LastName: "PETROV", PTC: "ADT", Birthdate: time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)},
		},
	})

	require.NoError(t, err)
	require.True(t, res.Success)

	body := string(captured.body)
	assert.Equal(t, "sol-1", gjson.Get(body, "airPricingSolution.key").String())
	assert.Equal(t, "IVAN", gjson.Get(body, "bookingTraveler.0.first").String())
	assert.Equal(t, "PETROV", gjson.Get(body, "bookingTraveler.0.last").String())
	assert.Equal(t, "ADT", gjson.Get(body, "bookingTraveler.0.travelerType").String())

	data := res.Data.(BookingData)
	assert.Equal(t, "ABC123", data.Locator)
	assert.Equal(t, int64(50000), data.TotalAmountMinor)
}

func TestGalileoRetrieve_WireFields(t *testing.T) {
	adapter, captured := galileoFixture(t, `{"universalRecord":{
		"locatorCode":"ABC123","status":"TICKETED","totalPrice":"500.00",
		"etr":[{"ticketNumber":"0012345678901"}]}}`)

	res, err := adapter.RetrieveBooking(context.Background(), "ABC123")

	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "/universalrecord/retrieve", captured.path)
	assert.Equal(t, "ABC123", gjson.Get(string(captured.body), "universalRecordLocatorCode").String())

	data := res.Data.(BookingData)
	assert.Equal(t, []string{"0012345678901"}, data.TicketNumbers)
}

func TestGalileoRefund_WireFields(t *testing.T) {
	adapter, captured := galileoFixture(t, `{"refundAmount":{"amount":"450.00","currency":"USD"}}`)

	res, err := adapter.RefundTicket(context.Background(), RefundParams{
		TicketNumber: "0012345678901",
		RefundType:   RefundTypePartial,
		AmountMinor:  45000,
		Currency:     "USD",
	})

	require.NoError(t, err)
	require.True(t, res.Success)

	body := string(captured.body)
	assert.Equal(t, "0012345678901", gjson.Get(body, "ticketNumber").String())
	assert.Equal(t, "partial", gjson.Get(body, "refundType").String())
	assert.Equal(t, "450.00", gjson.Get(body, "refundAmount.amount").String())
	assert.Equal(t, "USD", gjson.Get(body, "refundAmount.currency").String())

	data := res.Data.(RefundData)
	assert.Equal(t, int64(45000), data.RefundedAmountMinor)
}

func TestGalileoExchange_WireFields(t *testing.T) {
	adapter, captured := galileoFixture(t, `{
		"etr":{"ticketNumber":"0019876543210"},
		"fareDifference":{"amount":"100.00","currency":"USD"},
		"penalty":{"amount":"50.00","currency":"USD"}}`)

	res, err := adapter.ReissueTicket(context.Background(), ReissueParams{
		TicketNumber: "0012345678901",
		Locator:      "ABC123",
		ExchangeType: ExchangeTypeFull,
		NewSegments: []ReissueSegment{
			{Origin: "SVO", Destination: "LHR", FlightNumber: "SU200", Departure: time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)},
		},
	})

	require.NoError(t, err)
	require.True(t, res.Success)

	body := string(captured.body)
	assert.Equal(t, "full", gjson.Get(body, "airExchangeModifiers.exchangeType").String())
	assert.Equal(t, "SVO", gjson.Get(body, "airSegment.0.origin").String())
	assert.Equal(t, "2026-09-02T10:00:00", gjson.Get(body, "airSegment.0.departureTime").String())

	data := res.Data.(ExchangeData)
	assert.Equal(t, "0019876543210", data.NewTicketNumber)
	assert.Equal(t, int64(10000), data.FareDifferenceMinor)
	assert.Equal(t, int64(5000), data.PenaltyMinor)
}

func TestGalileoVoid_VendorRejection(t *testing.T) {
	adapter, _ := galileoFixture(t, `{"fault":{"code":"3000","message":"document already voided"}}`)

	res, err := adapter.VoidTicket(context.Background(), VoidParams{TicketNumber: "0012345678901"})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ErrorKindBusiness, res.ErrorKind)
	assert.Equal(t, "document already voided", res.Message)
	assert.False(t, res.OutcomeUnknown)
}

func TestGalileoIssue_MalformedResponseIsUnknownOutcome(t *testing.T) {
	adapter, _ := galileoFixture(t, `<html>gateway error</html>`)

	res, err := adapter.IssueTicket(context.Background(), TicketParams{Locator: "ABC123"})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.OutcomeUnknown, "an unreadable ticketing response cannot be treated as failure")
}

func TestGalileoIssue_CommissionOnWire(t *testing.T) {
	adapter, captured := galileoFixture(t, `{"etr":{"ticketNumber":"0012345678901","totalPrice":"500.00"}}`)

	res, err := adapter.IssueTicket(context.Background(), TicketParams{
		Locator:    "ABC123",
		Commission: 2500,
	})

	require.NoError(t, err)
	require.True(t, res.Success)

	body := string(captured.body)
	assert.Equal(t, "ABC123", gjson.Get(body, "universalRecordLocatorCode").String())
	assert.Equal(t, "25.00", gjson.Get(body, "airTicketingModifiers.commission.amount").String())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(captured.body, &raw))
	_, hasLegacyName := raw["locator"]
	assert.False(t, hasLegacyName, "wire must use the vendor field name, not the internal one")
}

func TestGalileoCancel_WireFields(t *testing.T) {
	adapter, captured := galileoFixture(t, `{}`)

	res, err := adapter.CancelBooking(context.Background(), "ABC123")

	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "/air/cancel", captured.path)
	body := string(captured.body)
	assert.Equal(t, "P105", gjson.Get(body, "targetBranch").String())
	assert.Equal(t, "ABC123", gjson.Get(body, "universalRecordLocatorCode").String())

	data := res.Data.(BookingData)
	assert.Equal(t, "CANCELLED", data.Status)
}

func TestGalileoQueuePlace_WireFields(t *testing.T) {
	adapter, captured := galileoFixture(t, `{"locatorCode":["ABC123"]}`)

	res, err := adapter.QueuePlace(context.Background(), QueueParams{Queue: "50", Locator: "ABC123"})

	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "/queue/place", captured.path)
	body := string(captured.body)
	assert.Equal(t, "50", gjson.Get(body, "queue").String())
	assert.Equal(t, "ABC123", gjson.Get(body, "universalRecordLocatorCode").String())
}

func TestGalileoQueueRetrieve_ReturnsLocators(t *testing.T) {
	adapter, captured := galileoFixture(t, `{"locatorCode":["ABC123","XYZ789"]}`)

	res, err := adapter.QueueRetrieve(context.Background(), QueueParams{Queue: "50"})

	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "/queue/retrieve", captured.path)
	assert.Equal(t, "50", gjson.Get(string(captured.body), "queue").String())

	data := res.Data.(QueueData)
	assert.Equal(t, []string{"ABC123", "XYZ789"}, data.Locators)
}

func TestGalileoAncillaries_WireFields(t *testing.T) {
	adapter, captured := galileoFixture(t, `{"universalRecord":{
		"locatorCode":"ABC123","status":"ACTIVE","totalPrice":"520.00"}}`)

	res, err := adapter.AddAncillaryServices(context.Background(), AncillaryParams{
		Locator: "ABC123",
		Services: []AncillaryService{{
			Code:        "0CC",
			TravelerKey: "trav-1",
			AmountMinor: 2000,
			Currency:    "USD",
		}},
	})

	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "/air/merchandising", captured.path)
	body := string(captured.body)
	assert.Equal(t, "0CC", gjson.Get(body, "optionalService.0.serviceCode").String())
	assert.Equal(t, "trav-1", gjson.Get(body, "optionalService.0.bookingTravelerRef").String())
	assert.Equal(t, "20.00", gjson.Get(body, "optionalService.0.amount").String())
}
