package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skyfare/ticketing/internal/domain"
	"github.com/skyfare/ticketing/internal/gds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAdapter embeds the interface so only the search surface needs stubbing.
type fakeAdapter struct {
	gds.Adapter
	vendor  string
	search  func(ctx context.Context, params gds.SearchParams) (*gds.OperationResult, error)
	seatMap func(ctx context.Context, params gds.SeatMapParams) (*gds.OperationResult, error)
}

func (f *fakeAdapter) Vendor() string { return f.vendor }

func (f *fakeAdapter) SearchFlights(ctx context.Context, params gds.SearchParams) (*gds.OperationResult, error) {
	return f.search(ctx, params)
}

func (f *fakeAdapter) GetSeatMap(ctx context.Context, params gds.SeatMapParams) (*gds.OperationResult, error) {
	return f.seatMap(ctx, params)
}

type fakeResolver struct {
	adapters map[string]gds.Adapter
}

func (r *fakeResolver) Resolve(vendor string) (gds.Adapter, error) {
	adapter, ok := r.adapters[vendor]
	if !ok {
		return nil, errors.New("unknown gds vendor \"" + vendor + "\"")
	}
	return adapter, nil
}

func (r *fakeResolver) Vendors() []string {
	names := make([]string, 0, len(r.adapters))
	for _, v := range []string{"amadeus", "galileo"} {
		if _, ok := r.adapters[v]; ok {
			names = append(names, v)
		}
	}
	return names
}

type MockSearchCache struct {
	mock.Mock
}

func (m *MockSearchCache) GetSearch(ctx context.Context, key string, dest any) (bool, error) {
	args := m.Called(ctx, key, dest)
	if args.Bool(0) {
		if cached, ok := args.Get(2).([]gds.FareOption); ok {
			*dest.(*[]gds.FareOption) = cached
		}
	}
	return args.Bool(0), args.Error(1)
}

func (m *MockSearchCache) SetSearch(ctx context.Context, key string, results any) error {
	args := m.Called(ctx, key, results)
	return args.Error(0)
}

func searchParams() gds.SearchParams {
	return gds.SearchParams{
		Legs: []gds.SearchLeg{{
			Origin:      "SVO",
			Destination: "LED",
			Departure:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		}},
		Passengers: []gds.SearchPassenger{{Code: "ADT", Quantity: 1}},
	}
}

func optionsResult(vendor string, amounts ...int64) *gds.OperationResult {
	options := make([]gds.FareOption, 0, len(amounts))
	for _, a := range amounts {
		options = append(options, gds.FareOption{
			Carrier:          "SU",
			TotalAmountMinor: a,
			Currency:         "USD",
		})
	}
	return &gds.OperationResult{Success: true, Vendor: vendor, Data: gds.SearchData{Options: options}}
}

func TestSearchFlights_MergesVendorsSortedByPrice(t *testing.T) {
	resolver := &fakeResolver{adapters: map[string]gds.Adapter{
		"galileo": &fakeAdapter{vendor: "galileo", search: func(ctx context.Context, params gds.SearchParams) (*gds.OperationResult, error) {
			return optionsResult("galileo", 52000, 48000), nil
		}},
		"amadeus": &fakeAdapter{vendor: "amadeus", search: func(ctx context.Context, params gds.SearchParams) (*gds.OperationResult, error) {
			return optionsResult("amadeus", 50000), nil
		}},
	}}
	mockCache := &MockSearchCache{}
	mockCache.On("GetSearch", mock.Anything, mock.Anything, mock.Anything).Return(false, nil).Once()
	mockCache.On("SetSearch", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	service := New(resolver, mockCache, zap.NewNop())

	options, err := service.SearchFlights(context.Background(), "", searchParams())

	require.NoError(t, err)
	require.Len(t, options, 3)
	assert.Equal(t, int64(48000), options[0].TotalAmountMinor)
	assert.Equal(t, int64(50000), options[1].TotalAmountMinor)
	assert.Equal(t, int64(52000), options[2].TotalAmountMinor)
	mockCache.AssertExpectations(t)
}

func TestSearchFlights_CacheHitSkipsVendors(t *testing.T) {
	called := false
	resolver := &fakeResolver{adapters: map[string]gds.Adapter{
		"galileo": &fakeAdapter{vendor: "galileo", search: func(ctx context.Context, params gds.SearchParams) (*gds.OperationResult, error) {
			called = true
			return optionsResult("galileo", 48000), nil
		}},
	}}
	cached := []gds.FareOption{{Carrier: "SU", TotalAmountMinor: 48000, Currency: "USD"}}
	mockCache := &MockSearchCache{}
	mockCache.On("GetSearch", mock.Anything, "galileo:SVO-LED-2026-09-01:ADT1", mock.Anything).
		Return(true, nil, cached).Once()

	service := New(resolver, mockCache, zap.NewNop())

	options, err := service.SearchFlights(context.Background(), "galileo", searchParams())

	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.False(t, called, "cache hit must not reach the vendor")
	mockCache.AssertNotCalled(t, "SetSearch", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearchFlights_OneVendorDownStillReturnsResults(t *testing.T) {
	resolver := &fakeResolver{adapters: map[string]gds.Adapter{
		"amadeus": &fakeAdapter{vendor: "amadeus", search: func(ctx context.Context, params gds.SearchParams) (*gds.OperationResult, error) {
			return nil, &domain.GDSTransientError{Vendor: "amadeus", Err: errors.New("connection refused")}
		}},
		"galileo": &fakeAdapter{vendor: "galileo", search: func(ctx context.Context, params gds.SearchParams) (*gds.OperationResult, error) {
			return optionsResult("galileo", 48000), nil
		}},
	}}
	mockCache := &MockSearchCache{}
	mockCache.On("GetSearch", mock.Anything, mock.Anything, mock.Anything).Return(false, nil).Once()
	mockCache.On("SetSearch", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	service := New(resolver, mockCache, zap.NewNop())

	options, err := service.SearchFlights(context.Background(), "", searchParams())

	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, int64(48000), options[0].TotalAmountMinor)
}

func TestSearchFlights_AllVendorsDownReturnsLastError(t *testing.T) {
	resolver := &fakeResolver{adapters: map[string]gds.Adapter{
		"galileo": &fakeAdapter{vendor: "galileo", search: func(ctx context.Context, params gds.SearchParams) (*gds.OperationResult, error) {
			return &gds.OperationResult{Success: false, Vendor: "galileo", ErrorKind: gds.ErrorKindTransient, Message: "gateway timeout"}, nil
		}},
	}}
	mockCache := &MockSearchCache{}
	mockCache.On("GetSearch", mock.Anything, mock.Anything, mock.Anything).Return(false, nil).Once()

	service := New(resolver, mockCache, zap.NewNop())

	_, err := service.SearchFlights(context.Background(), "galileo", searchParams())

	require.Error(t, err)
	assert.Equal(t, domain.ErrKindGDSTransient, domain.KindOf(err))
	mockCache.AssertNotCalled(t, "SetSearch", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearchFlights_UnknownVendor(t *testing.T) {
	resolver := &fakeResolver{adapters: map[string]gds.Adapter{}}
	mockCache := &MockSearchCache{}
	mockCache.On("GetSearch", mock.Anything, mock.Anything, mock.Anything).Return(false, nil).Once()

	service := New(resolver, mockCache, zap.NewNop())

	_, err := service.SearchFlights(context.Background(), "sabre", searchParams())

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestGetSeatMap_UnsupportedVendor(t *testing.T) {
	resolver := &fakeResolver{adapters: map[string]gds.Adapter{
		"amadeus": &fakeAdapter{vendor: "amadeus", seatMap: func(ctx context.Context, params gds.SeatMapParams) (*gds.OperationResult, error) {
			return &gds.OperationResult{
				Success:   false,
				Vendor:    "amadeus",
				ErrorKind: gds.ErrorKindUnsupported,
				Message:   "seat maps are not supported by amadeus",
			}, nil
		}},
	}}

	service := New(resolver, &MockSearchCache{}, zap.NewNop())

	_, err := service.GetSeatMap(context.Background(), "amadeus", gds.SeatMapParams{Carrier: "SU", FlightNumber: "26"})

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Conditions[0], "not supported")
}

func TestGetSeatMap_ReturnsRows(t *testing.T) {
	resolver := &fakeResolver{adapters: map[string]gds.Adapter{
		"galileo": &fakeAdapter{vendor: "galileo", seatMap: func(ctx context.Context, params gds.SeatMapParams) (*gds.OperationResult, error) {
			return &gds.OperationResult{
				Success: true,
				Vendor:  "galileo",
				Data: gds.SeatMapData{Rows: []gds.SeatRow{
					{Row: 12, Seats: []gds.Seat{{Column: "A", Available: true}}},
				}},
			}, nil
		}},
	}}

	service := New(resolver, &MockSearchCache{}, zap.NewNop())

	data, err := service.GetSeatMap(context.Background(), "galileo", gds.SeatMapParams{Carrier: "SU", FlightNumber: "26"})

	require.NoError(t, err)
	require.Len(t, data.Rows, 1)
	assert.Equal(t, "A", data.Rows[0].Seats[0].Column)
	assert.True(t, data.Rows[0].Seats[0].Available)
}
