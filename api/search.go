package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skyfare/ticketing/internal/domain"
	"github.com/skyfare/ticketing/internal/gds"
)

// SearchUseCase is the read-only shopping surface.
type SearchUseCase interface {
	SearchFlights(ctx context.Context, vendor string, params gds.SearchParams) ([]gds.FareOption, error)
	GetSeatMap(ctx context.Context, vendor string, params gds.SeatMapParams) (*gds.SeatMapData, error)
}

// FareRulesUseCase exposes the cached fare-rule lookup.
type FareRulesUseCase interface {
	GetFareRules(ctx context.Context, vendor string, params gds.FareRulesParams) (*gds.FareRulesData, error)
}

type SearchHandler struct {
	search    SearchUseCase
	fareRules FareRulesUseCase
}

func NewSearchHandler(searchService SearchUseCase, fareRules FareRulesUseCase) *SearchHandler {
	return &SearchHandler{search: searchService, fareRules: fareRules}
}

func (h *SearchHandler) Register(router *gin.RouterGroup) {
	router.POST("/flights", h.searchFlights)
	router.GET("/farerules", h.getFareRules)
	router.GET("/seatmap", h.seatMap)
}

type searchLegRequest struct {
	Origin      string `json:"origin" binding:"required"`
	Destination string `json:"destination" binding:"required"`
	Departure   string `json:"departure" binding:"required"`
}

type searchPassengerRequest struct {
	Code     string `json:"code" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

type searchFlightsRequest struct {
	Vendor     string                   `json:"vendor"`
	Legs       []searchLegRequest       `json:"legs" binding:"required"`
	Passengers []searchPassengerRequest `json:"passengers" binding:"required"`
}

func (h *SearchHandler) searchFlights(c *gin.Context) {
	var req searchFlightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := gds.SearchParams{}
	for _, leg := range req.Legs {
		departure, err := time.Parse("2006-01-02", leg.Departure)
		if err != nil {
			writeError(c, &domain.ValidationError{Conditions: []string{"departure must be YYYY-MM-DD"}})
			return
		}
		params.Legs = append(params.Legs, gds.SearchLeg{
			Origin:      leg.Origin,
			Destination: leg.Destination,
			Departure:   departure,
		})
	}
	for _, p := range req.Passengers {
		params.Passengers = append(params.Passengers, gds.SearchPassenger{Code: p.Code, Quantity: p.Quantity})
	}

	options, err := h.search.SearchFlights(c.Request.Context(), req.Vendor, params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": options})
}

func (h *SearchHandler) getFareRules(c *gin.Context) {
	vendor := c.Query("vendor")
	if vendor == "" {
		writeError(c, &domain.ValidationError{Conditions: []string{"vendor is required"}})
		return
	}
	rules, err := h.fareRules.GetFareRules(c.Request.Context(), vendor, gds.FareRulesParams{
		FareBasis:   c.Query("fare_basis"),
		Origin:      c.Query("origin"),
		Destination: c.Query("destination"),
		Carrier:     c.Query("carrier"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *SearchHandler) seatMap(c *gin.Context) {
	vendor := c.Query("vendor")
	if vendor == "" {
		writeError(c, &domain.ValidationError{Conditions: []string{"vendor is required"}})
		return
	}
	departure, err := time.Parse("2006-01-02", c.Query("departure"))
	if err != nil {
		writeError(c, &domain.ValidationError{Conditions: []string{"departure must be YYYY-MM-DD"}})
		return
	}
	seatMap, err := h.search.GetSeatMap(c.Request.Context(), vendor, gds.SeatMapParams{
		Carrier:      c.Query("carrier"),
		FlightNumber: c.Query("flight_number"),
		Origin:       c.Query("origin"),
		Destination:  c.Query("destination"),
		Departure:    departure,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, seatMap)
}
