// Package search serves fare searches and seat maps. Searches are
// read-only and cached aggressively; a stale fare is caught later by the
// booking call, not here.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/skyfare/ticketing/internal/domain"
	"github.com/skyfare/ticketing/internal/gds"
	"go.uber.org/zap"
)

type Cache interface {
	GetSearch(ctx context.Context, key string, dest any) (bool, error)
	SetSearch(ctx context.Context, key string, results any) error
}

type Resolver interface {
	Resolve(vendor string) (gds.Adapter, error)
	Vendors() []string
}

type Service struct {
	registry Resolver
	cache    Cache
	log      *zap.Logger
}

func New(registry Resolver, cache Cache, log *zap.Logger) *Service {
	return &Service{registry: registry, cache: cache, log: log}
}

// SearchFlights queries one vendor, or every registered vendor when none is
// named, and merges the results sorted by price.
func (s *Service) SearchFlights(ctx context.Context, vendor string, params gds.SearchParams) ([]gds.FareOption, error) {
	key := searchKey(vendor, params)
	var cached []gds.FareOption
	if ok, err := s.cache.GetSearch(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	vendors := []string{vendor}
	if vendor == "" {
		vendors = s.registry.Vendors()
	}

	var options []gds.FareOption
	var lastErr error
	for _, v := range vendors {
		adapter, err := s.registry.Resolve(v)
		if err != nil {
			return nil, &domain.ValidationError{Conditions: []string{err.Error()}}
		}
		res, err := adapter.SearchFlights(ctx, params)
		if err != nil {
			lastErr = err
			continue
		}
		if !res.Success {
			s.log.Warn("vendor search failed",
				zap.String("vendor", v), zap.String("message", res.Message))
			lastErr = &domain.GDSTransientError{Vendor: v, Err: fmt.Errorf("%s", res.Message)}
			continue
		}
		if data, ok := res.Data.(gds.SearchData); ok {
			options = append(options, data.Options...)
		}
	}
	if len(options) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return []gds.FareOption{}, nil
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].TotalAmountMinor < options[j].TotalAmountMinor
	})

	if err := s.cache.SetSearch(ctx, key, options); err != nil {
		s.log.Warn("failed to cache search results", zap.Error(err))
	}
	return options, nil
}

// GetSeatMap queries seat availability for one flight segment.
func (s *Service) GetSeatMap(ctx context.Context, vendor string, params gds.SeatMapParams) (*gds.SeatMapData, error) {
	adapter, err := s.registry.Resolve(vendor)
	if err != nil {
		return nil, &domain.ValidationError{Conditions: []string{err.Error()}}
	}
	res, err := adapter.GetSeatMap(ctx, params)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		if res.ErrorKind == gds.ErrorKindUnsupported {
			return nil, &domain.ValidationError{Conditions: []string{res.Message}}
		}
		return nil, &domain.GDSTransientError{Vendor: vendor, Err: fmt.Errorf("%s", res.Message)}
	}
	data, ok := res.Data.(gds.SeatMapData)
	if !ok {
		return nil, fmt.Errorf("unexpected seat map payload from %s", res.Vendor)
	}
	return &data, nil
}

func searchKey(vendor string, params gds.SearchParams) string {
	var b strings.Builder
	b.WriteString(vendor)
	for _, leg := range params.Legs {
		fmt.Fprintf(&b, ":%s-%s-%s", leg.Origin, leg.Destination, leg.Departure.Format("2006-01-02"))
	}
	for _, p := range params.Passengers {
		fmt.Fprintf(&b, ":%s%d", p.Code, p.Quantity)
	}
	return b.String()
}
