package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/godilite/churnradar/internal/features"
	"github.com/godilite/churnradar/pkg/cache"
)

const (
	day         = 24 * time.Hour
	asOfLayout  = "2006-01-02"
	allTimeSlot = "all"
)

func featureKey(organizationID, slot string, asOf time.Time) string {
	return fmt.Sprintf("features:%s:%s:%s", organizationID, slot, asOf.UTC().Format(asOfLayout))
}

// windowVector extracts organizationID's features over windowDays ending at ref.
func (s *ChurnService) windowVector(ctx context.Context, organizationID string, ref time.Time, windowDays int) (*features.Vector, error) {
	key := featureKey(organizationID, fmt.Sprint(windowDays), ref)
	return s.cachedVector(ctx, key, func(ctx context.Context) (*features.Vector, error) {
		start := ref.Add(-time.Duration(features.LookbackDays(windowDays)) * day)
		tickets, err := s.storage.TicketsForOrganization(ctx, organizationID, start, ref)
		if err != nil {
			return nil, storageErr(err)
		}
		return features.Extract(organizationID, tickets, ref, windowDays), nil
	})
}

// allTimeVector extracts organizationID's features over its whole history.
func (s *ChurnService) allTimeVector(ctx context.Context, organizationID string) (*features.Vector, error) {
	key := featureKey(organizationID, allTimeSlot, s.clock())
	return s.cachedVector(ctx, key, func(ctx context.Context) (*features.Vector, error) {
		tickets, err := s.storage.AllTicketsForOrganization(ctx, organizationID)
		if err != nil {
			return nil, storageErr(err)
		}
		return features.ExtractAllTime(organizationID, tickets), nil
	})
}

type fetchFunc func(ctx context.Context) (*features.Vector, error)

// cachedVector is a read-through cache lookup with concurrent misses for the
// same key collapsed into one fetch. Cache failures degrade to a direct fetch.
func (s *ChurnService) cachedVector(ctx context.Context, key string, fn fetchFunc) (*features.Vector, error) {
	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if s.cache == nil {
		return fn(dbCtx)
	}

	var cached *features.Vector
	err := s.cache.Get(dbCtx, key, &cached)
	switch {
	case err == nil:
		s.logger.Debug("cache hit", zap.String("key", key))
		return cached, nil
	case errors.Is(err, cache.ErrMiss):
		s.logger.Debug("cache miss", zap.String("key", key))
	default:
		s.logger.Warn("cache get error (treating as miss)", zap.String("key", key), zap.Error(err))
	}

	v, err, shared := s.sf.Do(key, func() (any, error) {
		value, err := fn(dbCtx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(dbCtx, key, value, s.cacheTTL); err != nil {
			s.logger.Warn("failed to set cache on miss", zap.String("key", key), zap.Error(err))
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("singleflight shared result", zap.String("key", key))
	}

	value, ok := v.(*features.Vector)
	if !ok {
		return nil, fmt.Errorf("type mismatch for key %q", key)
	}
	return value, nil
}
