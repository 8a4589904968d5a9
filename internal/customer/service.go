package customer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fjod/go_cart/pos-service/internal/domain"
	"github.com/fjod/go_cart/pos-service/internal/loyalty"
	"github.com/fjod/go_cart/pos-service/internal/pricing"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const cacheWriteTimeout = time.Second

// Service resolves loyalty profiles read-through: cache first, then the
// source. Concurrent lookups of one customer share a single source call.
type Service struct {
	source ProfileSource
	cache  ProfileCache
	tiers  loyalty.TierTable
	log    *zap.Logger
	sfg    singleflight.Group
}

func NewService(source ProfileSource, cache ProfileCache, tiers loyalty.TierTable, log *zap.Logger) *Service {
	if tiers == nil {
		tiers = loyalty.DefaultTiers()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		source: source,
		cache:  cache,
		tiers:  tiers,
		log:    log.Named("customer"),
	}
}

func (s *Service) GetProfile(ctx context.Context, customerID string) (*Profile, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.NewValidationError("customer_id is required")
	}

	v, err, _ := s.sfg.Do(customerID, func() (interface{}, error) {
		profile, err := s.cache.Get(ctx, customerID)
		if err == nil {
			return profile, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.log.Warn("cache get failed", zap.String("customer_id", customerID), zap.Error(err))
		}

		profile, err = s.source.GetLoyaltyProfile(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if profile.PointsBalance < 0 {
			profile.PointsBalance = 0
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
		defer cancel()
		if err := s.cache.Set(setCtx, profile); err != nil {
			s.log.Warn("cache set failed", zap.String("customer_id", customerID), zap.Error(err))
		}
		return profile, nil
	})
	if err != nil {
		return nil, err
	}

	cp := *v.(*Profile)
	return &cp, nil
}

// Refresh drops the cached profile and loads it again from the source.
func (s *Service) Refresh(ctx context.Context, customerID string) (*Profile, error) {
	if err := s.cache.Delete(ctx, strings.TrimSpace(customerID)); err != nil {
		s.log.Warn("cache invalidate failed", zap.String("customer_id", customerID), zap.Error(err))
	}
	return s.GetProfile(ctx, customerID)
}

// CartCustomer maps a profile onto the loyalty context the cart prices with.
func (s *Service) CartCustomer(profile *Profile) *pricing.Customer {
	benefit := s.tiers.Lookup(profile.Tier)
	return &pricing.Customer{
		CustomerID:     profile.CustomerID,
		Tier:           profile.Tier,
		TierDiscount:   benefit.Discount(),
		PointsBalance:  profile.PointsBalance,
		EarnMultiplier: benefit.EarnMultiplier,
	}
}

// Resolve is GetProfile followed by CartCustomer.
func (s *Service) Resolve(ctx context.Context, customerID string, refresh bool) (*pricing.Customer, error) {
	get := s.GetProfile
	if refresh {
		get = s.Refresh
	}
	profile, err := get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.CartCustomer(profile), nil
}
