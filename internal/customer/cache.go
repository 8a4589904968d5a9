// Package customer resolves a customer's loyalty profile for the cart,
// reading through a Redis cache in front of the commerce backend.
package customer

import (
	"context"
	"errors"
)

// Profile is the loyalty view of a customer served by the commerce backend.
type Profile struct {
	CustomerID    string `json:"customer_id"`
	Tier          string `json:"tier"`
	PointsBalance int64  `json:"points_balance"`
}

type ProfileCache interface {
	Get(ctx context.Context, customerID string) (*Profile, error)
	Set(ctx context.Context, profile *Profile) error
	Delete(ctx context.Context, customerID string) error
}

// ProfileSource is the system of record for loyalty profiles.
type ProfileSource interface {
	GetLoyaltyProfile(ctx context.Context, customerID string) (*Profile, error)
}

var ErrCacheMiss = errors.New("cache miss")
