package rewards

import (
	crand "crypto/rand"
	"fmt"
	"math/big"
)

// RewardDrawer picks the amount won by a participation.
type RewardDrawer interface {
	Draw() (Points, error)
}

// RewardDrawerFunc adapts a function to RewardDrawer.
type RewardDrawerFunc func() (Points, error)

// Draw calls the function.
func (drawerFunc RewardDrawerFunc) Draw() (Points, error) {
	return drawerFunc()
}

type secureDrawer struct {
	min Points
	max Points
}

// NewSecureDrawer draws uniformly from [min, max] using crypto/rand.
func NewSecureDrawer(min Points, max Points) (RewardDrawer, error) {
	if min <= 0 || max < min {
		return nil, fmt.Errorf("%w: draw range [%d, %d]", ErrInvalidServiceConfig, min, max)
	}
	return secureDrawer{min: min, max: max}, nil
}

func (drawer secureDrawer) Draw() (Points, error) {
	span := big.NewInt(drawer.max.Int64() - drawer.min.Int64() + 1)
	picked, err := crand.Int(crand.Reader, span)
	if err != nil {
		return 0, fmt.Errorf("draw reward: %w", err)
	}
	return drawer.min + Points(picked.Int64()), nil
}

// WithRewardDrawer replaces the default [MinRewardAmount, MaxRewardAmount] drawer.
func WithRewardDrawer(drawer RewardDrawer) ServiceOption {
	return func(service *Service) {
		service.drawer = drawer
	}
}
