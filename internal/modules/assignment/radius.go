// README: Runtime-tunable search radius. Redis holds the live value; config holds the default.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/domainerr"
)

const (
	radiusKey   = "settings:assignment_radius_km"
	MaxRadiusKm = 100.0
)

type RadiusSetting interface {
	Get(ctx context.Context) (float64, error)
	Set(ctx context.Context, km float64) error
}

// ValidateRadius accepts (0, MaxRadiusKm].
func ValidateRadius(km float64) error {
	if math.IsNaN(km) || km <= 0 || km > MaxRadiusKm {
		return fmt.Errorf("radius_km must be in (0, %.0f]: %w", MaxRadiusKm, domainerr.ErrValidation)
	}
	return nil
}

type RedisRadius struct {
	redis    *redis.Client
	fallback float64
}

func NewRedisRadius(client *redis.Client, fallback float64) *RedisRadius {
	return &RedisRadius{redis: client, fallback: fallback}
}

func (r *RedisRadius) Get(ctx context.Context) (float64, error) {
	v, err := r.redis.Get(ctx, radiusKey).Float64()
	if errors.Is(err, redis.Nil) {
		return r.fallback, nil
	}
	if err != nil {
		return 0, domainerr.Unavailable("get assignment radius", err)
	}
	return v, nil
}

func (r *RedisRadius) Set(ctx context.Context, km float64) error {
	if err := ValidateRadius(km); err != nil {
		return err
	}
	err := r.redis.Set(ctx, radiusKey, strconv.FormatFloat(km, 'f', -1, 64), 0).Err()
	return domainerr.Unavailable("set assignment radius", err)
}

// StaticRadius keeps the value in process.
type StaticRadius struct {
	mu sync.RWMutex
	km float64
}

func NewStaticRadius(km float64) *StaticRadius {
	return &StaticRadius{km: km}
}

func (s *StaticRadius) Get(context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.km, nil
}

func (s *StaticRadius) Set(_ context.Context, km float64) error {
	if err := ValidateRadius(km); err != nil {
		return err
	}
	s.mu.Lock()
	s.km = km
	s.mu.Unlock()
	return nil
}
