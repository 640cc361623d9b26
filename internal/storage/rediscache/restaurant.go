// Package rediscache puts a Redis cache-aside layer in front of the catalog.
package rediscache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/delivery-api/internal/domain/catalog"
)

const keyPrefix = "delivery:restaurant:"

// MaxTTL bounds how long a deactivated restaurant or an old delivery fee
// can still be served from the cache.
const MaxTTL = time.Minute

var _ catalog.Provider = (*Catalog)(nil)

// Catalog caches restaurants in Redis. Products pass straight through since
// their prices are snapshotted into orders and must be current.
//
// Redis failures are logged and fall back to the wrapped provider.
type Catalog struct {
	next   catalog.Provider
	client redis.UniversalClient
	ttl    time.Duration
	group  singleflight.Group
}

// NewCatalog wraps next with a Redis cache whose entries live for ttl,
// clamped to (0, MaxTTL].
func NewCatalog(next catalog.Provider, client redis.UniversalClient, ttl time.Duration) *Catalog {
	if ttl <= 0 || ttl > MaxTTL {
		ttl = MaxTTL
	}
	return &Catalog{next: next, client: client, ttl: ttl}
}

// GetRestaurant returns the cached restaurant or loads it once per key
// across concurrent callers.
func (c *Catalog) GetRestaurant(ctx context.Context, id uuid.UUID) (*catalog.Restaurant, error) {
	key := keyPrefix + id.String()
	lg := zctx.From(ctx)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		r, decErr := decodeRestaurant(raw)
		if decErr == nil {
			return r, nil
		}
		lg.Warn("Drop corrupt cache entry", zap.String("key", key), zap.Error(decErr))
	case errors.Is(err, redis.Nil):
	default:
		lg.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		r, err := c.next.GetRestaurant(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, encodeRestaurant(r), c.ttl).Err(); err != nil {
			lg.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	r := *v.(*catalog.Restaurant)
	return &r, nil
}

// GetProducts delegates to the wrapped provider.
func (c *Catalog) GetProducts(ctx context.Context, ids []uuid.UUID) ([]catalog.Product, error) {
	return c.next.GetProducts(ctx, ids)
}

// Invalidate removes a cached restaurant.
func (c *Catalog) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := c.client.Del(ctx, keyPrefix+id.String()).Err(); err != nil {
		return errors.Wrap(err, "delete cache entry")
	}
	return nil
}

func encodeRestaurant(r *catalog.Restaurant) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(r.ID.String())
	e.FieldStart("ownerId")
	e.Str(r.OwnerID.String())
	e.FieldStart("name")
	e.Str(r.Name)
	e.FieldStart("active")
	e.Bool(r.Active)
	e.FieldStart("deliveryFee")
	e.Str(r.DeliveryFee.String())
	e.ObjEnd()
	return e.Bytes()
}

func decodeRestaurant(data []byte) (*catalog.Restaurant, error) {
	var r catalog.Restaurant
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id", "ownerId":
			s, err := d.Str()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(s)
			if err != nil {
				return errors.Wrap(err, key)
			}
			if key == "id" {
				r.ID = id
			} else {
				r.OwnerID = id
			}
		case "name":
			s, err := d.Str()
			if err != nil {
				return err
			}
			r.Name = s
		case "active":
			b, err := d.Bool()
			if err != nil {
				return err
			}
			r.Active = b
		case "deliveryFee":
			s, err := d.Str()
			if err != nil {
				return err
			}
			fee, err := decimal.NewFromString(s)
			if err != nil {
				return errors.Wrap(err, key)
			}
			r.DeliveryFee = fee
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode restaurant")
	}
	return &r, nil
}
