package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/delivery-api/internal/domain/auth"
	"github.com/xenking/delivery-api/internal/domain/catalog"
	"github.com/xenking/delivery-api/internal/domain/coupon"
	"github.com/xenking/delivery-api/internal/handler"
	"github.com/xenking/delivery-api/internal/storage/postgres"
	"github.com/xenking/delivery-api/internal/storage/rediscache"
)

// Fixed ids so that repeated seeds and the integration tests agree.
var (
	adminID    = uuid.MustParse("00000000-0000-4000-8000-0000000000a1")
	ownerID    = uuid.MustParse("00000000-0000-4000-8000-0000000000b1")
	customerID = uuid.MustParse("00000000-0000-4000-8000-0000000000c1")

	burgerPlaceID = uuid.MustParse("00000000-0000-4000-8000-000000000101")
	pizzeriaID    = uuid.MustParse("00000000-0000-4000-8000-000000000102")
	addressID     = uuid.MustParse("00000000-0000-4000-8000-000000000301")
)

// extraCustomers get one address each so that concurrent checkouts can come
// from distinct first-time customers. Customer n has id ...0000000000dn and
// address ...00000000031n.
const extraCustomers = 8

func extraCustomer(n int) (userID, addressID uuid.UUID) {
	userID = uuid.MustParse(fmt.Sprintf("00000000-0000-4000-8000-0000000000d%d", n))
	addressID = uuid.MustParse(fmt.Sprintf("00000000-0000-4000-8000-00000000031%d", n))
	return userID, addressID
}

func main() {
	var (
		databaseURL string
		jwtSecret   string
		redisAddr   string
		tokenTTL    time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "secret used to print development tokens (or DELIVERY_JWT_SECRET env)")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address whose restaurant cache is invalidated (or DELIVERY_REDIS_ADDR env)")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the printed development tokens")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("DELIVERY_JWT_SECRET")
	}
	if redisAddr == "" {
		redisAddr = os.Getenv("DELIVERY_REDIS_ADDR")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, redisAddr); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")

	if jwtSecret == "" {
		slog.Info("no JWT secret given, skipping development tokens")
		return
	}
	if err := printTokens(handler.NewAuthenticator([]byte(jwtSecret)), tokenTTL); err != nil {
		slog.Error("issue tokens", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, redisAddr string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	cat := postgres.NewCatalogRepository(pool)
	if err := seedCatalog(ctx, cat); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedCoupons(ctx, postgres.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if redisAddr == "" {
		return nil
	}
	// A running API may hold stale restaurants for up to the cache TTL.
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() { _ = rdb.Close() }()

	cache := rediscache.NewCatalog(cat, rdb, 0)
	for _, id := range []uuid.UUID{burgerPlaceID, pizzeriaID} {
		if err := cache.Invalidate(ctx, id); err != nil {
			return errors.Wrap(err, "invalidate restaurant cache")
		}
	}
	slog.Info("invalidated restaurant cache", slog.String("redis", redisAddr))
	return nil
}

func seedCatalog(ctx context.Context, cat *postgres.CatalogRepository) error {
	restaurants := []catalog.Restaurant{
		{ID: burgerPlaceID, OwnerID: ownerID, Name: "Burger Place", Active: true, DeliveryFee: decimal.RequireFromString("8.50")},
		{ID: pizzeriaID, OwnerID: ownerID, Name: "Pizzeria Napoli", Active: true, DeliveryFee: decimal.RequireFromString("5.00")},
	}
	for _, r := range restaurants {
		if err := cat.UpsertRestaurant(ctx, r); err != nil {
			return err
		}
		slog.Info("upserted restaurant", slog.String("id", r.ID.String()), slog.String("name", r.Name))
	}

	products := []catalog.Product{
		{ID: uuid.MustParse("00000000-0000-4000-8000-000000000201"), RestaurantID: burgerPlaceID, Name: "Classic Burger", Price: decimal.RequireFromString("12.50"), Available: true},
		{ID: uuid.MustParse("00000000-0000-4000-8000-000000000202"), RestaurantID: burgerPlaceID, Name: "Fries", Price: decimal.RequireFromString("10.00"), Available: true},
		{ID: uuid.MustParse("00000000-0000-4000-8000-000000000203"), RestaurantID: burgerPlaceID, Name: "Milkshake", Price: decimal.RequireFromString("9.90"), Available: false},
		{ID: uuid.MustParse("00000000-0000-4000-8000-000000000211"), RestaurantID: pizzeriaID, Name: "Margherita", Price: decimal.RequireFromString("39.90"), Available: true},
	}
	for _, p := range products {
		if err := cat.UpsertProduct(ctx, p); err != nil {
			return err
		}
		slog.Info("upserted product", slog.String("id", p.ID.String()), slog.String("name", p.Name))
	}

	addresses := []postgres.Address{
		{ID: addressID, UserID: customerID, Street: "Rua das Flores", Number: "42", City: "São Paulo", ZipCode: "01001-000"},
	}
	for n := 1; n <= extraCustomers; n++ {
		user, addr := extraCustomer(n)
		addresses = append(addresses, postgres.Address{
			ID: addr, UserID: user, Street: "Avenida Paulista", Number: fmt.Sprint(1000 + n), City: "São Paulo", ZipCode: "01310-100",
		})
	}
	for _, addr := range addresses {
		if err := cat.UpsertAddress(ctx, addr); err != nil {
			return err
		}
		slog.Info("upserted address", slog.String("id", addr.ID.String()))
	}
	return nil
}

func seedCoupons(ctx context.Context, repo *postgres.CouponRepository) error {
	now := time.Now().UTC()
	validUntil := now.AddDate(1, 0, 0)
	one := 1
	minSubtotal := decimal.RequireFromString("30.00")
	maxDiscount := decimal.RequireFromString("15.00")
	restaurant := burgerPlaceID

	coupons := []coupon.Coupon{
		{
			Code:           "WELCOME10",
			Description:    "10% off your first order, up to 15.00",
			Rule:           coupon.Percentage{Value: decimal.NewFromInt(10), MaxDiscount: &maxDiscount},
			FirstOrderOnly: true,
			MaxUsesPerUser: &one,
		},
		{
			Code:         "BURGER5",
			Description:  "5.00 off Burger Place orders above 30.00",
			Rule:         coupon.Fixed{Value: decimal.NewFromInt(5)},
			MinSubtotal:  &minSubtotal,
			RestaurantID: &restaurant,
		},
	}

	for i := range coupons {
		c := &coupons[i]
		c.ID = uuid.New()
		c.ValidUntil = validUntil
		c.Active = true
		c.CreatedBy = adminID
		c.CreatedAt = now
		c.UpdatedAt = now

		inserted, err := repo.InsertIfAbsent(ctx, c)
		if err != nil {
			return err
		}
		slog.Info("seeded coupon", slog.String("code", c.Code), slog.Bool("inserted", inserted))
	}
	return nil
}

func printTokens(authn *handler.Authenticator, ttl time.Duration) error {
	users := []struct {
		name string
		p    auth.Principal
	}{
		{"admin", auth.Principal{UserID: adminID, Role: auth.RoleAdmin}},
		{"owner", auth.Principal{UserID: ownerID, Role: auth.RoleRestaurantOwner}},
		{"customer", auth.Principal{UserID: customerID, Role: auth.RoleCustomer}},
	}
	for _, u := range users {
		tok, err := authn.IssueToken(u.p, ttl)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%s\n", u.name, u.p.UserID, tok)
	}
	return nil
}
