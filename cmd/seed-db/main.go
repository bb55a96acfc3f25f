// Command seed-db loads development fixtures: the product catalog, a couple
// of discount codes, and an API key for local testing.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/voltmart/storefront/internal/domain/auth"
	"github.com/voltmart/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Image    struct {
		Thumbnail string `json:"thumbnail"`
		Mobile    string `json:"mobile"`
		Tablet    string `json:"tablet"`
		Desktop   string `json:"desktop"`
	} `json:"image"`
}

const upsertProductSQL = `INSERT INTO products (id, name, price, category,
	image_thumbnail, image_mobile, image_tablet, image_desktop)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		price = EXCLUDED.price,
		category = EXCLUDED.category,
		image_thumbnail = EXCLUDED.image_thumbnail,
		image_mobile = EXCLUDED.image_mobile,
		image_tablet = EXCLUDED.image_tablet,
		image_desktop = EXCLUDED.image_desktop,
		updated_at = now()`

const upsertDiscountSQL = `INSERT INTO discounts (id, code, discount_type, value,
	min_purchase_amount, max_usage_count, max_usage_per_user, active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
	ON CONFLICT (code) DO UPDATE SET
		discount_type = EXCLUDED.discount_type,
		value = EXCLUDED.value,
		min_purchase_amount = EXCLUDED.min_purchase_amount,
		max_usage_count = EXCLUDED.max_usage_count,
		max_usage_per_user = EXCLUDED.max_usage_per_user,
		active = TRUE,
		updated_at = now()`

const upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, user_id, scopes, active)
	VALUES ($1, $2, $3, $4, $5, TRUE)
	ON CONFLICT (id) DO UPDATE SET
		key_hash = EXCLUDED.key_hash,
		name = EXCLUDED.name,
		user_id = EXCLUDED.user_id,
		scopes = EXCLUDED.scopes,
		active = TRUE`

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("STORE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or STORE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
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

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedDiscounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discounts")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		_, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Price, p.Category,
			p.Image.Thumbnail, p.Image.Mobile, p.Image.Tablet, p.Image.Desktop,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

type seedDiscount struct {
	code            string
	discountType    string
	value           decimal.Decimal
	minPurchase     decimal.Decimal
	maxUsageCount   *int
	maxUsagePerUser *int
}

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding discounts")

	one := 1
	discounts := []seedDiscount{
		{
			code:         "HAPPYHOURS",
			discountType: "percentage",
			value:        decimal.NewFromInt(18),
		},
		{
			code:            "WELCOME5",
			discountType:    "fixed_amount",
			value:           decimal.NewFromInt(5),
			minPurchase:     decimal.NewFromInt(20),
			maxUsagePerUser: &one,
		},
		{
			code:         "SHIPFREE",
			discountType: "free_shipping",
			value:        decimal.Zero,
		},
	}

	for _, d := range discounts {
		_, err := pool.Exec(ctx, upsertDiscountSQL,
			uuid.New(), d.code, d.discountType, d.value,
			d.minPurchase, d.maxUsageCount, d.maxUsagePerUser,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.code)
		}

		slog.Info("upserted discount", slog.String("code", d.code), slog.String("type", d.discountType))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	scopes := []string{auth.ScopeDiscountsWrite, auth.ScopeOrdersWrite}
	_, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default test key", "seed-user", scopes,
	)
	if err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default test key"))

	return nil
}
