// Command seed-db loads a product catalog with stock levels into the
// database and provisions API keys. Catalog files may be plain JSON or
// gzip-compressed (.gz).
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bazaar-api/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	VendorID string          `json:"vendorId"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"imageUrl"`
	Active   *bool           `json:"active"`
	Stock    int             `json:"stock"`
}

type apiKeyJSON struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	SubjectID string `json:"subjectId"`
}

const insertWorkers = 4

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKeysFile  string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file (.json or .json.gz)")
	flag.StringVar(&apiKeysFile, "api-keys-file", "", "optional path to API keys JSON file")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BAZAAR_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("BAZAAR_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKeysFile, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKeysFile, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products, err := loadProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "load products")
	}
	slog.Info("seeding products", slog.Int("count", len(products)))

	// Concurrent inserts: products are independent rows.
	ledger := postgres.NewInventoryLedger(pool)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(insertWorkers)
	for _, p := range products {
		g.Go(func() error {
			return seedProduct(gctx, pool, ledger, p)
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if apiKeysFile == "" {
		return nil
	}

	keys, err := loadAPIKeys(apiKeysFile)
	if err != nil {
		return errors.Wrap(err, "load api keys")
	}
	slog.Info("seeding api keys", slog.Int("count", len(keys)))
	for _, k := range keys {
		if err := seedAPIKey(ctx, pool, k, pepper); err != nil {
			return errors.Wrapf(err, "seed api key %q", k.Name)
		}
	}
	return nil
}

// loadProducts reads the catalog file, transparently decompressing .gz input.
func loadProducts(path string) ([]productJSON, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "gzip reader")
		}
		defer gz.Close()
		r = gz
	}

	var products []productJSON
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return products, nil
}

func loadAPIKeys(path string) ([]apiKeyJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	var keys []apiKeyJSON
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return keys, nil
}

const (
	upsertProductSQL = `INSERT INTO products (id, vendor_id, name, price, image_url, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			vendor_id = EXCLUDED.vendor_id, name = EXCLUDED.name,
			price = EXCLUDED.price, image_url = EXCLUDED.image_url,
			active = EXCLUDED.active`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, role, subject_id, active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), TRUE)
		ON CONFLICT (key_hash) DO NOTHING`
)

func seedProduct(ctx context.Context, pool *pgxpool.Pool, ledger *postgres.InventoryLedger, p productJSON) error {
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	_, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.VendorID, p.Name, p.Price, p.ImageURL, active)
	if err != nil {
		return errors.Wrapf(err, "product %q", p.ID)
	}
	if err := ledger.SetStock(ctx, p.ID, p.Stock); err != nil {
		return errors.Wrapf(err, "stock %q", p.ID)
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, k apiKeyJSON, pepper string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(k.Key))
	hash := hex.EncodeToString(mac.Sum(nil))

	_, err := pool.Exec(ctx, upsertAPIKeySQL, uuid.New().String(), hash, k.Name, k.Role, k.SubjectID)
	return err
}
