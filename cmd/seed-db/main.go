// Command seed-db loads the stall catalog, voucher templates and an API key
// into the database, and optionally grants every voucher to demo users.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/hawker-checkout/internal/domain/auth"
	"github.com/xenking/hawker-checkout/internal/domain/cart"
	"github.com/xenking/hawker-checkout/internal/domain/order"
	"github.com/xenking/hawker-checkout/internal/domain/voucher"
	"github.com/xenking/hawker-checkout/internal/storage/postgres"
)

type catalogJSON struct {
	Stalls []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Items []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			PriceCents int64  `json:"priceCents"`
		} `json:"items"`
	} `json:"stalls"`
	Vouchers []struct {
		Code                  string          `json:"code"`
		Description           string          `json:"description"`
		DiscountType          string          `json:"discountType"`
		DiscountAmount        decimal.Decimal `json:"discountAmount"`
		MinSpendCents         int64           `json:"minSpendCents"`
		ExpiryOnReceiveMonths int             `json:"expiryOnReceiveMonths"`
	} `json:"vouchers"`
}

type options struct {
	databaseURL  string
	catalogFile  string
	apiKey       string
	apiKeyPepper string
	demoUsers    []string
}

func main() {
	var (
		opts  options
		demos string
	)
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or HAWKER_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or HAWKER_API_KEY_PEPPER env)")
	flag.StringVar(&demos, "demo-users", "", "comma separated user ids that receive every voucher")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("HAWKER_SEED_API_KEY")
	}
	if opts.apiKey == "" {
		lg.Fatal("API key is required: set --api-key or HAWKER_SEED_API_KEY")
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("HAWKER_API_KEY_PEPPER")
	}
	for _, u := range strings.Split(demos, ",") {
		if u = strings.TrimSpace(u); u != "" {
			opts.demoUsers = append(opts.demoUsers, u)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	data, err := os.ReadFile(opts.catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}
	var catalog catalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	if err := postgres.RunMigrations(opts.databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewCatalogRepository(pool)
	for _, s := range catalog.Stalls {
		if err := repo.UpsertStall(ctx, order.Stall{ID: s.ID, Name: s.Name}); err != nil {
			return err
		}
		for _, it := range s.Items {
			if err := repo.UpsertMenuItem(ctx, cart.MenuItem{
				ID:         it.ID,
				StallID:    s.ID,
				Name:       it.Name,
				PriceCents: it.PriceCents,
			}); err != nil {
				return err
			}
		}
		lg.Info("Upserted stall", zap.String("id", s.ID), zap.Int("items", len(s.Items)))
	}

	for _, v := range catalog.Vouchers {
		id, err := repo.UpsertVoucher(ctx, voucher.Voucher{
			Code:                  v.Code,
			Description:           v.Description,
			DiscountType:          voucher.DiscountType(v.DiscountType),
			DiscountAmount:        v.DiscountAmount,
			MinSpendCents:         v.MinSpendCents,
			ExpiryOnReceiveMonths: v.ExpiryOnReceiveMonths,
		})
		if err != nil {
			return err
		}
		lg.Info("Upserted voucher", zap.String("code", v.Code))

		if len(opts.demoUsers) == 0 {
			continue
		}
		granted, err := repo.GrantedAmong(ctx, id, opts.demoUsers)
		if err != nil {
			return err
		}
		if missing := without(opts.demoUsers, granted); len(missing) > 0 {
			if _, err := repo.Grant(ctx, id, missing); err != nil {
				return errors.Wrapf(err, "grant %s", v.Code)
			}
		}
	}

	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(opts.apiKeyPepper), opts.apiKey),
		Name:    "Default key",
		Scopes:  []string{"checkout"},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}
	lg.Info("Upserted API key", zap.String("id", "default"))
	return nil
}

func without(all, drop []string) []string {
	skip := make(map[string]struct{}, len(drop))
	for _, s := range drop {
		skip[s] = struct{}{}
	}
	var out []string
	for _, s := range all {
		if _, ok := skip[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
