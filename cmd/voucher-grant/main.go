// Command voucher-grant issues a voucher to every user listed in one or more
// gzip-compressed files of user ids, one id per line.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/hawker-checkout/internal/grant"
	"github.com/xenking/hawker-checkout/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		code        string
		batchSize   int
		expected    uint
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&code, "voucher", "", "code of the voucher to grant")
	flag.IntVar(&batchSize, "batch-size", 5000, "grants written per COPY")
	flag.UintVar(&expected, "expected-users", 1_000_000, "expected number of distinct users, sizes the de-duplication filter")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" || code == "" || flag.NArg() == 0 {
		lg.Fatal("Usage: voucher-grant --database-url URL --voucher CODE users1.gz [users2.gz ...]")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := grant.Config{BatchSize: batchSize, ExpectedUsers: expected, Logger: lg}
	if err := run(ctx, databaseURL, code, flag.Args(), cfg); err != nil {
		lg.Fatal("Voucher grant failed", zap.Error(err))
	}
}

func run(ctx context.Context, databaseURL, code string, files []string, cfg grant.Config) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	catalog := postgres.NewCatalogRepository(pool)
	voucherID, err := catalog.VoucherID(ctx, code)
	if err != nil {
		return errors.Wrapf(err, "resolve voucher %q", code)
	}

	res, err := grant.New(catalog, cfg).Run(ctx, voucherID, files)
	if err != nil {
		return err
	}
	cfg.Logger.Info("Done",
		zap.String("voucher", code),
		zap.Int64("read", res.Read),
		zap.Int64("granted", res.Granted),
	)
	return nil
}
