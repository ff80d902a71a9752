// Package grant issues a voucher to every user listed in gzip-compressed
// user id files, skipping users that already hold it.
package grant

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store persists voucher grants.
type Store interface {
	// Grantees calls fn for every user already holding voucherID.
	Grantees(ctx context.Context, voucherID string, fn func(userID string)) error
	// GrantedAmong returns the users of userIDs already holding voucherID.
	GrantedAmong(ctx context.Context, voucherID string, userIDs []string) ([]string, error)
	Grant(ctx context.Context, voucherID string, userIDs []string) (int64, error)
}

// Config tunes a Granter.
type Config struct {
	// BatchSize is the number of grants written per COPY. Defaults to 5000.
	BatchSize int
	// ExpectedUsers sizes the de-duplication filter. Defaults to 1e6.
	ExpectedUsers uint
	// FalsePositiveRate of the filter. Defaults to 0.001. False positives
	// only cost an extra lookup.
	FalsePositiveRate float64
	Logger            *zap.Logger
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 5000
	}
	if c.ExpectedUsers == 0 {
		c.ExpectedUsers = 1_000_000
	}
	if c.FalsePositiveRate <= 0 {
		c.FalsePositiveRate = 0.001
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Result summarizes a run.
type Result struct {
	// Read is the number of non-empty lines read.
	Read int64
	// Granted is the number of vouchers issued.
	Granted int64
}

// Granter issues one voucher in bulk.
type Granter struct {
	store Store
	cfg   Config
}

// New creates a Granter.
func New(store Store, cfg Config) *Granter {
	cfg.setDefaults()
	return &Granter{store: store, cfg: cfg}
}

// Run grants voucherID to the users listed in files. Files are read
// concurrently; each user receives the voucher at most once across files
// and previous runs.
func (g *Granter) Run(ctx context.Context, voucherID string, files []string) (Result, error) {
	seen := bloom.NewWithEstimates(g.cfg.ExpectedUsers, g.cfg.FalsePositiveRate)
	var existing int
	if err := g.store.Grantees(ctx, voucherID, func(userID string) {
		seen.AddString(userID)
		existing++
	}); err != nil {
		return Result{}, errors.Wrap(err, "load grantees")
	}
	g.cfg.Logger.Info("Loaded existing grantees", zap.Int("count", existing))

	var (
		res   Result
		batch = make([]string, 0, g.cfg.BatchSize)
		// Users the filter has probably seen; resolved exactly at the end.
		maybe = make(map[string]struct{})
	)
	flush := func(ctx context.Context) error {
		if len(batch) == 0 {
			return nil
		}
		n, err := g.store.Grant(ctx, voucherID, batch)
		if err != nil {
			return errors.Wrap(err, "grant batch")
		}
		res.Granted += n
		batch = batch[:0]
		g.cfg.Logger.Debug("Granted batch", zap.Int64("granted", res.Granted))
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	ids := make(chan string, 1024)
	var producers sync.WaitGroup
	for _, path := range files {
		producers.Add(1)
		eg.Go(func() error {
			defer producers.Done()
			return readUserIDs(egCtx, path, ids)
		})
	}
	eg.Go(func() error {
		producers.Wait()
		close(ids)
		return nil
	})
	eg.Go(func() error {
		for id := range ids {
			res.Read++
			if seen.TestOrAddString(id) {
				maybe[id] = struct{}{}
				continue
			}
			batch = append(batch, id)
			if len(batch) == g.cfg.BatchSize {
				if err := flush(egCtx); err != nil {
					return err
				}
			}
		}
		return flush(egCtx)
	})
	if err := eg.Wait(); err != nil {
		return res, err
	}

	if err := g.resolve(ctx, voucherID, maybe, &batch, flush); err != nil {
		return res, err
	}
	g.cfg.Logger.Info("Grant complete",
		zap.Int64("read", res.Read),
		zap.Int64("granted", res.Granted),
		zap.Int("rechecked", len(maybe)),
	)
	return res, nil
}

// resolve grants the filter positives that turn out not to hold the voucher.
func (g *Granter) resolve(ctx context.Context, voucherID string, maybe map[string]struct{}, batch *[]string, flush func(context.Context) error) error {
	pending := make([]string, 0, len(maybe))
	for id := range maybe {
		pending = append(pending, id)
	}

	for len(pending) > 0 {
		chunk := pending[:min(len(pending), g.cfg.BatchSize)]
		pending = pending[len(chunk):]

		granted, err := g.store.GrantedAmong(ctx, voucherID, chunk)
		if err != nil {
			return errors.Wrap(err, "check granted users")
		}
		holds := make(map[string]struct{}, len(granted))
		for _, id := range granted {
			holds[id] = struct{}{}
		}
		for _, id := range chunk {
			if _, ok := holds[id]; !ok {
				*batch = append(*batch, id)
			}
		}
		if err := flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// readUserIDs sends every non-empty line of the gzip file at path to out.
func readUserIDs(ctx context.Context, path string, out chan<- string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		select {
		case out <- id:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
