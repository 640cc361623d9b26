// Command coupon-import bulk-loads coupon definitions from gzip-compressed
// files. A code defined in more than one file is ambiguous and skipped;
// codes already in the database are left untouched.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/delivery-api/internal/domain/coupon"
	"github.com/xenking/delivery-api/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	maxFiles      = 64
	progressEvery = 100_000
)

type stats struct {
	inserted, existing, conflicts, invalid int
}

// couponWriter is satisfied by *postgres.CouponRepository.
type couponWriter interface {
	InsertIfAbsent(ctx context.Context, c *coupon.Coupon) (bool, error)
}

func main() {
	var (
		databaseURL string
		createdBy   string
		workers     int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&createdBy, "created-by", "", "admin user id recorded as the coupons' creator")
	flag.IntVar(&workers, "workers", 4, "files processed concurrently")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 || len(files) > maxFiles {
		slog.Error("pass between 1 and 64 coupon files as arguments")
		os.Exit(1)
	}
	var creator uuid.UUID
	if createdBy != "" {
		id, err := uuid.Parse(createdBy)
		if err != nil {
			slog.Error("invalid --created-by", slog.String("error", err.Error()))
			os.Exit(1)
		}
		creator = id
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files, creator, workers); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, creator uuid.UUID, workers int) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))
	filters, err := buildFilters(ctx, files, workers)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding codes defined in several files")
	conflicts, err := findConflicts(ctx, files, filters, workers)
	if err != nil {
		return errors.Wrap(err, "find conflicts")
	}
	slog.Info("conflicting codes", slog.Int("count", len(conflicts)))

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("pass 3: importing coupons")
	total, err := importFiles(ctx, postgres.NewCouponRepository(pool), files, conflicts, creator, workers)
	if err != nil {
		return err
	}
	slog.Info("import summary",
		slog.Int("inserted", total.inserted),
		slog.Int("existing", total.existing),
		slog.Int("conflicts", total.conflicts),
		slog.Int("invalid", total.invalid),
	)
	return nil
}

// buildFilters creates one bloom filter of codes per file.
func buildFilters(ctx context.Context, files []string, workers int) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			err := streamRecords(ctx, path, func(rec record) error {
				filter.AddString(rec.code)
				return nil
			}, nil)
			if err != nil {
				return errors.Wrapf(err, "file %s", path)
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findConflicts returns the codes present in two or more files. Bloom hits
// are only candidates; the bitmask merge makes the answer exact.
func findConflicts(ctx context.Context, files []string, filters []*bloom.BloomFilter, workers int) (map[string]struct{}, error) {
	candidates := make([]map[string]uint64, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]uint64)
			bit := uint64(1) << uint(i)
			err := streamRecords(ctx, path, func(rec record) error {
				for j, f := range filters {
					if j != i && f.TestString(rec.code) {
						found[rec.code] |= bit
						break
					}
				}
				return nil
			}, nil)
			if err != nil {
				return errors.Wrapf(err, "file %s", path)
			}
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint64)
	for _, found := range candidates {
		for code, mask := range found {
			merged[code] |= mask
		}
	}
	conflicts := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= 2 {
			conflicts[code] = struct{}{}
		}
	}
	return conflicts, nil
}

func importFiles(
	ctx context.Context,
	repo couponWriter,
	files []string,
	conflicts map[string]struct{},
	creator uuid.UUID,
	workers int,
) (stats, error) {
	perFile := make([]stats, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range files {
		g.Go(func() error {
			s, err := importFile(ctx, repo, path, conflicts, creator)
			if err != nil {
				return errors.Wrapf(err, "import %s", path)
			}
			perFile[i] = s
			slog.Info("file imported", slog.String("file", path), slog.Int("inserted", s.inserted))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats{}, err
	}

	var total stats
	for _, s := range perFile {
		total.inserted += s.inserted
		total.existing += s.existing
		total.conflicts += s.conflicts
		total.invalid += s.invalid
	}
	return total, nil
}

func importFile(ctx context.Context, repo couponWriter, path string, conflicts map[string]struct{}, creator uuid.UUID) (stats, error) {
	var s stats
	now := time.Now().UTC()

	onInvalid := func(line int, err error) {
		s.invalid++
		slog.Warn("skipping invalid line", slog.String("file", path), slog.Int("line", line), slog.String("error", err.Error()))
	}
	err := streamRecords(ctx, path, func(rec record) error {
		if _, ok := conflicts[rec.code]; ok {
			s.conflicts++
			return nil
		}
		c := &coupon.Coupon{
			ID:          uuid.New(),
			Code:        rec.code,
			Description: rec.description,
			Rule:        rec.rule,
			ValidUntil:  rec.validUntil,
			MaxUses:     rec.maxUses,
			Active:      true,
			CreatedBy:   creator,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		inserted, err := repo.InsertIfAbsent(ctx, c)
		if err != nil {
			return err
		}
		if inserted {
			s.inserted++
		} else {
			s.existing++
		}
		if n := s.inserted + s.existing; n%progressEvery == 0 {
			slog.Info("import progress", slog.String("file", path), slog.Int("processed", n))
		}
		return nil
	}, onInvalid)
	return s, err
}

// streamRecords calls fn for every valid record of a gzip file. Invalid
// lines go to onInvalid when it is set and are skipped otherwise.
func streamRecords(ctx context.Context, path string, fn func(record) error, onInvalid func(line int, err error)) error {
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
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, ok, err := parseLine(scanner.Text())
		if err != nil {
			if onInvalid != nil {
				onInvalid(line, err)
			}
			continue
		}
		if !ok {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
