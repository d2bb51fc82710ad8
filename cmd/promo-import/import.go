package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
	"github.com/xenking/pos-pricing/internal/repository"
)

const (
	bloomFPR    = 0.001
	maxLineSize = 1 << 20
)

type importer struct {
	lg          *zap.Logger
	catalog     *bloom.BloomFilter
	skipUnknown bool
	batchSize   int
}

type fileStats struct {
	read, invalid, unknown int
}

// readAll parses every file concurrently and returns the accepted payloads
// in file order, then record order within each file.
func (imp *importer) readAll(ctx context.Context, files []string) ([]repository.RawPromotion, error) {
	results := make([][]repository.RawPromotion, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			promos, stats, err := imp.readFile(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			imp.lg.Info("File parsed",
				zap.String("path", path),
				zap.Int("records", stats.read),
				zap.Int("accepted", len(promos)),
				zap.Int("invalid", stats.invalid),
				zap.Int("unknown_products", stats.unknown),
			)
			results[i] = promos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []repository.RawPromotion
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (imp *importer) readFile(ctx context.Context, path string) ([]repository.RawPromotion, fileStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fileStats{}, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	name := path
	if strings.HasSuffix(name, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fileStats{}, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
		name = strings.TrimSuffix(name, ".gz")
	}

	var (
		out   []repository.RawPromotion
		stats fileStats
	)
	accept := func(raw []byte) {
		stats.read++
		p, ok := imp.accept(raw, &stats)
		if ok {
			out = append(out, p)
		}
	}

	if filepath.Ext(name) == ".json" {
		err = eachArrayElement(ctx, r, accept)
	} else {
		err = eachLine(ctx, r, accept)
	}
	return out, stats, err
}

// accept validates one raw record. Malformed records are dropped; records
// switched off upstream are kept so that re-enabling them is an import away.
func (imp *importer) accept(raw []byte, stats *fileStats) (repository.RawPromotion, bool) {
	rec, err := promotion.DecodeRecord(raw)
	if err != nil {
		stats.invalid++
		imp.lg.Warn("Skipping undecodable promotion", zap.Error(err))
		return repository.RawPromotion{}, false
	}
	def, err := promotion.Normalize(rec)
	if err != nil && !errors.Is(err, promotion.ErrInactive) {
		stats.invalid++
		imp.lg.Warn("Skipping malformed promotion", zap.String("promotion_id", rec.ID), zap.Error(err))
		return repository.RawPromotion{}, false
	}

	if missing := imp.unknownProducts(def.Target); len(missing) > 0 {
		stats.unknown++
		imp.lg.Warn("Promotion names products missing from catalog",
			zap.String("promotion_id", rec.ID),
			zap.Strings("products", missing),
		)
		if imp.skipUnknown {
			return repository.RawPromotion{}, false
		}
	}
	return repository.RawPromotion{ID: strings.TrimSpace(rec.ID), Payload: raw}, true
}

// unknownProducts lists the product names of a product-scoped target that
// are certainly not in the catalog. Category scopes are not checked.
func (imp *importer) unknownProducts(target discount.Target) []string {
	if imp.catalog == nil || target.Scope != discount.ScopeSpecificProducts {
		return nil
	}
	var missing []string
	for _, name := range target.Names {
		if !imp.catalog.TestString(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

type promotionWriter interface {
	Upsert(ctx context.Context, promos []repository.RawPromotion) error
}

func (imp *importer) store(ctx context.Context, w promotionWriter, promos []repository.RawPromotion) error {
	for start := 0; start < len(promos); start += imp.batchSize {
		end := min(start+imp.batchSize, len(promos))
		if err := w.Upsert(ctx, promos[start:end]); err != nil {
			return errors.Wrapf(err, "store promotions %d-%d", start, end)
		}
	}
	imp.lg.Info("Promotions stored", zap.Int("count", len(promos)))
	return nil
}

func eachLine(ctx context.Context, r io.Reader, fn func(raw []byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(bytes.Clone(line))
	}
	return scanner.Err()
}

func eachArrayElement(ctx context.Context, r io.Reader, fn func(raw []byte)) error {
	d := jx.Decode(r, 64*1024)
	return d.Arr(func(d *jx.Decoder) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		fn(bytes.Clone(raw))
		return nil
	})
}
