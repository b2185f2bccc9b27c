package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	tmerr "github.com/rmraya/hybridtm/internal/errors"
	"github.com/rmraya/hybridtm/internal/tm"
)

// DefaultBatchSize is the number of candidates committed per batch.
const DefaultBatchSize = 1000

// BatchWriter commits a batch of entries: embed, delete existing IDs,
// bulk insert. The engine's StoreBatchEntries satisfies this.
type BatchWriter interface {
	StoreBatchEntries(ctx context.Context, entries []*tm.Entry) error
}

// Importer streams a JSONL candidate file into the store in fixed-size
// batches. A failed batch is retried once; a second failure aborts the
// import without touching previously committed batches.
type Importer struct {
	writer    BatchWriter
	batchSize int
	observer  Observer
	logger    *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithBatchSize overrides the default batch size.
func WithBatchSize(n int) Option {
	return func(imp *Importer) {
		if n > 0 {
			imp.batchSize = n
		}
	}
}

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(imp *Importer) {
		if o != nil {
			imp.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(imp *Importer) {
		if l != nil {
			imp.logger = l
		}
	}
}

// New creates an Importer committing batches through writer.
func New(writer BatchWriter, opts ...Option) *Importer {
	imp := &Importer{
		writer:    writer,
		batchSize: DefaultBatchSize,
		observer:  NewStderrObserver(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// Run imports the JSONL file at path, reporting progress against total
// (the candidate count from the ingestor; 0 when unknown). The file is
// removed when Run returns, on success and on error alike. Returns the
// number of entries committed.
func (imp *Importer) Run(ctx context.Context, path string, total int) (int, error) {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			imp.logger.Warn("failed to remove candidate file",
				slog.String("path", path), slog.String("error", err.Error()))
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return 0, tmerr.Wrap(tmerr.KindStoreError, "open candidate file", err).WithPath(path)
	}
	defer func() { _ = f.Close() }()

	imp.observer.Start(total)
	start := time.Now()

	// The reader goroutine parses lines into a bounded channel so the
	// file scan back-pressures when the embed/store pipeline lags.
	entries := make(chan *tm.Entry, imp.batchSize*2)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(entries)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}
			var entry tm.Entry
			if err := json.Unmarshal(raw, &entry); err != nil {
				// Recoverable: skip the line and keep going.
				imp.logger.Warn("skipping undecodable candidate line",
					slog.String("path", path),
					slog.Int("line", line),
					slog.String("error", err.Error()))
				continue
			}
			select {
			case entries <- &entry:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return scanner.Err()
	})

	processed := 0
	g.Go(func() error {
		batch := make([]*tm.Entry, 0, imp.batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := imp.commitBatch(gctx, batch); err != nil {
				return err
			}
			processed += len(batch)
			batch = batch[:0]
			imp.report(processed, total, start)
			return nil
		}

		for entry := range entries {
			batch = append(batch, entry)
			if len(batch) >= imp.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		return processed, err
	}

	imp.observer.Done(processed, time.Since(start))
	return processed, nil
}

// commitBatch writes one batch, retrying once on failure.
func (imp *Importer) commitBatch(ctx context.Context, batch []*tm.Entry) error {
	err := imp.writer.StoreBatchEntries(ctx, batch)
	if err == nil || ctx.Err() != nil {
		return err
	}

	imp.logger.Warn("batch commit failed, retrying once",
		slog.Int("size", len(batch)), slog.String("error", err.Error()))

	if err := imp.writer.StoreBatchEntries(ctx, batch); err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "batch commit failed after retry", err)
	}
	return nil
}

func (imp *Importer) report(processed, total int, start time.Time) {
	elapsed := time.Since(start)
	rate := float64(processed) / elapsed.Seconds()
	var eta time.Duration
	if total > processed && rate > 0 {
		eta = time.Duration(float64(total-processed)/rate) * time.Second
	}
	imp.observer.Progress(processed, total, rate, eta)
}
