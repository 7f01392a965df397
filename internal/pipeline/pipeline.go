// Package pipeline wires the chunk dispatcher, the worker pool, and
// the single writer goroutine together, using golang.org/x/sync/errgroup:
// a bounded job channel per stage, goroutines launched with wg.Go, and
// a select on ctx.Done() at every blocking point so a cancelled
// context drains cleanly instead of deadlocking.
package pipeline

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rdilley/lpi/internal/dict"
	"github.com/rdilley/lpi/internal/linechunk"
	"github.com/rdilley/lpi/internal/tokenizer"
)

// insertionBatchSize bounds how many new-address requests a worker
// buffers before flushing, kept small to minimize the duplicate-race
// window between a worker's lookup miss and the writer actually
// inserting the record.
const insertionBatchSize = 5

const (
	defaultChunkQueueCapacity     = 16
	defaultInsertionQueueCapacity = 64
)

// insertionRequest is one worker's request to insert a newly-seen
// address, carrying the location that triggered it so the writer can
// seed the new record.
type insertionRequest struct {
	address  string
	line     uint64
	field    uint16
	workerID int
}

// Hooks lets callers observe pipeline progress without coupling this
// package to a specific metrics or progress-reporting backend. Every
// field is optional; nil hooks are simply not called. This is how the
// progress monitor's atomic counter and the optional Prometheus gauges
// are wired in without the hot path importing either package directly.
type Hooks struct {
	OnLinesProcessed func(n uint64)
	OnChunkDequeued  func()
	OnInsert         func(isNew bool)
	OnArrayDropped   func()
}

// Config configures a pipeline run.
type Config struct {
	Workers                int
	ChunkQueueCapacity     int
	InsertionQueueCapacity int
	Tokenizer              tokenizer.Options
	Hooks                  Hooks
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.ChunkQueueCapacity <= 0 {
		c.ChunkQueueCapacity = defaultChunkQueueCapacity
	}
	if c.InsertionQueueCapacity <= 0 {
		c.InsertionQueueCapacity = defaultInsertionQueueCapacity
	}
}

// Result summarizes one pipeline run, for the CLI's post-run log line.
type Result struct {
	LinesProcessed  uint64
	ChunksProcessed uint64
	NewAddresses    uint64
	UpdatedAddrs    uint64
}

// Run drives dispatcher to completion against dictionary d, fanning
// lines out across cfg.Workers goroutines and serializing all new-
// address insertions through a single writer goroutine. It returns
// once the dispatcher, every worker, and the writer have all exited —
// either because the input was fully consumed, or because ctx was
// cancelled, in which case whatever was indexed so far is still
// usable.
func Run(ctx context.Context, dispatcher *linechunk.Dispatcher, d *dict.AddressDictionary, cfg Config) (*Result, error) {
	cfg.setDefaults()

	g, gctx := errgroup.WithContext(ctx)

	chunkQueue := make(chan *linechunk.Chunk, cfg.ChunkQueueCapacity)
	insertionQueue := make(chan []insertionRequest, cfg.InsertionQueueCapacity)

	var result Result

	g.Go(func() error {
		return runDispatcher(gctx, dispatcher, chunkQueue)
	})

	var workerWG sync.WaitGroup
	workerWG.Add(cfg.Workers)
	for w := 0; w < cfg.Workers; w++ {
		workerID := w
		g.Go(func() error {
			defer workerWG.Done()
			return runWorker(gctx, workerID, chunkQueue, insertionQueue, d, cfg, &result)
		})
	}

	// Close the insertion queue once every worker has exited: the
	// writer's range loop ends exactly when the last producer is done
	// and the queue is drained.
	g.Go(func() error {
		workerWG.Wait()
		close(insertionQueue)
		return nil
	})

	g.Go(func() error {
		return runWriter(d, insertionQueue, cfg.Hooks, &result)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return &result, err
	}
	return &result, nil
}

func runDispatcher(ctx context.Context, dispatcher *linechunk.Dispatcher, out chan<- *linechunk.Chunk) error {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		chunk, err := dispatcher.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "pipeline: dispatcher failed")
		}

		select {
		case out <- chunk:
		case <-ctx.Done():
			return nil
		}
	}
}

func runWorker(ctx context.Context, workerID int, in <-chan *linechunk.Chunk, out chan<- []insertionRequest, d *dict.AddressDictionary, cfg Config, result *Result) error {
	batch := make([]insertionRequest, 0, insertionBatchSize)

	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		send := make([]insertionRequest, len(batch))
		copy(send, batch)
		batch = batch[:0]
		select {
		case out <- send:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		var chunk *linechunk.Chunk
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok = <-in:
			if !ok {
				flush()
				return nil
			}
		}
		if cfg.Hooks.OnChunkDequeued != nil {
			cfg.Hooks.OnChunkDequeued()
		}

		linesProcessed, err := processChunk(workerID, chunk, d, cfg, &batch, out, ctx)
		atomic.AddUint64(&result.ChunksProcessed, 1)
		if cfg.Hooks.OnLinesProcessed != nil {
			cfg.Hooks.OnLinesProcessed(linesProcessed)
		}
		atomic.AddUint64(&result.LinesProcessed, linesProcessed)
		if err != nil {
			return err
		}
		if !flush() {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// processChunk parses every line in chunk, looks each candidate
// address up in the dictionary, and either appends to this worker's
// own location array (hit) or batches an insertion request (miss).
func processChunk(workerID int, chunk *linechunk.Chunk, d *dict.AddressDictionary, cfg Config, batch *[]insertionRequest, out chan<- []insertionRequest, ctx context.Context) (uint64, error) {
	var workerLinesProcessed uint64
	buf := chunk.Buffer

	start := 0
	for start < len(buf) {
		nl := bytes.IndexByte(buf[start:], '\n')
		var line []byte
		if nl == -1 {
			line = buf[start:]
			start = len(buf)
		} else {
			line = buf[start : start+nl]
			start += nl + 1
		}

		absoluteLine := chunk.StartLineNumber + chunk.CarryForwardLines + workerLinesProcessed

		fields := tokenizer.Tokenize(line, cfg.Tokenizer)
		for _, f := range fields {
			if f.Tag == tokenizer.TagOther {
				continue
			}
			if f.Index > int(^uint16(0)) {
				log.WithFields(log.Fields{"line": absoluteLine, "field": f.Index}).
					Error("pipeline: field index overflows uint16, dropping location")
				continue
			}
			field := uint16(f.Index)

			if data, ok := d.Lookup(f.Canonical); ok {
				if err := data.AppendLocation(workerID, absoluteLine, field); err != nil {
					log.WithFields(log.Fields{
						"address": f.Canonical,
						"line":    absoluteLine,
						"field":   field,
						"error":   err,
					}).Warn("pipeline: dropping location, array at capacity ceiling")
					if cfg.Hooks.OnArrayDropped != nil {
						cfg.Hooks.OnArrayDropped()
					}
				}
				continue
			}

			*batch = append(*batch, insertionRequest{
				address:  f.Canonical,
				line:     absoluteLine,
				field:    field,
				workerID: workerID,
			})
			if len(*batch) >= insertionBatchSize {
				send := make([]insertionRequest, len(*batch))
				copy(send, *batch)
				*batch = (*batch)[:0]
				select {
				case out <- send:
				case <-ctx.Done():
					return workerLinesProcessed, nil
				}
			}
		}

		workerLinesProcessed++
	}

	return workerLinesProcessed, nil
}

func runWriter(d *dict.AddressDictionary, in <-chan []insertionRequest, hooks Hooks, result *Result) error {
	for batch := range in {
		for _, req := range batch {
			data, isNew, err := d.Insert(req.address)
			if err != nil {
				return errors.Wrap(err, "pipeline: dictionary insert failed")
			}
			if hooks.OnInsert != nil {
				hooks.OnInsert(isNew)
			}
			if isNew {
				atomic.AddUint64(&result.NewAddresses, 1)
			} else {
				atomic.AddUint64(&result.UpdatedAddrs, 1)
			}
			if err := data.AppendLocation(req.workerID, req.line, req.field); err != nil {
				log.WithFields(log.Fields{
					"address": req.address,
					"line":    req.line,
					"field":   req.field,
					"error":   err,
				}).Warn("pipeline: writer dropping location, array at capacity ceiling")
				if hooks.OnArrayDropped != nil {
					hooks.OnArrayDropped()
				}
			}
		}
	}
	return nil
}
