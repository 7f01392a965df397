package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rdilley/lpi/internal/config"
	"github.com/rdilley/lpi/internal/dict"
	"github.com/rdilley/lpi/internal/index"
	"github.com/rdilley/lpi/internal/linechunk"
	"github.com/rdilley/lpi/internal/metrics"
	"github.com/rdilley/lpi/internal/pipeline"
	"github.com/rdilley/lpi/internal/progress"
	"github.com/rdilley/lpi/internal/tokenizer"
)

// RunIndexer validates opts, then processes every path in args in
// turn: per-file errors are logged and absorbed, and the process only
// exits nonzero if every input failed (or the arguments themselves
// were invalid).
func RunIndexer(ctx context.Context, args []string, opts Options) error {
	if opts.Debug < 0 || opts.Debug > 9 {
		return errors.Errorf("debug verbosity %d out of range [0,9]", opts.Debug)
	}
	configureLogging(opts.Debug)

	for _, p := range args {
		if p == "-" && opts.Write {
			return errors.New("-w/--write is incompatible with stdin input")
		}
	}

	tuning, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	var reg *promRegistry
	if opts.MetricsAddr != "" {
		reg = startMetricsServer(opts.MetricsAddr)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Warn("lpi: received shutdown signal, draining in-flight chunks")
			cancel()
		case <-ctx.Done():
		}
	}()
	defer signal.Stop(sigCh)

	var succeeded, failed int
	for _, path := range args {
		if err := processInput(ctx, path, opts, tuning, reg); err != nil {
			log.WithFields(log.Fields{"input": path, "error": err}).Error("lpi: failed to process input")
			failed++
			continue
		}
		succeeded++
	}

	if succeeded == 0 && failed > 0 {
		return errors.Errorf("all %d input(s) failed", failed)
	}
	return nil
}

// promRegistry holds the metrics collectors so processInput can update
// them; the registry itself stays inside startMetricsServer's handler.
type promRegistry struct {
	m *metrics.Metrics
}

func startMetricsServer(addr string) *promRegistry {
	m, reg := metrics.New()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("lpi: metrics server exited")
		}
	}()
	log.WithField("addr", addr).Info("lpi: serving Prometheus metrics")
	return &promRegistry{m: m}
}

func processInput(ctx context.Context, path string, opts Options, tuning config.Tuning, reg *promRegistry) error {
	src, closeSrc, forceSerial, _, err := openInput(path)
	if err != nil {
		return errors.Wrap(err, "opening input")
	}
	defer closeSrc()

	serial := opts.Serial || forceSerial
	workers := 1
	if !serial {
		if f, ok := src.(*os.File); ok && linechunk.ShouldUseParallel(f, false, tuning.MinFileSizeForParallel) {
			workers = linechunk.WorkerCount()
			if tuning.Workers > 0 {
				workers = tuning.Workers
			}
		}
	}

	log.WithFields(log.Fields{"input": path, "workers": workers, "serial": workers == 1}).
		Info("lpi: processing input")

	d := dict.New(tuning.DictOptions(workers))
	dispatcher := linechunk.New(src, tuning.ChunkSizeBytes)

	mon := progress.New(os.Stderr, time.Duration(tuning.ProgressIntervalSecs)*time.Second, func(delta uint64) {
		if reg != nil {
			reg.m.LinesProcessedTotal.Add(float64(delta))
		}
	})
	go mon.Run()
	defer mon.Stop()

	cfg := pipeline.Config{
		Workers: workers,
		Tokenizer: tokenizer.Options{
			Greedy: opts.Greedy,
		},
		Hooks: pipeline.Hooks{
			OnLinesProcessed: mon.Add,
			OnChunkDequeued: func() {
				if reg != nil {
					reg.m.ChunksProcessedTotal.Inc()
				}
			},
			OnInsert: func(isNew bool) {
				if reg == nil {
					return
				}
				if isNew {
					reg.m.InsertsTotal.WithLabelValues("new").Inc()
				} else {
					reg.m.InsertsTotal.WithLabelValues("existing").Inc()
				}
			},
			OnArrayDropped: func() {
				if reg != nil {
					reg.m.LocationsDroppedTotal.Inc()
				}
			},
		},
	}

	result, err := pipeline.Run(ctx, dispatcher, d, cfg)
	if err != nil {
		return errors.Wrap(err, "pipeline run failed")
	}
	if reg != nil {
		reg.m.DictionaryEntries.Set(float64(d.Len()))
		reg.m.DictionaryRehashTotal.Add(float64(d.RehashCount()))
	}

	out, closeOut, err := openOutput(path, opts.Write)
	if err != nil {
		return errors.Wrap(err, "opening output")
	}
	defer closeOut()

	stats, err := index.WriteSorted(out, d)
	if err != nil {
		return errors.Wrap(err, "writing sorted index")
	}

	if opts.Debug > 0 {
		log.WithFields(log.Fields{
			"input":            path,
			"linesProcessed":   result.LinesProcessed,
			"chunksProcessed":  result.ChunksProcessed,
			"newAddresses":     result.NewAddresses,
			"updatedAddrs":     result.UpdatedAddrs,
			"addressesWritten": stats.AddressesWritten,
			"locationsWritten": stats.LocationsWritten,
			"rehashes":         d.RehashCount(),
			"maxChainDepth":    d.MaxChainDepth(),
		}).Info("lpi: input complete")
	}

	return nil
}

// openInput resolves path to a readable source, reporting whether the
// input must run in serial mode (stdin and .gz inputs cannot support
// the parallel dispatcher's random access) and its size when known.
func openInput(path string) (io.Reader, func(), bool, int64, error) {
	if path == "-" {
		return os.Stdin, func() {}, true, 0, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, false, 0, err
	}

	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, false, 0, errors.Wrap(err, "opening gzip stream")
		}
		return gz, func() { gz.Close(); f.Close() }, true, 0, nil
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, false, 0, err
	}
	return f, func() { f.Close() }, false, st.Size(), nil
}

func openOutput(path string, write bool) (io.Writer, func(), error) {
	if !write {
		return os.Stdout, func() {}, nil
	}
	outPath := path + ".lpi"
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func configureLogging(debug int) {
	switch {
	case debug >= 9:
		log.SetLevel(log.TraceLevel)
	case debug >= 6:
		log.SetLevel(log.DebugLevel)
	case debug >= 1:
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.WarnLevel)
	}
}
