package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/urlcleaner/internal/cache"
	"github.com/edgecomet/urlcleaner/internal/cleanerdoc"
	"github.com/edgecomet/urlcleaner/internal/common/logger"
	"github.com/edgecomet/urlcleaner/internal/job"
	"github.com/edgecomet/urlcleaner/internal/jobmetrics"
	"github.com/edgecomet/urlcleaner/pkg/pattern"
)

func main() {
	cleanerPath := flag.String("c", "cleaner.yaml", "path to the cleaner document")
	inputPath := flag.String("i", "-", "URL list file, one task per line (- for stdin)")
	workers := flag.Int("w", runtime.NumCPU(), "worker goroutines")
	redisAddr := flag.String("redis", "", "Redis address for the persistent cache (empty: in-memory cache)")
	metricsAddr := flag.String("metrics", "", "address to expose /metrics on (empty: disabled)")
	unthread := flag.Bool("unthread", false, "serialize cache and HTTP access across workers")
	filter := flag.String("filter", "", "only clean URLs matching this pattern (exact, *wildcard, or ~regex)")
	keepFailed := flag.Bool("keep-failed", false, "emit the original URL when cleaning fails")
	flag.Parse()

	dl, err := logger.NewDefaultLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer dl.Sync()

	doc, err := os.ReadFile(*cleanerPath)
	if err != nil {
		dl.Fatal("Failed to read cleaner document", zap.String("path", *cleanerPath), zap.Error(err))
	}
	cleaner, err := cleanerdoc.ParseCleaner(doc)
	if err != nil {
		dl.Fatal("Failed to compile cleaner document", zap.String("path", *cleanerPath), zap.Error(err))
	}

	var urlFilter *pattern.Pattern
	if *filter != "" {
		urlFilter, err = pattern.Compile(*filter)
		if err != nil {
			dl.Fatal("Invalid filter pattern", zap.String("pattern", *filter), zap.Error(err))
		}
	}

	var metrics *jobmetrics.JobMetrics
	if *metricsAddr != "" {
		metrics = jobmetrics.NewJobMetrics("urlclean", dl.Logger)
		go func() {
			handler := func(ctx *fasthttp.RequestCtx) {
				if string(ctx.Path()) == "/metrics" {
					metrics.ServeHTTP(ctx)
					return
				}
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
			if err := fasthttp.ListenAndServe(*metricsAddr, handler); err != nil {
				dl.Error("Metrics server failed", zap.Error(err))
			}
		}()
		dl.Info("Metrics server listening", zap.String("addr", *metricsAddr))
	}

	var store cache.Store
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		store = cache.NewRedisStore(rdb, dl.Logger, "urlclean")
		defer rdb.Close()
	} else {
		store = cache.NewMemStore()
	}
	if metrics != nil {
		store = jobmetrics.NewInstrumentedStore(store, metrics)
	}

	input := os.Stdin
	if *inputPath != "-" {
		f, err := os.Open(*inputPath)
		if err != nil {
			dl.Fatal("Failed to open input", zap.String("path", *inputPath), zap.Error(err))
		}
		defer f.Close()
		input = f
	}

	var source job.ConfigSource = job.NewReaderSource(input)
	if urlFilter != nil {
		source = &filteredSource{inner: source, pattern: urlFilter}
	}

	j, err := job.New(&job.Config{
		Cleaner:    cleaner,
		Cache:      store,
		Unthreader: cleanerdoc.NewUnthreader(*unthread),
		Logger:     dl.Logger,
		Metrics:    metrics,
	}, source)
	if err != nil {
		dl.Fatal("Failed to build job", zap.Error(err))
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	failed := 0
	for result := range j.Run(*workers) {
		if result.Err != nil {
			failed++
			if *keepFailed && result.Input != "" {
				fmt.Fprintln(out, result.Input)
			}
			continue
		}
		fmt.Fprintln(out, result.Url.String())
	}
	if failed > 0 {
		dl.Warn("Some tasks failed", zap.Int("failed", failed))
	}
}

// filteredSource drops inputs whose raw line fails the -filter pattern.
// Filtered-out URLs are skipped entirely, not passed through.
type filteredSource struct {
	inner   job.ConfigSource
	pattern *pattern.Pattern
}

func (s *filteredSource) Next() (*job.LazyTaskConfig, error) {
	for {
		cfg, err := s.inner.Next()
		if err != nil || cfg == nil {
			return cfg, err
		}
		if s.pattern.Match(cfg.Raw) {
			return cfg, nil
		}
	}
}
