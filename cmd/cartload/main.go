// Command cartload нагружает HTTP API storefront-agent и проверяет, что при
// конкурентных изменениях строки корзина сходится к одному из запрошенных значений.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
)

type loadMode string

const (
	modeAdd    loadMode = "add"
	modeChange loadMode = "change"
	modeDrawer loadMode = "drawer"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	variant     int64
	line        int
	burst       int
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	fs := flag.NewFlagSet("cartload", flag.ContinueOnError)
	fs.StringVar(&cfg.addr, "addr", "http://localhost:8080", "storefront-agent HTTP API address")
	fs.IntVar(&cfg.total, "total", 200, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 8, "number of concurrent workers")
	fs.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeAdd), "load mode: add | change | drawer")
	fs.Int64Var(&cfg.variant, "variant", 1, "variant id for add mode")
	fs.IntVar(&cfg.line, "line", 1, "cart line for change and drawer modes")
	fs.IntVar(&cfg.burst, "burst", 5, "concurrent changes per scenario in change mode")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.variant <= 0:
		return cfg, errors.New("variant must be > 0")
	case cfg.line <= 0:
		return cfg, errors.New("line must be > 0")
	case cfg.burst <= 0:
		return cfg, errors.New("burst must be > 0")
	case strings.TrimSpace(cfg.addr) == "":
		return cfg, errors.New("addr is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeAdd:
		return modeAdd, nil
	case modeChange:
		return modeChange, nil
	case modeDrawer:
		return modeDrawer, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result := run(newHTTPAPI(cfg.addr, cfg.timeout), cfg)

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run выполняет сценарии пулом из cfg.concurrency воркеров.
func run(api agentAPI, cfg config) report {
	startedAt := time.Now()
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)

	workers := pool.New().WithMaxGoroutines(cfg.concurrency)
	for i := 0; i < cfg.concurrency; i++ {
		workers.Go(func() {
			for index := range jobs {
				_ = runScenario(api, cfg, index, col)
			}
		})
	}

	dispatchJobs(jobs, cfg)
	workers.Wait()

	return col.buildReport(startedAt, time.Since(startedAt))
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}
