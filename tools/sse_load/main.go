// Command sse_load opens many subscribers against the dashboard wallet stream
// and reports how many wallet frames each of them received.
package main

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type counters struct {
	connected atomic.Int64
	failed    atomic.Int64
	frames    atomic.Int64
	heartbeat atomic.Int64
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	app := &cli.App{
		Name:  "sse_load",
		Usage: "load-test the wallet SSE stream",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8089/wallet/stream"},
			&cli.IntFlag{Name: "conns", Value: 200, Usage: "concurrent subscribers"},
			&cli.DurationFlag{Name: "dur", Value: 30 * time.Second, Usage: "test duration, 0 runs until interrupted"},
			&cli.Float64Flag{Name: "rate", Value: 100, Usage: "subscribers opened per second"},
		},
		Action: func(c *cli.Context) error {
			return run(c, logger)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal("load test failed", zap.Error(err))
	}
}

func run(c *cli.Context, logger *zap.Logger) error {
	conns := c.Int("conns")
	if conns <= 0 {
		return errors.Errorf("invalid conns: %d", conns)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("dur"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	client := &http.Client{Transport: &http.Transport{
		MaxConnsPerHost:     conns + 10,
		MaxIdleConnsPerHost: conns + 10,
		DisableCompression:  true,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
	}}

	var stats counters
	limiter := rate.NewLimiter(rate.Limit(c.Float64("rate")), 1)
	url := c.String("url")

	logger.Info("starting", zap.String("url", url), zap.Int("conns", conns))
	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report(gctx, &stats, logger)
		return nil
	})
	for i := 0; i < conns; i++ {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			subscribe(gctx, client, url, &stats, logger)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("done",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int64("connected", stats.connected.Load()),
		zap.Int64("failed", stats.failed.Load()),
		zap.Int64("wallet_frames", stats.frames.Load()),
		zap.Int64("heartbeats", stats.heartbeat.Load()))
	return nil
}

func subscribe(ctx context.Context, client *http.Client, url string, stats *counters, logger *zap.Logger) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		stats.failed.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			stats.failed.Add(1)
			logger.Debug("subscribe failed", zap.Error(err))
		}
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		stats.failed.Add(1)
		logger.Debug("unexpected status", zap.Int("status", resp.StatusCode))
		return
	}
	stats.connected.Add(1)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "event: wallet":
			stats.frames.Add(1)
		case strings.HasPrefix(line, ":"):
			stats.heartbeat.Add(1)
		}
	}
}

func report(ctx context.Context, stats *counters, logger *zap.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("progress",
				zap.Int64("connected", stats.connected.Load()),
				zap.Int64("failed", stats.failed.Load()),
				zap.Int64("wallet_frames", stats.frames.Load()))
		}
	}
}
