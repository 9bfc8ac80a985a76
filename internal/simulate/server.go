package simulate

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Asset seed for a listed asset.
type Asset struct {
	ID     string
	Name   string
	Base   decimal.Decimal
	Social decimal.Decimal
}

// DemoAssets a small catalogue for local runs.
func DemoAssets() []Asset {
	return []Asset{
		{ID: "boom-sunset", Name: "Sunset over Dakar", Base: decimal.NewFromInt(15_000), Social: decimal.NewFromInt(2_500)},
		{ID: "boom-kora", Name: "Kora session", Base: decimal.NewFromInt(7_500), Social: decimal.NewFromInt(900)},
		{ID: "boom-market", Name: "Sandaga market", Base: decimal.NewFromInt(32_000), Social: decimal.NewFromInt(11_000)},
	}
}

// Serve runs the backend on addr until ctx is done.
func Serve(ctx context.Context, addr string, b *Backend, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           b,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("simulated marketplace listening",
		zap.String("addr", addr),
		zap.String("stream", "ws://"+addr+"/stream"))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
