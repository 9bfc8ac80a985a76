// Package web serves a small wallet dashboard: the current snapshot, a live
// SSE feed of applied snapshots, the receipt journal and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vadiminshakov/boomkit/internal/domain"
	"github.com/vadiminshakov/boomkit/internal/storage/wallog"
)

const heartbeatInterval = 30 * time.Second

type walletSource interface {
	Snapshot() (domain.WalletSnapshot, bool)
	Subscribe() <-chan domain.WalletSnapshot
	Unsubscribe(ch <-chan domain.WalletSnapshot)
	RequestBackendSync(reason domain.SyncReason)
}

type snapshotHistory interface {
	SnapshotsAfter(index uint64) ([]domain.WalletSnapshotRecord, error)
}

type receiptReader interface {
	ReceiptsAfter(index uint64) ([]wallog.Record[domain.TradeReceipt], error)
}

// Server exposes HTTP endpoints serving the dashboard.
type Server struct {
	Addr     string
	Wallet   walletSource
	History  snapshotHistory
	Receipts receiptReader
	Gatherer prometheus.Gatherer
	Currency string
	Logger   *zap.Logger
}

// Handler builds the route table. Nil sources answer 503.
func (s *Server) Handler() http.Handler {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /wallet", s.handleWallet)
	mux.HandleFunc("GET /wallet/stream", s.handleWalletStream)
	mux.HandleFunc("POST /wallet/refresh", s.handleRefresh)
	mux.HandleFunc("GET /wallet/history", s.handleHistory)
	mux.HandleFunc("GET /receipts", s.handleReceipts)
	if s.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.Logger.Info("dashboard listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type walletView struct {
	domain.WalletSnapshot
	Display map[string]string `json:"display"`
}

func (s *Server) view(snap domain.WalletSnapshot) walletView {
	return walletView{
		WalletSnapshot: snap,
		Display: map[string]string{
			"cash":    domain.FormatAmount(snap.CashBalance, s.Currency),
			"virtual": domain.FormatAmount(snap.VirtualBalance, s.Currency),
			"usable":  domain.FormatAmount(snap.UsableBalance, s.Currency),
		},
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleWallet(w http.ResponseWriter, _ *http.Request) {
	if s.Wallet == nil {
		http.Error(w, "wallet not available", http.StatusServiceUnavailable)
		return
	}
	snap, ok := s.Wallet.Snapshot()
	if !ok {
		http.Error(w, "wallet not loaded yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.view(snap))
}

// handleRefresh asks for a full wallet read. The result arrives on /wallet/stream.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if s.Wallet == nil {
		http.Error(w, "wallet not available", http.StatusServiceUnavailable)
		return
	}
	s.Wallet.RequestBackendSync(domain.ReasonUserRefresh)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleWalletStream(w http.ResponseWriter, r *http.Request) {
	if s.Wallet == nil {
		http.Error(w, "wallet not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.Wallet.Subscribe()
	defer s.Wallet.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(snap domain.WalletSnapshot) bool {
		payload, err := json.Marshal(s.view(snap))
		if err != nil {
			s.Logger.Warn("encode wallet snapshot", zap.Error(err))
			return true
		}
		if _, err := fmt.Fprintf(w, "event: wallet\ndata: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if snap, ok := s.Wallet.Snapshot(); ok {
		send(snap)
	} else {
		// commit headers so clients see the stream open
		fmt.Fprint(w, ": waiting\n\n")
		flusher.Flush()
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case snap, open := <-sub:
			if !open || !send(snap) {
				return
			}
		}
	}
}

func afterParam(r *http.Request) uint64 {
	after, _ := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)
	return after
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.Error(w, "snapshot history not available", http.StatusServiceUnavailable)
		return
	}
	records, err := s.History.SnapshotsAfter(afterParam(r))
	if err != nil {
		s.Logger.Warn("read wallet history", zap.Error(err))
		http.Error(w, "failed to load snapshots", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if s.Receipts == nil {
		http.Error(w, "receipt journal not available", http.StatusServiceUnavailable)
		return
	}
	records, err := s.Receipts.ReceiptsAfter(afterParam(r))
	if err != nil {
		s.Logger.Warn("read receipts", zap.Error(err))
		http.Error(w, "failed to load receipts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>boomkit wallet</title>
  <style>
    body { font-family:'Space Mono','JetBrains Mono',monospace; margin:2rem; color:#111; }
    .card { border:3px solid #111; padding:1.5rem; max-width:480px; box-shadow:8px 8px 0 rgba(0,0,0,.15); }
    .row { display:flex; justify-content:space-between; margin:.4rem 0; }
    .muted { color:#9c9c9c; }
    .stale { color:#b5651d; }
  </style>
</head>
<body>
  <div class="card">
    <h2>Wallet</h2>
    <div class="row"><span>Usable</span><strong id="usable">-</strong></div>
    <div class="row"><span>Cash</span><span id="cash">-</span></div>
    <div class="row muted"><span>Virtual (not spendable)</span><span id="virtual">-</span></div>
    <div class="row muted"><span id="meta"></span><button id="refresh">refresh</button></div>
  </div>
<script>
function render(s){
  document.getElementById('usable').textContent = s.display.usable;
  document.getElementById('cash').textContent = s.display.cash;
  document.getElementById('virtual').textContent = s.display.virtual;
  const meta = document.getElementById('meta');
  meta.textContent = s.reason + ' #' + s.applied_sequence + ' ' + new Date(s.applied_at).toLocaleTimeString();
  meta.className = s.stale ? 'stale' : '';
}
const es = new EventSource('/wallet/stream');
es.addEventListener('wallet', e => render(JSON.parse(e.data)));
document.getElementById('refresh').onclick = () => fetch('/wallet/refresh', {method: 'POST'});
</script>
</body>
</html>`
