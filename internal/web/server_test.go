package web

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/boomkit/internal/domain"
	"github.com/vadiminshakov/boomkit/internal/metrics"
)

type fakeWallet struct {
	mu    sync.Mutex
	snap  *domain.WalletSnapshot
	subs  []chan domain.WalletSnapshot
	syncs []domain.SyncReason
}

func (f *fakeWallet) RequestBackendSync(reason domain.SyncReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs = append(f.syncs, reason)
}

func (f *fakeWallet) Snapshot() (domain.WalletSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		return domain.WalletSnapshot{}, false
	}
	return *f.snap, true
}

func (f *fakeWallet) Subscribe() <-chan domain.WalletSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan domain.WalletSnapshot, 4)
	f.subs = append(f.subs, ch)
	return ch
}

func (f *fakeWallet) Unsubscribe(<-chan domain.WalletSnapshot) {}

func (f *fakeWallet) publish(s domain.WalletSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = &s
	for _, ch := range f.subs {
		ch <- s
	}
}

func (f *fakeWallet) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func snapshot(cash int64, seq uint64) domain.WalletSnapshot {
	return domain.WalletSnapshot{
		CashBalance:     decimal.NewFromInt(cash),
		UsableBalance:   decimal.NewFromInt(cash),
		VirtualBalance:  decimal.NewFromInt(500),
		AppliedSequence: seq,
		Reason:          domain.ReasonPoll,
	}
}

func TestHandleWallet(t *testing.T) {
	wallet := &fakeWallet{}
	srv := httptest.NewServer((&Server{Wallet: wallet, Currency: "XOF"}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/wallet")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	wallet.publish(snapshot(1250, 3))
	resp, err = http.Get(srv.URL + "/wallet")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "1250", body["cash_balance"])
	assert.Equal(t, float64(3), body["applied_sequence"])
	display := body["display"].(map[string]any)
	assert.Contains(t, display["cash"], "1,250.00")
}

func TestHandleWalletStream(t *testing.T) {
	wallet := &fakeWallet{}
	wallet.publish(snapshot(100, 1))
	srv := httptest.NewServer((&Server{Wallet: wallet, Currency: "XOF"}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/wallet/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readData := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(strings.TrimSpace(line), "data: ")
			}
		}
	}

	assert.Contains(t, readData(), `"cash_balance":"100"`)

	require.Eventually(t, func() bool { return wallet.subscribers() == 1 }, time.Second, time.Millisecond)
	wallet.publish(snapshot(900, 5))
	assert.Contains(t, readData(), `"applied_sequence":5`)
}

func TestHandleMetricsAndMissingSources(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Trade("buy", "succeeded")

	srv := httptest.NewServer((&Server{Gatherer: reg}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)
	found := false
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "boomkit_trade_executions_total") {
			found = true
		}
	}
	assert.True(t, found)

	for _, path := range []string{"/wallet", "/wallet/history", "/receipts"} {
		r, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		r.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, r.StatusCode, path)
	}
}

func TestHandleRefresh(t *testing.T) {
	wallet := &fakeWallet{}
	srv := httptest.NewServer((&Server{Wallet: wallet}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/wallet/refresh", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/wallet/refresh")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	wallet.mu.Lock()
	defer wallet.mu.Unlock()
	assert.Equal(t, []domain.SyncReason{domain.ReasonUserRefresh}, wallet.syncs)
}
