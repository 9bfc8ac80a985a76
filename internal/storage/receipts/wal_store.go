// Package receipts journals every trade receipt returned by the server.
package receipts

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/boomkit/internal/domain"
	"github.com/vadiminshakov/boomkit/internal/storage/wallog"
)

const (
	defaultReceiptDir = "./wal/receipts"
	receiptKeyPrefix  = "trade_receipt_"
)

// WALStore append-only receipt journal.
type WALStore struct {
	log *wallog.Log[domain.TradeReceipt]
}

// NewWALStore initializes the journal under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultReceiptDir
	}

	log, err := wallog.Open[domain.TradeReceipt](dir, "receipt_", receiptKeyPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "init receipt WAL")
	}

	return &WALStore{log: log}, nil
}

// Record appends a receipt. Receipts without a server reference are keyed by a local id.
func (s *WALStore) Record(receipt domain.TradeReceipt) error {
	if s == nil {
		return errors.New("receipt store is not initialized")
	}

	key := receipt.Reference
	if key == "" {
		key = "local-" + uuid.NewString()
	}
	if _, err := s.log.Append(key, receipt); err != nil {
		return errors.Wrapf(err, "journal receipt %s", key)
	}
	return nil
}

// ReceiptsAfter returns receipts journaled after index.
func (s *WALStore) ReceiptsAfter(index uint64) ([]wallog.Record[domain.TradeReceipt], error) {
	if s == nil {
		return nil, errors.New("receipt store is not initialized")
	}
	return s.log.After(index)
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil {
		return errors.New("receipt store is not initialized")
	}
	return s.log.Close()
}
