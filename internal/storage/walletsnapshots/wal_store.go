// Package walletsnapshots persists applied wallet snapshots so the last known
// balance can be shown immediately on the next start.
package walletsnapshots

import (
	"github.com/pkg/errors"

	"github.com/vadiminshakov/boomkit/internal/domain"
	"github.com/vadiminshakov/boomkit/internal/storage/wallog"
)

const (
	defaultSnapshotDir = "./wal/wallet"
	snapshotKeyPrefix  = "wallet_snapshot_"
)

// WALStore persists wallet snapshots in a WAL for recovery/streaming purposes.
type WALStore struct {
	log *wallog.Log[domain.WalletSnapshot]
}

// NewWALStore initializes a WAL-backed snapshot store under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultSnapshotDir
	}

	log, err := wallog.Open[domain.WalletSnapshot](dir, "snapshot_", snapshotKeyPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "init wallet snapshot WAL")
	}

	return &WALStore{log: log}, nil
}

// Save writes the snapshot to WAL.
func (s *WALStore) Save(snapshot domain.WalletSnapshot) error {
	if s == nil {
		return errors.New("wallet snapshot store is not initialized")
	}
	_, err := s.log.Append(snapshot.Reason.String(), snapshot)
	return err
}

// SnapshotsAfter returns all wallet snapshots written after the provided WAL index.
func (s *WALStore) SnapshotsAfter(index uint64) ([]domain.WalletSnapshotRecord, error) {
	if s == nil {
		return nil, errors.New("wallet snapshot store is not initialized")
	}

	records, err := s.log.After(index)
	if err != nil {
		return nil, errors.Wrap(err, "read wallet snapshots")
	}

	out := make([]domain.WalletSnapshotRecord, 0, len(records))
	for _, r := range records {
		out = append(out, domain.WalletSnapshotRecord{Index: r.Index, Snapshot: r.Value})
	}
	return out, nil
}

// Latest returns the most recent persisted snapshot.
func (s *WALStore) Latest() (domain.WalletSnapshot, bool, error) {
	if s == nil {
		return domain.WalletSnapshot{}, false, errors.New("wallet snapshot store is not initialized")
	}

	record, ok, err := s.log.Last()
	if err != nil {
		return domain.WalletSnapshot{}, false, errors.Wrap(err, "read latest wallet snapshot")
	}
	return record.Value, ok, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil {
		return 0
	}
	return s.log.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil {
		return errors.New("wallet snapshot store is not initialized")
	}
	return s.log.Close()
}
