package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietanh/walletledger/internal/core/domain"
	"github.com/vietanh/walletledger/internal/infra/storage"
	"github.com/vietanh/walletledger/internal/metrics"
)

// maxAdvanceRetries bounds re-checks when a concurrent advance wins the
// guarded write. Each retry re-reads and re-runs the state machine, so the
// outcome is always one of a serialized execution.
const maxAdvanceRetries = 5

// Tracker advances a record's confirmation count and status under the
// lifecycle discipline:
//
//	pending   -> confirmed   (block number and hash required)
//	pending   -> failed      (terminal)
//	confirmed -> confirmed   (equal or deeper confirmations)
//
// Everything else is rejected, and the confirmation count never decreases.
type Tracker struct {
	txs      storage.TransactionRepository
	networks *domain.NetworkRegistry
}

// NewTracker builds a tracker.
func NewTracker(txs storage.TransactionRepository, networks *domain.NetworkRegistry) *Tracker {
	return &Tracker{txs: txs, networks: networks}
}

// AdvanceInput is one confirmation observation. BlockNumber/BlockHash are
// needed only when the record doesn't carry them yet and the transition is
// pending -> confirmed.
type AdvanceInput struct {
	Confirmations uint64
	Status        domain.TxStatus
	BlockNumber   uint64
	BlockHash     string
}

// Advance applies the observation to the record with the given hash. The
// monotonicity check and the write are atomic together: two racing
// advances serialize, the loser re-evaluates against the winner's state.
func (t *Tracker) Advance(ctx context.Context, rawHash string, in AdvanceInput) (*domain.TransactionRecord, error) {
	hash, err := domain.NormalizeTxHash(rawHash)
	if err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, &domain.ValidationError{Code: domain.ErrInvalidStatus, Field: "status", Value: string(in.Status)}
	}

	for attempt := 0; ; attempt++ {
		record, err := t.txs.GetByHash(ctx, hash)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &domain.NotFoundError{Kind: "transaction", Key: hash}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load transaction: %w", err)
		}

		upd, err := t.check(record, in)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		err = t.txs.UpdateConfirmation(ctx, hash, record.Status, upd)
		metrics.StoreOpDuration.WithLabelValues("tx_update_confirmation").Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.ConfirmationAdvances.WithLabelValues(string(record.Network)).Inc()
			record.Status = upd.Status
			record.Confirmations = upd.Confirmations
			record.BlockNumber = upd.BlockNumber
			record.BlockHash = upd.BlockHash
			return record, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to advance transaction: %w", err)
		}
		// A concurrent advance got there first; re-run the checks
		// against its outcome.
		metrics.RejectedUpdates.WithLabelValues("conflict").Inc()
		if attempt+1 >= maxAdvanceRetries {
			return nil, fmt.Errorf("failed to advance transaction after %d attempts: %w", maxAdvanceRetries, err)
		}
	}
}

// check runs the state machine against the current record and returns the
// update to apply.
func (t *Tracker) check(record *domain.TransactionRecord, in AdvanceInput) (storage.ConfirmationUpdate, error) {
	if in.Confirmations < record.Confirmations {
		metrics.RejectedUpdates.WithLabelValues("out_of_order").Inc()
		return storage.ConfirmationUpdate{}, &domain.OutOfOrderUpdateError{
			Hash:     record.Hash,
			Current:  record.Confirmations,
			Proposed: in.Confirmations,
		}
	}

	legal := false
	switch record.Status {
	case domain.TxStatusPending:
		legal = in.Status == domain.TxStatusConfirmed || in.Status == domain.TxStatusFailed
	case domain.TxStatusConfirmed:
		legal = in.Status == domain.TxStatusConfirmed
	case domain.TxStatusFailed:
		// Terminal.
	}
	if !legal {
		metrics.RejectedUpdates.WithLabelValues("invalid_transition").Inc()
		return storage.ConfirmationUpdate{}, &domain.InvalidTransitionError{
			Hash: record.Hash,
			From: record.Status,
			To:   in.Status,
		}
	}

	blockNumber := record.BlockNumber
	if in.BlockNumber != 0 {
		blockNumber = in.BlockNumber
	}
	blockHash := record.BlockHash
	if in.BlockHash != "" {
		blockHash = in.BlockHash
	}
	if in.Status == domain.TxStatusConfirmed && (blockNumber == 0 || blockHash == "") {
		return storage.ConfirmationUpdate{}, &domain.ValidationError{
			Code:  domain.ErrMissingField,
			Field: "block",
		}
	}

	return storage.ConfirmationUpdate{
		Status:        in.Status,
		Confirmations: in.Confirmations,
		BlockNumber:   blockNumber,
		BlockHash:     blockHash,
	}, nil
}

// IsConfirmed reports whether the record is final: confirmed status and a
// confirmation count at or beyond the network's finality depth.
func (t *Tracker) IsConfirmed(record *domain.TransactionRecord) bool {
	return IsConfirmedAt(record, t.networks.ConfirmationDepth(record.Network))
}

// IsConfirmedAt is IsConfirmed with an explicit depth.
func IsConfirmedAt(record *domain.TransactionRecord, depth uint64) bool {
	return record.Status == domain.TxStatusConfirmed && record.Confirmations >= depth
}
