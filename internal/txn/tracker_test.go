package txn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vietanh/walletledger/internal/core/domain"
	"github.com/vietanh/walletledger/internal/infra/storage/memory"
)

func newTestTracker(t *testing.T) (*Tracker, *Recorder) {
	t.Helper()
	store := memory.NewMemoryStorage()
	networks := domain.NewNetworkRegistry(domain.DefaultNetworks())
	return NewTracker(memory.NewTxRepo(store), networks),
		NewRecorder(memory.NewTxRepo(store), nil, networks)
}

func ingestPending(t *testing.T, r *Recorder) *domain.TransactionRecord {
	t.Helper()
	record, err := r.Ingest(context.Background(), testCandidate())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return record
}

func TestAdvancePendingToConfirmed(t *testing.T) {
	tracker, recorder := newTestTracker(t)
	ctx := context.Background()
	record := ingestPending(t, recorder)

	got, err := tracker.Advance(ctx, record.Hash, AdvanceInput{
		Confirmations: 5,
		Status:        domain.TxStatusConfirmed,
		BlockNumber:   19000001,
		BlockHash:     "0x" + strings.Repeat("11", 32),
	})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got.Status != domain.TxStatusConfirmed || got.Confirmations != 5 {
		t.Errorf("advance result: %+v", got)
	}
	if got.BlockNumber != 19000001 {
		t.Errorf("block number not applied: %d", got.BlockNumber)
	}
}

func TestAdvanceRequiresBlockForConfirmation(t *testing.T) {
	tracker, recorder := newTestTracker(t)
	ctx := context.Background()
	record := ingestPending(t, recorder)

	// Neither the record nor the call carries block data.
	_, err := tracker.Advance(ctx, record.Hash, AdvanceInput{Confirmations: 1, Status: domain.TxStatusConfirmed})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Code != domain.ErrMissingField {
		t.Fatalf("expected missing_field, got %v", err)
	}
}

func TestAdvanceRejectsConfirmationRegression(t *testing.T) {
	tracker, recorder := newTestTracker(t)
	ctx := context.Background()
	record := ingestPending(t, recorder)

	if _, err := tracker.Advance(ctx, record.Hash, AdvanceInput{
		Confirmations: 5, Status: domain.TxStatusConfirmed,
		BlockNumber: 100, BlockHash: "0x" + strings.Repeat("11", 32),
	}); err != nil {
		t.Fatalf("first advance: %v", err)
	}

	_, err := tracker.Advance(ctx, record.Hash, AdvanceInput{Confirmations: 3, Status: domain.TxStatusConfirmed})
	var ooo *domain.OutOfOrderUpdateError
	if !errors.As(err, &ooo) {
		t.Fatalf("expected OutOfOrderUpdateError, got %v", err)
	}
	if ooo.Current != 5 || ooo.Proposed != 3 {
		t.Errorf("error detail: %+v", ooo)
	}

	// Stored state unchanged.
	stored, err := recorder.Get(ctx, record.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Confirmations != 5 {
		t.Errorf("confirmations = %d, want 5", stored.Confirmations)
	}
}

func TestAdvanceTransitionMatrix(t *testing.T) {
	block := AdvanceInput{BlockNumber: 100, BlockHash: "0x" + strings.Repeat("11", 32)}

	tests := []struct {
		name    string
		prepare []AdvanceInput // applied in order to reach the start state
		input   AdvanceInput
		wantErr bool
	}{
		{
			name:  "pending to confirmed",
			input: AdvanceInput{Confirmations: 1, Status: domain.TxStatusConfirmed, BlockNumber: block.BlockNumber, BlockHash: block.BlockHash},
		},
		{
			name:  "pending to failed",
			input: AdvanceInput{Confirmations: 0, Status: domain.TxStatusFailed},
		},
		{
			name:    "pending to pending",
			input:   AdvanceInput{Confirmations: 0, Status: domain.TxStatusPending},
			wantErr: true,
		},
		{
			name: "confirmed to confirmed deepens",
			prepare: []AdvanceInput{
				{Confirmations: 1, Status: domain.TxStatusConfirmed, BlockNumber: block.BlockNumber, BlockHash: block.BlockHash},
			},
			input: AdvanceInput{Confirmations: 12, Status: domain.TxStatusConfirmed},
		},
		{
			name: "confirmed to failed",
			prepare: []AdvanceInput{
				{Confirmations: 1, Status: domain.TxStatusConfirmed, BlockNumber: block.BlockNumber, BlockHash: block.BlockHash},
			},
			input:   AdvanceInput{Confirmations: 2, Status: domain.TxStatusFailed},
			wantErr: true,
		},
		{
			name: "confirmed to pending",
			prepare: []AdvanceInput{
				{Confirmations: 1, Status: domain.TxStatusConfirmed, BlockNumber: block.BlockNumber, BlockHash: block.BlockHash},
			},
			input:   AdvanceInput{Confirmations: 2, Status: domain.TxStatusPending},
			wantErr: true,
		},
		{
			name: "failed is terminal",
			prepare: []AdvanceInput{
				{Confirmations: 0, Status: domain.TxStatusFailed},
			},
			input:   AdvanceInput{Confirmations: 1, Status: domain.TxStatusConfirmed, BlockNumber: block.BlockNumber, BlockHash: block.BlockHash},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, recorder := newTestTracker(t)
			ctx := context.Background()
			record := ingestPending(t, recorder)
			for _, step := range tt.prepare {
				if _, err := tracker.Advance(ctx, record.Hash, step); err != nil {
					t.Fatalf("prepare step: %v", err)
				}
			}

			_, err := tracker.Advance(ctx, record.Hash, tt.input)
			if tt.wantErr {
				var inv *domain.InvalidTransitionError
				if !errors.As(err, &inv) {
					t.Fatalf("expected InvalidTransitionError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Advance: %v", err)
			}
		})
	}
}

func TestAdvanceUnknownHash(t *testing.T) {
	tracker, _ := newTestTracker(t)
	_, err := tracker.Advance(context.Background(), "0x"+strings.Repeat("ff", 32),
		AdvanceInput{Confirmations: 1, Status: domain.TxStatusFailed})
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestAdvanceSerializesConcurrentUpdates(t *testing.T) {
	tracker, recorder := newTestTracker(t)
	ctx := context.Background()
	record := ingestPending(t, recorder)

	// Racing advances with increasing depths: every one is individually
	// legal and the final state must be the maximum depth, not a stale
	// value that snuck past the check.
	const n = 8
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(depth uint64) {
			defer wg.Done()
			_, _ = tracker.Advance(ctx, record.Hash, AdvanceInput{
				Confirmations: depth,
				Status:        domain.TxStatusConfirmed,
				BlockNumber:   100,
				BlockHash:     "0x" + strings.Repeat("11", 32),
			})
		}(uint64(i))
	}
	wg.Wait()

	stored, err := recorder.Get(ctx, record.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != domain.TxStatusConfirmed {
		t.Errorf("status = %q", stored.Status)
	}
	if stored.Confirmations != n {
		t.Errorf("confirmations = %d, want %d", stored.Confirmations, n)
	}
}

func TestIsConfirmedThreshold(t *testing.T) {
	tracker, _ := newTestTracker(t)

	tests := []struct {
		status        domain.TxStatus
		confirmations uint64
		want          bool
	}{
		{domain.TxStatusConfirmed, 11, false},
		{domain.TxStatusConfirmed, 12, true},
		{domain.TxStatusConfirmed, 100, true},
		{domain.TxStatusPending, 20, false},
		{domain.TxStatusFailed, 20, false},
	}
	for _, tt := range tests {
		record := &domain.TransactionRecord{
			Network:       domain.NetworkEthereum,
			Status:        tt.status,
			Confirmations: tt.confirmations,
		}
		if got := tracker.IsConfirmed(record); got != tt.want {
			t.Errorf("IsConfirmed(%s, %d) = %v, want %v", tt.status, tt.confirmations, got, tt.want)
		}
	}
}

func TestIsConfirmedPerNetworkDepth(t *testing.T) {
	networks := domain.NewNetworkRegistry([]domain.NetworkInfo{
		{Network: domain.NetworkPolygon, ChainID: 137, NativeSymbol: "MATIC", ConfirmationDepth: 64},
	})
	store := memory.NewMemoryStorage()
	tracker := NewTracker(memory.NewTxRepo(store), networks)

	record := &domain.TransactionRecord{
		Network:       domain.NetworkPolygon,
		Status:        domain.TxStatusConfirmed,
		Confirmations: 20,
	}
	if tracker.IsConfirmed(record) {
		t.Error("20 confirmations should not be final at depth 64")
	}
	record.Confirmations = 64
	if !tracker.IsConfirmed(record) {
		t.Error("64 confirmations should be final at depth 64")
	}
}
