package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietanh/walletledger/internal/core/domain"
)

var (
	// ErrNotFound is returned when the targeted record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert hits a unique key. For
	// transaction ingestion this is the at-most-once guarantee: callers
	// map it to a domain AlreadyExistsError, never to an overwrite.
	ErrDuplicate = errors.New("duplicate key")

	// ErrVersionConflict is returned when a guarded update lost a race:
	// the sheet version or the confirmation guard no longer matches.
	// Callers re-read and retry or surface the conflict.
	ErrVersionConflict = errors.New("version conflict")
)

// WalletRepository persists wallet aggregates and their balance sheets.
type WalletRepository interface {
	// Create inserts a wallet with no sheets. Returns ErrDuplicate if a
	// wallet for (owner, address) already exists.
	Create(ctx context.Context, wallet *domain.Wallet) error

	// GetByOwnerAndAddress retrieves one wallet, sheets included.
	GetByOwnerAndAddress(ctx context.Context, ownerID, address string) (*domain.Wallet, error)

	// GetByID retrieves one wallet, sheets included.
	GetByID(ctx context.Context, id string) (*domain.Wallet, error)

	// ListByOwner retrieves all wallets for an owner.
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Wallet, error)

	// Update writes wallet-level fields (label, tags, notes, active flag).
	// It never touches sheets.
	Update(ctx context.Context, wallet *domain.Wallet) error

	// IncrementTxRollup atomically bumps the wallet's transaction counter
	// and widens its first/last transaction window to include ts. The
	// increment and the read it depends on are one operation, so
	// concurrent ingests never lose counts.
	IncrementTxRollup(ctx context.Context, walletID string, ts time.Time) error

	// UpsertSheet writes one balance sheet for the wallet. expectedVersion
	// is the version the caller read (0 for a sheet that doesn't exist
	// yet); the write must fail with ErrVersionConflict when the stored
	// version differs, so concurrent merges to the same sheet can't
	// silently clobber each other. On success the stored version is
	// expectedVersion+1.
	UpsertSheet(ctx context.Context, walletID string, sheet *domain.BalanceSheet, expectedVersion int64) error

	// Delete removes a wallet and its sheets.
	Delete(ctx context.Context, id string) error
}

// TxFilter narrows List results. Zero values mean "no constraint".
type TxFilter struct {
	OwnerID string
	Address string // matches from or to
	Network domain.Network
	Status  domain.TxStatus
	Type    domain.TxType
	Limit   int
	Offset  int
}

// ConfirmationUpdate is the atomic write applied by a successful advance.
type ConfirmationUpdate struct {
	Status        domain.TxStatus
	Confirmations uint64
	BlockNumber   uint64
	BlockHash     string
}

// TransactionRepository persists transaction records keyed by hash.
type TransactionRepository interface {
	// Insert creates a record. Must behave as an atomic insert-if-absent
	// against the hash unique key: concurrent inserts of the same hash
	// yield exactly one success and ErrDuplicate everywhere else.
	Insert(ctx context.Context, record *domain.TransactionRecord) error

	// GetByHash retrieves a record, ErrNotFound if absent.
	GetByHash(ctx context.Context, hash string) (*domain.TransactionRecord, error)

	// List retrieves records matching the filter, newest first.
	List(ctx context.Context, filter TxFilter) ([]*domain.TransactionRecord, error)

	// UpdateConfirmation applies upd to the record iff its stored status
	// still equals fromStatus and its stored confirmation count is still
	// <= upd.Confirmations. The guard and the write are atomic together;
	// ErrVersionConflict when the guard fails, ErrNotFound when the hash
	// is unknown.
	UpdateConfirmation(ctx context.Context, hash string, fromStatus domain.TxStatus, upd ConfirmationUpdate) error

	// UpdateMetadata replaces only the free-form metadata fields.
	UpdateMetadata(ctx context.Context, hash string, metadata domain.TxMetadata) error

	// Delete removes a record, ErrNotFound if absent.
	Delete(ctx context.Context, hash string) error
}
