// Package txn records observed transactions and drives their confirmation
// lifecycle. Records are unique by hash; ingestion is at-most-once, never
// an upsert.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietanh/walletledger/internal/core/domain"
	"github.com/vietanh/walletledger/internal/core/value"
	"github.com/vietanh/walletledger/internal/infra/storage"
	"github.com/vietanh/walletledger/internal/metrics"
)

// Recorder ingests transaction observations.
type Recorder struct {
	txs      storage.TransactionRepository
	wallets  storage.WalletRepository // nil disables wallet rollups
	networks *domain.NetworkRegistry
}

// NewRecorder builds a recorder. wallets may be nil when rollup maintenance
// is not wanted.
func NewRecorder(txs storage.TransactionRepository, wallets storage.WalletRepository, networks *domain.NetworkRegistry) *Recorder {
	return &Recorder{txs: txs, wallets: wallets, networks: networks}
}

// Candidate is a transaction observation as supplied by the chain data
// source. Hash and addresses may arrive in any case.
type Candidate struct {
	Hash        string
	BlockNumber uint64
	BlockHash   string
	From        string
	To          string
	Value       string
	GasUsed     string
	GasPrice    string
	Nonce       uint64
	Input       string

	Network domain.Network
	Status  domain.TxStatus // defaults to pending
	Type    domain.TxType   // defaults to transfer

	TokenAddress  string
	TokenSymbol   string
	TokenDecimals int
	NFT           *domain.TxNFT

	Metadata domain.TxMetadata

	OwnerID   string
	Timestamp time.Time
}

// Ingest validates and stores a candidate. A record with the same hash
// already existing fails with AlreadyExistsError and leaves the stored
// record untouched: concurrent duplicate submissions resolve to exactly
// one success on the repository's unique key.
func (r *Recorder) Ingest(ctx context.Context, c Candidate) (*domain.TransactionRecord, error) {
	record, err := r.validate(c)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = r.txs.Insert(ctx, record)
	metrics.StoreOpDuration.WithLabelValues("tx_insert").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			metrics.TxDuplicates.WithLabelValues(string(record.Network)).Inc()
			return nil, &domain.AlreadyExistsError{Hash: record.Hash}
		}
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	metrics.TxIngests.WithLabelValues(string(record.Network), string(record.Status)).Inc()

	r.rollupWallets(ctx, record)
	return record, nil
}

func (r *Recorder) validate(c Candidate) (*domain.TransactionRecord, error) {
	switch {
	case c.Hash == "":
		return nil, &domain.ValidationError{Code: domain.ErrMissingField, Field: "hash"}
	case c.From == "":
		return nil, &domain.ValidationError{Code: domain.ErrMissingField, Field: "from"}
	case c.To == "":
		return nil, &domain.ValidationError{Code: domain.ErrMissingField, Field: "to"}
	case c.Value == "":
		return nil, &domain.ValidationError{Code: domain.ErrMissingField, Field: "value"}
	case c.Network == "":
		return nil, &domain.ValidationError{Code: domain.ErrMissingField, Field: "network"}
	case c.Timestamp.IsZero():
		return nil, &domain.ValidationError{Code: domain.ErrMissingField, Field: "timestamp"}
	}
	if !r.networks.Supported(c.Network) {
		return nil, &domain.ValidationError{Code: domain.ErrUnknownNetwork, Value: string(c.Network)}
	}

	hash, err := domain.NormalizeTxHash(c.Hash)
	if err != nil {
		return nil, err
	}
	from, err := domain.NormalizeAddress(c.From)
	if err != nil {
		return nil, err
	}
	to, err := domain.NormalizeAddress(c.To)
	if err != nil {
		return nil, err
	}
	if err := value.ValidateBaseAmount(c.Value); err != nil {
		return nil, err
	}
	for _, gas := range []string{c.GasUsed, c.GasPrice} {
		if gas == "" {
			continue
		}
		if err := value.ValidateBaseAmount(gas); err != nil {
			return nil, err
		}
	}

	status := c.Status
	if status == "" {
		status = domain.TxStatusPending
	}
	if !status.Valid() {
		return nil, &domain.ValidationError{Code: domain.ErrInvalidStatus, Field: "status", Value: string(c.Status)}
	}
	txType := c.Type
	if txType == "" {
		txType = domain.TxTypeTransfer
	}
	if !txType.Valid() {
		return nil, &domain.ValidationError{Code: domain.ErrInvalidType, Field: "type", Value: string(c.Type)}
	}

	tokenAddress := ""
	if c.TokenAddress != "" {
		tokenAddress, err = domain.NormalizeAddress(c.TokenAddress)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	return &domain.TransactionRecord{
		Hash:          hash,
		BlockNumber:   c.BlockNumber,
		BlockHash:     c.BlockHash,
		From:          from,
		To:            to,
		Value:         c.Value,
		GasUsed:       c.GasUsed,
		GasPrice:      c.GasPrice,
		Nonce:         c.Nonce,
		Input:         c.Input,
		Network:       c.Network,
		Status:        status,
		Type:          txType,
		Confirmations: 0,
		TokenAddress:  tokenAddress,
		TokenSymbol:   c.TokenSymbol,
		TokenDecimals: c.TokenDecimals,
		NFT:           c.NFT,
		Metadata:      c.Metadata,
		OwnerID:       c.OwnerID,
		Timestamp:     c.Timestamp.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// rollupWallets bumps transaction counters on the owner's tracked wallets
// matching the record's endpoints. The increment is atomic at the
// repository so concurrent ingests never lose counts. Best effort: the
// record itself is already committed, a rollup failure only logs.
func (r *Recorder) rollupWallets(ctx context.Context, record *domain.TransactionRecord) {
	if r.wallets == nil || record.OwnerID == "" {
		return
	}
	seen := map[string]bool{}
	for _, address := range []string{record.From, record.To} {
		if seen[address] {
			continue
		}
		seen[address] = true

		wallet, err := r.wallets.GetByOwnerAndAddress(ctx, record.OwnerID, address)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			slog.Warn("wallet rollup lookup failed", "address", address, "error", err)
			continue
		}
		if err := r.wallets.IncrementTxRollup(ctx, wallet.ID, record.Timestamp); err != nil {
			slog.Warn("wallet rollup update failed", "address", address, "error", err)
		}
	}
}

// Get retrieves a record by hash.
func (r *Recorder) Get(ctx context.Context, rawHash string) (*domain.TransactionRecord, error) {
	hash, err := domain.NormalizeTxHash(rawHash)
	if err != nil {
		return nil, err
	}
	record, err := r.txs.GetByHash(ctx, hash)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &domain.NotFoundError{Kind: "transaction", Key: hash}
	}
	return record, err
}

// List retrieves records matching the filter, newest first.
func (r *Recorder) List(ctx context.Context, filter storage.TxFilter) ([]*domain.TransactionRecord, error) {
	if filter.Address != "" {
		address, err := domain.NormalizeAddress(filter.Address)
		if err != nil {
			return nil, err
		}
		filter.Address = address
	}
	if filter.Network != "" && !r.networks.Supported(filter.Network) {
		return nil, &domain.ValidationError{Code: domain.ErrUnknownNetwork, Value: string(filter.Network)}
	}
	return r.txs.List(ctx, filter)
}

// UpdateMetadata replaces the free-form description/tags/category of an
// existing record. Consensus-relevant fields are never touched.
func (r *Recorder) UpdateMetadata(ctx context.Context, rawHash string, metadata domain.TxMetadata) (*domain.TransactionRecord, error) {
	hash, err := domain.NormalizeTxHash(rawHash)
	if err != nil {
		return nil, err
	}
	if err := r.txs.UpdateMetadata(ctx, hash, metadata); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &domain.NotFoundError{Kind: "transaction", Key: hash}
		}
		return nil, fmt.Errorf("failed to update metadata: %w", err)
	}
	return r.txs.GetByHash(ctx, hash)
}

// Remove deletes a record. No cascading effects on wallets or sheets.
func (r *Recorder) Remove(ctx context.Context, rawHash string) error {
	hash, err := domain.NormalizeTxHash(rawHash)
	if err != nil {
		return err
	}
	if err := r.txs.Delete(ctx, hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &domain.NotFoundError{Kind: "transaction", Key: hash}
		}
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}
