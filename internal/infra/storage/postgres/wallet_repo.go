package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/vietanh/walletledger/internal/core/domain"
	"github.com/vietanh/walletledger/internal/infra/storage"
)

// pgUniqueViolation is the PostgreSQL error code for unique-key conflicts.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// WalletRepo implements storage.WalletRepository using PostgreSQL.
// Balance-sheet token/NFT sets live in jsonb columns; the merge logic
// stays in Go and writes go through a version-guarded upsert.
type WalletRepo struct {
	db *DB
}

// NewWalletRepo creates a new PostgreSQL wallet repository.
func NewWalletRepo(db *DB) *WalletRepo {
	return &WalletRepo{db: db}
}

type walletRow struct {
	ID               string         `db:"id"`
	OwnerID          string         `db:"owner_id"`
	Address          string         `db:"address"`
	Label            string         `db:"label"`
	IsActive         bool           `db:"is_active"`
	TransactionCount int64          `db:"transaction_count"`
	FirstTxAt        *time.Time     `db:"first_tx_at"`
	LastTxAt         *time.Time     `db:"last_tx_at"`
	Tags             pq.StringArray `db:"tags"`
	Notes            string         `db:"notes"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r walletRow) toDomain() *domain.Wallet {
	return &domain.Wallet{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		Address:          r.Address,
		Label:            r.Label,
		IsActive:         r.IsActive,
		TransactionCount: r.TransactionCount,
		FirstTxAt:        r.FirstTxAt,
		LastTxAt:         r.LastTxAt,
		Tags:             []string(r.Tags),
		Notes:            r.Notes,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type sheetRow struct {
	WalletID      string    `db:"wallet_id"`
	Network       string    `db:"network"`
	NativeBalance string    `db:"native_balance"`
	Tokens        []byte    `db:"tokens"`
	NFTs          []byte    `db:"nfts"`
	Version       int64     `db:"version"`
	LastUpdated   time.Time `db:"last_updated"`
}

func (r sheetRow) toDomain() (*domain.BalanceSheet, error) {
	sheet := &domain.BalanceSheet{
		Network:       domain.Network(r.Network),
		NativeBalance: r.NativeBalance,
		Version:       r.Version,
		LastUpdated:   r.LastUpdated,
	}
	if len(r.Tokens) > 0 {
		if err := json.Unmarshal(r.Tokens, &sheet.Tokens); err != nil {
			return nil, fmt.Errorf("failed to decode tokens: %w", err)
		}
	}
	if len(r.NFTs) > 0 {
		if err := json.Unmarshal(r.NFTs, &sheet.NFTs); err != nil {
			return nil, fmt.Errorf("failed to decode nfts: %w", err)
		}
	}
	return sheet, nil
}

// Create inserts a wallet with no sheets.
func (r *WalletRepo) Create(ctx context.Context, wallet *domain.Wallet) error {
	query := `
		INSERT INTO wallets (
			id, owner_id, address, label, is_active, transaction_count,
			first_tx_at, last_tx_at, tags, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		wallet.ID, wallet.OwnerID, wallet.Address, wallet.Label, wallet.IsActive,
		wallet.TransactionCount, wallet.FirstTxAt, wallet.LastTxAt,
		pq.StringArray(wallet.Tags), wallet.Notes, wallet.CreatedAt, wallet.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// GetByOwnerAndAddress retrieves one wallet with its sheets.
func (r *WalletRepo) GetByOwnerAndAddress(ctx context.Context, ownerID, address string) (*domain.Wallet, error) {
	return r.getOne(ctx, `SELECT * FROM wallets WHERE owner_id = $1 AND address = $2`, ownerID, address)
}

// GetByID retrieves one wallet with its sheets.
func (r *WalletRepo) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	return r.getOne(ctx, `SELECT * FROM wallets WHERE id = $1`, id)
}

func (r *WalletRepo) getOne(ctx context.Context, query string, args ...any) (*domain.Wallet, error) {
	var row walletRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	wallet := row.toDomain()
	if err := r.loadSheets(ctx, wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

func (r *WalletRepo) loadSheets(ctx context.Context, wallet *domain.Wallet) error {
	var rows []sheetRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM balance_sheets WHERE wallet_id = $1 ORDER BY network`, wallet.ID)
	if err != nil {
		return fmt.Errorf("failed to load sheets: %w", err)
	}
	for _, sr := range rows {
		sheet, err := sr.toDomain()
		if err != nil {
			return err
		}
		wallet.Sheets = append(wallet.Sheets, sheet)
	}
	return nil
}

// ListByOwner retrieves all wallets for an owner, sheets included.
func (r *WalletRepo) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Wallet, error) {
	var rows []walletRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM wallets WHERE owner_id = $1 ORDER BY address`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	var wallets []*domain.Wallet
	for _, row := range rows {
		wallet := row.toDomain()
		if err := r.loadSheets(ctx, wallet); err != nil {
			return nil, err
		}
		wallets = append(wallets, wallet)
	}
	return wallets, nil
}

// Update writes the caller-editable wallet fields. Sheets and the
// rollup counters are untouched; rollups go through IncrementTxRollup so
// a stale read here can't clobber a concurrent ingest.
func (r *WalletRepo) Update(ctx context.Context, wallet *domain.Wallet) error {
	query := `
		UPDATE wallets SET
			label = $2, is_active = $3, tags = $4, notes = $5,
			updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		wallet.ID, wallet.Label, wallet.IsActive,
		pq.StringArray(wallet.Tags), wallet.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	return requireRow(res, storage.ErrNotFound)
}

// IncrementTxRollup bumps the transaction counter and widens the
// first/last transaction window in one statement, so concurrent ingests
// can't lose counts to a read-modify-write race.
func (r *WalletRepo) IncrementTxRollup(ctx context.Context, walletID string, ts time.Time) error {
	query := `
		UPDATE wallets SET
			transaction_count = transaction_count + 1,
			first_tx_at = LEAST(COALESCE(first_tx_at, $2), $2),
			last_tx_at = GREATEST(COALESCE(last_tx_at, $2), $2),
			updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, walletID, ts)
	if err != nil {
		return fmt.Errorf("failed to increment rollup: %w", err)
	}
	return requireRow(res, storage.ErrNotFound)
}

// UpsertSheet writes one balance sheet guarded by the version the caller
// read. With expectedVersion 0 the sheet must not exist yet; otherwise the
// stored version must still match. Either way a lost race surfaces as
// ErrVersionConflict instead of a silent clobber.
func (r *WalletRepo) UpsertSheet(ctx context.Context, walletID string, sheet *domain.BalanceSheet, expectedVersion int64) error {
	tokens, err := json.Marshal(sheet.Tokens)
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}
	nfts, err := json.Marshal(sheet.NFTs)
	if err != nil {
		return fmt.Errorf("failed to encode nfts: %w", err)
	}

	if expectedVersion == 0 {
		query := `
			INSERT INTO balance_sheets (
				wallet_id, network, native_balance, tokens, nfts, version, last_updated
			) VALUES ($1, $2, $3, $4, $5, 1, $6)
			ON CONFLICT (wallet_id, network) DO NOTHING
		`
		res, err := r.db.ExecContext(ctx, query,
			walletID, string(sheet.Network), sheet.NativeBalance, tokens, nfts, sheet.LastUpdated)
		if err != nil {
			return fmt.Errorf("failed to insert sheet: %w", err)
		}
		return requireRow(res, storage.ErrVersionConflict)
	}

	query := `
		UPDATE balance_sheets SET
			native_balance = $3, tokens = $4, nfts = $5,
			version = version + 1, last_updated = $6
		WHERE wallet_id = $1 AND network = $2 AND version = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		walletID, string(sheet.Network), sheet.NativeBalance, tokens, nfts,
		sheet.LastUpdated, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update sheet: %w", err)
	}
	return requireRow(res, storage.ErrVersionConflict)
}

// Delete removes a wallet; balance_sheets rows cascade.
func (r *WalletRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM wallets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	return requireRow(res, storage.ErrNotFound)
}

// requireRow maps a zero-row result to the given sentinel.
func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
