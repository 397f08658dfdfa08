package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/vietanh/walletledger/internal/core/domain"
	"github.com/vietanh/walletledger/internal/infra/storage"
)

// TxRepo implements storage.TransactionRepository using PostgreSQL. The
// tx_hash primary key carries the at-most-once ingest guarantee; guarded
// UPDATEs carry the advance serialization.
type TxRepo struct {
	db *DB
}

// NewTxRepo creates a new PostgreSQL transaction repository.
func NewTxRepo(db *DB) *TxRepo {
	return &TxRepo{db: db}
}

type txRow struct {
	Hash          string         `db:"tx_hash"`
	BlockNumber   int64          `db:"block_number"`
	BlockHash     string         `db:"block_hash"`
	From          string         `db:"from_address"`
	To            string         `db:"to_address"`
	Value         string         `db:"value"`
	GasUsed       string         `db:"gas_used"`
	GasPrice      string         `db:"gas_price"`
	Nonce         int64          `db:"nonce"`
	Input         string         `db:"input"`
	Network       string         `db:"network"`
	Status        string         `db:"status"`
	Type          string         `db:"tx_type"`
	Confirmations int64          `db:"confirmations"`
	TokenAddress  string         `db:"token_address"`
	TokenSymbol   string         `db:"token_symbol"`
	TokenDecimals int            `db:"token_decimals"`
	NFT           []byte         `db:"nft"`
	Description   string         `db:"meta_description"`
	Tags          pq.StringArray `db:"meta_tags"`
	Category      string         `db:"meta_category"`
	OwnerID       string         `db:"owner_id"`
	Timestamp     time.Time      `db:"ts"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r txRow) toDomain() (*domain.TransactionRecord, error) {
	record := &domain.TransactionRecord{
		Hash:          r.Hash,
		BlockNumber:   uint64(r.BlockNumber),
		BlockHash:     r.BlockHash,
		From:          r.From,
		To:            r.To,
		Value:         r.Value,
		GasUsed:       r.GasUsed,
		GasPrice:      r.GasPrice,
		Nonce:         uint64(r.Nonce),
		Input:         r.Input,
		Network:       domain.Network(r.Network),
		Status:        domain.TxStatus(r.Status),
		Type:          domain.TxType(r.Type),
		Confirmations: uint64(r.Confirmations),
		TokenAddress:  r.TokenAddress,
		TokenSymbol:   r.TokenSymbol,
		TokenDecimals: r.TokenDecimals,
		Metadata: domain.TxMetadata{
			Description: r.Description,
			Tags:        []string(r.Tags),
			Category:    r.Category,
		},
		OwnerID:   r.OwnerID,
		Timestamp: r.Timestamp,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if len(r.NFT) > 0 && string(r.NFT) != "null" {
		record.NFT = &domain.TxNFT{}
		if err := json.Unmarshal(r.NFT, record.NFT); err != nil {
			return nil, fmt.Errorf("failed to decode nft: %w", err)
		}
	}
	return record, nil
}

// Insert creates a record. ON CONFLICT DO NOTHING makes concurrent inserts
// of the same hash resolve to exactly one success; losers see ErrDuplicate
// and the stored record is never overwritten.
func (r *TxRepo) Insert(ctx context.Context, record *domain.TransactionRecord) error {
	nft, err := json.Marshal(record.NFT)
	if err != nil {
		return fmt.Errorf("failed to encode nft: %w", err)
	}

	query := `
		INSERT INTO transactions (
			tx_hash, block_number, block_hash, from_address, to_address,
			value, gas_used, gas_price, nonce, input,
			network, status, tx_type, confirmations,
			token_address, token_symbol, token_decimals, nft,
			meta_description, meta_tags, meta_category,
			owner_id, ts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25
		)
		ON CONFLICT (tx_hash) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		record.Hash, int64(record.BlockNumber), record.BlockHash, record.From, record.To,
		record.Value, record.GasUsed, record.GasPrice, int64(record.Nonce), record.Input,
		string(record.Network), string(record.Status), string(record.Type), int64(record.Confirmations),
		record.TokenAddress, record.TokenSymbol, record.TokenDecimals, nft,
		record.Metadata.Description, pq.StringArray(record.Metadata.Tags), record.Metadata.Category,
		record.OwnerID, record.Timestamp, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return requireRow(res, storage.ErrDuplicate)
}

// GetByHash retrieves a record.
func (r *TxRepo) GetByHash(ctx context.Context, hash string) (*domain.TransactionRecord, error) {
	var row txRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM transactions WHERE tx_hash = $1`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return row.toDomain()
}

// List retrieves records matching the filter, newest first.
func (r *TxRepo) List(ctx context.Context, filter storage.TxFilter) ([]*domain.TransactionRecord, error) {
	query := `SELECT * FROM transactions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.OwnerID != "" {
		query += ` AND owner_id = ` + arg(filter.OwnerID)
	}
	if filter.Address != "" {
		p := arg(filter.Address)
		query += ` AND (from_address = ` + p + ` OR to_address = ` + p + `)`
	}
	if filter.Network != "" {
		query += ` AND network = ` + arg(string(filter.Network))
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Type != "" {
		query += ` AND tx_type = ` + arg(string(filter.Type))
	}
	query += ` ORDER BY ts DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	var rows []txRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	records := make([]*domain.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// UpdateConfirmation applies upd iff the stored status still equals
// fromStatus and the stored count hasn't passed upd.Confirmations. The
// WHERE clause makes guard and write one atomic statement.
func (r *TxRepo) UpdateConfirmation(ctx context.Context, hash string, fromStatus domain.TxStatus, upd storage.ConfirmationUpdate) error {
	query := `
		UPDATE transactions SET
			status = $2, confirmations = $3, block_number = $4, block_hash = $5,
			updated_at = NOW()
		WHERE tx_hash = $1 AND status = $6 AND confirmations <= $3
	`
	res, err := r.db.ExecContext(ctx, query,
		hash, string(upd.Status), int64(upd.Confirmations),
		int64(upd.BlockNumber), upd.BlockHash, string(fromStatus),
	)
	if err != nil {
		return fmt.Errorf("failed to update confirmation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Zero rows: either the record is gone or the guard lost a race.
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE tx_hash = $1)`, hash); err != nil {
		return fmt.Errorf("failed to check transaction: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrVersionConflict
}

// UpdateMetadata replaces only the free-form metadata columns.
func (r *TxRepo) UpdateMetadata(ctx context.Context, hash string, metadata domain.TxMetadata) error {
	query := `
		UPDATE transactions SET
			meta_description = $2, meta_tags = $3, meta_category = $4,
			updated_at = NOW()
		WHERE tx_hash = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		hash, metadata.Description, pq.StringArray(metadata.Tags), metadata.Category)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	return requireRow(res, storage.ErrNotFound)
}

// Delete removes a record.
func (r *TxRepo) Delete(ctx context.Context, hash string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE tx_hash = $1`, hash)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return requireRow(res, storage.ErrNotFound)
}
