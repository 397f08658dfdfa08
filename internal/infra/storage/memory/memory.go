package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietanh/walletledger/internal/core/domain"
	"github.com/vietanh/walletledger/internal/infra/storage"
)

// MemoryStorage backs the repositories with mutex-guarded maps. It honors
// the same race-safety contract as the PostgreSQL implementation (unique
// keys, guarded updates), which makes it usable both for tests and for
// running without a database.
type MemoryStorage struct {
	wallets    map[string]*domain.Wallet // id -> wallet
	walletKeys map[string]string         // owner|address -> id
	txs        map[string]*domain.TransactionRecord
	mu         sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		wallets:    make(map[string]*domain.Wallet),
		walletKeys: make(map[string]string),
		txs:        make(map[string]*domain.TransactionRecord),
	}
}

func walletKey(ownerID, address string) string {
	return ownerID + "|" + address
}

// -----------------------------------------------------------------------------
// Wallet Repository
// -----------------------------------------------------------------------------

type WalletRepo struct {
	store *MemoryStorage
}

func NewWalletRepo(store *MemoryStorage) *WalletRepo {
	return &WalletRepo{store: store}
}

func (r *WalletRepo) Create(ctx context.Context, wallet *domain.Wallet) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := walletKey(wallet.OwnerID, wallet.Address)
	if _, exists := r.store.walletKeys[key]; exists {
		return storage.ErrDuplicate
	}
	r.store.walletKeys[key] = wallet.ID
	r.store.wallets[wallet.ID] = cloneWallet(wallet)
	return nil
}

func (r *WalletRepo) GetByOwnerAndAddress(ctx context.Context, ownerID, address string) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.walletKeys[walletKey(ownerID, address)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneWallet(r.store.wallets[id]), nil
}

func (r *WalletRepo) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	w, ok := r.store.wallets[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneWallet(w), nil
}

func (r *WalletRepo) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Wallet
	for _, w := range r.store.wallets {
		if w.OwnerID == ownerID {
			out = append(out, cloneWallet(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (r *WalletRepo) Update(ctx context.Context, wallet *domain.Wallet) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.wallets[wallet.ID]
	if !ok {
		return storage.ErrNotFound
	}
	stored.Label = wallet.Label
	stored.IsActive = wallet.IsActive
	stored.Tags = append([]string(nil), wallet.Tags...)
	stored.Notes = wallet.Notes
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *WalletRepo) IncrementTxRollup(ctx context.Context, walletID string, ts time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.wallets[walletID]
	if !ok {
		return storage.ErrNotFound
	}
	stored.TransactionCount++
	if stored.FirstTxAt == nil || ts.Before(*stored.FirstTxAt) {
		stored.FirstTxAt = copyTime(&ts)
	}
	if stored.LastTxAt == nil || ts.After(*stored.LastTxAt) {
		stored.LastTxAt = copyTime(&ts)
	}
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *WalletRepo) UpsertSheet(ctx context.Context, walletID string, sheet *domain.BalanceSheet, expectedVersion int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.wallets[walletID]
	if !ok {
		return storage.ErrNotFound
	}

	existing := stored.Sheet(sheet.Network)
	var current int64
	if existing != nil {
		current = existing.Version
	}
	if current != expectedVersion {
		return storage.ErrVersionConflict
	}

	next := cloneSheet(sheet)
	next.Version = expectedVersion + 1
	if existing != nil {
		for i, s := range stored.Sheets {
			if s.Network == sheet.Network {
				stored.Sheets[i] = next
				break
			}
		}
	} else {
		stored.Sheets = append(stored.Sheets, next)
	}
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *WalletRepo) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	w, ok := r.store.wallets[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(r.store.walletKeys, walletKey(w.OwnerID, w.Address))
	delete(r.store.wallets, id)
	return nil
}

// -----------------------------------------------------------------------------
// Transaction Repository
// -----------------------------------------------------------------------------

type TxRepo struct {
	store *MemoryStorage
}

func NewTxRepo(store *MemoryStorage) *TxRepo {
	return &TxRepo{store: store}
}

func (r *TxRepo) Insert(ctx context.Context, record *domain.TransactionRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.txs[record.Hash]; exists {
		return storage.ErrDuplicate
	}
	r.store.txs[record.Hash] = cloneTx(record)
	return nil
}

func (r *TxRepo) GetByHash(ctx context.Context, hash string) (*domain.TransactionRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	tx, ok := r.store.txs[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneTx(tx), nil
}

func (r *TxRepo) List(ctx context.Context, filter storage.TxFilter) ([]*domain.TransactionRecord, error) {
	r.store.mu.RLock()
	var matched []*domain.TransactionRecord
	for _, tx := range r.store.txs {
		if matches(tx, filter) {
			matched = append(matched, cloneTx(tx))
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func matches(tx *domain.TransactionRecord, f storage.TxFilter) bool {
	if f.OwnerID != "" && tx.OwnerID != f.OwnerID {
		return false
	}
	if f.Address != "" && tx.From != f.Address && tx.To != f.Address {
		return false
	}
	if f.Network != "" && tx.Network != f.Network {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	return true
}

func (r *TxRepo) UpdateConfirmation(ctx context.Context, hash string, fromStatus domain.TxStatus, upd storage.ConfirmationUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, ok := r.store.txs[hash]
	if !ok {
		return storage.ErrNotFound
	}
	// Guard and write under one lock: this is what makes concurrent
	// advances against the same record serialize.
	if tx.Status != fromStatus || tx.Confirmations > upd.Confirmations {
		return storage.ErrVersionConflict
	}
	tx.Status = upd.Status
	tx.Confirmations = upd.Confirmations
	if upd.BlockNumber != 0 {
		tx.BlockNumber = upd.BlockNumber
	}
	if upd.BlockHash != "" {
		tx.BlockHash = upd.BlockHash
	}
	tx.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *TxRepo) UpdateMetadata(ctx context.Context, hash string, metadata domain.TxMetadata) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, ok := r.store.txs[hash]
	if !ok {
		return storage.ErrNotFound
	}
	tx.Metadata = domain.TxMetadata{
		Description: metadata.Description,
		Tags:        append([]string(nil), metadata.Tags...),
		Category:    metadata.Category,
	}
	tx.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *TxRepo) Delete(ctx context.Context, hash string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.txs[hash]; !ok {
		return storage.ErrNotFound
	}
	delete(r.store.txs, hash)
	return nil
}

// -----------------------------------------------------------------------------
// Deep copies. Callers get and hand in their own instances so nothing
// outside the lock aliases stored state.
// -----------------------------------------------------------------------------

func cloneWallet(w *domain.Wallet) *domain.Wallet {
	out := *w
	out.Tags = append([]string(nil), w.Tags...)
	out.FirstTxAt = copyTime(w.FirstTxAt)
	out.LastTxAt = copyTime(w.LastTxAt)
	out.Sheets = make([]*domain.BalanceSheet, len(w.Sheets))
	for i, s := range w.Sheets {
		out.Sheets[i] = cloneSheet(s)
	}
	return &out
}

func cloneSheet(s *domain.BalanceSheet) *domain.BalanceSheet {
	out := *s
	out.Tokens = make([]*domain.TokenBalance, len(s.Tokens))
	for i, t := range s.Tokens {
		tc := *t
		out.Tokens[i] = &tc
	}
	out.NFTs = make([]*domain.NFTHolding, len(s.NFTs))
	for i, n := range s.NFTs {
		nc := *n
		nc.Metadata.Attributes = copyAttrs(n.Metadata.Attributes)
		out.NFTs[i] = &nc
	}
	return &out
}

func cloneTx(tx *domain.TransactionRecord) *domain.TransactionRecord {
	out := *tx
	out.Metadata.Tags = append([]string(nil), tx.Metadata.Tags...)
	if tx.NFT != nil {
		nc := *tx.NFT
		nc.Metadata.Attributes = copyAttrs(tx.NFT.Metadata.Attributes)
		out.NFT = &nc
	}
	return &out
}

func copyAttrs(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
