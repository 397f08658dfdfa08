// Package ledger owns the wallet aggregate: wallet registration, lazy
// balance-sheet creation and idempotent balance merges.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietanh/walletledger/internal/core/domain"
	"github.com/vietanh/walletledger/internal/core/value"
	"github.com/vietanh/walletledger/internal/infra/storage"
	"github.com/vietanh/walletledger/internal/metrics"
)

// DefaultLabel is assigned to wallets registered without a label.
const DefaultLabel = "Main Wallet"

// maxMergeRetries bounds the optimistic compare-and-retry loop on sheet
// writes. Conflicts are re-applied against a fresh read, so a retry never
// loses a concurrent merge to a disjoint key.
const maxMergeRetries = 5

// SheetCache caches balance-sheet snapshots for reads. Entries are scoped
// by owner: wallets are unique per (owner, address), and two owners
// tracking the same address hold independent sheets. Implementations
// must degrade silently: a cache failure never fails a ledger operation.
type SheetCache interface {
	Get(ctx context.Context, ownerID, address string, network domain.Network) (*domain.BalanceSheet, bool)
	Set(ctx context.Context, ownerID, address string, network domain.Network, sheet *domain.BalanceSheet)
	Invalidate(ctx context.Context, ownerID, address string, network domain.Network)
}

// Store exposes the ledger operations over a wallet repository.
type Store struct {
	wallets  storage.WalletRepository
	networks *domain.NetworkRegistry
	cache    SheetCache // nil when caching is disabled
}

// NewStore builds a ledger store. cache may be nil.
func NewStore(wallets storage.WalletRepository, networks *domain.NetworkRegistry, cache SheetCache) *Store {
	return &Store{wallets: wallets, networks: networks, cache: cache}
}

// GetOrCreateWallet returns the wallet for (owner, address), creating it
// with empty sheets on first registration. Concurrent first registrations
// resolve to the same wallet via the repository's unique key.
func (s *Store) GetOrCreateWallet(ctx context.Context, ownerID, rawAddress string) (*domain.Wallet, error) {
	if ownerID == "" {
		return nil, &domain.ValidationError{Code: domain.ErrMissingField, Field: "owner"}
	}
	address, err := domain.NormalizeAddress(rawAddress)
	if err != nil {
		return nil, err
	}

	wallet, err := s.wallets.GetByOwnerAndAddress(ctx, ownerID, address)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up wallet: %w", err)
	}

	now := time.Now().UTC()
	wallet = &domain.Wallet{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Address:   address,
		Label:     DefaultLabel,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.wallets.Create(ctx, wallet); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			// Lost the registration race; the winner's wallet is ours too.
			return s.wallets.GetByOwnerAndAddress(ctx, ownerID, address)
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	slog.Info("wallet registered", "owner", ownerID, "address", address)
	return wallet, nil
}

// GetWallet returns the wallet for (owner, address).
func (s *Store) GetWallet(ctx context.Context, ownerID, rawAddress string) (*domain.Wallet, error) {
	address, err := domain.NormalizeAddress(rawAddress)
	if err != nil {
		return nil, err
	}
	wallet, err := s.wallets.GetByOwnerAndAddress(ctx, ownerID, address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &domain.NotFoundError{Kind: "wallet", Key: address}
	}
	return wallet, err
}

// ListWallets returns all wallets for an owner.
func (s *Store) ListWallets(ctx context.Context, ownerID string) ([]*domain.Wallet, error) {
	if ownerID == "" {
		return nil, &domain.ValidationError{Code: domain.ErrMissingField, Field: "owner"}
	}
	return s.wallets.ListByOwner(ctx, ownerID)
}

// WalletUpdate carries the caller-editable wallet fields. Nil means keep.
type WalletUpdate struct {
	Label    *string
	Tags     *[]string
	Notes    *string
	IsActive *bool
}

// UpdateWallet applies label/tags/notes/active changes.
func (s *Store) UpdateWallet(ctx context.Context, ownerID, rawAddress string, upd WalletUpdate) (*domain.Wallet, error) {
	wallet, err := s.GetWallet(ctx, ownerID, rawAddress)
	if err != nil {
		return nil, err
	}
	if upd.Label != nil {
		wallet.Label = *upd.Label
	}
	if upd.Tags != nil {
		wallet.Tags = *upd.Tags
	}
	if upd.Notes != nil {
		wallet.Notes = *upd.Notes
	}
	if upd.IsActive != nil {
		wallet.IsActive = *upd.IsActive
	}
	if err := s.wallets.Update(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to update wallet: %w", err)
	}
	return wallet, nil
}

// DeleteWallet removes a wallet and its sheets. No cascading effects on
// transaction records.
func (s *Store) DeleteWallet(ctx context.Context, ownerID, rawAddress string) error {
	wallet, err := s.GetWallet(ctx, ownerID, rawAddress)
	if err != nil {
		return err
	}
	if err := s.wallets.Delete(ctx, wallet.ID); err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	if s.cache != nil {
		for _, sheet := range wallet.Sheets {
			s.cache.Invalidate(ctx, wallet.OwnerID, wallet.Address, sheet.Network)
		}
	}
	return nil
}

// GetOrCreateSheet returns the wallet's sheet for a network, appending an
// empty one if none exists. The at-most-one-per-network invariant lives
// here, not with callers. The new sheet is only persisted by a later merge.
func (s *Store) GetOrCreateSheet(wallet *domain.Wallet, network domain.Network) (*domain.BalanceSheet, error) {
	if !s.networks.Supported(network) {
		return nil, &domain.ValidationError{Code: domain.ErrUnknownNetwork, Value: string(network)}
	}
	if sheet := wallet.Sheet(network); sheet != nil {
		return sheet, nil
	}
	sheet := &domain.BalanceSheet{
		Network:       network,
		NativeBalance: "0",
		LastUpdated:   time.Now().UTC(),
	}
	wallet.Sheets = append(wallet.Sheets, sheet)
	return sheet, nil
}

// ApplyBalanceObservation is the single entry point for pushing refreshed
// balances: it normalizes the observation, locates or creates the sheet and
// merges, retrying on version conflicts so concurrent refreshes of disjoint
// keys both survive. The write is all-or-nothing.
func (s *Store) ApplyBalanceObservation(
	ctx context.Context,
	ownerID, rawAddress string,
	network domain.Network,
	obs BalanceObservation,
) (*domain.BalanceSheet, error) {
	if !s.networks.Supported(network) {
		return nil, &domain.ValidationError{Code: domain.ErrUnknownNetwork, Value: string(network)}
	}
	address, err := domain.NormalizeAddress(rawAddress)
	if err != nil {
		return nil, err
	}
	obs, err = normalizeObservation(obs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.StoreOpDuration.WithLabelValues("apply_balance_observation").
			Observe(time.Since(start).Seconds())
	}()

	var sheet *domain.BalanceSheet
	for attempt := 0; ; attempt++ {
		wallet, err := s.wallets.GetByOwnerAndAddress(ctx, ownerID, address)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &domain.NotFoundError{Kind: "wallet", Key: address}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load wallet: %w", err)
		}

		sheet, err = s.GetOrCreateSheet(wallet, network)
		if err != nil {
			return nil, err
		}
		expected := sheet.Version

		now := time.Now().UTC()
		applyObservation(sheet, obs, now)

		err = s.wallets.UpsertSheet(ctx, wallet.ID, sheet, expected)
		if err == nil {
			sheet.Version = expected + 1
			break
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to persist sheet: %w", err)
		}
		metrics.MergeConflicts.WithLabelValues(string(network)).Inc()
		if attempt+1 >= maxMergeRetries {
			return nil, fmt.Errorf("failed to persist sheet after %d attempts: %w", maxMergeRetries, err)
		}
	}

	countMerges(network, obs)
	if s.cache != nil {
		s.cache.Invalidate(ctx, ownerID, address, network)
	}
	return sheet, nil
}

// GetBalanceSheet reads one sheet, through the cache when present.
func (s *Store) GetBalanceSheet(ctx context.Context, ownerID, rawAddress string, network domain.Network) (*domain.BalanceSheet, error) {
	address, err := domain.NormalizeAddress(rawAddress)
	if err != nil {
		return nil, err
	}
	if !s.networks.Supported(network) {
		return nil, &domain.ValidationError{Code: domain.ErrUnknownNetwork, Value: string(network)}
	}
	if s.cache != nil {
		if sheet, ok := s.cache.Get(ctx, ownerID, address, network); ok {
			return sheet, nil
		}
	}
	wallet, err := s.GetWallet(ctx, ownerID, address)
	if err != nil {
		return nil, err
	}
	sheet := wallet.Sheet(network)
	if sheet == nil {
		return nil, &domain.NotFoundError{Kind: "sheet", Key: address + "/" + string(network)}
	}
	if s.cache != nil {
		s.cache.Set(ctx, ownerID, address, network, sheet)
	}
	return sheet, nil
}

// applyObservation runs the individual merges over an already-normalized
// observation.
func applyObservation(sheet *domain.BalanceSheet, obs BalanceObservation, now time.Time) {
	if obs.NativeBalance != nil {
		mergeNative(sheet, *obs.NativeBalance, now)
	}
	for _, t := range obs.Tokens {
		mergeToken(sheet, t, now)
	}
	for _, n := range obs.NFTs {
		mergeNFT(sheet, n, now)
	}
}

// normalizeObservation canonicalizes every address and validates every
// amount up front, so the merge itself cannot fail halfway through.
func normalizeObservation(obs BalanceObservation) (BalanceObservation, error) {
	if obs.NativeBalance != nil {
		if err := value.ValidateBaseAmount(*obs.NativeBalance); err != nil {
			return obs, err
		}
	}
	tokens := make([]TokenObservation, len(obs.Tokens))
	for i, t := range obs.Tokens {
		address, err := domain.NormalizeAddress(t.Address)
		if err != nil {
			return obs, err
		}
		if err := value.ValidateBaseAmount(t.Balance); err != nil {
			return obs, err
		}
		t.Address = address
		tokens[i] = t
	}
	nfts := make([]NFTObservation, len(obs.NFTs))
	for i, n := range obs.NFTs {
		contract, err := domain.NormalizeAddress(n.ContractAddress)
		if err != nil {
			return obs, err
		}
		if n.TokenID == "" {
			return obs, &domain.ValidationError{Code: domain.ErrMissingField, Field: "token_id"}
		}
		n.ContractAddress = contract
		nfts[i] = n
	}
	obs.Tokens = tokens
	obs.NFTs = nfts
	return obs, nil
}

func countMerges(network domain.Network, obs BalanceObservation) {
	if obs.NativeBalance != nil {
		metrics.BalanceMerges.WithLabelValues(string(network), "native").Inc()
	}
	if len(obs.Tokens) > 0 {
		metrics.BalanceMerges.WithLabelValues(string(network), "token").Add(float64(len(obs.Tokens)))
	}
	if len(obs.NFTs) > 0 {
		metrics.BalanceMerges.WithLabelValues(string(network), "nft").Add(float64(len(obs.NFTs)))
	}
}
