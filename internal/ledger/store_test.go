package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/vietanh/walletledger/internal/core/domain"
	"github.com/vietanh/walletledger/internal/core/value"
	"github.com/vietanh/walletledger/internal/infra/storage/memory"
)

func newTestStore() *Store {
	store := memory.NewMemoryStorage()
	return NewStore(
		memory.NewWalletRepo(store),
		domain.NewNetworkRegistry(domain.DefaultNetworks()),
		nil,
	)
}

func strptr(s string) *string { return &s }

func TestGetOrCreateWallet(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	w, err := s.GetOrCreateWallet(ctx, "owner-1", "0xAbC0000000000000000000000000000000001234")
	if err != nil {
		t.Fatalf("GetOrCreateWallet: %v", err)
	}
	if w.Address != "0xabc0000000000000000000000000000000001234" {
		t.Errorf("address not canonical: %q", w.Address)
	}
	if w.Label != DefaultLabel || !w.IsActive {
		t.Errorf("unexpected defaults: label=%q active=%v", w.Label, w.IsActive)
	}
	if len(w.Sheets) != 0 {
		t.Errorf("new wallet should have no sheets, got %d", len(w.Sheets))
	}

	// Same (owner, address) in different case resolves to the same wallet.
	again, err := s.GetOrCreateWallet(ctx, "owner-1", "0xABC0000000000000000000000000000000001234")
	if err != nil {
		t.Fatalf("GetOrCreateWallet (again): %v", err)
	}
	if again.ID != w.ID {
		t.Errorf("expected same wallet, got %s and %s", w.ID, again.ID)
	}

	// Missing owner is rejected.
	_, err = s.GetOrCreateWallet(ctx, "", "0xabc0000000000000000000000000000000001234")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Code != domain.ErrMissingField {
		t.Errorf("expected missing_field, got %v", err)
	}
}

func TestGetOrCreateSheetUnknownNetwork(t *testing.T) {
	s := newTestStore()
	wallet := &domain.Wallet{}
	_, err := s.GetOrCreateSheet(wallet, "dogecoin")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Code != domain.ErrUnknownNetwork {
		t.Fatalf("expected unknown_network, got %v", err)
	}
}

func TestApplyNativeBalanceObservation(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	_, err := s.GetOrCreateWallet(ctx, "owner-1", "0xAbC0000000000000000000000000000000001234")
	if err != nil {
		t.Fatalf("GetOrCreateWallet: %v", err)
	}

	sheet, err := s.ApplyBalanceObservation(ctx, "owner-1", "0xAbC0000000000000000000000000000000001234",
		domain.NetworkEthereum, BalanceObservation{NativeBalance: strptr("2500000000000000000")})
	if err != nil {
		t.Fatalf("ApplyBalanceObservation: %v", err)
	}
	if sheet.NativeBalance != "2500000000000000000" {
		t.Errorf("native balance = %q", sheet.NativeBalance)
	}

	// Exactly one ethereum sheet on the stored wallet.
	w, err := s.GetWallet(ctx, "owner-1", "0xabc0000000000000000000000000000000001234")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if len(w.Sheets) != 1 || w.Sheets[0].Network != domain.NetworkEthereum {
		t.Fatalf("sheets = %+v", w.Sheets)
	}
	if w.Sheets[0].NativeBalance != "2500000000000000000" {
		t.Errorf("stored native balance = %q", w.Sheets[0].NativeBalance)
	}

	display, err := value.ToDisplay(w.Sheets[0].NativeBalance, 18)
	if err != nil {
		t.Fatalf("ToDisplay: %v", err)
	}
	if display != "2.5" {
		t.Errorf("display = %q, want 2.5", display)
	}

	// Idempotent: applying the same observation again changes nothing.
	sheet2, err := s.ApplyBalanceObservation(ctx, "owner-1", "0xabc0000000000000000000000000000000001234",
		domain.NetworkEthereum, BalanceObservation{NativeBalance: strptr("2500000000000000000")})
	if err != nil {
		t.Fatalf("ApplyBalanceObservation (repeat): %v", err)
	}
	if sheet2.NativeBalance != sheet.NativeBalance || len(sheet2.Tokens) != 0 {
		t.Errorf("repeat observation changed state: %+v", sheet2)
	}
}

func TestTokenMergeDeduplicatesByCase(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	addr := "0xabc0000000000000000000000000000000001234"

	if _, err := s.GetOrCreateWallet(ctx, "owner-1", addr); err != nil {
		t.Fatalf("GetOrCreateWallet: %v", err)
	}

	upper := "0xAAAA000000000000000000000000000000000aaa"
	lower := "0xaaaa000000000000000000000000000000000aaa"

	_, err := s.ApplyBalanceObservation(ctx, "owner-1", addr, domain.NetworkEthereum, BalanceObservation{
		Tokens: []TokenObservation{{Address: upper, Symbol: "TOK", Name: "Token", Decimals: 18, Balance: "100"}},
	})
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}
	sheet, err := s.ApplyBalanceObservation(ctx, "owner-1", addr, domain.NetworkEthereum, BalanceObservation{
		Tokens: []TokenObservation{{Address: lower, Symbol: "TOK2", Name: "Token Two", Decimals: 18, Balance: "200"}},
	})
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}

	if len(sheet.Tokens) != 1 {
		t.Fatalf("expected 1 token entry, got %d", len(sheet.Tokens))
	}
	tok := sheet.Tokens[0]
	if tok.Address != lower {
		t.Errorf("token address = %q", tok.Address)
	}
	if tok.Symbol != "TOK2" || tok.Balance != "200" {
		t.Errorf("second merge's fields should win: %+v", tok)
	}
}

func TestNFTMergeKeyedByContractAndID(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	addr := "0xabc0000000000000000000000000000000001234"
	contract := "0xbbbb000000000000000000000000000000000bbb"

	if _, err := s.GetOrCreateWallet(ctx, "owner-1", addr); err != nil {
		t.Fatalf("GetOrCreateWallet: %v", err)
	}

	obs := BalanceObservation{NFTs: []NFTObservation{
		{ContractAddress: contract, TokenID: "1", Name: "One"},
		{ContractAddress: contract, TokenID: "2", Name: "Two"},
	}}
	if _, err := s.ApplyBalanceObservation(ctx, "owner-1", addr, domain.NetworkPolygon, obs); err != nil {
		t.Fatalf("merge: %v", err)
	}

	// Re-observe token 1 with new fields: updates in place.
	sheet, err := s.ApplyBalanceObservation(ctx, "owner-1", addr, domain.NetworkPolygon, BalanceObservation{
		NFTs: []NFTObservation{{ContractAddress: contract, TokenID: "1", Name: "One Renamed"}},
	})
	if err != nil {
		t.Fatalf("re-merge: %v", err)
	}
	if len(sheet.NFTs) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(sheet.NFTs))
	}
	if got := sheet.NFT(contract, "1"); got == nil || got.Name != "One Renamed" {
		t.Errorf("holding 1 = %+v", got)
	}
}

func TestObservationValidationFailsBeforeMerge(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	addr := "0xabc0000000000000000000000000000000001234"

	if _, err := s.GetOrCreateWallet(ctx, "owner-1", addr); err != nil {
		t.Fatalf("GetOrCreateWallet: %v", err)
	}

	// Malformed token amount: rejected, nothing persisted.
	_, err := s.ApplyBalanceObservation(ctx, "owner-1", addr, domain.NetworkEthereum, BalanceObservation{
		NativeBalance: strptr("5"),
		Tokens:        []TokenObservation{{Address: "0xaaaa000000000000000000000000000000000aaa", Balance: "1.5"}},
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Code != domain.ErrInvalidAmount {
		t.Fatalf("expected invalid_amount, got %v", err)
	}

	w, err := s.GetWallet(ctx, "owner-1", addr)
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if len(w.Sheets) != 0 {
		t.Errorf("failed observation left partial state: %+v", w.Sheets)
	}

	// Unknown wallet.
	_, err = s.ApplyBalanceObservation(ctx, "owner-1", "0x1111000000000000000000000000000000001111",
		domain.NetworkEthereum, BalanceObservation{NativeBalance: strptr("1")})
	var nerr *domain.NotFoundError
	if !errors.As(err, &nerr) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestConcurrentDisjointTokenMerges(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	addr := "0xabc0000000000000000000000000000000001234"

	if _, err := s.GetOrCreateWallet(ctx, "owner-1", addr); err != nil {
		t.Fatalf("GetOrCreateWallet: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := fmt.Sprintf("0x%040x", i+1)
			_, err := s.ApplyBalanceObservation(ctx, "owner-1", addr, domain.NetworkEthereum, BalanceObservation{
				Tokens: []TokenObservation{{Address: token, Symbol: fmt.Sprintf("T%d", i), Decimals: 18, Balance: "1"}},
			})
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent merge failed: %v", err)
		}
	}

	w, err := s.GetWallet(ctx, "owner-1", addr)
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	sheet := w.Sheet(domain.NetworkEthereum)
	if sheet == nil {
		t.Fatal("no ethereum sheet")
	}
	// Every disjoint token refresh must survive the race.
	if len(sheet.Tokens) != n {
		t.Errorf("expected %d token entries, got %d", n, len(sheet.Tokens))
	}
}

func TestUpdateAndDeleteWallet(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	addr := "0xabc0000000000000000000000000000000001234"

	if _, err := s.GetOrCreateWallet(ctx, "owner-1", addr); err != nil {
		t.Fatalf("GetOrCreateWallet: %v", err)
	}

	label := "Cold Storage"
	inactive := false
	tags := []string{"cold", "multisig"}
	w, err := s.UpdateWallet(ctx, "owner-1", addr, WalletUpdate{Label: &label, IsActive: &inactive, Tags: &tags})
	if err != nil {
		t.Fatalf("UpdateWallet: %v", err)
	}
	if w.Label != "Cold Storage" || w.IsActive || len(w.Tags) != 2 {
		t.Errorf("update not applied: %+v", w)
	}

	if err := s.DeleteWallet(ctx, "owner-1", addr); err != nil {
		t.Fatalf("DeleteWallet: %v", err)
	}
	_, err = s.GetWallet(ctx, "owner-1", addr)
	var nerr *domain.NotFoundError
	if !errors.As(err, &nerr) {
		t.Errorf("expected not-found after delete, got %v", err)
	}
}

// fakeSheetCache mirrors the redis implementation's key scheme so the
// owner-scoping contract is exercised without a server.
type fakeSheetCache struct {
	entries map[string]*domain.BalanceSheet
}

func newFakeSheetCache() *fakeSheetCache {
	return &fakeSheetCache{entries: make(map[string]*domain.BalanceSheet)}
}

func (c *fakeSheetCache) key(ownerID, address string, network domain.Network) string {
	return "sheet:" + ownerID + ":" + address + ":" + string(network)
}

func (c *fakeSheetCache) Get(ctx context.Context, ownerID, address string, network domain.Network) (*domain.BalanceSheet, bool) {
	sheet, ok := c.entries[c.key(ownerID, address, network)]
	return sheet, ok
}

func (c *fakeSheetCache) Set(ctx context.Context, ownerID, address string, network domain.Network, sheet *domain.BalanceSheet) {
	c.entries[c.key(ownerID, address, network)] = sheet
}

func (c *fakeSheetCache) Invalidate(ctx context.Context, ownerID, address string, network domain.Network) {
	delete(c.entries, c.key(ownerID, address, network))
}

func TestGetBalanceSheetCacheScopedByOwner(t *testing.T) {
	store := memory.NewMemoryStorage()
	cache := newFakeSheetCache()
	s := NewStore(
		memory.NewWalletRepo(store),
		domain.NewNetworkRegistry(domain.DefaultNetworks()),
		cache,
	)
	ctx := context.Background()
	addr := "0xabc0000000000000000000000000000000001234"

	if _, err := s.GetOrCreateWallet(ctx, "owner-a", addr); err != nil {
		t.Fatalf("GetOrCreateWallet: %v", err)
	}
	if _, err := s.ApplyBalanceObservation(ctx, "owner-a", addr, domain.NetworkEthereum, BalanceObservation{
		NativeBalance: strptr("2500000000000000000"),
	}); err != nil {
		t.Fatalf("ApplyBalanceObservation: %v", err)
	}

	// Populate the cache with owner-a's sheet.
	sheet, err := s.GetBalanceSheet(ctx, "owner-a", addr, domain.NetworkEthereum)
	if err != nil {
		t.Fatalf("GetBalanceSheet(owner-a): %v", err)
	}
	if sheet.NativeBalance != "2500000000000000000" {
		t.Fatalf("unexpected balance %q", sheet.NativeBalance)
	}
	if len(cache.entries) != 1 {
		t.Fatalf("expected 1 cache entry, got %d", len(cache.entries))
	}

	// owner-b has no wallet for the same address; the warm cache must
	// not hand over owner-a's sheet.
	_, err = s.GetBalanceSheet(ctx, "owner-b", addr, domain.NetworkEthereum)
	var nfe *domain.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected NotFoundError for owner-b, got %v", err)
	}

	// Two owners tracking the same address hold independent sheets.
	if _, err := s.GetOrCreateWallet(ctx, "owner-b", addr); err != nil {
		t.Fatalf("GetOrCreateWallet(owner-b): %v", err)
	}
	if _, err := s.ApplyBalanceObservation(ctx, "owner-b", addr, domain.NetworkEthereum, BalanceObservation{
		NativeBalance: strptr("7"),
	}); err != nil {
		t.Fatalf("ApplyBalanceObservation(owner-b): %v", err)
	}
	got, err := s.GetBalanceSheet(ctx, "owner-b", addr, domain.NetworkEthereum)
	if err != nil {
		t.Fatalf("GetBalanceSheet(owner-b): %v", err)
	}
	if got.NativeBalance != "7" {
		t.Errorf("owner-b balance = %q, want 7", got.NativeBalance)
	}
	again, err := s.GetBalanceSheet(ctx, "owner-a", addr, domain.NetworkEthereum)
	if err != nil {
		t.Fatalf("GetBalanceSheet(owner-a) after owner-b write: %v", err)
	}
	if again.NativeBalance != "2500000000000000000" {
		t.Errorf("owner-a balance = %q, want 2500000000000000000", again.NativeBalance)
	}
}
