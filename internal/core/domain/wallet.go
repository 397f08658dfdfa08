package domain

import (
	"time"
)

// Wallet is a tracked address together with its per-network balance sheets.
// There is exactly one wallet per (owner, address) pair.
type Wallet struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	Address  string `json:"address"` // canonical: lowercase 0x + 40 hex
	Label    string `json:"label"`
	IsActive bool   `json:"is_active"`

	Sheets []*BalanceSheet `json:"balances"` // at most one per network

	TransactionCount int64      `json:"transaction_count"`
	FirstTxAt        *time.Time `json:"first_transaction_date,omitempty"`
	LastTxAt         *time.Time `json:"last_transaction_date,omitempty"`

	Tags  []string `json:"tags,omitempty"`
	Notes string   `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sheet returns the balance sheet for a network, or nil if none exists yet.
func (w *Wallet) Sheet(network Network) *BalanceSheet {
	for _, s := range w.Sheets {
		if s.Network == network {
			return s
		}
	}
	return nil
}

// BalanceSheet is the per-network snapshot of a wallet's holdings.
// Token entries are unique by token address, NFT entries by (contract, token id).
type BalanceSheet struct {
	Network       Network         `json:"network"`
	NativeBalance string          `json:"native_balance"` // base units, decimal digit string
	Tokens        []*TokenBalance `json:"tokens"`
	NFTs          []*NFTHolding   `json:"nfts"`
	LastUpdated   time.Time       `json:"last_updated"`

	// Version counts committed merges. Storage uses it for optimistic
	// concurrency: a write with a stale version must not clobber a
	// concurrent merge to the same sheet.
	Version int64 `json:"version"`
}

// Token returns the token entry with the given canonical address, or nil.
func (s *BalanceSheet) Token(address string) *TokenBalance {
	for _, t := range s.Tokens {
		if t.Address == address {
			return t
		}
	}
	return nil
}

// NFT returns the holding for (contract, tokenID), or nil.
func (s *BalanceSheet) NFT(contract, tokenID string) *NFTHolding {
	for _, n := range s.NFTs {
		if n.ContractAddress == contract && n.TokenID == tokenID {
			return n
		}
	}
	return nil
}

// TokenBalance is one fungible-token position on a balance sheet.
type TokenBalance struct {
	Address     string    `json:"address"` // canonical token contract address
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	Decimals    int       `json:"decimals"`
	Balance     string    `json:"balance"`         // base units
	PriceUSD    float64   `json:"price,omitempty"` // display only, never used in invariants
	LastUpdated time.Time `json:"last_updated"`
}

// NFTHolding is one non-fungible position on a balance sheet. Token IDs are
// strings because they may exceed uint64 range.
type NFTHolding struct {
	ContractAddress string      `json:"contract_address"`
	TokenID         string      `json:"token_id"`
	Name            string      `json:"name,omitempty"`
	Description     string      `json:"description,omitempty"`
	Image           string      `json:"image,omitempty"`
	Metadata        NFTMetadata `json:"metadata,omitempty"`
	LastUpdated     time.Time   `json:"last_updated"`
}

// NFTMetadata holds the structured part of an NFT's token metadata.
// Arbitrary trait keys stay in Attributes rather than an untyped blob.
type NFTMetadata struct {
	Collection  string            `json:"collection,omitempty"`
	ExternalURL string            `json:"external_url,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}
