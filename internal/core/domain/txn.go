package domain

import "time"

// TransactionRecord is one observed transaction, unique by hash. Recorder
// creates it; only the confirmation tracker touches status/confirmations
// afterwards, and only UpdateMetadata touches the free-form metadata.
type TransactionRecord struct {
	Hash        string `json:"tx_hash"` // canonical: lowercase 0x + 64 hex
	BlockNumber uint64 `json:"block_number"`
	BlockHash   string `json:"block_hash"`
	From        string `json:"from_address"`
	To          string `json:"to_address"`
	Value       string `json:"value"` // base units
	GasUsed     string `json:"gas_used"`
	GasPrice    string `json:"gas_price"`
	Nonce       uint64 `json:"nonce,omitempty"`
	Input       string `json:"input,omitempty"`

	Network Network  `json:"network"`
	Status  TxStatus `json:"status"`
	Type    TxType   `json:"type"`

	// Confirmations is monotonically non-decreasing for the lifetime of
	// the record. Reorgs that would lower it are the caller's problem.
	Confirmations uint64 `json:"confirmations"`

	TokenAddress  string `json:"token_address,omitempty"`
	TokenSymbol   string `json:"token_symbol,omitempty"`
	TokenDecimals int    `json:"token_decimals,omitempty"`

	NFT *TxNFT `json:"nft,omitempty"`

	Metadata TxMetadata `json:"metadata,omitempty"`

	OwnerID   string    `json:"owner_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s TxStatus) Valid() bool {
	switch s {
	case TxStatusPending, TxStatusConfirmed, TxStatusFailed:
		return true
	}
	return false
}

type TxType string

const (
	TxTypeTransfer            TxType = "transfer"
	TxTypeContractInteraction TxType = "contract_interaction"
	TxTypeTokenTransfer       TxType = "token_transfer"
	TxTypeNFTTransfer         TxType = "nft_transfer"
)

// Valid reports whether t is one of the known transaction types.
func (t TxType) Valid() bool {
	switch t {
	case TxTypeTransfer, TxTypeContractInteraction, TxTypeTokenTransfer, TxTypeNFTTransfer:
		return true
	}
	return false
}

// TxNFT carries NFT details for nft_transfer records.
type TxNFT struct {
	TokenID     string      `json:"token_id"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	Image       string      `json:"image,omitempty"`
	Metadata    NFTMetadata `json:"metadata,omitempty"`
}

// TxMetadata is the caller-editable annotation on a record. Updating it never
// touches consensus-relevant fields.
type TxMetadata struct {
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Category    string   `json:"category,omitempty"`
}
