package ledger

import (
	"time"

	"github.com/vietanh/walletledger/internal/core/domain"
)

// BalanceObservation is one refresh pushed by the chain data source. Any
// combination of fields may be present; absent fields leave the sheet
// untouched. Addresses may arrive in any case, amounts are base-unit
// digit strings.
type BalanceObservation struct {
	NativeBalance *string
	Tokens        []TokenObservation
	NFTs          []NFTObservation
}

// TokenObservation is a refreshed fungible-token position.
type TokenObservation struct {
	Address  string
	Symbol   string
	Name     string
	Decimals int
	Balance  string
	PriceUSD float64
}

// NFTObservation is a refreshed non-fungible holding.
type NFTObservation struct {
	ContractAddress string
	TokenID         string
	Name            string
	Description     string
	Image           string
	Metadata        domain.NFTMetadata
}

// The merge functions below are total over (sheet, observation): they take
// observations whose addresses are already canonical (the store normalizes
// and validates before merging) and never fail. Applying the same
// observation twice yields the same sheet.

// mergeNative replaces the sheet's native balance.
func mergeNative(sheet *domain.BalanceSheet, amount string, now time.Time) {
	sheet.NativeBalance = amount
	sheet.LastUpdated = now
}

// mergeToken updates the entry with the same token address in place, or
// appends a new one. No two entries ever share an address afterwards.
func mergeToken(sheet *domain.BalanceSheet, obs TokenObservation, now time.Time) {
	if existing := sheet.Token(obs.Address); existing != nil {
		existing.Symbol = obs.Symbol
		existing.Name = obs.Name
		existing.Decimals = obs.Decimals
		existing.Balance = obs.Balance
		existing.PriceUSD = obs.PriceUSD
		existing.LastUpdated = now
	} else {
		sheet.Tokens = append(sheet.Tokens, &domain.TokenBalance{
			Address:     obs.Address,
			Symbol:      obs.Symbol,
			Name:        obs.Name,
			Decimals:    obs.Decimals,
			Balance:     obs.Balance,
			PriceUSD:    obs.PriceUSD,
			LastUpdated: now,
		})
	}
	sheet.LastUpdated = now
}

// mergeNFT does the same keyed on (contract address, token id).
func mergeNFT(sheet *domain.BalanceSheet, obs NFTObservation, now time.Time) {
	if existing := sheet.NFT(obs.ContractAddress, obs.TokenID); existing != nil {
		existing.Name = obs.Name
		existing.Description = obs.Description
		existing.Image = obs.Image
		existing.Metadata = obs.Metadata
		existing.LastUpdated = now
	} else {
		sheet.NFTs = append(sheet.NFTs, &domain.NFTHolding{
			ContractAddress: obs.ContractAddress,
			TokenID:         obs.TokenID,
			Name:            obs.Name,
			Description:     obs.Description,
			Image:           obs.Image,
			Metadata:        obs.Metadata,
			LastUpdated:     now,
		})
	}
	sheet.LastUpdated = now
}
