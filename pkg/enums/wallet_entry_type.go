package enums

import "fmt"

// WalletEntryType maps to the wallet_entry_type enum in Postgres.
type WalletEntryType string

const (
	WalletEntryTypeCredit     WalletEntryType = "credit"
	WalletEntryTypeDebit      WalletEntryType = "debit"
	WalletEntryTypeAdjustment WalletEntryType = "adjustment"
)

var validWalletEntryTypes = []WalletEntryType{
	WalletEntryTypeCredit,
	WalletEntryTypeDebit,
	WalletEntryTypeAdjustment,
}

// IsValid reports whether the value matches the canonical wallet entry enum.
func (t WalletEntryType) IsValid() bool {
	for _, candidate := range validWalletEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseWalletEntryType converts raw input into WalletEntryType.
func ParseWalletEntryType(value string) (WalletEntryType, error) {
	for _, candidate := range validWalletEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet entry type %q", value)
}
