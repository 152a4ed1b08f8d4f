package utils

import (
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
)

// SortCode is the bank's sort code for every account.
const SortCode = "04-00-75"

// AccountNumber derives the 8-digit account number for an account id.
// FNV-1a over the raw id bytes keeps it stable across processes and languages.
func AccountNumber(id uuid.UUID) string {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return fmt.Sprintf("%08d", h.Sum32()%90_000_000+10_000_000)
}

// ValidateAccountNumber validates the account number format
func ValidateAccountNumber(accountNumber string) bool {
	if len(accountNumber) != 8 || accountNumber[0] == '0' {
		return false
	}
	for _, r := range accountNumber {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
