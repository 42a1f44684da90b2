// Package utils provides common validation helpers.
//
// Addresses are Solana public keys in base58 form. Subscription filters are
// lists of buyer addresses with an upper bound on their length.
package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Error definitions for validation functions
var (
	ErrEmptyAddress     = errors.New("address cannot be empty")
	ErrTooManyAddresses = errors.New("too many addresses requested")
)

// ValidateAddress checks that address is a base58 encoded 32 byte public key.
func ValidateAddress(address string) error {
	if strings.TrimSpace(address) == "" {
		return ErrEmptyAddress
	}
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	return nil
}

// ValidateAddresses validates a buyer filter and enforces its size limit.
//
// An empty list is valid and means "no filter".
func ValidateAddresses(addresses []string, maxAllowed int) error {
	if len(addresses) == 0 {
		return nil
	}

	if maxAllowed <= 0 {
		return fmt.Errorf("%w: max allowed must be positive, got %d",
			ErrTooManyAddresses, maxAllowed)
	}

	if len(addresses) > maxAllowed {
		return fmt.Errorf("%w: requested %d addresses, maximum allowed %d",
			ErrTooManyAddresses, len(addresses), maxAllowed)
	}

	for i, addr := range addresses {
		if err := ValidateAddress(addr); err != nil {
			return fmt.Errorf("invalid address at index %d: %w", i, err)
		}
	}

	return nil
}

// SplitList splits a comma separated list, trimming blanks and dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
