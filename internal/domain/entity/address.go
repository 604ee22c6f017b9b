package entity

import (
	"errors"
	"fmt"
	"math"

	"github.com/mr-tron/base58"
)

// PublicKeySize is the length of a decoded Solana account address
const PublicKeySize = 32

var (
	errEmptyAddress   = errors.New("empty address")
	errEmptySignature = errors.New("empty signature")
)

// ValidateAddress checks that s is a base58 encoded 32 byte public key
func ValidateAddress(s string) error {
	if s == "" {
		return errEmptyAddress
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("invalid base58 address %q: %w", s, err)
	}
	if len(raw) != PublicKeySize {
		return fmt.Errorf("address %q: expected %d bytes, got %d", s, PublicKeySize, len(raw))
	}
	return nil
}

// Validate checks the fields the relationship store depends on
func (e *TransferEvent) Validate() error {
	if e.Signature == "" {
		return errEmptySignature
	}
	if e.EventIndex < 0 {
		return fmt.Errorf("event %s: negative event index", e.Signature)
	}
	if err := ValidateAddress(e.From); err != nil {
		return fmt.Errorf("event %s: from: %w", e.Key(), err)
	}
	if err := ValidateAddress(e.To); err != nil {
		return fmt.Errorf("event %s: to: %w", e.Key(), err)
	}
	if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) || e.Amount < 0 {
		return fmt.Errorf("event %s: invalid amount %v", e.Key(), e.Amount)
	}
	switch e.Kind {
	case TransferKindSOL:
	case TransferKindToken:
		if err := ValidateAddress(e.Mint); err != nil {
			return fmt.Errorf("event %s: mint: %w", e.Key(), err)
		}
	default:
		return fmt.Errorf("event %s: unknown kind %q", e.Key(), e.Kind)
	}
	return nil
}
