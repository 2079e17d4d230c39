package types

import (
	"fmt"
	"math/big"
	"strings"
)

// MaxAmount is the largest representable ledger amount (2^128 - 1).
var MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// ParseAmount parses a non-negative base-10 amount that fits in 128 bits.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount: empty value")
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount: invalid value %q", raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount: negative value %q", raw)
	}
	if v.Cmp(MaxAmount) > 0 {
		return nil, fmt.Errorf("amount: value %q exceeds 128 bits", raw)
	}
	return v, nil
}

// CloneAmount returns a copy of v, treating nil as zero.
func CloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
