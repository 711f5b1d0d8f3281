package postgres

import (
	"fmt"
	"math/big"
)

// Ledger amounts are stored as NUMERIC(78,0) and moved across the wire as
// decimal strings to avoid float truncation.

func bigToNumeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func numericToBig(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: invalid numeric %q", s)
	}
	return v, nil
}
