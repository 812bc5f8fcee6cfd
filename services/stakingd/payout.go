package stakingd

import "github.com/holiman/uint256"

// PayoutAmount converts a claimed points balance into reward base units,
// points * 10^decimals. Decimals are capped at 18 by config validation so the
// product always fits.
func PayoutAmount(points uint32, decimals uint8) *uint256.Int {
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return new(uint256.Int).Mul(uint256.NewInt(uint64(points)), scale)
}
