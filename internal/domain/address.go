package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// canonicalAddressPattern matches the canonical buyer address form the
// ledger trusts as an opaque identity key: 0x followed by 40 lowercase hex
// characters.
var canonicalAddressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// NormalizeBuyerAddress validates the syntax of an EVM buyer address and
// canonicalizes it to lowercase. This runs at the external boundary; the
// ledger itself never re-validates address syntax.
func NormalizeBuyerAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidBuyerAddress, address)
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}

// IsCanonicalBuyerAddress reports whether the address is already in the
// canonical lowercase form produced by NormalizeBuyerAddress.
func IsCanonicalBuyerAddress(address string) bool {
	return canonicalAddressPattern.MatchString(address)
}
