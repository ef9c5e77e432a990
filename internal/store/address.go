package store

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidateAddress accepts 0x-prefixed 20-byte hex addresses. All-lower and
// all-upper hex are accepted as is; mixed case must carry a valid EIP-55
// checksum.
func ValidateAddress(addr string) error {
	if !addressPattern.MatchString(addr) {
		return fmt.Errorf("%w: %q is not a 0x-prefixed 40 hex digit address", ErrInvalidIdentifier, addr)
	}
	digits := addr[2:]
	if digits == strings.ToLower(digits) || digits == strings.ToUpper(digits) {
		return nil
	}
	if ChecksumAddress(addr) != addr {
		return fmt.Errorf("%w: %q has an invalid checksum", ErrInvalidIdentifier, addr)
	}
	return nil
}

// ChecksumAddress returns the EIP-55 mixed-case form of a well-formed address.
func ChecksumAddress(addr string) string {
	lower := strings.ToLower(strings.TrimPrefix(addr, "0x"))

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	sum := h.Sum(nil)

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			out[i] = c - 'a' + 'A'
		}
	}
	return "0x" + string(out)
}

// SameAddress compares two addresses ignoring checksum casing.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// NormalizeAddress returns the lowercase form used for indexing.
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}
