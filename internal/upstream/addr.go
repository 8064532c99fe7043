package upstream

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/btcsuite/btcutil/bech32"
)

// ConvertBech32 re-encodes a bech32 address under a different
// human-readable prefix, leaving the underlying data bytes untouched.
// It returns "" if address fails to decode or re-encode, so callers
// treat a blank result the same as "no address available" rather than
// propagating a decode error up the call stack.
func ConvertBech32(address, newHRP string) string {
	_, data, err := bech32.Decode(address)
	if err != nil {
		return ""
	}
	out, err := bech32.Encode(newHRP, data)
	if err != nil {
		return ""
	}
	return out
}

// PubkeyToValcons derives a consensus address from a base64-encoded
// ed25519 public key, the same scheme Tendermint uses: SHA-256 the raw
// key and bech32-encode the first 20 bytes under hrp. Returns "" if
// the input is not valid base64 or does not decode to exactly 32
// bytes.
func PubkeyToValcons(base64Pubkey string, hrp string) string {
	if hrp == "" {
		hrp = "gonkavalcons"
	}
	raw, err := base64.StdEncoding.DecodeString(base64Pubkey)
	if err != nil || len(raw) != 32 {
		return ""
	}
	sum := sha256.Sum256(raw)
	data, err := bech32.ConvertBits(sum[:20], 8, 5, true)
	if err != nil {
		return ""
	}
	out, err := bech32.Encode(hrp, data)
	if err != nil {
		return ""
	}
	return out
}
