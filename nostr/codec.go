package nostr

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/zapabug/madtrips-sub000/errors"
)

const npubPrefix = "npub"

// EncodeNpub converts a 32-byte hex public key to its bech32 npub form.
func EncodeNpub(pubHex string) (string, error) {
	raw, err := hex.DecodeString(pubHex)
	if err != nil || len(raw) != 32 {
		return "", errors.Wrapf(errors.ErrInvalidIdentity, "pubkey %q is not 32 hex bytes", pubHex)
	}

	conv, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", errors.Wrap(err, "failed to convert pubkey bits")
	}

	npub, err := bech32.Encode(npubPrefix, conv)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode npub")
	}
	return npub, nil
}

// DecodeNpub converts an npub back to its 32-byte hex form.
func DecodeNpub(npub string) (string, error) {
	hrp, data, err := bech32.Decode(npub)
	if err != nil {
		return "", errors.Wrapf(errors.ErrInvalidIdentity, "bad bech32 %q: %v", npub, err)
	}
	if hrp != npubPrefix {
		return "", errors.Wrapf(errors.ErrInvalidIdentity, "expected npub prefix, got %q", hrp)
	}

	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil || len(raw) != 32 {
		return "", errors.Wrapf(errors.ErrInvalidIdentity, "npub %q does not decode to 32 bytes", npub)
	}
	return hex.EncodeToString(raw), nil
}

// NormalizeIdentity accepts either an npub or a 64-char hex pubkey and
// returns the lowercase hex form used as the node id everywhere in the
// engine. Rejected identities are never retried (spec'd as a validation
// failure, not a transient one).
func NormalizeIdentity(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, npubPrefix) {
		return DecodeNpub(s)
	}
	lower := strings.ToLower(s)
	if !isHex(lower, 64) {
		return "", errors.Wrapf(errors.ErrInvalidIdentity, "identity %q is neither npub nor hex", s)
	}
	return lower, nil
}
