// Package nostr implements the slice of the Nostr protocol madtrips needs:
// NIP-01 events and filters, the NIP-02 contact list, canonical event IDs,
// schnorr signing, and the npub identity codec.
//
// Raw events are decoded exactly once, at the transport boundary, into the
// typed records in records.go. Code above this package never inspects raw
// tag arrays or content JSON.
package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/zapabug/madtrips-sub000/errors"
)

// Event kinds used by the graph engine.
const (
	KindProfileMetadata = 0 // NIP-01: profile metadata, content is JSON
	KindTextNote        = 1 // NIP-01: plain content note
	KindContactList     = 3 // NIP-02: follows as "p" tags
)

// Event is a wire-format Nostr event (NIP-01).
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Serialize returns the canonical NIP-01 serialization
// [0, pubkey, created_at, kind, tags, content] used for ID computation.
// HTML escaping is disabled: relays hash the literal bytes.
func (e *Event) Serialize() ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = [][]string{}
	}
	arr := []interface{}{0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return nil, errors.Wrap(err, "failed to serialize event")
	}
	// Encode appends a trailing newline that is not part of the hash input.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ComputeID returns the lowercase hex sha256 of the canonical serialization.
func (e *Event) ComputeID() (string, error) {
	ser, err := e.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(ser)
	return hex.EncodeToString(sum[:]), nil
}

// Sign fills PubKey, ID and Sig from a 32-byte hex secret key.
func (e *Event) Sign(secretHex string) error {
	skBytes, err := hex.DecodeString(secretHex)
	if err != nil || len(skBytes) != 32 {
		return errors.Wrap(errors.ErrInvalidIdentity, "secret key must be 32 hex bytes")
	}

	sk, pk := btcec.PrivKeyFromBytes(skBytes)
	e.PubKey = hex.EncodeToString(schnorr.SerializePubKey(pk))

	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	e.ID = id

	hash, err := hex.DecodeString(id)
	if err != nil {
		return errors.Wrap(err, "failed to decode event id")
	}

	sig, err := schnorr.Sign(sk, hash)
	if err != nil {
		return errors.Wrap(err, "failed to sign event")
	}
	e.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// PubKeyFromSecret derives the hex schnorr public key for a 32-byte hex
// secret key.
func PubKeyFromSecret(secretHex string) (string, error) {
	skBytes, err := hex.DecodeString(secretHex)
	if err != nil || len(skBytes) != 32 {
		return "", errors.Wrap(errors.ErrInvalidIdentity, "secret key must be 32 hex bytes")
	}
	_, pk := btcec.PrivKeyFromBytes(skBytes)
	return hex.EncodeToString(schnorr.SerializePubKey(pk)), nil
}

// CheckShape validates the structural invariants a relay-supplied event must
// satisfy before decoding. It does not verify the signature: the engine
// treats relays as best-effort data sources, not authorities, and a bad
// record degrades to a skip either way.
func (e *Event) CheckShape() error {
	if !isHex(e.PubKey, 64) {
		return errors.Wrapf(errors.ErrInvalidRecord, "bad pubkey %q", e.PubKey)
	}
	if !isHex(e.ID, 64) {
		return errors.Wrapf(errors.ErrInvalidRecord, "bad id %q", e.ID)
	}
	if e.CreatedAt <= 0 {
		return errors.Wrap(errors.ErrInvalidRecord, "missing created_at")
	}
	return nil
}

// TagValues returns the first value of every tag with the given name,
// in tag order.
func (e *Event) TagValues(name string) []string {
	var vals []string
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			vals = append(vals, tag[1])
		}
	}
	return vals
}

func isHex(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
