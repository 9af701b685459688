//----------------------------------------------------------------------
// This file is part of torcp.
// Copyright (C) 2011-2026 Bernd Fix  >Y<
//
// torcp is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// torcp is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later
//----------------------------------------------------------------------

package torcp

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base32"
	"encoding/base64"
	"strings"

	"filippo.io/edwards25519"
	"github.com/bfix/torcp/errors"
	"golang.org/x/crypto/sha3"
)

// onionChecksumConstant is the fixed prefix mixed into the v3 onion
// address checksum, per rend-spec-v3.txt section 6.
const onionChecksumConstant = ".onion checksum"

const onionVersionV3 = 0x03

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// PublicKeyV3 is the 32-byte ed25519 public key identifying a v3
// onion service.
type PublicKeyV3 struct {
	bytes [32]byte
}

// NewPublicKeyV3FromBytes wraps a raw 32-byte ed25519 public key. The
// bytes must be a canonical encoding that decompresses to a point on
// the Edwards curve; 32 bytes that merely look key-shaped are not a
// key.
func NewPublicKeyV3FromBytes(b []byte) (*PublicKeyV3, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, errors.Wrap(ErrOnionInvalidKeyLength, "v3 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return nil, errors.Wrap(ErrOnionNotOnCurve, "%v", err)
	}
	// SetBytes also accepts non-canonical encodings of valid points;
	// only an encoding that re-encodes to itself is canonical.
	if string(p.Bytes()) != string(b) {
		return nil, errors.Wrap(ErrOnionNotOnCurve, "non-canonical point encoding")
	}
	var pk PublicKeyV3
	copy(pk.bytes[:], b)
	return &pk, nil
}

// Bytes returns the raw 32-byte public key.
func (pk *PublicKeyV3) Bytes() []byte {
	out := make([]byte, 32)
	copy(out, pk.bytes[:])
	return out
}

// AddressV3 returns the 56-character-plus-".onion" address derived
// from pk, as specified by rend-spec-v3.txt section 6: pubkey || the
// first two checksum bytes || version byte, base32-encoded.
func (pk *PublicKeyV3) AddressV3() string {
	checksum := onionChecksumV3(pk.bytes[:])
	raw := make([]byte, 0, 35)
	raw = append(raw, pk.bytes[:]...)
	raw = append(raw, checksum[:2]...)
	raw = append(raw, onionVersionV3)
	return strings.ToLower(base32NoPad.EncodeToString(raw)) + ".onion"
}

func onionChecksumV3(pubkey []byte) []byte {
	h := sha3.New256()
	h.Write([]byte(onionChecksumConstant))
	h.Write(pubkey)
	h.Write([]byte{onionVersionV3})
	return h.Sum(nil)
}

// ParseAddressV3 decodes a v3 onion address (with or without the
// trailing ".onion") and verifies its embedded checksum and version
// byte, returning the public key it encodes.
func ParseAddressV3(address string) (*PublicKeyV3, error) {
	body := strings.TrimSuffix(strings.ToLower(address), ".onion")
	raw, err := base32NoPad.DecodeString(strings.ToUpper(body))
	if err != nil {
		return nil, errors.Wrap(ErrOnionBase32Decode, "%v", err)
	}
	if len(raw) != 35 {
		return nil, errors.Wrap(ErrOnionAddressLength, "decoded %d bytes, want 35", len(raw))
	}
	pubkey, checksum, version := raw[:32], raw[32:34], raw[34]
	if version != onionVersionV3 {
		return nil, errors.Wrap(ErrOnionInvalidVersion, "got %d", version)
	}
	want := onionChecksumV3(pubkey)
	if checksum[0] != want[0] || checksum[1] != want[1] {
		return nil, ErrOnionChecksumMismatch
	}
	return NewPublicKeyV3FromBytes(pubkey)
}

//----------------------------------------------------------------------
// Secret key / ADD_ONION wire form
//----------------------------------------------------------------------

// SecretKeyV3 holds the Tor control-port "expanded" ed25519 secret key
// form: the clamped scalar followed by the SHA-512 hash prefix, as
// produced by the standard ed25519 key-expansion step (RFC 8032
// section 5.1.5) and required verbatim by ADD_ONION's ED25519-V3:
// argument. Go's crypto/ed25519 never exposes this intermediate form
// on its own -- it is recomputed internally on every signature -- so
// it is derived here directly from the seed with stdlib's SHA-512
// rather than with any curve arithmetic of our own.
type SecretKeyV3 struct {
	expanded [64]byte
	public   PublicKeyV3
}

// GenerateSecretKeyV3 creates a fresh, randomly seeded v3 identity.
func GenerateSecretKeyV3() (*SecretKeyV3, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, errors.Wrap(err, "generating ed25519 seed")
	}
	return newSecretKeyV3FromSeed(seed)
}

func newSecretKeyV3FromSeed(seed []byte) (*SecretKeyV3, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Wrap(ErrOnionInvalidKeyLength, "seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.Wrap(ErrOnionInvalidKeyLength, "unexpected public key type")
	}
	pk, err := NewPublicKeyV3FromBytes(pub)
	if err != nil {
		return nil, err
	}

	h := sha512.Sum512(seed)
	var expanded [64]byte
	copy(expanded[:32], h[:32])
	expanded[0] &= 0xf8
	expanded[31] &= 0x7f
	expanded[31] |= 0x40
	copy(expanded[32:], h[32:])

	return &SecretKeyV3{expanded: expanded, public: *pk}, nil
}

// NewSecretKeyV3FromExpanded wraps an already-expanded 64-byte secret
// key together with the public key it corresponds to. Tor never hands
// back a bare expanded key without also giving the ServiceID (and
// thus the public key) in the same ADD_ONION reply, so callers
// persisting a key for reuse across Tor restarts always have both
// halves available; recovering the public key from the scalar alone
// would require curve scalar multiplication this package does not
// implement.
func NewSecretKeyV3FromExpanded(expanded []byte, public *PublicKeyV3) (*SecretKeyV3, error) {
	if len(expanded) != 64 {
		return nil, errors.Wrap(ErrOnionInvalidKeyLength, "expanded secret key must be 64 bytes, got %d", len(expanded))
	}
	if public == nil {
		return nil, errors.Wrap(ErrOnionInvalidKeyLength, "public key is required alongside an expanded secret key")
	}
	sk := &SecretKeyV3{public: *public}
	copy(sk.expanded[:], expanded)
	return sk, nil
}

// Public returns the public key matching this secret key.
func (sk *SecretKeyV3) Public() *PublicKeyV3 {
	return &sk.public
}

// wireString returns the ADD_ONION ED25519-V3: argument value: the
// base64 encoding of the 64-byte expanded secret key.
func (sk *SecretKeyV3) wireString() string {
	return base64.StdEncoding.EncodeToString(sk.expanded[:])
}
