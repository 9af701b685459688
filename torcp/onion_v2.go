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
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // required by rend-spec-v2.txt, not chosen for strength
	"crypto/x509"
	"encoding/base64"
	"strings"

	"github.com/bfix/torcp/errors"
)

// SecretKeyV2 is a legacy (rend-spec-v2.txt) 1024-bit RSA onion
// service key. v2 onion services were removed from the live Tor
// network in 2021; this type remains so a client can still exercise
// every documented ADD_ONION variant, e.g. against a recorded control
// session or a test Tor build with DisableV2 unset.
type SecretKeyV2 struct {
	key *rsa.PrivateKey
}

// GenerateSecretKeyV2 creates a fresh RSA key of the given size for a
// v2 service. rend-spec-v2.txt requires 1024-bit keys and Tor will
// reject anything else; bits is passed to rsa.GenerateKey as given and
// is not checked here.
func GenerateSecretKeyV2(bits int) (*SecretKeyV2, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "generating %d-bit RSA key", bits)
	}
	return &SecretKeyV2{key: key}, nil
}

// NewSecretKeyV2FromDER wraps a PKCS#1 DER-encoded RSA private key.
func NewSecretKeyV2FromDER(der []byte) (*SecretKeyV2, error) {
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "parsing RSA private key DER")
	}
	return &SecretKeyV2{key: key}, nil
}

// wireString returns the ADD_ONION RSA1024: argument value: the
// base64 encoding of the PKCS#1 DER private key.
func (sk *SecretKeyV2) wireString() string {
	return base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PrivateKey(sk.key))
}

// AddressV2 derives the legacy 16-character onion address from the
// key's public half: the first 10 bytes of SHA-1 over the DER-encoded
// public key, base32-encoded.
func (sk *SecretKeyV2) AddressV2() (string, error) {
	return addressV2FromPublicKey(&sk.key.PublicKey)
}

func addressV2FromPublicKey(pub *rsa.PublicKey) (string, error) {
	der := x509.MarshalPKCS1PublicKey(pub)
	sum := sha1.Sum(der)
	return strings.ToLower(base32NoPad.EncodeToString(sum[:10])) + ".onion", nil
}
