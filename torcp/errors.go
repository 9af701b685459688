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

import "errors"

// Error taxonomy. Every failure surfaced by this package is, or wraps,
// one of these sentinels; use errors.Is to test for a kind.
var (
	// Encoding
	ErrInvalidUTF8   = errors.New("quoted string does not decode to valid utf-8")
	ErrInvalidHex    = errors.New("invalid hex encoding")
	ErrInvalidBase32 = errors.New("invalid base32 encoding")
	ErrInvalidBase64 = errors.New("invalid base64 encoding")

	// Framing
	ErrNonASCIIByte          = errors.New("non-ascii byte in reply")
	ErrInvalidCharacterFound = errors.New("invalid character at line position 3")
	ErrResponseCodeMismatch  = errors.New("response code mismatch across reply lines")
	ErrInvalidStatusCode     = errors.New("could not parse 3-digit status code")
	ErrTooManyBytesRead      = errors.New("too many bytes read for a single reply")

	// Semantic
	ErrInvalidResponseCode = errors.New("unexpected response status code")
	ErrInvalidFormat       = errors.New("invalid reply format")
	ErrInfoFetchedTwice    = errors.New("PROTOCOLINFO already fetched on this connection")

	// Argument
	ErrInvalidKeyword               = errors.New("invalid configuration keyword")
	ErrInvalidOption                = errors.New("invalid info option")
	ErrInvalidEvent                 = errors.New("invalid event name")
	ErrInvalidHostname              = errors.New("invalid hostname")
	ErrInvalidServiceID             = errors.New("invalid onion service identifier")
	ErrInvalidListenerSpecification = errors.New("invalid listener specification")

	// Auth
	ErrServerHashMismatch  = errors.New("safecookie server hash verification failed")
	ErrInvalidCookieLength = errors.New("cookie must be exactly 32 bytes")
	ErrNoAutomaticAuth     = errors.New("no automatic authentication method available")

	// Onion identities
	ErrOnionAddressLength    = errors.New("onion address has the wrong length")
	ErrOnionBase32Decode     = errors.New("onion address base32 decode failed")
	ErrOnionInvalidVersion   = errors.New("onion address version byte is not 3")
	ErrOnionChecksumMismatch = errors.New("onion address checksum mismatch")
	ErrOnionInvalidKeyLength = errors.New("onion key has the wrong length")
	ErrOnionNotOnCurve       = errors.New("onion public key bytes do not decode to a curve point")

	// Connection lifecycle
	ErrConnectionConsumed = errors.New("connection already authenticated; unauthenticated value must not be reused")
	ErrDistributorRetired = errors.New("event distributor already retired")
)
