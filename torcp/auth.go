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

// Package torcp is a client for the Tor control-port protocol as
// defined in
// https://github.com/torproject/torspec/blob/master/control-spec.txt:
// dial a control port, authenticate, inspect and modify the running
// Tor's configuration, publish and remove onion services, and receive
// asynchronous event notifications. It also models the onion-service
// identity keys (v3 ed25519, legacy v2 RSA) and derives onion
// addresses from them.
package torcp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/bfix/torcp/errors"
	"github.com/bfix/torcp/logger"
)

// safeCookieClientKey and safeCookieServerKey are the fixed HMAC keys
// defined by the control-spec SAFECOOKIE handshake: one authenticates
// the client's half, the other the server's.
var (
	safeCookieClientKey = []byte("Tor safe cookie authentication controller-to-server hash")
	safeCookieServerKey = []byte("Tor safe cookie authentication server-to-controller hash")
)

// TorAuthMethod names one of the authentication methods a control port
// may advertise in its PROTOCOLINFO reply.
type TorAuthMethod int

const (
	AuthNull TorAuthMethod = iota
	AuthHashedPassword
	AuthCookie
	AuthSafeCookie
)

func (m TorAuthMethod) String() string {
	switch m {
	case AuthNull:
		return "NULL"
	case AuthHashedPassword:
		return "HASHEDPASSWORD"
	case AuthCookie:
		return "COOKIE"
	case AuthSafeCookie:
		return "SAFECOOKIE"
	default:
		return "UNKNOWN"
	}
}

func parseAuthMethod(s string) (TorAuthMethod, error) {
	switch strings.ToUpper(s) {
	case "NULL":
		return AuthNull, nil
	case "HASHEDPASSWORD":
		return AuthHashedPassword, nil
	case "COOKIE":
		return AuthCookie, nil
	case "SAFECOOKIE":
		return AuthSafeCookie, nil
	default:
		return 0, errors.Wrap(ErrInvalidFormat, "unknown auth method %q", s)
	}
}

// PreAuthInfo is the parsed content of a PROTOCOLINFO reply: what the
// control port is willing to accept before anything has been
// authenticated.
type PreAuthInfo struct {
	ProtocolVersion int
	AuthMethods     []TorAuthMethod
	CookieFile      string
	TorVersion      string
}

// HasMethod reports whether m was among the advertised auth methods.
func (p *PreAuthInfo) HasMethod(m TorAuthMethod) bool {
	for _, am := range p.AuthMethods {
		if am == m {
			return true
		}
	}
	return false
}

// AuthData is the credential supplied to AUTHENTICATE, tagged by
// Method. Only the fields relevant to Method are meaningful.
type AuthData struct {
	Method   TorAuthMethod
	Password string // AuthHashedPassword: the plaintext password
	Cookie   []byte // AuthCookie / AuthSafeCookie: the 32-byte cookie
}

// MakeAuthData builds credentials for an auth method that needs no
// caller-supplied secret, checking NULL, then SAFECOOKIE, then COOKIE.
// The cookie variants read the 32-byte cookie file advertised in
// PreAuthInfo. HASHEDPASSWORD is never selected here; a caller holding
// a password constructs its AuthData directly.
func MakeAuthData(info *PreAuthInfo) (*AuthData, error) {
	switch {
	case info.HasMethod(AuthNull):
		return &AuthData{Method: AuthNull}, nil

	case info.HasMethod(AuthSafeCookie):
		cookie, err := readCookieFile(info.CookieFile)
		if err != nil {
			return nil, err
		}
		return &AuthData{Method: AuthSafeCookie, Cookie: cookie}, nil

	case info.HasMethod(AuthCookie):
		cookie, err := readCookieFile(info.CookieFile)
		if err != nil {
			return nil, err
		}
		return &AuthData{Method: AuthCookie, Cookie: cookie}, nil

	default:
		return nil, ErrNoAutomaticAuth
	}
}

func readCookieFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading cookie file %q", path)
	}
	if len(data) != 32 {
		return nil, errors.Wrap(ErrInvalidCookieLength, "cookie file %q has %d bytes", path, len(data))
	}
	return data, nil
}

//----------------------------------------------------------------------
// Unauthenticated connection
//----------------------------------------------------------------------

// UnauthenticatedConn is a freshly dialed control connection that has
// not yet sent AUTHENTICATE. It can only be used once: Authenticate
// consumes it and returns an AuthenticatedConn in its place, mirroring
// the Tor control port's own one-way state transition.
type UnauthenticatedConn struct {
	conn     net.Conn
	framer   *replyFramer
	fetched  bool
	consumed bool
}

// NewUnauthenticatedConn wraps an already-dialed net.Conn. Most callers
// should use Dial or DialContext instead of calling this directly.
func NewUnauthenticatedConn(conn net.Conn) *UnauthenticatedConn {
	return &UnauthenticatedConn{conn: conn, framer: newReplyFramer(conn)}
}

func (c *UnauthenticatedConn) checkConsumed() error {
	if c.consumed {
		return ErrConnectionConsumed
	}
	return nil
}

func (c *UnauthenticatedConn) sendCommand(line string) (*Reply, error) {
	logger.Debugf("torcp: > %s", line)
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", line); err != nil {
		return nil, errors.Wrap(err, "writing command %q", line)
	}
	reply, err := c.framer.ReadReply()
	if err != nil {
		return nil, errors.Wrap(err, "reading reply to %q", line)
	}
	logger.Debugf("torcp: < %d %v", reply.Code, reply.Lines)
	return reply, nil
}

// ProtocolInfo issues PROTOCOLINFO and parses the result. It may only
// be called once per connection.
func (c *UnauthenticatedConn) ProtocolInfo() (*PreAuthInfo, error) {
	if err := c.checkConsumed(); err != nil {
		return nil, err
	}
	if c.fetched {
		return nil, ErrInfoFetchedTwice
	}
	reply, err := c.sendCommand("PROTOCOLINFO 1")
	if err != nil {
		return nil, err
	}
	if reply.Code != 250 {
		return nil, errors.Wrap(ErrInvalidResponseCode, "PROTOCOLINFO returned %d", reply.Code)
	}
	c.fetched = true
	return parseProtocolInfo(reply)
}

func parseProtocolInfo(reply *Reply) (*PreAuthInfo, error) {
	if len(reply.Lines) < 3 {
		return nil, errors.Wrap(ErrInvalidFormat, "PROTOCOLINFO reply has %d lines, want at least 3", len(reply.Lines))
	}
	if reply.Lines[0] != "PROTOCOLINFO 1" {
		return nil, errors.Wrap(ErrInvalidFormat, "PROTOCOLINFO first line %q, want %q", reply.Lines[0], "PROTOCOLINFO 1")
	}
	if reply.Lines[len(reply.Lines)-1] != "OK" {
		return nil, errors.Wrap(ErrInvalidFormat, "PROTOCOLINFO last line %q, want %q", reply.Lines[len(reply.Lines)-1], "OK")
	}
	info := &PreAuthInfo{}
	for _, line := range reply.Lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "PROTOCOLINFO":
			if len(fields) < 2 {
				return nil, errors.Wrap(ErrInvalidFormat, "PROTOCOLINFO line %q", line)
			}
			v, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, errors.Wrap(ErrInvalidFormat, "PROTOCOLINFO version %q", fields[1])
			}
			info.ProtocolVersion = v

		case "AUTH":
			for _, f := range fields[1:] {
				key, value, err := ParseSingleKeyValue(f)
				if err != nil || key != "METHODS" {
					continue
				}
				for _, m := range strings.Split(value, ",") {
					am, err := parseAuthMethod(m)
					if err != nil {
						return nil, err
					}
					info.AuthMethods = append(info.AuthMethods, am)
				}
			}
			// The cookie path is unquoted from the raw line, not from a
			// whitespace-split field: a quoted path may contain spaces.
			if idx := strings.Index(line, "COOKIEFILE="); idx >= 0 {
				_, decoded, err := UnquoteString(line[idx+len("COOKIEFILE="):])
				if err != nil {
					return nil, err
				}
				info.CookieFile = decoded
			}

		case "VERSION":
			for _, f := range fields[1:] {
				key, value, err := ParseSingleKeyValue(f)
				if err != nil {
					continue
				}
				if key == "Tor" {
					_, decoded, err := UnquoteString(value)
					if err != nil {
						return nil, err
					}
					info.TorVersion = decoded
				}
			}
		}
	}
	return info, nil
}

// Authenticate sends AUTHENTICATE built from data, consuming this
// connection. On success it returns an AuthenticatedConn over the same
// underlying transport. A failure once the exchange has started still
// leaves the connection consumed and not reusable, matching the control
// port's own behavior of closing on a failed AUTHENTICATE in most
// configurations; invalid auth data is rejected before anything is
// sent and leaves the connection unconsumed.
func (c *UnauthenticatedConn) Authenticate(data *AuthData) (*AuthenticatedConn, error) {
	if err := c.checkConsumed(); err != nil {
		return nil, err
	}
	// Argument validation happens before the connection is consumed:
	// nothing has touched the wire yet, so the caller may retry with
	// corrected credentials.
	switch data.Method {
	case AuthCookie, AuthSafeCookie:
		if len(data.Cookie) != 32 {
			return nil, ErrInvalidCookieLength
		}
	case AuthNull, AuthHashedPassword:
	default:
		return nil, errors.Wrap(ErrInvalidFormat, "unsupported auth method %v", data.Method)
	}
	c.consumed = true

	var line string
	switch data.Method {
	case AuthNull:
		line = "AUTHENTICATE"

	case AuthHashedPassword:
		line = fmt.Sprintf("AUTHENTICATE %s", QuoteString([]byte(data.Password)))

	case AuthCookie:
		line = fmt.Sprintf("AUTHENTICATE %s", upperHex(data.Cookie))

	case AuthSafeCookie:
		return c.authenticateSafeCookie(data.Cookie)
	}

	reply, err := c.sendCommand(line)
	if err != nil {
		return nil, err
	}
	if reply.Code != 250 {
		return nil, errors.Wrap(ErrInvalidResponseCode, "AUTHENTICATE returned %d: %v", reply.Code, reply.Lines)
	}
	return newAuthenticatedConn(c.conn, c.framer), nil
}

// authenticateSafeCookie runs the AUTHCHALLENGE/AUTHENTICATE exchange
// for SAFECOOKIE. The server's half of the handshake is verified
// before the client hash is sent: an endpoint that cannot prove
// knowledge of the cookie does not get to see our proof either.
func (c *UnauthenticatedConn) authenticateSafeCookie(cookie []byte) (*AuthenticatedConn, error) {
	clientNonce := make([]byte, 32)
	if _, err := rand.Read(clientNonce); err != nil {
		return nil, errors.Wrap(err, "generating client nonce")
	}

	reply, err := c.sendCommand(fmt.Sprintf("AUTHCHALLENGE SAFECOOKIE %s", upperHex(clientNonce)))
	if err != nil {
		return nil, err
	}
	if reply.Code != 250 || len(reply.Lines) != 1 {
		return nil, errors.Wrap(ErrInvalidResponseCode, "AUTHCHALLENGE returned %d: %v", reply.Code, reply.Lines)
	}

	// The challenge line has a single fixed layout; anything else --
	// reordered fields, duplicates, trailing garbage -- is rejected
	// outright rather than scanned for salvageable keys.
	const (
		hashOff  = len("AUTHCHALLENGE SERVERHASH=")
		nonceOff = hashOff + 64 + len(" SERVERNONCE=")
		lineLen  = nonceOff + 64
	)
	line := reply.Lines[0]
	if len(line) != lineLen ||
		line[:hashOff] != "AUTHCHALLENGE SERVERHASH=" ||
		line[hashOff+64:nonceOff] != " SERVERNONCE=" {
		return nil, errors.Wrap(ErrInvalidFormat, "malformed AUTHCHALLENGE line %q", line)
	}
	serverHash, err := hex.DecodeString(line[hashOff : hashOff+64])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidHex, "SERVERHASH")
	}
	serverNonce, err := hex.DecodeString(line[nonceOff : nonceOff+64])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidHex, "SERVERNONCE")
	}

	material := concatBytes(cookie, clientNonce, serverNonce)

	expectedServerHash := hmacSHA256(safeCookieServerKey, material)
	if !hmac.Equal(expectedServerHash, serverHash) {
		return nil, ErrServerHashMismatch
	}

	clientHash := hmacSHA256(safeCookieClientKey, material)
	reply, err = c.sendCommand(fmt.Sprintf("AUTHENTICATE %s", upperHex(clientHash)))
	if err != nil {
		return nil, err
	}
	if reply.Code != 250 {
		return nil, errors.Wrap(ErrInvalidResponseCode, "AUTHENTICATE returned %d: %v", reply.Code, reply.Lines)
	}
	return newAuthenticatedConn(c.conn, c.framer), nil
}

// upperHex renders b as uppercase hex, the casing control-spec.txt
// requires for AUTHCHALLENGE and AUTHENTICATE arguments.
func upperHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func concatBytes(parts ...[]byte) []byte {
	var total int
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Close closes the underlying transport without authenticating.
func (c *UnauthenticatedConn) Close() error {
	return c.conn.Close()
}
