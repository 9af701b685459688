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
	"bufio"
	"bytes"
	"encoding/hex"
	"net"
	"os"
	"strings"
	"testing"
)

// fakeControlPort reads CRLF-terminated command lines from one side of
// a net.Pipe and hands them to handle, which writes back whatever
// reply lines it likes (each already CRLF-terminated by the caller).
func fakeControlPort(t *testing.T, server net.Conn, handle func(cmd string) string) {
	t.Helper()
	go func() {
		r := bufio.NewReader(server)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.TrimRight(line, "\r\n")
			reply := handle(cmd)
			if reply == "" {
				return
			}
			if _, err := server.Write([]byte(reply)); err != nil {
				return
			}
		}
	}()
}

func TestProtocolInfoParsing(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	fakeControlPort(t, server, func(cmd string) string {
		if strings.HasPrefix(cmd, "PROTOCOLINFO") {
			return "250-PROTOCOLINFO 1\r\n" +
				"250-AUTH METHODS=COOKIE,SAFECOOKIE COOKIEFILE=\"/var/run/tor/control.authcookie\"\r\n" +
				"250-VERSION Tor=\"0.4.8.9\"\r\n" +
				"250 OK\r\n"
		}
		return ""
	})

	uc := NewUnauthenticatedConn(client)
	info, err := uc.ProtocolInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.ProtocolVersion != 1 {
		t.Fatalf("protocol version = %d", info.ProtocolVersion)
	}
	if !info.HasMethod(AuthCookie) || !info.HasMethod(AuthSafeCookie) {
		t.Fatalf("auth methods = %v", info.AuthMethods)
	}
	if info.CookieFile != "/var/run/tor/control.authcookie" {
		t.Fatalf("cookie file = %q", info.CookieFile)
	}
	if info.TorVersion != "0.4.8.9" {
		t.Fatalf("tor version = %q", info.TorVersion)
	}

	// A second fetch must be rejected.
	if _, err := uc.ProtocolInfo(); err != ErrInfoFetchedTwice {
		t.Fatalf("got %v, want ErrInfoFetchedTwice", err)
	}
}

func TestProtocolInfoCookiePathWithSpaces(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	fakeControlPort(t, server, func(cmd string) string {
		if strings.HasPrefix(cmd, "PROTOCOLINFO") {
			return "250-PROTOCOLINFO 1\r\n" +
				"250-AUTH METHODS=COOKIE COOKIEFILE=\"/Users/some user/tor/control auth cookie\"\r\n" +
				"250-VERSION Tor=\"0.4.8.9\"\r\n" +
				"250 OK\r\n"
		}
		return ""
	})

	uc := NewUnauthenticatedConn(client)
	info, err := uc.ProtocolInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.CookieFile != "/Users/some user/tor/control auth cookie" {
		t.Fatalf("cookie file = %q", info.CookieFile)
	}
}

func TestAuthenticateNull(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	fakeControlPort(t, server, func(cmd string) string {
		if cmd == "AUTHENTICATE" {
			return "250 OK\r\n"
		}
		return ""
	})

	uc := NewUnauthenticatedConn(client)
	ac, err := uc.Authenticate(&AuthData{Method: AuthNull})
	if err != nil {
		t.Fatal(err)
	}
	if ac == nil {
		t.Fatal("nil authenticated connection")
	}

	// The unauthenticated value is now consumed.
	if _, err := uc.ProtocolInfo(); err != ErrConnectionConsumed {
		t.Fatalf("got %v, want ErrConnectionConsumed", err)
	}
}

func TestAuthenticateSafeCookieVerifiesServerHash(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cookie := bytes.Repeat([]byte{0x42}, 32)
	serverNonce := bytes.Repeat([]byte{0x37}, 32)

	var wantClientAuth string
	fakeControlPort(t, server, func(cmd string) string {
		switch {
		case strings.HasPrefix(cmd, "AUTHCHALLENGE SAFECOOKIE "):
			clientNonceHex := strings.TrimPrefix(cmd, "AUTHCHALLENGE SAFECOOKIE ")
			clientNonce, err := hex.DecodeString(clientNonceHex)
			if err != nil || len(clientNonce) != 32 {
				t.Errorf("bad client nonce %q: %v", clientNonceHex, err)
				return ""
			}
			material := concatBytes(cookie, clientNonce, serverNonce)
			serverHash := hmacSHA256(safeCookieServerKey, material)
			wantClientAuth = "AUTHENTICATE " + upperHex(hmacSHA256(safeCookieClientKey, material))
			return "250 AUTHCHALLENGE SERVERHASH=" + hex.EncodeToString(serverHash) +
				" SERVERNONCE=" + hex.EncodeToString(serverNonce) + "\r\n"

		case strings.HasPrefix(cmd, "AUTHENTICATE "):
			if cmd != wantClientAuth {
				t.Errorf("client hash line %q, want %q", cmd, wantClientAuth)
				return "515 Authentication failed\r\n"
			}
			return "250 OK\r\n"

		default:
			return ""
		}
	})

	uc := NewUnauthenticatedConn(client)
	ac, err := uc.Authenticate(&AuthData{Method: AuthSafeCookie, Cookie: cookie})
	if err != nil {
		t.Fatal(err)
	}
	if ac == nil {
		t.Fatal("nil authenticated connection")
	}
}

func TestAuthenticateSafeCookieRejectsBadServerHash(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cookie := make([]byte, 32)
	serverNonce := make([]byte, 32)

	fakeControlPort(t, server, func(cmd string) string {
		if strings.HasPrefix(cmd, "AUTHCHALLENGE SAFECOOKIE ") {
			badHash := make([]byte, 32) // all zero, won't match the real HMAC
			return "250 AUTHCHALLENGE SERVERHASH=" + hex.EncodeToString(badHash) +
				" SERVERNONCE=" + hex.EncodeToString(serverNonce) + "\r\n"
		}
		return ""
	})

	uc := NewUnauthenticatedConn(client)
	_, err := uc.Authenticate(&AuthData{Method: AuthSafeCookie, Cookie: cookie})
	if err != ErrServerHashMismatch {
		t.Fatalf("got %v, want ErrServerHashMismatch", err)
	}
}

func TestAuthenticateSafeCookieRejectsMalformedChallenge(t *testing.T) {
	cookie := make([]byte, 32)
	lines := []string{
		// reordered fields
		"250 AUTHCHALLENGE SERVERNONCE=" + strings.Repeat("37", 32) +
			" SERVERHASH=" + strings.Repeat("42", 32) + "\r\n",
		// trailing garbage
		"250 AUTHCHALLENGE SERVERHASH=" + strings.Repeat("42", 32) +
			" SERVERNONCE=" + strings.Repeat("37", 32) + " EXTRA=1\r\n",
		// truncated nonce
		"250 AUTHCHALLENGE SERVERHASH=" + strings.Repeat("42", 32) +
			" SERVERNONCE=" + strings.Repeat("37", 16) + "\r\n",
	}
	for _, reply := range lines {
		client, server := net.Pipe()
		fakeControlPort(t, server, func(cmd string) string {
			if strings.HasPrefix(cmd, "AUTHCHALLENGE SAFECOOKIE ") {
				return reply
			}
			return ""
		})
		uc := NewUnauthenticatedConn(client)
		if _, err := uc.Authenticate(&AuthData{Method: AuthSafeCookie, Cookie: cookie}); err == nil {
			t.Fatalf("challenge %q accepted, want rejection", strings.TrimRight(reply, "\r\n"))
		}
		client.Close()
		server.Close()
	}
}

func TestMakeAuthDataPrefersSafeCookieOverCookie(t *testing.T) {
	info := &PreAuthInfo{AuthMethods: []TorAuthMethod{AuthHashedPassword, AuthCookie, AuthSafeCookie}}
	info.CookieFile = writeTempCookie(t)

	data, err := MakeAuthData(info)
	if err != nil {
		t.Fatal(err)
	}
	if data.Method != AuthSafeCookie {
		t.Fatalf("method = %v, want AuthSafeCookie", data.Method)
	}
}

func TestMakeAuthDataPrefersNull(t *testing.T) {
	info := &PreAuthInfo{AuthMethods: []TorAuthMethod{AuthSafeCookie, AuthNull}}
	data, err := MakeAuthData(info)
	if err != nil {
		t.Fatal(err)
	}
	if data.Method != AuthNull {
		t.Fatalf("method = %v, want AuthNull", data.Method)
	}
}

func TestMakeAuthDataNeverPicksPassword(t *testing.T) {
	info := &PreAuthInfo{AuthMethods: []TorAuthMethod{AuthHashedPassword}}
	if _, err := MakeAuthData(info); err != ErrNoAutomaticAuth {
		t.Fatalf("got %v, want ErrNoAutomaticAuth", err)
	}
}

func writeTempCookie(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "cookie-*")
	if err != nil {
		t.Fatal(err)
	}
	cookie := make([]byte, 32)
	if _, err := f.Write(cookie); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}
