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
	"fmt"
	"net"
	"strings"

	"github.com/bfix/torcp/errors"
	"github.com/bfix/torcp/logger"
)

// AuthenticatedConn is a control connection past AUTHENTICATE. Every
// exported method issues exactly one command and blocks until its
// final reply arrives, pumping any interleaved async (650) events to
// the installed handler along the way. There is no background
// goroutine: all I/O happens on the caller's own goroutine, so a
// connection must not be shared across goroutines without external
// serialization.
type AuthenticatedConn struct {
	conn   net.Conn
	framer *replyFramer

	eventHandler EventHandler
}

// newAuthenticatedConn wraps conn, already past AUTHENTICATE.
func newAuthenticatedConn(conn net.Conn, framer *replyFramer) *AuthenticatedConn {
	return &AuthenticatedConn{conn: conn, framer: framer}
}

// SetEventHandler installs the callback invoked for every async (650)
// reply encountered while a command is in flight. Pass nil to stop
// receiving events (they are still read off the wire and discarded,
// since Tor pushes them unsolicited). Call Noop to pump pending events
// when the caller is otherwise idle between commands.
func (c *AuthenticatedConn) SetEventHandler(h EventHandler) {
	c.eventHandler = h
}

// Close closes the transport.
func (c *AuthenticatedConn) Close() error {
	return c.conn.Close()
}

// sendCommand writes one command line, then reads replies off the
// framer until one arrives whose code is not 650. Every 650 reply
// along the way is dispatched to the event handler, synchronously, on
// this same call stack; a handler error aborts the command.
func (c *AuthenticatedConn) sendCommand(line string) (*Reply, error) {
	logger.Debugf("torcp: > %s", line)
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", line); err != nil {
		return nil, errors.Wrap(err, "writing command %q", line)
	}
	for {
		reply, err := c.framer.ReadReply()
		if err != nil {
			return nil, errors.Wrap(err, "reading reply to %q", line)
		}
		if reply.Code == 650 {
			if c.eventHandler != nil {
				if err := c.eventHandler(newAsyncEvent(reply)); err != nil {
					return nil, errors.Wrap(err, "event handler for %q", line)
				}
			}
			continue
		}
		logger.Debugf("torcp: < %d %v", reply.Code, reply.Lines)
		return reply, nil
	}
}

func (c *AuthenticatedConn) sendExpectOK(line string) error {
	reply, err := c.sendCommand(line)
	if err != nil {
		return err
	}
	if reply.Code != 250 {
		return errors.Wrap(ErrInvalidResponseCode, "%q returned %d: %v", line, reply.Code, reply.Lines)
	}
	return nil
}

//----------------------------------------------------------------------
// GETCONF / SETCONF
//----------------------------------------------------------------------

// GetConf issues GETCONF for a single keyword and returns one entry
// per line Tor echoed back, in reply order; a nil entry means that
// option is at its default. keyword must be uppercase letters and
// underscores only, matching Tor's own configuration-option naming.
func (c *AuthenticatedConn) GetConf(keyword string) ([]*string, error) {
	if !isConfKeyword(keyword) {
		return nil, errors.Wrap(ErrInvalidKeyword, "%q", keyword)
	}
	reply, err := c.sendCommand("GETCONF " + keyword)
	if err != nil {
		return nil, err
	}
	if reply.Code != 250 {
		return nil, errors.Wrap(ErrInvalidResponseCode, "GETCONF returned %d: %v", reply.Code, reply.Lines)
	}
	out := make([]*string, 0, len(reply.Lines))
	for _, line := range reply.Lines {
		key, value, err := ParseSingleKeyValue(line)
		if err != nil {
			// bare keyword, no "=value": option is at its default
			if !strings.EqualFold(line, keyword) {
				return nil, errors.Wrap(ErrInvalidFormat, "GETCONF %s echoed key %q", keyword, line)
			}
			out = append(out, nil)
			continue
		}
		if !strings.EqualFold(key, keyword) {
			return nil, errors.Wrap(ErrInvalidFormat, "GETCONF %s echoed key %q", keyword, key)
		}
		if end, decoded, derr := UnquoteString(value); derr == nil && end >= 0 {
			value = decoded
		}
		out = append(out, &value)
	}
	return out, nil
}

// isConfKeyword reports whether s is shaped like a Tor configuration
// option name: nonempty, uppercase ASCII letters and underscores only.
func isConfKeyword(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && c != '_' {
			return false
		}
	}
	return true
}

// ConfSetting is one SETCONF assignment. A nil Value requests the
// option's default instead of setting it, omitting "=value" entirely;
// this is distinct from a present-but-empty string, which sets the
// option to the empty string.
type ConfSetting struct {
	Key   string
	Value *string
}

// SetConf issues one SETCONF for all of settings, in order. Values are
// sent quote-encoded. An empty settings list is a no-op: nothing is
// written to the wire.
func (c *AuthenticatedConn) SetConf(settings []ConfSetting) error {
	if len(settings) == 0 {
		return nil
	}
	for _, s := range settings {
		if !isConfKeyword(s.Key) {
			return errors.Wrap(ErrInvalidKeyword, "%q", s.Key)
		}
	}
	var b strings.Builder
	b.WriteString("SETCONF")
	for _, s := range settings {
		b.WriteByte(' ')
		b.WriteString(s.Key)
		if s.Value != nil {
			b.WriteByte('=')
			b.WriteString(QuoteString([]byte(*s.Value)))
		}
	}
	return c.sendExpectOK(b.String())
}

//----------------------------------------------------------------------
// GETINFO
//----------------------------------------------------------------------

// GetInfo issues GETINFO for the given keys, unquoting values. Keys
// may repeat; Tor echoes back exactly one line per requested key
// instance plus a trailing "OK" marker, and the reply is rejected if
// the echoed keys do not match the request's multiplicities.
// GETINFO's key vocabulary is broader than GETCONF's, so keys are
// validated against the looser "-_/" option-name charset rather than
// GetConf's uppercase-only one.
func (c *AuthenticatedConn) GetInfo(keys ...string) (map[string][]string, error) {
	wanted := make(map[string]int)
	for _, k := range keys {
		if !isInfoKey(k) {
			return nil, errors.Wrap(ErrInvalidOption, "%q", k)
		}
		wanted[k]++
	}
	reply, err := c.sendCommand("GETINFO " + strings.Join(keys, " "))
	if err != nil {
		return nil, err
	}
	if reply.Code != 250 {
		return nil, errors.Wrap(ErrInvalidResponseCode, "GETINFO returned %d: %v", reply.Code, reply.Lines)
	}
	if len(reply.Lines) == 0 || reply.Lines[len(reply.Lines)-1] != "OK" {
		return nil, errors.Wrap(ErrInvalidFormat, "GETINFO reply missing trailing OK")
	}
	out := make(map[string][]string)
	for _, line := range reply.Lines[:len(reply.Lines)-1] {
		key, value, err := ParseSingleKeyValue(line)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidFormat, "GETINFO line %q", line)
		}
		if wanted[key] == 0 {
			return nil, errors.Wrap(ErrInvalidFormat, "GETINFO echoed unrequested key %q", key)
		}
		wanted[key]--
		if end, decoded, derr := UnquoteString(value); derr == nil && end >= 0 {
			value = decoded
		}
		out[key] = append(out[key], value)
	}
	for key, n := range wanted {
		if n != 0 {
			return nil, errors.Wrap(ErrInvalidFormat, "GETINFO reply short %d line(s) for key %q", n, key)
		}
	}
	return out, nil
}

// isInfoKey reports whether s is shaped like a GETINFO option name:
// nonempty ASCII alphanumerics plus '-', '_', '/'.
func isInfoKey(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '/':
		default:
			return false
		}
	}
	return true
}

//----------------------------------------------------------------------
// SETEVENTS / ownership / guards
//----------------------------------------------------------------------

// SetEvents subscribes to the given event names, replacing any
// previous subscription (SETEVENTS is not additive). Pass no names to
// unsubscribe from everything.
func (c *AuthenticatedConn) SetEvents(events ...string) error {
	return c.setEvents(false, events)
}

// SetEventsExtended is SetEvents with the EXTENDED modifier, asking
// Tor for the verbose form of each event's payload.
func (c *AuthenticatedConn) SetEventsExtended(events ...string) error {
	return c.setEvents(true, events)
}

func (c *AuthenticatedConn) setEvents(extended bool, events []string) error {
	for _, e := range events {
		if !isConfKeyword(e) {
			return errors.Wrap(ErrInvalidEvent, "%q", e)
		}
	}
	cmd := "SETEVENTS"
	if extended {
		cmd += " EXTENDED"
	}
	if len(events) > 0 {
		cmd += " " + strings.Join(events, " ")
	}
	return c.sendExpectOK(cmd)
}

// TakeOwnership makes this connection the owning controller: Tor exits
// when the connection closes, even without -f/--pid in effect.
func (c *AuthenticatedConn) TakeOwnership() error {
	return c.sendExpectOK("TAKEOWNERSHIP")
}

// DropOwnership reverts TakeOwnership.
func (c *AuthenticatedConn) DropOwnership() error {
	return c.sendExpectOK("DROPOWNERSHIP")
}

// DropGuards forgets all current entry guards.
func (c *AuthenticatedConn) DropGuards() error {
	return c.sendExpectOK("DROPGUARDS")
}

// Noop performs a harmless GETINFO round trip and discards the result.
// Any async events queued on the wire are read and dispatched to the
// handler along the way, so a caller with nothing else to send can
// still drain its subscription.
func (c *AuthenticatedConn) Noop() error {
	_, err := c.GetInfo("version")
	return err
}

//----------------------------------------------------------------------
// RESOLVE
//----------------------------------------------------------------------

// Resolve asks Tor to resolve hostname via the Tor network. The
// command itself only acknowledges that the request was queued; the
// result arrives asynchronously as an ADDRMAP event.
func (c *AuthenticatedConn) Resolve(hostname string) error {
	if !IsValidHostname(hostname) {
		return errors.Wrap(ErrInvalidHostname, "%q", hostname)
	}
	return c.sendExpectOK("RESOLVE " + hostname)
}

// ReverseResolve asks Tor to resolve the IPv4 address ip back to a
// hostname, also delivered asynchronously via an ADDRMAP event.
func (c *AuthenticatedConn) ReverseResolve(ip string) error {
	addr := net.ParseIP(ip)
	if addr == nil || addr.To4() == nil {
		return errors.Wrap(ErrInvalidHostname, "%q is not an IPv4 address", ip)
	}
	return c.sendExpectOK("RESOLVE mode=reverse " + ip)
}

// IsValidHostname reports whether s is shaped like a DNS hostname or
// dotted-quad/IPv6 address: ASCII letters, digits, '-', '.', ':'
// (for IPv6) only, non-empty, and not absurdly long.
func IsValidHostname(s string) bool {
	if s == "" || len(s) > 253 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == ':':
		default:
			return false
		}
	}
	return true
}

//----------------------------------------------------------------------
// SIGNAL
//----------------------------------------------------------------------

// SendSignal issues SIGNAL sig.
func (c *AuthenticatedConn) SendSignal(sig Signal) error {
	return c.sendExpectOK("SIGNAL " + string(sig))
}

//----------------------------------------------------------------------
// ADD_ONION / DEL_ONION
//----------------------------------------------------------------------

// AddOnionV3 publishes a v3 onion service for key and returns the
// service identifier Tor assigned. The key always stays with the
// caller, so DiscardPK is added to flags implicitly; Tor never sees a
// reason to echo the key back. maxStreams caps concurrent streams per
// rendezvous circuit when positive and is omitted from the request
// when zero.
func (c *AuthenticatedConn) AddOnionV3(key *SecretKeyV3, flags []OnionServiceFlag, maxStreams int, listeners []Listener) (string, error) {
	if key == nil {
		return "", errors.Wrap(ErrOnionInvalidKeyLength, "a v3 secret key is required")
	}
	return c.addOnion("ED25519-V3:"+key.wireString(), flags, maxStreams, listeners)
}

// AddOnionV2 publishes a legacy v2 onion service for key. v2 onion
// services have been removed from the Tor network; this remains only
// so a client talking to an old relay, or replaying a historical
// recording, can still exercise the full ADD_ONION surface.
func (c *AuthenticatedConn) AddOnionV2(key *SecretKeyV2, flags []OnionServiceFlag, maxStreams int, listeners []Listener) (string, error) {
	if key == nil {
		return "", errors.Wrap(ErrOnionInvalidKeyLength, "a v2 secret key is required")
	}
	return c.addOnion("RSA1024:"+key.wireString(), flags, maxStreams, listeners)
}

// withDiscardPK adds FlagDiscardPK to flags if it is not already
// present.
func withDiscardPK(flags []OnionServiceFlag) []OnionServiceFlag {
	for _, f := range flags {
		if f == FlagDiscardPK {
			return flags
		}
	}
	return append(append([]OnionServiceFlag{}, flags...), FlagDiscardPK)
}

func (c *AuthenticatedConn) addOnion(keyArg string, flags []OnionServiceFlag, maxStreams int, listeners []Listener) (string, error) {
	if len(listeners) == 0 {
		return "", errors.Wrap(ErrInvalidListenerSpecification, "at least one listener is required")
	}
	flags = withDiscardPK(flags)
	var b strings.Builder
	b.WriteString("ADD_ONION ")
	b.WriteString(keyArg)
	names := make([]string, len(flags))
	for i, f := range flags {
		names[i] = string(f)
	}
	b.WriteString(" Flags=")
	b.WriteString(strings.Join(names, ","))
	if maxStreams > 0 {
		fmt.Fprintf(&b, " MaxStreams=%d", maxStreams)
	}
	seenPorts := make(map[int]bool)
	for _, l := range listeners {
		if seenPorts[l.VirtualPort] {
			return "", errors.Wrap(ErrInvalidListenerSpecification, "duplicate virtual port %d", l.VirtualPort)
		}
		seenPorts[l.VirtualPort] = true
		b.WriteString(" Port=")
		b.WriteString(l.wireString())
	}

	reply, err := c.sendCommand(b.String())
	if err != nil {
		return "", err
	}
	if reply.Code != 250 {
		return "", errors.Wrap(ErrInvalidResponseCode, "ADD_ONION returned %d: %v", reply.Code, reply.Lines)
	}
	for _, line := range reply.Lines {
		key, value, err := ParseSingleKeyValue(line)
		if err != nil {
			continue
		}
		if key == "ServiceID" {
			return value, nil
		}
	}
	return "", errors.Wrap(ErrInvalidFormat, "ADD_ONION reply carries no ServiceID")
}

// DelOnion removes the onion service identified by serviceID (the
// address without its ".onion" suffix).
func (c *AuthenticatedConn) DelOnion(serviceID string) error {
	if !isValidServiceID(serviceID) {
		return errors.Wrap(ErrInvalidServiceID, "%q", serviceID)
	}
	return c.sendExpectOK("DEL_ONION " + serviceID)
}

// isValidServiceID restricts a DEL_ONION argument to the characters a
// v2 or v3 service ID can actually contain, closing off command
// injection via a crafted service ID string.
func isValidServiceID(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '/' || c == '=':
		default:
			return false
		}
	}
	return true
}
