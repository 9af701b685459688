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
	"context"
	"net"
	"time"

	"github.com/bfix/torcp/errors"
)

// DialOptions configures Dial/DialContext. The zero value dials
// "tcp" to "127.0.0.1:9051" (Tor's conventional control port) with no
// timeout and the default reply-size ceiling.
type DialOptions struct {
	Network      string
	Address      string
	Timeout      time.Duration
	ReplyCeiling int
}

// Default fills any zero-valued field of o with its default: network
// "tcp", address "127.0.0.1:9051", and the default reply-size ceiling.
func (o DialOptions) Default() DialOptions {
	if o.Network == "" {
		o.Network = "tcp"
	}
	if o.Address == "" {
		o.Address = "127.0.0.1:9051"
	}
	if o.ReplyCeiling == 0 {
		o.ReplyCeiling = DefaultReplyCeiling
	}
	return o
}

// Dial connects to a control port and returns an UnauthenticatedConn.
func Dial(opts DialOptions) (*UnauthenticatedConn, error) {
	return DialContext(context.Background(), opts)
}

// DialContext is Dial with ctx honored for the duration of connection
// setup (it does not bound subsequent command round trips).
func DialContext(ctx context.Context, opts DialOptions) (*UnauthenticatedConn, error) {
	opts = opts.Default()
	dialer := net.Dialer{Timeout: opts.Timeout}
	conn, err := dialer.DialContext(ctx, opts.Network, opts.Address)
	if err != nil {
		return nil, errors.Wrap(err, "dialing %s %s", opts.Network, opts.Address)
	}
	uc := NewUnauthenticatedConn(conn)
	uc.framer = newReplyFramerWithCeiling(conn, opts.ReplyCeiling)
	return uc, nil
}
