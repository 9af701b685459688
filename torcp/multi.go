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

// Helpers for callers managing a fleet of Tor daemons. Each connection
// is still driven by exactly one goroutine at a time; concurrency here
// is across connections, never within one.

package torcp

import "golang.org/x/sync/errgroup"

// GetInfoAcross issues the same GETINFO against every controller
// concurrently, at most limit at a time (no bound when limit <= 0),
// and returns the results indexed like conns. The first command error
// is returned; results already gathered for other controllers are
// discarded with it.
func GetInfoAcross(conns []*AuthenticatedConn, limit int, keys ...string) ([]map[string][]string, error) {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	out := make([]map[string][]string, len(conns))
	for i, conn := range conns {
		i, conn := i, conn
		g.Go(func() error {
			res, err := conn.GetInfo(keys...)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SignalAcross sends sig to every controller concurrently, at most
// limit at a time (no bound when limit <= 0) -- the typical use is
// broadcasting NEWNYM to a pool of Tor instances. The first error is
// returned; the remaining sends still run to completion.
func SignalAcross(conns []*AuthenticatedConn, limit int, sig Signal) error {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, conn := range conns {
		conn := conn
		g.Go(func() error { return conn.SendSignal(sig) })
	}
	return g.Wait()
}
