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
	"testing"
)

func TestGetInfoAcross(t *testing.T) {
	const numDaemons = 4
	conns := make([]*AuthenticatedConn, numDaemons)
	for i := 0; i < numDaemons; i++ {
		version := fmt.Sprintf("0.4.8.%d", i)
		conns[i], _ = newAuthenticatedPair(t, func(cmd string) string {
			if cmd == "GETINFO version" {
				return "250-version=" + version + "\r\n250 OK\r\n"
			}
			return ""
		})
	}

	results, err := GetInfoAcross(conns, 2, "version")
	if err != nil {
		t.Fatal(err)
	}
	for i, res := range results {
		want := fmt.Sprintf("0.4.8.%d", i)
		if len(res["version"]) != 1 || res["version"][0] != want {
			t.Fatalf("controller %d: got %v, want version %q", i, res, want)
		}
	}
}

func TestGetInfoAcrossPropagatesError(t *testing.T) {
	good, _ := newAuthenticatedPair(t, func(cmd string) string {
		return "250-version=0.4.8.9\r\n250 OK\r\n"
	})
	bad, _ := newAuthenticatedPair(t, func(cmd string) string {
		return "551 Internal error\r\n"
	})

	if _, err := GetInfoAcross([]*AuthenticatedConn{good, bad}, 0, "version"); err == nil {
		t.Fatal("expected the failing controller's error to propagate")
	}
}

func TestSignalAcross(t *testing.T) {
	const numDaemons = 3
	conns := make([]*AuthenticatedConn, numDaemons)
	captured := make([]string, numDaemons)
	for i := 0; i < numDaemons; i++ {
		i := i
		conns[i], _ = newAuthenticatedPair(t, func(cmd string) string {
			captured[i] = cmd
			return "250 OK\r\n"
		})
	}

	if err := SignalAcross(conns, 0, SignalNewnym); err != nil {
		t.Fatal(err)
	}
	for i, cmd := range captured {
		if cmd != "SIGNAL NEWNYM" {
			t.Fatalf("controller %d received %q", i, cmd)
		}
	}
}
