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
	"errors"
	"testing"
	"unicode/utf8"
)

func TestQuoteStringRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("hello world"),
		[]byte("with\ttab\nand\rreturn"),
		[]byte(`a "quoted" backslash \`),
		{0x00, 0x01, 0x7f, 0x80, 0xff},
		[]byte(""),
	}
	for _, data := range cases {
		q := QuoteString(data)
		if len(q) < 2 || q[0] != '"' {
			t.Fatalf("QuoteString(%v) = %q, missing leading quote", data, q)
		}
		end, decoded, err := UnquoteString(q)
		if utf8.Valid(data) {
			if err != nil {
				t.Fatalf("UnquoteString(%q) error: %v", q, err)
			}
		} else if !errors.Is(err, ErrInvalidUTF8) {
			// non-UTF-8 input still round-trips bytewise, but flagged
			t.Fatalf("UnquoteString(%q) error = %v, want ErrInvalidUTF8", q, err)
		}
		if end != len(q)-1 {
			t.Fatalf("UnquoteString(%q) end = %d, want %d", q, end, len(q)-1)
		}
		if decoded != string(data) {
			t.Fatalf("round trip mismatch: got %q want %q", decoded, string(data))
		}
	}
}

func TestQuoteStringInjective(t *testing.T) {
	inputs := [][]byte{
		[]byte("a"), []byte(`\n`), []byte("\n"), []byte("7779"),
		{0x07, '7', '7', '9'}, []byte(`"`), []byte(`\"`),
	}
	seen := make(map[string][]byte)
	for _, in := range inputs {
		q := QuoteString(in)
		if prev, ok := seen[q]; ok {
			t.Fatalf("QuoteString collision: %q and %q both encode to %q", prev, in, q)
		}
		seen[q] = in
	}
}

func TestUnquoteStringNotQuoted(t *testing.T) {
	end, value, err := UnquoteString("bareword")
	if err != nil || end != -1 || value != "bareword" {
		t.Fatalf("got (%d, %q, %v), want (-1, %q, nil)", end, value, err, "bareword")
	}
}

func TestUnquoteStringOctalOverflow(t *testing.T) {
	// \777 is a full 3-digit triple (511) that overflows a byte, so the
	// escape is abandoned and the digits themselves are emitted as if
	// the backslash had been ignored.
	end, value, err := UnquoteString(`"\7779"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "7779"
	if value != want {
		t.Fatalf("got %q, want %q", value, want)
	}
	if end != len(`"\7779"`)-1 {
		t.Fatalf("end = %d, want %d", end, len(`"\7779"`)-1)
	}
}

func TestUnquoteStringUnterminated(t *testing.T) {
	end, value, err := UnquoteString(`"no closing quote`)
	if err != nil || end != -1 || value != `"no closing quote` {
		t.Fatalf("got (%d, %q, %v), want unchanged input", end, value, err)
	}
}

func TestParseSingleKeyValue(t *testing.T) {
	key, value, err := ParseSingleKeyValue("SocksPort=9050")
	if err != nil || key != "SocksPort" || value != "9050" {
		t.Fatalf("got (%q, %q, %v)", key, value, err)
	}

	key, value, err = ParseSingleKeyValue("HiddenServiceDir=")
	if err != nil || key != "HiddenServiceDir" || value != "" {
		t.Fatalf("got (%q, %q, %v)", key, value, err)
	}

	if _, _, err := ParseSingleKeyValue("no-equals-sign"); err == nil {
		t.Fatal("expected error for missing '='")
	}

	if _, _, err := ParseSingleKeyValue("=novalue"); err == nil {
		t.Fatal("expected error for empty key")
	}
}
