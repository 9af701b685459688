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
	"strings"
	"testing"
)

func TestReadReplySingleFinalLine(t *testing.T) {
	f := newReplyFramer(strings.NewReader("250 OK\r\n"))
	reply, err := f.ReadReply()
	if err != nil {
		t.Fatal(err)
	}
	if reply.Code != 250 || len(reply.Lines) != 1 || reply.Lines[0] != "OK" {
		t.Fatalf("got %+v", reply)
	}
}

func TestReadReplyMidAndDataLines(t *testing.T) {
	raw := "250-A\r\n250+B\r\n second\r\n.\r\n250 OK\r\n"
	f := newReplyFramer(strings.NewReader(raw))
	reply, err := f.ReadReply()
	if err != nil {
		t.Fatal(err)
	}
	if reply.Code != 250 {
		t.Fatalf("code = %d", reply.Code)
	}
	want := []string{"A", "B\r\n second", "OK"}
	if len(reply.Lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(reply.Lines), len(want), reply.Lines)
	}
	for i := range want {
		if reply.Lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, reply.Lines[i], want[i])
		}
	}
}

func TestReadReplyCodeMismatch(t *testing.T) {
	f := newReplyFramer(strings.NewReader("250-A\r\n251 OK\r\n"))
	if _, err := f.ReadReply(); !errors.Is(err, ErrResponseCodeMismatch) {
		t.Fatalf("got %v, want ErrResponseCodeMismatch", err)
	}
}

func TestReadReplyInvalidSeparator(t *testing.T) {
	f := newReplyFramer(strings.NewReader("250*OK\r\n"))
	if _, err := f.ReadReply(); !errors.Is(err, ErrInvalidCharacterFound) {
		t.Fatalf("got %v, want ErrInvalidCharacterFound", err)
	}
}

func TestReadReplyMissingTerminator(t *testing.T) {
	f := newReplyFramer(strings.NewReader("250 OK"))
	if _, err := f.ReadReply(); err == nil {
		t.Fatal("expected an error for truncated input")
	}
}

func TestReadReplyCeiling(t *testing.T) {
	body := strings.Repeat("x", 100)
	raw := "250 " + body + "\r\n"

	// ceiling-1 bytes: one byte short of the whole reply, must fail.
	fShort := newReplyFramerWithCeiling(strings.NewReader(raw), len(raw)-1)
	if _, err := fShort.ReadReply(); !errors.Is(err, ErrTooManyBytesRead) {
		t.Fatalf("got %v, want ErrTooManyBytesRead", err)
	}

	// exactly enough bytes must succeed.
	fExact := newReplyFramerWithCeiling(strings.NewReader(raw), len(raw))
	if _, err := fExact.ReadReply(); err != nil {
		t.Fatalf("unexpected error at exact ceiling: %v", err)
	}
}

func TestReadReplyNonASCII(t *testing.T) {
	f := newReplyFramer(strings.NewReader("250 caf\xe9\r\n"))
	if _, err := f.ReadReply(); !errors.Is(err, ErrNonASCIIByte) {
		t.Fatalf("got %v, want ErrNonASCIIByte", err)
	}
}
