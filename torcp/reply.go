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
	"io"
	"strconv"

	"github.com/bfix/torcp/errors"
)

// DefaultReplyCeiling bounds how many bytes ReadReply will consume for
// a single reply before giving up. It exists so a misbehaving or
// malicious control port cannot exhaust memory by never terminating a
// reply.
const DefaultReplyCeiling = 1 << 20 // 1 MiB

// Reply is one complete control-port response: a 3-digit status code
// shared by every line, and the decoded content of each line with its
// separator character stripped (and, for data lines, the embedded
// CRLF-terminated block folded in after the first "\r\n").
type Reply struct {
	Code  int
	Lines []string
}

// replyFramer turns a byte stream from the control port into Replies,
// one ReadReply call at a time.
type replyFramer struct {
	r       *bufio.Reader
	ceiling int
}

// newReplyFramer wraps r with the default reply-size ceiling.
func newReplyFramer(r io.Reader) *replyFramer {
	return &replyFramer{r: bufio.NewReader(r), ceiling: DefaultReplyCeiling}
}

// newReplyFramerWithCeiling wraps r with an explicit reply-size ceiling.
func newReplyFramerWithCeiling(r io.Reader, ceiling int) *replyFramer {
	return &replyFramer{r: bufio.NewReader(r), ceiling: ceiling}
}

// ReadReply reads one complete reply (a run of mid-line and optional
// data-line entries terminated by a final line) from the framer.
func (f *replyFramer) ReadReply() (*Reply, error) {
	total := 0
	code := -1
	var lines []string

	for {
		lineCode, sep, err := f.readHead(&total)
		if err != nil {
			return nil, err
		}
		if code == -1 {
			code = lineCode
		} else if lineCode != code {
			return nil, errors.Wrap(ErrResponseCodeMismatch, "line reported %03d, reply started with %03d", lineCode, code)
		}

		payload, err := f.readLinePayload(&total)
		if err != nil {
			return nil, err
		}
		line := string(payload)

		if sep == '+' {
			raw, err := f.readDataBlock(&total)
			if err != nil {
				return nil, err
			}
			line = line + "\r\n" + string(raw)
		}
		lines = append(lines, line)

		if sep == ' ' {
			break
		}
	}
	return &Reply{Code: code, Lines: lines}, nil
}

// readByte reads a single ASCII byte, enforcing the reply ceiling.
func (f *replyFramer) readByte(total *int) (byte, error) {
	if *total >= f.ceiling {
		return 0, ErrTooManyBytesRead
	}
	b, err := f.r.ReadByte()
	if err != nil {
		return 0, err
	}
	*total++
	if b > 0x7f {
		return 0, errors.Wrap(ErrNonASCIIByte, "byte 0x%02x", b)
	}
	return b, nil
}

// readHead parses the fixed 4-byte reply-line head: a 3-digit status
// code and a one-byte separator drawn from {' ', '-', '+'}.
func (f *replyFramer) readHead(total *int) (int, byte, error) {
	var digits [3]byte
	for i := 0; i < 3; i++ {
		b, err := f.readByte(total)
		if err != nil {
			return 0, 0, err
		}
		if b < '0' || b > '9' {
			return 0, 0, errors.Wrap(ErrInvalidStatusCode, "non-digit %q at code position %d", b, i)
		}
		digits[i] = b
	}
	code, err := strconv.Atoi(string(digits[:]))
	if err != nil {
		return 0, 0, errors.Wrap(ErrInvalidStatusCode, "%v", err)
	}
	sep, err := f.readByte(total)
	if err != nil {
		return 0, 0, err
	}
	if sep != ' ' && sep != '-' && sep != '+' {
		return 0, 0, errors.Wrap(ErrInvalidCharacterFound, "got %q", sep)
	}
	return code, sep, nil
}

// readLinePayload reads bytes up to (and consuming, but not
// including) the next CRLF terminator. CRLF is the only terminator
// recognized; a bare '\r' not followed by '\n' is ordinary payload.
func (f *replyFramer) readLinePayload(total *int) ([]byte, error) {
	var buf []byte
	for {
		b, err := f.readByte(total)
		if err != nil {
			return buf, err
		}
		if b != '\r' {
			buf = append(buf, b)
			continue
		}
		nb, err := f.readByte(total)
		if err != nil {
			return buf, err
		}
		if nb == '\n' {
			return buf, nil
		}
		buf = append(buf, '\r')
		if uerr := f.r.UnreadByte(); uerr == nil {
			continue
		}
		buf = append(buf, nb)
	}
}

// dataTerminator is the fixed 5-byte sequence that ends a data-line
// block: CRLF, a single dot, CRLF.
const dataTerminator = "\r\n.\r\n"

// readDataBlock reads raw bytes, which may contain embedded CRLF
// sequences, up to the first occurrence of the dot terminator; the
// terminator itself is consumed but not returned.
func (f *replyFramer) readDataBlock(total *int) ([]byte, error) {
	var raw []byte
	for {
		b, err := f.readByte(total)
		if err != nil {
			return raw, err
		}
		raw = append(raw, b)
		n := len(raw)
		if n >= len(dataTerminator) && string(raw[n-len(dataTerminator):]) == dataTerminator {
			return raw[:n-len(dataTerminator)], nil
		}
	}
}
