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
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bfix/torcp/errors"
)

// QuoteString renders data as a TorCP QuotedString: a leading and
// trailing '"', with '\n', '\r', '\t', '\\' and '"' rendered as their
// named escapes and every other control, space or non-ASCII byte
// rendered as a minimal 1-3 digit octal escape ("\0" for the zero
// byte, "\40" for a space). ASCII letters, digits and punctuation
// other than the two quoting characters pass through verbatim.
func QuoteString(data []byte) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range data {
		switch c {
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			if c > 0x20 && c < 0x7f {
				b.WriteByte(c)
			} else {
				b.WriteByte('\\')
				b.WriteString(strconv.FormatUint(uint64(c), 8))
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// UnquoteString decodes a QuotedString occupying the start of text. If
// text does not begin with '"', or no unescaped closing '"' is ever
// found, it returns (-1, text, nil): the caller should treat text as
// an ordinary bare token, not a quoted one.
//
// On a successful decode it returns the index of the closing quote
// character and the decoded value. If the decoded bytes are not valid
// UTF-8, the raw decoded bytes are still returned (Go strings are byte
// sequences, not validated text) together with ErrInvalidUTF8 so the
// caller can decide whether that matters.
func UnquoteString(text string) (int, string, error) {
	if len(text) == 0 || text[0] != '"' {
		return -1, text, nil
	}
	var out []byte
	i := 1
	for i < len(text) {
		c := text[i]
		switch {
		case c == '"':
			if utf8.Valid(out) {
				return i, string(out), nil
			}
			return i, string(out), errors.Wrap(ErrInvalidUTF8, "decoded quoted string at offset %d", i)

		case c == '\\':
			if i+1 >= len(text) {
				// dangling backslash, never reaches a closing quote
				return -1, text, nil
			}
			nc := text[i+1]
			switch nc {
			case 'n':
				out = append(out, '\n')
				i += 2
			case 'r':
				out = append(out, '\r')
				i += 2
			case 't':
				out = append(out, '\t')
				i += 2
			case '"':
				out = append(out, '"')
				i += 2
			case '\\':
				out = append(out, '\\')
				i += 2
			default:
				if isOctalDigit(nc) {
					// Up to 3 octal digits are consumed before the
					// overflow check; a triple past 255 is emitted as
					// its raw digits, backslash dropped.
					j := i + 1
					for j < len(text) && j < i+4 && isOctalDigit(text[j]) {
						j++
					}
					digits := text[i+1 : j]
					val := 0
					for k := 0; k < len(digits); k++ {
						val = val*8 + int(digits[k]-'0')
					}
					if val > 255 {
						out = append(out, digits...)
					} else {
						out = append(out, byte(val))
					}
					i = j
				} else {
					out = append(out, nc)
					i += 2
				}
			}

		default:
			out = append(out, c)
			i++
		}
	}
	return -1, text, nil
}

func isOctalDigit(c byte) bool {
	return c >= '0' && c <= '7'
}

// ParseSingleKeyValue splits text on its first '=' byte into a key and
// a value. The key must be non-empty and contain only ASCII
// alphanumerics plus '_', '-', '/', '$' and space; the value is
// returned verbatim (including empty) and is never itself validated
// here, since GETCONF/GETINFO values are frequently QuotedStrings that
// callers decode separately.
func ParseSingleKeyValue(text string) (key, value string, err error) {
	idx := strings.IndexByte(text, '=')
	if idx < 0 {
		return "", "", errors.Wrap(ErrInvalidFormat, "missing '=' in %q", text)
	}
	key, value = text[:idx], text[idx+1:]
	if key == "" || !isValidKeyChars(key) {
		return "", "", errors.Wrap(ErrInvalidFormat, "invalid key %q", key)
	}
	return key, value, nil
}

func isValidKeyChars(s string) bool {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case c == '_' || c == '-' || c == '/' || c == '$' || c == ' ':
		default:
			return false
		}
	}
	return true
}
