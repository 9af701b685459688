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

package errors

import "fmt"

// CtxError wraps a sentinel error with call-site context, so the closed
// taxonomy of base errors stays small while the actual fault can still
// carry variable detail (the keyword that failed, a byte offset, ...).
type CtxError struct {
	Err error  // base error (for errors.Is() / errors.As())
	Ctx string // error context
}

// Unwrap exposes the base error to errors.Is()/errors.As().
func (e *CtxError) Unwrap() error {
	return e.Err
}

// Error returns a human-readable error description.
func (e *CtxError) Error() string {
	return e.Err.Error() + " [" + e.Ctx + "]"
}

// Wrap attaches formatted context to a base error.
func Wrap(err error, format string, args ...interface{}) *CtxError {
	return &CtxError{
		Err: err,
		Ctx: fmt.Sprintf(format, args...),
	}
}
