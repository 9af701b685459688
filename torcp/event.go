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

import "strings"

// AsyncEventKind classifies the first token of an async (650) reply's
// first line. It behaves like a closed enum for the keywords listed in
// control-spec.txt section 4, but any unrecognized keyword still
// produces a usable value carrying the raw token, so classification
// never fails outright on a Tor version that added a new event type.
type AsyncEventKind struct {
	name string
}

func (k AsyncEventKind) String() string { return k.name }

var (
	EventCirc              = AsyncEventKind{"CIRC"}
	EventStream            = AsyncEventKind{"STREAM"}
	EventOrConn            = AsyncEventKind{"ORCONN"}
	EventBandwidth         = AsyncEventKind{"BW"}
	EventLogDebug          = AsyncEventKind{"DEBUG"}
	EventLogInfo           = AsyncEventKind{"INFO"}
	EventLogNotice         = AsyncEventKind{"NOTICE"}
	EventLogWarn           = AsyncEventKind{"WARN"}
	EventLogErr            = AsyncEventKind{"ERR"}
	EventNewDesc           = AsyncEventKind{"NEWDESC"}
	EventAddrMap           = AsyncEventKind{"ADDRMAP"}
	EventAuthDirNewDescs   = AsyncEventKind{"AUTHDIR_NEWDESCS"}
	EventDescChanged       = AsyncEventKind{"DESCCHANGED"}
	EventStatusGeneral     = AsyncEventKind{"STATUS_GENERAL"}
	EventStatusClient      = AsyncEventKind{"STATUS_CLIENT"}
	EventStatusServer      = AsyncEventKind{"STATUS_SERVER"}
	EventGuard             = AsyncEventKind{"GUARD"}
	EventNetworkStatus     = AsyncEventKind{"NS"}
	EventStreamBandwidth   = AsyncEventKind{"STREAM_BW"}
	EventClientsSeen       = AsyncEventKind{"CLIENTS_SEEN"}
	EventNewConsensus      = AsyncEventKind{"NEWCONSENSUS"}
	EventBuildTimeoutSet   = AsyncEventKind{"BUILDTIMEOUT_SET"}
	EventSignal            = AsyncEventKind{"SIGNAL"}
	EventConfChanged       = AsyncEventKind{"CONF_CHANGED"}
	EventCircMinor         = AsyncEventKind{"CIRC_MINOR"}
	EventTransportLaunched = AsyncEventKind{"TRANSPORT_LAUNCHED"}
	EventConnBandwidth     = AsyncEventKind{"CONN_BW"}
	EventCircBandwidth     = AsyncEventKind{"CIRC_BW"}
	EventCellStats         = AsyncEventKind{"CELL_STATS"}
	EventTbEmpty           = AsyncEventKind{"TB_EMPTY"}
	EventHSDesc            = AsyncEventKind{"HS_DESC"}
	EventHSDescContent     = AsyncEventKind{"HS_DESC_CONTENT"}
	EventNetworkLiveness   = AsyncEventKind{"NETWORK_LIVENESS"}
)

var allEventKinds = []AsyncEventKind{
	EventCirc, EventStream, EventOrConn, EventBandwidth,
	EventLogDebug, EventLogInfo, EventLogNotice, EventLogWarn, EventLogErr,
	EventNewDesc, EventAddrMap, EventAuthDirNewDescs, EventDescChanged,
	EventStatusGeneral, EventStatusClient, EventStatusServer, EventGuard,
	EventNetworkStatus, EventStreamBandwidth, EventClientsSeen,
	EventNewConsensus, EventBuildTimeoutSet, EventSignal, EventConfChanged,
	EventCircMinor, EventTransportLaunched, EventConnBandwidth,
	EventCircBandwidth, EventCellStats, EventTbEmpty, EventHSDesc,
	EventHSDescContent, EventNetworkLiveness,
}

var knownEventKinds = func() map[string]AsyncEventKind {
	m := make(map[string]AsyncEventKind, len(allEventKinds))
	for _, k := range allEventKinds {
		m[k.name] = k
	}
	return m
}()

// ClassifyEvent maps the leading token of an event's first line to its
// AsyncEventKind, falling back to a kind carrying the raw keyword for
// anything not in the known table.
func ClassifyEvent(keyword string) AsyncEventKind {
	if k, ok := knownEventKinds[keyword]; ok {
		return k
	}
	return AsyncEventKind{keyword}
}

// AsyncEvent is one unsolicited (code 650) reply from the control
// port, dispatched outside the normal command/response cycle.
type AsyncEvent struct {
	Kind  AsyncEventKind
	Reply *Reply
}

// EventHandler processes one AsyncEvent. It runs synchronously on the
// same goroutine as the command currently in flight, between that
// command's writes and its final reply, so it must not issue further
// commands on the same connection -- doing so would deadlock against
// the read loop that is about to resume waiting for that command's own
// reply.
type EventHandler func(AsyncEvent) error

func newAsyncEvent(reply *Reply) AsyncEvent {
	var keyword string
	if len(reply.Lines) > 0 {
		keyword = firstToken(reply.Lines[0])
	}
	return AsyncEvent{Kind: ClassifyEvent(keyword), Reply: reply}
}

func firstToken(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}
