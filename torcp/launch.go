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
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/bfix/torcp/errors"
	"github.com/bfix/torcp/logger"
)

// killDelay is how long ManagedProcess waits after SIGTERM before
// escalating to SIGKILL on Stop.
const killDelay = 5 * time.Second

// controlListenerMarker is the line tor writes to stdout once its
// control port is actually accepting connections.
const controlListenerMarker = "Opened Control listener"

// LaunchOptions configures a child tor process started by
// LaunchAndDial.
type LaunchOptions struct {
	Binary    string   // path to the tor binary, default "tor"
	ExtraArgs []string // appended after the control-port/cookie args
	DataDir   string   // -DataDirectory, required so ControlPort's cookie file lands somewhere known
	DialOpts  DialOptions
}

// ManagedProcess is a tor process started by LaunchAndDial, kept
// around so the caller can stop it when done.
type ManagedProcess struct {
	cmd *exec.Cmd
}

// Stop sends SIGTERM and waits up to killDelay before sending SIGKILL.
func (p *ManagedProcess) Stop() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return errors.Wrap(err, "signaling tor process")
	}
	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(killDelay):
		logger.Warnf("torcp: tor process did not exit after SIGTERM, killing")
		if err := p.cmd.Process.Kill(); err != nil {
			return errors.Wrap(err, "killing tor process")
		}
		return <-done
	}
}

// Close stops the process; it exists so a ManagedProcess can sit in a
// deferred cleanup alongside other io.Closer resources and still be
// reached when the caller unwinds on a panic.
func (p *ManagedProcess) Close() error {
	return p.Stop()
}

// LaunchAndDial starts a tor process per opts, watches its stdout
// until the control listener announces it is accepting connections,
// then dials it. This is a convenience for tests and small tools;
// production deployments generally talk to a tor instance someone else
// is responsible for starting.
func LaunchAndDial(ctx context.Context, opts LaunchOptions) (*UnauthenticatedConn, *ManagedProcess, error) {
	binary := opts.Binary
	if binary == "" {
		binary = "tor"
	}
	args := append([]string{
		"--ControlPort", opts.DialOpts.Default().Address,
		"--CookieAuthentication", "1",
		"--DataDirectory", opts.DataDir,
	}, opts.ExtraArgs...)

	cmd := exec.CommandContext(ctx, binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, errors.Wrap(err, "piping stdout of %s", binary)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, nil, errors.Wrap(err, "starting %s", binary)
	}
	proc := &ManagedProcess{cmd: cmd}

	if err := waitForControlListener(stdout); err != nil {
		_ = proc.Stop()
		return nil, nil, err
	}

	conn, err := DialContext(ctx, opts.DialOpts)
	if err != nil {
		_ = proc.Stop()
		return nil, nil, err
	}
	return conn, proc, nil
}

// waitForControlListener scans r line by line until it sees the
// control-listener marker, echoing every line to the logger so the
// child's startup diagnostics aren't lost. It returns the underlying
// read error (io.EOF included) if the marker never appears.
func waitForControlListener(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		logger.Debugf("tor: %s", line)
		if strings.Contains(line, controlListenerMarker) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "reading tor stdout")
	}
	return errors.Wrap(io.EOF, "tor exited before opening its control listener")
}
