//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package supervisor owns the rendezvous Unix-domain socket: it listens,
// accepts exactly one connection at a time, hands each to a dispatcher,
// and unlinks the socket on a termination signal. The upstream daemon
// forks a child process per connection; this rewrite runs the dispatcher
// in a goroutine instead (idiomatic for Go, and the runtime, not a fork,
// is what isolates one connection's resource table from another's) but
// preserves its one-broker-one-client invariant by never calling Accept
// again until the previous connection's dispatcher has returned.
package supervisor

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// SocketSuffix is appended to the configured rendezvous-socket prefix,
// matching the upstream daemon's "<prefix>-d" naming.
const SocketSuffix = "-d"

// SocketPath returns the rendezvous socket path for the given prefix.
func SocketPath(prefix string) string {
	return prefix + SocketSuffix
}

// Handler services one accepted connection. Supervisor never calls it
// concurrently with itself.
type Handler func(conn net.Conn)

// Supervisor owns the listening socket and the signal handling around it.
type Supervisor struct {
	path     string
	listener net.Listener
	handle   Handler
}

// Listen creates the rendezvous socket at SocketPath(prefix), removing
// any stale socket file left behind by an unclean previous shutdown,
// with permissions allowing read+write for "other" since accessd's
// clients are unprivileged.
func Listen(prefix string, handle Handler) (*Supervisor, error) {
	path := SocketPath(prefix)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("supervisor: removing stale socket %s: %w", path, err)
	}

	// Clear the umask around the bind so the kernel doesn't mask off the
	// read/write-for-other bits before the explicit Chmod below ever runs.
	oldMask := unix.Umask(0)
	ln, err := net.Listen("unix", path)
	unix.Umask(oldMask)
	if err != nil {
		return nil, fmt.Errorf("supervisor: listening on %s: %w", path, err)
	}
	if err := unix.Chmod(path, 0666); err != nil {
		ln.Close()
		return nil, fmt.Errorf("supervisor: chmod %s: %w", path, err)
	}

	return &Supervisor{path: path, listener: ln, handle: handle}, nil
}

// Run blocks, accepting and serving one connection at a time, until a
// termination signal arrives or the listener is closed. It unlinks the
// socket file before returning.
//
// The handler for an accepted connection runs in its own goroutine, and
// the select below keeps listening on sigCh the whole time that
// connection is in flight — spec.md §4.4 requires the supervisor to stay
// multiplexed on (signal, listening socket) throughout, the way the
// upstream daemon's forked-per-connection parent keeps polling sigfd
// while its child services the connection. Calling s.handle(conn)
// synchronously here instead would block the select on the client for as
// long as the connection lasts, leaving a signal that arrives mid-
// connection unread until the client happens to disconnect. The next
// Accept is only issued once the handler's completion is observed on
// doneCh, which is what keeps accessd at one connection at a time despite
// the handler no longer blocking this loop directly.
func (s *Supervisor) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	acceptCh := make(chan net.Conn)
	acceptErrCh := make(chan error, 1)
	go s.acceptLoop(acceptCh, acceptErrCh)

	var active net.Conn
	doneCh := make(chan struct{})

	for {
		select {
		case sig := <-sigCh:
			logrus.Warnf("supervisor caught signal %s, shutting down", sig)
			if active != nil {
				active.Close()
			}
			return s.shutdown()

		case err := <-acceptErrCh:
			logrus.Errorf("supervisor: accept failed: %v", err)
			if active != nil {
				active.Close()
			}
			return s.shutdown()

		case conn := <-acceptCh:
			logrus.Debug("accepted connection, servicing")
			active = conn
			go func() {
				s.handle(conn)
				close(doneCh)
			}()

		case <-doneCh:
			logrus.Debug("connection terminated, resuming accept")
			active = nil
			doneCh = make(chan struct{})
			go s.acceptLoop(acceptCh, acceptErrCh)
		}
	}
}

// RunOnce accepts and services a single connection, then unlinks the
// socket and returns. It ignores termination signals entirely, since its
// one caller (accessd's "-once" testing mode) has no child accept loop to
// interrupt. Useful for driving a single end-to-end session without
// leaving a daemon running afterward.
func (s *Supervisor) RunOnce() error {
	conn, err := s.listener.Accept()
	if err != nil {
		s.shutdown()
		return fmt.Errorf("supervisor: accept failed: %w", err)
	}
	logrus.Debug("accepted connection, servicing (run-once mode)")
	s.handle(conn)
	logrus.Debug("connection terminated, run-once mode exiting")
	return s.shutdown()
}

// acceptLoop accepts exactly one connection (or reports exactly one
// error) and returns. Run restarts it only after the previous
// connection's Handler has returned, which is what keeps accessd at one
// client at a time despite net.Listener itself being reusable.
func (s *Supervisor) acceptLoop(acceptCh chan<- net.Conn, errCh chan<- error) {
	conn, err := s.listener.Accept()
	if err != nil {
		select {
		case errCh <- err:
		default:
		}
		return
	}
	acceptCh <- conn
}

func (s *Supervisor) shutdown() error {
	err := s.listener.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
		logrus.Errorf("supervisor: removing socket %s: %v", s.path, rmErr)
	}
	return err
}
