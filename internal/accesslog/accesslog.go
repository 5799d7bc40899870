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

// Package accesslog centralizes the structured fields spec.md §7 requires
// on every denial, I/O failure and open failure: the register, the
// CPU-or-socket id, and (for PCI) the device's human-readable name. It
// wraps a single *logrus.Entry the way other broker components in this
// codebase hand a preconfigured entry around rather than building fields
// inline at each call site.
package accesslog

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

var entry = logrus.NewEntry(logrus.StandardLogger())

// SetLogger repoints every accesslog call at l, preserving whatever
// fields were already attached (e.g. a connection id set by the caller).
func SetLogger(l *logrus.Logger) {
	entry = logrus.NewEntry(l).WithFields(entry.Data)
}

// WithConnection returns an entry scoped to one connection, so every
// denial or failure logged for its lifetime carries a connection id.
func WithConnection(id string) *logrus.Entry {
	return entry.WithField("connection", id)
}

func target(cpuOrSocket uint32, device string) logrus.Fields {
	fields := logrus.Fields{"cpu_or_socket": cpuOrSocket}
	if device != "" {
		fields["device"] = device
	}
	return fields
}

// Denied logs that the register policy refused access.
func Denied(log *logrus.Entry, cpuOrSocket uint32, reg uint32, device, microarch string) {
	log.WithFields(target(cpuOrSocket, device)).
		WithField("register", fmt.Sprintf("0x%x", reg)).
		Warnf("register access denied by %s policy", microarch)
}

// Unavailable logs that the targeted resource has no usable handle.
func Unavailable(log *logrus.Entry, cpuOrSocket uint32, device string) {
	log.WithFields(target(cpuOrSocket, device)).Warn("resource unavailable")
}

// OpenFailed logs that a lazy device-file open failed.
func OpenFailed(log *logrus.Entry, cpuOrSocket uint32, device string, err error) {
	log.WithFields(target(cpuOrSocket, device)).WithError(err).Warn("device open failed")
}

// IOFailed logs that a positioned read or write returned an error.
func IOFailed(log *logrus.Entry, cpuOrSocket uint32, reg uint32, device string, err error) {
	log.WithFields(target(cpuOrSocket, device)).
		WithField("register", fmt.Sprintf("0x%x", reg)).
		WithError(err).
		Warn("positioned I/O failed")
}

// Locked logs that the external lock refused an access.
func Locked(log *logrus.Entry, reg uint32) {
	log.WithField("register", fmt.Sprintf("0x%x", reg)).Warn("access refused: external lock held")
}
