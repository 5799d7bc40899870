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

// Package regio is the resource table: the MSR and PCI uncore register
// files a dispatched request reads from or writes to, and the
// socket-to-PCI-bus mapping discovered once at bootstrap. MSR files are
// opened eagerly, once per declared cpu, at bootstrap time; PCI device
// files stay lazily opened on first access.
//
// File access goes through afero.Fs rather than os directly, the same way
// this broker's teacher abstracts every filesystem touch behind an
// afero.Fs-backed IOnode, so the table can be driven against an
// afero.MemMapFs in tests without a real /dev/cpu/*/msr on the test host.
package regio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"
)

// PCIRootPath is the sysfs-style root every PCI device path is resolved
// relative to.
const PCIRootPath = "/proc/bus/pci/"

// registerFile is the slice of afero.File (and *os.File) that positioned
// register I/O needs. Both afero.MemMapFs files and afero.OsFs files
// (themselves *os.File under the hood) satisfy it.
type registerFile interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Close() error
}

type pciKey struct {
	socket uint32
	device uint32
}

// NotOpenError reports that the requested MSR or PCI device file was never
// successfully opened — the resource-table equivalent of the upstream
// daemon's FD_MSR[cpu] <= 0 / FD_PCI[socket][device] == -2 checks.
type NotOpenError struct {
	Resource string
}

func (e *NotOpenError) Error() string {
	return fmt.Sprintf("regio: %s is not open", e.Resource)
}

// OpenError reports that a declared resource's backing device file failed
// to open. Callers distinguish this from NotOpenError (the resource was
// never declared at all) because the two can map to different wire error
// codes: an MSR open failure folds into NODEV, while a PCI open failure
// is reported as OPENFAIL.
type OpenError struct {
	Resource string
	Err      error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("regio: opening %s failed: %v", e.Resource, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// Table is the per-connection resource table: one MSR file per
// logical CPU, one PCI config-space file per (socket, device-table index)
// pair, and the socket-to-bus map that PCI path resolution depends on.
// A Table is safe for concurrent use, though accessd's supervisor only
// ever has one connection's dispatcher touching it at a time.
type Table struct {
	fs afero.Fs

	mu         sync.Mutex
	msrFiles   map[uint32]registerFile
	msrKnown   map[uint32]bool  // cpu ids the caller has declared to exist
	msrOpenErr map[uint32]error // cached open failure for a declared cpu; never retried
	pciFiles   map[pciKey]registerFile
	pciKnown   map[pciKey]bool
	pciOpenErr map[pciKey]error // cached open failure for a declared PCI device; never retried
	socketBus  map[uint32]int
}

// New returns an empty Table backed by fs. Production callers pass
// afero.NewOsFs(); tests pass afero.NewMemMapFs().
func New(fs afero.Fs) *Table {
	return &Table{
		fs:         fs,
		msrFiles:   make(map[uint32]registerFile),
		msrKnown:   make(map[uint32]bool),
		msrOpenErr: make(map[uint32]error),
		pciFiles:   make(map[pciKey]registerFile),
		pciKnown:   make(map[pciKey]bool),
		pciOpenErr: make(map[pciKey]error),
		socketBus:  make(map[uint32]int),
	}
}

// DeclareCPU marks cpu as a logical processor this table should serve MSR
// requests for. It does not open the device file; OpenMSR does that, and
// bootstrap calls it for every declared cpu before the dispatcher ever
// serves a request, exactly as the daemon this replaces opens every
// MSR_FD[cpu] once at process start rather than per request.
func (t *Table) DeclareCPU(cpu uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msrKnown[cpu] = true
}

// DeclarePCIDevice marks (socket, device) as backed by a real device file
// once bootstrap has confirmed it opens; CheckPCI and the PCI read/write
// paths treat an undeclared pair as ERR_NODEV without ever trying to open
// it, matching the daemon's FD_PCI[socket][device] == -2 sentinel.
func (t *Table) DeclarePCIDevice(socket, device uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pciKnown[pciKey{socket, device}] = true
}

// SetSocketBus records the PCI bus number discovered for socket.
func (t *Table) SetSocketBus(socket uint32, bus int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.socketBus[socket] = bus
}

// SocketBus returns the PCI bus number for socket, if discovered.
func (t *Table) SocketBus(socket uint32) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bus, ok := t.socketBus[socket]
	return bus, ok
}

// MSRPath is the primary device-file path for a logical CPU's MSR file.
func MSRPath(cpu uint32) string {
	return fmt.Sprintf("/dev/cpu/%d/msr", cpu)
}

// MSRPathFallback is the legacy device-file path tried when MSRPath fails
// to open, matching the daemon's /dev/msr%d fallback.
func MSRPathFallback(cpu uint32) string {
	return fmt.Sprintf("/dev/msr%d", cpu)
}

// PCIPath resolves the full device path for (bus, pathSuffix).
func PCIPath(bus int, pathSuffix string) string {
	return fmt.Sprintf("%s%02x/%s", PCIRootPath, bus, pathSuffix)
}

// OpenMSR eagerly opens cpu's MSR device file, trying MSRPath then
// MSRPathFallback, and caches either the resulting handle or the failure
// so neither is ever retried — the resource-table equivalent of the
// daemon this replaces setting FD_MSR[cpu] exactly once at process start.
// Bootstrap calls this for every logical CPU it declares, before the
// dispatcher ever serves a request against this table; cpu must already
// be declared via DeclareCPU. Calling it again for a cpu that was already
// attempted is a cheap no-op that returns the cached outcome.
func (t *Table) OpenMSR(cpu uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.openMSRLocked(cpu)
	return err
}

// openMSR returns cpu's cached MSR handle or cached open failure. If cpu
// is declared but has never been attempted (a caller drove ReadMSR/WriteMSR
// directly without going through bootstrap's eager OpenMSR pass, as some
// unit tests do), it attempts the open now and caches the outcome exactly
// as OpenMSR would have.
func (t *Table) openMSR(cpu uint32) (registerFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openMSRLocked(cpu)
}

// openMSRLocked implements OpenMSR/openMSR; t.mu must already be held.
func (t *Table) openMSRLocked(cpu uint32) (registerFile, error) {
	if f, ok := t.msrFiles[cpu]; ok {
		return f, nil
	}
	if err, failed := t.msrOpenErr[cpu]; failed {
		return nil, err
	}
	if !t.msrKnown[cpu] {
		return nil, &NotOpenError{Resource: fmt.Sprintf("msr cpu %d", cpu)}
	}

	f, err := t.fs.OpenFile(MSRPath(cpu), os.O_RDWR, 0)
	if err != nil {
		f, err = t.fs.OpenFile(MSRPathFallback(cpu), os.O_RDWR, 0)
		if err != nil {
			openErr := &OpenError{Resource: fmt.Sprintf("msr cpu %d", cpu), Err: err}
			t.msrOpenErr[cpu] = openErr
			return nil, openErr
		}
	}
	t.msrFiles[cpu] = f
	return f, nil
}

// openPCI returns the cached config-space handle for (socket, device), or
// its cached open failure, resolving its path through the socket's
// discovered bus and pathSuffix and caching whichever outcome results so
// a declared-but-unopenable device is never retried on a later request.
func (t *Table) openPCI(socket, device uint32, pathSuffix string) (registerFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := pciKey{socket, device}
	if f, ok := t.pciFiles[key]; ok {
		return f, nil
	}
	if err, failed := t.pciOpenErr[key]; failed {
		return nil, err
	}
	if !t.pciKnown[key] {
		return nil, &NotOpenError{Resource: fmt.Sprintf("pci socket %d device %d", socket, device)}
	}

	bus, ok := t.socketBus[socket]
	if !ok {
		return nil, &NotOpenError{Resource: fmt.Sprintf("pci socket %d bus mapping", socket)}
	}

	f, err := t.fs.OpenFile(PCIPath(bus, pathSuffix), os.O_RDWR, 0)
	if err != nil {
		openErr := &OpenError{Resource: fmt.Sprintf("pci socket %d device %d", socket, device), Err: err}
		t.pciOpenErr[key] = openErr
		return nil, openErr
	}
	t.pciFiles[key] = f
	return f, nil
}

// CheckMSR reports whether cpu's MSR file was actually opened
// successfully — the dispatcher's CHECK path for MSR targets. It
// reflects the outcome of bootstrap's eager OpenMSR pass, not mere
// declaration: a declared cpu whose device file failed to open reports
// false here exactly as it reports NODEV on READ/WRITE, matching the
// daemon's own msr_check() (FD_MSR[cpu] < 0 → NODEV). CheckMSR never
// attempts an open itself.
func (t *Table) CheckMSR(cpu uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.msrFiles[cpu]
	return ok
}

// CheckPCI reports whether (socket, device) is known to this table,
// without opening it — the dispatcher's CHECK path for PCI targets.
// Unlike CheckMSR, declaration here already implies a successful
// bootstrap-time existence probe (bootstrap opens and closes each device
// file before calling DeclarePCIDevice), so declared-but-never-opened and
// declared-and-confirmed-to-exist are the same state for PCI.
func (t *Table) CheckPCI(socket, device uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pciKnown[pciKey{socket, device}]
}

// ReadMSR reads the 8-byte value of reg from cpu's MSR file.
func (t *Table) ReadMSR(cpu, reg uint32) (uint64, error) {
	f, err := t.openMSR(cpu)
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	if _, err := f.ReadAt(buf[:], int64(reg)); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WriteMSR writes the 8-byte value data to reg in cpu's MSR file.
func (t *Table) WriteMSR(cpu, reg uint32, data uint64) error {
	f, err := t.openMSR(cpu)
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], data)
	_, err = f.WriteAt(buf[:], int64(reg))
	return err
}

// ReadPCI reads the 4-byte, zero-extended value of reg from the config
// space file for (socket, device), whose path is resolved through
// pathSuffix and the socket's discovered bus.
func (t *Table) ReadPCI(socket, device, reg uint32, pathSuffix string) (uint64, error) {
	f, err := t.openPCI(socket, device, pathSuffix)
	if err != nil {
		return 0, err
	}
	var buf [4]byte
	if _, err := f.ReadAt(buf[:], int64(reg)); err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint32(buf[:])), nil
}

// WritePCI writes the low 32 bits of data to reg in the config space file
// for (socket, device), matching the daemon's (uint32_t) truncation of
// the wire protocol's 64-bit data field on the PCI path.
func (t *Table) WritePCI(socket, device, reg uint32, data uint64, pathSuffix string) error {
	f, err := t.openPCI(socket, device, pathSuffix)
	if err != nil {
		return err
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(data))
	_, err = f.WriteAt(buf[:], int64(reg))
	return err
}

// Close closes every file this table has opened so far. It's called once,
// when the connection that owns the table ends.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for _, f := range t.msrFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, f := range t.pciFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
