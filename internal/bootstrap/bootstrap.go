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

// Package bootstrap runs, once per accepted connection, the sequence that turns
// "a CPU identity and a filesystem" into a fully populated resource table:
// resolve the register policy for the running microarchitecture, declare
// the logical CPUs accessd will serve MSR requests for, and — only on
// microarchitectures with uncore PCI monitoring — discover the
// socket-to-bus mapping and probe which uncore devices actually exist.
package bootstrap

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/hwpmu/accessd/internal/cpuid"
	"github.com/hwpmu/accessd/internal/pcitable"
	"github.com/hwpmu/accessd/internal/policy"
	"github.com/hwpmu/accessd/internal/regio"
)

// Result is everything a dispatcher needs to serve requests after
// Run returns: the resolved register policy and the PCI device
// table it was matched against (nil when the microarchitecture has no
// uncore PCI monitoring).
type Result struct {
	Selection policy.Selection
	PCIDevices pcitable.Table
}

// UnsupportedProcessorError mirrors the upstream daemon's fatal "ERROR -
// Unsupported processor. Exiting!" condition: Select found no policy
// table for the running family/model.
type UnsupportedProcessorError struct {
	Family, Model uint32
}

func (e *UnsupportedProcessorError) Error() string {
	return fmt.Sprintf("bootstrap: unsupported processor (family 0x%X model 0x%X)", e.Family, e.Model)
}

// Run resolves the register policy for the running processor, declares
// numHWThreads logical CPUs against table, and — when the resolved policy
// has uncore PCI monitoring — discovers the socket-to-bus mapping and
// probes every device in the matching PCI device table, declaring and
// marking online whichever ones actually open.
func Run(
	fs afero.Fs,
	ident cpuid.Identifier,
	pciProvider pcitable.Provider,
	numHWThreads uint32,
	table *regio.Table,
) (Result, error) {
	info, err := ident.Identify()
	if err != nil {
		return Result{}, fmt.Errorf("bootstrap: cpu identification failed: %w", err)
	}

	sel, ok := policy.Select(info.Family, info.Model, info.NumPMCCounters)
	if !ok {
		return Result{}, &UnsupportedProcessorError{Family: info.Family, Model: info.Model}
	}
	logrus.Infof("resolved register policy %s for family 0x%X model 0x%X", sel.Microarch, info.Family, info.Model)

	// NOTICE: this assumes consecutive logical processor ids, exactly as
	// the daemon this replaces does. Each MSR file is opened eagerly here,
	// once, and the outcome (handle or failure) is cached by the table —
	// mirroring the daemon's own FD_MSR[cpu] being set once at process
	// start rather than on first request. A cpu whose open fails is left
	// declared but unopenable: later CHECK/READ/WRITE against it all
	// agree it's NODEV, instead of racing to open it per request.
	for cpu := uint32(0); cpu < numHWThreads; cpu++ {
		table.DeclareCPU(cpu)
		if err := table.OpenMSR(cpu); err != nil {
			logrus.Warnf("msr open failed for cpu %d: %v", cpu, err)
		}
	}

	if !sel.HasPCIUncore {
		return Result{Selection: sel}, nil
	}

	devices, ok := pciProvider.DeviceTableFor(sel.Microarch)
	if !ok {
		logrus.Warnf("no PCI device table registered for microarch %s", sel.Microarch)
		return Result{Selection: sel}, nil
	}

	buses := discoverSocketBuses(fs)
	if len(buses) == 0 {
		logrus.Warnf("uncore not supported on this system")
		return Result{Selection: sel, PCIDevices: devices}, nil
	}

	for socket, bus := range buses {
		socketID := uint32(socket)
		table.SetSocketBus(socketID, bus)

		for device := 1; device < len(devices); device++ {
			d := devices[device]
			if d.PathSuffix == "" {
				continue
			}
			path := regio.PCIPath(bus, d.PathSuffix)
			f, err := fs.Open(path)
			if err != nil {
				if socket == 0 {
					logrus.Debugf("PCI device %s not found at %s, excluding it from the device list", d.Name, path)
				}
				continue
			}
			f.Close()
			table.DeclarePCIDevice(socketID, uint32(device))
			devices[device].Online = true
		}
	}

	return Result{Selection: sel, PCIDevices: devices}, nil
}

// discoverSocketBuses walks ascending PCI buses, reading the upstream
// bus-number byte (offset 0x108) of each bus's function 05.0, to build
// the socket-index-to-bus-number mapping. It's a linear restatement of
// the upstream daemon's getBusFromSocket, which instead re-walks from bus
// 0 for every socket queried; the discovered sequence is identical; see
// DESIGN.md.
func discoverSocketBuses(fs afero.Fs) []int {
	var buses []int
	curBus := 0
	for {
		path := fmt.Sprintf("%s%02x/05.0", regio.PCIRootPath, curBus)
		f, err := fs.Open(path)
		if err != nil {
			return buses
		}
		var buf [4]byte
		n, err := f.ReadAt(buf[:], 0x108)
		f.Close()
		if err != nil || n != len(buf) {
			return buses
		}
		discovered := int((binary.LittleEndian.Uint32(buf[:]) >> 8) & 0xFF)
		buses = append(buses, discovered)

		curBus = discovered + 1
		if curBus > 0xFF {
			return buses
		}
	}
}
