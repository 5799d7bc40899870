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

// Package pcitable holds the per-microarchitecture PCI uncore device
// tables: for each wire-protocol device index, which performance-monitoring
// box it names, its device/function path suffix under the discovered PCI
// bus, and (once probed) whether it's actually present on this system.
//
// The upstream header defining the real PCI device/function numbers
// (topology.h's per-model pci_devices arrays) wasn't part of the retrieved
// source tree, so the path suffixes below are representative placeholders
// that preserve the shape of the table — device kind, human name, and a
// plausible PCI device/function address — rather than the literal
// addresses of any real chipset. See DESIGN.md.
package pcitable

import "github.com/hwpmu/accessd/internal/policy"

// Device is one entry in a microarchitecture's PCI device table. Index 0
// is always the zero value: the upstream daemon reserves device index 0
// (it starts probing from index 1), and wire.MSRDevice is a distinct
// sentinel never looked up in this table at all.
type Device struct {
	Kind       policy.PCIDeviceKind
	Name       string
	PathSuffix string // e.g. "13.1", appended to the discovered bus directory
	Online     bool   // set by bootstrap.Run once the device file has been confirmed to open
}

// Table is a microarchitecture's PCI device table, indexed by the wire
// protocol's device field.
type Table []Device

// Provider resolves the PCI device table for a microarchitecture.
// Microarchitectures without uncore PCI monitoring return ok=false.
type Provider interface {
	DeviceTableFor(arch policy.Microarch) (Table, bool)
}

// Static serves the fixed tables below. DeviceTableFor hands out its own
// copy by reference, so the Online flags a bootstrap probe sets in the
// returned table stay visible in this Static (see internal/bootstrap).
type Static struct {
	tables map[policy.Microarch]Table
}

// NewStatic builds the default Provider with a private, independently
// mutable copy of each microarchitecture's device table so one broker
// instance's probe results can never bleed into another's (relevant only
// in tests, which construct several bootstrap sequences in one process).
func NewStatic() *Static {
	s := &Static{tables: make(map[policy.Microarch]Table)}
	for arch, t := range sourceTables {
		cp := make(Table, len(t))
		copy(cp, t)
		s.tables[arch] = cp
	}
	return s
}

// DeviceTableFor implements Provider.
func (s *Static) DeviceTableFor(arch policy.Microarch) (Table, bool) {
	t, ok := s.tables[arch]
	return t, ok
}

var sourceTables = map[policy.Microarch]Table{
	policy.MicroarchSandybridgeEP: sandybridgeEPDevices,
	policy.MicroarchHaswellEP:     haswellEPDevices,
	policy.MicroarchBroadwellD:    broadwellDDevices,
	policy.MicroarchBroadwellE:    haswellEPDevices,
	policy.MicroarchKNL:           knlDevices,
}

var sandybridgeEPDevices = Table{
	{},
	{Kind: policy.HA, Name: "HA0", PathSuffix: "0e.1"},
	{Kind: policy.HA, Name: "HA1", PathSuffix: "0e.5"},
	{Kind: policy.IMC, Name: "IMC0", PathSuffix: "0f.0"},
	{Kind: policy.IMC, Name: "IMC1", PathSuffix: "0f.4"},
	{Kind: policy.IMC, Name: "IMC2", PathSuffix: "1e.0"},
	{Kind: policy.IMC, Name: "IMC3", PathSuffix: "1e.4"},
	{Kind: policy.QPI, Name: "QPI0", PathSuffix: "08.2"},
	{Kind: policy.QPI, Name: "QPI1", PathSuffix: "09.2"},
	{Kind: policy.R2PCIE, Name: "R2PCIe", PathSuffix: "13.1"},
	{Kind: policy.R3QPI, Name: "R3QPI0", PathSuffix: "0e.2"},
	{Kind: policy.R3QPI, Name: "R3QPI1", PathSuffix: "0f.2"},
}

var haswellEPDevices = Table{
	{},
	{Kind: policy.HA, Name: "HA0", PathSuffix: "0e.1"},
	{Kind: policy.HA, Name: "HA1", PathSuffix: "0e.5"},
	{Kind: policy.IMC, Name: "IMC0", PathSuffix: "0f.0"},
	{Kind: policy.IMC, Name: "IMC1", PathSuffix: "0f.4"},
	{Kind: policy.IMC, Name: "IMC2", PathSuffix: "1e.0"},
	{Kind: policy.IMC, Name: "IMC3", PathSuffix: "1e.4"},
	{Kind: policy.QPI, Name: "QPI0", PathSuffix: "08.2"},
	{Kind: policy.QPI, Name: "QPI1", PathSuffix: "09.2"},
	{Kind: policy.QPI, Name: "QPI2", PathSuffix: "0a.2"},
	{Kind: policy.R2PCIE, Name: "R2PCIe", PathSuffix: "13.1"},
	{Kind: policy.R3QPI, Name: "R3QPI0", PathSuffix: "0e.2"},
	{Kind: policy.R3QPI, Name: "R3QPI1", PathSuffix: "0f.2"},
	{Kind: policy.R3QPI, Name: "R3QPI2", PathSuffix: "0f.3"},
}

var broadwellDDevices = Table{
	{},
	{Kind: policy.HA, Name: "HA0", PathSuffix: "0e.1"},
	{Kind: policy.IMC, Name: "IMC0", PathSuffix: "0f.0"},
	{Kind: policy.IMC, Name: "IMC1", PathSuffix: "0f.4"},
	{Kind: policy.QPI, Name: "QPI0", PathSuffix: "08.2"},
	{Kind: policy.R2PCIE, Name: "R2PCIe", PathSuffix: "13.1"},
	{Kind: policy.R3QPI, Name: "R3QPI0", PathSuffix: "0e.2"},
}

var knlDevices = Table{
	{},
	{Kind: policy.IMC, Name: "MC0U", PathSuffix: "0a.0"},
	{Kind: policy.IMC, Name: "MC0D", PathSuffix: "0a.1"},
	{Kind: policy.IMC, Name: "MC1U", PathSuffix: "0b.0"},
	{Kind: policy.IMC, Name: "MC1D", PathSuffix: "0b.1"},
	{Kind: policy.EDC, Name: "EDC0U", PathSuffix: "0c.0"},
	{Kind: policy.EDC, Name: "EDC0D", PathSuffix: "0c.1"},
	{Kind: policy.EDC, Name: "EDC1U", PathSuffix: "0d.0"},
	{Kind: policy.EDC, Name: "EDC1D", PathSuffix: "0d.1"},
	{Kind: policy.R2PCIE, Name: "M2PCIe0", PathSuffix: "04.0"},
	{Kind: policy.IRP, Name: "IRP0", PathSuffix: "05.0"},
}
