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

// Package policy implements the per-microarchitecture register allow-list:
// a pure, deterministic, side-effect-free decision of whether a given MSR or
// PCI uncore register offset may be read, written, or probed.
//
// Every predicate here is a disjunction of masked range tests plus a handful
// of point exceptions, mirroring the shape of the upstream C daemon this
// broker replaces. Nothing in this package touches the filesystem, opens a
// device, or logs; Allowed is called on the hot path of every dispatched
// request and must stay cheap and table-driven.
package policy

// MaskTest is one masked range test: a register is in range when
// reg&Mask == Value.
type MaskTest struct {
	Mask  uint32
	Value uint32
}

func (m MaskTest) matches(reg uint32) bool {
	return reg&m.Mask == m.Value
}

// MSRPolicy is the allow-list for MSR access on one microarchitecture
// family: a set of masked ranges plus a set of individually named
// registers that don't fit a range.
type MSRPolicy struct {
	Name   string
	Ranges []MaskTest
	Points map[uint32]bool
}

// Allowed reports whether reg may be read or written under this policy.
func (p *MSRPolicy) Allowed(reg uint32) bool {
	if p == nil {
		return false
	}
	if p.Points[reg] {
		return true
	}
	for _, r := range p.Ranges {
		if r.matches(reg) {
			return true
		}
	}
	return false
}

// PCIDeviceKind classifies an uncore PCI performance-monitoring device.
// The zero value, NoDevKind, denotes "not a monitoring device" (e.g. the
// bridge device used only to discover the socket-to-bus mapping).
type PCIDeviceKind int

const (
	NoDevKind PCIDeviceKind = iota
	R3QPI
	R2PCIE
	IMC
	HA
	QPI
	IRP
	EDC
)

func (k PCIDeviceKind) String() string {
	switch k {
	case NoDevKind:
		return "NODEVTYPE"
	case R3QPI:
		return "R3QPI"
	case R2PCIE:
		return "R2PCIE"
	case IMC:
		return "IMC"
	case HA:
		return "HA"
	case QPI:
		return "QPI"
	case IRP:
		return "IRP"
	case EDC:
		return "EDC"
	default:
		return "UNKNOWN"
	}
}

// PCIPolicy is the allow-list for PCI uncore register access, keyed by
// device kind. A monitoring kind absent from Kinds is always restricted.
// AllowUnlistedKind decides only the NoDevKind (non-monitoring device)
// case — the upstream daemon's own policies disagree on this default
// (Sandybridge and Haswell treat a non-monitoring device as always
// allowed; Knights Landing does not), so each PCIPolicy carries its own
// answer rather than a shared constant.
type PCIPolicy struct {
	Name              string
	Kinds             map[PCIDeviceKind]*MSRPolicy
	AllowUnlistedKind bool
}

// Allowed reports whether reg may be accessed on a device of the given
// kind under this policy.
func (p *PCIPolicy) Allowed(kind PCIDeviceKind, reg uint32) bool {
	if p == nil {
		return false
	}
	if kind == NoDevKind {
		return p.AllowUnlistedKind
	}
	k, ok := p.Kinds[kind]
	if !ok {
		return false
	}
	return k.Allowed(reg)
}
