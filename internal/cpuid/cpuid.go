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

// Package cpuid resolves the running processor's family, model and
// architectural performance-monitoring counter count into the inputs
// internal/policy.Select needs. It wraps github.com/klauspost/cpuid/v2
// rather than issuing the CPUID instruction by hand, the same way the
// rest of this broker prefers a maintained library over a hand-rolled
// primitive wherever the ecosystem already has one.
package cpuid

import (
	"fmt"

	gocpuid "github.com/klauspost/cpuid/v2"
)

// Info is the subset of CPUID state the register policy engine needs.
type Info struct {
	Family          uint32
	Model           uint32
	VendorID        gocpuid.Vendor
	NumPMCCounters  int
}

// Identifier resolves the running processor's identity. Bootstrap depends
// on this interface, not the concrete implementation below, so tests can
// supply a fixed Info without running on the target hardware.
type Identifier interface {
	Identify() (Info, error)
}

// Native queries the CPUID instruction on the core the calling goroutine
// happens to run on via klauspost/cpuid/v2's cached detection pass.
type Native struct{}

// Identify implements Identifier.
func (Native) Identify() (Info, error) {
	cpu := gocpuid.CPU
	if cpu.Family == 0 && cpu.Model == 0 {
		return Info{}, fmt.Errorf("cpuid: CPU feature detection did not run or failed")
	}

	eax, _, _, _ := gocpuid.Cpuid(0x0A, 0)
	numPMC := int((eax >> 8) & 0xFF)

	return Info{
		Family:         uint32(cpu.Family),
		Model:          uint32(cpu.Model),
		VendorID:       cpu.VendorID,
		NumPMCCounters: numPMC,
	}, nil
}

// Fixed is an Identifier that always returns a fixed Info, for tests.
type Fixed struct {
	Info Info
}

// Identify implements Identifier.
func (f Fixed) Identify() (Info, error) {
	return f.Info, nil
}
