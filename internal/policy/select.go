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

package policy

// Processor family numbers as reported by CPUID leaf 0x01 after applying
// the base+extended family combination rule (base family 0xF adds the
// extended family field; every family here already has that rule folded
// in by the caller). These and the model numbers below match public
// Intel/AMD documentation; the header that originally named them wasn't
// part of the retrieved source tree (see DESIGN.md).
const (
	familyP6  = 0x06
	familyK8  = 0x0F
	familyK10 = 0x10
	familyK15 = 0x15
	familyK16 = 0x16
)

// Intel P6-family model numbers.
const (
	modelSandybridge     = 0x2A
	modelSandybridgeEP   = 0x2D
	modelIvybridge       = 0x3A
	modelIvybridgeEP     = 0x3E
	modelHaswell         = 0x3C
	modelHaswellM1       = 0x45
	modelHaswellM2       = 0x46
	modelHaswellEP       = 0x3F
	modelBroadwell       = 0x3D
	modelBroadwellD      = 0x56
	modelBroadwellE      = 0x4F
	modelSkylake1        = 0x4E
	modelSkylake2        = 0x5E
	modelKabylake1       = 0x8E
	modelKabylake2       = 0x9E
	modelAtomSilvermontC = 0x4D
	modelAtomSilvermontE = 0x37
	modelAtomSilvermontZ1 = 0x4A
	modelAtomSilvermontZ2 = 0x5A
	modelAtomSilvermontF  = 0x5D
	modelAtomSilvermontAir = 0x4C
	modelXeonPhiKNL       = 0x57
)

// Microarch names one entry in the family/model dispatch table; it's
// reported in logs and diagnostics but carries no behavior of its own.
type Microarch string

const (
	MicroarchIntelGeneric  Microarch = "intel"
	MicroarchSandybridge   Microarch = "sandybridge"
	MicroarchSandybridgeEP Microarch = "sandybridge-ep"
	MicroarchHaswell       Microarch = "haswell"
	MicroarchHaswellEP     Microarch = "haswell-ep"
	MicroarchBroadwellD    Microarch = "broadwell-d"
	MicroarchBroadwellE    Microarch = "broadwell-e"
	MicroarchSilvermont    Microarch = "silvermont"
	MicroarchKNL           Microarch = "knl"
	MicroarchAMD           Microarch = "amd-k8-k10"
	MicroarchAMD15         Microarch = "amd-k15"
	MicroarchAMD16         Microarch = "amd-k16"
)

// Selection is the fully resolved policy set for one running processor:
// the MSR allow-list, and — only on microarchitectures with PCI uncore
// monitoring — the PCI allow-list and a flag saying so.
type Selection struct {
	Microarch   Microarch
	MSR         *MSRPolicy
	PCI         *PCIPolicy
	HasPCIUncore bool
}

// Select resolves the (MSR policy, PCI policy) pair for the processor
// identified by family/model, mirroring the family/model switch in the
// daemon this package replaces. numPMCCounters is CPUID leaf 0x0A's
// reported count of general-purpose counters, needed by the Intel-family
// policies' widened counter-select range. It returns ok=false for any
// family/model combination the allow-list tables don't cover, which the
// caller must treat as a fatal bootstrap error exactly as the upstream
// daemon does ("Unsupported processor").
func Select(family, model uint32, numPMCCounters int) (Selection, bool) {
	switch family {
	case familyP6:
		return selectP6(model, numPMCCounters)
	case familyK8, familyK10:
		return Selection{Microarch: MicroarchAMD, MSR: AMDPolicy()}, true
	case familyK15:
		return Selection{Microarch: MicroarchAMD15, MSR: AMD15Policy()}, true
	case familyK16:
		return Selection{Microarch: MicroarchAMD16, MSR: AMD16Policy()}, true
	default:
		return Selection{}, false
	}
}

func selectP6(model uint32, numPMCCounters int) (Selection, bool) {
	switch model {
	case modelSandybridge, modelIvybridge:
		return Selection{Microarch: MicroarchSandybridge, MSR: SandybridgePolicy(numPMCCounters)}, true

	case modelSandybridgeEP, modelIvybridgeEP:
		return Selection{
			Microarch: MicroarchSandybridgeEP, MSR: SandybridgePolicy(numPMCCounters),
			PCI: PCISandybridgePolicy(), HasPCIUncore: true,
		}, true

	case modelHaswell, modelHaswellM1, modelHaswellM2, modelBroadwell,
		modelSkylake1, modelSkylake2, modelKabylake1, modelKabylake2:
		return Selection{Microarch: MicroarchHaswell, MSR: SandybridgePolicy(numPMCCounters)}, true

	case modelBroadwellD:
		return Selection{
			Microarch: MicroarchBroadwellD, MSR: SandybridgePolicy(numPMCCounters),
			PCI: PCIHaswellPolicy(), HasPCIUncore: true,
		}, true

	case modelHaswellEP:
		return Selection{
			Microarch: MicroarchHaswellEP, MSR: SandybridgePolicy(numPMCCounters),
			PCI: PCIHaswellPolicy(), HasPCIUncore: true,
		}, true

	case modelBroadwellE:
		return Selection{
			Microarch: MicroarchBroadwellE, MSR: SandybridgePolicy(numPMCCounters),
			PCI: PCIHaswellPolicy(), HasPCIUncore: true,
		}, true

	case modelAtomSilvermontC, modelAtomSilvermontE, modelAtomSilvermontZ1,
		modelAtomSilvermontZ2, modelAtomSilvermontF, modelAtomSilvermontAir:
		return Selection{Microarch: MicroarchSilvermont, MSR: SilvermontPolicy()}, true

	case modelXeonPhiKNL:
		return Selection{
			Microarch: MicroarchKNL, MSR: KNLPolicy(),
			PCI: PCIKNLPolicy(), HasPCIUncore: true,
		}, true

	default:
		return Selection{Microarch: MicroarchIntelGeneric, MSR: IntelPolicy(numPMCCounters)}, true
	}
}
