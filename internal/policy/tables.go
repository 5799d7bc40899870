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

// intelRanges is the Intel P6-family baseline allow-list shared by every
// later Intel policy: general performance counters (0x0C0-0x0CF),
// IA32_PERFEVTSELx (0x180-0x18F), a fixed-counter range gated on the
// number of programmable PMCs reported by the running core, and the
// PEBS/offcore/uncore configuration blocks at 0x300, 0xC00, 0xD00, 0xE00
// and 0xF00.
func intelRanges(numPMCCounters int) []MaskTest {
	ranges := []MaskTest{
		{Mask: 0x0F0, Value: 0x0C0},
		{Mask: 0xFF0, Value: 0x180},
		{Mask: 0xF00, Value: 0x300},
		{Mask: 0xF00, Value: 0xC00},
		{Mask: 0xF00, Value: 0xD00},
		{Mask: 0xF00, Value: 0xE00},
		{Mask: 0xF00, Value: 0xF00},
	}
	if numPMCCounters > 4 {
		ranges = append(ranges, MaskTest{Mask: 0x190, Value: 0x190})
	}
	return ranges
}

var intelPoints = map[uint32]bool{
	0x1A0: true, 0x1A4: true, 0x0CE: true, 0x19C: true,
	msrOffcoreRspIA: true, 0x1AD: true, 0x1AE: true, 0x1AF: true,
	0x1AC: true, msrOffcoreRspIB: true, msrOffcoreRspIIB: true,
	0x620: true, 0xCD: true, 0x1B0: true, 0x1B1: true,
}

// IntelPolicy is the MSR allow-list for unclassified Intel P6-family
// cores: the baseline range/point set with no microarchitecture-specific
// extension.
func IntelPolicy(numPMCCounters int) *MSRPolicy {
	return &MSRPolicy{Name: "intel", Ranges: intelRanges(numPMCCounters), Points: intelPoints}
}

// SandybridgePolicy extends IntelPolicy with the Sandy Bridge/Ivy Bridge
// uncore configuration blocks (0x600, 0x700) and the PEBS alternate-event
// selector.
func SandybridgePolicy(numPMCCounters int) *MSRPolicy {
	ranges := append(intelRanges(numPMCCounters),
		MaskTest{Mask: 0xF00, Value: 0x600},
		MaskTest{Mask: 0xF00, Value: 0x700},
	)
	points := clonePoints(intelPoints)
	points[msrAltPEBS] = true
	return &MSRPolicy{Name: "sandybridge", Ranges: ranges, Points: points}
}

// HaswellPolicy extends SandybridgePolicy. The upstream predicate ORs in
// the 0x700 range a second time; that's redundant with Sandy Bridge's own
// 0x700 range (Haswell's allow-list is a strict superset, never a
// restriction), so there's nothing extra to encode here beyond naming the
// policy distinctly for Select's microarchitecture table.
func HaswellPolicy(numPMCCounters int) *MSRPolicy {
	p := SandybridgePolicy(numPMCCounters)
	return &MSRPolicy{Name: "haswell", Ranges: p.Ranges, Points: p.Points}
}

var silvermontRanges = []MaskTest{
	{Mask: 0x0F8, Value: 0x0C0},
	{Mask: 0xFF0, Value: 0x180},
	{Mask: 0xF00, Value: 0x300},
	{Mask: 0xF00, Value: 0x600},
	{Mask: 0xF00, Value: 0xC00},
	{Mask: 0xF00, Value: 0xD00},
}

var silvermontPoints = map[uint32]bool{
	0x1A0: true, 0x0CE: true, 0x1AD: true, 0x19C: true,
	msrOffcoreRspIA: true, msrOffcoreRspIB: true, msrOffcoreRspIIB: true,
}

// SilvermontPolicy is the MSR allow-list for Atom Silvermont-family cores.
func SilvermontPolicy() *MSRPolicy {
	return &MSRPolicy{Name: "silvermont", Ranges: silvermontRanges, Points: silvermontPoints}
}

// KNLPolicy extends SilvermontPolicy with the Knights Landing uncore
// configuration blocks at 0x700, 0xE00 and 0xF00.
func KNLPolicy() *MSRPolicy {
	ranges := append(append([]MaskTest{}, silvermontRanges...),
		MaskTest{Mask: 0xF00, Value: 0x700},
		MaskTest{Mask: 0xF00, Value: 0xE00},
		MaskTest{Mask: 0xF00, Value: 0xF00},
	)
	return &MSRPolicy{Name: "knl", Ranges: ranges, Points: clonePoints(silvermontPoints)}
}

// AMDPolicy is the MSR allow-list for K8/K10-family cores: the single
// performance-event-select/counter block at 0xC001_0000-0xC001_000F.
func AMDPolicy() *MSRPolicy {
	return &MSRPolicy{
		Name:   "amd",
		Ranges: []MaskTest{{Mask: 0xFFFFFFF0, Value: 0xC0010000}},
	}
}

// AMD15Policy extends AMDPolicy with the K15 (Bulldozer-family) northbridge
// performance counters at 0xC001_0200 and the IBS event-selection block at
// 0xC001_0240-0xC001_0247.
func AMD15Policy() *MSRPolicy {
	return &MSRPolicy{
		Name: "amd15",
		Ranges: []MaskTest{
			{Mask: 0xFFFFFFF0, Value: 0xC0010000},
			{Mask: 0xFFFFFFF0, Value: 0xC0010200},
			{Mask: 0xFFFFFFF8, Value: 0xC0010240},
		},
	}
}

// AMD16Policy is AMD15Policy without the northbridge counter range, which
// K16 (Jaguar-family) cores don't implement.
func AMD16Policy() *MSRPolicy {
	return &MSRPolicy{
		Name: "amd16",
		Ranges: []MaskTest{
			{Mask: 0xFFFFFFF0, Value: 0xC0010000},
			{Mask: 0xFFFFFFF8, Value: 0xC0010240},
		},
	}
}

func clonePoints(src map[uint32]bool) map[uint32]bool {
	dst := make(map[uint32]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func pointPolicy(name string, regs ...uint32) *MSRPolicy {
	points := make(map[uint32]bool, len(regs))
	for _, r := range regs {
		points[r] = true
	}
	return &MSRPolicy{Name: name, Points: points}
}

// PCISandybridgePolicy is the uncore PCI allow-list for Sandy Bridge-EP
// and Ivy Bridge-EP: any non-monitoring device is always reachable (it's
// only ever touched to read the socket-to-bus mapping byte), and each
// monitoring device kind exposes its own fixed register set.
func PCISandybridgePolicy() *PCIPolicy {
	return &PCIPolicy{
		Name:              "pci_sandybridge",
		AllowUnlistedKind: true,
		Kinds: map[PCIDeviceKind]*MSRPolicy{
			R3QPI: pointPolicy("r3qpi",
				pciUncR3QPIPmonBoxCtl, pciUncR3QPIPmonBoxStatus,
				pciUncR3QPIPmonCtl0, pciUncR3QPIPmonCtl1, pciUncR3QPIPmonCtl2,
				pciUncR3QPIPmonCtr0A, pciUncR3QPIPmonCtr1A, pciUncR3QPIPmonCtr2A,
				pciUncR3QPIPmonCtr0B, pciUncR3QPIPmonCtr1B, pciUncR3QPIPmonCtr2B,
			),
			R2PCIE: pointPolicy("r2pcie",
				pciUncR2PCIePmonBoxCtl, pciUncR2PCIePmonBoxStatus,
				pciUncR2PCIePmonCtl0, pciUncR2PCIePmonCtl1, pciUncR2PCIePmonCtl2, pciUncR2PCIePmonCtl3,
				pciUncR2PCIePmonCtr0A, pciUncR2PCIePmonCtr1A, pciUncR2PCIePmonCtr2A, pciUncR2PCIePmonCtr3A,
				pciUncR2PCIePmonCtr0B, pciUncR2PCIePmonCtr1B, pciUncR2PCIePmonCtr2B, pciUncR2PCIePmonCtr3B,
			),
			IMC: pointPolicy("imc",
				pciUncMCPmonBoxCtl, pciUncMCPmonBoxStatus,
				pciUncMCPmonCtl0, pciUncMCPmonCtl1, pciUncMCPmonCtl2, pciUncMCPmonCtl3,
				pciUncMCPmonCtr0A, pciUncMCPmonCtr1A, pciUncMCPmonCtr2A, pciUncMCPmonCtr3A,
				pciUncMCPmonCtr0B, pciUncMCPmonCtr1B, pciUncMCPmonCtr2B, pciUncMCPmonCtr3B,
				pciUncMCPmonFixedCtl, pciUncMCPmonFixedCtrA, pciUncMCPmonFixedCtrB,
			),
			HA: pointPolicy("ha",
				pciUncHAPmonBoxCtl, pciUncHAPmonBoxStatus,
				pciUncHAPmonCtl0, pciUncHAPmonCtl1, pciUncHAPmonCtl2, pciUncHAPmonCtl3,
				pciUncHAPmonCtr0A, pciUncHAPmonCtr1A, pciUncHAPmonCtr2A, pciUncHAPmonCtr3A,
				pciUncHAPmonCtr0B, pciUncHAPmonCtr1B, pciUncHAPmonCtr2B, pciUncHAPmonCtr3B,
				pciUncHAPmonOpcodeMatch, pciUncHAPmonAddrMatch0, pciUncHAPmonAddrMatch1,
			),
			QPI: pointPolicy("qpi",
				pciUncQPIPmonBoxCtl, pciUncQPIPmonBoxStatus,
				pciUncQPIPmonCtl0, pciUncQPIPmonCtl1, pciUncQPIPmonCtl2, pciUncQPIPmonCtl3,
				pciUncQPIPmonCtr0A, pciUncQPIPmonCtr1A, pciUncQPIPmonCtr2A, pciUncQPIPmonCtr3A,
				pciUncQPIPmonCtr0B, pciUncQPIPmonCtr1B, pciUncQPIPmonCtr2B, pciUncQPIPmonCtr3B,
				pciUncQPIPmonMask0, pciUncQPIPmonMask1, pciUncQPIPmonMatch0, pciUncQPIPmonMatch1,
				pciUncQPIRateStatus,
			),
			IRP: pointPolicy("irp",
				pciUncIRPPmonBoxStatus, pciUncIRPPmonBoxCtl,
				pciUncIRP0PmonCtl0, pciUncIRP0PmonCtl1, pciUncIRP0PmonCtr0, pciUncIRP0PmonCtr1,
				pciUncIRP1PmonCtl0, pciUncIRP1PmonCtl1, pciUncIRP1PmonCtr0, pciUncIRP1PmonCtr1,
			),
		},
	}
}

// PCIHaswellPolicy is PCISandybridgePolicy with the QPI box replaced by
// its Haswell-EP/Broadwell-EP "V3" register layout; every other device
// kind is unchanged.
func PCIHaswellPolicy() *PCIPolicy {
	sb := PCISandybridgePolicy()
	return &PCIPolicy{
		Name:              "pci_haswell",
		AllowUnlistedKind: true,
		Kinds: map[PCIDeviceKind]*MSRPolicy{
			R3QPI:  sb.Kinds[R3QPI],
			R2PCIE: sb.Kinds[R2PCIE],
			IMC:    sb.Kinds[IMC],
			HA:     sb.Kinds[HA],
			QPI: pointPolicy("qpi_v3",
				pciUncV3QPIPmonBoxCtl, pciUncV3QPIPmonBoxStatus,
				pciUncV3QPIPmonCtl0, pciUncV3QPIPmonCtl1, pciUncV3QPIPmonCtl2, pciUncV3QPIPmonCtl3,
				pciUncV3QPIPmonCtr0A, pciUncV3QPIPmonCtr1A, pciUncV3QPIPmonCtr2A, pciUncV3QPIPmonCtr3A,
				pciUncV3QPIPmonCtr0B, pciUncV3QPIPmonCtr1B, pciUncV3QPIPmonCtr2B, pciUncV3QPIPmonCtr3B,
				pciUncV3QPIPmonRxMask0, pciUncV3QPIPmonRxMask1, pciUncV3QPIPmonRxMatch0, pciUncV3QPIPmonRxMatch1,
				pciUncV3QPIPmonTxMask0, pciUncV3QPIPmonTxMask1, pciUncV3QPIPmonTxMatch0, pciUncV3QPIPmonTxMatch1,
				pciUncV3QPIRateStatus, pciUncV3QPILinkLLR, pciUncV3QPILinkIdle,
			),
		},
	}
}

// PCIKNLPolicy is the uncore PCI allow-list for Knights Landing. Unlike
// the Sandy Bridge and Haswell policies, the upstream switch has no
// NODEVTYPE case here — an unlisted device kind falls to the switch's
// default and is restricted, not allowed. That asymmetry is preserved
// rather than "fixed" to match Sandy Bridge/Haswell, since nothing in the
// daemon's design says which behavior is the bug.
func PCIKNLPolicy() *PCIPolicy {
	return &PCIPolicy{
		Name:              "pci_knl",
		AllowUnlistedKind: false,
		Kinds: map[PCIDeviceKind]*MSRPolicy{
			EDC: pointPolicy("edc",
				pciMIC2EDCUCtr0A, pciMIC2EDCUCtr0B, pciMIC2EDCUCtr1A, pciMIC2EDCUCtr1B,
				pciMIC2EDCUCtr2A, pciMIC2EDCUCtr2B, pciMIC2EDCUCtr3A, pciMIC2EDCUCtr3B,
				pciMIC2EDCUCtrl0, pciMIC2EDCUCtrl1, pciMIC2EDCUCtrl2, pciMIC2EDCUCtrl3,
				pciMIC2EDCUBoxCtrl, pciMIC2EDCUBoxStatus, pciMIC2EDCUFixedCtrA, pciMIC2EDCUFixedCtrB, pciMIC2EDCUFixedCtrl,
				pciMIC2EDCDCtr0A, pciMIC2EDCDCtr0B, pciMIC2EDCDCtr1A, pciMIC2EDCDCtr1B,
				pciMIC2EDCDCtr2A, pciMIC2EDCDCtr2B, pciMIC2EDCDCtr3A, pciMIC2EDCDCtr3B,
				pciMIC2EDCDCtrl0, pciMIC2EDCDCtrl1, pciMIC2EDCDCtrl2, pciMIC2EDCDCtrl3,
				pciMIC2EDCDBoxCtrl, pciMIC2EDCDBoxStatus, pciMIC2EDCDFixedCtrA, pciMIC2EDCDFixedCtrB, pciMIC2EDCDFixedCtrl,
			),
			IMC: pointPolicy("imc",
				pciMIC2MCUCtr0A, pciMIC2MCUCtr0B, pciMIC2MCUCtr1A, pciMIC2MCUCtr1B,
				pciMIC2MCUCtr2A, pciMIC2MCUCtr2B, pciMIC2MCUCtr3A, pciMIC2MCUCtr3B,
				pciMIC2MCUCtrl0, pciMIC2MCUCtrl1, pciMIC2MCUCtrl2, pciMIC2MCUCtrl3,
				pciMIC2MCUBoxCtrl, pciMIC2MCUBoxStatus, pciMIC2MCUFixedCtrA, pciMIC2MCUFixedCtrB, pciMIC2MCUFixedCtrl,
				pciMIC2MCDCtr0A, pciMIC2MCDCtr0B, pciMIC2MCDCtr1A, pciMIC2MCDCtr1B,
				pciMIC2MCDCtr2A, pciMIC2MCDCtr2B, pciMIC2MCDCtr3A, pciMIC2MCDCtr3B,
				pciMIC2MCDCtrl0, pciMIC2MCDCtrl1, pciMIC2MCDCtrl2, pciMIC2MCDCtrl3,
				pciMIC2MCDBoxCtrl, pciMIC2MCDBoxStatus, pciMIC2MCDFixedCtrA, pciMIC2MCDFixedCtrB, pciMIC2MCDFixedCtrl,
			),
			R2PCIE: pointPolicy("r2pcie",
				pciMIC2M2PCIeCtr0A, pciMIC2M2PCIeCtr0B, pciMIC2M2PCIeCtr1A, pciMIC2M2PCIeCtr1B,
				pciMIC2M2PCIeCtr2A, pciMIC2M2PCIeCtr2B, pciMIC2M2PCIeCtr3A, pciMIC2M2PCIeCtr3B,
				pciMIC2M2PCIeCtrl0, pciMIC2M2PCIeCtrl1, pciMIC2M2PCIeCtrl2, pciMIC2M2PCIeCtrl3,
				pciMIC2M2PCIeBoxCtrl, pciMIC2M2PCIeBoxStatus,
			),
			IRP: pointPolicy("irp",
				pciMIC2IRPCtr0, pciMIC2IRPCtr1, pciMIC2IRPCtrl0, pciMIC2IRPCtrl1,
				pciMIC2IRPBoxCtrl, pciMIC2IRPBoxStatus,
			),
		},
	}
}
