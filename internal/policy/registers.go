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

// Named point-exception MSRs that the range tests in tables.go don't
// cover. Values match the public Intel/AMD SDM register offsets; MSRAltPEBS
// is the one exception — its defining header wasn't part of the retrieved
// source tree, so the value here is a representative placeholder (see
// DESIGN.md).
const (
	msrOffcoreRspIA  uint32 = 0x1A2
	msrOffcoreRspIB  uint32 = 0x1A6
	msrOffcoreRspIIB uint32 = 0x1A7
	msrPebsEnable    uint32 = 0x3F1
	msrPebsLdLat     uint32 = 0x3F6
	msrAltPEBS       uint32 = 0x5C0
)

// Named PCI uncore register offsets. The upstream header defining these
// (perfmon_*_counters.h) wasn't part of the retrieved source tree; the
// values below are representative placeholders that preserve the register
// *names* the allow-lists are built from and the property that every name
// is a distinct offset. See DESIGN.md.
const (
	pciUncR3QPIPmonBoxCtl    uint32 = 0xF00
	pciUncR3QPIPmonBoxStatus uint32 = 0xF04
	pciUncR3QPIPmonCtl0      uint32 = 0xF08
	pciUncR3QPIPmonCtl1      uint32 = 0xF0C
	pciUncR3QPIPmonCtl2      uint32 = 0xF10
	pciUncR3QPIPmonCtr0A     uint32 = 0xF20
	pciUncR3QPIPmonCtr1A     uint32 = 0xF28
	pciUncR3QPIPmonCtr2A     uint32 = 0xF30
	pciUncR3QPIPmonCtr0B     uint32 = 0xF24
	pciUncR3QPIPmonCtr1B     uint32 = 0xF2C
	pciUncR3QPIPmonCtr2B     uint32 = 0xF34

	pciUncR2PCIePmonBoxCtl    uint32 = 0xE00
	pciUncR2PCIePmonBoxStatus uint32 = 0xE04
	pciUncR2PCIePmonCtl0      uint32 = 0xE08
	pciUncR2PCIePmonCtl1      uint32 = 0xE0C
	pciUncR2PCIePmonCtl2      uint32 = 0xE10
	pciUncR2PCIePmonCtl3      uint32 = 0xE14
	pciUncR2PCIePmonCtr0A     uint32 = 0xE20
	pciUncR2PCIePmonCtr1A     uint32 = 0xE28
	pciUncR2PCIePmonCtr2A     uint32 = 0xE30
	pciUncR2PCIePmonCtr3A     uint32 = 0xE38
	pciUncR2PCIePmonCtr0B     uint32 = 0xE24
	pciUncR2PCIePmonCtr1B     uint32 = 0xE2C
	pciUncR2PCIePmonCtr2B     uint32 = 0xE34
	pciUncR2PCIePmonCtr3B     uint32 = 0xE3C

	pciUncMCPmonBoxCtl      uint32 = 0xD00
	pciUncMCPmonBoxStatus   uint32 = 0xD04
	pciUncMCPmonCtl0        uint32 = 0xD08
	pciUncMCPmonCtl1        uint32 = 0xD0C
	pciUncMCPmonCtl2        uint32 = 0xD10
	pciUncMCPmonCtl3        uint32 = 0xD14
	pciUncMCPmonCtr0A       uint32 = 0xD20
	pciUncMCPmonCtr1A       uint32 = 0xD28
	pciUncMCPmonCtr2A       uint32 = 0xD30
	pciUncMCPmonCtr3A       uint32 = 0xD38
	pciUncMCPmonCtr0B       uint32 = 0xD24
	pciUncMCPmonCtr1B       uint32 = 0xD2C
	pciUncMCPmonCtr2B       uint32 = 0xD34
	pciUncMCPmonCtr3B       uint32 = 0xD3C
	pciUncMCPmonFixedCtl    uint32 = 0xD40
	pciUncMCPmonFixedCtrA   uint32 = 0xD44
	pciUncMCPmonFixedCtrB   uint32 = 0xD48

	pciUncHAPmonBoxCtl      uint32 = 0xC00
	pciUncHAPmonBoxStatus   uint32 = 0xC04
	pciUncHAPmonCtl0        uint32 = 0xC08
	pciUncHAPmonCtl1        uint32 = 0xC0C
	pciUncHAPmonCtl2        uint32 = 0xC10
	pciUncHAPmonCtl3        uint32 = 0xC14
	pciUncHAPmonCtr0A       uint32 = 0xC20
	pciUncHAPmonCtr1A       uint32 = 0xC28
	pciUncHAPmonCtr2A       uint32 = 0xC30
	pciUncHAPmonCtr3A       uint32 = 0xC38
	pciUncHAPmonCtr0B       uint32 = 0xC24
	pciUncHAPmonCtr1B       uint32 = 0xC2C
	pciUncHAPmonCtr2B       uint32 = 0xC34
	pciUncHAPmonCtr3B       uint32 = 0xC3C
	pciUncHAPmonOpcodeMatch uint32 = 0xC40
	pciUncHAPmonAddrMatch0  uint32 = 0xC44
	pciUncHAPmonAddrMatch1  uint32 = 0xC48

	pciUncQPIPmonBoxCtl    uint32 = 0xB00
	pciUncQPIPmonBoxStatus uint32 = 0xB04
	pciUncQPIPmonCtl0      uint32 = 0xB08
	pciUncQPIPmonCtl1      uint32 = 0xB0C
	pciUncQPIPmonCtl2      uint32 = 0xB10
	pciUncQPIPmonCtl3      uint32 = 0xB14
	pciUncQPIPmonCtr0A     uint32 = 0xB20
	pciUncQPIPmonCtr1A     uint32 = 0xB28
	pciUncQPIPmonCtr2A     uint32 = 0xB30
	pciUncQPIPmonCtr3A     uint32 = 0xB38
	pciUncQPIPmonCtr0B     uint32 = 0xB24
	pciUncQPIPmonCtr1B     uint32 = 0xB2C
	pciUncQPIPmonCtr2B     uint32 = 0xB34
	pciUncQPIPmonCtr3B     uint32 = 0xB3C
	pciUncQPIPmonMask0     uint32 = 0xB40
	pciUncQPIPmonMask1     uint32 = 0xB44
	pciUncQPIPmonMatch0    uint32 = 0xB48
	pciUncQPIPmonMatch1    uint32 = 0xB4C
	pciUncQPIRateStatus    uint32 = 0xB50

	pciUncIRPPmonBoxStatus uint32 = 0xA00
	pciUncIRPPmonBoxCtl    uint32 = 0xA04
	pciUncIRP0PmonCtl0     uint32 = 0xA08
	pciUncIRP0PmonCtl1     uint32 = 0xA0C
	pciUncIRP0PmonCtr0     uint32 = 0xA10
	pciUncIRP0PmonCtr1     uint32 = 0xA14
	pciUncIRP1PmonCtl0     uint32 = 0xA18
	pciUncIRP1PmonCtl1     uint32 = 0xA1C
	pciUncIRP1PmonCtr0     uint32 = 0xA20
	pciUncIRP1PmonCtr1     uint32 = 0xA24

	pciUncV3QPIPmonBoxCtl     uint32 = 0x900
	pciUncV3QPIPmonBoxStatus  uint32 = 0x904
	pciUncV3QPIPmonCtl0       uint32 = 0x908
	pciUncV3QPIPmonCtl1       uint32 = 0x90C
	pciUncV3QPIPmonCtl2       uint32 = 0x910
	pciUncV3QPIPmonCtl3       uint32 = 0x914
	pciUncV3QPIPmonCtr0A      uint32 = 0x920
	pciUncV3QPIPmonCtr1A      uint32 = 0x928
	pciUncV3QPIPmonCtr2A      uint32 = 0x930
	pciUncV3QPIPmonCtr3A      uint32 = 0x938
	pciUncV3QPIPmonCtr0B      uint32 = 0x924
	pciUncV3QPIPmonCtr1B      uint32 = 0x92C
	pciUncV3QPIPmonCtr2B      uint32 = 0x934
	pciUncV3QPIPmonCtr3B      uint32 = 0x93C
	pciUncV3QPIPmonRxMask0    uint32 = 0x940
	pciUncV3QPIPmonRxMask1    uint32 = 0x944
	pciUncV3QPIPmonRxMatch0   uint32 = 0x948
	pciUncV3QPIPmonRxMatch1   uint32 = 0x94C
	pciUncV3QPIPmonTxMask0    uint32 = 0x950
	pciUncV3QPIPmonTxMask1    uint32 = 0x954
	pciUncV3QPIPmonTxMatch0   uint32 = 0x958
	pciUncV3QPIPmonTxMatch1   uint32 = 0x95C
	pciUncV3QPIRateStatus     uint32 = 0x960
	pciUncV3QPILinkLLR        uint32 = 0x964
	pciUncV3QPILinkIdle       uint32 = 0x968
)

// Named KNL (Xeon Phi) PCI MIC2 register offsets; same provenance note as
// the block above.
const (
	pciMIC2EDCUCtr0A      uint32 = 0x700
	pciMIC2EDCUCtr0B      uint32 = 0x704
	pciMIC2EDCUCtr1A      uint32 = 0x708
	pciMIC2EDCUCtr1B      uint32 = 0x70C
	pciMIC2EDCUCtr2A      uint32 = 0x710
	pciMIC2EDCUCtr2B      uint32 = 0x714
	pciMIC2EDCUCtr3A      uint32 = 0x718
	pciMIC2EDCUCtr3B      uint32 = 0x71C
	pciMIC2EDCUCtrl0      uint32 = 0x720
	pciMIC2EDCUCtrl1      uint32 = 0x724
	pciMIC2EDCUCtrl2      uint32 = 0x728
	pciMIC2EDCUCtrl3      uint32 = 0x72C
	pciMIC2EDCUBoxCtrl    uint32 = 0x730
	pciMIC2EDCUBoxStatus  uint32 = 0x734
	pciMIC2EDCUFixedCtrA  uint32 = 0x738
	pciMIC2EDCUFixedCtrB  uint32 = 0x73C
	pciMIC2EDCUFixedCtrl  uint32 = 0x740
	pciMIC2EDCDCtr0A      uint32 = 0x744
	pciMIC2EDCDCtr0B      uint32 = 0x748
	pciMIC2EDCDCtr1A      uint32 = 0x74C
	pciMIC2EDCDCtr1B      uint32 = 0x750
	pciMIC2EDCDCtr2A      uint32 = 0x754
	pciMIC2EDCDCtr2B      uint32 = 0x758
	pciMIC2EDCDCtr3A      uint32 = 0x75C
	pciMIC2EDCDCtr3B      uint32 = 0x760
	pciMIC2EDCDCtrl0      uint32 = 0x764
	pciMIC2EDCDCtrl1      uint32 = 0x768
	pciMIC2EDCDCtrl2      uint32 = 0x76C
	pciMIC2EDCDCtrl3      uint32 = 0x770
	pciMIC2EDCDBoxCtrl    uint32 = 0x774
	pciMIC2EDCDBoxStatus  uint32 = 0x778
	pciMIC2EDCDFixedCtrA  uint32 = 0x77C
	pciMIC2EDCDFixedCtrB  uint32 = 0x780
	pciMIC2EDCDFixedCtrl  uint32 = 0x784

	pciMIC2MCUCtr0A      uint32 = 0x600
	pciMIC2MCUCtr0B      uint32 = 0x604
	pciMIC2MCUCtr1A      uint32 = 0x608
	pciMIC2MCUCtr1B      uint32 = 0x60C
	pciMIC2MCUCtr2A      uint32 = 0x610
	pciMIC2MCUCtr2B      uint32 = 0x614
	pciMIC2MCUCtr3A      uint32 = 0x618
	pciMIC2MCUCtr3B      uint32 = 0x61C
	pciMIC2MCUCtrl0      uint32 = 0x620
	pciMIC2MCUCtrl1      uint32 = 0x624
	pciMIC2MCUCtrl2      uint32 = 0x628
	pciMIC2MCUCtrl3      uint32 = 0x62C
	pciMIC2MCUBoxCtrl    uint32 = 0x630
	pciMIC2MCUBoxStatus  uint32 = 0x634
	pciMIC2MCUFixedCtrA  uint32 = 0x638
	pciMIC2MCUFixedCtrB  uint32 = 0x63C
	pciMIC2MCUFixedCtrl  uint32 = 0x640
	pciMIC2MCDCtr0A      uint32 = 0x644
	pciMIC2MCDCtr0B      uint32 = 0x648
	pciMIC2MCDCtr1A      uint32 = 0x64C
	pciMIC2MCDCtr1B      uint32 = 0x650
	pciMIC2MCDCtr2A      uint32 = 0x654
	pciMIC2MCDCtr2B      uint32 = 0x658
	pciMIC2MCDCtr3A      uint32 = 0x65C
	pciMIC2MCDCtr3B      uint32 = 0x660
	pciMIC2MCDCtrl0      uint32 = 0x664
	pciMIC2MCDCtrl1      uint32 = 0x668
	pciMIC2MCDCtrl2      uint32 = 0x66C
	pciMIC2MCDCtrl3      uint32 = 0x670
	pciMIC2MCDBoxCtrl    uint32 = 0x674
	pciMIC2MCDBoxStatus  uint32 = 0x678
	pciMIC2MCDFixedCtrA  uint32 = 0x67C
	pciMIC2MCDFixedCtrB  uint32 = 0x680
	pciMIC2MCDFixedCtrl  uint32 = 0x684

	pciMIC2M2PCIeCtr0A     uint32 = 0x500
	pciMIC2M2PCIeCtr0B     uint32 = 0x504
	pciMIC2M2PCIeCtr1A     uint32 = 0x508
	pciMIC2M2PCIeCtr1B     uint32 = 0x50C
	pciMIC2M2PCIeCtr2A     uint32 = 0x510
	pciMIC2M2PCIeCtr2B     uint32 = 0x514
	pciMIC2M2PCIeCtr3A     uint32 = 0x518
	pciMIC2M2PCIeCtr3B     uint32 = 0x51C
	pciMIC2M2PCIeCtrl0     uint32 = 0x520
	pciMIC2M2PCIeCtrl1     uint32 = 0x524
	pciMIC2M2PCIeCtrl2     uint32 = 0x528
	pciMIC2M2PCIeCtrl3     uint32 = 0x52C
	pciMIC2M2PCIeBoxCtrl   uint32 = 0x530
	pciMIC2M2PCIeBoxStatus uint32 = 0x534

	pciMIC2IRPCtr0      uint32 = 0x400
	pciMIC2IRPCtr1      uint32 = 0x404
	pciMIC2IRPCtrl0     uint32 = 0x408
	pciMIC2IRPCtrl1     uint32 = 0x40C
	pciMIC2IRPBoxCtrl   uint32 = 0x410
	pciMIC2IRPBoxStatus uint32 = 0x414
)
