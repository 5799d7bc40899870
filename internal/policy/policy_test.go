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

package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwpmu/accessd/internal/policy"
)

func TestIntelPolicyAllowsDocumentedRegisters(t *testing.T) {
	p := policy.IntelPolicy(4)
	for _, reg := range []uint32{0x0C0, 0x0CF, 0x180, 0x18F, 0x300, 0xC00, 0xD00, 0xE00, 0xF00, 0x1A0, 0xCD, 0x1B1} {
		assert.Truef(t, p.Allowed(reg), "expected 0x%X to be allowed", reg)
	}
}

func TestIntelPolicyRestrictsArbitraryRegister(t *testing.T) {
	p := policy.IntelPolicy(4)
	assert.False(t, p.Allowed(0x017))
}

func TestIntelPolicyWidePMCRangeGatedOnCounterCount(t *testing.T) {
	narrow := policy.IntelPolicy(2)
	wide := policy.IntelPolicy(8)

	assert.False(t, narrow.Allowed(0x193))
	assert.True(t, wide.Allowed(0x193))
}

func TestSandybridgePolicySupersetsIntel(t *testing.T) {
	intel := policy.IntelPolicy(4)
	sb := policy.SandybridgePolicy(4)

	for reg := uint32(0); reg < 0x2000; reg++ {
		if intel.Allowed(reg) {
			assert.Truef(t, sb.Allowed(reg), "sandybridge must allow everything intel allows (0x%X)", reg)
		}
	}

	assert.True(t, sb.Allowed(0x600))
	assert.True(t, sb.Allowed(0x700))
}

func TestHaswellPolicyEqualsSandybridgePolicy(t *testing.T) {
	sb := policy.SandybridgePolicy(4)
	hsw := policy.HaswellPolicy(4)

	for reg := uint32(0); reg < 0x2000; reg++ {
		assert.Equal(t, sb.Allowed(reg), hsw.Allowed(reg), "reg 0x%X", reg)
	}
}

func TestSilvermontAndKNLPolicies(t *testing.T) {
	sm := policy.SilvermontPolicy()
	knl := policy.KNLPolicy()

	assert.True(t, sm.Allowed(0x0C0))
	assert.False(t, sm.Allowed(0x700))

	assert.True(t, knl.Allowed(0x0C0))
	assert.True(t, knl.Allowed(0x700))
	assert.True(t, knl.Allowed(0xE00))
}

func TestAMDPolicyFamily(t *testing.T) {
	amd := policy.AMDPolicy()
	amd15 := policy.AMD15Policy()
	amd16 := policy.AMD16Policy()

	assert.True(t, amd.Allowed(0xC0010003))
	assert.False(t, amd.Allowed(0xC0010200))

	assert.True(t, amd15.Allowed(0xC0010003))
	assert.True(t, amd15.Allowed(0xC0010203))
	assert.True(t, amd15.Allowed(0xC0010244))

	assert.True(t, amd16.Allowed(0xC0010003))
	assert.False(t, amd16.Allowed(0xC0010203))
	assert.True(t, amd16.Allowed(0xC0010244))
}

func TestPCIPolicyNoDevTypeDefaultsDifferByMicroarch(t *testing.T) {
	sb := policy.PCISandybridgePolicy()
	hsw := policy.PCIHaswellPolicy()
	knl := policy.PCIKNLPolicy()

	assert.True(t, sb.Allowed(policy.NoDevKind, 0x0))
	assert.True(t, hsw.Allowed(policy.NoDevKind, 0x0))
	assert.False(t, knl.Allowed(policy.NoDevKind, 0x0), "KNL's PCI switch has no NODEVTYPE case")
}

func TestPCIPolicyRestrictsUnlistedKind(t *testing.T) {
	sb := policy.PCISandybridgePolicy()
	assert.False(t, sb.Allowed(policy.EDC, 0x700))
}

func TestPCIHaswellReusesSandybridgeKindsExceptQPI(t *testing.T) {
	sb := policy.PCISandybridgePolicy()
	hsw := policy.PCIHaswellPolicy()

	require.NotNil(t, sb.Kinds[policy.IMC])
	require.NotNil(t, hsw.Kinds[policy.IMC])
	assert.Equal(t, sb.Kinds[policy.IMC], hsw.Kinds[policy.IMC])
	assert.NotEqual(t, sb.Kinds[policy.QPI], hsw.Kinds[policy.QPI])
}

func TestSelectCoversEveryDocumentedMicroarch(t *testing.T) {
	cases := []struct {
		family, model uint32
		wantArch      policy.Microarch
		wantPCI       bool
	}{
		{0x06, 0x2A, policy.MicroarchSandybridge, false},
		{0x06, 0x2D, policy.MicroarchSandybridgeEP, true},
		{0x06, 0x3C, policy.MicroarchHaswell, false},
		{0x06, 0x3F, policy.MicroarchHaswellEP, true},
		{0x06, 0x56, policy.MicroarchBroadwellD, true},
		{0x06, 0x4F, policy.MicroarchBroadwellE, true},
		{0x06, 0x4D, policy.MicroarchSilvermont, false},
		{0x06, 0x57, policy.MicroarchKNL, true},
		{0x06, 0x00, policy.MicroarchIntelGeneric, false},
		{0x0F, 0x00, policy.MicroarchAMD, false},
		{0x10, 0x00, policy.MicroarchAMD, false},
		{0x15, 0x00, policy.MicroarchAMD15, false},
		{0x16, 0x00, policy.MicroarchAMD16, false},
	}

	for _, c := range cases {
		sel, ok := policy.Select(c.family, c.model, 4)
		require.Truef(t, ok, "family 0x%X model 0x%X should resolve", c.family, c.model)
		assert.Equal(t, c.wantArch, sel.Microarch)
		assert.Equal(t, c.wantPCI, sel.HasPCIUncore)
		assert.NotNil(t, sel.MSR)
	}
}

func TestSelectRejectsUnsupportedFamily(t *testing.T) {
	_, ok := policy.Select(0x99, 0x00, 4)
	assert.False(t, ok)
}
