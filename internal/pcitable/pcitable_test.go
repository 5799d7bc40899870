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

package pcitable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwpmu/accessd/internal/pcitable"
	"github.com/hwpmu/accessd/internal/policy"
)

func TestDeviceTableForKnownMicroarch(t *testing.T) {
	p := pcitable.NewStatic()

	tbl, ok := p.DeviceTableFor(policy.MicroarchHaswellEP)
	require.True(t, ok)
	require.NotEmpty(t, tbl)
	assert.Equal(t, policy.PCIDeviceKind(0), tbl[0].Kind)
	assert.False(t, tbl[0].Online)
}

func TestDeviceTableForUnsupportedMicroarch(t *testing.T) {
	p := pcitable.NewStatic()

	_, ok := p.DeviceTableFor(policy.MicroarchSandybridge)
	assert.False(t, ok)
}

func TestStaticInstancesAreIndependentlyMutable(t *testing.T) {
	a := pcitable.NewStatic()
	b := pcitable.NewStatic()

	tblA, _ := a.DeviceTableFor(policy.MicroarchKNL)
	tblA[1].Online = true

	tblB, _ := b.DeviceTableFor(policy.MicroarchKNL)
	assert.False(t, tblB[1].Online)
}
