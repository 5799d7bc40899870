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

package accesslog_test

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwpmu/accessd/internal/accesslog"
)

func TestDeniedCarriesRegisterAndDeviceFields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	entry := logrus.NewEntry(logger)

	accesslog.Denied(entry, 3, 0x1A0, "HA0", "haswell")

	require.Len(t, hook.Entries, 1)
	e := hook.Entries[0]
	assert.Equal(t, logrus.WarnLevel, e.Level)
	assert.Equal(t, uint32(3), e.Data["cpu_or_socket"])
	assert.Equal(t, "HA0", e.Data["device"])
	assert.Equal(t, "0x1a0", e.Data["register"])
}

func TestOpenFailedCarriesUnderlyingError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	entry := logrus.NewEntry(logger)

	accesslog.OpenFailed(entry, 0, "IMC0", errors.New("permission denied"))

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "permission denied", hook.Entries[0].Data[logrus.ErrorKey].(error).Error())
}

func TestLockedCarriesRegisterOnly(t *testing.T) {
	logger, hook := test.NewNullLogger()
	entry := logrus.NewEntry(logger)

	accesslog.Locked(entry, 0x0C1)

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "0xc1", hook.Entries[0].Data["register"])
	assert.NotContains(t, hook.Entries[0].Data, "device")
}

func TestWithConnectionAttachesConnectionField(t *testing.T) {
	logger, hook := test.NewNullLogger()
	accesslog.SetLogger(logger)

	entry := accesslog.WithConnection("conn-1")
	entry.Warn("test")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "conn-1", hook.Entries[0].Data["connection"])
}
