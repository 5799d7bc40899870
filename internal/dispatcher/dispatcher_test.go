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

package dispatcher_test

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwpmu/accessd/internal/dispatcher"
	"github.com/hwpmu/accessd/internal/lock"
	"github.com/hwpmu/accessd/internal/pcitable"
	"github.com/hwpmu/accessd/internal/policy"
	"github.com/hwpmu/accessd/internal/regio"
	"github.com/hwpmu/accessd/internal/wire"
)

// fakeConn feeds a preloaded stream of requests to Serve and captures
// every response it writes back, so a test can assert on the whole
// response sequence without a real socket.
type fakeConn struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func newFakeConn(requests ...wire.Record) *fakeConn {
	var buf bytes.Buffer
	for _, r := range requests {
		buf.Write(r.Encode())
	}
	return &fakeConn{in: bytes.NewReader(buf.Bytes())}
}

func (c *fakeConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *fakeConn) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c *fakeConn) responses(t *testing.T) []wire.Record {
	t.Helper()
	data := c.out.Bytes()
	require.Zero(t, len(data)%wire.RecordSize)
	var out []wire.Record
	for len(data) > 0 {
		rec, err := wire.Decode(data[:wire.RecordSize])
		require.NoError(t, err)
		out = append(out, rec)
		data = data[wire.RecordSize:]
	}
	return out
}

// haswellEPContext builds a ServiceContext for the Haswell-EP MSR/PCI
// policy pair with cpu 0's MSR file and socket 0's HA0 PCI device both
// backed by an in-memory filesystem.
func haswellEPContext(t *testing.T) *dispatcher.ServiceContext {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, regio.MSRPath(0), make([]byte, 4096), 0600))
	require.NoError(t, afero.WriteFile(fs, regio.PCIPath(0x7f, "0e.1"), make([]byte, 4096), 0600))

	table := regio.New(fs)
	table.DeclareCPU(0)
	require.NoError(t, table.OpenMSR(0), "bootstrap always opens every declared cpu's MSR file eagerly")
	table.SetSocketBus(0, 0x7f)
	table.DeclarePCIDevice(0, 1) // index 1 == HA0 in haswellEPDevices

	devices, ok := pcitable.NewStatic().DeviceTableFor(policy.MicroarchHaswellEP)
	require.True(t, ok)

	sel, ok := policy.Select(0x06, 0x3F, 8) // Haswell-EP
	require.True(t, ok)

	return &dispatcher.ServiceContext{
		Selection:  sel,
		PCIDevices: devices,
		Table:      table,
		Lock:       lock.AlwaysAllowed{},
	}
}

func TestScenarioA_AllowedMSRReadSucceeds(t *testing.T) {
	svc := haswellEPContext(t)
	require.NoError(t, svc.Table.WriteMSR(0, 0x0C1, 0x42))

	conn := newFakeConn(wire.Record{Type: wire.Read, CPU: 0, Reg: 0x0C1, Device: wire.MSRDevice})
	require.NoError(t, dispatcher.Serve(conn, svc))

	resp := conn.responses(t)
	require.Len(t, resp, 1)
	assert.Equal(t, wire.NoError, resp[0].ErrorCode)
	assert.Equal(t, uint64(0x42), resp[0].Data)
}

func TestScenarioB_RestrictedMSRReadDenied(t *testing.T) {
	svc := haswellEPContext(t)

	conn := newFakeConn(wire.Record{Type: wire.Read, CPU: 0, Reg: 0x1A1, Device: wire.MSRDevice})
	require.NoError(t, dispatcher.Serve(conn, svc))

	resp := conn.responses(t)
	require.Len(t, resp, 1)
	assert.Equal(t, wire.RestrictedRegister, resp[0].ErrorCode)
	assert.Zero(t, resp[0].Data)
}

func TestScenarioD_PCIPolicyAllowsHARegisterDeniesForeignRegister(t *testing.T) {
	svc := haswellEPContext(t)

	allowed := newFakeConn(wire.Record{Type: wire.Write, CPU: 0, Reg: 0xC08, Device: 1, Data: 7})
	require.NoError(t, dispatcher.Serve(allowed, svc))
	resp := allowed.responses(t)
	require.Len(t, resp, 1)
	assert.Equal(t, wire.NoError, resp[0].ErrorCode)
	assert.Zero(t, resp[0].Data, "WRITE response must never echo the written value")

	denied := newFakeConn(wire.Record{Type: wire.Write, CPU: 0, Reg: 0xF08, Device: 1, Data: 7})
	require.NoError(t, dispatcher.Serve(denied, svc))
	resp = denied.responses(t)
	require.Len(t, resp, 1)
	assert.Equal(t, wire.RestrictedRegister, resp[0].ErrorCode, "R3QPI's register name must not be allowed against an HA device")
}

func TestScenarioE_CheckOnUndeclaredMSRReportsNoDeviceWithoutIO(t *testing.T) {
	svc := haswellEPContext(t)

	conn := newFakeConn(wire.Record{Type: wire.Check, CPU: 9, Device: wire.MSRDevice})
	require.NoError(t, dispatcher.Serve(conn, svc))

	resp := conn.responses(t)
	require.Len(t, resp, 1)
	assert.Equal(t, wire.NoDevice, resp[0].ErrorCode)
}

func TestScenarioF_ExitTerminatesWithoutResponse(t *testing.T) {
	svc := haswellEPContext(t)

	conn := newFakeConn(wire.Record{Type: wire.Exit})
	require.NoError(t, dispatcher.Serve(conn, svc))

	assert.Empty(t, conn.responses(t))
}

func TestCleanEOFTerminatesWithoutError(t *testing.T) {
	svc := haswellEPContext(t)

	conn := newFakeConn() // no requests at all: immediate EOF
	assert.NoError(t, dispatcher.Serve(conn, svc))
	assert.Empty(t, conn.responses(t))
}

func TestShortReadIsAFatalFramingFailure(t *testing.T) {
	svc := haswellEPContext(t)
	conn := &fakeConn{in: bytes.NewReader([]byte{1, 2, 3})} // shorter than one record

	err := dispatcher.Serve(conn, svc)
	assert.Error(t, err)
}

func TestUnknownRequestTypeRespondsUnknown(t *testing.T) {
	svc := haswellEPContext(t)

	conn := newFakeConn(wire.Record{Type: wire.RequestType(99), CPU: 0, Device: wire.MSRDevice})
	require.NoError(t, dispatcher.Serve(conn, svc))

	resp := conn.responses(t)
	require.Len(t, resp, 1)
	assert.Equal(t, wire.Unknown, resp[0].ErrorCode)
}

func TestLockedRefusesReadAndWriteButNotCheck(t *testing.T) {
	svc := haswellEPContext(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/lock", []byte("1"), 0644))
	svc.Lock = lock.FileChecker{Fs: fs, Path: "/lock"}

	conn := newFakeConn(
		wire.Record{Type: wire.Read, CPU: 0, Reg: 0x0C1, Device: wire.MSRDevice},
		wire.Record{Type: wire.Write, CPU: 0, Reg: 0x0C1, Device: wire.MSRDevice, Data: 5},
		wire.Record{Type: wire.Check, CPU: 0, Device: wire.MSRDevice},
	)
	require.NoError(t, dispatcher.Serve(conn, svc))

	resp := conn.responses(t)
	require.Len(t, resp, 3)
	assert.Equal(t, wire.Locked, resp[0].ErrorCode)
	assert.Equal(t, wire.Locked, resp[1].ErrorCode)
	assert.Equal(t, wire.NoError, resp[2].ErrorCode, "CHECK must bypass the lock")
}

func TestWriteResponseDataIsAlwaysZero(t *testing.T) {
	svc := haswellEPContext(t)

	conn := newFakeConn(wire.Record{Type: wire.Write, CPU: 0, Reg: 0x0C1, Device: wire.MSRDevice, Data: 0xDEADBEEF})
	require.NoError(t, dispatcher.Serve(conn, svc))

	resp := conn.responses(t)
	require.Len(t, resp, 1)
	assert.Zero(t, resp[0].Data)

	got, err := svc.Table.ReadMSR(0, 0x0C1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xDEADBEEF), got)
}

func TestPCIOpenFailureReportsOpenFailed(t *testing.T) {
	svc := haswellEPContext(t)
	// declare a PCI device whose backing file was never written to the fs.
	svc.Table.DeclarePCIDevice(0, 3) // IMC0 in haswellEPDevices

	conn := newFakeConn(wire.Record{Type: wire.Read, CPU: 0, Reg: 0xD08, Device: 3})
	require.NoError(t, dispatcher.Serve(conn, svc))

	resp := conn.responses(t)
	require.Len(t, resp, 1)
	assert.Equal(t, wire.OpenFailed, resp[0].ErrorCode)
}

func TestMSROpenFailureReportsNoDeviceNotOpenFailed(t *testing.T) {
	fs := afero.NewMemMapFs() // cpu 1's msr file intentionally absent
	table := regio.New(fs)
	table.DeclareCPU(1)

	sel, ok := policy.Select(0x06, 0x3F, 8)
	require.True(t, ok)
	svc := &dispatcher.ServiceContext{Selection: sel, Table: table, Lock: lock.AlwaysAllowed{}}

	conn := newFakeConn(wire.Record{Type: wire.Read, CPU: 1, Reg: 0x0C1, Device: wire.MSRDevice})
	require.NoError(t, dispatcher.Serve(conn, svc))

	resp := conn.responses(t)
	require.Len(t, resp, 1)
	assert.Equal(t, wire.NoDevice, resp[0].ErrorCode)
}
