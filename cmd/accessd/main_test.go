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

package main

import (
	"io/ioutil"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwpmu/accessd/internal/cpuid"
	"github.com/hwpmu/accessd/internal/lock"
	"github.com/hwpmu/accessd/internal/regio"
	"github.com/hwpmu/accessd/internal/wire"
)

func TestMain(m *testing.M) {
	logrus.SetOutput(ioutil.Discard)
	m.Run()
}

// TestServiceConnectionEndToEnd wires a client straight into
// serviceConnection over an in-memory pipe, exercising bootstrap,
// dispatch and wire framing together the way accessd's listener does
// for a single real client.
func TestServiceConnectionEndToEnd(t *testing.T) {
	fs := afero.NewMemMapFs()
	ident := cpuid.Fixed{Info: cpuid.Info{Family: 0x06, Model: 0x3F}} // Haswell-EP

	buf := make([]byte, 4096)
	require.NoError(t, afero.WriteFile(fs, regio.MSRPath(0), buf, 0600))

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		serviceConnection(server, fs, ident, lock.AlwaysAllowed{})
		close(done)
	}()

	req := wire.Record{Type: wire.Read, Device: wire.MSRDevice, CPU: 0, Reg: 0x0C1}
	require.NoError(t, wire.WriteRecord(client, req))

	resp, err := wire.ReadRecord(client)
	require.NoError(t, err)
	assert.Equal(t, wire.NoError, resp.ErrorCode)

	require.NoError(t, wire.WriteRecord(client, wire.Record{Type: wire.Exit}))
	client.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serviceConnection did not return after EXIT")
	}
}

func TestServiceConnectionDropsOnUnsupportedProcessor(t *testing.T) {
	fs := afero.NewMemMapFs()
	ident := cpuid.Fixed{Info: cpuid.Info{Family: 0xFF, Model: 0xFF}}

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		serviceConnection(server, fs, ident, lock.AlwaysAllowed{})
		close(done)
	}()

	buf := make([]byte, 1)
	client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err := client.Read(buf)
	assert.Error(t, err, "an unsupported processor must drop the connection without a response")

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serviceConnection did not return after dropping the connection")
	}
}
