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

// Package dispatcher implements the per-connection request/response loop:
// read one wire.Record, consult the lock and the register policy, perform
// at most one positioned I/O against the resource table, write one
// wire.Record back. One connection, one goroutine, no pipelining.
package dispatcher

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/hwpmu/accessd/internal/accesslog"
	"github.com/hwpmu/accessd/internal/lock"
	"github.com/hwpmu/accessd/internal/pcitable"
	"github.com/hwpmu/accessd/internal/policy"
	"github.com/hwpmu/accessd/internal/regio"
	"github.com/hwpmu/accessd/internal/wire"
)

// ServiceContext groups everything the dispatcher needs to serve one
// connection, assembled once by bootstrap before Serve is ever called.
// Gathering what the upstream daemon keeps as process-wide globals into
// one explicit, passed-by-reference value makes the policy and table
// lookups easy to drive from a test without a real connection.
type ServiceContext struct {
	Selection  policy.Selection
	PCIDevices pcitable.Table
	Table      *regio.Table
	Lock       lock.Checker
	Log        *logrus.Entry
}

func (svc *ServiceContext) log() *logrus.Entry {
	if svc.Log != nil {
		return svc.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// Serve runs the request/response loop against conn until the client
// disconnects, sends EXIT, or a framing failure occurs. A clean
// disconnect (EOF on the very next read) and an explicit EXIT both
// return nil; anything else that ends the loop is returned as an error
// for the caller to log before tearing the connection down.
func Serve(conn io.ReadWriter, svc *ServiceContext) error {
	for {
		rec, err := wire.ReadRecord(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logrus.Debug("client disconnected, terminating service process")
				return nil
			}
			logrus.Errorf("framing failure reading request: %v", err)
			return err
		}

		resp := rec
		resp.Data = 0
		resp.ErrorCode = wire.NoError

		switch rec.Type {
		case wire.Read, wire.Write:
			svc.dispatchAccess(rec, &resp)
		case wire.Check:
			svc.dispatchCheck(rec, &resp)
		case wire.Exit:
			logrus.Debug("client requested termination")
			return nil
		default:
			logrus.Warnf("unknown request type %d", uint32(rec.Type))
			resp.ErrorCode = wire.Unknown
		}

		if err := wire.WriteRecord(conn, resp); err != nil {
			logrus.Errorf("framing failure writing response: %v", err)
			return err
		}
	}
}

// dispatchAccess handles READ and WRITE, after the external lock check
// that both share (and that CHECK never performs).
func (svc *ServiceContext) dispatchAccess(rec wire.Record, resp *wire.Record) {
	checker := svc.Lock
	if checker == nil {
		checker = lock.AlwaysAllowed{}
	}
	if !checker.Allowed() {
		resp.ErrorCode = wire.Locked
		accesslog.Locked(svc.log(), rec.Reg)
		return
	}

	if rec.Device == wire.MSRDevice {
		svc.dispatchMSR(rec, resp)
		return
	}
	svc.dispatchPCI(rec, resp)
}

func (svc *ServiceContext) dispatchMSR(rec wire.Record, resp *wire.Record) {
	cpu := rec.CPU
	if !svc.Table.CheckMSR(cpu) {
		resp.ErrorCode = wire.NoDevice
		accesslog.Unavailable(svc.log(), cpu, "")
		return
	}
	if !svc.Selection.MSR.Allowed(rec.Reg) {
		resp.ErrorCode = wire.RestrictedRegister
		accesslog.Denied(svc.log(), cpu, rec.Reg, "", string(svc.Selection.Microarch))
		return
	}

	switch rec.Type {
	case wire.Read:
		data, err := svc.Table.ReadMSR(cpu, rec.Reg)
		if err != nil {
			resp.ErrorCode = classifyMSRError(err)
			accesslog.IOFailed(svc.log(), cpu, rec.Reg, "", err)
			return
		}
		resp.Data = data
	case wire.Write:
		if err := svc.Table.WriteMSR(cpu, rec.Reg, rec.Data); err != nil {
			resp.ErrorCode = classifyMSRError(err)
			accesslog.IOFailed(svc.log(), cpu, rec.Reg, "", err)
		}
	}
}

func (svc *ServiceContext) dispatchPCI(rec wire.Record, resp *wire.Record) {
	socket, device := rec.CPU, rec.Device
	if !svc.pciDeviceValid(device) {
		resp.ErrorCode = wire.NoDevice
		accesslog.Unavailable(svc.log(), socket, "")
		return
	}
	dev := svc.PCIDevices[device]

	if !svc.Table.CheckPCI(socket, device) {
		resp.ErrorCode = wire.NoDevice
		accesslog.Unavailable(svc.log(), socket, dev.Name)
		return
	}
	if svc.Selection.PCI != nil && !svc.Selection.PCI.Allowed(dev.Kind, rec.Reg) {
		resp.ErrorCode = wire.RestrictedRegister
		accesslog.Denied(svc.log(), socket, rec.Reg, dev.Name, string(svc.Selection.Microarch))
		return
	}

	switch rec.Type {
	case wire.Read:
		data, err := svc.Table.ReadPCI(socket, device, rec.Reg, dev.PathSuffix)
		if err != nil {
			resp.ErrorCode = classifyPCIError(err)
			if resp.ErrorCode == wire.OpenFailed {
				accesslog.OpenFailed(svc.log(), socket, dev.Name, err)
			} else {
				accesslog.IOFailed(svc.log(), socket, rec.Reg, dev.Name, err)
			}
			return
		}
		resp.Data = data
	case wire.Write:
		if err := svc.Table.WritePCI(socket, device, rec.Reg, rec.Data, dev.PathSuffix); err != nil {
			resp.ErrorCode = classifyPCIError(err)
			if resp.ErrorCode == wire.OpenFailed {
				accesslog.OpenFailed(svc.log(), socket, dev.Name, err)
			} else {
				accesslog.IOFailed(svc.log(), socket, rec.Reg, dev.Name, err)
			}
		}
	}
}

// dispatchCheck handles CHECK: it reports whether the targeted resource
// is known, consulting neither the lock, nor the policy, nor performing
// any I/O.
func (svc *ServiceContext) dispatchCheck(rec wire.Record, resp *wire.Record) {
	if rec.Device == wire.MSRDevice {
		if !svc.Table.CheckMSR(rec.CPU) {
			resp.ErrorCode = wire.NoDevice
		}
		return
	}
	if !svc.pciDeviceValid(rec.Device) || !svc.Table.CheckPCI(rec.CPU, rec.Device) {
		resp.ErrorCode = wire.NoDevice
	}
}

// pciDeviceValid reports whether device indexes a real, non-reserved slot
// in this microarchitecture's PCI device table (index 0 is always the
// reserved zero value, and a microarchitecture without uncore PCI support
// has no table at all).
func (svc *ServiceContext) pciDeviceValid(device uint32) bool {
	return device > 0 && int(device) < len(svc.PCIDevices)
}

// classifyMSRError maps a regio error into the wire error code an MSR
// failure reports. An open failure folds into NODEV, the same code a cpu
// whose eager bootstrap-time MSR open failed reports. Only an I/O error
// after a successful open is RWFAIL.
func classifyMSRError(err error) wire.ErrorCode {
	var notOpen *regio.NotOpenError
	var openErr *regio.OpenError
	if errors.As(err, &notOpen) || errors.As(err, &openErr) {
		return wire.NoDevice
	}
	return wire.ReadWriteFailed
}

// classifyPCIError maps a regio error into the wire error code a PCI
// failure reports. Unlike MSR, a PCI device is opened lazily on first
// use by design, so its open failure is reported distinctly as OPENFAIL.
func classifyPCIError(err error) wire.ErrorCode {
	var notOpen *regio.NotOpenError
	if errors.As(err, &notOpen) {
		return wire.NoDevice
	}
	var openErr *regio.OpenError
	if errors.As(err, &openErr) {
		return wire.OpenFailed
	}
	return wire.ReadWriteFailed
}
