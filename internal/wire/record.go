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

// Package wire implements the fixed-size request/response record exchanged
// between accessd and its client, and the closed error taxonomy carried in
// it.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// RequestType is the AccessDataRecord.type field.
type RequestType uint32

const (
	Read RequestType = iota
	Write
	Check
	Exit
)

func (t RequestType) String() string {
	switch t {
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	case Check:
		return "CHECK"
	case Exit:
		return "EXIT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
	}
}

// ErrorCode is the closed error taxonomy of spec.md §7.
type ErrorCode uint32

const (
	NoError ErrorCode = iota
	Unknown
	RestrictedRegister
	OpenFailed
	ReadWriteFailed
	NoDevice
	Locked
)

func (e ErrorCode) String() string {
	switch e {
	case NoError:
		return "NOERROR"
	case Unknown:
		return "UNKNOWN"
	case RestrictedRegister:
		return "RESTREG"
	case OpenFailed:
		return "OPENFAIL"
	case ReadWriteFailed:
		return "RWFAIL"
	case NoDevice:
		return "NODEV"
	case Locked:
		return "LOCKED"
	default:
		return fmt.Sprintf("ERRORCODE(%d)", uint32(e))
	}
}

// MSRDevice is the sentinel Device value selecting the MSR path; any other
// value indexes the per-microarchitecture PCI device table.
const MSRDevice uint32 = 0xFFFFFFFF

// RecordSize is the on-wire size of a Record: five uint32-sized fields
// (type, cpu, reg, device, errorcode) plus one uint64 (data). The four
// leading 4-byte fields put Data at offset 16, and ErrorCode follows it at
// offset 24; every field is encoded at an explicit offset with no padding,
// keeping the encode/decode free of any layout ambiguity — see DESIGN.md for why we reject relying on
// Go's struct layout (or a C memcpy equivalent) for wire compatibility.
const RecordSize = 4 + 4 + 4 + 4 + 8 + 4

// Record is the Go projection of AccessDataRecord (spec.md §3). It is
// exchanged verbatim, one per request and one per response, never
// pipelined.
type Record struct {
	Type      RequestType
	CPU       uint32
	Reg       uint32
	Device    uint32
	Data      uint64
	ErrorCode ErrorCode
}

// Encode serializes r into its fixed little-endian wire layout.
func (r Record) Encode() []byte {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Type))
	binary.LittleEndian.PutUint32(buf[4:8], r.CPU)
	binary.LittleEndian.PutUint32(buf[8:12], r.Reg)
	binary.LittleEndian.PutUint32(buf[12:16], r.Device)
	binary.LittleEndian.PutUint64(buf[16:24], r.Data)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(r.ErrorCode))
	return buf
}

// Decode parses a Record out of a RecordSize-length buffer.
func Decode(buf []byte) (Record, error) {
	if len(buf) != RecordSize {
		return Record{}, fmt.Errorf("wire: short record: got %d bytes, want %d", len(buf), RecordSize)
	}
	return Record{
		Type:      RequestType(binary.LittleEndian.Uint32(buf[0:4])),
		CPU:       binary.LittleEndian.Uint32(buf[4:8]),
		Reg:       binary.LittleEndian.Uint32(buf[8:12]),
		Device:    binary.LittleEndian.Uint32(buf[12:16]),
		Data:      binary.LittleEndian.Uint64(buf[16:24]),
		ErrorCode: ErrorCode(binary.LittleEndian.Uint32(buf[24:28])),
	}, nil
}

// ReadRecord reads exactly one Record from r. Any error (including a clean
// io.EOF on a zero-length read) is returned verbatim to the caller, which
// must decide — per spec.md §9's resolved Open Question — whether that
// EOF is a legitimate termination or a framing failure; ReadRecord itself
// never distinguishes the two.
func ReadRecord(r io.Reader) (Record, error) {
	buf := make([]byte, RecordSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Record{}, err
	}
	return Decode(buf)
}

// WriteRecord writes exactly one Record to w.
func WriteRecord(w io.Writer, rec Record) error {
	_, err := w.Write(rec.Encode())
	return err
}
