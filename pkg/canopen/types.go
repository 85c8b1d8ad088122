// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package canopen implements the object dictionary and the SDO service that
// exposes it.
//
// The dictionary is a table of typed parameters and tasks addressed by
// (index, subindex). It is sorted and checked once at startup; a table that
// fails the check is a programming defect and NewDictionary panics. The
// Service answers expedited SDO requests against it through IPC mailboxes,
// and the Client issues them from the host.
package canopen

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// DataType is the declared type of an entry's value.
type DataType uint8

// Data types
const (
	TypeBool DataType = iota + 1
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeFloat32
	TypeString4 // four ASCII bytes
)

var typeNames = map[DataType]string{
	TypeBool:    "bool",
	TypeInt8:    "int8",
	TypeUint8:   "uint8",
	TypeInt16:   "int16",
	TypeUint16:  "uint16",
	TypeInt32:   "int32",
	TypeUint32:  "uint32",
	TypeFloat32: "float32",
	TypeString4: "string4",
}

func (t DataType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseDataType returns the type with the given name.
func ParseDataType(name string) (DataType, error) {
	for t, n := range typeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("canopen: unknown data type %q", name)
}

// Size returns the number of payload bytes the type occupies.
func (t DataType) Size() int {
	switch t {
	case TypeBool, TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32, TypeString4:
		return 4
	default:
		return 0
	}
}

// Valid reports whether t is a known type.
func (t DataType) Valid() bool {
	return t.Size() != 0
}

// Access is the access right of an entry.
type Access uint8

// Access rights
const (
	AccessNone      Access = 0
	AccessRead      Access = 1 << 0
	AccessWrite     Access = 1 << 1
	AccessReadWrite        = AccessRead | AccessWrite
)

// CanRead reports read access.
func (a Access) CanRead() bool {
	return a&AccessRead != 0
}

// CanWrite reports write access.
func (a Access) CanWrite() bool {
	return a&AccessWrite != 0
}

func (a Access) String() string {
	switch a {
	case AccessNone:
		return "--"
	case AccessRead:
		return "ro"
	case AccessWrite:
		return "wo"
	case AccessReadWrite:
		return "rw"
	default:
		return fmt.Sprintf("access(%d)", uint8(a))
	}
}

// AccessStatus is the result of reading or writing an entry.
type AccessStatus uint8

// Access results
const (
	AccessOK AccessStatus = iota
	AccessFail
	AccessNoAccess
)

func (s AccessStatus) String() string {
	switch s {
	case AccessOK:
		return "OK"
	case AccessFail:
		return "FAIL"
	case AccessNoAccess:
		return "NO_ACCESS"
	default:
		return "UNKNOWN"
	}
}

// Data is the 32-bit SDO payload, little-endian.
type Data [4]byte

// Uint32Data packs an unsigned value.
func Uint32Data(v uint32) Data {
	var d Data
	binary.LittleEndian.PutUint32(d[:], v)
	return d
}

// Int32Data packs a signed value.
func Int32Data(v int32) Data {
	return Uint32Data(uint32(v))
}

// Float32Data packs an IEEE 754 single.
func Float32Data(v float32) Data {
	return Uint32Data(math.Float32bits(v))
}

// BoolData packs a boolean as 0 or 1.
func BoolData(v bool) Data {
	if v {
		return Data{1}
	}
	return Data{}
}

// StringData packs up to four ASCII bytes, zero padded.
func StringData(s string) Data {
	var d Data
	copy(d[:], s)
	return d
}

// Uint32 returns the payload as an unsigned value.
func (d Data) Uint32() uint32 {
	return binary.LittleEndian.Uint32(d[:])
}

// Int32 returns the payload as a signed value.
func (d Data) Int32() int32 {
	return int32(d.Uint32())
}

// Float32 returns the payload as an IEEE 754 single.
func (d Data) Float32() float32 {
	return math.Float32frombits(d.Uint32())
}

// Bool returns whether the first byte is nonzero.
func (d Data) Bool() bool {
	return d[0] != 0
}

// String returns the payload as ASCII without trailing padding.
func (d Data) String() string {
	return strings.TrimRight(string(d[:]), "\x00 ")
}

// Format renders the payload according to a data type.
func (d Data) Format(t DataType) string {
	switch t {
	case TypeBool:
		return fmt.Sprintf("%t", d.Bool())
	case TypeInt8:
		return fmt.Sprintf("%d", int8(d[0]))
	case TypeUint8:
		return fmt.Sprintf("%d", d[0])
	case TypeInt16:
		return fmt.Sprintf("%d", int16(binary.LittleEndian.Uint16(d[:2])))
	case TypeUint16:
		return fmt.Sprintf("%d", binary.LittleEndian.Uint16(d[:2]))
	case TypeInt32:
		return fmt.Sprintf("%d", d.Int32())
	case TypeUint32:
		return fmt.Sprintf("%d", d.Uint32())
	case TypeFloat32:
		return fmt.Sprintf("%g", d.Float32())
	case TypeString4:
		return fmt.Sprintf("%q", d.String())
	default:
		return fmt.Sprintf("% X", d[:])
	}
}

// ParseData converts a textual value to a payload of the given type.
func ParseData(t DataType, s string) (Data, error) {
	var (
		d   Data
		err error
	)
	switch t {
	case TypeBool:
		switch strings.ToLower(s) {
		case "1", "true", "on":
			d = BoolData(true)
		case "0", "false", "off":
			d = BoolData(false)
		default:
			err = fmt.Errorf("invalid bool %q", s)
		}
	case TypeInt8, TypeInt16, TypeInt32:
		var v int64
		if _, err = fmt.Sscan(s, &v); err == nil {
			err = checkRange(t, v, -(1 << (t.Size()*8 - 1)), 1<<(t.Size()*8-1)-1)
			d = Int32Data(int32(v))
		}
	case TypeUint8, TypeUint16, TypeUint32:
		var v int64
		if _, err = fmt.Sscan(s, &v); err == nil {
			err = checkRange(t, v, 0, 1<<(t.Size()*8)-1)
			d = Uint32Data(uint32(v))
		}
	case TypeFloat32:
		var v float32
		if _, err = fmt.Sscan(s, &v); err == nil {
			d = Float32Data(v)
		}
	case TypeString4:
		if len(s) > 4 {
			err = fmt.Errorf("%q longer than 4 bytes", s)
		}
		d = StringData(s)
	default:
		err = fmt.Errorf("unsupported type")
	}
	if err != nil {
		return Data{}, fmt.Errorf("canopen: parse %s: %w", t, err)
	}
	return d, nil
}

func checkRange(t DataType, v, lo, hi int64) error {
	if v < lo || v > hi {
		return fmt.Errorf("%d out of range for %s", v, t)
	}
	return nil
}
