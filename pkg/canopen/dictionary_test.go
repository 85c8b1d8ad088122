// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package canopen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOwner struct {
	voltage  float64
	limit    float32
	count    int
	relay    bool
	name     string
	serial   uint32
	mode     uint8
	offset   int16
	resets   int
	lastTask Data
}

func sampleEntries(o *testOwner) []Entry {
	return []Entry{
		{Index: 0x2100, Subindex: 0x02, Category: "converter", Name: "current_in_limit", Unit: "A", Type: TypeFloat32, Access: AccessReadWrite, Ptr: &o.limit},
		{Index: 0x1000, Subindex: 0x00, Category: "device", Name: "name", Type: TypeString4, Access: AccessRead, Ptr: &o.name},
		{Index: 0x2100, Subindex: 0x01, Category: "converter", Name: "voltage_in", Unit: "V", Type: TypeFloat32, Access: AccessRead, Ptr: &o.voltage},
		{Index: 0x3000, Subindex: 0x00, Category: "task", Name: "reset", Type: TypeUint32, Access: AccessWrite, Write: func(d Data) AccessStatus {
			o.resets++
			o.lastTask = d
			return AccessOK
		}},
		{Index: 0x1000, Subindex: 0x01, Category: "device", Name: "serial", Type: TypeUint32, Access: AccessRead, Ptr: &o.serial},
		{Index: 0x2200, Subindex: 0x00, Category: "fuelcell", Name: "cell_count", Type: TypeInt32, Access: AccessReadWrite, Ptr: &o.count},
		{Index: 0x2100, Subindex: 0x10, Category: "converter", Subcategory: "relay", Name: "on", Type: TypeBool, Access: AccessReadWrite, Ptr: &o.relay},
		{Index: 0x3001, Subindex: 0x00, Category: "task", Name: "fail", Type: TypeUint32, Access: AccessWrite, Write: func(Data) AccessStatus { return AccessFail }},
		{Index: 0x2300, Subindex: 0x00, Category: "device", Name: "mode", Type: TypeUint8, Access: AccessReadWrite, Ptr: &o.mode},
		{Index: 0x2300, Subindex: 0x01, Category: "device", Name: "offset", Type: TypeInt16, Access: AccessReadWrite, Ptr: &o.offset},
	}
}

func TestNewDictionary_SortsEntries(t *testing.T) {
	d := NewDictionary(sampleEntries(&testOwner{}))

	require.Equal(t, 10, d.Len())
	for i := 1; i < d.Len(); i++ {
		assert.Less(t, d.At(i-1).key(), d.At(i).key())
	}
	assert.Equal(t, "name", d.At(0).Name)
	assert.Equal(t, "fail", d.At(d.Len()-1).Name)
}

func TestDictionary_Lookup(t *testing.T) {
	d := NewDictionary(sampleEntries(&testOwner{}))

	tests := []struct {
		name     string
		index    uint16
		subindex uint8
		want     string
	}{
		{"first", 0x1000, 0x00, "name"},
		{"middle", 0x2100, 0x02, "current_in_limit"},
		{"subindex gap", 0x2100, 0x10, "on"},
		{"last", 0x3001, 0x00, "fail"},
		{"missing subindex", 0x2100, 0x03, ""},
		{"missing index", 0x0FFF, 0x00, ""},
		{"past the end", 0xFFFF, 0xFF, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := d.Lookup(tt.index, tt.subindex)
			if tt.want == "" {
				assert.False(t, ok)
				assert.Nil(t, e)
				assert.Equal(t, d.Len(), d.Find(tt.index, tt.subindex))
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, e.Name)
			assert.Same(t, d.At(d.Find(tt.index, tt.subindex)), e)
		})
	}
}

func TestNewDictionary_Panics(t *testing.T) {
	var f32 float32
	var u16 uint16
	read := func() (Data, AccessStatus) { return Data{}, AccessOK }
	write := func(Data) AccessStatus { return AccessOK }

	tests := []struct {
		name    string
		entries []Entry
	}{
		{
			name: "duplicate key",
			entries: []Entry{
				{Index: 0x2000, Category: "a", Name: "x", Type: TypeFloat32, Access: AccessRead, Ptr: &f32},
				{Index: 0x2000, Category: "a", Name: "y", Type: TypeFloat32, Access: AccessRead, Ptr: &f32},
			},
		},
		{
			name: "duplicate name",
			entries: []Entry{
				{Index: 0x2000, Category: "a", Name: "x", Type: TypeFloat32, Access: AccessRead, Ptr: &f32},
				{Index: 0x2001, Category: "a", Name: "x", Type: TypeFloat32, Access: AccessRead, Ptr: &f32},
			},
		},
		{
			name:    "readable without source",
			entries: []Entry{{Index: 0x2000, Category: "a", Name: "x", Type: TypeFloat32, Access: AccessRead}},
		},
		{
			name:    "pointer and read function",
			entries: []Entry{{Index: 0x2000, Category: "a", Name: "x", Type: TypeFloat32, Access: AccessRead, Ptr: &f32, Read: read}},
		},
		{
			name:    "write function without write access",
			entries: []Entry{{Index: 0x2000, Category: "a", Name: "x", Type: TypeFloat32, Access: AccessRead, Ptr: &f32, Write: write}},
		},
		{
			name:    "writable without sink",
			entries: []Entry{{Index: 0x2000, Category: "a", Name: "x", Type: TypeFloat32, Access: AccessReadWrite, Read: read}},
		},
		{
			name:    "no access with pointer",
			entries: []Entry{{Index: 0x2000, Category: "a", Name: "x", Type: TypeFloat32, Access: AccessNone, Ptr: &f32}},
		},
		{
			name:    "pointer type mismatch",
			entries: []Entry{{Index: 0x2000, Category: "a", Name: "x", Type: TypeFloat32, Access: AccessRead, Ptr: &u16}},
		},
		{
			name:    "invalid type",
			entries: []Entry{{Index: 0x2000, Category: "a", Name: "x", Access: AccessWrite, Write: write}},
		},
		{
			name:    "empty name",
			entries: []Entry{{Index: 0x2000, Category: "a", Type: TypeUint32, Access: AccessWrite, Write: write}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() { NewDictionary(tt.entries) })
		})
	}
}

func TestNewDictionary_AcceptsFunctionPair(t *testing.T) {
	value := Float32Data(1.5)
	d := NewDictionary([]Entry{{
		Index: 0x2000, Category: "a", Name: "x", Type: TypeFloat32, Access: AccessReadWrite,
		Read:  func() (Data, AccessStatus) { return value, AccessOK },
		Write: func(d Data) AccessStatus { value = d; return AccessOK },
	}})

	e, ok := d.Lookup(0x2000, 0)
	require.True(t, ok)
	assert.Equal(t, AccessOK, e.WriteData(Float32Data(2.5)))
	got, status := e.ReadData()
	assert.Equal(t, AccessOK, status)
	assert.Equal(t, float32(2.5), got.Float32())
}

func TestEntry_PointerAccess(t *testing.T) {
	o := &testOwner{voltage: 36.5, count: 5, name: "FB01", serial: 0xDEADBEEF}
	d := NewDictionary(sampleEntries(o))

	e, _ := d.Lookup(0x2100, 0x01)
	got, status := e.ReadData()
	require.Equal(t, AccessOK, status)
	assert.Equal(t, float32(36.5), got.Float32())

	// Read-only entry refuses writes
	assert.Equal(t, AccessNoAccess, e.WriteData(Float32Data(1)))
	assert.Equal(t, 36.5, o.voltage)

	e, _ = d.Lookup(0x2200, 0x00)
	require.Equal(t, AccessOK, e.WriteData(Int32Data(7)))
	assert.Equal(t, 7, o.count)

	e, _ = d.Lookup(0x1000, 0x00)
	got, _ = e.ReadData()
	assert.Equal(t, "FB01", got.String())

	e, _ = d.Lookup(0x1000, 0x01)
	got, _ = e.ReadData()
	assert.Equal(t, uint32(0xDEADBEEF), got.Uint32())

	e, _ = d.Lookup(0x2300, 0x01)
	require.Equal(t, AccessOK, e.WriteData(Int32Data(-12)))
	assert.Equal(t, int16(-12), o.offset)

	e, _ = d.Lookup(0x3000, 0x00)
	_, status = e.ReadData()
	assert.Equal(t, AccessNoAccess, status)
}

func TestEntry_Float64PointerKeepsDecimal(t *testing.T) {
	var v float64
	d := NewDictionary([]Entry{{Index: 0x2000, Category: "a", Name: "x", Type: TypeFloat32, Access: AccessReadWrite, Ptr: &v}})

	e, _ := d.Lookup(0x2000, 0)
	require.Equal(t, AccessOK, e.WriteData(Float32Data(54.4)))
	assert.Equal(t, 54.4, v)
}

func TestDataType_Size(t *testing.T) {
	assert.Equal(t, 1, TypeBool.Size())
	assert.Equal(t, 2, TypeInt16.Size())
	assert.Equal(t, 4, TypeFloat32.Size())
	assert.Equal(t, 4, TypeString4.Size())
	assert.Equal(t, 0, DataType(0).Size())
	assert.False(t, DataType(99).Valid())
}

func TestParseData(t *testing.T) {
	tests := []struct {
		typ     DataType
		input   string
		want    string
		wantErr bool
	}{
		{TypeBool, "on", "true", false},
		{TypeBool, "maybe", "", true},
		{TypeInt8, "-128", "-128", false},
		{TypeInt8, "128", "", true},
		{TypeUint16, "65535", "65535", false},
		{TypeUint16, "-1", "", true},
		{TypeInt32, "-5", "-5", false},
		{TypeUint32, "4294967295", "4294967295", false},
		{TypeFloat32, "12.5", "12.5", false},
		{TypeFloat32, "abc", "", true},
		{TypeString4, "FB01", `"FB01"`, false},
		{TypeString4, "TOOLONG", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String()+"/"+tt.input, func(t *testing.T) {
			d, err := ParseData(tt.typ, tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Format(tt.typ))
		})
	}
}

func TestParseDataType(t *testing.T) {
	typ, err := ParseDataType("FLOAT32")
	require.NoError(t, err)
	assert.Equal(t, TypeFloat32, typ)

	_, err = ParseDataType("complex128")
	assert.Error(t, err)
}

func TestDictionary_Resolve(t *testing.T) {
	d := NewDictionary(sampleEntries(&testOwner{}))

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"path", "converter/current_in_limit", "current_in_limit", nil},
		{"subcategory path", "converter/relay/on", "on", nil},
		{"address", "0x2100.01", "voltage_in", nil},
		{"address without prefix", "2100.10", "on", nil},
		{"upper case", "0X3000.00", "reset", nil},
		{"unknown path", "converter/missing", "", ErrNotFound},
		{"unknown address", "0x2100.03", "", ErrNotFound},
		{"bad index", "0xZZ.01", "", nil},
		{"subindex overflow", "0x2100.100", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := d.Resolve(tt.input)
			if tt.want == "" {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Name)
		})
	}
}
