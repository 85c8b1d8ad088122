// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package canopen

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// ErrNotFound is returned for an (index, subindex) with no entry.
var ErrNotFound = errors.New("canopen: entry not found")

// Entry is one object dictionary row.
//
// The value is reached either through Ptr, which aliases a live field of its
// owner, or through the Read and Write functions. Ptr must point to a Go type
// matching Type:
//
//	TypeBool     *bool
//	TypeInt8     *int8
//	TypeUint8    *uint8
//	TypeInt16    *int16
//	TypeUint16   *uint16
//	TypeInt32    *int32, *int
//	TypeUint32   *uint32
//	TypeFloat32  *float32, *float64
//	TypeString4  *[4]byte, *string
type Entry struct {
	Index       uint16
	Subindex    uint8
	Category    string
	Subcategory string
	Name        string
	Unit        string
	Type        DataType
	Access      Access

	Ptr   any
	Read  func() (Data, AccessStatus)
	Write func(Data) AccessStatus
}

// Path returns category/subcategory/name.
func (e *Entry) Path() string {
	if e.Subcategory == "" {
		return e.Category + "/" + e.Name
	}
	return e.Category + "/" + e.Subcategory + "/" + e.Name
}

func (e *Entry) key() uint32 {
	return uint32(e.Index)<<8 | uint32(e.Subindex)
}

func (e *Entry) String() string {
	return fmt.Sprintf("0x%04X.%02X %s", e.Index, e.Subindex, e.Path())
}

// ReadData reads the entry's value.
func (e *Entry) ReadData() (Data, AccessStatus) {
	if !e.Access.CanRead() {
		return Data{}, AccessNoAccess
	}
	if e.Read != nil {
		return e.Read()
	}
	if e.Ptr != nil {
		return loadPtr(e.Ptr), AccessOK
	}
	return Data{}, AccessNoAccess
}

// WriteData writes the entry's value.
func (e *Entry) WriteData(d Data) AccessStatus {
	if !e.Access.CanWrite() {
		return AccessNoAccess
	}
	if e.Write != nil {
		return e.Write(d)
	}
	if e.Ptr != nil {
		storePtr(e.Ptr, d)
		return AccessOK
	}
	return AccessNoAccess
}

// check verifies the per-entry rules.
func (e *Entry) check() error {
	if e.Name == "" {
		return fmt.Errorf("%s: empty name", e)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%s: invalid data type %d", e, e.Type)
	}
	if e.Access&^AccessReadWrite != 0 {
		return fmt.Errorf("%s: invalid access %d", e, e.Access)
	}

	if e.Ptr != nil && !ptrMatches(e.Ptr, e.Type) {
		return fmt.Errorf("%s: pointer %T does not hold %s", e, e.Ptr, e.Type)
	}

	readers := count(e.Ptr != nil, e.Read != nil)
	writers := count(e.Ptr != nil, e.Write != nil)

	switch {
	case e.Access.CanRead() && readers != 1:
		return fmt.Errorf("%s: readable entry needs exactly one of pointer or read function", e)
	case !e.Access.CanRead() && e.Read != nil:
		return fmt.Errorf("%s: read function on entry without read access", e)
	case e.Access.CanWrite() && writers != 1:
		return fmt.Errorf("%s: writable entry needs exactly one of pointer or write function", e)
	case !e.Access.CanWrite() && e.Write != nil:
		return fmt.Errorf("%s: write function on entry without write access", e)
	case e.Access == AccessNone && e.Ptr != nil:
		return fmt.Errorf("%s: pointer on entry without access", e)
	}
	return nil
}

func count(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

func ptrMatches(p any, t DataType) bool {
	switch p.(type) {
	case *bool:
		return t == TypeBool
	case *int8:
		return t == TypeInt8
	case *uint8:
		return t == TypeUint8
	case *int16:
		return t == TypeInt16
	case *uint16:
		return t == TypeUint16
	case *int32, *int:
		return t == TypeInt32
	case *uint32:
		return t == TypeUint32
	case *float32, *float64:
		return t == TypeFloat32
	case *[4]byte, *string:
		return t == TypeString4
	}
	return false
}

func loadPtr(p any) Data {
	var d Data
	switch v := p.(type) {
	case *bool:
		d = BoolData(*v)
	case *int8:
		d[0] = byte(*v)
	case *uint8:
		d[0] = *v
	case *int16:
		binary.LittleEndian.PutUint16(d[:2], uint16(*v))
	case *uint16:
		binary.LittleEndian.PutUint16(d[:2], *v)
	case *int32:
		d = Int32Data(*v)
	case *int:
		d = Int32Data(int32(*v))
	case *uint32:
		d = Uint32Data(*v)
	case *float32:
		d = Float32Data(*v)
	case *float64:
		d = Float32Data(float32(*v))
	case *[4]byte:
		d = *v
	case *string:
		d = StringData(*v)
	}
	return d
}

func storePtr(p any, d Data) {
	switch v := p.(type) {
	case *bool:
		*v = d.Bool()
	case *int8:
		*v = int8(d[0])
	case *uint8:
		*v = d[0]
	case *int16:
		*v = int16(binary.LittleEndian.Uint16(d[:2]))
	case *uint16:
		*v = binary.LittleEndian.Uint16(d[:2])
	case *int32:
		*v = d.Int32()
	case *int:
		*v = int(d.Int32())
	case *uint32:
		*v = d.Uint32()
	case *float32:
		*v = d.Float32()
	case *float64:
		// Shortest decimal form, so 54.4 is stored as 54.4
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(d.Float32()), 'g', -1, 32), 64)
		*v = f
	case *[4]byte:
		*v = d
	case *string:
		*v = d.String()
	}
}

// Dictionary is the sorted, checked entry table.
type Dictionary struct {
	entries []Entry
}

// NewDictionary sorts the entries by (index, subindex) and checks the table.
// It panics on any inconsistency.
func NewDictionary(entries []Entry) *Dictionary {
	d := &Dictionary{entries: slices.Clone(entries)}
	slices.SortStableFunc(d.entries, func(a, b Entry) int {
		return cmp.Compare(a.key(), b.key())
	})
	if err := d.Validate(); err != nil {
		panic(err)
	}
	return d
}

// Validate checks the table: sorted by key, unique keys, unique paths and
// consistent access per entry.
func (d *Dictionary) Validate() error {
	for i := 1; i < len(d.entries); i++ {
		if d.entries[i-1].key() > d.entries[i].key() {
			return fmt.Errorf("canopen: %s sorted after %s", &d.entries[i-1], &d.entries[i])
		}
	}

	for i := range d.entries {
		a := &d.entries[i]
		if err := a.check(); err != nil {
			return fmt.Errorf("canopen: %w", err)
		}
		for j := i + 1; j < len(d.entries); j++ {
			b := &d.entries[j]
			if a.key() == b.key() {
				return fmt.Errorf("canopen: duplicate key 0x%04X.%02X (%s, %s)", a.Index, a.Subindex, a.Path(), b.Path())
			}
			if a.Category == b.Category && a.Subcategory == b.Subcategory && a.Name == b.Name {
				return fmt.Errorf("canopen: duplicate name %s (%s, %s)", a.Path(), a, b)
			}
		}
	}
	return nil
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// At returns the entry at position i.
func (d *Dictionary) At(i int) *Entry {
	return &d.entries[i]
}

// Find returns the position of (index, subindex), or Len() if absent.
func (d *Dictionary) Find(index uint16, subindex uint8) int {
	key := uint32(index)<<8 | uint32(subindex)
	i := sort.Search(len(d.entries), func(i int) bool {
		return d.entries[i].key() >= key
	})
	if i < len(d.entries) && d.entries[i].key() == key {
		return i
	}
	return len(d.entries)
}

// Lookup returns the entry at (index, subindex).
func (d *Dictionary) Lookup(index uint16, subindex uint8) (*Entry, bool) {
	i := d.Find(index, subindex)
	if i == len(d.entries) {
		return nil, false
	}
	return &d.entries[i], true
}

// Entries returns the table in key order. The slice must not be modified.
func (d *Dictionary) Entries() []Entry {
	return d.entries
}

// LookupPath returns the entry with the given category/subcategory/name path.
func (d *Dictionary) LookupPath(path string) (*Entry, bool) {
	for i := range d.entries {
		if d.entries[i].Path() == path {
			return &d.entries[i], true
		}
	}
	return nil, false
}

// Resolve finds an entry by path or by an "index.subindex" address such as
// 0x2001.01. Both address parts are hexadecimal, with or without 0x.
func (d *Dictionary) Resolve(name string) (*Entry, error) {
	if e, ok := d.LookupPath(name); ok {
		return e, nil
	}

	idx, sub, ok := strings.Cut(name, ".")
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	index, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(idx), "0x"), 16, 16)
	if err != nil {
		return nil, fmt.Errorf("canopen: bad index in %q: %w", name, err)
	}
	subindex, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(sub), "0x"), 16, 8)
	if err != nil {
		return nil, fmt.Errorf("canopen: bad subindex in %q: %w", name, err)
	}
	e, ok := d.Lookup(uint16(index), uint8(subindex))
	if !ok {
		return nil, fmt.Errorf("%w: 0x%04X.%02X", ErrNotFound, index, subindex)
	}
	return e, nil
}
