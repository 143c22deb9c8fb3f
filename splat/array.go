package splat

import (
	"github.com/pkg/errors"
)

// Array is an ordered, indexable collection of records sharing one spherical harmonics degree.
// Insertion order is the canonical point index used by every later stage.
type Array struct {
	shDegree int
	records  []Record
	meta     MetaData
}

// NewArray returns an empty array for records of the given degree.
func NewArray(shDegree, capacity int) (*Array, error) {
	if err := ValidateSHDegree(shDegree); err != nil {
		return nil, err
	}
	return &Array{
		shDegree: shDegree,
		records:  make([]Record, 0, capacity),
		meta:     NewMetaData(),
	}, nil
}

// Append adds a record to the end of the array.
func (arr *Array) Append(r Record) error {
	if want := SHCoefficientCount(arr.shDegree); len(r.SH) != want {
		return errors.Errorf("record has %d spherical harmonic coefficients, want %d for degree %d",
			len(r.SH), want, arr.shDegree)
	}
	arr.records = append(arr.records, r)
	arr.meta.Merge(r.Position)
	return nil
}

// Len returns the number of records.
func (arr *Array) Len() int {
	return len(arr.records)
}

// At returns the record at index i.
func (arr *Array) At(i int) Record {
	return arr.records[i]
}

// SHDegree returns the spherical harmonics degree of every record.
func (arr *Array) SHDegree() int {
	return arr.shDegree
}

// MetaData returns the bounds of all record positions.
func (arr *Array) MetaData() MetaData {
	return arr.meta
}

// Iterate calls fn for each record in order until fn returns false.
func (arr *Array) Iterate(fn func(i int, r Record) bool) {
	for i, r := range arr.records {
		if !fn(i, r) {
			return
		}
	}
}

// Subset returns a new array holding the records at indices, in the given order.
func (arr *Array) Subset(indices []int) (*Array, error) {
	out, err := NewArray(arr.shDegree, len(indices))
	if err != nil {
		return nil, err
	}
	for _, i := range indices {
		if i < 0 || i >= len(arr.records) {
			return nil, errors.Errorf("index %d out of range [0,%d)", i, len(arr.records))
		}
		out.records = append(out.records, arr.records[i])
		out.meta.Merge(arr.records[i].Position)
	}
	return out, nil
}

// Clone returns a deep copy of the array.
func (arr *Array) Clone() *Array {
	out := &Array{shDegree: arr.shDegree, records: make([]Record, len(arr.records)), meta: arr.meta}
	for i, r := range arr.records {
		out.records[i] = r.Clone()
	}
	return out
}
