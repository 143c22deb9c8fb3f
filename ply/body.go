package ply

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chenzhekl/goply"

	"go.viam.com/splatbuffer/utils"
)

func errMalformedProperty(tokens []string) error {
	return fmt.Errorf("malformed property line %q", tokens)
}

func errUnknownType(name string) error {
	return fmt.Errorf("unknown property type %q", name)
}

// table holds the scalar properties of one element, row-major.
type table struct {
	element Element
	values  []float64
}

func (t *table) row(i int) []float64 {
	stride := len(t.element.Properties)
	return t.values[i*stride : (i+1)*stride]
}

// readElement reads the rows of the named element from the body. Elements stored before it are
// skipped; list properties are only allowed in skipped elements.
func readElement(data []byte, header *Header, name string) (*table, error) {
	if header.Format == FormatASCII {
		return readASCIIElement(data, header, name)
	}
	order := header.Format.byteOrder()
	offset := header.BodyOffset
	for _, elem := range header.Elements {
		if elem.Name != name {
			next, err := skipBinaryElement(data, offset, elem, order)
			if err != nil {
				return nil, err
			}
			offset = next
			continue
		}
		if len(elem.Properties) == 0 {
			return nil, utils.NewParseError("element %q has no properties", name)
		}
		if err := checkBinaryCount(elem, len(data)-offset); err != nil {
			return nil, err
		}
		t := &table{element: elem, values: make([]float64, 0, elem.Count*len(elem.Properties))}
		for i := 0; i < elem.Count; i++ {
			for _, prop := range elem.Properties {
				if prop.IsList() {
					return nil, utils.NewParseError("list property %q in element %q is not supported", prop.Name, name)
				}
				v, size, err := readScalar(data, offset, prop.Type, order)
				if err != nil {
					return nil, utils.NewParseError("%s row %d property %q: %v", name, i, prop.Name, err)
				}
				t.values = append(t.values, v)
				offset += size
			}
		}
		return t, nil
	}
	return nil, utils.NewParseError("no %q element", name)
}

// minRowSize is the smallest number of bytes one row of elem can take: scalars at full size and
// lists with zero entries.
func minRowSize(elem Element) int {
	size := 0
	for _, prop := range elem.Properties {
		if prop.IsList() {
			size += typeSizes[prop.CountType]
		} else {
			size += typeSizes[prop.Type]
		}
	}
	return size
}

// checkBinaryCount rejects a declared row count that cannot fit in the remaining body.
func checkBinaryCount(elem Element, remaining int) error {
	rowSize := minRowSize(elem)
	if rowSize == 0 || elem.Count == 0 {
		return nil
	}
	if remaining < 0 || elem.Count > remaining/rowSize {
		return utils.NewParseError("element %q declares %d rows but the body holds at most %d",
			elem.Name, elem.Count, max(remaining, 0)/rowSize)
	}
	return nil
}

func skipBinaryElement(data []byte, offset int, elem Element, order binary.ByteOrder) (int, error) {
	if minRowSize(elem) == 0 {
		return offset, nil
	}
	if err := checkBinaryCount(elem, len(data)-offset); err != nil {
		return 0, err
	}
	for i := 0; i < elem.Count; i++ {
		for _, prop := range elem.Properties {
			if !prop.IsList() {
				offset += typeSizes[prop.Type]
				continue
			}
			count, size, err := readScalar(data, offset, prop.CountType, order)
			if err != nil {
				return 0, utils.NewParseError("%s row %d list %q: %v", elem.Name, i, prop.Name, err)
			}
			offset += size + int(count)*typeSizes[prop.Type]
			if offset > len(data) {
				return 0, utils.NewParseError("element %q runs past the end of the body", elem.Name)
			}
		}
	}
	if offset > len(data) {
		return 0, utils.NewParseError("element %q runs past the end of the body", elem.Name)
	}
	return offset, nil
}

func readScalar(data []byte, offset int, typ string, order binary.ByteOrder) (float64, int, error) {
	size := typeSizes[typ]
	if offset < 0 || offset+size > len(data) {
		return 0, 0, fmt.Errorf("unexpected end of body at byte %d", offset)
	}
	b := data[offset : offset+size]
	switch typ {
	case "char", "int8":
		return float64(int8(b[0])), size, nil
	case "uchar", "uint8":
		return float64(b[0]), size, nil
	case "short", "int16":
		return float64(int16(order.Uint16(b))), size, nil
	case "ushort", "uint16":
		return float64(order.Uint16(b)), size, nil
	case "int", "int32":
		return float64(int32(order.Uint32(b))), size, nil
	case "uint", "uint32":
		return float64(order.Uint32(b)), size, nil
	case "float", "float32":
		return float64(math.Float32frombits(order.Uint32(b))), size, nil
	case "double", "float64":
		return math.Float64frombits(order.Uint64(b)), size, nil
	}
	return 0, 0, errUnknownType(typ)
}

// readASCIIElement decodes a text body with goply. goply reports malformed input by panicking,
// so the panic is turned back into a parse error here. goply only knows the classic type names,
// reads every element it is told about and rejects obj_info lines, so it is handed a header
// declaring just the wanted element followed by just that element's lines.
func readASCIIElement(data []byte, header *Header, name string) (t *table, err error) {
	var lines [][]byte
	for _, line := range bytes.Split(data[header.BodyOffset:], []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
	}

	// Every count must fit in the lines left after the elements before it.
	skip := 0
	var elem Element
	found := false
	for _, e := range header.Elements {
		if e.Count > len(lines)-skip {
			return nil, utils.NewParseError("element %q declares %d rows, body has %d lines left", e.Name, e.Count, len(lines)-skip)
		}
		if e.Name == name {
			elem, found = e, true
			break
		}
		skip += e.Count
	}
	if !found {
		return nil, utils.NewParseError("no %q element", name)
	}
	for _, prop := range elem.Properties {
		if prop.IsList() {
			return nil, utils.NewParseError("list property %q in element %q is not supported", prop.Name, name)
		}
	}


	var normalized bytes.Buffer
	fmt.Fprintf(&normalized, "%s\nformat ascii 1.0\nelement %s %d\n", magic, elem.Name, elem.Count)
	for _, prop := range elem.Properties {
		fmt.Fprintf(&normalized, "property %s %s\n", classicTypeNames[prop.Type], prop.Name)
	}
	normalized.WriteString("end_header\n")
	for _, line := range lines[skip : skip+elem.Count] {
		normalized.Write(bytes.TrimSpace(line))
		normalized.WriteByte('\n')
	}

	defer func() {
		if r := recover(); r != nil {
			t = nil
			err = utils.NewParseError("ascii body: %v", r)
		}
	}()
	rows := goply.New(&normalized).Elements(name)
	if len(rows) != elem.Count {
		return nil, utils.NewParseError("element %q has %d rows, header declares %d", name, len(rows), elem.Count)
	}
	t = &table{element: elem, values: make([]float64, 0, elem.Count*len(elem.Properties))}
	for i, row := range rows {
		for _, prop := range elem.Properties {
			v, err := asFloat(row.Property(prop.Name))
			if err != nil {
				return nil, utils.NewParseError("%s row %d property %q: %v", name, i, prop.Name, err)
			}
			t.values = append(t.values, v)
		}
	}
	return t, nil
}

// classicTypeNames maps every accepted type name onto the names of the original PLY grammar.
var classicTypeNames = map[string]string{
	"char": "char", "int8": "char",
	"uchar": "uchar", "uint8": "uchar",
	"short": "short", "int16": "short",
	"ushort": "ushort", "uint16": "ushort",
	"int": "int", "int32": "int",
	"uint": "uint", "uint32": "uint",
	"float": "float", "float32": "float",
	"double": "double", "float64": "double",
}

func asFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int8:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("unexpected value %v (%T)", v, v)
}
