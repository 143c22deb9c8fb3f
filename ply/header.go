// Package ply reads gaussian splat and plain point clouds from PLY files into splat arrays.
package ply

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"

	"go.viam.com/splatbuffer/utils"
)

// Format is the body encoding declared by a PLY header.
type Format int

const (
	// FormatASCII is a whitespace separated text body.
	FormatASCII Format = iota
	// FormatBinaryLittleEndian is a packed little endian body.
	FormatBinaryLittleEndian
	// FormatBinaryBigEndian is a packed big endian body.
	FormatBinaryBigEndian
)

func (f Format) String() string {
	switch f {
	case FormatASCII:
		return "ascii"
	case FormatBinaryLittleEndian:
		return "binary_little_endian"
	case FormatBinaryBigEndian:
		return "binary_big_endian"
	}
	return "unknown"
}

func (f Format) byteOrder() binary.ByteOrder {
	if f == FormatBinaryBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

const magic = "ply"

// Property is a scalar or list property of an element.
type Property struct {
	Name string
	Type string
	// CountType is set for list properties only.
	CountType string
}

// IsList reports whether the property is a list.
func (p Property) IsList() bool {
	return p.CountType != ""
}

// Element is a named group of rows sharing the same properties.
type Element struct {
	Name       string
	Count      int
	Properties []Property
}

// PropertyIndex returns the index of the named property or -1.
func (e Element) PropertyIndex(name string) int {
	for i, p := range e.Properties {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Header is a parsed PLY header. BodyOffset is the byte offset of the first body byte.
type Header struct {
	Format     Format
	Elements   []Element
	Comments   []string
	BodyOffset int
}

// Element returns the element with the given name.
func (h *Header) Element(name string) (Element, bool) {
	for _, e := range h.Elements {
		if e.Name == name {
			return e, true
		}
	}
	return Element{}, false
}

var typeSizes = map[string]int{
	"char": 1, "int8": 1,
	"uchar": 1, "uint8": 1,
	"short": 2, "int16": 2,
	"ushort": 2, "uint16": 2,
	"int": 4, "int32": 4,
	"uint": 4, "uint32": 4,
	"float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

// ParseHeader parses the header at the start of data.
func ParseHeader(data []byte) (*Header, error) {
	if !bytes.HasPrefix(data, []byte(magic)) {
		return nil, utils.NewUnsupportedFormatError("missing %q magic", magic)
	}
	header := &Header{}
	offset := 0
	sawFormat := false
	for lineNum := 1; ; lineNum++ {
		end := bytes.IndexByte(data[offset:], '\n')
		if end < 0 {
			return nil, utils.NewParseError("header is not terminated by end_header")
		}
		line := strings.TrimSpace(string(data[offset : offset+end]))
		offset += end + 1
		if lineNum == 1 {
			if line != magic {
				return nil, utils.NewUnsupportedFormatError("first line is %q, not %q", line, magic)
			}
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		switch tokens[0] {
		case "format":
			if len(tokens) != 3 {
				return nil, utils.NewParseError("line %d: malformed format line %q", lineNum, line)
			}
			switch tokens[1] {
			case "ascii":
				header.Format = FormatASCII
			case "binary_little_endian":
				header.Format = FormatBinaryLittleEndian
			case "binary_big_endian":
				header.Format = FormatBinaryBigEndian
			default:
				return nil, utils.NewParseError("line %d: unknown format %q", lineNum, tokens[1])
			}
			sawFormat = true
		case "comment", "obj_info":
			header.Comments = append(header.Comments, strings.TrimSpace(strings.TrimPrefix(line, tokens[0])))
		case "element":
			if len(tokens) != 3 {
				return nil, utils.NewParseError("line %d: malformed element line %q", lineNum, line)
			}
			count, err := strconv.Atoi(tokens[2])
			if err != nil || count < 0 {
				return nil, utils.NewParseError("line %d: invalid element count %q", lineNum, tokens[2])
			}
			header.Elements = append(header.Elements, Element{Name: tokens[1], Count: count})
		case "property":
			if len(header.Elements) == 0 {
				return nil, utils.NewParseError("line %d: property before any element", lineNum)
			}
			prop, err := parseProperty(tokens)
			if err != nil {
				return nil, utils.NewParseError("line %d: %v", lineNum, err)
			}
			elem := &header.Elements[len(header.Elements)-1]
			elem.Properties = append(elem.Properties, prop)
		case "end_header":
			if !sawFormat {
				return nil, utils.NewParseError("header has no format line")
			}
			header.BodyOffset = offset
			return header, nil
		default:
			return nil, utils.NewParseError("line %d: unknown header keyword %q", lineNum, tokens[0])
		}
	}
}

func parseProperty(tokens []string) (Property, error) {
	if len(tokens) >= 2 && tokens[1] == "list" {
		if len(tokens) != 5 {
			return Property{}, errMalformedProperty(tokens)
		}
		if _, ok := typeSizes[tokens[2]]; !ok {
			return Property{}, errUnknownType(tokens[2])
		}
		if _, ok := typeSizes[tokens[3]]; !ok {
			return Property{}, errUnknownType(tokens[3])
		}
		return Property{Name: tokens[4], Type: tokens[3], CountType: tokens[2]}, nil
	}
	if len(tokens) != 3 {
		return Property{}, errMalformedProperty(tokens)
	}
	if _, ok := typeSizes[tokens[1]]; !ok {
		return Property{}, errUnknownType(tokens[1])
	}
	return Property{Name: tokens[2], Type: tokens[1]}, nil
}
