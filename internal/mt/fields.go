package mt

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies the wire representation of a single Field, per §3's
// primitive type list: fixed-width integers, booleans, addresses, byte
// strings, enums and repeated structs.
type Kind int

const (
	KindU8 Kind = iota
	KindU16
	KindU32
	KindU64
	KindI8
	KindI16
	KindI32
	KindBool8
	KindIEEEAddr    // u64 little-endian
	KindNWKAddr     // u16 little-endian
	KindChannelMask // u32 little-endian
	KindVarBytes    // u8-length-prefixed
	KindFixedBytes  // Len bytes, no prefix
	KindEnum8
	KindEnum16
	KindList // Len-less repeated struct with a leading u8 count, elements described by Elem
)

// Field is one entry of a command's field layout.
type Field struct {
	Name string
	Kind Kind

	// Len is the fixed byte length for KindFixedBytes.
	Len int

	// Enum names the mapping from stored value to symbolic name; purely
	// cosmetic, does not affect wire size.
	Enum map[uint16]string

	// Elem describes the repeated element layout for KindList.
	Elem []Field
}

// Values holds decoded/pending field values keyed by field name. Lists are
// stored as []Values.
type Values map[string]any

// Encode serialises vals against layout, in order, appending to buf.
func Encode(layout []Field, vals Values) ([]byte, error) {
	var buf []byte
	for _, f := range layout {
		v, ok := vals[f.Name]
		if !ok {
			return nil, fmt.Errorf("mt: missing field %q", f.Name)
		}
		b, err := encodeField(f, v)
		if err != nil {
			return nil, fmt.Errorf("mt: field %q: %w", f.Name, err)
		}
		buf = append(buf, b...)
	}
	return buf, nil
}

func encodeField(f Field, v any) ([]byte, error) {
	switch f.Kind {
	case KindU8, KindEnum8:
		return []byte{byte(toU64(v))}, nil
	case KindU16, KindNWKAddr, KindEnum16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(toU64(v)))
		return b, nil
	case KindU32, KindChannelMask:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(toU64(v)))
		return b, nil
	case KindU64, KindIEEEAddr:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, toU64(v))
		return b, nil
	case KindI8:
		return []byte{byte(int8(toI64(v)))}, nil
	case KindI16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(int16(toI64(v))))
		return b, nil
	case KindI32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(toI64(v))))
		return b, nil
	case KindBool8:
		if toBool(v) {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case KindVarBytes:
		bs, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte, got %T", v)
		}
		if len(bs) > 255 {
			return nil, fmt.Errorf("variable byte string too long: %d", len(bs))
		}
		out := make([]byte, 0, len(bs)+1)
		out = append(out, byte(len(bs)))
		return append(out, bs...), nil
	case KindFixedBytes:
		bs, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte, got %T", v)
		}
		if len(bs) != f.Len {
			return nil, fmt.Errorf("expected %d bytes, got %d", f.Len, len(bs))
		}
		return append([]byte(nil), bs...), nil
	case KindList:
		items, ok := v.([]Values)
		if !ok {
			return nil, fmt.Errorf("expected []Values, got %T", v)
		}
		if len(items) > 255 {
			return nil, fmt.Errorf("list too long: %d", len(items))
		}
		out := []byte{byte(len(items))}
		for i, item := range items {
			b, err := Encode(f.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, b...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown field kind %d", f.Kind)
	}
}

// Decode parses layout out of data, returning the field values and the
// number of bytes consumed.
func Decode(layout []Field, data []byte) (Values, int, error) {
	vals := make(Values, len(layout))
	off := 0
	for _, f := range layout {
		v, n, err := decodeField(f, data[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("mt: field %q: %w", f.Name, err)
		}
		vals[f.Name] = v
		off += n
	}
	return vals, off, nil
}

func decodeField(f Field, data []byte) (any, int, error) {
	need := func(n int) error {
		if len(data) < n {
			return fmt.Errorf("truncated: need %d bytes, have %d", n, len(data))
		}
		return nil
	}

	switch f.Kind {
	case KindU8, KindEnum8:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return uint64(data[0]), 1, nil
	case KindU16, KindNWKAddr, KindEnum16:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return uint64(binary.LittleEndian.Uint16(data)), 2, nil
	case KindU32, KindChannelMask:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return uint64(binary.LittleEndian.Uint32(data)), 4, nil
	case KindU64, KindIEEEAddr:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return binary.LittleEndian.Uint64(data), 8, nil
	case KindI8:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return int64(int8(data[0])), 1, nil
	case KindI16:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return int64(int16(binary.LittleEndian.Uint16(data))), 2, nil
	case KindI32:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return int64(int32(binary.LittleEndian.Uint32(data))), 4, nil
	case KindBool8:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return data[0] != 0, 1, nil
	case KindVarBytes:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		n := int(data[0])
		if err := need(1 + n); err != nil {
			return nil, 0, err
		}
		return append([]byte(nil), data[1:1+n]...), 1 + n, nil
	case KindFixedBytes:
		if err := need(f.Len); err != nil {
			return nil, 0, err
		}
		return append([]byte(nil), data[:f.Len]...), f.Len, nil
	case KindList:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		count := int(data[0])
		off := 1
		items := make([]Values, 0, count)
		for i := 0; i < count; i++ {
			item, n, err := Decode(f.Elem, data[off:])
			if err != nil {
				return nil, 0, fmt.Errorf("element %d: %w", i, err)
			}
			items = append(items, item)
			off += n
		}
		return items, off, nil
	default:
		return nil, 0, fmt.Errorf("unknown field kind %d", f.Kind)
	}
}

func toU64(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case uint32:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint8:
		return uint64(n)
	case int:
		return uint64(n)
	default:
		return 0
	}
}

func toI64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}
