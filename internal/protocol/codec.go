package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrShortData is returned when a field extends past the end of its payload.
var ErrShortData = errors.New("protocol: unexpected end of data")

// Table represents an AMQP field table
type Table map[string]interface{}

// Decimal is the AMQP decimal-value field type.
type Decimal struct {
	Scale uint8
	Value int32
}

// Encoder appends AMQP primitive types to a byte slice.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with the given initial capacity.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded data.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// WriteOctet appends a single byte.
func (e *Encoder) WriteOctet(v uint8) {
	e.buf = append(e.buf, v)
}

// WriteShort appends a big-endian uint16.
func (e *Encoder) WriteShort(v uint16) {
	e.buf = binary.BigEndian.AppendUint16(e.buf, v)
}

// WriteLong appends a big-endian uint32.
func (e *Encoder) WriteLong(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

// WriteLongLong appends a big-endian uint64.
func (e *Encoder) WriteLongLong(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}

// WriteRaw appends p unchanged.
func (e *Encoder) WriteRaw(p []byte) {
	e.buf = append(e.buf, p...)
}

// WriteBits packs consecutive bit fields, eight per octet.
func (e *Encoder) WriteBits(bits ...bool) {
	for start := 0; start < len(bits); start += 8 {
		var octet uint8
		for i := start; i < len(bits) && i < start+8; i++ {
			if bits[i] {
				octet |= 1 << uint(i-start)
			}
		}
		e.WriteOctet(octet)
	}
}

// WriteShortString writes a short string (max 255 bytes)
func (e *Encoder) WriteShortString(s string) error {
	if len(s) > ShortStrMaxLen {
		return fmt.Errorf("short string too long: %d", len(s))
	}
	e.WriteOctet(uint8(len(s)))
	e.buf = append(e.buf, s...)
	return nil
}

// WriteLongString writes a long string
func (e *Encoder) WriteLongString(p []byte) {
	e.WriteLong(uint32(len(p)))
	e.buf = append(e.buf, p...)
}

// WriteTable writes an AMQP field table
func (e *Encoder) WriteTable(table Table) error {
	sizeAt := len(e.buf)
	e.WriteLong(0)

	for name, value := range table {
		if err := e.WriteShortString(name); err != nil {
			return err
		}
		if err := e.writeFieldValue(value); err != nil {
			return fmt.Errorf("table field %q: %w", name, err)
		}
	}

	binary.BigEndian.PutUint32(e.buf[sizeAt:], uint32(len(e.buf)-sizeAt-4))
	return nil
}

func (e *Encoder) writeArray(values []interface{}) error {
	sizeAt := len(e.buf)
	e.WriteLong(0)

	for _, value := range values {
		if err := e.writeFieldValue(value); err != nil {
			return err
		}
	}

	binary.BigEndian.PutUint32(e.buf[sizeAt:], uint32(len(e.buf)-sizeAt-4))
	return nil
}

// writeFieldValue writes a field value with its type indicator
func (e *Encoder) writeFieldValue(value interface{}) error {
	switch v := value.(type) {
	case bool:
		e.WriteOctet('t')
		if v {
			e.WriteOctet(1)
		} else {
			e.WriteOctet(0)
		}
	case int8:
		e.WriteOctet('b')
		e.WriteOctet(uint8(v))
	case uint8:
		e.WriteOctet('B')
		e.WriteOctet(v)
	case int16:
		e.WriteOctet('s')
		e.WriteShort(uint16(v))
	case uint16:
		e.WriteOctet('u')
		e.WriteShort(v)
	case int32:
		e.WriteOctet('I')
		e.WriteLong(uint32(v))
	case uint32:
		e.WriteOctet('i')
		e.WriteLong(v)
	case int64:
		e.WriteOctet('l')
		e.WriteLongLong(uint64(v))
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			e.WriteOctet('I')
			e.WriteLong(uint32(int32(v)))
		} else {
			e.WriteOctet('l')
			e.WriteLongLong(uint64(int64(v)))
		}
	case float32:
		e.WriteOctet('f')
		e.WriteLong(math.Float32bits(v))
	case float64:
		e.WriteOctet('d')
		e.WriteLongLong(math.Float64bits(v))
	case Decimal:
		e.WriteOctet('D')
		e.WriteOctet(v.Scale)
		e.WriteLong(uint32(v.Value))
	case string:
		e.WriteOctet('S')
		e.WriteLongString([]byte(v))
	case []byte:
		e.WriteOctet('x')
		e.WriteLongString(v)
	case time.Time:
		e.WriteOctet('T')
		e.WriteLongLong(uint64(v.Unix()))
	case Table:
		e.WriteOctet('F')
		return e.WriteTable(v)
	case map[string]interface{}:
		e.WriteOctet('F')
		return e.WriteTable(Table(v))
	case []interface{}:
		e.WriteOctet('A')
		return e.writeArray(v)
	case nil:
		e.WriteOctet('V')
	default:
		return fmt.Errorf("unsupported field value type: %T", value)
	}
	return nil
}

// Decoder reads AMQP primitive types from a byte slice.
type Decoder struct {
	data []byte
	pos  int
}

// NewDecoder creates a decoder over data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.pos
}

func (d *Decoder) next(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, ErrShortData
	}
	p := d.data[d.pos : d.pos+n]
	d.pos += n
	return p, nil
}

// ReadOctet reads a single byte.
func (d *Decoder) ReadOctet() (uint8, error) {
	p, err := d.next(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// ReadShort reads a big-endian uint16.
func (d *Decoder) ReadShort() (uint16, error) {
	p, err := d.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

// ReadLong reads a big-endian uint32.
func (d *Decoder) ReadLong() (uint32, error) {
	p, err := d.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

// ReadLongLong reads a big-endian uint64.
func (d *Decoder) ReadLongLong() (uint64, error) {
	p, err := d.next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

// ReadBits reads n packed bit fields.
func (d *Decoder) ReadBits(n int) ([]bool, error) {
	bits := make([]bool, n)
	for start := 0; start < n; start += 8 {
		octet, err := d.ReadOctet()
		if err != nil {
			return nil, err
		}
		for i := start; i < n && i < start+8; i++ {
			bits[i] = octet&(1<<uint(i-start)) != 0
		}
	}
	return bits, nil
}

// ReadShortString reads a short string (max 255 bytes)
func (d *Decoder) ReadShortString() (string, error) {
	length, err := d.ReadOctet()
	if err != nil {
		return "", err
	}
	p, err := d.next(int(length))
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// ReadLongString reads a long string
func (d *Decoder) ReadLongString() ([]byte, error) {
	length, err := d.ReadLong()
	if err != nil {
		return nil, err
	}
	p, err := d.next(int(length))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out, nil
}

// ReadTable reads an AMQP field table
func (d *Decoder) ReadTable() (Table, error) {
	raw, err := d.ReadLongString()
	if err != nil {
		return nil, err
	}

	table := make(Table)
	inner := NewDecoder(raw)
	for inner.Remaining() > 0 {
		name, err := inner.ReadShortString()
		if err != nil {
			return nil, err
		}
		value, err := inner.readFieldValue()
		if err != nil {
			return nil, fmt.Errorf("table field %q: %w", name, err)
		}
		table[name] = value
	}
	return table, nil
}

func (d *Decoder) readArray() ([]interface{}, error) {
	raw, err := d.ReadLongString()
	if err != nil {
		return nil, err
	}

	values := []interface{}{}
	inner := NewDecoder(raw)
	for inner.Remaining() > 0 {
		value, err := inner.readFieldValue()
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// readFieldValue reads a field value based on its type indicator
func (d *Decoder) readFieldValue() (interface{}, error) {
	kind, err := d.ReadOctet()
	if err != nil {
		return nil, err
	}

	switch kind {
	case 't':
		b, err := d.ReadOctet()
		return b != 0, err
	case 'b':
		b, err := d.ReadOctet()
		return int8(b), err
	case 'B':
		return d.ReadOctet()
	case 's':
		v, err := d.ReadShort()
		return int16(v), err
	case 'u':
		return d.ReadShort()
	case 'I':
		v, err := d.ReadLong()
		return int32(v), err
	case 'i':
		return d.ReadLong()
	case 'l':
		v, err := d.ReadLongLong()
		return int64(v), err
	case 'f':
		v, err := d.ReadLong()
		return math.Float32frombits(v), err
	case 'd':
		v, err := d.ReadLongLong()
		return math.Float64frombits(v), err
	case 'D':
		scale, err := d.ReadOctet()
		if err != nil {
			return nil, err
		}
		v, err := d.ReadLong()
		return Decimal{Scale: scale, Value: int32(v)}, err
	case 'S':
		p, err := d.ReadLongString()
		return string(p), err
	case 'x':
		return d.ReadLongString()
	case 'A':
		return d.readArray()
	case 'T':
		v, err := d.ReadLongLong()
		return time.Unix(int64(v), 0), err
	case 'F':
		return d.ReadTable()
	case 'V':
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown field type: %c", kind)
	}
}
