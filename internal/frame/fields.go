package frame

import "github.com/israelio/rabbit-blocking-client/internal/protocol"

// writer wraps an Encoder and keeps the first error so method encoders can
// be written as a flat list of fields.
type writer struct {
	e   *protocol.Encoder
	err error
}

func (w *writer) octet(v uint8)     { w.e.WriteOctet(v) }
func (w *writer) short(v uint16)    { w.e.WriteShort(v) }
func (w *writer) long(v uint32)     { w.e.WriteLong(v) }
func (w *writer) longlong(v uint64) { w.e.WriteLongLong(v) }
func (w *writer) bits(v ...bool)    { w.e.WriteBits(v...) }
func (w *writer) longstr(v string)  { w.e.WriteLongString([]byte(v)) }

func (w *writer) shortstr(v string) {
	if err := w.e.WriteShortString(v); err != nil && w.err == nil {
		w.err = err
	}
}

func (w *writer) table(v protocol.Table) {
	if err := w.e.WriteTable(v); err != nil && w.err == nil {
		w.err = err
	}
}

// reader wraps a Decoder with the same sticky-error behaviour.
type reader struct {
	d   *protocol.Decoder
	err error
}

func (r *reader) keep(err error) bool {
	if err != nil && r.err == nil {
		r.err = err
	}
	return r.err == nil
}

func (r *reader) octet() uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.d.ReadOctet()
	r.keep(err)
	return v
}

func (r *reader) short() uint16 {
	if r.err != nil {
		return 0
	}
	v, err := r.d.ReadShort()
	r.keep(err)
	return v
}

func (r *reader) long() uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.d.ReadLong()
	r.keep(err)
	return v
}

func (r *reader) longlong() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.d.ReadLongLong()
	r.keep(err)
	return v
}

func (r *reader) shortstr() string {
	if r.err != nil {
		return ""
	}
	v, err := r.d.ReadShortString()
	r.keep(err)
	return v
}

func (r *reader) longstr() string {
	if r.err != nil {
		return ""
	}
	v, err := r.d.ReadLongString()
	r.keep(err)
	return string(v)
}

func (r *reader) table() protocol.Table {
	if r.err != nil {
		return nil
	}
	v, err := r.d.ReadTable()
	r.keep(err)
	return v
}

// bits always returns n entries so callers can index it without checking.
func (r *reader) bits(n int) []bool {
	if r.err != nil {
		return make([]bool, n)
	}
	v, err := r.d.ReadBits(n)
	if !r.keep(err) {
		return make([]bool, n)
	}
	return v
}
