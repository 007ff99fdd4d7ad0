package visimap

// bitWriter writes MSB-first bit fields into a fixed buffer.
type bitWriter struct {
	buf []byte
	pos int
}

func (w *bitWriter) put(v uint32, n int) bool {
	if w.pos+n > len(w.buf)*8 {
		return false
	}
	for i := n - 1; i >= 0; i-- {
		if (v>>uint(i))&1 == 1 {
			w.buf[w.pos/8] |= 0x80 >> uint(w.pos%8)
		}
		w.pos++
	}
	return true
}

func (w *bitWriter) skip(n int) bool {
	if w.pos+n > len(w.buf)*8 {
		return false
	}
	w.pos += n
	return true
}

// length is the number of bytes touched.
func (w *bitWriter) length() int { return (w.pos + 7) / 8 }

type bitReader struct {
	buf []byte
	pos int
}

func (r *bitReader) get(n int) (uint32, bool) {
	if r.pos+n > len(r.buf)*8 {
		return 0, false
	}
	var v uint32
	for i := 0; i < n; i++ {
		v <<= 1
		if r.buf[r.pos/8]&(0x80>>uint(r.pos%8)) != 0 {
			v |= 1
		}
		r.pos++
	}
	return v, true
}

func (r *bitReader) skip(n int) bool {
	if r.pos+n > len(r.buf)*8 {
		return false
	}
	r.pos += n
	return true
}
