package stream

import (
	"errors"
	"io"
)

const readChunkSize = 32 * 1024

// Reader drives a Framer and a Decoder over an io.Reader.
type Reader struct {
	src    io.Reader
	buf    []byte
	framer Framer
	dec    Decoder
	queue  []Frame
	eof    bool
}

func NewReader(r io.Reader) *Reader {
	must(r != nil, "stream source must not be nil")
	return &Reader{src: r, buf: make([]byte, readChunkSize)}
}

// Next returns the next decoded frame, io.EOF at the natural end of the
// stream, or the underlying read error.
func (r *Reader) Next() (Frame, error) {
	for len(r.queue) == 0 {
		if r.eof {
			return Frame{}, io.EOF
		}
		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.feed(r.framer.Push(string(r.buf[:n])))
		}
		if errors.Is(err, io.EOF) {
			r.feed(r.framer.Flush())
			r.eof = true
			continue
		}
		if err != nil {
			return Frame{}, err
		}
	}
	f := r.queue[0]
	r.queue[0] = Frame{}
	r.queue = r.queue[1:]
	return f, nil
}

func (r *Reader) Dropped() int {
	return r.dec.Dropped()
}

func (r *Reader) feed(lines []string) {
	for _, l := range lines {
		if f, ok := r.dec.Line(l); ok {
			r.queue = append(r.queue, f)
		}
	}
}

// Decode runs chunks through a fresh framer and decoder and returns the frames.
func Decode(chunks ...string) []Frame {
	var (
		fr  Framer
		dec Decoder
		out []Frame
	)
	emit := func(lines []string) {
		for _, l := range lines {
			if f, ok := dec.Line(l); ok {
				out = append(out, f)
			}
		}
	}
	for _, c := range chunks {
		emit(fr.Push(c))
	}
	emit(fr.Flush())
	return out
}
