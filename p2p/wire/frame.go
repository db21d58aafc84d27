package wire

import (
	"io"

	"github.com/libp2p/go-msgio"
)

// Framer reads and writes varint length-delimited frames over a stream.
// Reads are capped at maxSize; an oversized frame is a read error, not an
// allocation.
type Framer struct {
	r msgio.ReadCloser
	w msgio.WriteCloser
}

// NewFramer wraps a stream with varint framing.
func NewFramer(rw io.ReadWriter, maxSize int) *Framer {
	return &Framer{
		r: msgio.NewVarintReaderSize(rw, maxSize),
		w: msgio.NewVarintWriter(rw),
	}
}

// ReadFrame reads one length-delimited frame.
func (f *Framer) ReadFrame() ([]byte, error) {
	msg, err := f.r.ReadMsg()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(msg))
	copy(out, msg)
	f.r.ReleaseMsg(msg)
	return out, nil
}

// WriteFrame writes one length-delimited frame.
func (f *Framer) WriteFrame(buf []byte) error {
	return f.w.WriteMsg(buf)
}
