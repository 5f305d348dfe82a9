package mt

// decodeState is the streaming decoder's position within a single frame.
type decodeState int

const (
	stateSeekSOF decodeState = iota
	stateReadLen
	stateReadCmd0
	stateReadCmd1
	stateReadData
	stateReadFCS
)

// DecodeResult is returned by every call to Decoder.Parse. Frame is non-nil
// exactly when a complete, checksum-valid frame was just emitted.
type DecodeResult struct {
	Frame       *Frame
	Resynced    bool // a byte was discarded because it could not extend the frame in progress
	FramingErr  bool // a length/FCS violation was detected on this byte
}

// Decoder is a byte-at-a-time streaming parser for the MT frame format. It
// holds all state internally so that a stalled or garbled frame from one
// stream can never affect frames on another Decoder instance, and so the
// caller can feed it one byte or an entire read buffer without changing the
// sequence of frames produced.
type Decoder struct {
	state   decodeState
	length  byte
	cmd0    byte
	cmd1    byte
	data    []byte
	nread   byte
}

// NewDecoder returns a Decoder positioned at the start of a fresh frame.
func NewDecoder() *Decoder {
	return &Decoder{state: stateSeekSOF}
}

// Parse feeds a single byte into the decoder and reports what happened.
func (d *Decoder) Parse(b byte) DecodeResult {
	switch d.state {
	case stateSeekSOF:
		if b == SOF {
			d.state = stateReadLen
		}
		return DecodeResult{}

	case stateReadLen:
		if b > MaxPayload {
			d.state = stateSeekSOF
			return DecodeResult{FramingErr: true, Resynced: true}
		}
		d.length = b
		d.data = make([]byte, 0, b)
		d.state = stateReadCmd0
		return DecodeResult{}

	case stateReadCmd0:
		d.cmd0 = b
		d.state = stateReadCmd1
		return DecodeResult{}

	case stateReadCmd1:
		d.cmd1 = b
		if d.length == 0 {
			d.state = stateReadFCS
		} else {
			d.state = stateReadData
		}
		return DecodeResult{}

	case stateReadData:
		d.data = append(d.data, b)
		d.nread++
		if d.nread == d.length {
			d.state = stateReadFCS
		}
		return DecodeResult{}

	case stateReadFCS:
		want := fcs(d.length, d.cmd0, d.cmd1, d.data)
		frame := Frame{
			Type:      Type(d.cmd0 >> 5),
			Subsystem: Subsystem(d.cmd0 & 0x1F),
			ID:        d.cmd1,
			Data:      d.data,
		}
		d.reset()

		if b != want {
			return DecodeResult{FramingErr: true, Resynced: true}
		}
		return DecodeResult{Frame: &frame}

	default:
		d.reset()
		return DecodeResult{}
	}
}

func (d *Decoder) reset() {
	d.state = stateSeekSOF
	d.length = 0
	d.cmd0 = 0
	d.cmd1 = 0
	d.data = nil
	d.nread = 0
}

// Feed decodes every complete frame contained in buf, in wire order, calling
// emit for each. It is equivalent to calling Parse for every byte and
// collecting the frames, and exists purely as a convenience for readers that
// receive data in chunks rather than one byte at a time.
func (d *Decoder) Feed(buf []byte, emit func(Frame)) {
	for _, b := range buf {
		if r := d.Parse(b); r.Frame != nil {
			emit(*r.Frame)
		}
	}
}
