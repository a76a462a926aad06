package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"separable-convolution/internal/core"
)

const (
	flagCompressed byte = 1 << 0
	headerSize          = 2 // kind, flags
	maxPlanes           = core.BaseChannels
)

var errShortFrame = errors.New("transport: short frame")

// PackChannel flattens one channel of a pixel run into a byte plane.
func PackChannel(pix []core.Pixel, channel int) []byte {
	plane := make([]byte, len(pix))
	for i := range pix {
		plane[i] = pix[i][channel]
	}
	return plane
}

// UnpackChannel writes a byte plane back into one channel of a pixel run.
func UnpackChannel(pix []core.Pixel, channel int, plane []byte) error {
	if len(plane) != len(pix) {
		return fmt.Errorf("transport: plane of %d bytes for %d pixels", len(plane), len(pix))
	}
	for i := range pix {
		pix[i][channel] = plane[i]
	}
	return nil
}

// PackRows packs every base channel of a row window, one plane per channel.
func PackRows(rows core.Rows) [][]byte {
	planes := make([][]byte, core.BaseChannels)
	for c := range planes {
		planes[c] = PackChannel(rows.Pix, c)
	}
	return planes
}

// UnpackRows restores the base channels of a row window from its planes.
func UnpackRows(rows core.Rows, planes [][]byte) error {
	if len(planes) != core.BaseChannels {
		return fmt.Errorf("transport: %d planes, want %d", len(planes), core.BaseChannels)
	}
	for c, plane := range planes {
		if err := UnpackChannel(rows.Pix, c, plane); err != nil {
			return fmt.Errorf("channel %d: %w", c, err)
		}
	}
	return nil
}

// Codec turns messages into frames and back. Row batches are zstd compressed
// when compression is enabled; decoding accepts both forms.
type Codec struct {
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// NewCodec creates a codec. It is safe for concurrent use.
func NewCodec(compress bool) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Codec{compress: compress, enc: enc, dec: dec}, nil
}

// Close releases the compression state.
func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

// Marshal encodes a message into a frame.
func (c *Codec) Marshal(msg Message) ([]byte, error) {
	var body []byte
	switch m := msg.(type) {
	case Dims:
		body = binary.BigEndian.AppendUint32(body, uint32(m.Width))
		body = binary.BigEndian.AppendUint32(body, uint32(m.Height))
	case HaloBatch:
		body = appendRows(body, m.Lo, m.Hi, m.Planes)
	case GatherBatch:
		body = appendRows(body, m.Start, m.End, m.Planes)
	case MaxValue:
		body = binary.BigEndian.AppendUint32(body, uint32(m.Iteration))
		body = append(body, m.Value)
	default:
		return nil, fmt.Errorf("transport: cannot marshal %T", msg)
	}

	var flags byte
	if c.compress && (msg.Kind() == KindHalo || msg.Kind() == KindGather) {
		flags |= flagCompressed
		body = c.enc.EncodeAll(body, nil)
	}

	frame := make([]byte, 0, headerSize+len(body))
	frame = append(frame, byte(msg.Kind()), flags)
	return append(frame, body...), nil
}

// Unmarshal decodes a frame produced by Marshal.
func (c *Codec) Unmarshal(frame []byte) (Message, error) {
	if len(frame) < headerSize {
		return nil, errShortFrame
	}
	kind, flags, body := Kind(frame[0]), frame[1], frame[headerSize:]
	if flags&flagCompressed != 0 {
		var err error
		if body, err = c.dec.DecodeAll(body, nil); err != nil {
			return nil, fmt.Errorf("transport: failed to decompress %s frame: %w", kind, err)
		}
	}

	switch kind {
	case KindDims:
		if len(body) != 8 {
			return nil, fmt.Errorf("%w: dims body of %d bytes", errShortFrame, len(body))
		}
		return Dims{
			Width:  int(binary.BigEndian.Uint32(body)),
			Height: int(binary.BigEndian.Uint32(body[4:])),
		}, nil
	case KindHalo:
		lo, hi, planes, err := readRows(body)
		if err != nil {
			return nil, err
		}
		return HaloBatch{Lo: lo, Hi: hi, Planes: planes}, nil
	case KindGather:
		start, end, planes, err := readRows(body)
		if err != nil {
			return nil, err
		}
		return GatherBatch{Start: start, End: end, Planes: planes}, nil
	case KindMax:
		if len(body) != 5 {
			return nil, fmt.Errorf("%w: max body of %d bytes", errShortFrame, len(body))
		}
		return MaxValue{Iteration: int(binary.BigEndian.Uint32(body)), Value: body[4]}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrUnexpectedMessage, uint8(kind))
	}
}

func appendRows(body []byte, lo, hi int, planes [][]byte) []byte {
	body = binary.BigEndian.AppendUint32(body, uint32(lo))
	body = binary.BigEndian.AppendUint32(body, uint32(hi))
	body = append(body, byte(len(planes)))
	for _, plane := range planes {
		body = binary.BigEndian.AppendUint32(body, uint32(len(plane)))
		body = append(body, plane...)
	}
	return body
}

func readRows(body []byte) (lo, hi int, planes [][]byte, err error) {
	if len(body) < 9 {
		return 0, 0, nil, fmt.Errorf("%w: row header of %d bytes", errShortFrame, len(body))
	}
	lo = int(binary.BigEndian.Uint32(body))
	hi = int(binary.BigEndian.Uint32(body[4:]))
	n := int(body[8])
	if n > maxPlanes {
		return 0, 0, nil, fmt.Errorf("transport: %d planes exceeds %d", n, maxPlanes)
	}
	body = body[9:]

	planes = make([][]byte, n)
	for i := range planes {
		if len(body) < 4 {
			return 0, 0, nil, fmt.Errorf("%w: plane %d header", errShortFrame, i)
		}
		size := int(binary.BigEndian.Uint32(body))
		body = body[4:]
		if len(body) < size {
			return 0, 0, nil, fmt.Errorf("%w: plane %d wants %d bytes, have %d", errShortFrame, i, size, len(body))
		}
		planes[i] = body[:size:size]
		body = body[size:]
	}
	if len(body) != 0 {
		return 0, 0, nil, fmt.Errorf("transport: %d trailing bytes after planes", len(body))
	}
	return lo, hi, planes, nil
}
