// Netpbm P6 (colour) and P5 (grey) codecs
package imageio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"

	"separable-convolution/internal/core"
)

// PNM reads binary P6 and P5 images with a maximum value up to 255. It writes
// P6, or P5 holding the channel mean when Gray is set.
type PNM struct {
	Gray bool
}

func (PNM) Decode(r io.Reader) (*core.Image, error) {
	br := bufio.NewReader(r)

	magic, err := pnmToken(br)
	if err != nil {
		return nil, fmt.Errorf("pnm header: %w", err)
	}
	var samples int
	switch magic {
	case "P6":
		samples = 3
	case "P5":
		samples = 1
	default:
		return nil, fmt.Errorf("%w: pnm magic %q", ErrUnsupportedFormat, magic)
	}

	var header [3]int // width, height, maxval
	for i := range header {
		tok, err := pnmToken(br)
		if err != nil {
			return nil, fmt.Errorf("pnm header: %w", err)
		}
		if header[i], err = strconv.Atoi(tok); err != nil {
			return nil, fmt.Errorf("pnm header: bad number %q", tok)
		}
	}
	width, height, maxval := header[0], header[1], header[2]
	if err := checkDimensions(width, height); err != nil {
		return nil, err
	}
	if maxval <= 0 || maxval > 255 {
		return nil, fmt.Errorf("%w: pnm maxval %d", ErrUnsupportedFormat, maxval)
	}

	img := core.NewImage(width, height)
	line := make([]byte, width*samples)
	for y := 0; y < height; y++ {
		if _, err := io.ReadFull(br, line); err != nil {
			return nil, fmt.Errorf("pnm row %d: %w", y, err)
		}
		row := img.Row(y)
		for x := range row {
			for c := 0; c < core.BaseChannels; c++ {
				v := int(line[x*samples+c%samples])
				row[x][c] = byte(min(255, v*255/maxval))
			}
		}
	}
	return img, nil
}

func (p PNM) Encode(w io.Writer, img *core.Image) error {
	bw := bufio.NewWriter(w)
	magic, samples := "P6", 3
	if p.Gray {
		magic, samples = "P5", 1
	}
	if _, err := fmt.Fprintf(bw, "%s\n%d %d\n255\n", magic, img.Width(), img.Height()); err != nil {
		return err
	}

	line := make([]byte, img.Width()*samples)
	for y := 0; y < img.Height(); y++ {
		for x, px := range img.Row(y) {
			if p.Gray {
				line[x] = byte((int(px[0]) + int(px[1]) + int(px[2])) / 3)
				continue
			}
			copy(line[x*3:x*3+3], px[:3])
		}
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// pnmToken returns the next whitespace separated header token, skipping '#'
// comments, and consumes the single whitespace byte that ends it.
func pnmToken(br *bufio.Reader) (string, error) {
	var tok []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(tok) > 0 {
				return string(tok), nil
			}
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		switch {
		case b == '#' && len(tok) == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return "", io.ErrUnexpectedEOF
			}
		case b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f':
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, b)
		}
	}
}
