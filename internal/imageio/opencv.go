//go:build opencv

// OpenCV codec, built with -tags opencv
package imageio

import (
	"fmt"
	"io"

	"gocv.io/x/gocv"

	"separable-convolution/internal/core"
)

// OpenCV decodes and encodes through gocv. Mats are BGR; channels are
// swapped at the boundary.
type OpenCV struct {
	Ext gocv.FileExt
}

// RegisterOpenCV routes the formats OpenCV handles through it and reports
// whether it did.
func RegisterOpenCV(l *Loader) bool {
	l.Register(OpenCV{Ext: gocv.PNGFileExt}, ".png")
	l.Register(OpenCV{Ext: gocv.JPEGFileExt}, ".jpg", ".jpeg")
	l.Register(OpenCV{Ext: gocv.FileExt(".bmp")}, ".bmp")
	l.Register(OpenCV{Ext: gocv.FileExt(".tiff")}, ".tif", ".tiff")
	l.logger.WithField("version", gocv.OpenCVVersion()).Debug("OpenCV codecs registered")
	return true
}

func (OpenCV) Decode(r io.Reader) (*core.Image, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	mat, err := gocv.IMDecode(buf, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("opencv decode: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("opencv decode: empty image")
	}
	if err := checkDimensions(mat.Cols(), mat.Rows()); err != nil {
		return nil, err
	}

	data := mat.ToBytes()
	img := core.NewImage(mat.Cols(), mat.Rows())
	for y := 0; y < mat.Rows(); y++ {
		row := img.Row(y)
		src := data[y*mat.Cols()*3:]
		for x := range row {
			row[x][0], row[x][1], row[x][2] = src[x*3+2], src[x*3+1], src[x*3]
		}
	}
	return img, nil
}

func (o OpenCV) Encode(w io.Writer, img *core.Image) error {
	data := make([]byte, 0, img.Width()*img.Height()*3)
	for y := 0; y < img.Height(); y++ {
		for _, px := range img.Row(y) {
			data = append(data, px[2], px[1], px[0])
		}
	}
	mat, err := gocv.NewMatFromBytes(img.Height(), img.Width(), gocv.MatTypeCV8UC3, data)
	if err != nil {
		return fmt.Errorf("opencv encode: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(o.Ext, mat)
	if err != nil {
		return fmt.Errorf("opencv encode: %w", err)
	}
	defer buf.Close()
	_, err = w.Write(buf.GetBytes())
	return err
}
