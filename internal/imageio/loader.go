// Package imageio reads and writes images as core.Image, choosing a codec by
// file extension.
package imageio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"separable-convolution/internal/core"
)

// ErrUnsupportedFormat is returned for extensions no codec is registered for,
// and by codecs that cannot encode their format.
var ErrUnsupportedFormat = errors.New("imageio: unsupported image format")

// Codec converts between an encoded stream and an image.
type Codec interface {
	Decode(r io.Reader) (*core.Image, error)
	Encode(w io.Writer, img *core.Image) error
}

// Loader handles image file operations.
type Loader struct {
	logger logrus.FieldLogger
	codecs map[string]Codec
}

// NewLoader returns a loader with the built-in codecs registered.
func NewLoader(logger logrus.FieldLogger) *Loader {
	l := &Loader{
		logger: logger,
		codecs: make(map[string]Codec),
	}
	l.Register(PNM{}, ".ppm", ".pnm")
	l.Register(PNM{Gray: true}, ".pgm")
	l.Register(PNG, ".png")
	l.Register(JPEG, ".jpg", ".jpeg")
	l.Register(BMP, ".bmp")
	l.Register(TIFF, ".tif", ".tiff")
	l.Register(WebP, ".webp")
	return l
}

// Register binds codec to the given extensions, replacing earlier bindings.
func (l *Loader) Register(codec Codec, exts ...string) {
	for _, ext := range exts {
		l.codecs[strings.ToLower(ext)] = codec
	}
}

// SupportedFormats returns every registered extension in sorted order.
func (l *Loader) SupportedFormats() []string {
	exts := lo.Keys(l.codecs)
	slices.Sort(exts)
	return exts
}

func (l *Loader) codecFor(path string) (Codec, error) {
	ext := strings.ToLower(filepath.Ext(path))
	codec, ok := l.codecs[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
	return codec, nil
}

// Load decodes the image at path.
func (l *Loader) Load(path string) (*core.Image, error) {
	l.logger.WithField("filepath", path).Debug("Loading image")

	codec, err := l.codecFor(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, err := codec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	l.logger.WithFields(logrus.Fields{
		"filepath": path,
		"width":    img.Width(),
		"height":   img.Height(),
	}).Info("Image loaded successfully")
	return img, nil
}

// Save encodes img to path, replacing any existing file.
func (l *Loader) Save(img *core.Image, path string) (err error) {
	l.logger.WithField("filepath", path).Debug("Saving image")

	if err := core.ValidateImage(img); err != nil {
		return fmt.Errorf("cannot save image: %w", err)
	}
	codec, err := l.codecFor(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if err := codec.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	l.logger.WithFields(logrus.Fields{
		"filepath": path,
		"width":    img.Width(),
		"height":   img.Height(),
	}).Info("Image saved successfully")
	return nil
}

func checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 || width > core.MaxDimension || height > core.MaxDimension {
		return fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	return nil
}
