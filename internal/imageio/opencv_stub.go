//go:build !opencv

package imageio

// RegisterOpenCV is a no-op without the opencv build tag; the built-in codecs
// stay in place.
func RegisterOpenCV(l *Loader) bool {
	l.logger.Debug("OpenCV support not compiled in")
	return false
}
