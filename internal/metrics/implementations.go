// Concrete implementations of quality metrics
package metrics

import (
	"fmt"
	"math"

	"separable-convolution/internal/core"
)

// PSNR implements Peak Signal-to-Noise Ratio over the base channels
type PSNR struct{}

func NewPSNR() *PSNR {
	return &PSNR{}
}

func (p *PSNR) Calculate(original, processed *core.Image) (float64, error) {
	mse, err := meanSquaredError(original, processed)
	if err != nil {
		return 0, err
	}
	if mse == 0 {
		return math.Inf(1), nil // Perfect match
	}
	return 20 * math.Log10(255/math.Sqrt(mse)), nil
}

func (p *PSNR) GetName() string { return "PSNR" }
func (p *PSNR) GetDescription() string {
	return "Peak Signal-to-Noise Ratio - measures image quality"
}
func (p *PSNR) GetRange() (float64, float64) { return 0, 100 }
func (p *PSNR) IsHigherBetter() bool         { return true }

// MSE implements Mean Squared Error over the base channels
type MSE struct{}

func NewMSE() *MSE {
	return &MSE{}
}

func (m *MSE) Calculate(original, processed *core.Image) (float64, error) {
	return meanSquaredError(original, processed)
}

func (m *MSE) GetName() string        { return "MSE" }
func (m *MSE) GetDescription() string { return "Mean Squared Error - pixel-wise difference" }
func (m *MSE) GetRange() (float64, float64) {
	return 0, 255 * 255
}
func (m *MSE) IsHigherBetter() bool { return false }

func meanSquaredError(original, processed *core.Image) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	a, b := original.Rows().Pix, processed.Rows().Pix
	var sum float64
	for i := range a {
		for c := 0; c < core.BaseChannels; c++ {
			d := float64(a[i][c]) - float64(b[i][c])
			sum += d * d
		}
	}
	return sum / float64(len(a)*core.BaseChannels), nil
}

// SSIM implements a global Structural Similarity Index on luma, computed over
// the whole image as a single window.
type SSIM struct{}

func NewSSIM() *SSIM {
	return &SSIM{}
}

func (s *SSIM) Calculate(original, processed *core.Image) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	const (
		C1 = 6.5025  // (0.01 * 255)^2
		C2 = 58.5225 // (0.03 * 255)^2
	)

	a, b := original.Rows().Pix, processed.Rows().Pix
	n := float64(len(a))
	var sumA, sumB float64
	for i := range a {
		sumA += luma(&a[i])
		sumB += luma(&b[i])
	}
	muA, muB := sumA/n, sumB/n

	var varA, varB, cov float64
	for i := range a {
		da, db := luma(&a[i])-muA, luma(&b[i])-muB
		varA += da * da
		varB += db * db
		cov += da * db
	}
	varA, varB, cov = varA/n, varB/n, cov/n

	num := (2*muA*muB + C1) * (2*cov + C2)
	den := (muA*muA + muB*muB + C1) * (varA + varB + C2)
	return num / den, nil
}

func (s *SSIM) GetName() string { return "SSIM" }
func (s *SSIM) GetDescription() string {
	return "Structural Similarity Index - perceptual similarity of luma"
}
func (s *SSIM) GetRange() (float64, float64) { return -1, 1 }
func (s *SSIM) IsHigherBetter() bool         { return true }

func luma(p *core.Pixel) float64 {
	return 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
}

// MaxIntensity reports the largest base channel value of the processed image
type MaxIntensity struct{}

func NewMaxIntensity() *MaxIntensity {
	return &MaxIntensity{}
}

func (m *MaxIntensity) Calculate(_, processed *core.Image) (float64, error) {
	if processed == nil {
		return 0, fmt.Errorf("nil image")
	}
	return float64(processed.MaxIntensity()), nil
}

func (m *MaxIntensity) GetName() string { return "Max Intensity" }
func (m *MaxIntensity) GetDescription() string {
	return "Largest channel value after processing"
}
func (m *MaxIntensity) GetRange() (float64, float64) { return 0, 255 }
func (m *MaxIntensity) IsHigherBetter() bool         { return true }

// MeanIntensity reports the mean base channel value of the processed image
type MeanIntensity struct{}

func NewMeanIntensity() *MeanIntensity {
	return &MeanIntensity{}
}

func (m *MeanIntensity) Calculate(_, processed *core.Image) (float64, error) {
	if processed == nil {
		return 0, fmt.Errorf("nil image")
	}
	pix := processed.Rows().Pix
	var sum int
	for i := range pix {
		for c := 0; c < core.BaseChannels; c++ {
			sum += int(pix[i][c])
		}
	}
	return float64(sum) / float64(len(pix)*core.BaseChannels), nil
}

func (m *MeanIntensity) GetName() string { return "Mean Intensity" }
func (m *MeanIntensity) GetDescription() string {
	return "Average channel value after processing"
}
func (m *MeanIntensity) GetRange() (float64, float64) { return 0, 255 }
func (m *MeanIntensity) IsHigherBetter() bool         { return true }
