// Package visualization renders 2D inspection images of a reconstructed
// volume: per-axis slice sequences with an optional soma mask overlay.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"neurotrace/internal/models"
)

// Viewer extracts and saves 2D slices of a volume. When a soma mask is
// present, masked voxels are highlighted in red.
type Viewer struct {
	volume *models.Volume
	soma   models.Soma

	// vmax normalizes intensities into the displayable range
	vmax float64
}

// NewViewer creates a viewer over a volume and an optional soma mask. The
// mask, when present, must have the same extent as the volume.
func NewViewer(vol *models.Volume, soma models.Soma) *Viewer {
	vmax := 0.0
	for _, v := range vol.Data {
		if v > vmax {
			vmax = v
		}
	}
	if vmax == 0 {
		vmax = 1
	}
	return &Viewer{volume: vol, soma: soma, vmax: vmax}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	vol := v.volume
	var img *image.RGBA

	switch axis {
	case "x", "X":
		// Slice along the YZ plane.
		if position >= vol.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		img = image.NewRGBA(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.Set(z, y, v.pixel(position, y, z))
			}
		}

	case "y", "Y":
		// Slice along the XZ plane.
		if position >= vol.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		img = image.NewRGBA(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.Set(x, z, v.pixel(x, position, z))
			}
		}

	case "z", "Z":
		// Slice along the XY plane.
		if position >= vol.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		img = image.NewRGBA(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.Set(x, y, v.pixel(x, y, position))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

func (v *Viewer) pixel(x, y, z int) color.Color {
	val := v.volume.At(x, y, z)
	if val < 0 {
		val = 0
	}
	g := uint8(val / v.vmax * 255)

	if v.soma.Valid && v.soma.Mask.InBounds(x, y, z) && v.soma.Mask.At(x, y, z) > 0 {
		return color.RGBA{R: 255, G: g / 2, B: g / 2, A: 255}
	}
	return color.RGBA{R: g, G: g, B: g, A: 255}
}

// SaveSlice saves an extracted slice as a JPEG image.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves all slices along the specified axis.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.volume.Width
	case "y", "Y":
		maxPos = v.volume.Height
	case "z", "Z":
		maxPos = v.volume.Depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
