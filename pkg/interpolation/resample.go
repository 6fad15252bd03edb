// Package interpolation implements volume resampling for the reconstruction
// pipeline: trilinear interpolation for intensity volumes and nearest
// neighbour for label masks.
package interpolation

import (
	"fmt"
	"math"

	"neurotrace/internal/models"
)

// Resample scales a volume by per-axis zoom factors using trilinear
// interpolation. Output voxel (i, j, k) samples source coordinate
// (i/zx, j/zy, k/zz), so coordinates transform as working = original*zoom.
// Linear interpolation is deterministic and preserves the relative
// ordering of intensities, which keeps thresholds meaningful after zoom.
func Resample(vol *models.Volume, zoom [3]float64) (*models.Volume, error) {
	if err := checkZoom(zoom); err != nil {
		return nil, err
	}

	out := models.NewVolume(scaledExtent(vol.Width, zoom[0]),
		scaledExtent(vol.Height, zoom[1]),
		scaledExtent(vol.Depth, zoom[2]))

	for z := 0; z < out.Depth; z++ {
		sz := float64(z) / zoom[2]
		for y := 0; y < out.Height; y++ {
			sy := float64(y) / zoom[1]
			for x := 0; x < out.Width; x++ {
				sx := float64(x) / zoom[0]
				out.Set(x, y, z, trilinear(vol, sx, sy, sz))
			}
		}
	}

	return out, nil
}

// ResampleNearest resamples with nearest-neighbour lookup. Used for binary
// and labeled masks, where interpolated values would invent labels.
func ResampleNearest(vol *models.Volume, zoom [3]float64) (*models.Volume, error) {
	if err := checkZoom(zoom); err != nil {
		return nil, err
	}
	return ResampleNearestTo(vol,
		scaledExtent(vol.Width, zoom[0]),
		scaledExtent(vol.Height, zoom[1]),
		scaledExtent(vol.Depth, zoom[2]))
}

// ResampleNearestTo resamples a mask to an explicit target extent. The
// restorer uses this to bring a zoomed soma mask back to the crop-region
// extent, which a factor-based call could miss by a voxel after rounding.
func ResampleNearestTo(vol *models.Volume, width, height, depth int) (*models.Volume, error) {
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, fmt.Errorf("target extent must be positive, got %dx%dx%d", width, height, depth)
	}

	out := models.NewVolume(width, height, depth)
	for z := 0; z < depth; z++ {
		sz := nearestIndex(z, depth, vol.Depth)
		for y := 0; y < height; y++ {
			sy := nearestIndex(y, height, vol.Height)
			for x := 0; x < width; x++ {
				sx := nearestIndex(x, width, vol.Width)
				out.Set(x, y, z, vol.At(sx, sy, sz))
			}
		}
	}
	return out, nil
}

func checkZoom(zoom [3]float64) error {
	for axis, f := range zoom {
		if !(f > 0) || math.IsInf(f, 0) {
			return fmt.Errorf("zoom factor on axis %d must be a positive finite value, got %v", axis, f)
		}
	}
	return nil
}

func scaledExtent(n int, factor float64) int {
	out := int(math.Round(float64(n) * factor))
	if out < 1 {
		out = 1
	}
	return out
}

func nearestIndex(i, outExtent, srcExtent int) int {
	s := int(math.Round(float64(i) * float64(srcExtent) / float64(outExtent)))
	if s >= srcExtent {
		s = srcExtent - 1
	}
	return s
}

// trilinear samples the volume at a fractional coordinate, clamping to the
// boundary voxels.
func trilinear(vol *models.Volume, x, y, z float64) float64 {
	x0, fx := splitCoord(x, vol.Width)
	y0, fy := splitCoord(y, vol.Height)
	z0, fz := splitCoord(z, vol.Depth)

	x1 := clampIndex(x0+1, vol.Width)
	y1 := clampIndex(y0+1, vol.Height)
	z1 := clampIndex(z0+1, vol.Depth)

	c000 := vol.At(x0, y0, z0)
	c100 := vol.At(x1, y0, z0)
	c010 := vol.At(x0, y1, z0)
	c110 := vol.At(x1, y1, z0)
	c001 := vol.At(x0, y0, z1)
	c101 := vol.At(x1, y0, z1)
	c011 := vol.At(x0, y1, z1)
	c111 := vol.At(x1, y1, z1)

	c00 := c000*(1-fx) + c100*fx
	c10 := c010*(1-fx) + c110*fx
	c01 := c001*(1-fx) + c101*fx
	c11 := c011*(1-fx) + c111*fx

	c0 := c00*(1-fy) + c10*fy
	c1 := c01*(1-fy) + c11*fy

	return c0*(1-fz) + c1*fz
}

func splitCoord(c float64, extent int) (int, float64) {
	if c <= 0 {
		return 0, 0
	}
	i := int(math.Floor(c))
	if i >= extent-1 {
		return extent - 1, 0
	}
	return i, c - float64(i)
}

func clampIndex(i, extent int) int {
	if i >= extent {
		return extent - 1
	}
	return i
}
