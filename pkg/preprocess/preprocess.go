// Package preprocess derives the working volume the tracer consumes: it
// crops the input to its foreground bounding box and optionally resamples
// it, recording the transform so the restorer can undo both steps exactly.
package preprocess

import (
	"errors"
	"fmt"
	"math"

	"neurotrace/internal/models"
	"neurotrace/pkg/interpolation"
)

var (
	// ErrInvalidThreshold indicates that no finite foreground threshold
	// could be derived from the volume (for example an all-NaN input).
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrInvalidZoomFactor indicates a non-positive or non-finite zoom factor.
	ErrInvalidZoomFactor = errors.New("invalid zoom factor")
)

// Preprocess crops vol to the minimal bounding box of voxels brighter than
// threshold and resamples the result by the per-axis zoom factors. It
// returns the working volume and the immutable transform needed to map
// traced coordinates back into vol's frame. The input volume is never
// mutated.
//
// When no voxel exceeds the threshold the crop falls open to the full
// volume rather than producing empty downstream input.
func Preprocess(vol *models.Volume, threshold float64, zoom [3]float64) (*models.Volume, models.Transform, error) {
	for axis, f := range zoom {
		if !(f > 0) || math.IsInf(f, 0) {
			return nil, models.Transform{}, fmt.Errorf("%w: axis %d factor %v", ErrInvalidZoomFactor, axis, f)
		}
	}
	if math.IsNaN(threshold) {
		return nil, models.Transform{}, fmt.Errorf("%w: threshold is NaN", ErrInvalidThreshold)
	}

	region := BoundingBox(vol, threshold)
	working := Crop(vol, region)

	if !models.IsIdentityZoom(zoom) {
		resampled, err := interpolation.Resample(working, zoom)
		if err != nil {
			return nil, models.Transform{}, fmt.Errorf("%w: %v", ErrInvalidZoomFactor, err)
		}
		working = resampled
	}

	return working, models.Transform{Crop: region, Zoom: zoom}, nil
}

// EffectiveThreshold resolves the user-supplied threshold: non-negative
// values pass through unchanged, negative values request a data-driven
// threshold computed with Otsu's method.
func EffectiveThreshold(vol *models.Volume, threshold float64) (float64, error) {
	if math.IsNaN(threshold) {
		return 0, fmt.Errorf("%w: threshold is NaN", ErrInvalidThreshold)
	}
	if threshold >= 0 {
		return threshold, nil
	}
	return OtsuThreshold(vol)
}

// BoundingBox returns the minimal axis-aligned region containing every
// voxel with intensity strictly above threshold. NaN voxels never compare
// above the threshold and so never extend the box. An empty foreground
// yields the full volume.
func BoundingBox(vol *models.Volume, threshold float64) models.CropRegion {
	min := [3]int{vol.Width, vol.Height, vol.Depth}
	max := [3]int{-1, -1, -1}

	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				if vol.At(x, y, z) > threshold {
					if x < min[0] {
						min[0] = x
					}
					if y < min[1] {
						min[1] = y
					}
					if z < min[2] {
						min[2] = z
					}
					if x > max[0] {
						max[0] = x
					}
					if y > max[1] {
						max[1] = y
					}
					if z > max[2] {
						max[2] = z
					}
				}
			}
		}
	}

	if max[0] < 0 {
		return models.FullRegion(vol.Shape())
	}

	return models.CropRegion{
		Start: min,
		Stop:  [3]int{max[0] + 1, max[1] + 1, max[2] + 1},
	}
}

// Crop slices the volume to the given region, copying the voxel data into
// a new volume. Geometry metadata carries over untouched: origin and
// spacing describe the original frame and restoration happens before any
// physical-space projection.
func Crop(vol *models.Volume, region models.CropRegion) *models.Volume {
	extent := region.Extent()
	out := models.NewVolume(extent[0], extent[1], extent[2])
	out.Origin = vol.Origin
	out.Spacing = vol.Spacing
	out.HasGeometry = vol.HasGeometry

	for z := 0; z < extent[2]; z++ {
		for y := 0; y < extent[1]; y++ {
			for x := 0; x < extent[0]; x++ {
				out.Set(x, y, z, vol.At(region.Start[0]+x, region.Start[1]+y, region.Start[2]+z))
			}
		}
	}
	return out
}

// OtsuThreshold computes a threshold separating foreground from background
// by maximizing the between-class variance over a 256-bin histogram.
// NaN voxels are ignored; a volume with no finite voxel fails with
// ErrInvalidThreshold.
func OtsuThreshold(vol *models.Volume) (float64, error) {
	lo, hi := math.Inf(1), math.Inf(-1)
	finite := 0
	for _, v := range vol.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		finite++
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if finite == 0 {
		return 0, fmt.Errorf("%w: volume has no finite voxels", ErrInvalidThreshold)
	}
	if hi <= lo {
		// Flat volume: any threshold at the single value works.
		return lo, nil
	}

	const numBins = 256
	hist := make([]float64, numBins)
	binWidth := (hi - lo) / numBins
	for _, v := range vol.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		bin := int((v - lo) / binWidth)
		if bin >= numBins {
			bin = numBins - 1
		}
		hist[bin]++
	}

	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i) * c
	}

	total := float64(finite)
	var sumBg, weightBg, bestVar float64
	bestBin := 0
	for i, c := range hist {
		weightBg += c
		if weightBg == 0 {
			continue
		}
		weightFg := total - weightBg
		if weightFg == 0 {
			break
		}
		sumBg += float64(i) * c

		meanBg := sumBg / weightBg
		meanFg := (sumAll - sumBg) / weightFg
		diff := meanBg - meanFg
		betweenVar := weightBg * weightFg * diff * diff
		if betweenVar > bestVar {
			bestVar = betweenVar
			bestBin = i
		}
	}

	return lo + (float64(bestBin)+0.5)*binWidth, nil
}
