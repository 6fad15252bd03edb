// Package restore maps traced skeletons and soma masks from the working
// (cropped and zoomed) frame back into the original volume's index space,
// applying the exact algebraic inverse of the preprocessor's transform.
package restore

import (
	"fmt"

	"neurotrace/internal/models"
	"neurotrace/pkg/interpolation"
)

// Skeleton undoes the forward transform on every node coordinate: divide
// by the zoom factor first, then translate by the crop offset. The order
// mirrors inverse composition (zoom was applied after crop, so it is
// undone first). The whole tree converts atomically: either every node is
// restored and the frame tag flips to FrameOriginal, or an error is
// returned and the input is untouched.
//
// originalShape is used only for a plausibility check; coordinates outside
// it are logged, never clamped or truncated, since they indicate an
// upstream bug that should stay visible.
func Skeleton(s *models.Skeleton, t models.Transform, originalShape [3]int) (*models.Skeleton, error) {
	if s.Frame != models.FrameWorking {
		return nil, fmt.Errorf("restore: tree is in %v frame, want working", s.Frame)
	}
	for axis, f := range t.Zoom {
		if !(f > 0) {
			return nil, fmt.Errorf("restore: transform zoom on axis %d is %v", axis, f)
		}
	}

	out := s.Clone()
	for i := range out.Nodes {
		n := &out.Nodes[i]
		n.X = n.X/t.Zoom[0] + float64(t.Crop.Start[0])
		n.Y = n.Y/t.Zoom[1] + float64(t.Crop.Start[1])
		n.Z = n.Z/t.Zoom[2] + float64(t.Crop.Start[2])

		if n.X < 0 || n.X > float64(originalShape[0]-1) ||
			n.Y < 0 || n.Y > float64(originalShape[1]-1) ||
			n.Z < 0 || n.Z > float64(originalShape[2]-1) {
			fmt.Printf("Warning: node %d restored outside volume bounds: (%v,%v,%v)\n", n.ID, n.X, n.Y, n.Z)
		}
	}
	out.Frame = models.FrameOriginal
	return out, nil
}

// Soma pads the (possibly resampled) soma mask back to the original volume
// shape: the mask is first brought back to the crop-region extent with
// nearest-neighbour resampling, then placed at the crop offset with zeros
// everywhere else. Content inside the crop region is never clipped. An
// absent soma passes through unchanged.
func Soma(soma models.Soma, t models.Transform, originalShape [3]int) (models.Soma, error) {
	if !soma.Valid {
		return soma, nil
	}

	mask := soma.Mask
	extent := t.Crop.Extent()
	if mask.Shape() != extent {
		resampled, err := interpolation.ResampleNearestTo(mask, extent[0], extent[1], extent[2])
		if err != nil {
			return models.Soma{}, fmt.Errorf("restore soma: %v", err)
		}
		mask = resampled
	}

	out := models.NewVolume(originalShape[0], originalShape[1], originalShape[2])
	for z := 0; z < extent[2]; z++ {
		for y := 0; y < extent[1]; y++ {
			for x := 0; x < extent[0]; x++ {
				v := mask.At(x, y, z)
				if v == 0 {
					continue
				}
				ox, oy, oz := t.Crop.Start[0]+x, t.Crop.Start[1]+y, t.Crop.Start[2]+z
				if !out.InBounds(ox, oy, oz) {
					return models.Soma{}, fmt.Errorf("restore soma: crop region %+v exceeds original shape %v", t.Crop, originalShape)
				}
				out.Set(ox, oy, oz, v)
			}
		}
	}
	return models.SomaOf(out), nil
}
