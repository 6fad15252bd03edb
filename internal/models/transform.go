package models

// CropRegion is an axis-aligned bounding box into the original volume,
// expressed as per-axis half-open [Start, Stop) voxel index ranges in
// (x, y, z) order.
type CropRegion struct {
	Start [3]int
	Stop  [3]int
}

// FullRegion returns the crop region covering the whole of a volume with
// the given shape. Used as the fail-open fallback when no voxel exceeds
// the foreground threshold.
func FullRegion(shape [3]int) CropRegion {
	return CropRegion{Stop: shape}
}

// Extent returns the per-axis size of the region.
func (c CropRegion) Extent() [3]int {
	return [3]int{
		c.Stop[0] - c.Start[0],
		c.Stop[1] - c.Start[1],
		c.Stop[2] - c.Start[2],
	}
}

// Transform records the forward geometric transform applied to a volume
// before tracing: crop first, then per-axis zoom. It is passed by value
// between pipeline stages; stages never mutate it.
type Transform struct {
	// Crop is the bounding box sliced out of the original volume
	Crop CropRegion

	// Zoom is the per-axis resampling factor applied after cropping,
	// in (x, y, z) order. {1, 1, 1} means no resampling was performed.
	Zoom [3]float64
}

// IdentityZoom is the zoom vector meaning "no resampling".
var IdentityZoom = [3]float64{1, 1, 1}

// UniformZoom expands a scalar factor to a per-axis zoom vector.
func UniformZoom(factor float64) [3]float64 {
	return [3]float64{factor, factor, factor}
}

// IsIdentityZoom reports whether the zoom vector performs no resampling.
func IsIdentityZoom(zoom [3]float64) bool {
	return zoom == IdentityZoom
}
