// Package models holds the core data types shared by the reconstruction
// pipeline: volumes, crop/zoom transforms, skeleton trees and soma masks.
package models

// Volume represents a 3D volumetric image as a 1D array in row-major order,
// with x varying fastest: index = z*Width*Height + y*Width + x.
type Volume struct {
	// Data is the voxel intensity data as a flat array
	Data []float64

	// Width, Height, Depth are the volume dimensions in voxels (x, y, z)
	Width, Height, Depth int

	// Origin is the physical coordinate of voxel (0,0,0), in the same
	// axis order (x, y, z) as the array axes
	Origin [3]float64

	// Spacing is the physical size of one voxel along each axis
	Spacing [3]float64

	// HasGeometry reports whether Origin and Spacing were provided by the
	// source image container. Physical-space export requires it.
	HasGeometry bool
}

// NewVolume allocates a zero-filled volume with the given dimensions.
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// Index returns the flat array index for voxel (x, y, z).
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the intensity of voxel (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores an intensity at voxel (x, y, z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// InBounds reports whether the integer voxel index lies inside the volume.
func (v *Volume) InBounds(x, y, z int) bool {
	return x >= 0 && x < v.Width && y >= 0 && y < v.Height && z >= 0 && z < v.Depth
}

// Shape returns the per-axis extents (x, y, z).
func (v *Volume) Shape() [3]int {
	return [3]int{v.Width, v.Height, v.Depth}
}

// Clone returns a deep copy of the volume, geometry metadata included.
func (v *Volume) Clone() *Volume {
	out := *v
	out.Data = make([]float64, len(v.Data))
	copy(out.Data, v.Data)
	return &out
}

// Soma is an optional soma mask. The zero value means "absent": the tracer
// either was not asked for a soma or failed to detect one. Callers must
// check Valid before touching Mask.
type Soma struct {
	Mask  *Volume
	Valid bool
}

// SomaOf wraps a detected soma mask.
func SomaOf(mask *Volume) Soma {
	return Soma{Mask: mask, Valid: mask != nil}
}
