// Package refine post-processes raw traced skeletons: fragment removal and
// boundary-aware node pushing.
package refine

import (
	"errors"
	"fmt"
	"math"

	"neurotrace/internal/models"
)

// ErrMalformedTree indicates a skeleton violating its structural
// invariants (duplicate ids, dangling parent references, cycles). Such
// trees are rejected at the stage boundary, never silently repaired.
var ErrMalformedTree = errors.New("malformed tree")

// Clean removes connected components that are not part of the primary
// structure. Disconnected fragments are typically tracing artifacts. The
// primary component is the one with the most nodes; ties break toward the
// component whose root has the lowest id, so the choice is deterministic
// and repeated cleaning is a no-op.
func Clean(s *models.Skeleton) (*models.Skeleton, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTree, err)
	}
	if len(s.Nodes) == 0 {
		return s.Clone(), nil
	}

	idx := s.IndexByID()

	// Root id of the component each node belongs to.
	rootOf := make(map[int]int, len(s.Nodes))
	var findRoot func(id int) int
	findRoot = func(id int) int {
		if r, ok := rootOf[id]; ok {
			return r
		}
		n := s.Nodes[idx[id]]
		r := id
		if n.Parent != models.NoParent {
			r = findRoot(n.Parent)
		}
		rootOf[id] = r
		return r
	}

	sizes := make(map[int]int)
	for _, n := range s.Nodes {
		sizes[findRoot(n.ID)]++
	}

	primary := -1
	for root, size := range sizes {
		if primary == -1 || size > sizes[primary] || (size == sizes[primary] && root < primary) {
			primary = root
		}
	}

	out := &models.Skeleton{Frame: s.Frame}
	for _, n := range s.Nodes {
		if rootOf[n.ID] == primary {
			out.Nodes = append(out.Nodes, n)
		}
	}
	return out, nil
}

// PushNodes iteratively moves each node toward the centroid of the
// foreground mask voxels in its 3x3x3 neighbourhood, for the given number
// of rounds. Node ids, parent links and radii are untouched; only
// coordinates move, and never outside the mask volume's bounds. Zero
// iterations is a no-op.
func PushNodes(s *models.Skeleton, mask *models.Volume, iterations int) (*models.Skeleton, error) {
	if iterations < 0 {
		return nil, fmt.Errorf("push iterations must be non-negative, got %d", iterations)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTree, err)
	}

	out := s.Clone()
	for round := 0; round < iterations; round++ {
		for i := range out.Nodes {
			n := &out.Nodes[i]
			n.X, n.Y, n.Z = pushToward(mask, n.X, n.Y, n.Z)
		}
	}
	return out, nil
}

// pushToward returns the centroid of foreground voxels in the 3x3x3 window
// around the coordinate, clamped to the volume bounds. A window with no
// foreground leaves the coordinate unchanged.
func pushToward(mask *models.Volume, x, y, z float64) (float64, float64, float64) {
	cx := int(math.Round(x))
	cy := int(math.Round(y))
	cz := int(math.Round(z))

	var sx, sy, sz float64
	count := 0
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				vx, vy, vz := cx+dx, cy+dy, cz+dz
				if !mask.InBounds(vx, vy, vz) {
					continue
				}
				if mask.At(vx, vy, vz) > 0 {
					sx += float64(vx)
					sy += float64(vy)
					sz += float64(vz)
					count++
				}
			}
		}
	}
	if count == 0 {
		return clamp(x, mask.Width), clamp(y, mask.Height), clamp(z, mask.Depth)
	}

	n := float64(count)
	return clamp(sx/n, mask.Width), clamp(sy/n, mask.Height), clamp(sz/n, mask.Depth)
}

func clamp(c float64, extent int) float64 {
	return math.Min(math.Max(c, 0), float64(extent-1))
}
