package tracer

import (
	"context"
	"fmt"
	"math"

	"neurotrace/internal/models"
)

// RidgeTracer is the built-in reference tracer: it seeds at the brightest
// voxel and grows a breadth-first spanning tree over the connected
// foreground. It makes no attempt at medial-axis accuracy; node pushing
// downstream compensates for the crudest of its placements.
type RidgeTracer struct{}

// NewRidgeTracer returns the default tracer implementation.
func NewRidgeTracer() *RidgeTracer {
	return &RidgeTracer{}
}

// neighborhood offsets for 26-connectivity
var neighbors26 = buildNeighbors26()

func buildNeighbors26() [][3]int {
	var out [][3]int
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				out = append(out, [3]int{dx, dy, dz})
			}
		}
	}
	return out
}

// Trace implements the Tracer interface.
func (t *RidgeTracer) Trace(ctx context.Context, vol *models.Volume, threshold float64, opts Options) (*Result, error) {
	seed, found := brightestForeground(vol, threshold)
	if !found {
		if !opts.NonStop {
			return nil, fmt.Errorf("%w: no voxel above threshold %v in %dx%dx%d volume",
				ErrTraceFailed, threshold, vol.Width, vol.Height, vol.Depth)
		}
		return &Result{Tree: &models.Skeleton{Frame: models.FrameWorking}}, nil
	}

	if !opts.Silent {
		fmt.Printf("Tracing from seed (%d,%d,%d)...\n", seed[0], seed[1], seed[2])
	}

	visited := make([]bool, len(vol.Data))
	visited[vol.Index(seed[0], seed[1], seed[2])] = true

	type queued struct {
		pos    [3]int
		parent int
	}
	queue := []queued{{pos: seed, parent: models.NoParent}}

	skel := &models.Skeleton{Frame: models.FrameWorking}
	nextID := 1

	for len(queue) > 0 {
		// Cancellation check once per dequeue keeps long traces abortable
		// without paying a select per neighbour.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cur := queue[0]
		queue = queue[1:]

		node := models.Node{
			ID:     nextID,
			Type:   models.TypeUndefined,
			X:      float64(cur.pos[0]),
			Y:      float64(cur.pos[1]),
			Z:      float64(cur.pos[2]),
			Radius: t.estimateRadius(vol, threshold, cur.pos, opts),
			Parent: cur.parent,
		}
		if cur.parent == models.NoParent {
			node.Type = models.TypeSoma
		}
		skel.Nodes = append(skel.Nodes, node)

		for _, d := range neighbors26 {
			nx, ny, nz := cur.pos[0]+d[0], cur.pos[1]+d[1], cur.pos[2]+d[2]
			if !vol.InBounds(nx, ny, nz) {
				continue
			}
			idx := vol.Index(nx, ny, nz)
			if visited[idx] || !(vol.Data[idx] >= threshold) {
				continue
			}
			visited[idx] = true
			queue = append(queue, queued{pos: [3]int{nx, ny, nz}, parent: node.ID})
		}
		nextID++
	}

	if !opts.Silent {
		fmt.Printf("Traced %d nodes\n", len(skel.Nodes))
	}

	return &Result{
		Tree: skel,
		Soma: t.detectSoma(vol, threshold, seed),
	}, nil
}

// brightestForeground returns the coordinate of the brightest voxel at or
// above the threshold. NaN voxels never qualify.
func brightestForeground(vol *models.Volume, threshold float64) ([3]int, bool) {
	best := math.Inf(-1)
	var seed [3]int
	found := false
	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				v := vol.At(x, y, z)
				if v >= threshold && v > best {
					best = v
					seed = [3]int{x, y, z}
					found = true
				}
			}
		}
	}
	return seed, found
}

// estimateRadius derives a crude radius from the local foreground density.
// Quality mode scans a 5-voxel window, the default a 3-voxel one, and
// Speed mode skips the scan entirely.
func (t *RidgeTracer) estimateRadius(vol *models.Volume, threshold float64, pos [3]int, opts Options) float64 {
	if opts.Speed && !opts.Quality {
		return 1
	}
	half := 1
	if opts.Quality {
		half = 2
	}

	fg, total := 0, 0
	for dz := -half; dz <= half; dz++ {
		for dy := -half; dy <= half; dy++ {
			for dx := -half; dx <= half; dx++ {
				x, y, z := pos[0]+dx, pos[1]+dy, pos[2]+dz
				if !vol.InBounds(x, y, z) {
					continue
				}
				total++
				if vol.At(x, y, z) >= threshold {
					fg++
				}
			}
		}
	}
	if total == 0 {
		return 0.5
	}
	// Radius of the sphere with the same foreground volume as the window.
	window := float64(2*half + 1)
	r := math.Cbrt(3 * float64(fg) / float64(total) * math.Pow(window, 3) / (4 * math.Pi))
	return math.Max(0.5, r)
}

// detectSoma masks the voxels around the seed that are both foreground and
// within twice the seed radius, a rough cell-body estimate.
func (t *RidgeTracer) detectSoma(vol *models.Volume, threshold float64, seed [3]int) models.Soma {
	radius := t.estimateRadius(vol, threshold, seed, Options{Quality: true}) * 2
	mask := models.NewVolume(vol.Width, vol.Height, vol.Depth)

	count := 0
	r := int(math.Ceil(radius))
	for dz := -r; dz <= r; dz++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				x, y, z := seed[0]+dx, seed[1]+dy, seed[2]+dz
				if !vol.InBounds(x, y, z) {
					continue
				}
				dist := math.Sqrt(float64(dx*dx + dy*dy + dz*dz))
				if dist <= radius && vol.At(x, y, z) >= threshold {
					mask.Set(x, y, z, 1)
					count++
				}
			}
		}
	}

	if count == 0 {
		return models.Soma{}
	}
	return models.SomaOf(mask)
}
