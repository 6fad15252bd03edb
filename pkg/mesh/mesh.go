// Package mesh converts skeleton trees into a renderable polyline mesh and
// writes it in the legacy VTK PolyData format, one line segment per
// parent/child edge.
package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"neurotrace/internal/models"
)

// PolylineMesh is a point cloud plus line-segment connectivity. Each
// segment carries the child node's radius for rendering thickness.
type PolylineMesh struct {
	// Points holds one vertex per skeleton node, ordered by node id
	Points [][3]float32

	// Lines are index pairs into Points, one per parent/child edge
	Lines [][2]int32

	// Radii holds the per-segment rendering radius (the child's radius)
	Radii []float32
}

// FromSkeleton builds the polyline mesh for a tree: one point per node and
// one segment per non-root node connecting it to its parent.
func FromSkeleton(s *models.Skeleton) (*PolylineMesh, error) {
	nodes := make([]models.Node, len(s.Nodes))
	copy(nodes, s.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	index := make(map[int]int32, len(nodes))
	m := &PolylineMesh{Points: make([][3]float32, len(nodes))}
	for i, n := range nodes {
		index[n.ID] = int32(i)
		m.Points[i] = [3]float32{float32(n.X), float32(n.Y), float32(n.Z)}
	}

	for i, n := range nodes {
		if n.Parent == models.NoParent {
			continue
		}
		p, ok := index[n.Parent]
		if !ok {
			return nil, fmt.Errorf("node %d references missing parent %d", n.ID, n.Parent)
		}
		m.Lines = append(m.Lines, [2]int32{p, int32(i)})
		m.Radii = append(m.Radii, float32(n.Radius))
	}
	return m, nil
}

// Encode writes the mesh as legacy ASCII VTK PolyData with the segment
// radii attached as cell scalars.
func (m *PolylineMesh) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "# vtk DataFile Version 3.0")
	fmt.Fprintln(bw, "neurotrace skeleton polylines")
	fmt.Fprintln(bw, "ASCII")
	fmt.Fprintln(bw, "DATASET POLYDATA")

	fmt.Fprintf(bw, "POINTS %d float\n", len(m.Points))
	for _, p := range m.Points {
		fmt.Fprintf(bw, "%g %g %g\n", p[0], p[1], p[2])
	}

	fmt.Fprintf(bw, "LINES %d %d\n", len(m.Lines), 3*len(m.Lines))
	for _, l := range m.Lines {
		fmt.Fprintf(bw, "2 %d %d\n", l[0], l[1])
	}

	if len(m.Radii) > 0 {
		fmt.Fprintf(bw, "CELL_DATA %d\n", len(m.Radii))
		fmt.Fprintln(bw, "SCALARS radius float 1")
		fmt.Fprintln(bw, "LOOKUP_TABLE default")
		for _, r := range m.Radii {
			fmt.Fprintf(bw, "%g\n", r)
		}
	}

	return bw.Flush()
}

// Save writes the mesh to path atomically (temp file + rename), matching
// the no-partial-output policy of the tree writer.
func Save(path string, m *PolylineMesh) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".vtk-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary mesh file: %w", err)
	}

	if err := m.Encode(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write mesh file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close mesh file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move mesh file into place: %w", err)
	}
	return nil
}
