// Package swc reads and writes neuron skeletons in the SWC text format and
// projects restored trees into physical (world) coordinates.
//
// The format is whitespace-delimited, one row per node, in the canonical
// 7-column layout: id type x y z radius parent, with parent -1 for roots.
// Lines starting with '#' are comments.
package swc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"neurotrace/internal/models"
)

// ErrMissingGeometry indicates that world-space export was requested but
// the source image carried no origin/spacing metadata.
var ErrMissingGeometry = errors.New("missing geometry")

// Encode writes the skeleton as SWC rows ordered by ascending node id,
// preceded by a comment header.
func Encode(w io.Writer, s *models.Skeleton) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "# generated by neurotrace")
	fmt.Fprintf(bw, "# coordinate frame: %v\n", s.Frame)
	fmt.Fprintln(bw, "# id type x y z radius parent")

	rows := make([]models.Node, len(s.Nodes))
	copy(rows, s.Nodes)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	for _, n := range rows {
		if _, err := fmt.Fprintf(bw, "%d %d %g %g %g %g %d\n",
			n.ID, n.Type, n.X, n.Y, n.Z, n.Radius, n.Parent); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Write persists the skeleton to path atomically: the rows are written to
// a temporary file in the same directory and moved into place only once
// the encode succeeded, so a failed run never leaves a partial tree file.
func Write(path string, s *models.Skeleton) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".swc-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary tree file: %w", err)
	}

	if err := Encode(tmp, s); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write tree file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close tree file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move tree file into place: %w", err)
	}
	return nil
}

// Read parses an SWC file. Comment and blank lines are skipped. The
// returned tree is tagged with the original-volume frame, which is what a
// persisted reconstruction is expressed in unless its header says
// otherwise.
func Read(path string) (*models.Skeleton, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tree file: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses SWC rows from a reader.
func Decode(r io.Reader) (*models.Skeleton, error) {
	s := &models.Skeleton{Frame: models.FrameOriginal}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 7 {
			return nil, fmt.Errorf("line %d: expected 7 columns, got %d", lineNo, len(fields))
		}

		var n models.Node
		var errs [7]error
		n.ID, errs[0] = strconv.Atoi(fields[0])
		n.Type, errs[1] = strconv.Atoi(fields[1])
		n.X, errs[2] = strconv.ParseFloat(fields[2], 64)
		n.Y, errs[3] = strconv.ParseFloat(fields[3], 64)
		n.Z, errs[4] = strconv.ParseFloat(fields[4], 64)
		n.Radius, errs[5] = strconv.ParseFloat(fields[5], 64)
		n.Parent, errs[6] = strconv.Atoi(fields[6])
		for _, e := range errs {
			if e != nil {
				return nil, fmt.Errorf("line %d: %v", lineNo, e)
			}
		}

		s.Nodes = append(s.Nodes, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tree file: %w", err)
	}
	return s, nil
}

// ToWorld projects every node coordinate into physical space with the pure
// affine map world = origin + index*spacing, applied per axis. The map is
// independent of tree topology and is applied to the whole tree
// atomically. It is deliberately not idempotent, so a tree already tagged
// as world-frame is rejected rather than double-transformed.
func ToWorld(s *models.Skeleton, vol *models.Volume) (*models.Skeleton, error) {
	if !vol.HasGeometry {
		return nil, fmt.Errorf("%w: source image has no origin/spacing", ErrMissingGeometry)
	}
	if s.Frame == models.FrameWorld {
		return nil, fmt.Errorf("tree is already in world coordinates")
	}

	out := s.Clone()
	for i := range out.Nodes {
		n := &out.Nodes[i]
		n.X = vol.Origin[0] + n.X*vol.Spacing[0]
		n.Y = vol.Origin[1] + n.Y*vol.Spacing[1]
		n.Z = vol.Origin[2] + n.Z*vol.Spacing[2]
	}
	out.Frame = models.FrameWorld
	return out, nil
}
