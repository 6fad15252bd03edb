package swc

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"neurotrace/internal/models"
)

func sampleTree() *models.Skeleton {
	return &models.Skeleton{
		Frame: models.FrameOriginal,
		Nodes: []models.Node{
			{ID: 3, Type: models.TypeDendrite, X: 2, Y: 3, Z: 4, Radius: 0.5, Parent: 1},
			{ID: 1, Type: models.TypeSoma, X: 1, Y: 1, Z: 1, Radius: 2, Parent: models.NoParent},
			{ID: 2, Type: models.TypeDendrite, X: 1.5, Y: 2, Z: 2.5, Radius: 1, Parent: 1},
		},
	}
}

// TestEncodeLayout verifies the 7-column layout, id ordering and the
// sentinel parent representation
func TestEncodeLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleTree()); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var rows []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rows = append(rows, line)
	}

	want := []string{
		"1 1 1 1 1 2 -1",
		"2 3 1.5 2 2.5 1 1",
		"3 3 2 3 4 0.5 1",
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("unexpected rows (-want +got):\n%s", diff)
	}
}

// TestWriteReadRoundTrip verifies a persisted tree reads back identically
func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.swc")
	orig := sampleTree()

	if err := Write(path, orig); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	// Rows come back sorted by id.
	want := orig.Clone()
	want.Nodes = []models.Node{orig.Nodes[1], orig.Nodes[2], orig.Nodes[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// TestWriteLeavesNoTempFiles verifies the atomic-write path cleans up
func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.swc")

	if err := Write(path, sampleTree()); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.swc" {
		t.Errorf("unexpected directory contents: %v", entries)
	}
}

// TestWriteFailureLeavesNothing verifies no output appears when the
// destination directory does not exist
func TestWriteFailureLeavesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	if err := Write(filepath.Join(dir, "out.swc"), sampleTree()); err == nil {
		t.Fatal("expected write into a missing directory to fail")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("failed write created the destination directory")
	}
}

// TestToWorldAffineLaw verifies world = origin + index*spacing per axis,
// including negative origins
func TestToWorldAffineLaw(t *testing.T) {
	vol := models.NewVolume(2, 2, 2)
	vol.Origin = [3]float64{-10, 0.5, 100}
	vol.Spacing = [3]float64{0.25, 2, 0.5}
	vol.HasGeometry = true

	orig := sampleTree()
	world, err := ToWorld(orig, vol)
	if err != nil {
		t.Fatalf("world projection failed: %v", err)
	}

	if world.Frame != models.FrameWorld {
		t.Errorf("frame is %v, want world", world.Frame)
	}
	for i, n := range world.Nodes {
		o := orig.Nodes[i]
		wantX := vol.Origin[0] + o.X*vol.Spacing[0]
		wantY := vol.Origin[1] + o.Y*vol.Spacing[1]
		wantZ := vol.Origin[2] + o.Z*vol.Spacing[2]
		if math.Abs(n.X-wantX) > 1e-12 || math.Abs(n.Y-wantY) > 1e-12 || math.Abs(n.Z-wantZ) > 1e-12 {
			t.Errorf("node %d: got (%v,%v,%v), want (%v,%v,%v)", n.ID, n.X, n.Y, n.Z, wantX, wantY, wantZ)
		}
		if n.ID != o.ID || n.Parent != o.Parent || n.Radius != o.Radius {
			t.Errorf("node %d: world projection touched topology or radius", o.ID)
		}
	}

	// The original tree must be untouched (the map returns a new tree).
	if orig.Frame != models.FrameOriginal || orig.Nodes[1].X != 1 {
		t.Error("world projection mutated its input")
	}
}

// TestToWorldMissingGeometry verifies the MissingGeometry error kind
func TestToWorldMissingGeometry(t *testing.T) {
	vol := models.NewVolume(2, 2, 2)

	_, err := ToWorld(sampleTree(), vol)
	if !errors.Is(err, ErrMissingGeometry) {
		t.Errorf("got %v, want ErrMissingGeometry", err)
	}
}

// TestToWorldRejectsDoubleTransform verifies a world-frame tree cannot be
// projected twice
func TestToWorldRejectsDoubleTransform(t *testing.T) {
	vol := models.NewVolume(2, 2, 2)
	vol.Spacing = [3]float64{1, 1, 1}
	vol.HasGeometry = true

	world, err := ToWorld(sampleTree(), vol)
	if err != nil {
		t.Fatalf("first projection failed: %v", err)
	}
	if _, err := ToWorld(world, vol); err == nil {
		t.Error("expected second projection to be rejected")
	}
}

// TestDecodeRejectsShortRows verifies column-count validation
func TestDecodeRejectsShortRows(t *testing.T) {
	_, err := Decode(strings.NewReader("1 1 0 0 0 1\n"))
	if err == nil {
		t.Error("expected error for a 6-column row")
	}
}
