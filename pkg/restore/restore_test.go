package restore

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"neurotrace/internal/models"
)

// forward applies the preprocessor's coordinate transform (crop then zoom)
// to a tree in the original frame, producing working-frame coordinates
func forward(s *models.Skeleton, t models.Transform) *models.Skeleton {
	out := s.Clone()
	for i := range out.Nodes {
		n := &out.Nodes[i]
		n.X = (n.X - float64(t.Crop.Start[0])) * t.Zoom[0]
		n.Y = (n.Y - float64(t.Crop.Start[1])) * t.Zoom[1]
		n.Z = (n.Z - float64(t.Crop.Start[2])) * t.Zoom[2]
	}
	out.Frame = models.FrameWorking
	return out
}

func sampleTree() *models.Skeleton {
	return &models.Skeleton{
		Frame: models.FrameOriginal,
		Nodes: []models.Node{
			{ID: 1, X: 4, Y: 5, Z: 6, Radius: 2, Parent: models.NoParent},
			{ID: 2, X: 7.25, Y: 5.5, Z: 6.75, Radius: 1, Parent: 1},
			{ID: 3, X: 9, Y: 8, Z: 7, Radius: 0.5, Parent: 2},
		},
	}
}

// TestRoundTrip verifies restore(forward(S)) reproduces S within
// floating-point tolerance, with and without zoom
func TestRoundTrip(t *testing.T) {
	shape := [3]int{20, 20, 20}
	transforms := []models.Transform{
		{Crop: models.CropRegion{Start: [3]int{2, 3, 4}, Stop: [3]int{12, 13, 14}}, Zoom: models.IdentityZoom},
		{Crop: models.CropRegion{Start: [3]int{2, 3, 4}, Stop: [3]int{12, 13, 14}}, Zoom: models.UniformZoom(2)},
		{Crop: models.CropRegion{Start: [3]int{1, 0, 3}, Stop: [3]int{15, 11, 9}}, Zoom: [3]float64{0.5, 2, 3}},
	}

	for _, tf := range transforms {
		orig := sampleTree()
		restored, err := Skeleton(forward(orig, tf), tf, shape)
		if err != nil {
			t.Fatalf("transform %+v: restore failed: %v", tf, err)
		}

		if restored.Frame != models.FrameOriginal {
			t.Errorf("transform %+v: frame is %v, want original", tf, restored.Frame)
		}
		if diff := cmp.Diff(orig, restored, cmpopts.EquateApprox(1e-6, 1e-9)); diff != "" {
			t.Errorf("transform %+v: round trip mismatch (-want +got):\n%s", tf, diff)
		}
	}
}

// TestCropZoomComposition verifies the composition scenario: crop start
// (2,2,2) and zoom 2.0 map working (4,4,4) back to original (4,4,4)
func TestCropZoomComposition(t *testing.T) {
	tf := models.Transform{
		Crop: models.CropRegion{Start: [3]int{2, 2, 2}, Stop: [3]int{10, 10, 10}},
		Zoom: models.UniformZoom(2),
	}
	s := &models.Skeleton{
		Frame: models.FrameWorking,
		Nodes: []models.Node{{ID: 1, X: 4, Y: 4, Z: 4, Parent: models.NoParent}},
	}

	restored, err := Skeleton(s, tf, [3]int{12, 12, 12})
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	n := restored.Nodes[0]
	if n.X != 4 || n.Y != 4 || n.Z != 4 {
		t.Errorf("got (%v,%v,%v), want (4,4,4)", n.X, n.Y, n.Z)
	}
}

// TestRestoreRejectsWrongFrame verifies an already-restored tree is rejected
func TestRestoreRejectsWrongFrame(t *testing.T) {
	s := sampleTree() // FrameOriginal
	tf := models.Transform{Crop: models.FullRegion([3]int{20, 20, 20}), Zoom: models.IdentityZoom}

	if _, err := Skeleton(s, tf, [3]int{20, 20, 20}); err == nil {
		t.Error("expected error restoring a tree already in the original frame")
	}
}

// TestRestoreSomaPads verifies the mask is padded to the original shape at
// the crop offset without clipping
func TestRestoreSomaPads(t *testing.T) {
	mask := models.NewVolume(3, 3, 3)
	mask.Set(0, 0, 0, 1)
	mask.Set(2, 2, 2, 1)

	tf := models.Transform{
		Crop: models.CropRegion{Start: [3]int{4, 5, 6}, Stop: [3]int{7, 8, 9}},
		Zoom: models.IdentityZoom,
	}

	restored, err := Soma(models.SomaOf(mask), tf, [3]int{10, 10, 10})
	if err != nil {
		t.Fatalf("soma restore failed: %v", err)
	}
	if !restored.Valid {
		t.Fatal("restored soma lost its mask")
	}

	out := restored.Mask
	if out.Shape() != [3]int{10, 10, 10} {
		t.Fatalf("unexpected restored shape %v", out.Shape())
	}
	if out.At(4, 5, 6) != 1 || out.At(6, 7, 8) != 1 {
		t.Error("mask content not placed at the crop offset")
	}

	total := 0.0
	for _, v := range out.Data {
		total += v
	}
	if total != 2 {
		t.Errorf("expected exactly 2 foreground voxels, got %v", total)
	}
}

// TestRestoreSomaUndoesZoom verifies a zoomed mask is brought back to the
// crop extent before padding
func TestRestoreSomaUndoesZoom(t *testing.T) {
	// Working mask at 2x zoom of a 3-voxel crop extent.
	mask := models.NewVolume(6, 6, 6)
	for z := 0; z < 6; z++ {
		for y := 0; y < 6; y++ {
			for x := 0; x < 6; x++ {
				mask.Set(x, y, z, 1)
			}
		}
	}

	tf := models.Transform{
		Crop: models.CropRegion{Start: [3]int{1, 1, 1}, Stop: [3]int{4, 4, 4}},
		Zoom: models.UniformZoom(2),
	}

	restored, err := Soma(models.SomaOf(mask), tf, [3]int{6, 6, 6})
	if err != nil {
		t.Fatalf("soma restore failed: %v", err)
	}

	out := restored.Mask
	for z := 0; z < 6; z++ {
		for y := 0; y < 6; y++ {
			for x := 0; x < 6; x++ {
				inCrop := x >= 1 && x < 4 && y >= 1 && y < 4 && z >= 1 && z < 4
				want := 0.0
				if inCrop {
					want = 1
				}
				if out.At(x, y, z) != want {
					t.Fatalf("voxel (%d,%d,%d): got %v, want %v", x, y, z, out.At(x, y, z), want)
				}
			}
		}
	}
}

// TestRestoreSomaAbsent verifies an absent soma passes through
func TestRestoreSomaAbsent(t *testing.T) {
	out, err := Soma(models.Soma{}, models.Transform{Zoom: models.IdentityZoom}, [3]int{4, 4, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Valid {
		t.Error("absent soma became present")
	}
}
