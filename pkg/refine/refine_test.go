package refine

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"neurotrace/internal/models"
)

// fragmented builds a two-component forest: a 3-node main branch and a
// detached 1-node fragment
func fragmented() *models.Skeleton {
	return &models.Skeleton{Nodes: []models.Node{
		{ID: 1, X: 0, Y: 0, Z: 0, Radius: 1, Parent: models.NoParent},
		{ID: 2, X: 1, Y: 0, Z: 0, Radius: 1, Parent: 1},
		{ID: 3, X: 2, Y: 0, Z: 0, Radius: 1, Parent: 2},
		{ID: 9, X: 7, Y: 7, Z: 7, Radius: 1, Parent: models.NoParent},
	}}
}

// TestCleanDropsFragments verifies disconnected fragments are removed
func TestCleanDropsFragments(t *testing.T) {
	cleaned, err := Clean(fragmented())
	if err != nil {
		t.Fatalf("clean failed: %v", err)
	}

	if len(cleaned.Nodes) != 3 {
		t.Fatalf("expected 3 nodes after cleaning, got %d", len(cleaned.Nodes))
	}
	for _, n := range cleaned.Nodes {
		if n.ID == 9 {
			t.Error("fragment node 9 survived cleaning")
		}
	}
}

// TestCleanIdempotent verifies refine(refine(S)) == refine(S)
func TestCleanIdempotent(t *testing.T) {
	once, err := Clean(fragmented())
	if err != nil {
		t.Fatalf("first clean failed: %v", err)
	}
	twice, err := Clean(once)
	if err != nil {
		t.Fatalf("second clean failed: %v", err)
	}

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("cleaning is not idempotent (-once +twice):\n%s", diff)
	}
}

// TestCleanRejectsMalformed verifies a dangling parent id fails with
// ErrMalformedTree instead of being silently dropped
func TestCleanRejectsMalformed(t *testing.T) {
	bad := &models.Skeleton{Nodes: []models.Node{
		{ID: 1, Parent: models.NoParent},
		{ID: 2, Parent: 42},
	}}

	_, err := Clean(bad)
	if !errors.Is(err, ErrMalformedTree) {
		t.Errorf("got %v, want ErrMalformedTree", err)
	}
}

// TestPushNodesInvariants verifies ids, parents and radii survive pushing
// and coordinates stay inside the mask bounds
func TestPushNodesInvariants(t *testing.T) {
	mask := models.NewVolume(10, 10, 10)
	for x := 2; x <= 7; x++ {
		mask.Set(x, 5, 5, 1)
	}

	s := &models.Skeleton{Nodes: []models.Node{
		{ID: 1, X: 2, Y: 4, Z: 4, Radius: 1.5, Parent: models.NoParent},
		{ID: 2, X: 9.4, Y: 9.9, Z: 9.7, Radius: 0.5, Parent: 1},
	}}

	for _, iters := range []int{0, 1, 5} {
		pushed, err := PushNodes(s, mask, iters)
		if err != nil {
			t.Fatalf("push with %d iterations failed: %v", iters, err)
		}

		for i, n := range pushed.Nodes {
			orig := s.Nodes[i]
			if n.ID != orig.ID || n.Parent != orig.Parent || n.Radius != orig.Radius || n.Type != orig.Type {
				t.Errorf("iters=%d: pushing changed non-coordinate fields of node %d", iters, orig.ID)
			}
			if n.X < 0 || n.X > 9 || n.Y < 0 || n.Y > 9 || n.Z < 0 || n.Z > 9 {
				t.Errorf("iters=%d: node %d escaped the volume: (%v,%v,%v)", iters, n.ID, n.X, n.Y, n.Z)
			}
		}
	}
}

// TestPushNodesZeroIterations verifies n=0 leaves coordinates untouched
func TestPushNodesZeroIterations(t *testing.T) {
	mask := models.NewVolume(4, 4, 4)
	mask.Set(1, 1, 1, 1)

	s := &models.Skeleton{Nodes: []models.Node{
		{ID: 1, X: 3, Y: 3, Z: 3, Parent: models.NoParent},
	}}

	pushed, err := PushNodes(s, mask, 0)
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if diff := cmp.Diff(s, pushed); diff != "" {
		t.Errorf("zero iterations changed the tree:\n%s", diff)
	}
}

// TestPushNodesMovesTowardCenter verifies a node adjacent to the mask moves
// toward the mask's local center
func TestPushNodesMovesTowardCenter(t *testing.T) {
	mask := models.NewVolume(10, 10, 10)
	for x := 0; x < 10; x++ {
		mask.Set(x, 5, 5, 1)
	}

	s := &models.Skeleton{Nodes: []models.Node{
		{ID: 1, X: 4, Y: 4, Z: 5, Parent: models.NoParent},
	}}

	pushed, err := PushNodes(s, mask, 3)
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}

	n := pushed.Nodes[0]
	if n.Y != 5 || n.Z != 5 {
		t.Errorf("node did not converge to the line center, got (%v,%v,%v)", n.X, n.Y, n.Z)
	}
}

// TestPushNodesRejectsMalformed verifies invariant checking before pushing
func TestPushNodesRejectsMalformed(t *testing.T) {
	mask := models.NewVolume(2, 2, 2)
	bad := &models.Skeleton{Nodes: []models.Node{{ID: 1, Parent: 7}}}

	_, err := PushNodes(bad, mask, 1)
	if !errors.Is(err, ErrMalformedTree) {
		t.Errorf("got %v, want ErrMalformedTree", err)
	}
}
