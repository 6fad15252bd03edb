package models

import "fmt"

// NoParent is the sentinel parent id marking a root node.
const NoParent = -1

// Standard SWC structure type tags.
const (
	TypeUndefined = 0
	TypeSoma      = 1
	TypeAxon      = 2
	TypeDendrite  = 3
)

// Frame identifies the coordinate frame a whole skeleton is currently
// expressed in. The frame is a property of the tree, not of individual
// nodes; every transform stage converts all nodes atomically and updates
// the tag, so a tree can never be half-transformed.
type Frame int

const (
	// FrameWorking is the cropped and zoomed frame the tracer operates in.
	FrameWorking Frame = iota

	// FrameOriginal is the untouched input volume's voxel index frame.
	FrameOriginal

	// FrameWorld is the physical frame derived from origin and spacing.
	FrameWorld
)

func (f Frame) String() string {
	switch f {
	case FrameWorking:
		return "working"
	case FrameOriginal:
		return "original"
	case FrameWorld:
		return "world"
	}
	return fmt.Sprintf("Frame(%d)", int(f))
}

// Node is a single skeleton point in the SWC sense.
type Node struct {
	// ID is the unique node identifier
	ID int

	// Type is the SWC structure tag (soma, axon, dendrite, ...)
	Type int

	// X, Y, Z is the node position in the skeleton's current frame
	X, Y, Z float64

	// Radius is the local radius estimate
	Radius float64

	// Parent is the id of the parent node, or NoParent for roots
	Parent int
}

// Skeleton is an ordered collection of nodes forming a forest via parent
// links, together with the frame the coordinates are expressed in.
type Skeleton struct {
	Nodes []Node
	Frame Frame
}

// Clone returns a deep copy of the skeleton.
func (s *Skeleton) Clone() *Skeleton {
	out := &Skeleton{
		Nodes: make([]Node, len(s.Nodes)),
		Frame: s.Frame,
	}
	copy(out.Nodes, s.Nodes)
	return out
}

// IndexByID returns a map from node id to position in Nodes.
func (s *Skeleton) IndexByID() map[int]int {
	idx := make(map[int]int, len(s.Nodes))
	for i, n := range s.Nodes {
		idx[n.ID] = i
	}
	return idx
}

// Validate checks the structural invariants: ids are unique, every
// non-sentinel parent references an existing node, and the parent links
// contain no cycle.
func (s *Skeleton) Validate() error {
	idx := make(map[int]int, len(s.Nodes))
	for i, n := range s.Nodes {
		if prev, ok := idx[n.ID]; ok {
			return fmt.Errorf("duplicate node id %d (positions %d and %d)", n.ID, prev, i)
		}
		idx[n.ID] = i
	}

	for _, n := range s.Nodes {
		if n.Parent == NoParent {
			continue
		}
		if _, ok := idx[n.Parent]; !ok {
			return fmt.Errorf("node %d references missing parent %d", n.ID, n.Parent)
		}
	}

	// Walk each node toward its root; revisiting a node within one walk
	// means the parent links loop back on themselves.
	state := make(map[int]int, len(s.Nodes)) // 0 unvisited, 1 on path, 2 done
	for _, n := range s.Nodes {
		id := n.ID
		var path []int
		for id != NoParent && state[id] == 0 {
			state[id] = 1
			path = append(path, id)
			id = s.Nodes[idx[id]].Parent
		}
		if id != NoParent && state[id] == 1 {
			return fmt.Errorf("cycle in parent links at node %d", id)
		}
		for _, p := range path {
			state[p] = 2
		}
	}
	return nil
}
