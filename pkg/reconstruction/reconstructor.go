// Package reconstruction runs the full skeleton reconstruction pipeline:
// load, preprocess, trace, refine, restore, export. Stages execute
// strictly sequentially; each stage consumes its input and hands ownership
// of the result to the next, and nothing is written to disk until every
// transform has succeeded.
package reconstruction

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"neurotrace/internal/models"
	"neurotrace/pkg/mesh"
	"neurotrace/pkg/preprocess"
	"neurotrace/pkg/refine"
	"neurotrace/pkg/restore"
	"neurotrace/pkg/swc"
	"neurotrace/pkg/tracer"
	"neurotrace/pkg/visualization"
)

// Params holds the reconstruction parameters.
type Params struct {
	// InputPath is the source volume: a directory of TIFF slices or a
	// NIfTI file
	InputPath string

	// OutputFile is the path of the resulting SWC tree file
	OutputFile string

	// Threshold is the foreground intensity threshold; negative requests
	// a data-driven (Otsu) threshold
	Threshold float64

	// ZoomFactor is the per-axis resampling applied before tracing
	ZoomFactor [3]float64

	// Clean removes disconnected skeleton fragments after tracing
	Clean bool

	// PushIterations is the number of node-pushing refinement rounds
	PushIterations int

	// TracerOptions are passed through to the centerline extractor
	TracerOptions tracer.Options

	// SaveSoma writes the restored soma mask to SomaFile when the tracer
	// detected one
	SaveSoma bool

	// SomaFile is the NIfTI path for the soma mask; derived from
	// OutputFile when empty
	SomaFile string

	// WorldCoordinates projects the restored tree into physical space
	// using the source image's origin and spacing
	WorldCoordinates bool

	// MeshFile, when non-empty, additionally writes a polyline mesh
	MeshFile string

	// SaveIntermediaryResults saves slice images of intermediate stages
	SaveIntermediaryResults bool

	// IntermediaryDir is where intermediary images are saved
	IntermediaryDir string

	// Verbose enables step-by-step progress output
	Verbose bool
}

// Stats summarizes a completed reconstruction.
type Stats struct {
	// Nodes is the total node count of the exported tree
	Nodes int

	// Branches counts nodes with two or more children
	Branches int

	// Tips counts leaf nodes
	Tips int

	// CableLength is the summed parent/child edge length, in the units
	// of the exported frame
	CableLength float64

	// MeanRadius and MaxRadius summarize the node radius estimates
	MeanRadius float64
	MaxRadius  float64

	// CropExtent is the working volume extent before zoom
	CropExtent [3]int

	// ForegroundFraction is the share of original voxels above threshold
	ForegroundFraction float64
}

// Reconstructor drives the pipeline for a single volume. Instances are not
// safe for concurrent use; process multiple volumes with independent
// reconstructors.
type Reconstructor struct {
	params *Params
	tr     tracer.Tracer

	volume   *models.Volume
	skeleton *models.Skeleton
	soma     models.Soma
	stats    Stats
}

// NewReconstructor creates a reconstructor with the provided parameters
// and tracer. A nil tracer selects the built-in reference tracer.
func NewReconstructor(params *Params, tr tracer.Tracer) *Reconstructor {
	if tr == nil {
		tr = tracer.NewRidgeTracer()
	}
	return &Reconstructor{params: params, tr: tr}
}

// Process runs the complete reconstruction pipeline. The context is
// honoured at the tracing stage, which is the only long-running step; a
// cancelled trace aborts the run before refinement with the input volume
// untouched and no files written.
func (r *Reconstructor) Process(ctx context.Context) error {
	p := r.params

	// Step 1: load the input volume.
	r.logf("Step 1: Loading input volume...")
	vol, err := r.loadVolume()
	if err != nil {
		return fmt.Errorf("failed to load volume: %w", err)
	}
	r.volume = vol
	r.logf("Loaded volume %dx%dx%d", vol.Width, vol.Height, vol.Depth)

	// Step 2: preprocess (crop + zoom), recording the inverse transform.
	r.logf("Step 2: Preprocessing (crop and zoom)...")
	threshold, err := preprocess.EffectiveThreshold(vol, p.Threshold)
	if err != nil {
		return fmt.Errorf("failed to resolve threshold: %w", err)
	}
	working, transform, err := preprocess.Preprocess(vol, threshold, p.ZoomFactor)
	if err != nil {
		return fmt.Errorf("failed to preprocess %dx%dx%d volume: %w", vol.Width, vol.Height, vol.Depth, err)
	}
	r.stats.CropExtent = transform.Crop.Extent()
	r.logf("Threshold %.4g, crop %v..%v, working volume %dx%dx%d",
		threshold, transform.Crop.Start, transform.Crop.Stop, working.Width, working.Height, working.Depth)
	if err := r.saveStageSlice("01_working_volume", working, models.Soma{}); err != nil {
		r.logf("Warning: failed to save working volume slices: %v", err)
	}

	// Step 3: trace. This is the cancellation point; an aborted trace
	// leaves no partial state behind.
	r.logf("Step 3: Tracing centerline...")
	result, err := r.tr.Trace(ctx, working, threshold, p.TracerOptions)
	if err != nil {
		return fmt.Errorf("tracing failed on %dx%dx%d working volume: %w",
			working.Width, working.Height, working.Depth, err)
	}
	skel := result.Tree
	r.logf("Traced %d nodes (soma detected: %v)", len(skel.Nodes), result.Soma.Valid)

	// Step 4: refine.
	if p.Clean {
		r.logf("Step 4: Cleaning disconnected fragments...")
		skel, err = refine.Clean(skel)
		if err != nil {
			return fmt.Errorf("failed to clean skeleton: %w", err)
		}
	}
	if p.PushIterations > 0 {
		r.logf("Step 4b: Pushing nodes toward the medial axis (%d rounds)...", p.PushIterations)
		mask := binarize(working, threshold)
		skel, err = refine.PushNodes(skel, mask, p.PushIterations)
		if err != nil {
			return fmt.Errorf("failed to push nodes: %w", err)
		}
	}

	// Step 5: restore into the original volume's frame.
	r.logf("Step 5: Restoring original coordinate frame...")
	skel, err = restore.Skeleton(skel, transform, vol.Shape())
	if err != nil {
		return fmt.Errorf("failed to restore skeleton: %w", err)
	}
	soma := models.Soma{}
	if p.SaveSoma {
		soma, err = restore.Soma(result.Soma, transform, vol.Shape())
		if err != nil {
			return fmt.Errorf("failed to restore soma: %w", err)
		}
	}
	r.soma = soma
	if err := r.saveStageSlice("02_restored", vol, soma); err != nil {
		r.logf("Warning: failed to save restored slices: %v", err)
	}

	// Step 6: export. World projection happens before any write so a
	// failed projection leaves no file behind.
	r.logf("Step 6: Exporting results...")
	if p.WorldCoordinates {
		skel, err = swc.ToWorld(skel, vol)
		if err != nil {
			return fmt.Errorf("failed to project to world coordinates: %w", err)
		}
	}
	r.skeleton = skel
	r.computeStats(vol, threshold)

	var polylines *mesh.PolylineMesh
	if p.MeshFile != "" {
		polylines, err = mesh.FromSkeleton(skel)
		if err != nil {
			return fmt.Errorf("failed to build mesh: %w", err)
		}
	}

	if err := swc.Write(p.OutputFile, skel); err != nil {
		return fmt.Errorf("failed to write tree file: %w", err)
	}
	if polylines != nil {
		if err := mesh.Save(p.MeshFile, polylines); err != nil {
			return fmt.Errorf("failed to write mesh file: %w", err)
		}
	}
	if p.SaveSoma && soma.Valid {
		if err := r.writeSoma(soma); err != nil {
			return fmt.Errorf("failed to write soma mask: %w", err)
		}
	}

	return nil
}

// GetStats returns the summary statistics of the last successful run.
func (r *Reconstructor) GetStats() Stats {
	return r.stats
}

// Volume returns the loaded input volume, for slice extraction.
func (r *Reconstructor) Volume() *models.Volume {
	return r.volume
}

// Soma returns the restored soma mask, if one was produced.
func (r *Reconstructor) Soma() models.Soma {
	return r.soma
}

// Skeleton returns the exported skeleton tree.
func (r *Reconstructor) Skeleton() *models.Skeleton {
	return r.skeleton
}

func (r *Reconstructor) loadVolume() (*models.Volume, error) {
	// The loader lives in volio; indirection here keeps the import local
	// to one place for testing.
	return readVolume(r.params.InputPath)
}

func (r *Reconstructor) logf(format string, args ...interface{}) {
	if r.params.Verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// binarize builds the foreground mask the node pusher operates on.
func binarize(vol *models.Volume, threshold float64) *models.Volume {
	mask := models.NewVolume(vol.Width, vol.Height, vol.Depth)
	for i, v := range vol.Data {
		if v >= threshold {
			mask.Data[i] = 1
		}
	}
	return mask
}

func (r *Reconstructor) computeStats(vol *models.Volume, threshold float64) {
	s := r.skeleton
	r.stats.Nodes = len(s.Nodes)

	children := make(map[int]int, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.Parent != models.NoParent {
			children[n.Parent]++
		}
	}

	idx := s.IndexByID()
	radii := make([]float64, 0, len(s.Nodes))
	cable := 0.0
	for _, n := range s.Nodes {
		radii = append(radii, n.Radius)
		switch children[n.ID] {
		case 0:
			r.stats.Tips++
		case 1:
		default:
			r.stats.Branches++
		}
		if n.Parent != models.NoParent {
			p := s.Nodes[idx[n.Parent]]
			dx, dy, dz := n.X-p.X, n.Y-p.Y, n.Z-p.Z
			cable += math.Sqrt(dx*dx + dy*dy + dz*dz)
		}
	}
	r.stats.CableLength = cable
	if len(radii) > 0 {
		r.stats.MeanRadius = stat.Mean(radii, nil)
		r.stats.MaxRadius = floats.Max(radii)
	}

	fg := 0
	for _, v := range vol.Data {
		if v >= threshold {
			fg++
		}
	}
	r.stats.ForegroundFraction = float64(fg) / float64(len(vol.Data))
}

// saveStageSlice saves the middle z-slice of a volume as a stage snapshot.
func (r *Reconstructor) saveStageSlice(stage string, vol *models.Volume, soma models.Soma) error {
	if !r.params.SaveIntermediaryResults {
		return nil
	}

	dir := filepath.Join(r.params.IntermediaryDir, stage)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	viewer := visualization.NewViewer(vol, soma)
	img, err := viewer.ExtractSlice("z", vol.Depth/2)
	if err != nil {
		return err
	}
	return viewer.SaveSlice(img, filepath.Join(dir, "middle.jpg"))
}

func (r *Reconstructor) writeSoma(soma models.Soma) error {
	path := r.params.SomaFile
	if path == "" {
		base := r.params.OutputFile
		path = base[:len(base)-len(filepath.Ext(base))] + "_soma.nii"
	}
	mask := soma.Mask.Clone()
	mask.Origin = r.volume.Origin
	mask.Spacing = r.volume.Spacing
	mask.HasGeometry = r.volume.HasGeometry
	return writeNIfTIMask(path, mask)
}
