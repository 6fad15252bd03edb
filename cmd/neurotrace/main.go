package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"neurotrace/internal/models"
	"neurotrace/pkg/config"
	"neurotrace/pkg/reconstruction"
	"neurotrace/pkg/tracer"
	"neurotrace/pkg/visualization"
)

const defaultConfigPath = "neurotrace.yaml"

func main() {
	// Load defaults from the config file first so flags can override it.
	cfg, err := config.LoadConfig(defaultConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Parse command line arguments
	inputPath := flag.String("input", "", "Input volume: directory of TIFF slices or a NIfTI (.nii/.nii.gz) file")
	outputName := flag.String("output", "output.swc", "Output SWC filename")
	threshold := flag.Float64("threshold", cfg.Processing.Threshold, "Foreground threshold (negative = automatic Otsu threshold)")
	zoomFactor := flag.Float64("zoom", cfg.Processing.ZoomFactor, "Isotropic zoom factor applied before tracing")
	clean := flag.Bool("clean", cfg.Processing.Clean, "Remove disconnected skeleton fragments")
	pushIters := flag.Int("push", cfg.Processing.PushIterations, "Node-pushing refinement iterations (0 disables)")
	quality := flag.Bool("quality", cfg.Tracer.Quality, "Favor tracing accuracy over speed")
	speed := flag.Bool("speed", cfg.Tracer.Speed, "Favor tracing speed over accuracy")
	nonStop := flag.Bool("non-stop", cfg.Tracer.NonStop, "Return an empty tree instead of failing on empty foreground")
	silent := flag.Bool("silent", cfg.Tracer.Silent, "Suppress tracer progress output")
	saveSoma := flag.Bool("soma", cfg.Output.SaveSoma, "Save the reconstructed soma mask as NIfTI")
	world := flag.Bool("world", cfg.Output.WorldCoordinates, "Export in physical (world) coordinates")
	meshExport := flag.Bool("mesh", cfg.Output.MeshExport, "Additionally write a polyline mesh (.vtk)")
	extractSlices := flag.Bool("extract-slices", false, "Extract and save volume slices along all axes")
	slicesDir := flag.String("slices-dir", "extracted_slices", "Directory to save extracted slices")
	saveIntermediary := flag.Bool("save-intermediary", cfg.Output.SaveIntermediaryResults, "Save intermediary results during processing")
	intermediaryDir := flag.String("intermediary-dir", "intermediary_results", "Directory to save intermediary results")
	flag.Parse()

	// Validate inputs
	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	outputPath := *outputName
	meshPath := ""
	if *meshExport {
		meshPath = outputPath[:len(outputPath)-len(filepath.Ext(outputPath))] + ".vtk"
	}

	fmt.Println("================================")
	fmt.Println("NEUROTRACE - NEURON SKELETON RECONSTRUCTION FROM 3D VOLUMETRIC IMAGES")
	fmt.Println("================================")

	params := &reconstruction.Params{
		InputPath:      *inputPath,
		OutputFile:     outputPath,
		Threshold:      *threshold,
		ZoomFactor:     models.UniformZoom(*zoomFactor),
		Clean:          *clean,
		PushIterations: *pushIters,
		TracerOptions: tracer.Options{
			Quality: *quality,
			Speed:   *speed,
			NonStop: *nonStop,
			Silent:  *silent,
		},
		SaveSoma:                *saveSoma,
		WorldCoordinates:        *world,
		MeshFile:                meshPath,
		SaveIntermediaryResults: *saveIntermediary,
		IntermediaryDir:         *intermediaryDir,
		Verbose:                 cfg.Output.Verbose,
	}

	reconstructor := reconstruction.NewReconstructor(params, tracer.NewRidgeTracer())

	// Ctrl-C aborts the trace cleanly; nothing is written on abort.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("Starting skeleton reconstruction...")
	startTime := time.Now()
	if err := reconstructor.Process(ctx); err != nil {
		log.Fatalf("Reconstruction failed: %v", err)
	}
	processingTime := time.Since(startTime)

	stats := reconstructor.GetStats()
	fmt.Printf("\nReconstruction completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Output tree saved to: %s\n\n", outputPath)

	fmt.Printf("Skeleton summary:\n")
	fmt.Printf("=================\n")
	fmt.Printf("Nodes: %d\n", stats.Nodes)
	fmt.Printf("Branch points: %d\n", stats.Branches)
	fmt.Printf("Tips: %d\n", stats.Tips)
	fmt.Printf("Cable length: %.2f\n", stats.CableLength)
	fmt.Printf("Mean radius: %.3f (max %.3f)\n", stats.MeanRadius, stats.MaxRadius)
	fmt.Printf("Crop extent: %dx%dx%d\n", stats.CropExtent[0], stats.CropExtent[1], stats.CropExtent[2])
	fmt.Printf("Foreground fraction: %.4f\n", stats.ForegroundFraction)
	if meshPath != "" {
		fmt.Printf("Mesh saved to: %s\n", meshPath)
	}

	// Extract and save slices of the restored volume if requested
	if *extractSlices {
		fmt.Println("\nExtracting volume slices along all axes...")

		viewer := visualization.NewViewer(reconstructor.Volume(), reconstructor.Soma())

		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(*slicesDir, axis)
			fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)

			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				log.Printf("Warning: Failed to save %s-axis slices: %v", axis, err)
			}
		}

		fmt.Println("Slice extraction completed!")
	}
}
