// Package volio loads and saves volumetric images: directories of numbered
// TIFF slices and NIfTI-1 files (.nii / .nii.gz). NIfTI carries the origin
// and spacing metadata needed for physical-space export; TIFF stacks do
// not, so trees from them stay in voxel units.
package volio

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"

	"neurotrace/internal/models"
)

// ReadVolume dispatches on the input path: a directory is read as a TIFF
// slice stack, a .nii/.nii.gz file as NIfTI, and a single .tif/.tiff file
// as a one-slice volume.
func ReadVolume(path string) (*models.Volume, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}
	if info.IsDir() {
		return ReadTIFFStack(path)
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".nii"), strings.HasSuffix(lower, ".nii.gz"):
		return ReadNIfTI(path)
	case strings.HasSuffix(lower, ".tif"), strings.HasSuffix(lower, ".tiff"):
		return readTIFFFiles(filepath.Dir(path), []string{filepath.Base(path)})
	}
	return nil, fmt.Errorf("unsupported input format: %s", path)
}

// ReadTIFFStack loads all TIFF files in a directory as one volume, sorted
// by the number embedded in each filename so the anatomical slice order is
// preserved.
func ReadTIFFStack(dir string) (*models.Volume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".tif" || ext == ".tiff" {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no TIFF images found in %s", dir)
	}

	sort.Slice(files, func(i, j int) bool {
		return extractNumber(files[i]) < extractNumber(files[j])
	})

	return readTIFFFiles(dir, files)
}

func readTIFFFiles(dir string, files []string) (*models.Volume, error) {
	var vol *models.Volume
	for z, name := range files {
		img, err := loadTIFF(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load slice %s: %w", name, err)
		}

		bounds := img.Bounds()
		if vol == nil {
			vol = models.NewVolume(bounds.Dx(), bounds.Dy(), len(files))
		} else if bounds.Dx() != vol.Width || bounds.Dy() != vol.Height {
			return nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d",
				name, bounds.Dx(), bounds.Dy(), vol.Width, vol.Height)
		}

		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				vol.Set(x, y, z, float64(r)/65535.0)
			}
		}
	}
	return vol, nil
}

func loadTIFF(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tiff.Decode(f)
}

// extractNumber extracts the numeric part from a filename, used for slice
// ordering.
func extractNumber(filename string) int {
	numStr := ""
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}
	if numStr != "" {
		if num, err := strconv.Atoi(numStr); err == nil {
			return num
		}
	}
	return 0
}
