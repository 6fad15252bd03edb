package volio

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"neurotrace/internal/models"
)

// nifti1Header is the fixed 348-byte NIfTI-1 header layout.
type nifti1Header struct {
	SizeofHdr     int32
	DataTypeName  [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XyztUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// NIfTI-1 datatype codes supported by the reader.
const (
	niftiTypeUint8   = 2
	niftiTypeInt16   = 4
	niftiTypeInt32   = 8
	niftiTypeFloat32 = 16
	niftiTypeFloat64 = 64
	niftiTypeUint16  = 512
)

// ReadNIfTI loads a NIfTI-1 volume. Spacing comes from pixdim and the
// origin from the qoffset fields; rotation components of the qform are
// ignored, which is adequate for the axis-aligned volumes this pipeline
// consumes. Gzipped files (.nii.gz) are handled transparently.
func ReadNIfTI(path string) (*models.Volume, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read NIfTI file: %w", err)
	}

	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		raw, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress NIfTI file: %w", err)
		}
	}

	r := bytes.NewReader(raw)
	var hdr nifti1Header
	order := binary.ByteOrder(binary.LittleEndian)
	if err := binary.Read(r, order, &hdr); err != nil {
		return nil, fmt.Errorf("failed to parse NIfTI header: %w", err)
	}
	if hdr.SizeofHdr != 348 {
		// Retry with the opposite byte order.
		order = binary.BigEndian
		r = bytes.NewReader(raw)
		if err := binary.Read(r, order, &hdr); err != nil {
			return nil, fmt.Errorf("failed to parse NIfTI header: %w", err)
		}
		if hdr.SizeofHdr != 348 {
			return nil, fmt.Errorf("not a NIfTI-1 file: header size %d", hdr.SizeofHdr)
		}
	}
	if magic := string(hdr.Magic[:3]); magic != "n+1" && magic != "ni1" {
		return nil, fmt.Errorf("not a NIfTI-1 file: bad magic %q", hdr.Magic)
	}
	if hdr.Dim[0] < 1 || hdr.Dim[0] > 7 {
		return nil, fmt.Errorf("invalid NIfTI dimensionality %d", hdr.Dim[0])
	}

	width, height, depth := int(hdr.Dim[1]), 1, 1
	if hdr.Dim[0] >= 2 {
		height = int(hdr.Dim[2])
	}
	if hdr.Dim[0] >= 3 {
		depth = int(hdr.Dim[3])
	}
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, fmt.Errorf("invalid NIfTI extents %dx%dx%d", width, height, depth)
	}

	offset := int(hdr.VoxOffset)
	if offset < 348 || offset > len(raw) {
		return nil, fmt.Errorf("invalid NIfTI voxel offset %d", offset)
	}
	data := bytes.NewReader(raw[offset:])

	n := width * height * depth
	vol := models.NewVolume(width, height, depth)
	// Higher dimensions (time points, channels) beyond the first volume
	// are ignored.
	if err := readVoxels(data, order, hdr.Datatype, vol.Data[:n]); err != nil {
		return nil, fmt.Errorf("failed to read NIfTI voxels: %w", err)
	}

	slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
	if slope != 0 && (slope != 1 || inter != 0) {
		for i := range vol.Data {
			vol.Data[i] = vol.Data[i]*slope + inter
		}
	}

	vol.Origin = [3]float64{float64(hdr.QoffsetX), float64(hdr.QoffsetY), float64(hdr.QoffsetZ)}
	vol.Spacing = [3]float64{float64(hdr.Pixdim[1]), float64(hdr.Pixdim[2]), float64(hdr.Pixdim[3])}
	vol.HasGeometry = vol.Spacing[0] > 0 && vol.Spacing[1] > 0 && vol.Spacing[2] > 0
	return vol, nil
}

func readVoxels(r io.Reader, order binary.ByteOrder, datatype int16, out []float64) error {
	switch datatype {
	case niftiTypeUint8:
		buf := make([]uint8, len(out))
		if err := binary.Read(r, order, buf); err != nil {
			return err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case niftiTypeInt16:
		buf := make([]int16, len(out))
		if err := binary.Read(r, order, buf); err != nil {
			return err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case niftiTypeInt32:
		buf := make([]int32, len(out))
		if err := binary.Read(r, order, buf); err != nil {
			return err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case niftiTypeFloat32:
		buf := make([]float32, len(out))
		if err := binary.Read(r, order, buf); err != nil {
			return err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case niftiTypeFloat64:
		return binary.Read(r, order, out)
	case niftiTypeUint16:
		buf := make([]uint16, len(out))
		if err := binary.Read(r, order, buf); err != nil {
			return err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	default:
		return fmt.Errorf("unsupported NIfTI datatype %d", datatype)
	}
	return nil
}

// WriteNIfTIMask saves a volume as an 8-bit NIfTI-1 file, used for soma
// masks. Any voxel above zero becomes 1. Geometry metadata is carried into
// the header when present. The write is atomic (temp file + rename).
func WriteNIfTIMask(path string, vol *models.Volume) error {
	hdr := nifti1Header{
		SizeofHdr: 348,
		Dim:       [8]int16{3, int16(vol.Width), int16(vol.Height), int16(vol.Depth), 1, 1, 1, 1},
		Datatype:  niftiTypeUint8,
		Bitpix:    8,
		Pixdim:    [8]float32{1, 1, 1, 1, 0, 0, 0, 0},
		VoxOffset: 352,
		SclSlope:  1,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	copy(hdr.Descrip[:], "neurotrace soma mask")
	if vol.HasGeometry {
		hdr.QformCode = 1
		hdr.Pixdim[1] = float32(vol.Spacing[0])
		hdr.Pixdim[2] = float32(vol.Spacing[1])
		hdr.Pixdim[3] = float32(vol.Spacing[2])
		hdr.QoffsetX = float32(vol.Origin[0])
		hdr.QoffsetY = float32(vol.Origin[1])
		hdr.QoffsetZ = float32(vol.Origin[2])
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("failed to encode NIfTI header: %w", err)
	}
	// Four zero extension bytes pad the header to the voxel offset.
	buf.Write([]byte{0, 0, 0, 0})

	voxels := make([]uint8, len(vol.Data))
	for i, v := range vol.Data {
		if v > 0 && !math.IsNaN(v) {
			voxels[i] = 1
		}
	}
	buf.Write(voxels)

	payload := buf.Bytes()
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		var zbuf bytes.Buffer
		zw := gzip.NewWriter(&zbuf)
		if _, err := zw.Write(payload); err != nil {
			return fmt.Errorf("failed to compress NIfTI file: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to compress NIfTI file: %w", err)
		}
		payload = zbuf.Bytes()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".nii-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary mask file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write mask file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close mask file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move mask file into place: %w", err)
	}
	return nil
}
