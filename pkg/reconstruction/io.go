package reconstruction

import "neurotrace/pkg/volio"

// Hooks over the volume IO layer, swappable in tests to feed synthetic
// volumes through the pipeline without touching disk formats.
var (
	readVolume     = volio.ReadVolume
	writeNIfTIMask = volio.WriteNIfTIMask
)
