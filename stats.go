package gpgpu

import "fmt"

// Stats contains resource and work counters for a GPU.
type Stats struct {
	// Textures is the number of live textures.
	Textures int

	// TextureBytes is the storage held by initialized live textures.
	TextureBytes uint64

	// Kernels is the number of live kernels.
	Kernels int

	// Runs is the total number of kernel runs that issued a draw.
	Runs uint64

	// Pixels is the total viewport area covered by those runs.
	Pixels uint64

	// BytesUploaded and BytesDownloaded count pixel traffic.
	BytesUploaded   uint64
	BytesDownloaded uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Stats[%d textures (%d KB), %d kernels, %d runs, %d pixels, %d KB up, %d KB down]",
		s.Textures,
		s.TextureBytes/1024,
		s.Kernels,
		s.Runs,
		s.Pixels,
		s.BytesUploaded/1024,
		s.BytesDownloaded/1024)
}
