package gpgpu

import (
	"fmt"

	"github.com/gogpu/gpgpu/driver"
	"github.com/gogpu/gpucontext"
)

// quadVertices is a clip-space square as a four-vertex triangle strip.
var quadVertices = []float32{-1, -1, -1, 1, 1, -1, 1, 1}

// GPU is a compute context over one driver.Device. It owns every texture and
// kernel created through it. A GPU is not safe for concurrent use.
type GPU struct {
	dev  driver.Device
	name string
	caps driver.Caps

	quad     driver.Buffer
	textures map[*Texture]struct{}
	kernels  map[*Kernel]struct{}

	stats  Stats
	closed bool
}

// New creates a GPU over dev. The GPU takes ownership of dev and releases it
// on Close.
func New(dev driver.Device) (*GPU, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", driver.ErrNotAvailable)
	}
	g := &GPU{
		dev:      dev,
		name:     dev.Info().Name,
		caps:     dev.Caps(),
		textures: make(map[*Texture]struct{}),
		kernels:  make(map[*Kernel]struct{}),
	}
	track(g)
	info := dev.Info()
	Logger().Info("gpgpu: device opened",
		"adapter", info.Name,
		"type", info.Type,
		"maxTextureSize", g.caps.MaxTextureSize,
		"textureUnits", g.caps.MaxTextureUnits)
	return g, nil
}

// Open opens the named driver and creates a GPU over it. An empty name
// opens the best available driver.
func Open(name string, opts ...Option) (*GPU, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	var (
		dev driver.Device
		err error
	)
	if name == "" {
		dev, name, err = driver.OpenDefault(o.cfg, Logger())
	} else {
		dev, err = driver.Open(name, o.cfg)
	}
	if err != nil {
		return nil, err
	}
	Logger().Debug("gpgpu: driver selected", "driver", name)
	if o.wrap != nil {
		dev = o.wrap(dev)
	}
	return New(dev)
}

// Device returns the underlying driver device.
func (g *GPU) Device() driver.Device { return g.dev }

// Info describes the adapter.
func (g *GPU) Info() gpucontext.AdapterInfo { return g.dev.Info() }

// Caps reports the device limits.
func (g *GPU) Caps() driver.Caps { return g.caps }

// CanvasSize returns the size of the visible surface.
func (g *GPU) CanvasSize() (width, height int) { return g.dev.SurfaceSize() }

// DownloadCanvas reads the visible surface as 8-bit RGBA rows.
func (g *GPU) DownloadCanvas() ([]byte, error) {
	if g.closed {
		return nil, ErrClosed
	}
	w, h := g.CanvasSize()
	buf := make([]byte, w*h*4)
	if err := g.dev.ReadPixels(nil, driver.FullRect(w, h), buf); err != nil {
		return nil, fmt.Errorf("gpgpu: read canvas: %w", err)
	}
	g.stats.BytesDownloaded += uint64(len(buf))
	return buf, nil
}

// Stats returns resource and work counters.
func (g *GPU) Stats() Stats {
	s := g.stats
	s.Textures = len(g.textures)
	s.Kernels = len(g.kernels)
	for t := range g.textures {
		if t.state == TextureInitialized {
			s.TextureBytes += uint64(t.width) * uint64(t.height) * 4
		}
	}
	return s
}

// Close releases every kernel and texture, then the device. Close is
// idempotent.
func (g *GPU) Close() error {
	if g.closed {
		return nil
	}
	for k := range g.kernels {
		k.Release()
	}
	for t := range g.textures {
		t.Release()
	}
	if g.quad != nil {
		g.quad.Release()
		g.quad = nil
	}
	g.dev.Release()
	g.closed = true
	untrack(g)
	Logger().Info("gpgpu: device closed", "adapter", g.name)
	return nil
}

// quadBuffer returns the shared full-surface vertex buffer, creating it on
// first use.
func (g *GPU) quadBuffer() (driver.Buffer, error) {
	if g.quad != nil {
		return g.quad, nil
	}
	b, err := g.dev.NewVertexBuffer(quadVertices)
	if err != nil {
		return nil, fmt.Errorf("gpgpu: create vertex buffer: %w", err)
	}
	g.quad = b
	return b, nil
}

func (g *GPU) checkSize(width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if m := g.caps.MaxTextureSize; m > 0 && (width > m || height > m) {
		return fmt.Errorf("%w: %dx%d exceeds device limit %d", ErrInvalidDimensions, width, height, m)
	}
	return nil
}
