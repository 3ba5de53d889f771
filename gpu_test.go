package gpgpu

import (
	"testing"

	"github.com/gogpu/gpgpu/driver"
	"github.com/gogpu/gpgpu/driver/soft"
	"github.com/gogpu/gpgpu/driver/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNilDevice(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, driver.ErrNotAvailable)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("no-such-driver")
	assert.ErrorIs(t, err, driver.ErrNotAvailable)
}

func TestOpenSoft(t *testing.T) {
	var wrapped *trace.Device
	g, err := Open(driver.NameSoft,
		WithCanvasSize(6, 3),
		WithWrap(func(d driver.Device) driver.Device {
			wrapped = trace.Wrap(d, nil)
			return wrapped
		}))
	require.NoError(t, err)
	defer g.Close()

	require.NotNil(t, wrapped)
	assert.Same(t, wrapped, g.Device())
	_, ok := wrapped.Unwrap().(*soft.Device)
	assert.True(t, ok)

	w, h := g.CanvasSize()
	assert.Equal(t, 6, w)
	assert.Equal(t, 3, h)
	assert.True(t, g.Caps().BottomLeftOrigin)
}

func TestCloseReleasesResources(t *testing.T) {
	tg := newTestGPU(t, soft.Config{Width: 2, Height: 2})
	tex, err := tg.NewTexture(2, 2)
	require.NoError(t, err)
	require.NoError(t, tex.Fill(7))
	assert.Equal(t, 1, tg.Stats().Textures)

	require.NoError(t, tg.Close())
	require.NoError(t, tg.Close(), "Close is idempotent")
	assert.Equal(t, 0, tg.Stats().Textures)

	assert.Equal(t, TextureReleased, tex.State())
	_, err = tg.DownloadCanvas()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDownloadCanvas(t *testing.T) {
	tg := newTestGPU(t, soft.Config{Width: 3, Height: 2})
	buf, err := tg.DownloadCanvas()
	require.NoError(t, err)
	assert.Len(t, buf, 3*2*4)
	assert.Equal(t, uint64(len(buf)), tg.Stats().BytesDownloaded)
}
