package gpgpu

import (
	"testing"

	"github.com/gogpu/gpgpu/driver/soft"
	"github.com/gogpu/gpgpu/driver/trace"
	"github.com/gogpu/gpgpu/internal/decl"
	"github.com/stretchr/testify/require"
)

// testGPU is a GPU over a traced soft device.
type testGPU struct {
	*GPU
	soft  *soft.Device
	trace *trace.Device
}

func newTestGPU(t *testing.T, cfg soft.Config) *testGPU {
	t.Helper()
	sd := soft.New(cfg)
	td := trace.Wrap(sd, nil)
	g, err := New(td)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return &testGPU{GPU: g, soft: sd, trace: td}
}

// kernel registers fn as the implementation of src and builds the kernel.
func (tg *testGPU) kernel(t *testing.T, src string, fn soft.FragmentFunc, opts ...KernelOption) *Kernel {
	t.Helper()
	tg.soft.RegisterFragment(src, fn)
	k, err := tg.NewKernel(src, opts...)
	require.NoError(t, err)
	return k
}

// ramp returns w*h*4 bytes with view[i] = i.
func ramp(w, h int) []byte {
	b := make([]byte, w*h*4)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func solid(w, h int, c [4]byte) []byte {
	b := make([]byte, 0, w*h*4)
	for range w * h {
		b = append(b, c[:]...)
	}
	return b
}

// readAll returns a fragment function that reads every uniform src declares
// and sums them, for kernels whose output does not matter.
func readAll(src string) soft.FragmentFunc {
	uniforms := decl.Scan(src).Uniforms
	return func(f *soft.Fragment) [4]float32 {
		var sum [4]float32
		for _, u := range uniforms {
			if u.Malformed {
				continue
			}
			v := f.Vec4(u.Name)
			if u.Type == "sampler2D" {
				v = f.Texture2D(u.Name, 0.5, 0.5)
			}
			for i := range sum {
				sum[i] += v[i]
			}
		}
		return sum
	}
}
