package soft

import (
	"image"

	"github.com/gogpu/gputypes"
)

type vertex struct{ x, y float32 }

// DrawArrays rasterises count vertices starting at first. Triangle lists
// and strips are supported; other topologies are ignored.
func (d *Device) DrawArrays(mode gputypes.PrimitiveTopology, first, count int) {
	if d.released {
		return
	}
	prog := d.program
	if prog == nil || prog.released {
		d.log.Warn("soft: DrawArrays ignored", "reason", "no program")
		return
	}
	if d.vertices == nil {
		d.log.Warn("soft: DrawArrays ignored", "reason", "no vertex buffer")
		return
	}
	dst := d.surface
	if d.framebuffer != nil {
		dst = d.framebuffer.tex
		if dst.released || !dst.allocated {
			d.log.Warn("soft: DrawArrays ignored", "reason", "framebuffer incomplete")
			return
		}
	}

	verts, ok := d.fetch(first, count)
	if !ok {
		d.log.Warn("soft: DrawArrays ignored", "reason", "vertex range out of buffer",
			"first", first, "count", count)
		return
	}
	var tris [][3]vertex
	switch mode {
	case gputypes.PrimitiveTopologyTriangleStrip:
		for i := 0; i+2 < len(verts); i++ {
			tris = append(tris, [3]vertex{verts[i], verts[i+1], verts[i+2]})
		}
	case gputypes.PrimitiveTopologyTriangleList:
		for i := 0; i+2 < len(verts); i += 3 {
			tris = append(tris, [3]vertex{verts[i], verts[i+1], verts[i+2]})
		}
	default:
		d.log.Warn("soft: DrawArrays ignored", "reason", "unsupported topology", "mode", mode)
		return
	}
	d.stats.DrawCalls++

	clip := d.viewport.Intersect(dst.bounds())
	if clip.Empty() {
		return
	}
	covered := make([]bool, clip.Dx()*clip.Dy())
	frag := &Fragment{dev: d, prog: prog}
	vp := d.viewport
	vw, vh := float32(vp.Dx()), float32(vp.Dy())
	for _, tri := range tris {
		area := edge(tri[0], tri[1], tri[2])
		if area == 0 {
			continue
		}
		box := d.bbox(tri, clip)
		for py := box.Min.Y; py < box.Max.Y; py++ {
			for px := box.Min.X; px < box.Max.X; px++ {
				ci := (py-clip.Min.Y)*clip.Dx() + (px - clip.Min.X)
				if covered[ci] {
					continue
				}
				cx, cy := float32(px)+0.5, float32(py)+0.5
				p := vertex{
					x: (cx-float32(vp.Min.X))/vw*2 - 1,
					y: (cy-float32(vp.Min.Y))/vh*2 - 1,
				}
				if !inside(tri, p, area) {
					continue
				}
				covered[ci] = true
				frag.coord = [2]float32{cx, cy}
				frag.pos = [2]float32{p.x, p.y}
				c := prog.fs.fn(frag)
				off := dst.offset(px, py)
				dst.pix[off+0] = unorm8(c[0])
				dst.pix[off+1] = unorm8(c[1])
				dst.pix[off+2] = unorm8(c[2])
				dst.pix[off+3] = unorm8(c[3])
				d.stats.FragmentsShaded++
			}
		}
	}
}

// fetch reads clip-space xy positions from the bound vertex buffer.
func (d *Device) fetch(first, count int) ([]vertex, bool) {
	if first < 0 || count < 0 {
		return nil, false
	}
	data, n := d.vertices.data, d.components
	if (first+count)*n > len(data) {
		return nil, false
	}
	out := make([]vertex, count)
	for i := range out {
		j := (first + i) * n
		out[i] = vertex{data[j], data[j+1]}
	}
	return out, true
}

// bbox returns the window-space pixel box covering tri, limited to clip.
func (d *Device) bbox(tri [3]vertex, clip image.Rectangle) image.Rectangle {
	vp := d.viewport
	minX, minY := tri[0].x, tri[0].y
	maxX, maxY := minX, minY
	for _, v := range tri[1:] {
		minX, maxX = min(minX, v.x), max(maxX, v.x)
		minY, maxY = min(minY, v.y), max(maxY, v.y)
	}
	toX := func(x float32) int { return vp.Min.X + int((x+1)*0.5*float32(vp.Dx())) }
	toY := func(y float32) int { return vp.Min.Y + int((y+1)*0.5*float32(vp.Dy())) }
	box := image.Rect(toX(minX)-1, toY(minY)-1, toX(maxX)+1, toY(maxY)+1)
	return box.Intersect(clip)
}

func edge(a, b, p vertex) float32 {
	return (b.x-a.x)*(p.y-a.y) - (b.y-a.y)*(p.x-a.x)
}

// inside reports whether p lies in tri, edges included, for either winding.
func inside(tri [3]vertex, p vertex, area float32) bool {
	w0 := edge(tri[1], tri[2], p)
	w1 := edge(tri[2], tri[0], p)
	w2 := edge(tri[0], tri[1], p)
	if area < 0 {
		w0, w1, w2 = -w0, -w1, -w2
	}
	return w0 >= 0 && w1 >= 0 && w2 >= 0
}
