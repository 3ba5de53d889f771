package soft

import (
	"fmt"
	"slices"

	"github.com/gogpu/gpgpu/driver"
	"github.com/gogpu/gpgpu/internal/decl"
	"github.com/gogpu/gputypes"
)

type shader struct {
	dev      *Device
	stage    gputypes.ShaderStage
	src      decl.Source
	used     map[string]bool
	fn       FragmentFunc
	released bool
}

func (s *shader) Release() { s.released = true }

// NewShader checks src and, for the fragment stage, resolves the registered
// Go implementation.
func (d *Device) NewShader(stage gputypes.ShaderStage, src string) (driver.Shader, error) {
	if d.released {
		return nil, ErrReleased
	}
	if stage != gputypes.ShaderStageVertex && stage != gputypes.ShaderStageFragment {
		return nil, &driver.ShaderError{Stage: stage, Log: "ERROR: 0:0: unsupported shader stage"}
	}
	scanned := decl.Scan(src)
	if msg := checkSyntax(src, scanned); msg != "" {
		return nil, &driver.ShaderError{Stage: stage, Log: msg}
	}
	s := &shader{
		dev:   d,
		stage: stage,
		src:   scanned,
		used:  decl.Identifiers(scanned.Body),
	}
	if stage == gputypes.ShaderStageFragment {
		fn, ok := d.fragments[sourceKey(src)]
		if !ok {
			return nil, &driver.ShaderError{
				Stage: stage,
				Log:   "ERROR: 0:0: no implementation registered for this fragment source",
			}
		}
		s.fn = fn
	}
	d.stats.ShadersCompiled++
	return s, nil
}

// checkSyntax returns a compiler-style diagnostic, or "" if src passes the
// structural checks the soft driver performs.
func checkSyntax(src string, scanned decl.Source) string {
	stripped := decl.StripComments(src)
	line := 1
	var stack []byte
	for i := 0; i < len(stripped); i++ {
		c := stripped[i]
		switch c {
		case '\n':
			line++
		case '{', '(':
			stack = append(stack, c)
		case '}', ')':
			open := byte('{')
			if c == ')' {
				open = '('
			}
			if len(stack) == 0 || stack[len(stack)-1] != open {
				return fmt.Sprintf("ERROR: 0:%d: '%c' : syntax error", line, c)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Sprintf("ERROR: 0:%d: '' : syntax error: unexpected end of file, unclosed '%c'",
			line, stack[len(stack)-1])
	}
	if scanned.BodyLine == 0 || !decl.Identifiers(scanned.Body)["main"] {
		return fmt.Sprintf("ERROR: 0:%d: 'main' : function 'void main()' not defined", line)
	}
	return ""
}

type uniform struct {
	name  string
	typ   string
	loc   int
	value [4]float32
	ival  int32
}

type program struct {
	dev      *Device
	vs, fs   *shader
	uniforms map[string]*uniform
	byLoc    []*uniform
	attribs  map[string]int
	released bool
}

// NewProgram links vs and fs. Only live uniforms receive a location: those
// the vertex body refers to and those the fragment's Go implementation reads.
func (d *Device) NewProgram(vs, fs driver.Shader) (driver.Program, error) {
	if d.released {
		return nil, ErrReleased
	}
	v, ok1 := vs.(*shader)
	f, ok2 := fs.(*shader)
	if !ok1 || !ok2 || v.dev != d || f.dev != d {
		return nil, ErrForeignObject
	}
	if v.released || f.released {
		return nil, &driver.LinkError{Log: "ERROR: attached shader has been deleted"}
	}
	if v.stage != gputypes.ShaderStageVertex || f.stage != gputypes.ShaderStageFragment {
		return nil, &driver.LinkError{Log: "ERROR: program needs one vertex and one fragment shader"}
	}

	p := &program{
		dev:      d,
		vs:       v,
		fs:       f,
		uniforms: make(map[string]*uniform),
		attribs:  make(map[string]int),
	}
	declared := make(map[string]string)
	for _, s := range []*shader{v, f} {
		for _, u := range s.src.Uniforms {
			if u.Malformed {
				continue
			}
			if prev, ok := declared[u.Name]; ok && prev != u.Type {
				return nil, &driver.LinkError{Log: fmt.Sprintf(
					"ERROR: uniform '%s' declared as %s and %s", u.Name, prev, u.Type)}
			}
			declared[u.Name] = u.Type
		}
	}
	// Fragment uniforms are live when the Go implementation reads them. If
	// it cannot be called safely, fall back to references in the source.
	live := f.used
	if reads, ok := uniformReads(f.fn); ok {
		live = reads
	} else {
		d.log.Warn("soft: fragment function panicked on a zero fragment; using source references")
	}
	inFragment := make(map[string]bool, len(f.src.Uniforms))
	for _, u := range f.src.Uniforms {
		inFragment[u.Name] = true
	}
	names := make([]string, 0, len(declared))
	for name := range declared {
		if v.used[name] || (inFragment[name] && live[name]) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for i, name := range names {
		u := &uniform{name: name, typ: declared[name], loc: i}
		p.uniforms[name] = u
		p.byLoc = append(p.byLoc, u)
	}
	for _, a := range v.src.Attributes {
		if !a.Malformed && v.used[a.Name] {
			p.attribs[a.Name] = len(p.attribs)
		}
	}
	d.stats.ProgramsLinked++
	return p, nil
}

func (p *program) Uniform(name string) (driver.UniformLocation, bool) {
	u, ok := p.uniforms[name]
	if !ok {
		return nil, false
	}
	return u.loc, true
}

func (p *program) Attrib(name string) (int, bool) {
	i, ok := p.attribs[name]
	return i, ok
}

func (p *program) Release() {
	if p.dev.program == p {
		p.dev.program = nil
	}
	p.released = true
}
