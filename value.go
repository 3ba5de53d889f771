package gpgpu

import "fmt"

// ParamKind is the type of a kernel parameter.
type ParamKind int

const (
	// KindInvalid is the kind of a nil Value.
	KindInvalid ParamKind = iota
	KindFloat
	KindVec2
	KindVec3
	KindVec4
	KindSampler2D
)

var kindNames = [...]string{
	KindInvalid:   "invalid",
	KindFloat:     "float",
	KindVec2:      "vec2",
	KindVec3:      "vec3",
	KindVec4:      "vec4",
	KindSampler2D: "sampler2D",
}

// String returns the shader type name of the kind.
func (k ParamKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ParamKind(%d)", int(k))
}

// kindOf maps a declared uniform type to a kind.
func kindOf(typ string) (ParamKind, bool) {
	for k, name := range kindNames {
		if k != int(KindInvalid) && name == typ {
			return ParamKind(k), true
		}
	}
	return KindInvalid, false
}

// Value is a value that can be bound to a kernel parameter: Float, Vec2,
// Vec3, Vec4 or *Texture. No other types implement it.
type Value interface {
	Kind() ParamKind
	isValue()
}

// Float is a float parameter value.
type Float float32

// Vec2 is a vec2 parameter value.
type Vec2 [2]float32

// Vec3 is a vec3 parameter value.
type Vec3 [3]float32

// Vec4 is a vec4 parameter value.
type Vec4 [4]float32

func (Float) Kind() ParamKind    { return KindFloat }
func (Vec2) Kind() ParamKind     { return KindVec2 }
func (Vec3) Kind() ParamKind     { return KindVec3 }
func (Vec4) Kind() ParamKind     { return KindVec4 }
func (*Texture) Kind() ParamKind { return KindSampler2D }

func (Float) isValue()    {}
func (Vec2) isValue()     {}
func (Vec3) isValue()     {}
func (Vec4) isValue()     {}
func (*Texture) isValue() {}

// Floats converts a list of numbers to a Value by length: one number is a
// Float, two to four are a Vec2 to Vec4.
func Floats(v ...float32) (Value, error) {
	switch len(v) {
	case 1:
		return Float(v[0]), nil
	case 2:
		return Vec2{v[0], v[1]}, nil
	case 3:
		return Vec3{v[0], v[1], v[2]}, nil
	case 4:
		return Vec4{v[0], v[1], v[2], v[3]}, nil
	}
	return nil, fmt.Errorf("%w: %d components", ErrTypeMismatch, len(v))
}
