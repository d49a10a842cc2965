package dmx

import (
	"encoding/binary"
	"hash"
	"math"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"

	"miren.dev/dmx/dmxerr"
	"miren.dev/dmx/dmxvalue"
)

// Value is the materialized payload of an Attribute: exactly one member of
// the closed kind set in kind.go. Like the teacher's entity.Value, it is
// built through the typed constructors below and read through Get[T] and
// the GetAttr/GetArrayAttr accessors; the untyped payload is exposed only
// through Any, for codecs.
type Value struct {
	kind     Kind
	elemKind Kind // meaningful only when kind == KindArray
	data     any
}

// Kind reports v's value kind.
func (v Value) Kind() Kind { return v.kind }

// ElemKind reports the element kind of an array value; it is KindInvalid
// for non-array values.
func (v Value) ElemKind() Kind { return v.elemKind }

// IsNil reports whether v is a nil element reference. v.data, when
// populated via ElementValue(nil), holds a typed nil *Element inside the
// any -- comparing that directly against the untyped nil literal would
// be false, so this goes through the same type assertion element() uses.
func (v Value) IsNil() bool {
	e, ok := v.element()
	return ok && e == nil
}

func newScalar(k Kind, data any) Value { return Value{kind: k, data: data} }

// Any returns the value's payload as an untyped interface -- mirroring
// the teacher's Value.Any() (miren.dev/runtime/pkg/entity), which exists
// for exactly this reason: codecs need to switch on the concrete payload
// type without the compile-time type parameter Get[T] requires. Regular
// callers should use Get[T] or GetAttr[T] instead.
func (v Value) Any() any { return v.data }

func ElementValue(e *Element) Value { return Value{kind: KindElement, data: e} }
func Int32Value(i int32) Value      { return newScalar(KindInt32, i) }
func Float32Value(f float32) Value  { return newScalar(KindFloat32, f) }
func BoolValue(b bool) Value        { return newScalar(KindBool, b) }
func StringValue(s string) Value    { return newScalar(KindString, s) }

// BinaryValue copies b so later mutation of the caller's slice can't
// reach into the stored attribute.
func BinaryValue(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return newScalar(KindBinary, cp)
}

func TimeSpanValue(t dmxvalue.TimeSpan) Value     { return newScalar(KindTimeSpan, t) }
func ColorValue(c dmxvalue.Color) Value           { return newScalar(KindColor, c) }
func Vector2Value(v dmxvalue.Vector2) Value       { return newScalar(KindVector2, v) }
func Vector3Value(v dmxvalue.Vector3) Value       { return newScalar(KindVector3, v) }
func AngleValue(a dmxvalue.Angle) Value           { return newScalar(KindAngle, a) }
func Vector4Value(v dmxvalue.Vector4) Value       { return newScalar(KindVector4, v) }
func QuaternionValue(q dmxvalue.Quaternion) Value { return newScalar(KindQuaternion, q) }
func Matrix4Value(m dmxvalue.Matrix4) Value       { return newScalar(KindMatrix4, m) }

// ElementArrayValue wraps an *ElementArray as an attribute value.
func ElementArrayValue(a *ElementArray) Value {
	return Value{kind: KindElementArray, data: a}
}

// arrayValue builds a KindArray value over a homogeneous slice. elemKind
// must satisfy IsScalarArrayElement; callers are the typed ArrayOf*
// constructors below, which fix elemKind correctly, so this is not
// exported.
func arrayValue(elemKind Kind, data any) Value {
	return Value{kind: KindArray, elemKind: elemKind, data: data}
}

func ArrayOfInt32(v []int32) Value                  { return arrayValue(KindInt32, append([]int32(nil), v...)) }
func ArrayOfFloat32(v []float32) Value              { return arrayValue(KindFloat32, append([]float32(nil), v...)) }
func ArrayOfBool(v []bool) Value                    { return arrayValue(KindBool, append([]bool(nil), v...)) }
func ArrayOfString(v []string) Value                { return arrayValue(KindString, append([]string(nil), v...)) }
func ArrayOfTimeSpan(v []dmxvalue.TimeSpan) Value   { return arrayValue(KindTimeSpan, append([]dmxvalue.TimeSpan(nil), v...)) }
func ArrayOfColor(v []dmxvalue.Color) Value         { return arrayValue(KindColor, append([]dmxvalue.Color(nil), v...)) }
func ArrayOfVector2(v []dmxvalue.Vector2) Value     { return arrayValue(KindVector2, append([]dmxvalue.Vector2(nil), v...)) }
func ArrayOfVector3(v []dmxvalue.Vector3) Value     { return arrayValue(KindVector3, append([]dmxvalue.Vector3(nil), v...)) }
func ArrayOfAngle(v []dmxvalue.Angle) Value         { return arrayValue(KindAngle, append([]dmxvalue.Angle(nil), v...)) }
func ArrayOfVector4(v []dmxvalue.Vector4) Value     { return arrayValue(KindVector4, append([]dmxvalue.Vector4(nil), v...)) }
func ArrayOfQuaternion(v []dmxvalue.Quaternion) Value {
	return arrayValue(KindQuaternion, append([]dmxvalue.Quaternion(nil), v...))
}
func ArrayOfMatrix4(v []dmxvalue.Matrix4) Value { return arrayValue(KindMatrix4, append([]dmxvalue.Matrix4(nil), v...)) }
func ArrayOfBinary(v [][]byte) Value {
	cp := make([][]byte, len(v))
	for i, b := range v {
		cp[i] = append([]byte(nil), b...)
	}
	return arrayValue(KindBinary, cp)
}

// Get retrieves the concrete payload of v as T, the second return
// reporting whether v actually holds a T. This is the typed-accessor
// mechanism the spec requires (Element.Get<T>/GetArray<T>): there is no
// reflection-based coercion, just a direct type assertion against the
// stored payload, matching how Value itself is just a kind tag plus an
// `any` in the teacher package.
func Get[T any](v Value) (T, bool) {
	t, ok := v.data.(T)
	return t, ok
}

// element returns the stored *Element for a KindElement value, or nil if
// v is not a KindElement value at all (distinct from a nil reference,
// which is also KindElement with a nil payload).
func (v Value) element() (*Element, bool) {
	if v.kind != KindElement {
		return nil, false
	}
	e, _ := v.data.(*Element)
	return e, true
}

func (v Value) elementArray() (*ElementArray, bool) {
	if v.kind != KindElementArray {
		return nil, false
	}
	a, ok := v.data.(*ElementArray)
	return a, ok
}

// Equal reports bitwise/structural equality with no epsilon tolerance
// (spec §4.1); test suites that want tolerant float comparison apply it
// themselves.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.elemKind != o.elemKind {
		return false
	}

	switch v.kind {
	case KindElement:
		ve, _ := v.element()
		oe, _ := o.element()
		if ve == nil || oe == nil {
			return ve == oe
		}
		return ve.ID() == oe.ID()
	case KindElementArray:
		va, _ := v.elementArray()
		oa, _ := o.elementArray()
		return va.equal(oa)
	default:
		return equalPayload(v.kind, v.data, o.data)
	}
}

func equalPayload(k Kind, a, b any) bool {
	switch k {
	case KindInt32:
		return a.(int32) == b.(int32)
	case KindFloat32:
		return a.(float32) == b.(float32)
	case KindBool:
		return a.(bool) == b.(bool)
	case KindString:
		return a.(string) == b.(string)
	case KindBinary:
		ab, bb := a.([]byte), b.([]byte)
		if len(ab) != len(bb) {
			return false
		}
		for i := range ab {
			if ab[i] != bb[i] {
				return false
			}
		}
		return true
	case KindTimeSpan:
		return a.(dmxvalue.TimeSpan).Equal(b.(dmxvalue.TimeSpan))
	case KindColor:
		return a.(dmxvalue.Color).Equal(b.(dmxvalue.Color))
	case KindVector2:
		return a.(dmxvalue.Vector2).Equal(b.(dmxvalue.Vector2))
	case KindVector3:
		return a.(dmxvalue.Vector3).Equal(b.(dmxvalue.Vector3))
	case KindAngle:
		return a.(dmxvalue.Angle).Equal(b.(dmxvalue.Angle))
	case KindVector4:
		return a.(dmxvalue.Vector4).Equal(b.(dmxvalue.Vector4))
	case KindQuaternion:
		return a.(dmxvalue.Quaternion).Equal(b.(dmxvalue.Quaternion))
	case KindMatrix4:
		return a.(dmxvalue.Matrix4).Equal(b.(dmxvalue.Matrix4))
	case KindArray:
		return equalArrayPayload(a, b)
	default:
		return false
	}
}

func equalArrayPayload(a, b any) bool {
	switch av := a.(type) {
	case []int32:
		bv, ok := b.([]int32)
		return ok && slicesEqual(av, bv, func(x, y int32) bool { return x == y })
	case []float32:
		bv, ok := b.([]float32)
		return ok && slicesEqual(av, bv, func(x, y float32) bool { return x == y })
	case []bool:
		bv, ok := b.([]bool)
		return ok && slicesEqual(av, bv, func(x, y bool) bool { return x == y })
	case []string:
		bv, ok := b.([]string)
		return ok && slicesEqual(av, bv, func(x, y string) bool { return x == y })
	case [][]byte:
		bv, ok := b.([][]byte)
		return ok && slicesEqual(av, bv, func(x, y []byte) bool { return equalPayload(KindBinary, x, y) })
	case []dmxvalue.TimeSpan:
		bv, ok := b.([]dmxvalue.TimeSpan)
		return ok && slicesEqual(av, bv, func(x, y dmxvalue.TimeSpan) bool { return x.Equal(y) })
	case []dmxvalue.Color:
		bv, ok := b.([]dmxvalue.Color)
		return ok && slicesEqual(av, bv, func(x, y dmxvalue.Color) bool { return x.Equal(y) })
	case []dmxvalue.Vector2:
		bv, ok := b.([]dmxvalue.Vector2)
		return ok && slicesEqual(av, bv, func(x, y dmxvalue.Vector2) bool { return x.Equal(y) })
	case []dmxvalue.Vector3:
		bv, ok := b.([]dmxvalue.Vector3)
		return ok && slicesEqual(av, bv, func(x, y dmxvalue.Vector3) bool { return x.Equal(y) })
	case []dmxvalue.Angle:
		bv, ok := b.([]dmxvalue.Angle)
		return ok && slicesEqual(av, bv, func(x, y dmxvalue.Angle) bool { return x.Equal(y) })
	case []dmxvalue.Vector4:
		bv, ok := b.([]dmxvalue.Vector4)
		return ok && slicesEqual(av, bv, func(x, y dmxvalue.Vector4) bool { return x.Equal(y) })
	case []dmxvalue.Quaternion:
		bv, ok := b.([]dmxvalue.Quaternion)
		return ok && slicesEqual(av, bv, func(x, y dmxvalue.Quaternion) bool { return x.Equal(y) })
	case []dmxvalue.Matrix4:
		bv, ok := b.([]dmxvalue.Matrix4)
		return ok && slicesEqual(av, bv, func(x, y dmxvalue.Matrix4) bool { return x.Equal(y) })
	default:
		return false
	}
}

func slicesEqual[T any](a, b []T, eq func(T, T) bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !eq(a[i], b[i]) {
			return false
		}
	}
	return true
}

// sum writes a stable content hash of v's payload to h. It hashes the raw
// bit pattern of floats (via math.Float32bits) rather than a
// NaN-normalizing scheme -- see SPEC_FULL.md §9 decision 3: this matches
// the teacher package's own blake2b-over-encoded-bytes content hash,
// which makes no attempt to canonicalize NaN or signed zero.
func (v Value) sum(h hash.Hash) {
	var buf [8]byte
	writeU32 := func(x uint32) {
		binary.LittleEndian.PutUint32(buf[:4], x)
		h.Write(buf[:4])
	}
	writeFloat := func(f float32) { writeU32(math.Float32bits(f)) }

	switch v.kind {
	case KindElement:
		e, _ := v.element()
		if e != nil {
			h.Write([]byte(e.ID().String()))
		}
	case KindElementArray:
		a, _ := v.elementArray()
		if a != nil {
			for _, e := range a.elems {
				if e != nil {
					h.Write([]byte(e.ID().String()))
				}
				h.Write([]byte{0})
			}
		}
	case KindInt32:
		writeU32(uint32(v.data.(int32)))
	case KindFloat32:
		writeFloat(v.data.(float32))
	case KindBool:
		if v.data.(bool) {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case KindString:
		h.Write([]byte(v.data.(string)))
	case KindBinary:
		h.Write(v.data.([]byte))
	case KindTimeSpan:
		writeFloat(float32(v.data.(dmxvalue.TimeSpan).Seconds()))
	case KindColor:
		c := v.data.(dmxvalue.Color)
		h.Write([]byte{c.R, c.G, c.B, c.A})
	case KindVector2, KindVector3, KindAngle, KindVector4, KindQuaternion, KindMatrix4:
		for _, f := range v.data.(hasComponents).Components() {
			writeFloat(f)
		}
	case KindArray:
		v.sumArray(h, writeFloat, writeU32)
	}
}

// hasComponents is satisfied by every geometric value type in dmxvalue;
// it lets sum/sumArray walk an array of any one of them uniformly instead
// of repeating a type switch per geometric kind.
type hasComponents interface{ Components() []float32 }

func (v Value) sumArray(h hash.Hash, writeFloat func(float32), writeU32 func(uint32)) {
	switch av := v.data.(type) {
	case []int32:
		for _, x := range av {
			writeU32(uint32(x))
		}
	case []float32:
		for _, x := range av {
			writeFloat(x)
		}
	case []bool:
		for _, x := range av {
			if x {
				h.Write([]byte{1})
			} else {
				h.Write([]byte{0})
			}
		}
	case []string:
		for _, x := range av {
			h.Write([]byte(x))
			h.Write([]byte{0})
		}
	case [][]byte:
		for _, x := range av {
			h.Write(x)
			h.Write([]byte{0})
		}
	case []dmxvalue.TimeSpan:
		for _, x := range av {
			writeFloat(float32(x.Seconds()))
		}
	case []dmxvalue.Color:
		for _, x := range av {
			h.Write([]byte{x.R, x.G, x.B, x.A})
		}
	default:
		for _, c := range arrayComponents(av) {
			writeFloat(c)
		}
	}
}

// arrayComponents flattens an array of one of the remaining geometric
// kinds (Vector2/3/4, Angle, Quaternion, Matrix4) into its components.
func arrayComponents(av any) []float32 {
	var out []float32
	switch s := av.(type) {
	case []dmxvalue.Vector2:
		for _, x := range s {
			out = append(out, x.Components()...)
		}
	case []dmxvalue.Vector3:
		for _, x := range s {
			out = append(out, x.Components()...)
		}
	case []dmxvalue.Angle:
		for _, x := range s {
			out = append(out, x.Components()...)
		}
	case []dmxvalue.Vector4:
		for _, x := range s {
			out = append(out, x.Components()...)
		}
	case []dmxvalue.Quaternion:
		for _, x := range s {
			out = append(out, x.Components()...)
		}
	case []dmxvalue.Matrix4:
		for _, x := range s {
			out = append(out, x.Components()...)
		}
	}
	return out
}

// CAS renders a base58 blake2b-256 digest of v, suitable for
// content-addressed dedup of attribute values across a round trip. See
// Attr.CAS in the teacher package for the pattern this generalizes.
func (v Value) CAS() string {
	h, _ := blake2b.New256(nil)
	return v.casWith(h)
}

// casWith hashes v's kind tag and payload into h (already possibly primed
// with other context, e.g. an attribute name) and renders the result.
// Shared by Value.CAS and Attribute.CAS.
func (v Value) casWith(h hash.Hash) string {
	h.Write([]byte{byte(v.kind), byte(v.elemKind)})
	v.sum(h)
	return base58.Encode(h.Sum(nil))
}

// validate checks v against the closed-set predicate, returning an
// AttributeType error naming the offending kind if v somehow falls
// outside it. Every exported constructor above already produces a valid
// Value, so this only fires for Values built by a codec using internal
// helpers incorrectly, or via the zero Value.
func (v Value) validate() error {
	if !isDatamodelType(v.kind, v.elemKind) {
		return dmxerr.New(dmxerr.AttributeType, "value kind %s is not a legal attribute value", v.kind)
	}
	return nil
}
