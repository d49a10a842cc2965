package dmx

import "fmt"

// Kind enumerates the closed set of attribute value kinds the spec admits:
// scalars, the geometric value types, element references, raw byte
// sequences, and arrays of any single one of the preceding scalar kinds.
// Element arrays are their own kind (see ElementArray) rather than an
// array-of-KindElement, because they carry ownership metadata a plain
// Value array does not need.
//
// This mirrors the teacher package's Value.Kind() switch-on-payload
// design (miren.dev/runtime/pkg/entity Attr/Value), generalized from its
// ~14 scalar kinds to this format's closed set, which additionally
// includes the geometric types and homogeneous arrays of them.
type Kind int

const (
	KindInvalid Kind = iota
	KindElement
	KindInt32
	KindFloat32
	KindBool
	KindString
	KindBinary
	KindTimeSpan
	KindColor
	KindVector2
	KindVector3
	KindAngle
	KindVector4
	KindQuaternion
	KindMatrix4
	KindElementArray
	KindArray
)

var kindNames = [...]string{
	KindInvalid:      "Invalid",
	KindElement:      "Element",
	KindInt32:        "Int32",
	KindFloat32:      "Float32",
	KindBool:         "Bool",
	KindString:       "String",
	KindBinary:       "Binary",
	KindTimeSpan:     "TimeSpan",
	KindColor:        "Color",
	KindVector2:      "Vector2",
	KindVector3:      "Vector3",
	KindAngle:        "Angle",
	KindVector4:      "Vector4",
	KindQuaternion:   "Quaternion",
	KindMatrix4:      "Matrix4",
	KindElementArray: "ElementArray",
	KindArray:        "Array",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsScalarArrayElement reports whether k is legal as the element kind of a
// KindArray value. Element references, element arrays, and arrays
// themselves are excluded: arrays are homogeneous sequences of a single
// scalar kind and nesting is forbidden (spec §3).
func (k Kind) IsScalarArrayElement() bool {
	switch k {
	case KindInt32, KindFloat32, KindBool, KindString, KindBinary,
		KindTimeSpan, KindColor, KindVector2, KindVector3, KindAngle,
		KindVector4, KindQuaternion, KindMatrix4:
		return true
	default:
		return false
	}
}

// isDatamodelType is the membership predicate the spec calls out in §4.1:
// it must recognize every scalar kind, KindElement, KindElementArray, and
// KindArray built over a legal element kind, and reject everything else.
// The exported constructors in value.go only ever produce kinds that pass
// it, so isDatamodelType is really just "was this Value built by one of
// our constructors", checked defensively (by Value.validate) for values
// that arrive via reflection-free decode paths in codecs, such as the
// zero Value.
func isDatamodelType(k Kind, elemKind Kind) bool {
	switch k {
	case KindElement, KindInt32, KindFloat32, KindBool, KindString, KindBinary,
		KindTimeSpan, KindColor, KindVector2, KindVector3, KindAngle,
		KindVector4, KindQuaternion, KindMatrix4, KindElementArray:
		return true
	case KindArray:
		return elemKind.IsScalarArrayElement()
	default:
		return false
	}
}
