package binary

import (
	"time"

	"github.com/fxamacker/cbor/v2"

	"miren.dev/dmx"
	"miren.dev/dmx/dmxerr"
	"miren.dev/dmx/dmxvalue"
)

// wireDatamodel is the CBOR envelope body (after the common ASCII header
// line). Elements are listed once each, in a stable order, so
// cross-references resolve purely by id regardless of declaration order
// (spec §6: "Element references inside attributes are by GUID ... or by
// element index; stubs result from unresolved GUIDs").
type wireDatamodel struct {
	Root     string        `cbor:"root"`
	Elements []wireElement `cbor:"elements"`
}

type wireElement struct {
	Id        string          `cbor:"id"`
	ClassName string          `cbor:"class"`
	Name      string          `cbor:"name"`
	Attrs     []wireAttribute `cbor:"attrs"`
}

// wireAttribute carries a value whose concrete decoding depends on Kind:
// Element/ElementArray-kinded attributes store CBOR-encoded GUID text (a
// string, or a list of strings with "" for nil) in Payload; every other
// kind's Payload is a CBOR-encoded value the attribute-level codec
// understands (see encodeValue/decodeValue below), kept raw here so the binary
// codec can choose, per attrModeFor, to decode it immediately or install
// a deferred binding instead.
type wireAttribute struct {
	Name     string          `cbor:"name"`
	Kind     uint8           `cbor:"kind"`
	ElemKind uint8           `cbor:"elemKind,omitempty"`
	Payload  cbor.RawMessage `cbor:"payload"`
}

// wireMatrix4/wireTimeSpan substitute for dmxvalue types whose wire-
// relevant state lives in an unexported field; the dmxvalue package
// deliberately keeps Matrix4's backing array and TimeSpan's duration
// unexported (structural-equality value types, not serialization DTOs),
// so the codec converts through their exported accessors instead of
// relying on CBOR's default struct-field reflection.
type wireMatrix4 struct {
	C [16]float32 `cbor:"c"`
}

type wireTimeSpan struct {
	Nanos int64 `cbor:"nanos"`
}

func toWireMatrix4(m dmxvalue.Matrix4) wireMatrix4 {
	var w wireMatrix4
	copy(w.C[:], m.Components())
	return w
}

func fromWireMatrix4(w wireMatrix4) (dmxvalue.Matrix4, error) {
	return dmxvalue.NewMatrix4FromSeq(w.C[:])
}

func toWireTimeSpan(t dmxvalue.TimeSpan) wireTimeSpan {
	return wireTimeSpan{Nanos: int64(t.Duration())}
}

func fromWireTimeSpan(w wireTimeSpan) dmxvalue.TimeSpan {
	return dmxvalue.NewTimeSpan(time.Duration(w.Nanos))
}

// encodeValue renders a non-element dmx.Value's payload to its wire
// representation, ready for cbor.Marshal.
func encodeValue(k dmx.Kind, payload any) (any, error) {
	switch k {
	case dmx.KindInt32, dmx.KindFloat32, dmx.KindBool, dmx.KindString, dmx.KindBinary,
		dmx.KindColor, dmx.KindVector2, dmx.KindVector3, dmx.KindAngle,
		dmx.KindVector4, dmx.KindQuaternion:
		return payload, nil
	case dmx.KindTimeSpan:
		return toWireTimeSpan(payload.(dmxvalue.TimeSpan)), nil
	case dmx.KindMatrix4:
		return toWireMatrix4(payload.(dmxvalue.Matrix4)), nil
	default:
		return nil, dmxerr.New(dmxerr.AttributeType, "kind %s has no binary scalar encoding", k)
	}
}

func encodeArrayValue(elemKind dmx.Kind, payload any) (any, error) {
	switch elemKind {
	case dmx.KindInt32, dmx.KindFloat32, dmx.KindBool, dmx.KindString, dmx.KindBinary,
		dmx.KindColor, dmx.KindVector2, dmx.KindVector3, dmx.KindAngle, dmx.KindVector4, dmx.KindQuaternion:
		return payload, nil
	case dmx.KindTimeSpan:
		src := payload.([]dmxvalue.TimeSpan)
		out := make([]wireTimeSpan, len(src))
		for i, t := range src {
			out[i] = toWireTimeSpan(t)
		}
		return out, nil
	case dmx.KindMatrix4:
		src := payload.([]dmxvalue.Matrix4)
		out := make([]wireMatrix4, len(src))
		for i, m := range src {
			out[i] = toWireMatrix4(m)
		}
		return out, nil
	default:
		return nil, dmxerr.New(dmxerr.AttributeType, "kind %s has no binary array encoding", elemKind)
	}
}

// decodeValue unmarshals raw CBOR bytes for a scalar (non-array,
// non-element) attribute kind into a dmx.Value.
func decodeValue(k dmx.Kind, raw []byte) (dmx.Value, error) {
	switch k {
	case dmx.KindInt32:
		var v int32
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.Int32Value(v), nil
	case dmx.KindFloat32:
		var v float32
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.Float32Value(v), nil
	case dmx.KindBool:
		var v bool
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.BoolValue(v), nil
	case dmx.KindString:
		var v string
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.StringValue(v), nil
	case dmx.KindBinary:
		var v []byte
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.BinaryValue(v), nil
	case dmx.KindTimeSpan:
		var w wireTimeSpan
		if err := cbor.Unmarshal(raw, &w); err != nil {
			return dmx.Value{}, err
		}
		return dmx.TimeSpanValue(fromWireTimeSpan(w)), nil
	case dmx.KindColor:
		var v dmxvalue.Color
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.ColorValue(v), nil
	case dmx.KindVector2:
		var v dmxvalue.Vector2
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.Vector2Value(v), nil
	case dmx.KindVector3:
		var v dmxvalue.Vector3
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.Vector3Value(v), nil
	case dmx.KindAngle:
		var v dmxvalue.Angle
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.AngleValue(v), nil
	case dmx.KindVector4:
		var v dmxvalue.Vector4
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.Vector4Value(v), nil
	case dmx.KindQuaternion:
		var v dmxvalue.Quaternion
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.QuaternionValue(v), nil
	case dmx.KindMatrix4:
		var w wireMatrix4
		if err := cbor.Unmarshal(raw, &w); err != nil {
			return dmx.Value{}, err
		}
		m, err := fromWireMatrix4(w)
		if err != nil {
			return dmx.Value{}, dmxerr.Wrap(dmxerr.ValueDomain, err, "decoding matrix4 value")
		}
		return dmx.Matrix4Value(m), nil
	default:
		return dmx.Value{}, dmxerr.New(dmxerr.AttributeType, "kind %s has no binary scalar decoding", k)
	}
}

func decodeArrayValue(elemKind dmx.Kind, raw []byte) (dmx.Value, error) {
	switch elemKind {
	case dmx.KindInt32:
		var v []int32
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.ArrayOfInt32(v), nil
	case dmx.KindFloat32:
		var v []float32
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.ArrayOfFloat32(v), nil
	case dmx.KindBool:
		var v []bool
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.ArrayOfBool(v), nil
	case dmx.KindString:
		var v []string
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.ArrayOfString(v), nil
	case dmx.KindBinary:
		var v [][]byte
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.ArrayOfBinary(v), nil
	case dmx.KindTimeSpan:
		var w []wireTimeSpan
		if err := cbor.Unmarshal(raw, &w); err != nil {
			return dmx.Value{}, err
		}
		out := make([]dmxvalue.TimeSpan, len(w))
		for i, e := range w {
			out[i] = fromWireTimeSpan(e)
		}
		return dmx.ArrayOfTimeSpan(out), nil
	case dmx.KindColor:
		var v []dmxvalue.Color
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.ArrayOfColor(v), nil
	case dmx.KindVector2:
		var v []dmxvalue.Vector2
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.ArrayOfVector2(v), nil
	case dmx.KindVector3:
		var v []dmxvalue.Vector3
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.ArrayOfVector3(v), nil
	case dmx.KindAngle:
		var v []dmxvalue.Angle
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.ArrayOfAngle(v), nil
	case dmx.KindVector4:
		var v []dmxvalue.Vector4
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.ArrayOfVector4(v), nil
	case dmx.KindQuaternion:
		var v []dmxvalue.Quaternion
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return dmx.Value{}, err
		}
		return dmx.ArrayOfQuaternion(v), nil
	case dmx.KindMatrix4:
		var w []wireMatrix4
		if err := cbor.Unmarshal(raw, &w); err != nil {
			return dmx.Value{}, err
		}
		out := make([]dmxvalue.Matrix4, len(w))
		for i, e := range w {
			m, err := fromWireMatrix4(e)
			if err != nil {
				return dmx.Value{}, dmxerr.Wrap(dmxerr.ValueDomain, err, "decoding matrix4_array element %d", i)
			}
			out[i] = m
		}
		return dmx.ArrayOfMatrix4(out), nil
	default:
		return dmx.Value{}, dmxerr.New(dmxerr.AttributeType, "kind %s has no binary array decoding", elemKind)
	}
}
