// Package keyvalues2 implements the textual "keyvalues2" v1 encoding
// (spec §6): elements as `"className" { ... }` blocks, attributes as
// `"name" "type" "value"` or `"name" "type" [ ... ]`. It is fully eager
// -- keyvalues2 has no deferred-decode story, matching the spec's call
// that "Deferred decoding is not applicable" for this encoding.
package keyvalues2

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"miren.dev/dmx"
	"miren.dev/dmx/dmxerr"
	"miren.dev/dmx/dmxvalue"
)

const (
	encodingName = "keyvalues2"
	version      = 1
)

func init() {
	dmx.RegisterCodec(encodingName, version, func() dmx.Codec { return New() })
}

// Codec implements dmx.Codec for keyvalues2 v1.
type Codec struct{}

// New returns a fresh keyvalues2 codec instance.
func New() *Codec { return &Codec{} }

func (c *Codec) Identity() string { return fmt.Sprintf("%s/%d", encodingName, version) }

// Encode writes dm's root element and everything reachable from it.
// Elements unreachable from Root are not written; a datamodel relying on
// RemoveElement-orphaned or otherwise disconnected elements surviving a
// round trip should reattach them under Root first.
func (c *Codec) Encode(dm *dmx.Datamodel, w io.Writer, wantVersion int) error {
	if wantVersion != version {
		return dmxerr.New(dmxerr.UnsupportedFormat, "keyvalues2 encoder only supports version %d, got %d", version, wantVersion)
	}
	root := dm.Root()
	if root == nil {
		return dmxerr.New(dmxerr.InvalidOperation, "datamodel has no root element to encode")
	}

	if err := dmx.WriteHeader(w, encodingName, version, dm.Format(), dm.FormatVersion()); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	enc := &encoder{w: bw, written: map[dmx.Id]bool{}}
	if err := enc.element(root); err != nil {
		return err
	}
	return bw.Flush()
}

// Decode parses a keyvalues2 body (with the header line already consumed
// by the core) into a fresh Datamodel. mode is accepted for interface
// conformance but has no effect: every value is materialized eagerly.
func (c *Codec) Decode(r io.Reader, mode dmx.DeferredMode) (*dmx.Datamodel, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, dmxerr.Wrap(dmxerr.UnsupportedFormat, err, "reading keyvalues2 body")
	}

	toks, err := tokenize(body)
	if err != nil {
		return nil, dmxerr.Wrap(dmxerr.UnsupportedFormat, err, "tokenizing keyvalues2 body")
	}

	dm := dmx.New("", 0)
	p := &parser{toks: toks, dm: dm}
	root, err := p.parseElement()
	if err != nil {
		return nil, err
	}
	if err := dm.SetRoot(root); err != nil {
		return nil, err
	}
	return dm, nil
}

// DeferredDecodeAttribute is never called for this codec: Decode never
// installs a deferred binding.
func (c *Codec) DeferredDecodeAttribute(*dmx.Datamodel, int64) (dmx.Value, error) {
	return dmx.Value{}, dmxerr.New(dmxerr.InvalidOperation, "keyvalues2 never defers attribute decoding")
}

var _ dmx.Codec = (*Codec)(nil)

// typeTag names the wire-format type for each scalar kind.
func typeTag(k dmx.Kind) (string, error) {
	switch k {
	case dmx.KindInt32:
		return "int", nil
	case dmx.KindFloat32:
		return "float", nil
	case dmx.KindBool:
		return "bool", nil
	case dmx.KindString:
		return "string", nil
	case dmx.KindBinary:
		return "binary", nil
	case dmx.KindTimeSpan:
		return "time", nil
	case dmx.KindColor:
		return "color", nil
	case dmx.KindVector2:
		return "vector2", nil
	case dmx.KindVector3:
		return "vector3", nil
	case dmx.KindAngle:
		return "angle", nil
	case dmx.KindVector4:
		return "vector4", nil
	case dmx.KindQuaternion:
		return "quaternion", nil
	case dmx.KindMatrix4:
		return "matrix4", nil
	default:
		return "", dmxerr.New(dmxerr.AttributeType, "kind %s has no keyvalues2 scalar tag", k)
	}
}

func tagToKind(tag string) (dmx.Kind, bool) {
	switch tag {
	case "int":
		return dmx.KindInt32, true
	case "float":
		return dmx.KindFloat32, true
	case "bool":
		return dmx.KindBool, true
	case "string":
		return dmx.KindString, true
	case "binary":
		return dmx.KindBinary, true
	case "time":
		return dmx.KindTimeSpan, true
	case "color":
		return dmx.KindColor, true
	case "vector2":
		return dmx.KindVector2, true
	case "vector3":
		return dmx.KindVector3, true
	case "angle":
		return dmx.KindAngle, true
	case "vector4":
		return dmx.KindVector4, true
	case "quaternion":
		return dmx.KindQuaternion, true
	case "matrix4":
		return dmx.KindMatrix4, true
	default:
		return dmx.KindInvalid, false
	}
}

// scalarText renders a single scalar payload (as returned by Value.Any())
// to its keyvalues2 text form.
func scalarText(k dmx.Kind, payload any) (string, error) {
	switch k {
	case dmx.KindInt32:
		return strconv.FormatInt(int64(payload.(int32)), 10), nil
	case dmx.KindFloat32:
		return strconv.FormatFloat(float64(payload.(float32)), 'g', -1, 32), nil
	case dmx.KindBool:
		if payload.(bool) {
			return "1", nil
		}
		return "0", nil
	case dmx.KindString:
		return payload.(string), nil
	case dmx.KindBinary:
		return hex.EncodeToString(payload.([]byte)), nil
	case dmx.KindTimeSpan:
		return payload.(dmxvalue.TimeSpan).String(), nil
	case dmx.KindColor:
		return payload.(dmxvalue.Color).String(), nil
	case dmx.KindVector2:
		return payload.(dmxvalue.Vector2).String(), nil
	case dmx.KindVector3:
		return payload.(dmxvalue.Vector3).String(), nil
	case dmx.KindAngle:
		return payload.(dmxvalue.Angle).String(), nil
	case dmx.KindVector4:
		return payload.(dmxvalue.Vector4).String(), nil
	case dmx.KindQuaternion:
		return payload.(dmxvalue.Quaternion).String(), nil
	case dmx.KindMatrix4:
		return payload.(dmxvalue.Matrix4).String(), nil
	default:
		return "", dmxerr.New(dmxerr.AttributeType, "kind %s is not a keyvalues2 scalar", k)
	}
}

// parseScalar parses text back into the Go payload type for kind k.
func parseScalar(k dmx.Kind, text string) (any, error) {
	switch k {
	case dmx.KindInt32:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, dmxerr.Wrap(dmxerr.UnsupportedFormat, err, "parsing int value %q", text)
		}
		return int32(n), nil
	case dmx.KindFloat32:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, dmxerr.Wrap(dmxerr.UnsupportedFormat, err, "parsing float value %q", text)
		}
		return float32(f), nil
	case dmx.KindBool:
		return text != "0" && text != "", nil
	case dmx.KindString:
		return text, nil
	case dmx.KindBinary:
		b, err := hex.DecodeString(text)
		if err != nil {
			return nil, dmxerr.Wrap(dmxerr.UnsupportedFormat, err, "parsing binary value %q", text)
		}
		return b, nil
	case dmx.KindTimeSpan:
		t, err := dmxvalue.ParseTimeSpan(text)
		if err != nil {
			return nil, dmxerr.Wrap(dmxerr.ValueDomain, err, "parsing time value %q", text)
		}
		return t, nil
	case dmx.KindColor:
		c, err := dmxvalue.ParseColor(text)
		if err != nil {
			return nil, dmxerr.Wrap(dmxerr.ValueDomain, err, "parsing color value %q", text)
		}
		return c, nil
	case dmx.KindVector2:
		v, err := dmxvalue.ParseVector2(text)
		if err != nil {
			return nil, dmxerr.Wrap(dmxerr.ValueDomain, err, "parsing vector2 value %q", text)
		}
		return v, nil
	case dmx.KindVector3:
		v, err := dmxvalue.ParseVector3(text)
		if err != nil {
			return nil, dmxerr.Wrap(dmxerr.ValueDomain, err, "parsing vector3 value %q", text)
		}
		return v, nil
	case dmx.KindAngle:
		a, err := dmxvalue.ParseAngle(text)
		if err != nil {
			return nil, dmxerr.Wrap(dmxerr.ValueDomain, err, "parsing angle value %q", text)
		}
		return a, nil
	case dmx.KindVector4:
		v, err := dmxvalue.ParseVector4(text)
		if err != nil {
			return nil, dmxerr.Wrap(dmxerr.ValueDomain, err, "parsing vector4 value %q", text)
		}
		return v, nil
	case dmx.KindQuaternion:
		q, err := dmxvalue.ParseQuaternion(text)
		if err != nil {
			return nil, dmxerr.Wrap(dmxerr.ValueDomain, err, "parsing quaternion value %q", text)
		}
		return q, nil
	case dmx.KindMatrix4:
		m, err := dmxvalue.ParseMatrix4(text)
		if err != nil {
			return nil, dmxerr.Wrap(dmxerr.ValueDomain, err, "parsing matrix4 value %q", text)
		}
		return m, nil
	default:
		return nil, dmxerr.New(dmxerr.AttributeType, "kind %s is not a keyvalues2 scalar", k)
	}
}

// scalarValue builds the dmx.Value for a single scalar of kind k from a
// payload returned by parseScalar; an unknown kind yields the zero Value.
func scalarValue(k dmx.Kind, payload any) dmx.Value {
	switch k {
	case dmx.KindInt32:
		return dmx.Int32Value(payload.(int32))
	case dmx.KindFloat32:
		return dmx.Float32Value(payload.(float32))
	case dmx.KindBool:
		return dmx.BoolValue(payload.(bool))
	case dmx.KindString:
		return dmx.StringValue(payload.(string))
	case dmx.KindBinary:
		return dmx.BinaryValue(payload.([]byte))
	case dmx.KindTimeSpan:
		return dmx.TimeSpanValue(payload.(dmxvalue.TimeSpan))
	case dmx.KindColor:
		return dmx.ColorValue(payload.(dmxvalue.Color))
	case dmx.KindVector2:
		return dmx.Vector2Value(payload.(dmxvalue.Vector2))
	case dmx.KindVector3:
		return dmx.Vector3Value(payload.(dmxvalue.Vector3))
	case dmx.KindAngle:
		return dmx.AngleValue(payload.(dmxvalue.Angle))
	case dmx.KindVector4:
		return dmx.Vector4Value(payload.(dmxvalue.Vector4))
	case dmx.KindQuaternion:
		return dmx.QuaternionValue(payload.(dmxvalue.Quaternion))
	case dmx.KindMatrix4:
		return dmx.Matrix4Value(payload.(dmxvalue.Matrix4))
	default:
		return dmx.Value{}
	}
}

func buildArrayValue(k dmx.Kind, payloads []any) (dmx.Value, error) {
	switch k {
	case dmx.KindInt32:
		out := make([]int32, len(payloads))
		for i, p := range payloads {
			out[i] = p.(int32)
		}
		return dmx.ArrayOfInt32(out), nil
	case dmx.KindFloat32:
		out := make([]float32, len(payloads))
		for i, p := range payloads {
			out[i] = p.(float32)
		}
		return dmx.ArrayOfFloat32(out), nil
	case dmx.KindBool:
		out := make([]bool, len(payloads))
		for i, p := range payloads {
			out[i] = p.(bool)
		}
		return dmx.ArrayOfBool(out), nil
	case dmx.KindString:
		out := make([]string, len(payloads))
		for i, p := range payloads {
			out[i] = p.(string)
		}
		return dmx.ArrayOfString(out), nil
	case dmx.KindBinary:
		out := make([][]byte, len(payloads))
		for i, p := range payloads {
			out[i] = p.([]byte)
		}
		return dmx.ArrayOfBinary(out), nil
	case dmx.KindTimeSpan:
		out := make([]dmxvalue.TimeSpan, len(payloads))
		for i, p := range payloads {
			out[i] = p.(dmxvalue.TimeSpan)
		}
		return dmx.ArrayOfTimeSpan(out), nil
	case dmx.KindColor:
		out := make([]dmxvalue.Color, len(payloads))
		for i, p := range payloads {
			out[i] = p.(dmxvalue.Color)
		}
		return dmx.ArrayOfColor(out), nil
	case dmx.KindVector2:
		out := make([]dmxvalue.Vector2, len(payloads))
		for i, p := range payloads {
			out[i] = p.(dmxvalue.Vector2)
		}
		return dmx.ArrayOfVector2(out), nil
	case dmx.KindVector3:
		out := make([]dmxvalue.Vector3, len(payloads))
		for i, p := range payloads {
			out[i] = p.(dmxvalue.Vector3)
		}
		return dmx.ArrayOfVector3(out), nil
	case dmx.KindAngle:
		out := make([]dmxvalue.Angle, len(payloads))
		for i, p := range payloads {
			out[i] = p.(dmxvalue.Angle)
		}
		return dmx.ArrayOfAngle(out), nil
	case dmx.KindVector4:
		out := make([]dmxvalue.Vector4, len(payloads))
		for i, p := range payloads {
			out[i] = p.(dmxvalue.Vector4)
		}
		return dmx.ArrayOfVector4(out), nil
	case dmx.KindQuaternion:
		out := make([]dmxvalue.Quaternion, len(payloads))
		for i, p := range payloads {
			out[i] = p.(dmxvalue.Quaternion)
		}
		return dmx.ArrayOfQuaternion(out), nil
	case dmx.KindMatrix4:
		out := make([]dmxvalue.Matrix4, len(payloads))
		for i, p := range payloads {
			out[i] = p.(dmxvalue.Matrix4)
		}
		return dmx.ArrayOfMatrix4(out), nil
	default:
		return dmx.Value{}, dmxerr.New(dmxerr.AttributeType, "kind %s has no keyvalues2 array form", k)
	}
}

// arrayElementTexts renders each element of a KindArray value's payload
// to keyvalues2 text, preserving order.
func arrayElementTexts(v dmx.Value) ([]string, error) {
	k := v.ElemKind()
	switch payload := v.Any().(type) {
	case []int32:
		return mapTexts(k, len(payload), func(i int) any { return payload[i] })
	case []float32:
		return mapTexts(k, len(payload), func(i int) any { return payload[i] })
	case []bool:
		return mapTexts(k, len(payload), func(i int) any { return payload[i] })
	case []string:
		return mapTexts(k, len(payload), func(i int) any { return payload[i] })
	case [][]byte:
		return mapTexts(k, len(payload), func(i int) any { return payload[i] })
	case []dmxvalue.TimeSpan:
		return mapTexts(k, len(payload), func(i int) any { return payload[i] })
	case []dmxvalue.Color:
		return mapTexts(k, len(payload), func(i int) any { return payload[i] })
	case []dmxvalue.Vector2:
		return mapTexts(k, len(payload), func(i int) any { return payload[i] })
	case []dmxvalue.Vector3:
		return mapTexts(k, len(payload), func(i int) any { return payload[i] })
	case []dmxvalue.Angle:
		return mapTexts(k, len(payload), func(i int) any { return payload[i] })
	case []dmxvalue.Vector4:
		return mapTexts(k, len(payload), func(i int) any { return payload[i] })
	case []dmxvalue.Quaternion:
		return mapTexts(k, len(payload), func(i int) any { return payload[i] })
	case []dmxvalue.Matrix4:
		return mapTexts(k, len(payload), func(i int) any { return payload[i] })
	default:
		return nil, dmxerr.New(dmxerr.AttributeType, "unrecognized array payload for kind %s", k)
	}
}

func mapTexts(k dmx.Kind, n int, at func(int) any) ([]string, error) {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		t, err := scalarText(k, at(i))
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
