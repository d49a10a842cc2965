// Package dmxvalue holds the geometric and scalar value types that make up
// the closed set of kinds a DMX attribute may carry: colors, vectors,
// angles, quaternions, matrices and timespans. Every type here is a plain
// value (copy-by-value, structural equality); none of them reach back into
// an element graph, which keeps this package importable by both the core
// attribute/element model and the wire codecs without a cycle.
package dmxvalue

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DomainErr is returned by constructors in this package when a caller
// supplies a component sequence of the wrong length, and by the Parse*
// functions on malformed text. The codecs wrap this into a
// dmxerr.ValueDomain error; this package itself stays independent
// of dmxerr so it can be used in isolation (e.g. from a codec that only
// needs the value types, not the element graph).
var DomainErr = errors.New("value out of domain")

func domainErrorf(format string, args ...any) error {
	return errors.Wrapf(DomainErr, format, args...)
}

// floatSeq cuts a source sequence to exactly n components, failing if
// the source is shorter than n (it never pads). Longer sequences are
// truncated, matching the "lazy sequence of floats" constructor contract
// in the spec: callers may hand in an iterator-backed slice and only the
// first n values are consumed.
func floatSeq(name string, n int, src []float32) ([]float32, error) {
	if len(src) < n {
		return nil, domainErrorf("%s requires %d components, got %d", name, n, len(src))
	}
	return src[:n], nil
}

// Vector2 is a 2-component float vector.
type Vector2 struct {
	X, Y float32
}

func NewVector2(x, y float32) Vector2 { return Vector2{x, y} }

// Vector2FromSeq builds a Vector2 from the first 2 floats of src.
func Vector2FromSeq(src []float32) (Vector2, error) {
	c, err := floatSeq("Vector2", 2, src)
	if err != nil {
		return Vector2{}, err
	}
	return Vector2{c[0], c[1]}, nil
}

func (v Vector2) Components() []float32 { return []float32{v.X, v.Y} }

func (v Vector2) Add(o Vector2) Vector2 { return Vector2{v.X + o.X, v.Y + o.Y} }
func (v Vector2) Sub(o Vector2) Vector2 { return Vector2{v.X - o.X, v.Y - o.Y} }
func (v Vector2) Scale(s float32) Vector2 { return Vector2{v.X * s, v.Y * s} }
func (v Vector2) Div(s float32) Vector2   { return Vector2{v.X / s, v.Y / s} }
func (v Vector2) Len() float32            { return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y))) }

// Normalise scales v in place by 1/len, matching the spec's "normalise
// operation that scales in place by 1/len" contract (Vector2 is a value
// type in Go, so "in place" means the receiver's returned copy; callers
// assign the result back, e.g. v = v.Normalise()).
func (v Vector2) Normalise() Vector2 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Div(l)
}

func (v Vector2) Equal(o Vector2) bool { return v.X == o.X && v.Y == o.Y }

func (v Vector2) String() string {
	return fmt.Sprintf("%s %s", formatFloat(v.X), formatFloat(v.Y))
}

func ParseVector2(s string) (Vector2, error) {
	c, err := parseFloats(s, 2)
	if err != nil {
		return Vector2{}, err
	}
	return Vector2{c[0], c[1]}, nil
}

// Vector3 is a 3-component float vector, also the backing representation
// for Angle (see Angle below).
type Vector3 struct {
	X, Y, Z float32
}

func NewVector3(x, y, z float32) Vector3 { return Vector3{x, y, z} }

func Vector3FromSeq(src []float32) (Vector3, error) {
	c, err := floatSeq("Vector3", 3, src)
	if err != nil {
		return Vector3{}, err
	}
	return Vector3{c[0], c[1], c[2]}, nil
}

func (v Vector3) Components() []float32 { return []float32{v.X, v.Y, v.Z} }

func (v Vector3) Add(o Vector3) Vector3   { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector3) Sub(o Vector3) Vector3   { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector3) Scale(s float32) Vector3 { return Vector3{v.X * s, v.Y * s, v.Z * s} }
func (v Vector3) Div(s float32) Vector3   { return Vector3{v.X / s, v.Y / s, v.Z / s} }
func (v Vector3) Len() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
}

func (v Vector3) Normalise() Vector3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Div(l)
}

func (v Vector3) Equal(o Vector3) bool { return v.X == o.X && v.Y == o.Y && v.Z == o.Z }

func (v Vector3) String() string {
	return fmt.Sprintf("%s %s %s", formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z))
}

func ParseVector3(s string) (Vector3, error) {
	c, err := parseFloats(s, 3)
	if err != nil {
		return Vector3{}, err
	}
	return Vector3{c[0], c[1], c[2]}, nil
}

// Angle is a Vector3 distinguished only by tag (see spec §3): it carries
// the same three components but is a distinct attribute kind from Vector3
// so that encoders/decoders and typed accessors don't confuse the two.
type Angle Vector3

func NewAngle(pitch, yaw, roll float32) Angle { return Angle{pitch, yaw, roll} }

func AngleFromSeq(src []float32) (Angle, error) {
	v, err := Vector3FromSeq(src)
	return Angle(v), err
}

func (a Angle) Components() []float32 { return Vector3(a).Components() }
func (a Angle) Equal(o Angle) bool    { return Vector3(a).Equal(Vector3(o)) }
func (a Angle) String() string        { return Vector3(a).String() }

func ParseAngle(s string) (Angle, error) {
	v, err := ParseVector3(s)
	return Angle(v), err
}

// Vector4 is a 4-component float vector.
type Vector4 struct {
	X, Y, Z, W float32
}

func NewVector4(x, y, z, w float32) Vector4 { return Vector4{x, y, z, w} }

func Vector4FromSeq(src []float32) (Vector4, error) {
	c, err := floatSeq("Vector4", 4, src)
	if err != nil {
		return Vector4{}, err
	}
	return Vector4{c[0], c[1], c[2], c[3]}, nil
}

func (v Vector4) Components() []float32 { return []float32{v.X, v.Y, v.Z, v.W} }

func (v Vector4) Add(o Vector4) Vector4 {
	return Vector4{v.X + o.X, v.Y + o.Y, v.Z + o.Z, v.W + o.W}
}
func (v Vector4) Sub(o Vector4) Vector4 {
	return Vector4{v.X - o.X, v.Y - o.Y, v.Z - o.Z, v.W - o.W}
}
func (v Vector4) Scale(s float32) Vector4 { return Vector4{v.X * s, v.Y * s, v.Z * s, v.W * s} }
func (v Vector4) Div(s float32) Vector4   { return Vector4{v.X / s, v.Y / s, v.Z / s, v.W / s} }
func (v Vector4) Len() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z + v.W*v.W)))
}

func (v Vector4) Normalise() Vector4 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Div(l)
}

func (v Vector4) Equal(o Vector4) bool {
	return v.X == o.X && v.Y == o.Y && v.Z == o.Z && v.W == o.W
}

func (v Vector4) String() string {
	return fmt.Sprintf("%s %s %s %s", formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z), formatFloat(v.W))
}

func ParseVector4(s string) (Vector4, error) {
	c, err := parseFloats(s, 4)
	if err != nil {
		return Vector4{}, err
	}
	return Vector4{c[0], c[1], c[2], c[3]}, nil
}

// Quaternion is a 4-component rotation value (x, y, z, w).
type Quaternion struct {
	X, Y, Z, W float32
}

func NewQuaternion(x, y, z, w float32) Quaternion { return Quaternion{x, y, z, w} }

func QuaternionFromSeq(src []float32) (Quaternion, error) {
	c, err := floatSeq("Quaternion", 4, src)
	if err != nil {
		return Quaternion{}, err
	}
	return Quaternion{c[0], c[1], c[2], c[3]}, nil
}

func (q Quaternion) Components() []float32 { return []float32{q.X, q.Y, q.Z, q.W} }

func (q Quaternion) Add(o Quaternion) Quaternion {
	return Quaternion{q.X + o.X, q.Y + o.Y, q.Z + o.Z, q.W + o.W}
}
func (q Quaternion) Sub(o Quaternion) Quaternion {
	return Quaternion{q.X - o.X, q.Y - o.Y, q.Z - o.Z, q.W - o.W}
}
func (q Quaternion) Scale(s float32) Quaternion {
	return Quaternion{q.X * s, q.Y * s, q.Z * s, q.W * s}
}
func (q Quaternion) Div(s float32) Quaternion {
	return Quaternion{q.X / s, q.Y / s, q.Z / s, q.W / s}
}
func (q Quaternion) Len() float32 {
	return float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
}

func (q Quaternion) Normalise() Quaternion {
	l := q.Len()
	if l == 0 {
		return q
	}
	return q.Div(l)
}

func (q Quaternion) Equal(o Quaternion) bool {
	return q.X == o.X && q.Y == o.Y && q.Z == o.Z && q.W == o.W
}

func (q Quaternion) String() string {
	return fmt.Sprintf("%s %s %s %s", formatFloat(q.X), formatFloat(q.Y), formatFloat(q.Z), formatFloat(q.W))
}

func ParseQuaternion(s string) (Quaternion, error) {
	c, err := parseFloats(s, 4)
	if err != nil {
		return Quaternion{}, err
	}
	return Quaternion{c[0], c[1], c[2], c[3]}, nil
}

// Matrix4 is a 4x4 row-major matrix of floats.
type Matrix4 struct {
	m [16]float32
}

// NewMatrix4FromSeq builds a Matrix4 from exactly 16 floats (row-major).
// A sequence shorter than 16 fails with a domain error, per spec §8
// ("Matrix4 constructor from a 15-float sequence fails with
// ValueDomainError").
func NewMatrix4FromSeq(src []float32) (Matrix4, error) {
	c, err := floatSeq("Matrix4", 16, src)
	if err != nil {
		return Matrix4{}, err
	}
	var m Matrix4
	copy(m.m[:], c)
	return m, nil
}

// Identity returns the 4x4 identity matrix.
func Identity() Matrix4 {
	var m Matrix4
	for i := 0; i < 4; i++ {
		m.m[i*4+i] = 1
	}
	return m
}

// At returns the element at row r, column c (0-indexed).
func (m Matrix4) At(r, c int) float32 { return m.m[r*4+c] }

// Row returns the four components of row r as a Vector4.
func (m Matrix4) Row(r int) Vector4 {
	return Vector4{m.m[r*4], m.m[r*4+1], m.m[r*4+2], m.m[r*4+3]}
}

func (m Matrix4) Components() []float32 {
	out := make([]float32, 16)
	copy(out, m.m[:])
	return out
}

func (m Matrix4) Equal(o Matrix4) bool { return m.m == o.m }

// String joins the four rows with two spaces, per spec §4.1.
func (m Matrix4) String() string {
	rows := make([]string, 4)
	for i := 0; i < 4; i++ {
		rows[i] = m.Row(i).String()
	}
	return strings.Join(rows, "  ")
}

// ParseMatrix4 inverts Matrix4.String: rows separated by two (or more)
// spaces, each row whitespace-separated floats. The row boundary itself
// carries no information the parser needs -- it just splits all 16
// floats out of the string regardless of how they're grouped.
func ParseMatrix4(s string) (Matrix4, error) {
	var flat []float32
	for _, tok := range strings.FieldsFunc(s, isListSeparator) {
		f, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return Matrix4{}, domainErrorf("bad Matrix4 component %q: %v", tok, err)
		}
		flat = append(flat, float32(f))
	}
	if len(flat) != 16 {
		return Matrix4{}, domainErrorf("Matrix4 requires 16 components, got %d", len(flat))
	}
	var m Matrix4
	copy(m.m[:], flat)
	return m, nil
}

// Color is an RGBA color, one byte per channel.
type Color struct {
	R, G, B, A uint8
}

func NewColor(r, g, b, a uint8) Color { return Color{r, g, b, a} }

func (c Color) Equal(o Color) bool { return c == o }

func (c Color) String() string {
	return fmt.Sprintf("%d %d %d %d", c.R, c.G, c.B, c.A)
}

func ParseColor(s string) (Color, error) {
	fields := strings.FieldsFunc(s, isListSeparator)
	if len(fields) != 4 {
		return Color{}, domainErrorf("Color requires 4 components, got %d", len(fields))
	}
	var vals [4]uint8
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			return Color{}, domainErrorf("bad Color component %q: %v", f, err)
		}
		vals[i] = uint8(n)
	}
	return Color{vals[0], vals[1], vals[2], vals[3]}, nil
}

// TimeSpan is a duration value, legal only on attribute-version >= 2 (the
// version gate is enforced by the core, not here; this type is a plain
// value).
type TimeSpan struct {
	d time.Duration
}

func NewTimeSpan(d time.Duration) TimeSpan { return TimeSpan{d} }

func (t TimeSpan) Duration() time.Duration { return t.d }
func (t TimeSpan) Seconds() float64        { return t.d.Seconds() }
func (t TimeSpan) Equal(o TimeSpan) bool   { return t.d == o.d }
func (t TimeSpan) String() string          { return formatFloat(float32(t.d.Seconds())) }

func ParseTimeSpan(s string) (TimeSpan, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return TimeSpan{}, domainErrorf("bad TimeSpan %q: %v", s, err)
	}
	return TimeSpan{time.Duration(f * float64(time.Second))}, nil
}

// formatFloat renders a float32 the way every geometric String() method
// here joins its components: shortest round-trippable decimal form.
func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

// isListSeparator treats whitespace and comma as uniform separators,
// standardizing on locale-independent parsing per the design notes: the
// source this is grounded on parses floats with a culture-aware split
// (comma as decimal separator in some locales); this rewrite always
// treats comma as a list separator, never a decimal point, which is a
// compatibility risk for files written by a culture-sensitive writer
// using comma decimals (documented, not silently handled).
func isListSeparator(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ','
}

func parseFloats(s string, n int) ([]float32, error) {
	fields := strings.FieldsFunc(s, isListSeparator)
	if len(fields) != n {
		return nil, domainErrorf("expected %d components, got %d in %q", n, len(fields), s)
	}
	out := make([]float32, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, domainErrorf("bad component %q: %v", f, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}
