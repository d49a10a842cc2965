package dmxvalue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix4FromSeqRequiresSixteen(t *testing.T) {
	seq := make([]float32, 15)
	for i := range seq {
		seq[i] = float32(i)
	}
	_, err := NewMatrix4FromSeq(seq)
	require.Error(t, err)

	seq = append(seq, 15)
	m, err := NewMatrix4FromSeq(seq)
	require.NoError(t, err)
	assert.Equal(t, float32(5), m.At(1, 1))
}

func TestMatrix4StringJoinsRowsWithTwoSpaces(t *testing.T) {
	seq := make([]float32, 16)
	for i := range seq {
		seq[i] = float32(i)
	}
	m, err := NewMatrix4FromSeq(seq)
	require.NoError(t, err)

	s := m.String()
	assert.Contains(t, s, "0 1 2 3  4 5 6 7  8 9 10 11  12 13 14 15")

	back, err := ParseMatrix4(s)
	require.NoError(t, err)
	assert.True(t, m.Equal(back))
}

func TestVectorArithmeticAndNormalise(t *testing.T) {
	v := NewVector3(3, 0, 4)
	assert.Equal(t, float32(5), v.Len())

	n := v.Normalise()
	assert.InDelta(t, float64(1), float64(n.Len()), 1e-5)

	sum := NewVector3(1, 2, 3).Add(NewVector3(1, 1, 1))
	assert.Equal(t, NewVector3(2, 3, 4), sum)
}

func TestAngleIsDistinctFromVector3(t *testing.T) {
	a := NewAngle(1, 2, 3)
	v := NewVector3(1, 2, 3)

	// Same components, different Go types: callers cannot accidentally
	// substitute one for the other without an explicit conversion.
	assert.Equal(t, v.Components(), a.Components())
	assert.NotEqual(t, v, a)
}

func TestQuaternionNormalise(t *testing.T) {
	q := NewQuaternion(1, 2, 3, 4)
	n := q.Normalise()
	assert.InDelta(t, float64(1), float64(n.Len()), 1e-5)
}

func TestColorRoundTrip(t *testing.T) {
	c := NewColor(10, 20, 30, 255)
	back, err := ParseColor(c.String())
	require.NoError(t, err)
	assert.Equal(t, c, back)
}

func TestTimeSpanRoundTrip(t *testing.T) {
	ts := NewTimeSpan(5 * time.Minute)
	back, err := ParseTimeSpan(ts.String())
	require.NoError(t, err)
	assert.InDelta(t, ts.Seconds(), back.Seconds(), 1e-5)
}

func TestVector2FromSeqShortFails(t *testing.T) {
	_, err := Vector2FromSeq([]float32{1})
	require.Error(t, err)
}

func TestParseVector3AcceptsCommaSeparated(t *testing.T) {
	v, err := ParseVector3("1, 2, 3")
	require.NoError(t, err)
	assert.Equal(t, NewVector3(1, 2, 3), v)
}
