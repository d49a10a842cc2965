package dmx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miren.dev/dmx"
)

func TestValueCASStableAndDistinguishesKind(t *testing.T) {
	a := dmx.Int32Value(42)
	b := dmx.Int32Value(42)
	assert.Equal(t, a.CAS(), b.CAS())

	c := dmx.Float32Value(42)
	assert.NotEqual(t, a.CAS(), c.CAS())
}

func TestAttributeCASMaterializesAndDiffersByName(t *testing.T) {
	dm := dmx.New("model", 1)
	e, err := dm.CreateElement("DmeModel", "root")
	require.NoError(t, err)

	require.NoError(t, e.SetAttr("a", dmx.Int32Value(7)))
	require.NoError(t, e.SetAttr("b", dmx.Int32Value(7)))

	aAttr, _ := e.Attr("a")
	bAttr, _ := e.Attr("b")

	aSum, err := aAttr.CAS()
	require.NoError(t, err)
	bSum, err := bAttr.CAS()
	require.NoError(t, err)

	assert.NotEqual(t, aSum, bSum) // same value, different attribute name
}
