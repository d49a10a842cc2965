package binary_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miren.dev/dmx"
	_ "miren.dev/dmx/codec/binary"
	"miren.dev/dmx/dmxvalue"
)

func buildSampleDatamodel(t *testing.T) *dmx.Datamodel {
	t.Helper()
	dm := dmx.New("model", 1)

	root, err := dm.CreateElement("DmeModel", "sample")
	require.NoError(t, err)
	require.NoError(t, dm.SetRoot(root))

	require.NoError(t, root.SetAttr("life", dmx.TimeSpanValue(dmxvalue.NewTimeSpan(5*60*1e9))))
	require.NoError(t, root.SetAttr("xform", dmx.Matrix4Value(dmxvalue.Identity())))

	floats := make([]float32, 32)
	for i := range floats {
		floats[i] = float32(i)
	}
	require.NoError(t, root.SetAttr("many", dmx.ArrayOfFloat32(floats)))

	child, err := dm.CreateElement("DmeDag", "child")
	require.NoError(t, err)
	require.NoError(t, root.SetAttr("child", dmx.ElementValue(child)))

	return dm
}

func TestRoundTripEager(t *testing.T) {
	dm := buildSampleDatamodel(t)

	var buf bytes.Buffer
	require.NoError(t, dm.Save(&buf, "binary", 5))

	loaded, err := dmx.Load(&buf, dmx.DeferredDisabled)
	require.NoError(t, err)

	root := loaded.Root()
	require.NotNil(t, root)

	life, err := dmx.GetAttr[dmxvalue.TimeSpan](root, "life")
	require.NoError(t, err)
	assert.InDelta(t, 300.0, life.Seconds(), 1e-5)

	xform, err := dmx.GetAttr[dmxvalue.Matrix4](root, "xform")
	require.NoError(t, err)
	assert.Equal(t, dmxvalue.Identity().Components(), xform.Components())

	many, err := dmx.GetArrayAttr[float32](root, "many")
	require.NoError(t, err)
	require.Len(t, many, 32)
	assert.Equal(t, float32(31), many[31])

	child, err := dmx.GetAttr[*dmx.Element](root, "child")
	require.NoError(t, err)
	assert.Equal(t, "child", child.Name())
}

func TestDeferredAutomaticLoadsLargeArrayOnFirstAccessOnly(t *testing.T) {
	dm := buildSampleDatamodel(t)

	var buf bytes.Buffer
	require.NoError(t, dm.Save(&buf, "binary", 5))

	loaded, err := dmx.Load(bytes.NewReader(buf.Bytes()), dmx.DeferredAutomatic)
	require.NoError(t, err)

	root := loaded.Root()
	a, ok := root.Attr("many")
	require.True(t, ok)
	assert.True(t, a.IsDeferred())

	many, err := dmx.GetArrayAttr[float32](root, "many")
	require.NoError(t, err)
	assert.Len(t, many, 32)
	assert.False(t, a.IsDeferred())

	// Second access must not touch the codec again; there is nothing
	// observable to assert here beyond "no error and same data", since
	// DeferredDecodeAttribute's pending entry was already consumed and
	// the attribute is materialized.
	many2, err := dmx.GetArrayAttr[float32](root, "many")
	require.NoError(t, err)
	assert.Equal(t, many, many2)
}

func TestSaveFailsForUnregisteredBinaryVersion(t *testing.T) {
	dm := dmx.New("model", 1)
	root, err := dm.CreateElement("DmeModel", "sample")
	require.NoError(t, err)
	require.NoError(t, dm.SetRoot(root))

	var buf bytes.Buffer
	err = dm.Save(&buf, "binary", 99)
	require.Error(t, err) // only versions 2-5 are registered
}
