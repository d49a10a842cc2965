package keyvalues2_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miren.dev/dmx"
	_ "miren.dev/dmx/codec/keyvalues2"
	"miren.dev/dmx/dmxvalue"
)

func buildSampleDatamodel(t *testing.T) *dmx.Datamodel {
	t.Helper()
	dm := dmx.New("model", 1)

	root, err := dm.CreateElement("DmeModel", "sample")
	require.NoError(t, err)
	require.NoError(t, dm.SetRoot(root))

	require.NoError(t, root.SetAttr("count", dmx.Int32Value(1)))
	require.NoError(t, root.SetAttr("scale", dmx.Float32Value(1.5)))
	require.NoError(t, root.SetAttr("enabled", dmx.BoolValue(true)))
	require.NoError(t, root.SetAttr("blob", dmx.BinaryValue([]byte{0xDE, 0xAD, 0xBE, 0xEF})))
	require.NoError(t, root.SetAttr("tint", dmx.ColorValue(dmxvalue.NewColor(10, 20, 30, 255))))
	require.NoError(t, root.SetAttr("pos", dmx.Vector3Value(dmxvalue.NewVector3(1, 2, 3))))
	require.NoError(t, root.SetAttr("ints", dmx.ArrayOfInt32([]int32{1, 2, 3})))

	child, err := dm.CreateElement("DmeDag", "child")
	require.NoError(t, err)
	require.NoError(t, root.SetAttr("child", dmx.ElementValue(child)))

	arr := dmx.NewElementArray(child, nil)
	require.NoError(t, root.SetAttr("children", dmx.ElementArrayValue(arr)))

	return dm
}

func TestRoundTrip(t *testing.T) {
	dm := buildSampleDatamodel(t)

	var buf bytes.Buffer
	require.NoError(t, dm.Save(&buf, "keyvalues2", 1))

	loaded, err := dmx.Load(&buf, dmx.DeferredDisabled)
	require.NoError(t, err)

	root := loaded.Root()
	require.NotNil(t, root)
	assert.Equal(t, "sample", root.Name())
	assert.Equal(t, dm.Root().ID(), root.ID())

	count, err := dmx.GetAttr[int32](root, "count")
	require.NoError(t, err)
	assert.Equal(t, int32(1), count)

	scale, err := dmx.GetAttr[float32](root, "scale")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, scale, 1e-5)

	enabled, err := dmx.GetAttr[bool](root, "enabled")
	require.NoError(t, err)
	assert.True(t, enabled)

	blob, err := dmx.GetAttr[[]byte](root, "blob")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, blob)

	pos, err := dmx.GetAttr[dmxvalue.Vector3](root, "pos")
	require.NoError(t, err)
	assert.Equal(t, dmxvalue.NewVector3(1, 2, 3), pos)

	ints, err := dmx.GetArrayAttr[int32](root, "ints")
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, ints)

	child, err := dmx.GetAttr[*dmx.Element](root, "child")
	require.NoError(t, err)
	assert.Equal(t, "child", child.Name())

	children, err := dmx.GetAttr[*dmx.ElementArray](root, "children")
	require.NoError(t, err)
	require.Equal(t, 2, children.Len())
	assert.Equal(t, child.ID(), children.At(0).ID())
	assert.Nil(t, children.At(1))
}

// TestRoundTripEmptyElementReferencedTwice guards against the reference
// and definition forms being confused: an element with no name and no
// attributes, referenced a second time through an element_array, must
// come back as itself (with its className intact), not as a stub.
func TestRoundTripEmptyElementReferencedTwice(t *testing.T) {
	dm := dmx.New("model", 1)

	root, err := dm.CreateElement("DmeModel", "sample")
	require.NoError(t, err)
	require.NoError(t, dm.SetRoot(root))

	bare, err := dm.CreateElement("DmeBareRef", "")
	require.NoError(t, err)
	require.NoError(t, root.SetAttr("first", dmx.ElementValue(bare)))

	arr := dmx.NewElementArray(bare)
	require.NoError(t, root.SetAttr("again", dmx.ElementArrayValue(arr)))

	var buf bytes.Buffer
	require.NoError(t, dm.Save(&buf, "keyvalues2", 1))

	loaded, err := dmx.Load(&buf, dmx.DeferredDisabled)
	require.NoError(t, err)

	first, err := dmx.GetAttr[*dmx.Element](loaded.Root(), "first")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.False(t, first.IsStub())
	assert.Equal(t, "DmeBareRef", first.ClassName())

	again, err := dmx.GetAttr[*dmx.ElementArray](loaded.Root(), "again")
	require.NoError(t, err)
	require.Equal(t, 1, again.Len())
	assert.Equal(t, first.ID(), again.At(0).ID())
	assert.False(t, again.At(0).IsStub())
	assert.Equal(t, "DmeBareRef", again.At(0).ClassName())
}

func TestUnregisteredHeaderFailsWithoutConsumingBody(t *testing.T) {
	body := "<!-- dmx encoding keyvalues2 7 format model 1 -->\nshould never be parsed"
	r := bytes.NewReader([]byte(body))
	_, err := dmx.Load(r, dmx.DeferredDisabled)
	require.Error(t, err)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "should never be parsed", string(rest))
}
