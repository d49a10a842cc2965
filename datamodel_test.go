package dmx_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miren.dev/dmx"
	_ "miren.dev/dmx/codec/binary"
	_ "miren.dev/dmx/codec/keyvalues2"
	"miren.dev/dmx/dmxerr"
	"miren.dev/dmx/dmxvalue"
)

func TestCreateElementGeneratesIdAndRejectsCollision(t *testing.T) {
	dm := dmx.New("model", 1)

	e, err := dm.CreateElement("DmeModel", "root")
	require.NoError(t, err)
	assert.False(t, e.ID().IsNil())

	_, err = dm.CreateElement("DmeModel", "dup", e.ID())
	require.Error(t, err)
	assert.True(t, dmxerr.Is(err, dmxerr.ElementIdInUse))
}

func TestAttributeInsertionOrderPreserved(t *testing.T) {
	dm := dmx.New("model", 1)
	e, err := dm.CreateElement("DmeModel", "root")
	require.NoError(t, err)

	require.NoError(t, e.SetAttr("b", dmx.Int32Value(2)))
	require.NoError(t, e.SetAttr("a", dmx.Int32Value(1)))
	require.NoError(t, e.SetAttr("b", dmx.Int32Value(20))) // reassignment, not append

	assert.Equal(t, []string{"b", "a"}, e.AttrNames())

	v, err := dmx.GetAttr[int32](e, "b")
	require.NoError(t, err)
	assert.Equal(t, int32(20), v)
}

func TestElementOwnershipRejectsCrossDatamodelAssignment(t *testing.T) {
	a := dmx.New("model", 1)
	b := dmx.New("model", 1)

	owned, err := a.CreateElement("DmeModel", "owned")
	require.NoError(t, err)

	target, err := b.CreateElement("DmeModel", "target")
	require.NoError(t, err)

	err = target.SetAttr("ref", dmx.ElementValue(owned))
	require.Error(t, err)
	assert.True(t, dmxerr.Is(err, dmxerr.ElementOwnership))

	// b must not have been mutated by the failed assignment.
	_, ok := target.Attr("ref")
	assert.False(t, ok)
}

func TestImportElementShallowStubsCrossGraphReferences(t *testing.T) {
	src := dmx.New("model", 1)
	srcRoot, err := src.CreateElement("DmeModel", "root")
	require.NoError(t, err)
	child, err := src.CreateElement("DmeDag", "child")
	require.NoError(t, err)
	require.NoError(t, srcRoot.SetAttr("child", dmx.ElementValue(child)))

	dst := dmx.New("model", 1)
	imported, err := dst.ImportElement(srcRoot, dmx.ImportShallow)
	require.NoError(t, err)
	assert.Equal(t, dst, imported.Datamodel())

	ref, err := dmx.GetAttr[*dmx.Element](imported, "child")
	require.NoError(t, err)
	assert.True(t, ref.IsStub())
	assert.Equal(t, child.ID(), ref.ID())
}

func TestImportElementDeepCopiesReachableSubgraph(t *testing.T) {
	src := dmx.New("model", 1)
	srcRoot, err := src.CreateElement("DmeModel", "root")
	require.NoError(t, err)
	child, err := src.CreateElement("DmeDag", "child")
	require.NoError(t, err)
	require.NoError(t, child.SetAttr("name_val", dmx.StringValue("leaf")))
	require.NoError(t, srcRoot.SetAttr("child", dmx.ElementValue(child)))

	dst := dmx.New("model", 1)
	imported, err := dst.ImportElement(srcRoot, dmx.ImportDeep)
	require.NoError(t, err)

	ref, err := dmx.GetAttr[*dmx.Element](imported, "child")
	require.NoError(t, err)
	assert.False(t, ref.IsStub())
	assert.Equal(t, dst, ref.Datamodel())
	assert.NotEqual(t, child.ID(), ref.ID()) // fresh id unless PreserveIDs()

	leaf, err := dmx.GetAttr[string](ref, "name_val")
	require.NoError(t, err)
	assert.Equal(t, "leaf", leaf)
}

func TestStubResolution(t *testing.T) {
	dm := dmx.New("model", 1)
	root, err := dm.CreateElement("DmeModel", "root")
	require.NoError(t, err)

	unresolved := dm.ResolveOrStub(dmx.NewId())
	require.NoError(t, root.SetAttr("ref", dmx.ElementValue(unresolved)))

	v, err := dmx.GetAttr[*dmx.Element](root, "ref")
	require.NoError(t, err)
	assert.True(t, v.IsStub())

	manufactured, err := dm.CreateElement("DmeDag", "resolved", unresolved.ID())
	require.Error(t, err) // id already taken by the stub; can't double-register
	_ = manufactured

	dm.SetStubResolver(func(id dmx.Id) *dmx.Element {
		if id == unresolved.ID() {
			e, _ := dm.Lookup(id)
			e.SetClassName("DmeDag")
			return e
		}
		return nil
	})

	resolved, err := dmx.GetAttr[*dmx.Element](root, "ref")
	require.NoError(t, err)
	assert.Equal(t, "DmeDag", resolved.ClassName())

	dm.SetStubResolver(nil)
}

func TestSaveRejectsTimeSpanOnIncapableEncoding(t *testing.T) {
	dm := dmx.New("model", 1)
	root, err := dm.CreateElement("DmeModel", "root")
	require.NoError(t, err)
	require.NoError(t, root.SetAttr("life", dmx.TimeSpanValue(dmxvalue.NewTimeSpan(0))))
	require.NoError(t, dm.SetRoot(root))

	var buf bytes.Buffer
	err = dm.Save(&buf, "binary", 4)
	require.Error(t, err)
	assert.True(t, dmxerr.Is(err, dmxerr.AttributeType))
}

func TestSaveFailsCodecNotFound(t *testing.T) {
	dm := dmx.New("model", 1)
	root, err := dm.CreateElement("DmeModel", "root")
	require.NoError(t, err)
	require.NoError(t, dm.SetRoot(root))

	var buf bytes.Buffer
	err = dm.Save(&buf, "nope", 99)
	require.Error(t, err)
	assert.True(t, dmxerr.Is(err, dmxerr.CodecNotFound))
}

func TestLoadHeaderSniffFailsWithoutConsumingBody(t *testing.T) {
	body := "<!-- dmx encoding nope 1 format model 1 -->\nrest of the stream is untouched"
	r := bytes.NewReader([]byte(body))
	_, err := dmx.Load(r, dmx.DeferredDisabled)
	require.Error(t, err)
	assert.True(t, dmxerr.Is(err, dmxerr.CodecNotFound))

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "rest of the stream is untouched", string(rest))
}
