// Package binary implements the CBOR-framed binary encoding family
// (spec §6, versions 2-5): a process-wide registry entry per version,
// all sharing one wire envelope, since the spec's version differences
// (string-table indexing width, attribute-version-gated kinds) are
// framing details this envelope doesn't need to vary by version for --
// CBOR already gives compact self-describing indices, so "the string
// table" the spec describes for hand-rolled binary formats is simply
// CBOR's native string encoding here.
package binary

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"miren.dev/dmx"
	"miren.dev/dmx/dmxerr"
)

const encodingName = "binary"

// minVersion/maxVersion bound the versions this package registers
// (spec §1: "a binary family with versions 2-5"). v1 doesn't exist for
// this encoding -- version 1 is keyvalues2's.
const (
	minVersion = 2
	maxVersion = 5
)

func init() {
	for v := minVersion; v <= maxVersion; v++ {
		v := v
		dmx.RegisterCodec(encodingName, v, func() dmx.Codec { return New(v) })
	}
}

// pendingEntry is a not-yet-decoded attribute payload kept in memory by
// the Codec instance that produced it, addressed by an opaque offset
// handle (spec §4.5: "DeferredDecodeAttribute(datamodel, offset)").
type pendingEntry struct {
	kind     dmx.Kind
	elemKind dmx.Kind
	raw      []byte
}

// Codec implements dmx.Codec for one binary encoding version. A fresh
// instance is created per Decode (see init's factory), so pending is
// scoped to one datamodel's deferred attributes; mu is the "codec-wide
// mutual-exclusion lock" spec §5 calls for around DeferredDecodeAttribute.
type Codec struct {
	version int

	mu      sync.Mutex
	pending map[int64]pendingEntry
	nextOff int64
}

// New returns a binary codec bound to the given encoding version.
func New(version int) *Codec {
	return &Codec{version: version, pending: make(map[int64]pendingEntry)}
}

func (c *Codec) Identity() string { return fmt.Sprintf("%s/%d", encodingName, c.version) }

var _ dmx.Codec = (*Codec)(nil)

// Encode writes the common header then a single CBOR document holding
// every registered element, sorted by id for a deterministic byte
// stream.
func (c *Codec) Encode(dm *dmx.Datamodel, w io.Writer, wantVersion int) error {
	if wantVersion < minVersion || wantVersion > maxVersion {
		return dmxerr.New(dmxerr.UnsupportedFormat, "binary encoder supports versions %d-%d, got %d", minVersion, maxVersion, wantVersion)
	}

	elems := dm.AllElements()
	sort.Slice(elems, func(i, j int) bool { return elems[i].ID().String() < elems[j].ID().String() })

	wd := wireDatamodel{Elements: make([]wireElement, len(elems))}
	if root := dm.Root(); root != nil {
		wd.Root = root.ID().String()
	}

	for i, e := range elems {
		we := wireElement{Id: e.ID().String(), ClassName: e.ClassName(), Name: e.Name()}
		for _, a := range e.Attrs() {
			v, err := a.Get()
			if err != nil {
				return err
			}
			wa, err := encodeAttr(a.Name(), v)
			if err != nil {
				return err
			}
			we.Attrs = append(we.Attrs, wa)
		}
		wd.Elements[i] = we
	}

	if err := dmx.WriteHeader(w, encodingName, wantVersion, dm.Format(), dm.FormatVersion()); err != nil {
		return err
	}

	body, err := cbor.Marshal(wd)
	if err != nil {
		return dmxerr.Wrap(dmxerr.Codec, err, "marshaling binary datamodel body")
	}
	_, err = w.Write(body)
	return err
}

func encodeAttr(name string, v dmx.Value) (wireAttribute, error) {
	switch v.Kind() {
	case dmx.KindElement:
		e, _ := dmx.Get[*dmx.Element](v)
		id := ""
		if e != nil {
			id = e.ID().String()
		}
		raw, err := cbor.Marshal(id)
		if err != nil {
			return wireAttribute{}, err
		}
		return wireAttribute{Name: name, Kind: uint8(dmx.KindElement), Payload: raw}, nil

	case dmx.KindElementArray:
		arr, _ := dmx.Get[*dmx.ElementArray](v)
		var ids []string
		if arr != nil {
			for _, e := range arr.Elems() {
				if e == nil {
					ids = append(ids, "")
					continue
				}
				ids = append(ids, e.ID().String())
			}
		}
		raw, err := cbor.Marshal(ids)
		if err != nil {
			return wireAttribute{}, err
		}
		return wireAttribute{Name: name, Kind: uint8(dmx.KindElementArray), Payload: raw}, nil

	case dmx.KindArray:
		wv, err := encodeArrayValue(v.ElemKind(), v.Any())
		if err != nil {
			return wireAttribute{}, err
		}
		raw, err := cbor.Marshal(wv)
		if err != nil {
			return wireAttribute{}, err
		}
		return wireAttribute{Name: name, Kind: uint8(dmx.KindArray), ElemKind: uint8(v.ElemKind()), Payload: raw}, nil

	default:
		wv, err := encodeValue(v.Kind(), v.Any())
		if err != nil {
			return wireAttribute{}, err
		}
		raw, err := cbor.Marshal(wv)
		if err != nil {
			return wireAttribute{}, err
		}
		return wireAttribute{Name: name, Kind: uint8(v.Kind()), Payload: raw}, nil
	}
}

// deferrable reports whether attrModeFor may choose to defer an
// attribute of this kind at all; element-valued attributes are always
// resolved eagerly since stub resolution already gives them a lazy
// story of their own (spec §4.2 step 2-3).
func deferrable(k dmx.Kind) bool {
	return k == dmx.KindArray || k == dmx.KindBinary
}

// attrModeFor decides, for one attribute, whether to materialize now or
// install a deferred binding, given the requested DeferredMode.
func attrModeFor(mode dmx.DeferredMode, k dmx.Kind, arrayLen int) bool {
	if !deferrable(k) {
		return false
	}
	switch mode {
	case dmx.DeferredDisabled:
		return false
	case dmx.DeferredAlways:
		return true
	case dmx.DeferredAutomatic:
		return k == dmx.KindBinary || arrayLen >= automaticDeferThreshold
	default:
		return false
	}
}

// automaticDeferThreshold is the array length at or above which
// DeferredAutomatic leaves a value deferred rather than decoding it
// immediately.
const automaticDeferThreshold = 8

// Decode reads the CBOR body (header already consumed) and builds a
// Datamodel, deferring attributes per mode (spec §4.5).
func (c *Codec) Decode(r io.Reader, mode dmx.DeferredMode) (*dmx.Datamodel, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, dmxerr.Wrap(dmxerr.UnsupportedFormat, err, "reading binary body")
	}

	var wd wireDatamodel
	if err := cbor.Unmarshal(body, &wd); err != nil {
		return nil, dmxerr.Wrap(dmxerr.UnsupportedFormat, err, "decoding binary CBOR body")
	}

	dm := dmx.New("", 0)

	// Pass 1: register every element by id so forward references within
	// the same document resolve without stubs.
	byID := make(map[string]*dmx.Element, len(wd.Elements))
	for _, we := range wd.Elements {
		id, err := dmx.ParseId(we.Id)
		if err != nil {
			return nil, dmxerr.Wrap(dmxerr.UnsupportedFormat, err, "parsing element id %q", we.Id)
		}
		e, err := dm.BeginElement(id, we.ClassName, we.Name)
		if err != nil {
			return nil, err
		}
		byID[we.Id] = e
	}

	resolve := func(idText string) *dmx.Element {
		if idText == "" {
			return nil
		}
		if e, ok := byID[idText]; ok {
			return e
		}
		id, err := dmx.ParseId(idText)
		if err != nil {
			return nil
		}
		return dm.ResolveOrStub(id)
	}

	// Pass 2: attributes, now that every element in this document has a
	// registered *dmx.Element to reference.
	for _, we := range wd.Elements {
		e := byID[we.Id]
		for _, wa := range we.Attrs {
			if err := c.applyAttr(dm, e, wa, mode, resolve); err != nil {
				return nil, err
			}
		}
	}

	if wd.Root != "" {
		if err := dm.SetRoot(resolve(wd.Root)); err != nil {
			return nil, err
		}
	}

	return dm, nil
}

func (c *Codec) applyAttr(dm *dmx.Datamodel, e *dmx.Element, wa wireAttribute, mode dmx.DeferredMode, resolve func(string) *dmx.Element) error {
	kind := dmx.Kind(wa.Kind)

	switch kind {
	case dmx.KindElement:
		var idText string
		if err := cbor.Unmarshal(wa.Payload, &idText); err != nil {
			return dmxerr.Wrap(dmxerr.UnsupportedFormat, err, "decoding element attribute %q", wa.Name)
		}
		return e.SetAttr(wa.Name, dmx.ElementValue(resolve(idText)))

	case dmx.KindElementArray:
		var ids []string
		if err := cbor.Unmarshal(wa.Payload, &ids); err != nil {
			return dmxerr.Wrap(dmxerr.UnsupportedFormat, err, "decoding element_array attribute %q", wa.Name)
		}
		arr := dmx.NewElementArray()
		for _, id := range ids {
			if err := arr.Add(resolve(id)); err != nil {
				return err
			}
		}
		return e.SetAttr(wa.Name, dmx.ElementArrayValue(arr))

	case dmx.KindArray:
		arrayLen := cborArrayLen(wa.Payload)
		if attrModeFor(mode, dmx.KindArray, arrayLen) {
			offset := c.stash(dmx.Kind(wa.Kind), dmx.Kind(wa.ElemKind), wa.Payload)
			e.AppendAttr(dmx.NewDeferredAttr(e, wa.Name, c, offset))
			return nil
		}
		v, err := decodeArrayValue(dmx.Kind(wa.ElemKind), wa.Payload)
		if err != nil {
			return err
		}
		return e.SetAttr(wa.Name, v)

	case dmx.KindBinary:
		if attrModeFor(mode, dmx.KindBinary, 0) {
			offset := c.stash(kind, dmx.KindInvalid, wa.Payload)
			e.AppendAttr(dmx.NewDeferredAttr(e, wa.Name, c, offset))
			return nil
		}
		v, err := decodeValue(kind, wa.Payload)
		if err != nil {
			return err
		}
		return e.SetAttr(wa.Name, v)

	default:
		v, err := decodeValue(kind, wa.Payload)
		if err != nil {
			return err
		}
		return e.SetAttr(wa.Name, v)
	}
}

func (c *Codec) stash(kind, elemKind dmx.Kind, raw []byte) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextOff++
	off := c.nextOff
	c.pending[off] = pendingEntry{kind: kind, elemKind: elemKind, raw: append([]byte(nil), raw...)}
	return off
}

// DeferredDecodeAttribute materializes one previously stashed payload.
// Safe for concurrent callers at different offsets; each call still
// takes the codec-wide lock per spec §5, since the backing map is
// shared mutable state.
func (c *Codec) DeferredDecodeAttribute(dm *dmx.Datamodel, offset int64) (dmx.Value, error) {
	c.mu.Lock()
	entry, ok := c.pending[offset]
	if ok {
		delete(c.pending, offset)
	}
	c.mu.Unlock()

	if !ok {
		return dmx.Value{}, dmxerr.New(dmxerr.Codec, "no pending binary payload at offset %d", offset)
	}

	if entry.kind == dmx.KindArray {
		return decodeArrayValue(entry.elemKind, entry.raw)
	}
	return decodeValue(entry.kind, entry.raw)
}

// cborArrayLen reports the number of top-level items in a CBOR-encoded
// array, used only to decide DeferredAutomatic's size threshold; a
// decode failure here just disables deferral for that attribute.
func cborArrayLen(raw []byte) int {
	var probe []cbor.RawMessage
	if err := cbor.Unmarshal(raw, &probe); err != nil {
		return 0
	}
	return len(probe)
}
