package dmx

import (
	"golang.org/x/crypto/blake2b"

	"miren.dev/dmx/dmxerr"
	"miren.dev/dmx/idgen"
)

// attrState is the two-node state machine from spec §4.2: a Deferred
// attribute becomes Materialized exactly once, either by DeferredLoad or
// by an explicit Set, and never reverts.
type attrState int

const (
	stateMaterialized attrState = iota
	stateDeferred
)

// Attribute is a named typed value on an element; it may be deferred --
// materialized lazily from an offset into the stream a codec decoded it
// from (spec §3/§4.2).
type Attribute struct {
	name  string
	owner *Element // non-owning; see Element.datamodel doc

	state attrState
	value Value

	offset int64
	codec  Codec
}

func (a *Attribute) Name() string     { return a.name }
func (a *Attribute) Owner() *Element  { return a.owner }
func (a *Attribute) IsDeferred() bool { return a.state == stateDeferred }

// markDeferred installs a deferred offset/codec binding in place of a
// materialized value; used by codec Decode implementations building up an
// Element's attributes (see codec.go).
func (a *Attribute) markDeferred(offset int64, codec Codec) {
	a.state = stateDeferred
	a.offset = offset
	a.codec = codec
	a.value = Value{}
}

// NewDeferredAttr builds an attribute bound to owner that will decode its
// value lazily from codec at offset on first Get/DeferredLoad. Codec
// decoders use this (together with Element.AppendAttr) to populate an
// element's attribute list without eagerly materializing every value
// (spec §4.5, §6 "Long arrays and binary blobs may be left at trailing
// offsets for deferred decode").
func NewDeferredAttr(owner *Element, name string, codec Codec, offset int64) *Attribute {
	a := &Attribute{name: name, owner: owner}
	a.markDeferred(offset, codec)
	return a
}

// Set validates the value against the closed kind set and, for element
// and element-array values, applies the ownership rules from spec §4.2.
// It always clears any pending deferred offset.
func (a *Attribute) Set(v Value) error {
	if err := v.validate(); err != nil {
		return err
	}

	switch v.kind {
	case KindElement:
		if e, _ := v.element(); e != nil {
			if err := a.adoptElement(e); err != nil {
				return err
			}
		}
	case KindElementArray:
		arr, ok := v.elementArray()
		if !ok || arr == nil {
			return dmxerr.New(dmxerr.AttributeType,
				"attribute %q requires an *ElementArray, not a plain sequence", a.name)
		}
		if err := a.adoptElementArray(arr); err != nil {
			return err
		}
	}

	a.state = stateMaterialized
	a.value = v
	a.offset = 0
	a.codec = nil
	return nil
}

// adoptElement implements: "if its owner is null, adopt it into the
// owning datamodel; if owned by a different datamodel, fail with
// ElementOwnershipError."
func (a *Attribute) adoptElement(e *Element) error {
	if e.stub {
		return nil
	}
	dm := a.owner.datamodel
	if e.datamodel == nil {
		if dm != nil {
			return dm.adopt(e)
		}
		return nil
	}
	if dm != nil && e.datamodel != dm {
		return dmxerr.New(dmxerr.ElementOwnership,
			"element %s is owned by a different datamodel than attribute %q's owner", e.id, a.name)
	}
	return nil
}

// adoptElementArray implements the ElementArray half of spec §4.2: attach
// the array to this attribute's owning element if detached (failing if
// already attached elsewhere), then apply the element ownership rule to
// every entry.
func (a *Attribute) adoptElementArray(arr *ElementArray) error {
	if err := arr.attachTo(a.owner); err != nil {
		return err
	}
	for _, e := range arr.elems {
		if e == nil {
			continue
		}
		if err := a.adoptElement(e); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the materialized value, deferred-loading and resolving
// stubs first as needed (spec §4.2, steps 1-4).
func (a *Attribute) Get() (Value, error) {
	if a.state == stateDeferred {
		if err := a.DeferredLoad(); err != nil {
			return Value{}, err
		}
	}

	dm := a.owner.datamodel

	switch a.value.kind {
	case KindElement:
		if e, _ := a.value.element(); e != nil && e.stub && dm != nil {
			if resolved := dm.OnStubRequest(e.id); resolved != nil {
				a.value = ElementValue(resolved)
			}
		}
	case KindElementArray:
		if arr, ok := a.value.elementArray(); ok && arr != nil {
			arr.resolveStubs(dm)
		}
	}

	return a.value, nil
}

// DeferredLoad forces materialization of a deferred attribute. It is
// idempotent in the sense that calling it on an already-materialized
// attribute is a no-op error (spec lists "loading an already-loaded
// attribute" under InvalidOperationError), not a silent success.
func (a *Attribute) DeferredLoad() error {
	if a.state != stateDeferred {
		return dmxerr.New(dmxerr.InvalidOperation, "attribute %q is not in a deferred state", a.name)
	}
	if a.offset <= 0 || a.codec == nil {
		return dmxerr.New(dmxerr.Codec, "attribute %q has no valid deferred binding", a.name)
	}

	dm := a.owner.datamodel
	v, err := a.codec.DeferredDecodeAttribute(dm, a.offset)
	if err != nil {
		token := idgen.Token("codecerr")
		return dmxerr.Wrap(dmxerr.Codec, err,
			"deferred load of attribute %q on element %s via codec %s [%s]",
			a.name, a.owner.id, a.codec.Identity(), token)
	}

	a.value = v
	a.offset = 0
	a.state = stateMaterialized
	a.codec = nil
	return nil
}

// CAS forces materialization (deferred loading if necessary) and returns
// the content digest of the attribute's current value, combined with its
// name so two identically-valued attributes under different names still
// hash differently (spec SPEC_FULL.md §3 "content addressing").
func (a *Attribute) CAS() (string, error) {
	v, err := a.Get()
	if err != nil {
		return "", err
	}
	h, _ := blake2b.New256(nil)
	h.Write([]byte(a.name))
	h.Write([]byte{0})
	return v.casWith(h), nil
}

// SetOwner reassigns the attribute's owning element. Per spec §4.2, a
// pending deferred load is flushed eagerly first, since the offset is
// only meaningful against the original codec/stream and would otherwise
// dangle once the link to that owner is broken.
func (a *Attribute) SetOwner(owner *Element) error {
	if a.state == stateDeferred {
		if err := a.DeferredLoad(); err != nil {
			return err
		}
	}
	a.owner = owner
	return nil
}
