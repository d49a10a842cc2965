package dmx

import (
	"slices"

	"miren.dev/dmx/dmxerr"
)

// Element is a node in the graph: GUID-identified, class-tagged, with an
// ordered attribute map (spec §3). Attribute storage is a plain slice
// scanned linearly on lookup, the same choice the teacher package makes
// for its own attribute list (miren.dev/runtime/pkg/entity.Entity.Get):
// elements in this format carry a handful of attributes, not hundreds, so
// a linear scan that trivially preserves insertion order beats a map plus
// a separate order-tracking slice.
type Element struct {
	id        Id
	name      string
	className string

	// datamodel is a non-owning back-pointer: nil for a detached element.
	// Go's GC means this never needs to be a weak reference in the sense
	// the design notes call for; "non-owning" here just means Element
	// never controls the Datamodel's lifetime.
	datamodel *Datamodel

	attrs []*Attribute
	stub  bool
}

// newDetachedElement creates an Element with no owning datamodel. Its
// callers (Datamodel.CreateElement, BeginElement and importElement) set
// the datamodel back-pointer and insert the result into the registry
// themselves.
func newDetachedElement(className, name string, id Id) *Element {
	return &Element{id: id, name: name, className: className}
}

// newStubElement creates a stub: an element known only by id, with no
// attributes, per spec §3 ("A stub element carries only id; its
// attributes are absent").
func newStubElement(id Id) *Element {
	return &Element{id: id, stub: true}
}

func (e *Element) ID() Id { return e.id }

// fillFromStub turns a stub into a fully defined element in place, so
// every Value already holding a pointer to it (created by
// Datamodel.ResolveOrStub to satisfy a forward reference) observes the
// fill-in without any rewriting.
func (e *Element) fillFromStub(className, name string) {
	e.className = className
	e.name = name
	e.stub = false
}

func (e *Element) Name() string        { return e.name }
func (e *Element) SetName(name string) { e.name = name }

func (e *Element) ClassName() string            { return e.className }
func (e *Element) SetClassName(className string) { e.className = className }

func (e *Element) Datamodel() *Datamodel { return e.datamodel }

func (e *Element) IsStub() bool { return e.stub }

// adoptInto assigns e's owning datamodel, permitted only while owner is
// currently null (spec §4.3: "Assigning owner is permitted only while
// owner is currently null (one-shot adoption)"). Retargeting to a
// different datamodel fails with ElementOwnership.
func (e *Element) adoptInto(d *Datamodel) error {
	if e.datamodel == d {
		return nil
	}
	if e.datamodel != nil {
		return dmxerr.New(dmxerr.ElementOwnership,
			"element %s is already owned by a different datamodel", e.id)
	}
	e.datamodel = d
	return nil
}

// Attr looks up an attribute by name.
func (e *Element) Attr(name string) (*Attribute, bool) {
	for _, a := range e.attrs {
		if a.name == name {
			return a, true
		}
	}
	return nil, false
}

// SetAttr creates the attribute if absent, else mutates it in place
// (spec §4.3: "creates the attribute if absent, else mutates"), which is
// what keeps insertion order stable across reassignment.
func (e *Element) SetAttr(name string, v Value) error {
	if a, ok := e.Attr(name); ok {
		return a.Set(v)
	}
	a := &Attribute{name: name, owner: e}
	if err := a.Set(v); err != nil {
		return err
	}
	e.attrs = append(e.attrs, a)
	return nil
}

// AppendAttr adds a, pre-built via NewDeferredAttr, to e's attribute
// list in insertion-order position, without the validation/ownership
// pass Set performs (a deferred attribute's value and kind aren't known
// yet). Codec decoders use this for attributes they choose to leave
// deferred.
func (e *Element) AppendAttr(a *Attribute) {
	a.owner = e
	e.attrs = append(e.attrs, a)
}

// Remove deletes the named attribute, reporting whether it was present.
func (e *Element) Remove(name string) bool {
	for i, a := range e.attrs {
		if a.name == name {
			e.attrs = slices.Delete(e.attrs, i, i+1)
			return true
		}
	}
	return false
}

// Attrs returns the element's attributes in insertion order. The slice is
// the live backing slice's shallow copy; mutating the returned Attribute
// pointers mutates the element, but the slice itself can be freely
// appended to by the caller.
func (e *Element) Attrs() []*Attribute {
	return slices.Clone(e.attrs)
}

// AttrNames returns attribute names in insertion order.
func (e *Element) AttrNames() []string {
	names := make([]string, len(e.attrs))
	for i, a := range e.attrs {
		names[i] = a.name
	}
	return names
}

// GetAttr is the typed accessor the spec calls Get<T>: it fails with an
// AttributeType error if the stored value's kind does not match T.
func GetAttr[T any](e *Element, name string) (T, error) {
	var zero T

	a, ok := e.Attr(name)
	if !ok {
		return zero, dmxerr.New(dmxerr.AttributeType, "no such attribute %q", name)
	}

	v, err := a.Get()
	if err != nil {
		return zero, err
	}

	t, ok := Get[T](v)
	if !ok {
		return zero, dmxerr.New(dmxerr.AttributeType,
			"attribute %q has kind %s, not the requested type", name, v.Kind())
	}
	return t, nil
}

// GetArrayAttr is the spec's GetArray<T>: T is the scalar element type,
// e.g. GetArrayAttr[int32](e, "ints") for a KindArray/KindInt32 value.
// Since KindArray values already store a concrete []T in Value.data, this
// is just GetAttr instantiated at the slice type.
func GetArrayAttr[T any](e *Element, name string) ([]T, error) {
	return GetAttr[[]T](e, name)
}
