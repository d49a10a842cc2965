package dmx

import (
	"slices"

	"miren.dev/dmx/dmxerr"
)

// ElementArray is an ordered sequence of element references. It carries
// its own back-pointer to the Element that owns it (not directly to a
// Datamodel, per spec §3/§4.3); ownership of the elements it holds is
// checked against that owning element's datamodel.
type ElementArray struct {
	owner *Element
	elems []*Element
}

// NewElementArray builds a detached element array from zero or more
// elements. The array has no owner until it is assigned to an attribute
// (see Attribute.Set / attachTo).
func NewElementArray(elems ...*Element) *ElementArray {
	return &ElementArray{elems: append([]*Element(nil), elems...)}
}

func (a *ElementArray) Owner() *Element { return a.owner }
func (a *ElementArray) Len() int        { return len(a.elems) }

// At returns the element at index i, or nil if i is out of range.
func (a *ElementArray) At(i int) *Element {
	if i < 0 || i >= len(a.elems) {
		return nil
	}
	return a.elems[i]
}

// Elems returns a copy of the array's elements in order.
func (a *ElementArray) Elems() []*Element {
	return slices.Clone(a.elems)
}

func (a *ElementArray) datamodel() *Datamodel {
	if a.owner == nil {
		return nil
	}
	return a.owner.datamodel
}

// checkOwnership enforces spec §4.3: every inserted non-null element must
// be owned by this array's owning element's datamodel, or be null, or be
// a stub.
func (a *ElementArray) checkOwnership(e *Element) error {
	if e == nil || e.stub {
		return nil
	}
	dm := a.datamodel()
	if dm == nil {
		return nil
	}
	if e.datamodel != nil && e.datamodel != dm {
		return dmxerr.New(dmxerr.ElementOwnership,
			"element %s is owned by a different datamodel than this array's owner", e.id)
	}
	if e.datamodel == nil {
		return dm.adopt(e)
	}
	return nil
}

// Add appends e to the end of the array.
func (a *ElementArray) Add(e *Element) error {
	if err := a.checkOwnership(e); err != nil {
		return err
	}
	a.elems = append(a.elems, e)
	return nil
}

// Insert places e at index i, shifting later entries down.
func (a *ElementArray) Insert(i int, e *Element) error {
	if i < 0 || i > len(a.elems) {
		return dmxerr.New(dmxerr.InvalidOperation, "index %d out of range", i)
	}
	if err := a.checkOwnership(e); err != nil {
		return err
	}
	a.elems = slices.Insert(a.elems, i, e)
	return nil
}

// Set replaces the element at index i.
func (a *ElementArray) Set(i int, e *Element) error {
	if i < 0 || i >= len(a.elems) {
		return dmxerr.New(dmxerr.InvalidOperation, "index %d out of range", i)
	}
	if err := a.checkOwnership(e); err != nil {
		return err
	}
	a.elems[i] = e
	return nil
}

// Clear empties the array in place.
func (a *ElementArray) Clear() {
	a.elems = a.elems[:0]
}

// attachTo assigns owner as this array's owning element the first time
// it's attached to an attribute; attempting to re-parent an
// already-attached array fails with InvalidOperation (spec §4.3).
func (a *ElementArray) attachTo(owner *Element) error {
	if a.owner == owner {
		return nil
	}
	if a.owner != nil {
		return dmxerr.New(dmxerr.InvalidOperation,
			"element array is already attached to element %s", a.owner.id)
	}
	a.owner = owner
	return nil
}

// resolveStubs substitutes each stub entry with the result of dm's
// stubResolver, in place, mirroring Attribute.Get's single-element stub
// substitution (spec §4.2 step 3).
func (a *ElementArray) resolveStubs(dm *Datamodel) {
	if dm == nil {
		return
	}
	for i, e := range a.elems {
		if e != nil && e.stub {
			if resolved := dm.OnStubRequest(e.id); resolved != nil {
				a.elems[i] = resolved
			}
		}
	}
}

func (a *ElementArray) equal(o *ElementArray) bool {
	if a == nil || o == nil {
		return a == o
	}
	if len(a.elems) != len(o.elems) {
		return false
	}
	for i := range a.elems {
		ae, oe := a.elems[i], o.elems[i]
		if ae == nil || oe == nil {
			if ae != oe {
				return false
			}
			continue
		}
		if ae.id != oe.id {
			return false
		}
	}
	return true
}
