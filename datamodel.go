package dmx

import (
	"io"

	"miren.dev/dmx/dmxerr"
)

// StubResolver is invoked whenever a stub element is encountered during
// attribute access, giving the caller a chance to supply the full
// element, typically loaded from elsewhere (spec §4.4 "OnStubRequest").
// Returning nil leaves the stub in place.
type StubResolver func(Id) *Element

// Datamodel owns a graph of elements reachable (conceptually) from Root,
// plus an id registry used for CreateElement collision checks and
// RemoveElement (spec §4.4). It is not internally synchronized: a
// Datamodel under concurrent mutation needs external locking, same as
// the teacher's in-memory entity store leaves write serialization to its
// caller.
type Datamodel struct {
	format        string
	formatVersion int

	root     *Element
	registry map[Id]*Element

	codec         Codec
	stubResolver  StubResolver
}

// New creates an empty Datamodel tagged with the given format name and
// version (the "format" fields in the header line, distinct from the
// encoding/encoding-version that Save chooses independently).
func New(format string, formatVersion int) *Datamodel {
	return &Datamodel{
		format:        format,
		formatVersion: formatVersion,
		registry:      make(map[Id]*Element),
	}
}

func (d *Datamodel) Format() string      { return d.format }
func (d *Datamodel) FormatVersion() int  { return d.formatVersion }
func (d *Datamodel) Root() *Element      { return d.root }

// SetStubResolver installs the callback used to resolve stub elements
// encountered during attribute access.
func (d *Datamodel) SetStubResolver(r StubResolver) { d.stubResolver = r }

// OnStubRequest resolves a stub id via the installed StubResolver, or
// returns nil if none is installed or it declines to resolve (spec
// §4.4).
func (d *Datamodel) OnStubRequest(id Id) *Element {
	if d.stubResolver == nil {
		return nil
	}
	return d.stubResolver(id)
}

// register inserts e into the id registry, failing with ElementIdInUse
// on collision.
func (d *Datamodel) register(e *Element) error {
	if existing, ok := d.registry[e.id]; ok && existing != e {
		return dmxerr.New(dmxerr.ElementIdInUse, "element id %s already exists in this datamodel", e.id)
	}
	d.registry[e.id] = e
	return nil
}

// adopt takes ownership of a detached element: it is the shared path
// Attribute.Set and ElementArray.checkOwnership fall into when they
// discover a referenced element with no owning datamodel yet (spec
// §4.2/§4.3 "if its owner is null, adopt it into the owning datamodel").
func (d *Datamodel) adopt(e *Element) error {
	if e.datamodel == d {
		return nil
	}
	if err := e.adoptInto(d); err != nil {
		return err
	}
	return d.register(e)
}

// CreateElement creates and registers a new element owned by d. If id is
// omitted (or nil), a fresh v4 GUID is generated; an explicit id that
// collides with an existing element in this datamodel fails with
// ElementIdInUse (spec §4.4).
func (d *Datamodel) CreateElement(className, name string, id ...Id) (*Element, error) {
	eid := NewId()
	if len(id) > 0 && !id[0].IsNil() {
		eid = id[0]
	}
	if _, exists := d.registry[eid]; exists {
		return nil, dmxerr.New(dmxerr.ElementIdInUse, "element id %s already exists in this datamodel", eid)
	}

	e := newDetachedElement(className, name, eid)
	e.datamodel = d
	d.registry[eid] = e
	return e, nil
}

// RemoveElement drops e from the registry. The library does not rewrite
// other elements' references to e (spec §4.4: callers are responsible
// for graph consistency after removal); e itself is left with its
// datamodel back-pointer intact so that any attribute still holding a
// Value referencing it keeps working as a dangling-but-valid reference.
func (d *Datamodel) RemoveElement(e *Element) {
	if e == nil {
		return
	}
	delete(d.registry, e.id)
}

// Lookup returns the element registered under id, if any.
func (d *Datamodel) Lookup(id Id) (*Element, bool) {
	e, ok := d.registry[id]
	return e, ok
}

// ResolveOrStub returns the element already registered under id, or
// creates and registers a stub carrying that id if none exists yet.
// Codec decoders use this to handle forward references: a GUID
// mentioned before its owning element's full definition has been parsed
// gets a stub that Attribute.Get/ElementArray.resolveStubs can later
// swap out once the full element is registered -- note that registering
// the full element under an id already holding a stub does not
// automatically update references created before this call; codecs that
// support forward references must instead materialize the stub itself
// in place (see codec/keyvalues2 and codec/binary for how each handles
// this).
func (d *Datamodel) ResolveOrStub(id Id) *Element {
	if e, ok := d.registry[id]; ok {
		return e
	}
	stub := newStubElement(id)
	stub.datamodel = d
	d.registry[id] = stub
	return stub
}

// BeginElement returns the full, attribute-ready element for id: if a
// forward reference already produced a stub under this id (via
// ResolveOrStub), it is filled in and reused in place so earlier
// references to it see the real data; otherwise a fresh element is
// registered. Returns InvalidOperation if id is already a fully defined
// (non-stub) element, which a well-formed stream never triggers.
func (d *Datamodel) BeginElement(id Id, className, name string) (*Element, error) {
	if existing, ok := d.registry[id]; ok {
		if !existing.stub {
			return nil, dmxerr.New(dmxerr.InvalidOperation, "element id %s is defined more than once in this stream", id)
		}
		existing.fillFromStub(className, name)
		return existing, nil
	}
	e := newDetachedElement(className, name, id)
	e.datamodel = d
	d.registry[id] = e
	return e, nil
}

// AllElements returns every registered element, in no particular order.
func (d *Datamodel) AllElements() []*Element {
	out := make([]*Element, 0, len(d.registry))
	for _, e := range d.registry {
		out = append(out, e)
	}
	return out
}

// SetRoot designates e as the datamodel's root element, adopting it
// first if it is currently detached.
func (d *Datamodel) SetRoot(e *Element) error {
	if e != nil && e.datamodel == nil {
		if err := d.adopt(e); err != nil {
			return err
		}
	} else if e != nil && e.datamodel != d {
		return dmxerr.New(dmxerr.ElementOwnership, "root element %s is owned by a different datamodel", e.id)
	}
	d.root = e
	return nil
}

// ImportMode selects how ImportElement treats an imported element's own
// Element/ElementArray-valued attributes (spec §4.4).
type ImportMode int

const (
	// ImportShallow copies the element itself but replaces any element
	// references it holds with stubs in the destination datamodel.
	ImportShallow ImportMode = iota
	// ImportDeep recursively imports the whole reachable subgraph.
	ImportDeep
	// ImportAsStub creates only a stub carrying src's id.
	ImportAsStub
)

type importOptions struct {
	preserveIDs bool
}

// ImportOption configures ImportElement.
type ImportOption func(*importOptions)

// PreserveIDs makes ImportElement reuse src's id (and, transitively
// under ImportDeep, every referenced element's id) instead of minting
// fresh ones, failing with ElementIdInUse on collision.
func PreserveIDs() ImportOption {
	return func(o *importOptions) { o.preserveIDs = true }
}

// ImportElement copies src (which may belong to another datamodel, or to
// none) into d according to mode (spec §4.4). It is safe against cycles
// in the source graph under ImportDeep.
func (d *Datamodel) ImportElement(src *Element, mode ImportMode, opts ...ImportOption) (*Element, error) {
	if src == nil {
		return nil, nil
	}
	var o importOptions
	for _, opt := range opts {
		opt(&o)
	}
	return d.importElement(src, mode, &o, make(map[Id]*Element))
}

func (d *Datamodel) importElement(src *Element, mode ImportMode, o *importOptions, seen map[Id]*Element) (*Element, error) {
	if mode == ImportAsStub {
		if existing, ok := d.registry[src.id]; ok {
			return existing, nil
		}
		stub := newStubElement(src.id)
		stub.datamodel = d
		d.registry[src.id] = stub
		return stub, nil
	}

	if dst, ok := seen[src.id]; ok {
		return dst, nil
	}

	id := NewId()
	if o.preserveIDs {
		id = src.id
		if _, exists := d.registry[id]; exists {
			return nil, dmxerr.New(dmxerr.ElementIdInUse, "element id %s already exists in this datamodel", id)
		}
	}

	dst := newDetachedElement(src.className, src.name, id)
	dst.datamodel = d
	d.registry[id] = dst
	seen[src.id] = dst

	for _, a := range src.attrs {
		v, err := a.Get()
		if err != nil {
			return nil, err
		}
		nv, err := d.importValue(v, mode, o, seen)
		if err != nil {
			return nil, err
		}
		if err := dst.SetAttr(a.name, nv); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func (d *Datamodel) importValue(v Value, mode ImportMode, o *importOptions, seen map[Id]*Element) (Value, error) {
	switch v.kind {
	case KindElement:
		e, _ := v.element()
		if e == nil {
			return v, nil
		}
		refMode := ImportAsStub
		if mode == ImportDeep {
			refMode = ImportDeep
		}
		ne, err := d.importElement(e, refMode, o, seen)
		if err != nil {
			return Value{}, err
		}
		return ElementValue(ne), nil

	case KindElementArray:
		arr, ok := v.elementArray()
		if !ok || arr == nil {
			return v, nil
		}
		newArr := NewElementArray()
		refMode := ImportAsStub
		if mode == ImportDeep {
			refMode = ImportDeep
		}
		for _, e := range arr.Elems() {
			if e == nil {
				newArr.elems = append(newArr.elems, nil)
				continue
			}
			ne, err := d.importElement(e, refMode, o, seen)
			if err != nil {
				return Value{}, err
			}
			newArr.elems = append(newArr.elems, ne)
		}
		return ElementArrayValue(newArr), nil

	default:
		return v, nil
	}
}

// timeSpanCapable reports whether (encoding, version) can represent a
// TimeSpan attribute value: keyvalues2/1 and binary/5 carry TimeSpan;
// binary versions 2-4 predate it, as does any encoding not named here.
func timeSpanCapable(encoding string, version int) bool {
	switch encoding {
	case "keyvalues2":
		return true
	case "binary":
		return version >= 5
	default:
		return false
	}
}

// checkSaveCompat rejects, before any codec is invoked, a save whose
// target (encoding, version) cannot represent a TimeSpan value already
// materialized somewhere in the graph. Deferred attributes are not
// forced to materialize for this check alone -- doing so would defeat
// the purpose of deferred load for the common case of re-saving a
// datamodel without touching most of its data. The codecs do not repeat
// this check, so a still-deferred TimeSpan array is encoded into the
// target unchecked.
func (d *Datamodel) checkSaveCompat(encoding string, version int) error {
	if timeSpanCapable(encoding, version) {
		return nil
	}
	for _, e := range d.registry {
		for _, a := range e.attrs {
			if a.state != stateMaterialized {
				continue
			}
			if a.value.kind == KindTimeSpan || (a.value.kind == KindArray && a.value.elemKind == KindTimeSpan) {
				return dmxerr.New(dmxerr.AttributeType,
					"attribute %q on element %s is a TimeSpan, unrepresentable in %s version %d",
					a.name, e.id, encoding, version)
			}
		}
	}
	return nil
}

// Save encodes d using the registered codec for (encoding, version)
// (spec §4.4/§6).
func (d *Datamodel) Save(w io.Writer, encoding string, version int) error {
	if err := d.checkSaveCompat(encoding, version); err != nil {
		return err
	}
	c, ok := lookupCodec(encoding, version)
	if !ok {
		return dmxerr.New(dmxerr.CodecNotFound, "no codec registered for encoding %q version %d", encoding, version)
	}
	return c.Encode(d, w, version)
}

// Load reads a datamodel from r, sniffing the header line to select a
// registered codec (spec §4.4/§6). mode is passed through to the codec
// to bound how much it may leave deferred. The header is read one byte at
// a time, so nothing past its newline is consumed from r before a codec
// has been selected.
func Load(r io.Reader, mode DeferredMode) (*Datamodel, error) {
	var hdr []byte
	b := make([]byte, 1)
	for len(hdr) == 0 || hdr[len(hdr)-1] != '\n' {
		if _, err := io.ReadFull(r, b); err != nil {
			if len(hdr) == 0 {
				return nil, dmxerr.Wrap(dmxerr.UnsupportedFormat, err, "reading dmx header line")
			}
			break
		}
		hdr = append(hdr, b[0])
	}

	encoding, encVersion, format, formatVersion, err := parseHeader(string(hdr))
	if err != nil {
		return nil, err
	}

	c, ok := lookupCodec(encoding, encVersion)
	if !ok {
		return nil, dmxerr.New(dmxerr.CodecNotFound, "no codec registered for encoding %q version %d", encoding, encVersion)
	}

	dm, err := c.Decode(r, mode)
	if err != nil {
		return nil, err
	}
	dm.format = format
	dm.formatVersion = formatVersion
	dm.codec = c
	return dm, nil
}

// Dispose releases any codec-held resources backing this datamodel's
// deferred attributes (spec §5). After Dispose, any attribute still
// carrying a deferred binding fails its next access with a Codec error
// rather than touching the now-closed stream.
func (d *Datamodel) Dispose() error {
	var err error
	if closer, ok := d.codec.(io.Closer); ok {
		err = closer.Close()
	}
	d.codec = disposedCodec{}
	for _, e := range d.registry {
		for _, a := range e.attrs {
			if a.state == stateDeferred {
				a.codec = disposedCodec{}
			}
		}
	}
	return err
}
