package keyvalues2

import (
	"bufio"
	"fmt"
	"strings"

	"miren.dev/dmx"
)

type encoder struct {
	w       *bufio.Writer
	written map[dmx.Id]bool
}

// quote renders s as a keyvalues2 quoted string, escaping backslashes and
// embedded quotes.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// element writes e as either a nil marker, a bare-id reference to an
// element that is a stub or was already fully written earlier in this
// document, or (the first time a non-stub e's id is seen) a full
// `"className" { ... }` block with its attributes. A reference is never
// spelled as an empty block: that would be indistinguishable from the
// full definition of an element with no name and no attributes.
func (enc *encoder) element(e *dmx.Element) error {
	if e == nil {
		_, err := fmt.Fprint(enc.w, "\"nil\"\n")
		return err
	}

	if e.IsStub() || enc.written[e.ID()] {
		_, err := fmt.Fprintf(enc.w, "%s\n", quote(e.ID().String()))
		return err
	}
	enc.written[e.ID()] = true

	if _, err := fmt.Fprintf(enc.w, "%s\n{\n", quote(e.ClassName())); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(enc.w, "\"id\" \"elementid\" %s\n", quote(e.ID().String())); err != nil {
		return err
	}

	if e.Name() != "" {
		if _, err := fmt.Fprintf(enc.w, "\"name\" \"string\" %s\n", quote(e.Name())); err != nil {
			return err
		}
	}

	for _, a := range e.Attrs() {
		v, err := a.Get()
		if err != nil {
			return err
		}
		if err := enc.attr(a.Name(), v); err != nil {
			return err
		}
	}

	_, err := fmt.Fprint(enc.w, "}\n")
	return err
}

func (enc *encoder) attr(name string, v dmx.Value) error {
	switch v.Kind() {
	case dmx.KindElement:
		if _, err := fmt.Fprintf(enc.w, "%s \"element\" ", quote(name)); err != nil {
			return err
		}
		e, _ := dmx.Get[*dmx.Element](v)
		return enc.element(e)

	case dmx.KindElementArray:
		arr, _ := dmx.Get[*dmx.ElementArray](v)
		if _, err := fmt.Fprintf(enc.w, "%s \"element_array\"\n[\n", quote(name)); err != nil {
			return err
		}
		if arr != nil {
			for _, e := range arr.Elems() {
				if err := enc.element(e); err != nil {
					return err
				}
			}
		}
		_, err := fmt.Fprint(enc.w, "]\n")
		return err

	case dmx.KindArray:
		tag, err := typeTag(v.ElemKind())
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(enc.w, "%s %s\n[\n", quote(name), quote(tag+"_array")); err != nil {
			return err
		}
		texts, err := arrayElementTexts(v)
		if err != nil {
			return err
		}
		for _, t := range texts {
			if _, err := fmt.Fprintf(enc.w, "%s\n", quote(t)); err != nil {
				return err
			}
		}
		_, err = fmt.Fprint(enc.w, "]\n")
		return err

	default:
		tag, err := typeTag(v.Kind())
		if err != nil {
			return err
		}
		text, err := scalarText(v.Kind(), v.Any())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(enc.w, "%s %s %s\n", quote(name), quote(tag), quote(text))
		return err
	}
}
