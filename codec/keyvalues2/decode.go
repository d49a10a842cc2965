package keyvalues2

import (
	"fmt"

	"miren.dev/dmx"
	"miren.dev/dmx/dmxerr"
)

type tokenKind int

const (
	tokString tokenKind = iota
	tokLBrace
	tokRBrace
	tokLBracket
	tokRBracket
)

type token struct {
	kind tokenKind
	text string
}

// tokenize splits a keyvalues2 body into quoted-string and brace/bracket
// tokens, the only lexical elements the grammar uses.
func tokenize(body []byte) ([]token, error) {
	var toks []token
	i, n := 0, len(body)

	isSpace := func(b byte) bool {
		return b == ' ' || b == '\t' || b == '\n' || b == '\r'
	}

	for i < n {
		b := body[i]
		switch {
		case isSpace(b):
			i++
		case b == '{':
			toks = append(toks, token{kind: tokLBrace})
			i++
		case b == '}':
			toks = append(toks, token{kind: tokRBrace})
			i++
		case b == '[':
			toks = append(toks, token{kind: tokLBracket})
			i++
		case b == ']':
			toks = append(toks, token{kind: tokRBracket})
			i++
		case b == '"':
			i++
			start := i
			var sb []byte
			for i < n && body[i] != '"' {
				if body[i] == '\\' && i+1 < n {
					i++
					sb = append(sb, body[i])
					i++
					continue
				}
				sb = append(sb, body[i])
				i++
			}
			if i >= n {
				return nil, fmt.Errorf("unterminated quoted string starting at byte %d", start)
			}
			toks = append(toks, token{kind: tokString, text: string(sb)})
			i++
		default:
			return nil, fmt.Errorf("unexpected byte %q at offset %d", b, i)
		}
	}
	return toks, nil
}

// parser walks the token stream with a single cursor; keyvalues2 needs
// no backtracking.
type parser struct {
	toks []token
	pos  int
	dm   *dmx.Datamodel
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, error) {
	t, ok := p.peek()
	if !ok {
		return token{}, dmxerr.New(dmxerr.UnsupportedFormat, "unexpected end of keyvalues2 stream")
	}
	p.pos++
	return t, nil
}

func (p *parser) expect(k tokenKind) (token, error) {
	t, err := p.next()
	if err != nil {
		return t, err
	}
	if t.kind != k {
		return t, dmxerr.New(dmxerr.UnsupportedFormat, "unexpected token at position %d", p.pos-1)
	}
	return t, nil
}

func (p *parser) expectString() (string, error) {
	t, err := p.expect(tokString)
	if err != nil {
		return "", err
	}
	return t.text, nil
}

// parseElementValue parses whatever follows an "element"-typed attribute
// tag or an entry inside an element_array: the literal "nil", a bare
// elementid string referencing an element defined elsewhere (or not yet
// seen: ResolveOrStub installs a stub that a later full definition fills
// in place), or a full className + block definition. The bare-id form is
// what the encoder emits for a reference, so it's the only form this
// parser treats as one; a block is always a definition.
func (p *parser) parseElementValue() (*dmx.Element, error) {
	save := p.pos
	s, err := p.expectString()
	if err == nil {
		if _, ok := p.peek(); !ok || p.toks[p.pos].kind != tokLBrace {
			if s == "nil" {
				return nil, nil
			}
			if id, idErr := dmx.ParseId(s); idErr == nil {
				return p.dm.ResolveOrStub(id), nil
			}
		}
	}
	p.pos = save
	return p.parseElement()
}

// parseElement parses a `"className" { ... }` definition block and returns
// the defined element, filling in place any stub an earlier forward
// reference left under the same id.
func (p *parser) parseElement() (*dmx.Element, error) {
	className, err := p.expectString()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}

	idName, err := p.expectString()
	if err != nil {
		return nil, err
	}
	if idName != "id" {
		return nil, dmxerr.New(dmxerr.UnsupportedFormat, "expected leading \"id\" key in element block, got %q", idName)
	}
	idType, err := p.expectString()
	if err != nil {
		return nil, err
	}
	if idType != "elementid" {
		return nil, dmxerr.New(dmxerr.UnsupportedFormat, "expected \"elementid\" type, got %q", idType)
	}
	idText, err := p.expectString()
	if err != nil {
		return nil, err
	}
	id, err := dmx.ParseId(idText)
	if err != nil {
		return nil, dmxerr.Wrap(dmxerr.UnsupportedFormat, err, "parsing element id %q", idText)
	}

	e, err := p.dm.BeginElement(id, className, "")
	if err != nil {
		return nil, err
	}

	for {
		t, ok := p.peek()
		if !ok {
			return nil, dmxerr.New(dmxerr.UnsupportedFormat, "unexpected end of stream inside element block")
		}
		if t.kind == tokRBrace {
			p.pos++
			break
		}

		name, err := p.expectString()
		if err != nil {
			return nil, err
		}
		typeTag, err := p.expectString()
		if err != nil {
			return nil, err
		}

		if name == "name" && typeTag == "string" {
			text, err := p.expectString()
			if err != nil {
				return nil, err
			}
			e.SetName(text)
			continue
		}

		v, err := p.parseAttrValue(typeTag)
		if err != nil {
			return nil, err
		}
		if err := e.SetAttr(name, v); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func (p *parser) parseAttrValue(typeTag string) (dmx.Value, error) {
	switch typeTag {
	case "element":
		e, err := p.parseElementValue()
		if err != nil {
			return dmx.Value{}, err
		}
		return dmx.ElementValue(e), nil

	case "element_array":
		if _, err := p.expect(tokLBracket); err != nil {
			return dmx.Value{}, err
		}
		arr := dmx.NewElementArray()
		for {
			t, ok := p.peek()
			if !ok {
				return dmx.Value{}, dmxerr.New(dmxerr.UnsupportedFormat, "unexpected end of stream inside element_array")
			}
			if t.kind == tokRBracket {
				p.pos++
				break
			}
			e, err := p.parseElementValue()
			if err != nil {
				return dmx.Value{}, err
			}
			if err := arr.Add(e); err != nil {
				return dmx.Value{}, err
			}
		}
		return dmx.ElementArrayValue(arr), nil

	default:
		if k, ok := scalarArrayKind(typeTag); ok {
			if _, err := p.expect(tokLBracket); err != nil {
				return dmx.Value{}, err
			}
			var payloads []any
			for {
				t, ok := p.peek()
				if !ok {
					return dmx.Value{}, dmxerr.New(dmxerr.UnsupportedFormat, "unexpected end of stream inside array")
				}
				if t.kind == tokRBracket {
					p.pos++
					break
				}
				text, err := p.expectString()
				if err != nil {
					return dmx.Value{}, err
				}
				payload, err := parseScalar(k, text)
				if err != nil {
					return dmx.Value{}, err
				}
				payloads = append(payloads, payload)
			}
			return buildArrayValue(k, payloads)
		}

		k, ok := tagToKind(typeTag)
		if !ok {
			return dmx.Value{}, dmxerr.New(dmxerr.UnsupportedFormat, "unrecognized attribute type tag %q", typeTag)
		}
		text, err := p.expectString()
		if err != nil {
			return dmx.Value{}, err
		}
		payload, err := parseScalar(k, text)
		if err != nil {
			return dmx.Value{}, err
		}
		return scalarValue(k, payload), nil
	}
}

// scalarArrayKind recognizes a "<tag>_array" type name.
func scalarArrayKind(typeTag string) (dmx.Kind, bool) {
	const suffix = "_array"
	if len(typeTag) <= len(suffix) || typeTag[len(typeTag)-len(suffix):] != suffix {
		return dmx.KindInvalid, false
	}
	return tagToKind(typeTag[:len(typeTag)-len(suffix)])
}
