// Package xmlrpc parses XMLRPC methodResponse documents for the
// embedded scripting host.
//
// The accepted grammar is deliberately narrow:
//
//	<methodResponse><params>
//	  <param><value>SCALAR-OR-STRUCT</value></param>...
//	</params></methodResponse>
//
// where a scalar is <string> or <int> and a struct is a sequence of
// <member><name>..</name><value>..</value></member> pairs, possibly
// nested. Any structural violation aborts parsing.
package xmlrpc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformedReply reports a document outside the accepted grammar.
var ErrMalformedReply = errors.New("xmlrpc: malformed reply")

// ParseReply decodes a methodResponse document into its ordered
// parameter list. Entries are string, int, or map[string]any for
// structs. Text content is whitespace-trimmed.
func ParseReply(doc []byte) ([]any, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))

	if err := expectStart(dec, "methodResponse"); err != nil {
		return nil, err
	}
	if err := expectStart(dec, "params"); err != nil {
		return nil, err
	}

	params := make([]any, 0, 4)
	for {
		tok, err := nextToken(dec)
		if err != nil {
			return nil, malformed("params: %v", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if !nameIs(t.Name, "param") {
				return nil, malformed("unexpected <%s> inside <params>", t.Name.Local)
			}
			if err := expectStart(dec, "value"); err != nil {
				return nil, err
			}
			v, err := parseValue(dec)
			if err != nil {
				return nil, err
			}
			if err := expectEnd(dec, "param"); err != nil {
				return nil, err
			}
			params = append(params, v)
		case xml.EndElement:
			if !nameIs(t.Name, "params") {
				return nil, malformed("unexpected </%s> inside <params>", t.Name.Local)
			}
			if err := expectEnd(dec, "methodResponse"); err != nil {
				return nil, err
			}
			if err := expectEOF(dec); err != nil {
				return nil, err
			}
			return params, nil
		default:
			return nil, malformed("unexpected token inside <params>")
		}
	}
}

// parseValue consumes the content of a <value> up to and including its
// end tag.
func parseValue(dec *xml.Decoder) (any, error) {
	tok, err := nextToken(dec)
	if err != nil {
		return nil, malformed("value: %v", err)
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		return nil, malformed("value must carry a typed element")
	}

	var v any
	switch {
	case nameIs(start.Name, "string"):
		text, err := readText(dec, "string")
		if err != nil {
			return nil, err
		}
		v = text
	case nameIs(start.Name, "int"):
		text, err := readText(dec, "int")
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(text)
		if err != nil {
			return nil, malformed("bad int %q", text)
		}
		v = n
	case nameIs(start.Name, "struct"):
		m, err := parseStruct(dec)
		if err != nil {
			return nil, err
		}
		v = m
	default:
		return nil, malformed("unexpected value type <%s>", start.Name.Local)
	}

	if err := expectEnd(dec, "value"); err != nil {
		return nil, err
	}
	return v, nil
}

// parseStruct consumes members up to and including </struct>.
func parseStruct(dec *xml.Decoder) (map[string]any, error) {
	m := make(map[string]any)
	for {
		tok, err := nextToken(dec)
		if err != nil {
			return nil, malformed("struct: %v", err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if !nameIs(t.Name, "struct") {
				return nil, malformed("unexpected </%s> inside <struct>", t.Name.Local)
			}
			return m, nil
		case xml.StartElement:
			if !nameIs(t.Name, "member") {
				return nil, malformed("unexpected <%s> inside <struct>", t.Name.Local)
			}
			if err := expectStart(dec, "name"); err != nil {
				return nil, err
			}
			name, err := readText(dec, "name")
			if err != nil {
				return nil, err
			}
			if err := expectStart(dec, "value"); err != nil {
				return nil, err
			}
			v, err := parseValue(dec)
			if err != nil {
				return nil, err
			}
			if err := expectEnd(dec, "member"); err != nil {
				return nil, err
			}
			m[name] = v
		default:
			return nil, malformed("unexpected token inside <struct>")
		}
	}
}

// readText collects character data up to </tag> and trims it.
func readText(dec *xml.Decoder, tag string) (string, error) {
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", malformed("%s: %v", tag, err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if !nameIs(t.Name, tag) {
				return "", malformed("unexpected </%s> inside <%s>", t.Name.Local, tag)
			}
			return strings.TrimSpace(sb.String()), nil
		default:
			return "", malformed("unexpected token inside <%s>", tag)
		}
	}
}

// nextToken skips ignorable content: whitespace, comments, the XML
// declaration.
func nextToken(dec *xml.Decoder) (xml.Token, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return nil, errors.New("stray text")
			}
		case xml.Comment, xml.ProcInst, xml.Directive:
			// skip
		default:
			return tok, nil
		}
	}
}

func expectStart(dec *xml.Decoder, tag string) error {
	tok, err := nextToken(dec)
	if err != nil {
		return malformed("<%s>: %v", tag, err)
	}
	start, ok := tok.(xml.StartElement)
	if !ok || !nameIs(start.Name, tag) {
		return malformed("expected <%s>", tag)
	}
	return nil
}

func expectEnd(dec *xml.Decoder, tag string) error {
	tok, err := nextToken(dec)
	if err != nil {
		return malformed("</%s>: %v", tag, err)
	}
	end, ok := tok.(xml.EndElement)
	if !ok || !nameIs(end.Name, tag) {
		return malformed("expected </%s>", tag)
	}
	return nil
}

func expectEOF(dec *xml.Decoder) error {
	if _, err := nextToken(dec); !errors.Is(err, io.EOF) {
		return malformed("trailing content after </methodResponse>")
	}
	return nil
}

func nameIs(n xml.Name, s string) bool {
	return strings.EqualFold(n.Local, s)
}

func malformed(f string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedReply, fmt.Sprintf(f, args...))
}
