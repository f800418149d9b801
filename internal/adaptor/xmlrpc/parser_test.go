package xmlrpc

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseScalars(t *testing.T) {
	doc := `<?xml version="1.0"?>
<methodResponse>
  <params>
    <param><value><string> hello </string></value></param>
    <param><value><int>42</int></value></param>
  </params>
</methodResponse>`

	got, err := ParseReply([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	want := []any{"hello", 42}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("params = %#v, want %#v", got, want)
	}
}

func TestParseStruct(t *testing.T) {
	doc := `<methodResponse><params><param><value>
  <struct>
    <member><name>status</name><value><string>ok</string></value></member>
    <member><name>count</name><value><int>3</int></value></member>
  </struct>
</value></param></params></methodResponse>`

	got, err := ParseReply([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("params = %#v", got)
	}
	want := map[string]any{"status": "ok", "count": 3}
	if !reflect.DeepEqual(got[0], want) {
		t.Fatalf("struct = %#v, want %#v", got[0], want)
	}
}

func TestParseNestedStruct(t *testing.T) {
	doc := `<methodResponse><params><param><value>
  <struct>
    <member><name>outer</name><value>
      <struct>
        <member><name>inner</name><value><int>1</int></value></member>
      </struct>
    </value></member>
  </struct>
</value></param></params></methodResponse>`

	got, err := ParseReply([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	outer := got[0].(map[string]any)
	inner, ok := outer["outer"].(map[string]any)
	if !ok || inner["inner"] != 1 {
		t.Fatalf("nested struct = %#v", got[0])
	}
}

func TestParseEmptyParams(t *testing.T) {
	got, err := ParseReply([]byte(`<methodResponse><params></params></methodResponse>`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("params = %#v, want empty", got)
	}
}

func TestParseRejectsViolations(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"wrong root", `<response><params></params></response>`},
		{"missing params", `<methodResponse></methodResponse>`},
		{"stray tag in params", `<methodResponse><params><bogus/></params></methodResponse>`},
		{"untyped value", `<methodResponse><params><param><value>plain</value></param></params></methodResponse>`},
		{"unknown type", `<methodResponse><params><param><value><double>1.5</double></value></param></params></methodResponse>`},
		{"bad int", `<methodResponse><params><param><value><int>four</int></value></param></params></methodResponse>`},
		{"member without name", `<methodResponse><params><param><value><struct><member><value><int>1</int></value></member></struct></value></param></params></methodResponse>`},
		{"truncated", `<methodResponse><params><param><value><string>x</string>`},
		{"trailing garbage", `<methodResponse><params></params></methodResponse><extra/>`},
		{"not xml", `hello`},
	}
	for _, c := range cases {
		got, err := ParseReply([]byte(c.doc))
		if err == nil {
			t.Errorf("%s: accepted %#v", c.name, got)
			continue
		}
		if !errors.Is(err, ErrMalformedReply) {
			t.Errorf("%s: err = %v, want ErrMalformedReply", c.name, err)
		}
	}
}

func TestParseTrimsMemberNames(t *testing.T) {
	doc := `<methodResponse><params><param><value>
  <struct><member><name>
    spaced
  </name><value><string>v</string></value></member></struct>
</value></param></params></methodResponse>`

	got, err := ParseReply([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	m := got[0].(map[string]any)
	if m["spaced"] != "v" {
		t.Fatalf("struct = %#v", m)
	}
}
