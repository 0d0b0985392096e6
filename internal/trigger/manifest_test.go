package trigger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

const testManifest = `
schema: rebit.functions.v1
functions:
  - name: TransferCats
    target: http://handlers:7071/TransferCats
    bindings:
      - type: blobTrigger
        path: cats-inbox/incoming/
      - type: blob
        direction: out
        path: cats-archive/
  - name: GetCats
    target: http://handlers:7071/GetCats
    bindings:
      - type: queue
        direction: out
        queue: audit
      - type: httpTrigger
        route: GetCats
        methods: [GET]
  - name: transfercats
    bindings:
      - type: httpTrigger
        route: shadow
  - name: Legacy
    bindings:
      - type: eventHubTrigger
`

func TestDiscover(t *testing.T) {
	m, err := ParseManifest([]byte(testManifest))
	if err != nil {
		t.Fatalf("ParseManifest() err=%v", err)
	}
	var logs bytes.Buffer
	reg := NewRegistry(context.Background(), nil,
		stubPlugin{kind: File, types: []string{"blobTrigger"}, replay: true},
		stubPlugin{kind: HTTP, types: []string{"httpTrigger"}, replay: true},
	)
	cat, err := Discover(m, reg, testLogger(&logs))
	if err != nil {
		t.Fatalf("Discover() err=%v", err)
	}

	if cat.Len() != 3 {
		t.Fatalf("Len()=%d, want 3", cat.Len())
	}
	fn, ok := cat.Lookup("TRANSFERCATS")
	if !ok {
		t.Fatalf("Lookup(TRANSFERCATS) not found")
	}
	if fn.Kind != File || fn.Meta("path") != "cats-inbox/incoming/" {
		t.Fatalf("TransferCats=%+v, want first registration", fn)
	}
	if fn.Target != "http://handlers:7071/TransferCats" {
		t.Fatalf("Target=%q", fn.Target)
	}

	getCats, _ := cat.Lookup("getcats")
	if getCats.Kind != HTTP {
		t.Fatalf("GetCats kind=%v, want Http (output bindings ignored)", getCats.Kind)
	}

	legacy, ok := cat.Lookup("Legacy")
	if !ok || legacy.Kind != Unknown {
		t.Fatalf("Legacy=%+v ok=%v, want Unknown kind", legacy, ok)
	}

	if !strings.Contains(logs.String(), "duplicate function ignored") {
		t.Fatalf("expected duplicate warning: %s", logs.String())
	}

	fn.Metadata["path"] = "mutated"
	again, _ := cat.Lookup("TransferCats")
	if again.Meta("path") != "cats-inbox/incoming/" {
		t.Fatalf("catalog entry mutated through Lookup copy")
	}

	if got := cat.OfKind(HTTP); len(got) != 1 || got[0].Name != "GetCats" {
		t.Fatalf("OfKind(Http)=%v", got)
	}
}

func TestDiscover_DescribeError(t *testing.T) {
	m := Manifest{Schema: ManifestSchemaV1, Functions: []FunctionSpec{{
		Name:     "Broken",
		Bindings: []Binding{{Type: "blobTrigger", Path: "bad"}},
	}}}
	reg := NewRegistry(context.Background(), nil, stubPlugin{kind: File, types: []string{"blobTrigger"}})
	if _, err := Discover(m, reg, nil); err == nil || !strings.Contains(err.Error(), "Broken") {
		t.Fatalf("Discover() err=%v, want describe error naming function", err)
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	cases := map[string]string{
		"schema":        "schema: other\nfunctions: [{name: a, bindings: [{type: httpTrigger}]}]",
		"empty":         "schema: rebit.functions.v1\nfunctions: []",
		"no name":       "schema: rebit.functions.v1\nfunctions: [{bindings: [{type: httpTrigger}]}]",
		"slash":         "schema: rebit.functions.v1\nfunctions: [{name: a/b, bindings: [{type: httpTrigger}]}]",
		"no bindings":   "schema: rebit.functions.v1\nfunctions: [{name: a}]",
		"binding type":  "schema: rebit.functions.v1\nfunctions: [{name: a, bindings: [{route: x}]}]",
		"unknown field": "schema: rebit.functions.v1\nfunctions: [{name: a, handler: x, bindings: [{type: httpTrigger}]}]",
	}
	for name, input := range cases {
		if _, err := ParseManifest([]byte(input)); err == nil {
			t.Fatalf("%s: ParseManifest() expected error", name)
		}
	}
}

func TestNameSet(t *testing.T) {
	set := NewNameSet("Resubmit", " ", "Health")
	if !set.Contains("resubmit") || !set.Contains("HEALTH") {
		t.Fatalf("NameSet missing entries: %v", set)
	}
	if set.Contains("") || set.Contains("GetCats") {
		t.Fatalf("NameSet contains unexpected entries: %v", set)
	}
}
