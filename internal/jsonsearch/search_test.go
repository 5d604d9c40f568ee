package jsonsearch

import (
	"testing"
)

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	v, err := Decode([]byte(s))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return v
}

func TestFindObjectsWithKey(t *testing.T) {
	doc := mustDecode(t, `{
		"b": [{"word": "second", "start": 2}],
		"a": {"word": "first", "start": 1, "nested": {"word": "inner", "start": 1.5}},
		"c": [[{"word": "deep", "start": 3}], 7, "x", null]
	}`)

	got := FindObjectsWithKey(doc, "word")
	want := []string{"first", "inner", "second", "deep"}
	if len(got) != len(want) {
		t.Fatalf("found %d objects, want %d", len(got), len(want))
	}
	for i, obj := range got {
		if s, _ := String(obj["word"]); s != want[i] {
			t.Errorf("object %d word = %q, want %q", i, s, want[i])
		}
	}
}

func TestFindObjectsWithKeyScalarRoot(t *testing.T) {
	for _, doc := range []string{`1`, `"word"`, `null`, `[]`, `{}`} {
		if got := FindObjectsWithKey(mustDecode(t, doc), "word"); len(got) != 0 {
			t.Errorf("%s: found %d objects, want 0", doc, len(got))
		}
	}
}

func TestFindValues(t *testing.T) {
	doc := mustDecode(t, `{"assets": [{"mp4_s3_path": "a.mp4"}, {"mp4_s3_path": "b.mp4"}]}`)
	vals := FindValues(doc, "mp4_s3_path")
	if len(vals) != 2 || vals[0] != "a.mp4" || vals[1] != "b.mp4" {
		t.Errorf("FindValues = %v", vals)
	}
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	if _, err := Decode([]byte(`{} {}`)); err == nil {
		t.Error("expected error for trailing document")
	}
	if _, err := Decode([]byte(`{"a":`)); err == nil {
		t.Error("expected error for truncated document")
	}
}

func TestAccessors(t *testing.T) {
	doc := mustDecode(t, `{"list": [{"n": 1.5, "s": "x"}]}`)

	list, ok := Get(doc, "list")
	if !ok {
		t.Fatal("missing list")
	}
	first, ok := Index(list, 0)
	if !ok {
		t.Fatal("missing first element")
	}
	if _, ok := Index(list, 1); ok {
		t.Error("Index out of range reported ok")
	}
	n, _ := Get(first, "n")
	if f, ok := Number(n); !ok || f != 1.5 {
		t.Errorf("Number = %v, %v", f, ok)
	}
	s, _ := Get(first, "s")
	if _, ok := Number(s); ok {
		t.Error("Number accepted a string")
	}
	if _, ok := Get(list, "n"); ok {
		t.Error("Get on array reported ok")
	}
}
