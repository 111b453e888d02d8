package record

import (
	"errors"
	"reflect"
	"testing"
)

func TestSetPathsSorted(t *testing.T) {
	set := Set{
		"/b": {Path: "/b"},
		"/a": {Path: "/a"},
		"/c": {Path: "/c"},
	}
	want := []string{"/a", "/b", "/c"}
	if got := set.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("Paths() = %v, want %v", got, want)
	}
}

func TestSetHashesDistinct(t *testing.T) {
	set := Set{
		"/a": {Path: "/a", Hash: "aa"},
		"/b": {Path: "/b", Hash: "aa"},
		"/c": {Path: "/c", Hash: "bb"},
	}
	want := []Digest{"aa", "bb"}
	if got := set.Hashes(); !reflect.DeepEqual(got, want) {
		t.Errorf("Hashes() = %v, want %v", got, want)
	}
}

func TestSetTotalSize(t *testing.T) {
	set := Set{
		"/a": {Path: "/a", Size: 10},
		"/b": {Path: "/b", Size: 32},
	}
	if got := set.TotalSize(); got != 42 {
		t.Errorf("TotalSize() = %d, want 42", got)
	}
}

func TestWarningString(t *testing.T) {
	w := NewWarning("/tmp/x", errors.New("permission denied"))
	if got := w.String(); got != "/tmp/x: permission denied" {
		t.Errorf("String() = %q", got)
	}
	if w.Message != "permission denied" {
		t.Errorf("Message = %q", w.Message)
	}
}
