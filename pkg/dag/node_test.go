package dag

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		raw     string
		want    Source
		wantErr bool
	}{
		{"input:param1", InputSource("param1"), false},
		{"step:double", StepSource("double"), false},
		{"step:", Source{}, true},
		{"double", Source{}, true},
		{"output:x", Source{}, true},
		{"", Source{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSource(tt.raw)
			if tt.wantErr {
				var invalid *InvalidSourceError
				if !errors.As(err, &invalid) {
					t.Fatalf("expected InvalidSourceError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseSource(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			if got.String() != tt.raw {
				t.Errorf("String() = %q, want %q", got.String(), tt.raw)
			}
		})
	}
}

func TestNode_Dependencies_UnionOfBindingsAndDeps(t *testing.T) {
	n := &Node{
		Name: "sum",
		Sources: []Source{
			StepSource("double"),
			InputSource("param2"),
			StepSource("double"),
		},
		Deps: []string{"audit", "double"},
	}

	got := n.Dependencies()
	want := []string{"double", "audit"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dependencies() = %v, want %v", got, want)
	}
}

func TestNode_Clone(t *testing.T) {
	n := &Node{Name: "a", Sources: []Source{InputSource("x")}, Deps: []string{"b"}}
	clone := n.Clone()
	clone.Sources[0] = InputSource("y")
	clone.Deps[0] = "c"

	if n.Sources[0].Name != "x" || n.Deps[0] != "b" {
		t.Error("clone shares slices with the original")
	}
}

func TestNode_Validate(t *testing.T) {
	if err := (&Node{}).Validate(); err == nil {
		t.Error("expected error for empty name")
	}
	if err := (&Node{Name: "a", Deps: []string{""}}).Validate(); err == nil {
		t.Error("expected error for empty dependency")
	}
}
