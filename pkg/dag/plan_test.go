package dag

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func scenarioNodes() []*Node {
	return []*Node{
		{Name: "double", Sources: []Source{InputSource("param1")}},
		{Name: "sum", Sources: []Source{StepSource("double"), InputSource("param2")}},
		{Name: "unused", Sources: []Source{InputSource("param1")}},
	}
}

func TestCompile_Scenario(t *testing.T) {
	plan, err := Compile([]string{"param1", "param2"}, scenarioNodes(), "sum")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if plan.Len() != 3 {
		t.Errorf("expected 3 steps, got %d", plan.Len())
	}
	if plan.ReturnName() != "sum" {
		t.Errorf("expected return sum, got %s", plan.ReturnName())
	}
	if got := plan.RequiredNames(); !reflect.DeepEqual(got, []string{"double", "sum"}) {
		t.Errorf("RequiredNames() = %v", got)
	}
	if idx, _ := plan.Index("unused"); plan.Required(idx) {
		t.Error("unused should not be required")
	}
	if got := plan.CriticalPath(); !reflect.DeepEqual(got, []string{"double", "sum"}) {
		t.Errorf("CriticalPath() = %v", got)
	}
	if !strings.Contains(plan.String(), "return sum") {
		t.Errorf("String() missing return: %s", plan.String())
	}
}

func TestCompile_ForkJoinLayers(t *testing.T) {
	nodes := []*Node{
		{Name: "a"},
		{Name: "b", Sources: []Source{StepSource("a")}},
		{Name: "c", Sources: []Source{StepSource("a")}},
		{Name: "d", Sources: []Source{StepSource("b"), StepSource("c")}},
	}
	plan, err := Compile(nil, nodes, "d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]string{{"a"}, {"b", "c"}, {"d"}}
	if got := plan.Layers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Layers() = %v, want %v", got, want)
	}
	if plan.MaxParallel() != 2 {
		t.Errorf("expected max parallel 2, got %d", plan.MaxParallel())
	}

	pos := make(map[string]int)
	for i, node := range plan.Order() {
		pos[plan.Name(node)] = i
	}
	if pos["a"] > pos["b"] || pos["b"] > pos["d"] || pos["c"] > pos["d"] {
		t.Errorf("order violates dependencies: %v", pos)
	}

	rev := plan.ReverseOrder()
	if plan.Name(rev[0]) != "d" || plan.Name(rev[len(rev)-1]) != "a" {
		t.Errorf("unexpected reverse order: %v", rev)
	}
}

func TestCompile_UnresolvedArgument(t *testing.T) {
	tests := []struct {
		name   string
		nodes  []*Node
		source string
	}{
		{
			name:   "unknown input",
			nodes:  []*Node{{Name: "a", Sources: []Source{InputSource("missing")}}},
			source: "input:missing",
		},
		{
			name:   "unknown step",
			nodes:  []*Node{{Name: "a", Sources: []Source{StepSource("ghost")}}},
			source: "step:ghost",
		},
		{
			name:   "unknown explicit dependency",
			nodes:  []*Node{{Name: "a", Deps: []string{"ghost"}}},
			source: "step:ghost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]string{"x"}, tt.nodes, "a")
			var unresolved *UnresolvedArgumentError
			if !errors.As(err, &unresolved) {
				t.Fatalf("expected UnresolvedArgumentError, got %v", err)
			}
			if unresolved.Step != "a" || unresolved.Source.String() != tt.source {
				t.Errorf("unexpected error fields: %+v", unresolved)
			}
		})
	}
}

func TestCompile_Cycle(t *testing.T) {
	nodes := []*Node{
		{Name: "a", Sources: []Source{StepSource("c")}},
		{Name: "b", Sources: []Source{StepSource("a")}},
		{Name: "c", Sources: []Source{StepSource("b")}},
	}
	_, err := Compile(nil, nodes, "c")

	var cycle *CycleDetectedError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleDetectedError, got %v", err)
	}
	if len(cycle.Cycle) != 4 {
		t.Errorf("expected a closed 3-cycle, got %v", cycle.Cycle)
	}
}

func TestCompile_UnreachableReturn(t *testing.T) {
	tests := []struct {
		name string
		ret  string
	}{
		{"empty", ""},
		{"undeclared", "ghost"},
		{"input", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]string{"x"}, []*Node{{Name: "a"}}, tt.ret)
			var unreachable *UnreachableReturnError
			if !errors.As(err, &unreachable) {
				t.Fatalf("expected UnreachableReturnError, got %v", err)
			}
		})
	}
}

func TestCompile_Duplicates(t *testing.T) {
	_, err := Compile(nil, []*Node{{Name: "a"}, {Name: "a"}}, "a")
	var dup *DuplicateStepError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateStepError, got %v", err)
	}

	_, err = Compile([]string{"a"}, []*Node{{Name: "a"}}, "a")
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateStepError for input/step clash, got %v", err)
	}
}

func TestPlan_AccessorsReturnCopies(t *testing.T) {
	plan, err := Compile(nil, chain("a", "b"), "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deps := plan.Deps(1)
	deps[0] = 99
	if plan.Deps(1)[0] != 0 {
		t.Error("Deps leaked internal slice")
	}
	order := plan.Order()
	order[0] = 99
	if plan.Order()[0] == 99 {
		t.Error("Order leaked internal slice")
	}
}
