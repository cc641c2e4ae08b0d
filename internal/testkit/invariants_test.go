package testkit

import (
	"context"
	"testing"

	"asyncexpr/internal/expr"
	"asyncexpr/internal/lower"
	"asyncexpr/internal/samples"
)

func TestSamplesSatisfyInvariants(t *testing.T) {
	for _, s := range samples.All() {
		for _, debug := range []bool{false, true} {
			res, err := lower.Lower(context.Background(), s.Build(samples.NewEnv()), lower.Options{Debug: debug})
			if err != nil {
				t.Fatalf("%s: lower: %v", s.Name, err)
			}
			if err := CheckMachineInvariants(res); err != nil {
				t.Fatalf("%s (debug=%v): %v", s.Name, debug, err)
			}
		}
	}
}

func TestInvariantsRejectBrokenResults(t *testing.T) {
	lambda := expr.Lambda("f", false, nil, expr.Const(1))
	tests := []struct {
		name string
		res  *lower.Result
	}{
		{"nil", nil},
		{"not a lambda", &lower.Result{Lambda: expr.Const(1)}},
		{"no machines", &lower.Result{Lambda: lambda}},
		{"stateless machine", &lower.Result{Lambda: lambda, Machines: []*lower.Machine{{Name: "m"}}}},
		{"residual await", &lower.Result{
			Lambda:   expr.Lambda("g", false, nil, expr.Await(expr.Const(1))),
			Machines: []*lower.Machine{{Name: "m", FastPath: true}},
		}},
	}
	for _, tt := range tests {
		if err := CheckMachineInvariants(tt.res); err == nil {
			t.Fatalf("%s: accepted", tt.name)
		}
	}
}
