package testutil

import (
	"reflect"
	"testing"
)

type Person struct {
	Name string
	Age  int
}

func TestJS(t *testing.T) {
	tests := []struct {
		name string
		arg  interface{}
		want string
	}{
		{
			name: "simple struct",
			arg:  Person{"Homer", 39},
			want: `{"Name":"Homer","Age":39}`,
		},
		{
			name: "unmarshalable",
			arg:  func() {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JS(tt.arg)
			if tt.want != "" && got != tt.want {
				t.Errorf("JS() = %v, want %v", got, tt.want)
			}
			if got == "" {
				t.Error("empty")
			}
		})
	}
}

func TestSolve(t *testing.T) {
	g := Graph(t, `
neurons:
  beer: {text: beer}
  donuts: {text: donuts}
code:
  main:
    - {do: addResult, args: [1, beer]}
    - {do: addResult, args: [2, donuts]}
`)
	got := Labels(g, Solve(t, g, "main"))
	if want := []string{"donuts", "beer"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v", got)
	}
}
