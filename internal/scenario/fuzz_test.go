package scenario

import (
	"testing"
)

func FuzzParse(f *testing.F) {
	f.Add(string(DefaultSource()))
	f.Add(`body "root" "sol" { mass = 2e30 }`)
	f.Add(`body "planet" "p" { orbit { sma = 1 } }`)

	f.Fuzz(func(t *testing.T, src string) {
		// Limit size to avoid timeouts during fuzzing
		if len(src) > 4096 {
			return
		}
		store, err := Parse([]byte(src), "fuzz.hcl")
		if err != nil {
			return
		}
		if store == nil {
			t.Fatal("store is nil")
		}
	})
}
