package main

import (
	"flag"
	"fmt"
	"strings"
	"testing"
)

// resetFlags returns every flag to its default, then applies the given
// name/value pairs.
func resetFlags(t *testing.T, values ...string) {
	flag.CommandLine.VisitAll(func(f *flag.Flag) {
		if !strings.HasPrefix(f.Name, "test") {
			if err := f.Value.Set(f.DefValue); err != nil {
				panic(fmt.Sprintf("Failed to reset flag %s to its default %s: %v", f.Name, f.DefValue, err))
			}
		}
	})

	for i := 0; i+1 < len(values); i += 2 {
		if err := flag.Set(values[i], values[i+1]); err != nil {
			t.Fatalf("Failed to set flag %s: %v", values[i], err)
		}
	}
}
