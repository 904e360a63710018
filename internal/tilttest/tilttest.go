// Package tilttest holds the end-to-end TILT programs exercised by every
// engine's tests, stored as golang.org/x/tools/txtar archives -- the same
// format the Go toolchain's own script tests use for "one file, one
// fixture" readability.
package tilttest

import (
	"embed"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/tools/txtar"
)

//go:embed fixtures/*.txtar
var fixtureFS embed.FS

// Scenario is one named end-to-end program plus its expected result.
type Scenario struct {
	Name    string
	Comment string
	Source  string
	Want    int64
}

// Load parses every fixture under fixtures/ into a Scenario, in
// lexicographic file order (so the memory and print_host_call fixtures
// come before s1..s6).
func Load() ([]Scenario, error) {
	entries, err := fixtureFS.ReadDir("fixtures")
	if err != nil {
		return nil, fmt.Errorf("tilttest: %w", err)
	}
	var out []Scenario
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := fixtureFS.ReadFile("fixtures/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("tilttest: %w", err)
		}
		sc, err := parseScenario(e.Name(), data)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func parseScenario(filename string, data []byte) (Scenario, error) {
	ar := txtar.Parse(data)
	var source, want string
	for _, f := range ar.Files {
		switch f.Name {
		case "program.tilt":
			source = string(f.Data)
		case "want":
			want = strings.TrimSpace(string(f.Data))
		}
	}
	if source == "" {
		return Scenario{}, fmt.Errorf("tilttest: %s: missing program.tilt section", filename)
	}
	n, err := strconv.ParseInt(want, 10, 64)
	if err != nil {
		return Scenario{}, fmt.Errorf("tilttest: %s: bad want value %q: %w", filename, want, err)
	}
	return Scenario{
		Name:    strings.TrimSuffix(filename, ".txtar"),
		Comment: strings.TrimSpace(string(ar.Comment)),
		Source:  source,
		Want:    n,
	}, nil
}
