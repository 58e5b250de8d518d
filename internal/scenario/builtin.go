package scenario

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Builtin returns the embedded demo scenarios ordered by file name.
func Builtin() ([]*Scenario, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]*Scenario, 0, len(names))
	for _, name := range names {
		b, err := builtinFS.ReadFile(path.Join("builtin", name))
		if err != nil {
			return nil, err
		}
		script, err := ParseScript(b)
		if err != nil {
			return nil, fmt.Errorf("builtin %s: %w", name, err)
		}
		scn, err := New(script)
		if err != nil {
			return nil, fmt.Errorf("builtin %s: %w", name, err)
		}
		out = append(out, scn)
	}
	return out, nil
}
