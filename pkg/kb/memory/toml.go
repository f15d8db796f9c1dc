package memory

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/nicktill/kpiengine/pkg/formula"
)

// LoadFile reads a TOML knowledge-base file.
//
// Every top-level table is a KPI; its keys are formula variants, the first one
// being the most general:
//
//	[availability]
//	general = "S°*[S°/[R°up;S°+[R°up;R°down]];C°100°]"
//	up = "°T°M°working°working_time"
//	down = "°T°M°offline°offline_time"
func LoadFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base file: %w", err)
	}

	src, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, nil
}

// Parse builds a Source from TOML content, keeping table and key order
func Parse(data string) (*Source, error) {
	var raw map[string]map[string]string
	md, err := toml.Decode(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode knowledge base: %w", err)
	}

	// toml only reports document order through MetaData.Keys
	src := New()
	sets := make(map[string]*formula.FormulaSet)
	var order []string

	for _, key := range md.Keys() {
		switch len(key) {
		case 1:
			name := key[0]
			if _, ok := sets[name]; !ok {
				sets[name] = &formula.FormulaSet{}
				order = append(order, name)
			}
		case 2:
			name, variant := key[0], key[1]
			set, ok := sets[name]
			if !ok {
				set = &formula.FormulaSet{}
				sets[name] = set
				order = append(order, name)
			}
			set.Set(variant, raw[name][variant])
		}
	}

	for _, name := range order {
		src.Add(name, sets[name])
	}
	return src, nil
}
