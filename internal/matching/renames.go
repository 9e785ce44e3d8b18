package matching

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RenamePair records that two labels name the same element under different wording.
// Pairs are symmetric.
type RenamePair struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// RenameTable is the list of known historical element renames.
type RenameTable []RenamePair

type renameFile struct {
	Renames RenameTable `yaml:"renames"`
}

// DefaultRenames returns the renames known to exist between rule authors and manual reviewers.
func DefaultRenames() RenameTable {
	return RenameTable{
		{From: "Budgeting for Scope of Project", To: "a. Annual Budgeting for Scope of Project"},
	}
}

// LoadRenameTable reads a YAML file of the form:
//
//	renames:
//	  - from: Budgeting for Scope of Project
//	    to: a. Annual Budgeting for Scope of Project
func LoadRenameTable(path string) (RenameTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rename table: %w", err)
	}
	return ParseRenameTable(data)
}

// ParseRenameTable decodes rename-table YAML. Pairs with a blank side are rejected.
func ParseRenameTable(data []byte) (RenameTable, error) {
	var f renameFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rename table: %w", err)
	}
	for i, pair := range f.Renames {
		if Canonicalize(pair.From) == "" || Canonicalize(pair.To) == "" {
			return nil, fmt.Errorf("rename table entry %d: both from and to are required", i)
		}
	}
	return f.Renames, nil
}

// Merge returns the receiver followed by extra, skipping duplicates by canonical form.
func (t RenameTable) Merge(extra RenameTable) RenameTable {
	seen := make(map[[2]string]bool)
	out := make(RenameTable, 0, len(t)+len(extra))
	for _, pair := range append(append(RenameTable{}, t...), extra...) {
		key := [2]string{Canonicalize(pair.From), Canonicalize(pair.To)}
		if seen[key] || seen[[2]string{key[1], key[0]}] {
			continue
		}
		seen[key] = true
		out = append(out, pair)
	}
	return out
}
