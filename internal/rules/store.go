// Package rules loads versioned compliance rule sets.
package rules

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/compliance-reviewer/internal/schemas"
	"github.com/jonathan/compliance-reviewer/internal/types"
)

// DefaultVersion labels the fallback rule set.
const DefaultVersion = "default"

var extensions = []string{".yaml", ".yml", ".json"}

//go:embed data/*.yaml
var embedded embed.FS

// RuleSet is one immutable version of the compliance chapters.
type RuleSet struct {
	VersionLabel string                    `json:"version"`
	Chapters     []types.ComplianceChapter `json:"chapters"`
}

// RequirementCount returns the total number of elements across all chapters.
func (r *RuleSet) RequirementCount() int {
	return types.CountElements(r.Chapters)
}

// Chapter returns the chapter with the given section name.
func (r *RuleSet) Chapter(section string) (types.ComplianceChapter, bool) {
	for _, c := range r.Chapters {
		if c.SectionName == section {
			return c, true
		}
	}
	return types.ComplianceChapter{}, false
}

// RuleSetMissingError means neither a year-specific nor a default rule set exists.
type RuleSetMissingError struct {
	YearCode string
	Source   string
}

func (e *RuleSetMissingError) Error() string {
	if e.YearCode != "" {
		return fmt.Sprintf("no rule set for year %q and no default rule set in %s", e.YearCode, e.Source)
	}
	return fmt.Sprintf("no default rule set in %s", e.Source)
}

// InvalidRuleSetError means a rule file exists but cannot be used.
type InvalidRuleSetError struct {
	File  string
	Cause error
}

func (e *InvalidRuleSetError) Error() string {
	return fmt.Sprintf("invalid rule set %s: %v", e.File, e.Cause)
}

func (e *InvalidRuleSetError) Unwrap() error {
	return e.Cause
}

type ruleFile struct {
	Version  string                    `yaml:"version"`
	Chapters []types.ComplianceChapter `yaml:"chapters"`
}

// Store reads rule files named <YYYY>.yaml (or .yml/.json) and default.yaml from a file system.
type Store struct {
	fsys   fs.FS
	source string
}

// NewStore creates a store over an arbitrary file system. source is used in error messages.
func NewStore(fsys fs.FS, source string) *Store {
	return &Store{fsys: fsys, source: source}
}

// NewDirStore creates a store over a directory on disk.
func NewDirStore(dir string) *Store {
	return NewStore(os.DirFS(dir), dir)
}

// DefaultStore returns the store holding the rule set compiled into the binary.
func DefaultStore() *Store {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		panic(fmt.Sprintf("embedded rules: %v", err))
	}
	return NewStore(sub, "embedded rules")
}

// YearLabel converts a two- or four-digit year code into a four-digit label.
func YearLabel(yearCode string) (string, bool) {
	code := strings.TrimSpace(yearCode)
	if _, err := strconv.Atoi(code); err != nil {
		return "", false
	}
	switch len(code) {
	case 2:
		return "20" + code, true
	case 4:
		return code, true
	default:
		return "", false
	}
}

// Load returns the rule set for yearCode, or the default set when no year-specific set exists.
// Falling back is logged as a warning. A missing default is a RuleSetMissingError.
func (s *Store) Load(yearCode string) (*RuleSet, error) {
	if label, ok := YearLabel(yearCode); ok {
		chapters, found, err := s.read(label)
		if err != nil {
			return nil, err
		}
		if found {
			return &RuleSet{VersionLabel: label, Chapters: chapters}, nil
		}
		log.Printf("[RULES] Warning: no rule set for %s in %s, falling back to %s", label, s.source, DefaultVersion)
	} else if yearCode != "" {
		log.Printf("[RULES] Warning: unrecognized year code %q, falling back to %s", yearCode, DefaultVersion)
	} else {
		log.Printf("[RULES] Warning: no announcement year given, using %s rule set", DefaultVersion)
	}

	chapters, found, err := s.read(DefaultVersion)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &RuleSetMissingError{YearCode: yearCode, Source: s.source}
	}
	return &RuleSet{VersionLabel: DefaultVersion, Chapters: chapters}, nil
}

// Versions lists the version labels available in the store, sorted.
func (s *Store) Versions() ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list rule sets in %s: %w", s.source, err)
	}
	seen := make(map[string]bool)
	var versions []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := path.Ext(entry.Name())
		if !knownExtension(ext) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		if name != DefaultVersion {
			if _, ok := YearLabel(name); !ok || len(name) != 4 {
				continue
			}
		}
		if !seen[name] {
			seen[name] = true
			versions = append(versions, name)
		}
	}
	sort.Strings(versions)
	return versions, nil
}

func knownExtension(ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func (s *Store) read(label string) ([]types.ComplianceChapter, bool, error) {
	for _, ext := range extensions {
		name := label + ext
		data, err := fs.ReadFile(s.fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to read rule set %s: %w", name, err)
		}
		chapters, err := Parse(data)
		if err != nil {
			return nil, false, &InvalidRuleSetError{File: path.Join(s.source, name), Cause: err}
		}
		return chapters, true, nil
	}
	return nil, false, nil
}

// Parse decodes and checks one rule file. JSON input is accepted since it is valid YAML.
func Parse(data []byte) ([]types.ComplianceChapter, error) {
	var generic map[string]interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}
	if err := schemas.ValidateValue(schemas.RuleSet, generic); err != nil {
		return nil, err
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode rule file: %w", err)
	}

	sections := make(map[string]bool, len(f.Chapters))
	for i := range f.Chapters {
		chapter := &f.Chapters[i]
		if err := chapter.Validate(); err != nil {
			return nil, fmt.Errorf("chapter %d: %w", i, err)
		}
		if sections[chapter.SectionName] {
			return nil, fmt.Errorf("duplicate section name %q", chapter.SectionName)
		}
		sections[chapter.SectionName] = true
	}
	return f.Chapters, nil
}
