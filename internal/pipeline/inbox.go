package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// manualSuffix marks a manual review stored next to its application: APP-1.manual.xlsx.
	manualSuffix = ".manual"
	// sharedReviewBase names a tracking sheet that covers several applications: reviews.xlsx.
	sharedReviewBase = "reviews"
)

var (
	applicationExts = []string{".pdf", ".txt"}
	manualExts      = []string{".xlsx", ".xlsm", ".csv", ".json", ".txt", ".md"}
	sharedExts      = []string{".xlsx", ".xlsm", ".csv", ".json"}
)

// DiscoverInputs lists the applications in dir in file-name order. Every .pdf or .txt file is an
// application; a file named <base>.manual.<ext> next to it is used as its manual review.
// Applications without one fall back to a shared reviews.<ext> sheet, which is narrowed to
// each application's rows at compare time.
func DiscoverInputs(dir string) ([]Input, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox %s: %w", dir, err)
	}

	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names[e.Name()] = true
		}
	}

	shared := ""
	for _, ext := range sharedExts {
		if names[sharedReviewBase+ext] {
			shared = filepath.Join(dir, sharedReviewBase+ext)
			break
		}
	}

	var inputs []Input
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if !contains(applicationExts, ext) || strings.HasSuffix(base, manualSuffix) || base == sharedReviewBase {
			continue
		}

		in := Input{ApplicationID: base, Path: filepath.Join(dir, name), ManualPath: shared}
		for _, mext := range manualExts {
			if candidate := base + manualSuffix + mext; names[candidate] {
				in.ManualPath = filepath.Join(dir, candidate)
				break
			}
		}
		inputs = append(inputs, in)
	}

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].ApplicationID < inputs[j].ApplicationID })
	return inputs, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
