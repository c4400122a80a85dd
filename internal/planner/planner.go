// Package planner computes the file operations that make a target snapshot
// match a source snapshot under the configured sync mode.
package planner

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"chronosync/internal/model"
)

// PlanError aborts a sync before any transfer starts.
type PlanError struct {
	Reason string
	Err    error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("planning failed: %s: %v", e.Reason, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }

// mtimeTolerance absorbs filesystem timestamp precision differences.
const mtimeTolerance = 2 * time.Second

// Plan diffs two snapshots. Filters are applied first, with exclude rules
// taking precedence over include rules. Delete operations are only emitted
// in mirror mode. Symbolic and special files are skipped with a warning,
// never fatal.
func Plan(source, target []model.FileEntry, mode model.SyncMode,
	compare model.CompareMethod, filter model.FilterRule) (model.DiffPlan, error) {

	if err := validatePatterns(filter); err != nil {
		return nil, err
	}

	srcFiles := index(source, filter)
	tgtFiles := index(target, filter)

	var plan model.DiffPlan

	srcPaths := sortedPaths(srcFiles)
	for _, p := range srcPaths {
		src := srcFiles[p]

		if src.Kind == model.KindOther {
			plan = append(plan, model.FileOperation{
				Type:    model.OpSkip,
				Path:    p,
				Reason:  "symbolic or special file",
				Warning: true,
			})
			continue
		}
		if src.Kind == model.KindDir {
			// Directories missing on the target get created explicitly so
			// empty directories replicate too.
			if _, ok := tgtFiles[p]; !ok {
				plan = append(plan, model.FileOperation{
					Type:   model.OpMkdir,
					Path:   p,
					Reason: "missing on target",
				})
			}
			continue
		}

		tgt, ok := tgtFiles[p]
		switch {
		case !ok:
			plan = append(plan, model.FileOperation{
				Type:   model.OpCopy,
				Path:   p,
				Size:   src.Size,
				Reason: "missing on target",
			})
		case mode == model.ModeAddOnly:
			plan = append(plan, model.FileOperation{
				Type:   model.OpSkip,
				Path:   p,
				Reason: "exists on target",
			})
		case differs(src, tgt, compare):
			plan = append(plan, model.FileOperation{
				Type:   model.OpUpdate,
				Path:   p,
				Size:   src.Size,
				Reason: differReason(compare),
			})
		default:
			plan = append(plan, model.FileOperation{
				Type:   model.OpSkip,
				Path:   p,
				Reason: "unchanged",
			})
		}
	}

	if mode == model.ModeMirror {
		// Children before parents so directory deletes find them gone.
		tgtPaths := sortedPaths(tgtFiles)
		for i := len(tgtPaths) - 1; i >= 0; i-- {
			p := tgtPaths[i]
			if _, ok := srcFiles[p]; ok {
				continue
			}
			tgt := tgtFiles[p]
			if tgt.Kind == model.KindOther {
				plan = append(plan, model.FileOperation{
					Type:    model.OpSkip,
					Path:    p,
					Reason:  "symbolic or special file",
					Warning: true,
				})
				continue
			}
			plan = append(plan, model.FileOperation{
				Type:   model.OpDelete,
				Path:   p,
				Reason: "missing on source",
			})
		}
	}

	return plan, nil
}

func validatePatterns(filter model.FilterRule) error {
	for _, pattern := range append(append([]string{}, filter.Include...), filter.Exclude...) {
		if _, err := filepath.Match(pattern, "sample"); err != nil {
			return &PlanError{Reason: fmt.Sprintf("invalid pattern %q", pattern), Err: err}
		}
	}
	return nil
}

// index keys entries by path, dropping filtered ones. Directories bypass
// include rules so their files decide whether they matter.
func index(entries []model.FileEntry, filter model.FilterRule) map[string]model.FileEntry {
	byPath := make(map[string]model.FileEntry, len(entries))
	for _, e := range entries {
		if matchAny(e.Path, filter.Exclude) {
			continue
		}
		if e.Kind != model.KindDir && len(filter.Include) > 0 && !matchAny(e.Path, filter.Include) {
			continue
		}
		byPath[e.Path] = e
	}
	return byPath
}

// matchAny checks patterns against the base name, every path segment and
// the whole relative path.
func matchAny(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	parts := strings.Split(path, "/")
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
		for _, part := range parts {
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}

func sortedPaths(m map[string]model.FileEntry) []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func differs(src, tgt model.FileEntry, compare model.CompareMethod) bool {
	switch compare {
	case model.CompareSize:
		return src.Size != tgt.Size
	case model.CompareMtime:
		return !withinTolerance(src.ModTime, tgt.ModTime)
	case model.CompareChecksum:
		if src.Checksum != "" && tgt.Checksum != "" {
			return src.Checksum != tgt.Checksum
		}
		fallthrough
	default: // size_mtime
		return src.Size != tgt.Size || !withinTolerance(src.ModTime, tgt.ModTime)
	}
}

func withinTolerance(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= mtimeTolerance
}

func differReason(compare model.CompareMethod) string {
	switch compare {
	case model.CompareSize:
		return "size differs"
	case model.CompareMtime:
		return "modification time differs"
	case model.CompareChecksum:
		return "content differs"
	default:
		return "size or modification time differs"
	}
}
