// Package policy loads the declarative event-policy catalog.
//
// Policies are declared in CUE, one entry per payload kind:
//
//	policy: PlayerMoved: {
//		scope: "per_subject"
//		tags: ["movement"]
//	}
//	policy: RoundReset: scope: "global"
//
// The synchronizer never reads the catalog itself; the dispatcher resolves
// a payload's kind to its Policy before calling Enter.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/evsync/internal/eventsync"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Catalog maps payload kinds to synchronization policies.
//
// Thread-safety: immutable after construction, safe for concurrent reads.
type Catalog struct {
	policies  map[eventsync.Kind]eventsync.Policy
	kinds     []eventsync.Kind
	FileCount int
}

// Lookup returns the policy declared for kind. Undeclared kinds resolve to
// ScopeNone and are never synchronized.
func (c *Catalog) Lookup(kind eventsync.Kind) eventsync.Policy {
	if p, ok := c.policies[kind]; ok {
		return p
	}
	return eventsync.Policy{Scope: eventsync.ScopeNone}
}

// Has reports whether kind has a declared policy.
func (c *Catalog) Has(kind eventsync.Kind) bool {
	_, ok := c.policies[kind]
	return ok
}

// Kinds returns the declared kinds in sorted order.
func (c *Catalog) Kinds() []eventsync.Kind {
	out := make([]eventsync.Kind, len(c.kinds))
	copy(out, c.kinds)
	return out
}

// Len returns the number of declared policies.
func (c *Catalog) Len() int {
	return len(c.kinds)
}

// Load reads every .cue file under dir and compiles the policy block.
// In LoadModeFailFast the first error is returned alone; in
// LoadModeCollectAll every invalid entry is reported and the valid ones are
// still present in the returned catalog.
func Load(dir string, mode LoadMode) (*Catalog, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&CompileError{Code: ErrCodeNotFound, Message: fmt.Sprintf("policy directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&CompileError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing policy directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&CompileError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&CompileError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&CompileError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&CompileError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{formatCUEError(inst.Err, ErrCodeLoadFailed)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err, ErrCodeBuildFailed)}
	}

	cat, errs := Compile(value, mode)
	if cat != nil {
		cat.FileCount = len(files)
	}
	return cat, errs
}

// Compile builds a catalog from an already evaluated CUE value holding a
// top-level policy block.
func Compile(v cue.Value, mode LoadMode) (*Catalog, []error) {
	cat := &Catalog{policies: make(map[eventsync.Kind]eventsync.Policy)}

	block := v.LookupPath(cue.ParsePath("policy"))
	if !block.Exists() {
		return cat, []error{&CompileError{Code: ErrCodeNoPolicies, Field: "policy", Message: "no policy block declared", Pos: v.Pos()}}
	}

	iter, err := block.Fields()
	if err != nil {
		return cat, []error{formatCUEError(err, ErrCodeGeneric)}
	}

	var errs []error
	for iter.Next() {
		kind := eventsync.Kind(strings.Trim(iter.Selector().String(), `"`))
		p, err := compileEntry(iter.Value())
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return cat, errs
			}
			continue
		}
		cat.policies[kind] = p
		cat.kinds = append(cat.kinds, kind)
	}

	sort.Slice(cat.kinds, func(i, j int) bool { return cat.kinds[i] < cat.kinds[j] })
	return cat, errs
}

// compileEntry validates one policy entry.
func compileEntry(v cue.Value) (eventsync.Policy, error) {
	if err := v.Err(); err != nil {
		return eventsync.Policy{}, formatCUEError(err, ErrCodeGeneric)
	}
	label := v.Path().String()

	fields, err := v.Fields()
	if err != nil {
		return eventsync.Policy{}, &CompileError{
			Code:    ErrCodeInvalidScope,
			Field:   "scope",
			Message: fmt.Sprintf("%s: policy must be a struct", label),
			Pos:     v.Pos(),
		}
	}
	for fields.Next() {
		switch name := fields.Selector().String(); name {
		case "scope", "tags":
		default:
			return eventsync.Policy{}, &CompileError{
				Code:    ErrCodeUnknownField,
				Field:   name,
				Message: fmt.Sprintf("%s: unknown field %q, must be scope or tags", label, name),
				Pos:     fields.Value().Pos(),
			}
		}
	}

	scopeVal := v.LookupPath(cue.ParsePath("scope"))
	if !scopeVal.Exists() {
		return eventsync.Policy{}, &CompileError{
			Code:    ErrCodeInvalidScope,
			Field:   "scope",
			Message: fmt.Sprintf("%s: scope is required", label),
			Pos:     v.Pos(),
		}
	}
	scopeStr, err := scopeVal.String()
	if err != nil {
		return eventsync.Policy{}, formatCUEError(err, ErrCodeInvalidScope)
	}
	scope, err := eventsync.ParseScope(scopeStr)
	if err != nil || strings.TrimSpace(scopeStr) == "" {
		return eventsync.Policy{}, &CompileError{
			Code:    ErrCodeInvalidScope,
			Field:   "scope",
			Message: fmt.Sprintf("%s: invalid scope %q, must be \"none\", \"per_subject\", \"global\", or \"pure\"", label, scopeStr),
			Pos:     scopeVal.Pos(),
		}
	}

	tags, err := parseTags(v, label)
	if err != nil {
		return eventsync.Policy{}, err
	}

	return eventsync.Policy{Scope: scope, Tags: tags}.Normalize(), nil
}

// parseTags extracts the optional tags list.
func parseTags(v cue.Value, label string) ([]string, error) {
	tagsVal := v.LookupPath(cue.ParsePath("tags"))
	if !tagsVal.Exists() {
		return nil, nil
	}

	list, err := tagsVal.List()
	if err != nil {
		return nil, &CompileError{
			Code:    ErrCodeInvalidTags,
			Field:   "tags",
			Message: fmt.Sprintf("%s: tags must be a list of strings", label),
			Pos:     tagsVal.Pos(),
		}
	}

	var tags []string
	for list.Next() {
		tag, err := list.Value().String()
		if err != nil || strings.TrimSpace(tag) == "" {
			return nil, &CompileError{
				Code:    ErrCodeInvalidTags,
				Field:   "tags",
				Message: fmt.Sprintf("%s: tags must be non-empty strings", label),
				Pos:     list.Value().Pos(),
			}
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// FindCUEFiles walks dir and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
