// Package hostmod implements the vm.Importer the CLI and REPL install
// on an Isolate: resolving the path of an `import a.b.c` statement
// (its segments joined with "/") to a `.as` source file on disk (or a
// `.aspc` precompiled chunk), compiling it (source whose contents are
// already in internal/modcache is not recompiled), running it on the
// attached Isolate, and wrapping its module_vars table as a
// value.Module the importing frame receives.
package hostmod

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/aspen-lang/aspen/internal/modcache"
	"github.com/aspen-lang/aspen/internal/rtlog"
	"github.com/aspen-lang/aspen/internal/stdlib"
	"github.com/aspen-lang/aspen/pkg/bytecode"
	"github.com/aspen-lang/aspen/pkg/emitter"
	"github.com/aspen-lang/aspen/pkg/parser"
	"github.com/aspen-lang/aspen/pkg/value"
	"github.com/aspen-lang/aspen/pkg/vm"
)

// Runner is the subset of *vm.Isolate hostmod needs: run a module's
// root function to populate its module_vars, then read those vars back
// out. Accepting an interface (rather than *vm.Isolate directly) keeps
// this package testable without constructing a real Isolate.
type Runner interface {
	Run(moduleID, moduleName string, desc *value.FunctionDescriptorData) (value.Value, error)
	ModuleVars(moduleID string) value.Value
}

// FileImporter resolves aspen import paths against a search list of
// directories, compiling (and caching) whatever it finds. The zero
// value is not usable; use New.
type FileImporter struct {
	searchPaths []string
	cache       *modcache.Cache
	runner      Runner
	log         *rtlog.Logger

	resolved map[string]string // import path -> absolute file path, memoized
	ids      map[string]string // absolute file path -> module uuid, memoized
	builtins map[string]value.Value
}

// New returns a FileImporter searching searchPaths in order. Attach
// must be called with the owning Isolate before any import actually
// runs script code (the Importer and the Isolate are constructed in
// sequence, each needing the other).
func New(searchPaths []string, cache *modcache.Cache) *FileImporter {
	return &FileImporter{
		searchPaths: searchPaths,
		cache:       cache,
		log:         rtlog.Default("hostmod"),
		resolved:    map[string]string{},
		ids:         map[string]string{},
		builtins:    stdlib.Modules(),
	}
}

// Attach binds the Isolate this importer runs modules against. Must be
// called exactly once, before the first Import call.
func (fi *FileImporter) Attach(runner Runner) { fi.runner = runner }

// Import implements vm.Importer. A "std/*" path is served from the
// in-process internal/stdlib registry (no compilation, no filesystem
// access) before any disk resolution is attempted.
func (fi *FileImporter) Import(path string) (value.Value, error) {
	if mod, ok := fi.builtins[path]; ok {
		return mod.Clone(), nil
	}

	file, err := fi.resolve(path)
	if err != nil {
		return value.None, err
	}

	desc, err := fi.compile(file)
	if err != nil {
		return value.None, err
	}

	moduleID := fi.idFor(file)
	moduleName := filepath.Base(file)
	fi.log.Debugf("running module %s (id %s)", moduleName, moduleID)

	if _, err := fi.runner.Run(moduleID, moduleName, desc); err != nil {
		return value.None, fmt.Errorf("hostmod: running %s: %w", path, err)
	}

	vars := fi.runner.ModuleVars(moduleID)
	mod := value.NewModule(moduleName, moduleID, vars, value.ModuleScript, value.None)
	vars.Release()
	return mod, nil
}

// resolve finds path on disk, preferring an exact match (already has an
// extension) and falling back to appending ".as" under each search
// directory in order.
func (fi *FileImporter) resolve(path string) (string, error) {
	if abs, ok := fi.resolved[path]; ok {
		return abs, nil
	}
	candidates := []string{path, path + ".as"}
	for _, dir := range fi.searchPaths {
		for _, c := range candidates {
			full := filepath.Join(dir, c)
			if info, err := os.Stat(full); err == nil && !info.IsDir() {
				abs, err := filepath.Abs(full)
				if err != nil {
					abs = full
				}
				fi.resolved[path] = abs
				return abs, nil
			}
		}
	}
	return "", fmt.Errorf("hostmod: could not resolve import %q in %v", path, fi.searchPaths)
}

// compile returns file's compiled root descriptor, serving from
// internal/modcache when a blake2b hash of its current contents is
// already cached. A ".aspc" file is loaded as precompiled bytecode
// directly, bypassing the lexer/parser/emitter (and the cache, which
// only indexes compiled-from-source results) entirely.
func (fi *FileImporter) compile(file string) (*value.FunctionDescriptorData, error) {
	if filepath.Ext(file) == ".aspc" {
		return fi.loadChunk(file)
	}

	src, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("hostmod: reading %s: %w", file, err)
	}

	var key string
	if fi.cache != nil {
		key = modcache.Hash(src)
		if desc, ok := fi.cache.Get(key); ok {
			fi.log.Debugf("cache hit for %s (%s)", file, key)
			return desc, nil
		}
	}

	mod, perrs := parser.New(string(src)).Parse()
	if len(perrs) > 0 {
		return nil, fmt.Errorf("hostmod: parsing %s: %v", file, perrs[0])
	}
	desc, eerrs := emitter.New().EmitModule(mod, filepath.Base(file))
	if len(eerrs) > 0 {
		return nil, fmt.Errorf("hostmod: compiling %s: %v", file, eerrs[0])
	}

	if fi.cache != nil {
		fi.cache.Put(key, desc)
	}
	return desc, nil
}

// idFor returns a stable uuid identity for an absolute file path,
// generating one on first sight (spec: Module.ID is a uuid, not a raw
// path, so two hosts with differently-rooted search paths still agree
// on identity only within a single process's resolution cache).
func (fi *FileImporter) idFor(file string) string {
	if id, ok := fi.ids[file]; ok {
		return id
	}
	id := uuid.NewString()
	fi.ids[file] = id
	return id
}

func (fi *FileImporter) loadChunk(file string) (*value.FunctionDescriptorData, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("hostmod: opening %s: %w", file, err)
	}
	defer f.Close()
	v, err := bytecode.DecodeChunk(f)
	if err != nil {
		return nil, fmt.Errorf("hostmod: decoding %s: %w", file, err)
	}
	defer v.Release()
	desc, ok := value.FunctionDescriptorOf(v)
	if !ok {
		return nil, fmt.Errorf("hostmod: %s did not decode to a function descriptor", file)
	}
	return desc, nil
}

// NewAnonymousModuleID generates a module identity for source that has
// no backing file (REPL input, or an eval() call) — it must still be
// unique enough to key Isolate.moduleVars without colliding with any
// real file path. (internal/modcache is keyed by content hash, not by
// module id.)
func NewAnonymousModuleID() string {
	return "repl:" + uuid.NewString()
}

var _ vm.Importer = (*FileImporter)(nil)
