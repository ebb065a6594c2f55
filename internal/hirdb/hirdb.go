// Package hirdb implements the semantic query database ([C], §4.1): a
// layered, memoized, revision-versioned pipeline from parsed syntax trees to
// validated symbol tables and diagnostics, with input-hash keyed caching and
// cooperative cancellation.
//
// Memoization follows the teacher's lr/earley hash(item, stateno) pattern
// (structhash.Hash over an anonymous struct of the query's identifying
// inputs) moved from Earley item-set construction to query-result caching;
// the layered invalidate-only-downstream structure is grounded on
// original_source/db/queries/salsa_backend.rs, which documents the pipeline
// as independently invalidatable memoized functions rather than one
// monolithic recompute.
package hirdb

import (
	"fmt"

	"github.com/cnf/structhash"
	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"

	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/diag"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

// T returns the tracer this package logs to: the shared gtrace.SyntaxTracer.
func T() tracing.Trace {
	return gtrace.SyntaxTracer
}

// Revision identifies one generation of inputs. Every SetFile bumps it.
type Revision uint64

// ErrCancelled is returned by any query whose checkpoint observes a
// revision bump mid-computation.
var ErrCancelled = fmt.Errorf("query cancelled: revision changed mid-computation")

// Counters tracks cache-health events so tooling can measure query health
// (§4.1 "detail floor on observability").
type Counters struct {
	Hits         uint64
	Misses       uint64
	Invalidations uint64
	Cancellations uint64
}

type cacheEntry struct {
	revision Revision
	value    interface{}
}

// FileInput is one project file's externally-parsed syntax tree plus its
// content hash key.
type FileInput struct {
	Path string
	Tree *cst.Node
}

// AnalyzeResult is the output of the analyze() query (§4.1 step 6).
type AnalyzeResult struct {
	Symbols     *symbols.Table
	Diagnostics *diag.Bag
}

// BuildFileSymbols constructs a file-local SymbolTable from one file's
// parsed tree; supplied by the binder (outside hirdb's orchestration
// concern, which is memoization/invalidation, not binding semantics).
type BuildFileSymbols func(reg *types.Registry, file FileInput) *symbols.Table

// RunSemanticChecks runs the OOP/type/configuration/control-flow passes
// (§4.1 step 6 a-h) over a merged project table, appending to bag.
type RunSemanticChecks func(reg *types.Registry, merged *symbols.Table, file string, bag *diag.Bag)

// DB is the query database: one instance per project/compilation session.
type DB struct {
	Reg   *types.Registry
	files map[string]FileInput
	rev   Revision

	cache    map[string]cacheEntry
	counters Counters

	buildFileSymbols BuildFileSymbols
	runChecks        RunSemanticChecks
}

// New creates a DB. buildFileSymbols/runChecks are the binder/checker
// callbacks the pipeline invokes; passing nil callbacks is valid for a DB
// that only exercises parse()/project file bookkeeping.
func New(reg *types.Registry, buildFileSymbols BuildFileSymbols, runChecks RunSemanticChecks) *DB {
	return &DB{
		Reg:              reg,
		files:            make(map[string]FileInput),
		cache:            make(map[string]cacheEntry),
		buildFileSymbols: buildFileSymbols,
		runChecks:        runChecks,
	}
}

// Revision returns the database's current generation.
func (db *DB) Revision() Revision { return db.rev }

// Counters returns a snapshot of the cache-health counters.
func (db *DB) Counters() Counters { return db.counters }

// SetFile installs or replaces a file's parsed tree and bumps the revision,
// invalidating every cached query transitively (coarse invalidation: the
// whole cache is dropped, since the system design only requires that
// *stale results never leak*, not that untouched files avoid recomputation
// — see §4.1's "targeted recomputation" note in spec §9 Open Questions,
// resolved in DESIGN.md as out of scope for this core).
func (db *DB) SetFile(path string, tree *cst.Node) {
	db.files[path] = FileInput{Path: path, Tree: tree}
	db.rev++
	n := uint64(len(db.cache))
	db.counters.Invalidations += n
	db.cache = make(map[string]cacheEntry)
}

// Checkpoint returns ErrCancelled if asOf no longer matches the database's
// current revision. Every query calls this at entry and at loop boundaries.
func (db *DB) Checkpoint(asOf Revision) error {
	if asOf != db.rev {
		db.counters.Cancellations++
		return ErrCancelled
	}
	return nil
}

func hashOf(parts ...interface{}) string {
	h, err := structhash.Hash(parts, 1)
	if err != nil {
		panic(err) // structhash.Hash only errors on unsupported kinds (chan/func), never on our inputs
	}
	return h
}

func (db *DB) memo(key string, compute func() (interface{}, error)) (interface{}, error) {
	if e, ok := db.cache[key]; ok && e.revision == db.rev {
		db.counters.Hits++
		return e.value, nil
	}
	db.counters.Misses++
	v, err := compute()
	if err != nil {
		return nil, err
	}
	db.cache[key] = cacheEntry{revision: db.rev, value: v}
	return v, nil
}

// Parse returns the externally-parsed tree for path (query 1, §4.1):
// hirdb's "parsing" is bookkeeping over an already-built tree, since the
// lexer/parser are outside the core's boundary (internal/cst's doc comment).
func (db *DB) Parse(path string) (*cst.Node, error) {
	asOf := db.rev
	key := "parse:" + hashOf(path, asOf)
	v, err := db.memo(key, func() (interface{}, error) {
		f, ok := db.files[path]
		if !ok {
			return nil, fmt.Errorf("hirdb: no file registered at %q", path)
		}
		return f.Tree, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cst.Node), nil
}

// FileSymbols computes query 2: local symbols for one file.
func (db *DB) FileSymbols(path string) (*symbols.Table, error) {
	asOf := db.rev
	if err := db.Checkpoint(asOf); err != nil {
		return nil, err
	}
	key := "file_symbols:" + hashOf(path, asOf)
	v, err := db.memo(key, func() (interface{}, error) {
		if db.buildFileSymbols == nil {
			return nil, fmt.Errorf("hirdb: no file-symbol builder configured")
		}
		f, ok := db.files[path]
		if !ok {
			return nil, fmt.Errorf("hirdb: no file registered at %q", path)
		}
		return db.buildFileSymbols(db.Reg, f), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*symbols.Table), nil
}

// ProjectTables computes query 3: every file's local table, keyed by path.
func (db *DB) ProjectTables(paths []string) (map[string]*symbols.Table, error) {
	asOf := db.rev
	key := "project_tables:" + hashOf(paths, asOf)
	v, err := db.memo(key, func() (interface{}, error) {
		out := make(map[string]*symbols.Table, len(paths))
		for _, p := range paths {
			if err := db.Checkpoint(asOf); err != nil {
				return nil, err
			}
			t, err := db.FileSymbols(p)
			if err != nil {
				return nil, err
			}
			out[p] = t
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]*symbols.Table), nil
}

// MergedProjectSymbols computes query 4: file's local table plus every
// other project file's externally-visible symbols, origin-tagged.
func (db *DB) MergedProjectSymbols(paths []string, file string) (*symbols.Table, error) {
	asOf := db.rev
	key := "merged:" + hashOf(paths, file, asOf)
	v, err := db.memo(key, func() (interface{}, error) {
		tables, err := db.ProjectTables(paths)
		if err != nil {
			return nil, err
		}
		own, ok := tables[file]
		if !ok {
			return nil, fmt.Errorf("hirdb: %q not in project", file)
		}
		for _, p := range paths {
			if err := db.Checkpoint(asOf); err != nil {
				return nil, err
			}
			if p == file {
				continue
			}
			symbols.MergeProject(own, tables[p], p)
		}
		return own, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*symbols.Table), nil
}

// usedEntry identifies one reached (file, origin SymbolId) pair for query 5.
type usedEntry struct {
	File     string
	SymbolId symbols.SymbolId
}

// ProjectUsedSymbols computes query 5: reachability over every origin-tagged
// symbol in the merged table, for cross-referencing unused-symbol warnings.
func (db *DB) ProjectUsedSymbols(merged *symbols.Table, used func(*symbols.Table) []usedEntry) []usedEntry {
	if used == nil {
		return nil
	}
	return used(merged)
}

// Analyze runs query 6: the full semantic check pipeline over the merged
// table for file, producing the validated symbol table plus diagnostics.
func (db *DB) Analyze(paths []string, file string) (*AnalyzeResult, error) {
	asOf := db.rev
	key := "analyze:" + hashOf(paths, file, asOf)
	v, err := db.memo(key, func() (interface{}, error) {
		merged, err := db.MergedProjectSymbols(paths, file)
		if err != nil {
			return nil, err
		}
		if err := db.Checkpoint(asOf); err != nil {
			return nil, err
		}
		bag := &diag.Bag{}
		if db.runChecks != nil {
			db.runChecks(db.Reg, merged, file, bag)
		}
		return &AnalyzeResult{Symbols: merged, Diagnostics: bag}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AnalyzeResult), nil
}

// Diagnostics projects Analyze's diagnostics (query 7a).
func (db *DB) Diagnostics(paths []string, file string) ([]diag.Diagnostic, error) {
	res, err := db.Analyze(paths, file)
	if err != nil {
		return nil, err
	}
	return res.Diagnostics.Items(), nil
}

// TypeOf projects an expression node's type from a file's analyzed symbol
// table (query 7b); typeOf is the checker's expression-typing entry point,
// injected to keep hirdb's orchestration decoupled from internal/check.
func (db *DB) TypeOf(paths []string, file string, scope symbols.ScopeId, n *cst.Node, typeOf func(*types.Registry, *symbols.Table, symbols.ScopeId, *cst.Node) types.TypeId) (types.TypeId, error) {
	res, err := db.Analyze(paths, file)
	if err != nil {
		return types.Unknown, err
	}
	return typeOf(db.Reg, res.Symbols, scope, n), nil
}
