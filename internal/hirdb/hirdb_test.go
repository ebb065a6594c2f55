package hirdb

import (
	"testing"

	"github.com/trust-automation/trust"
	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/diag"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

func buildStub(reg *types.Registry, f FileInput) *symbols.Table {
	t := symbols.NewTable()
	t.DefineInScope(symbols.GLOBAL, &symbols.Symbol{Name: f.Path, Kind: symbols.KindProgram})
	return t
}

func TestFileSymbolsCachedUntilRevisionBumps(t *testing.T) {
	reg := types.NewRegistry()
	db := New(reg, buildStub, nil)
	db.SetFile("a.st", &cst.Node{Kind: cst.KindProgram})

	if _, err := db.FileSymbols("a.st"); err != nil {
		t.Fatalf("FileSymbols: %v", err)
	}
	if db.Counters().Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", db.Counters().Misses)
	}
	if _, err := db.FileSymbols("a.st"); err != nil {
		t.Fatalf("FileSymbols: %v", err)
	}
	if db.Counters().Hits != 1 {
		t.Fatalf("expected 1 hit after repeat call, got %d", db.Counters().Hits)
	}

	db.SetFile("a.st", &cst.Node{Kind: cst.KindProgram, Text: "changed"})
	if _, err := db.FileSymbols("a.st"); err != nil {
		t.Fatalf("FileSymbols after invalidation: %v", err)
	}
	if db.Counters().Misses != 2 {
		t.Fatalf("expected a fresh miss after SetFile invalidation, got %d misses", db.Counters().Misses)
	}
}

func TestCheckpointCancelsOnRevisionChange(t *testing.T) {
	reg := types.NewRegistry()
	db := New(reg, buildStub, nil)
	db.SetFile("a.st", &cst.Node{})
	asOf := db.Revision()
	db.SetFile("b.st", &cst.Node{})
	if err := db.Checkpoint(asOf); err != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestAnalyzeRunsChecksAndCachesDiagnostics(t *testing.T) {
	reg := types.NewRegistry()
	calls := 0
	runChecks := func(reg *types.Registry, merged *symbols.Table, file string, bag *diag.Bag) {
		calls++
		bag.Add(diag.New(diag.WUnusedSymbol, trust.SourceLocation{File: file}, "unused symbol in %s", file))
	}
	db := New(reg, buildStub, runChecks)
	db.SetFile("a.st", &cst.Node{})

	diags, err := db.Diagnostics([]string{"a.st"}, "a.st")
	if err != nil {
		t.Fatalf("Diagnostics: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(diags))
	}
	if _, err := db.Diagnostics([]string{"a.st"}, "a.st"); err != nil {
		t.Fatalf("Diagnostics (cached): %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected runChecks to run once (memoized), got %d calls", calls)
	}
}
