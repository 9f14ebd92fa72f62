package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rillc/extern"
	"rillc/mir"
	"rillc/partition"
	"rillc/report"
	"rillc/runtime/memory"
	"rillc/syntax"
	"rillc/types"
)

const pipelineUnit = `
Start
    load "events" as "csv" |> filter arg "keep" |> save "out" as "csv"
End
`

const incUnit = `
func inc(n: int): int
    return n + 1
end

Start
End
`

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()

	c := NewCompiler(DefaultConfig())

	svc, ok := c.Service().(*extern.MemService)
	require.True(t, ok)
	svc.AddSource("events", []memory.Row{
		{"region": memory.StringValue("east"), "flagged": memory.BoolValue(true)},
		{"region": memory.StringValue("west"), "flagged": memory.BoolValue(false)},
	})

	return c
}

func TestCompileClassifiesStaticEntry(t *testing.T) {
	c := NewCompiler(DefaultConfig())

	artifact, err := c.Compile(Unit{Name: "static", Source: `
Start
    load "events" as "csv" |> filter "flagged" |> save "out" as "csv"
End
`})
	require.NoError(t, err)

	assert.Equal(t, partition.AOT, artifact.Parts["main"].Class)
	assert.Empty(t, artifact.Program.Regions)
	assert.NotEmpty(t, artifact.Program.Main.Code)
}

func TestCompileArgDrivenEntryDefersRegion(t *testing.T) {
	c := NewCompiler(DefaultConfig())

	artifact, err := c.Compile(Unit{Name: "dynamic", Source: pipelineUnit})
	require.NoError(t, err)

	require.Equal(t, partition.JIT, artifact.Parts["main"].Class)
	assert.True(t, artifact.Parts["main"].Split())
	assert.Len(t, artifact.Program.Regions, 1)
}

func TestCompileSurfacesDiagnostics(t *testing.T) {
	c := NewCompiler(DefaultConfig())

	_, err := c.Compile(Unit{Name: "broken", Source: "Start\nlet x = \nEnd"})
	require.Error(t, err)

	kind, ok := report.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, report.KindUnexpectedToken, kind)
}

func TestCompileAllAggregatesFailures(t *testing.T) {
	c := NewCompiler(DefaultConfig())

	_, err := c.CompileAll([]Unit{
		{Name: "ok", Source: "Start\nlet x = 1\nEnd"},
		{Name: "bad1", Source: "let x = 1"},
		{Name: "bad2", Source: "Start\nlet y = unknown\nEnd"},
	})
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
}

func TestCompileAllPreservesUnitOrder(t *testing.T) {
	c := NewCompiler(DefaultConfig())

	units := []Unit{
		{Name: "first", Source: "Start\nlet x = 1\nEnd"},
		{Name: "second", Source: incUnit},
	}

	artifacts, err := c.CompileAll(units)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "first", artifacts[0].Name)
	assert.Equal(t, "second", artifacts[1].Name)
}

func TestInvokeRunsPipeline(t *testing.T) {
	c := newTestCompiler(t)

	h, err := c.Ingest(Unit{Name: "pipeline", Source: pipelineUnit})
	require.NoError(t, err)

	result, err := h.Invoke(context.Background(), map[string]memory.Value{
		"keep": memory.IntValue(1),
	})
	require.NoError(t, err)
	assert.Equal(t, memory.KindUnit, result.Kind)

	svc := c.Service().(*extern.MemService)
	receipts := svc.Saved("out")
	require.Len(t, receipts, 1)
	assert.Len(t, receipts[0].Rows, 2)
}

func TestInvokeReleasesDatasets(t *testing.T) {
	c := newTestCompiler(t)

	h, err := c.Ingest(Unit{Name: "pipeline", Source: pipelineUnit})
	require.NoError(t, err)

	_, err = h.Invoke(context.Background(), map[string]memory.Value{
		"keep": memory.IntValue(1),
	})
	require.NoError(t, err)

	c.Memory().Reclaim()
	assert.Equal(t, 0, c.Memory().Resident())
}

func TestCallFunctionSpecializesPerShape(t *testing.T) {
	c := newTestCompiler(t)

	h, err := c.Ingest(Unit{Name: "calc", Source: incUnit})
	require.NoError(t, err)

	result, err := h.CallFunction(context.Background(), "inc",
		[]memory.Value{memory.IntValue(41)}, nil)
	require.NoError(t, err)
	assert.Equal(t, memory.IntValue(42), result)

	_, err = h.CallFunction(context.Background(), "inc",
		[]memory.Value{memory.IntValue(1)},
		map[string]memory.Value{"mode": memory.StringValue("fast")})
	require.NoError(t, err)

	assert.Equal(t, 2, h.jit.CachedSpecializations())
}

func TestIngestASTRunsPrebuiltProgram(t *testing.T) {
	c := newTestCompiler(t)

	prog := syntax.NewParser("prebuilt", incUnit).Parse()

	h, err := c.IngestAST("prebuilt", prog)
	require.NoError(t, err)

	result, err := h.CallFunction(context.Background(), "inc",
		[]memory.Value{memory.IntValue(41)}, nil)
	require.NoError(t, err)
	assert.Equal(t, memory.IntValue(42), result)
}

func TestIngestASTSurfacesAnalysisDiagnostics(t *testing.T) {
	c := NewCompiler(DefaultConfig())

	prog := syntax.NewParser("unbound", "Start\nlet x = y\nEnd").Parse()

	_, err := c.IngestAST("unbound", prog)
	require.Error(t, err)

	kind, ok := report.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, report.KindUnresolvedName, kind)
}

func TestIngestBundleRunsPreloweredFunctions(t *testing.T) {
	c := newTestCompiler(t)

	main := mir.NewFunc("main", nil, types.PrimInt)
	entry := main.Entry()

	add := &mir.Instr{Op: mir.OpAdd, Operands: []mir.Operand{
		mir.ConstInt{Val: 20}, mir.ConstInt{Val: 22},
	}}
	add.Result = main.NewValue(types.PrimInt, add)
	entry.Append(add)
	entry.SetTerm(&mir.Instr{Op: mir.OpRet, Operands: []mir.Operand{add.Result}})

	bundle := &mir.Bundle{
		Name:  "hand",
		Funcs: map[string]*mir.Func{"main": main},
		Main:  main,
	}

	h, err := c.IngestBundle("hand", bundle)
	require.NoError(t, err)
	assert.Equal(t, partition.AOT, h.Artifact().Parts["main"].Class)

	result, err := h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, memory.IntValue(42), result)
}

func TestInvokeMissingArgument(t *testing.T) {
	c := newTestCompiler(t)

	h, err := c.Ingest(Unit{Name: "pipeline", Source: pipelineUnit})
	require.NoError(t, err)

	_, err = h.Invoke(context.Background(), nil)
	require.Error(t, err)

	kind, ok := report.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, report.KindDataFault, kind)
}

// -----------------------------------------------------------------------------

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rill.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log-level = "debug"

[memory]
capacity = 128
idle-ttl-seconds = 30

[jit]
cache-size = 8
compile-timeout-ms = 250
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 128, cfg.Memory.Capacity)
	assert.Equal(t, 30, cfg.Memory.IdleTTLSeconds)
	assert.Equal(t, 8, cfg.Jit.CacheSize)
	assert.Equal(t, 250, cfg.Jit.CompileTimeoutMS)

	// Unset keys keep their defaults.
	def := DefaultConfig()
	assert.Equal(t, def.Memory.AllocRetries, cfg.Memory.AllocRetries)
	assert.Equal(t, def.Memory.SweepSeconds, cfg.Memory.SweepSeconds)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)

	// The defaults still come back usable.
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfigConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Memory.Capacity = 7
	cfg.Memory.IdleTTLSeconds = 90
	cfg.Jit.CompileTimeoutMS = 125

	mc := cfg.MemoryConfig()
	assert.Equal(t, 7, mc.Capacity)
	assert.Equal(t, 90*time.Second, mc.IdleTTL)

	jc := cfg.JitConfig()
	assert.Equal(t, 125*time.Millisecond, jc.CompileTimeout)
}
