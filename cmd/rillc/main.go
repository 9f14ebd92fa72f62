package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rillc/codegen"
	"rillc/driver"
	"rillc/report"
	"rillc/runtime/memory"
)

var (
	flagConfig  string
	flagVerbose bool

	flagEmitLLVM bool
	flagDisasm   bool
	flagOutput   string

	flagArgs []string
)

func main() {
	root := &cobra.Command{
		Use:           "rillc",
		Short:         "rillc compiles and runs Rill data pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a TOML config file")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose logging")

	buildCmd := &cobra.Command{
		Use:   "build <file>",
		Short: "compile a source file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBuild,
	}
	buildCmd.Flags().BoolVarP(&flagEmitLLVM, "emit-llvm", "S", false, "emit textual LLVM IR for the ahead-of-time code")
	buildCmd.Flags().BoolVar(&flagDisasm, "disasm", false, "emit a bytecode disassembly listing")
	buildCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output path (defaults to stdout)")

	runCmd := &cobra.Command{
		Use:   "run <file>",
		Short: "compile and run a source file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().StringArrayVar(&flagArgs, "arg", nil, "runtime argument as name=value (repeatable)")

	root.AddCommand(buildCmd, runCmd)

	if err := root.Execute(); err != nil {
		report.DisplayFatal("%s", err)
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------

func newCompiler() (*driver.Compiler, error) {
	cfg := driver.DefaultConfig()
	if flagConfig != "" {
		loaded, err := driver.LoadConfig(flagConfig)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logLevel := report.LogLevelWarn
	log := zap.NewNop()
	if flagVerbose {
		logLevel = report.LogLevelVerbose

		devLog, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		log = devLog
	}

	return driver.NewCompiler(cfg,
		driver.WithLogger(log),
		driver.WithReporter(report.NewReporter(logLevel)),
	), nil
}

func loadUnit(path string) (driver.Unit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return driver.Unit{}, err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return driver.Unit{Name: name, Source: string(src)}, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	c, err := newCompiler()
	if err != nil {
		return err
	}

	unit, err := loadUnit(args[0])
	if err != nil {
		return err
	}

	artifact, err := c.Compile(unit)
	if err != nil {
		return err
	}

	var out string
	switch {
	case flagEmitLLVM:
		out = codegen.RenderLLVM(artifact.Bundle, artifact.Parts)
	case flagDisasm:
		out = codegen.Disassemble(artifact.Program)
	default:
		out = codegen.Disassemble(artifact.Program)
	}

	if flagOutput != "" {
		return os.WriteFile(flagOutput, []byte(out), 0o644)
	}

	fmt.Print(out)
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	c, err := newCompiler()
	if err != nil {
		return err
	}

	unit, err := loadUnit(args[0])
	if err != nil {
		return err
	}

	handle, err := c.Ingest(unit)
	if err != nil {
		return err
	}

	runtimeArgs, err := parseArgs(flagArgs)
	if err != nil {
		return err
	}

	mgr := c.Memory()
	mgr.Start(cmd.Context())
	defer mgr.Close()

	result, err := handle.Invoke(cmd.Context(), runtimeArgs)
	if err != nil {
		return err
	}

	if result.Kind != memory.KindUnit {
		fmt.Println(result)
	}

	return nil
}

// parseArgs converts name=value pairs to runtime values, preferring the
// narrowest literal reading.
func parseArgs(pairs []string) (map[string]memory.Value, error) {
	args := make(map[string]memory.Value, len(pairs))

	for _, pair := range pairs {
		name, raw, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("malformed argument %q, want name=value", pair)
		}

		switch {
		case raw == "true" || raw == "false":
			args[name] = memory.BoolValue(raw == "true")
		default:
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				args[name] = memory.IntValue(n)
			} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
				args[name] = memory.FloatValue(f)
			} else {
				args[name] = memory.StringValue(raw)
			}
		}
	}

	return args, nil
}
