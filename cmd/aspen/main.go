// Command aspen is the host CLI for the language: run a source or
// bytecode file, drop into a REPL, compile source to a .aspc chunk, or
// disassemble one. Adapted from the teacher's cmd/smog/main.go, with
// its hand-rolled os.Args switch replaced by gopkg.in/urfave/cli.v1
// subcommands and its bufio.Scanner REPL replaced by peterh/liner.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/klauspost/compress/zstd"
	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"golang.org/x/crypto/blake2b"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/aspen-lang/aspen/internal/config"
	"github.com/aspen-lang/aspen/internal/hostmod"
	"github.com/aspen-lang/aspen/internal/modcache"
	"github.com/aspen-lang/aspen/internal/rtlog"
	"github.com/aspen-lang/aspen/pkg/bytecode"
	"github.com/aspen-lang/aspen/pkg/emitter"
	"github.com/aspen-lang/aspen/pkg/parser"
	"github.com/aspen-lang/aspen/pkg/value"
	"github.com/aspen-lang/aspen/pkg/vm"
)

const version = "0.1.0"

// hashSize is the length of the blake2b-256 content hash that precedes
// every .aspc file on disk: a hash of the zstd-compressed payload,
// letting a loader detect truncated or hand-edited chunks before
// handing them to bytecode.DecodeChunk.
const hashSize = 32

func main() {
	app := cli.NewApp()
	app.Name = "aspen"
	app.Version = version
	app.Usage = "run, compile, and inspect aspen programs"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "path to a .toml or .yaml host config file"},
		cli.IntFlag{Name: "max-recursion", Value: 0, Usage: "accepted but not applied: the depth of nested calls is not limited"},
		cli.BoolFlag{Name: "debug", Usage: "attach an interactive breakpoint/step debugger, paused at the first instruction"},
	}
	app.Commands = []cli.Command{
		{
			Name:      "run",
			Usage:     "run a .as source file or .aspc chunk",
			ArgsUsage: "<file>",
			Action:    cmdRun,
		},
		{
			Name:      "repl",
			Usage:     "start the interactive REPL",
			Action:    cmdRepl,
		},
		{
			Name:      "compile",
			Usage:     "compile .as source to a .aspc chunk",
			ArgsUsage: "<input.as> [output.aspc]",
			Action:    cmdCompile,
		},
		{
			Name:      "disasm",
			Aliases:   []string{"disassemble"},
			Usage:     "disassemble a .aspc chunk",
			ArgsUsage: "<file.aspc>",
			Action:    cmdDisasm,
		},
	}
	app.Action = func(c *cli.Context) error {
		if c.NArg() == 0 {
			return cmdRepl(c)
		}
		return cmdRun(c)
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadHostConfig(c *cli.Context) *config.Config {
	path := c.GlobalString("config")
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, falling back to defaults\n", err)
		return config.Default()
	}
	return cfg
}

// newIsolate wires an Isolate with its hostmod FileImporter, attached
// back to the Isolate per hostmod's two-phase construction (the
// Importer needs a Runner to call Run/ModuleVars on; the Isolate needs
// an Importer before any import statement can resolve).
func newIsolate(cfg *config.Config) *vm.Isolate {
	iso := vm.New()
	cache := modcache.New(cfg.ModuleCacheSize)
	imp := hostmod.New(cfg.ModulePaths, cache)
	imp.Attach(iso)
	iso.SetImporter(imp)
	return iso
}

func cmdRun(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("aspen run: no file specified", 1)
	}
	filename := c.Args().Get(0)
	cfg := loadHostConfig(c)
	log := rtlog.Default("aspen")

	desc, err := loadDescriptor(filename)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("error: %v", err), 1)
	}

	iso := newIsolate(cfg)
	if c.GlobalBool("debug") {
		dbg := vm.NewDebugger(iso, os.Stdin, os.Stdout)
		dbg.Enable()
		dbg.SetStepMode(true)
		iso.AttachDebugger(dbg)
	}
	moduleID := filename
	moduleName := filepath.Base(filename)
	log.Debugf("running %s", moduleName)
	result, err := iso.Run(moduleID, moduleName, desc)
	if err != nil {
		printRuntimeError(err)
		return cli.NewExitError("", 1)
	}
	result.Release()
	return nil
}

// loadDescriptor reads filename, compiling .as source through the
// lexer/parser/emitter pipeline or decoding an .aspc chunk directly.
func loadDescriptor(filename string) (*value.FunctionDescriptorData, error) {
	if filepath.Ext(filename) == ".aspc" {
		return decodeChunkFile(filename)
	}
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	mod, perrs := parser.New(string(src)).Parse()
	if len(perrs) > 0 {
		return nil, fmt.Errorf("parse error: %v", perrs[0])
	}
	desc, eerrs := emitter.New().EmitModule(mod, filepath.Base(filename))
	if len(eerrs) > 0 {
		return nil, fmt.Errorf("compile error: %v", eerrs[0])
	}
	return desc, nil
}

func decodeChunkFile(filename string) (*value.FunctionDescriptorData, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	if len(raw) < hashSize {
		return nil, fmt.Errorf("%s: truncated chunk (shorter than its hash header)", filename)
	}
	wantHash, compressed := raw[:hashSize], raw[hashSize:]
	gotHash := blake2b.Sum256(compressed)
	if !bytes.Equal(wantHash, gotHash[:]) {
		return nil, fmt.Errorf("%s: content hash mismatch, chunk is corrupt", filename)
	}

	zr, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	defer zr.Close()

	v, err := bytecode.DecodeChunk(zr)
	if err != nil {
		return nil, fmt.Errorf("%s: decoding chunk: %w", filename, err)
	}
	defer v.Release()
	desc, ok := value.FunctionDescriptorOf(v)
	if !ok {
		return nil, fmt.Errorf("%s: did not decode to a function descriptor", filename)
	}
	return desc, nil
}

func cmdCompile(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("aspen compile: no input file specified", 1)
	}
	input := c.Args().Get(0)
	output := c.Args().Get(1)
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".aspc"
	}

	src, err := os.ReadFile(input)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("error: %v", err), 1)
	}
	mod, perrs := parser.New(string(src)).Parse()
	if len(perrs) > 0 {
		return cli.NewExitError(fmt.Sprintf("parse error: %v", perrs[0]), 1)
	}
	desc, eerrs := emitter.New().EmitModule(mod, filepath.Base(input))
	if len(eerrs) > 0 {
		return cli.NewExitError(fmt.Sprintf("compile error: %v", eerrs[0]), 1)
	}

	var raw bytes.Buffer
	if err := bytecode.EncodeChunk(desc, &raw); err != nil {
		return cli.NewExitError(fmt.Sprintf("error: %v", err), 1)
	}

	var compressed bytes.Buffer
	zw, err := zstd.NewWriter(&compressed)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("error: %v", err), 1)
	}
	if _, err := zw.Write(raw.Bytes()); err != nil {
		zw.Close()
		return cli.NewExitError(fmt.Sprintf("error: %v", err), 1)
	}
	if err := zw.Close(); err != nil {
		return cli.NewExitError(fmt.Sprintf("error: %v", err), 1)
	}

	hash := blake2b.Sum256(compressed.Bytes())
	out, err := os.Create(output)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("error: %v", err), 1)
	}
	defer out.Close()
	if _, err := out.Write(hash[:]); err != nil {
		return cli.NewExitError(fmt.Sprintf("error: %v", err), 1)
	}
	if _, err := out.Write(compressed.Bytes()); err != nil {
		return cli.NewExitError(fmt.Sprintf("error: %v", err), 1)
	}

	fmt.Printf("compiled %s -> %s\n", input, output)
	return nil
}

func cmdDisasm(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("aspen disasm: no file specified", 1)
	}
	filename := c.Args().Get(0)
	desc, err := decodeChunkFile(filename)
	if err != nil {
		// disasm also accepts a bare .as source file, compiled in
		// memory first, so "show me the bytecode for this" doesn't
		// require a separate compile step.
		desc, err = loadDescriptor(filename)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("error: %v", err), 1)
		}
	}

	text := bytecode.Disassemble(desc.Name, desc.Code, desc.Consts)
	fmt.Println(text)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Index", "Kind", "Value"})
	for i, cv := range desc.Consts {
		table.Append([]string{fmt.Sprintf("%d", i), kindLabel(cv), previewConst(cv)})
	}
	table.Render()
	return nil
}

func kindLabel(v value.Value) string {
	if o, ok := v.AsObject(); ok {
		return o.Kind.String()
	}
	return "primitive"
}

func previewConst(v value.Value) string {
	if s, ok := value.StringValue(v); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

func cmdRepl(c *cli.Context) error {
	cfg := loadHostConfig(c)
	iso := newIsolate(cfg)

	stopResize := watchTermResize()
	defer stopResize()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := filepath.Join(os.TempDir(), ".aspen_history")
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Printf("aspen %s — interactive REPL (:help for commands, :quit to exit)\n", version)
	var buf strings.Builder
	n := 0
	for {
		prompt := "aspen> "
		if buf.Len() > 0 {
			prompt = "   ...> "
		}
		input, err := line.Prompt(prompt)
		if err == liner.ErrPromptAborted || err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return nil
		}
		line.AppendHistory(input)

		trimmed := strings.TrimSpace(input)
		switch trimmed {
		case ":quit", ":exit":
			return nil
		case ":help":
			printReplHelp()
			continue
		case ":inspect":
			spew.Dump(iso)
			continue
		}
		if trimmed == "" {
			continue
		}

		buf.WriteString(input)
		buf.WriteString("\n")
		if !strings.HasSuffix(trimmed, ";") && !strings.HasSuffix(trimmed, "}") {
			continue
		}

		src := buf.String()
		buf.Reset()
		n++
		moduleID := hostmod.NewAnonymousModuleID()
		evalREPL(iso, moduleID, fmt.Sprintf("repl-%d", n), src)
	}
}

func evalREPL(iso *vm.Isolate, moduleID, moduleName, src string) {
	mod, perrs := parser.New(src).Parse()
	if len(perrs) > 0 {
		fmt.Fprintf(os.Stderr, "parse error: %v\n", perrs[0])
		return
	}
	desc, eerrs := emitter.New().EmitModule(mod, moduleName)
	if len(eerrs) > 0 {
		fmt.Fprintf(os.Stderr, "compile error: %v\n", eerrs[0])
		return
	}
	result, err := iso.Run(moduleID, moduleName, desc)
	if err != nil {
		printRuntimeError(err)
		return
	}
	if !result.IsNone() {
		fmt.Println(displayRepl(result))
	}
	result.Release()
}

func displayRepl(v value.Value) string {
	if s, ok := value.StringValue(v); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func printRuntimeError(err error) {
	color := rtlog.Default("aspen")
	color.Errorf("%v", err)
}

func printReplHelp() {
	fmt.Println(strings.Repeat("-", currentTermWidth()))
	fmt.Println("  :help     show this message")
	fmt.Println("  :inspect  dump the isolate's internal state")
	fmt.Println("  :quit     exit the REPL (also :exit)")
	fmt.Println("  a statement ending in ';' or '}' is evaluated immediately")
	fmt.Println(strings.Repeat("-", currentTermWidth()))
}
