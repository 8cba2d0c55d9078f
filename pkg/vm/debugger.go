package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/aspen-lang/aspen/pkg/bytecode"
)

// Debugger provides interactive breakpoint/step debugging for an
// Isolate, adapted from the teacher's pkg/vm/debugger.go to the
// register-VM world: instruction positions are (frame, byte offset)
// pairs rather than a single flat instruction index, "locals" are a
// Frame's register window into Isolate.stack plus the shared
// accumulator, and "globals" are per-module module_vars tables rather
// than one flat global map.
type Debugger struct {
	vm          *Isolate
	breakpoints map[int]bool // byte offsets, checked against the current frame only
	stepMode    bool
	enabled     bool
	in          *bufio.Reader
	out         io.Writer
}

// AttachDebugger installs d as vm's debugger. Only one may be attached
// at a time; a second call replaces the first.
func (vm *Isolate) AttachDebugger(d *Debugger) { vm.debugger = d }

// NewDebugger creates a debugger for vm, reading commands from in and
// writing output to out.
func NewDebugger(vm *Isolate, in io.Reader, out io.Writer) *Debugger {
	return &Debugger{
		vm:          vm,
		breakpoints: make(map[int]bool),
		in:          bufio.NewReader(in),
		out:         out,
	}
}

// Enable activates the debugger; runLoop starts consulting it before
// every instruction.
func (d *Debugger) Enable() { d.enabled = true }

// Disable deactivates the debugger without forgetting breakpoints.
func (d *Debugger) Disable() { d.enabled = false }

// SetStepMode toggles pause-after-every-instruction.
func (d *Debugger) SetStepMode(on bool) { d.stepMode = on }

// AddBreakpoint marks byte offset off (within whatever frame reaches
// it) as a pause point.
func (d *Debugger) AddBreakpoint(off int) { d.breakpoints[off] = true }

// RemoveBreakpoint clears a previously set breakpoint.
func (d *Debugger) RemoveBreakpoint(off int) { delete(d.breakpoints, off) }

// ClearBreakpoints removes every breakpoint.
func (d *Debugger) ClearBreakpoints() { d.breakpoints = make(map[int]bool) }

func (d *Debugger) shouldPause(off int) bool {
	return d.stepMode || d.breakpoints[off]
}

// pause renders the paused state and drives the interactive prompt.
// Returns false if the user asked to abort execution.
func (d *Debugger) pause(frame *Frame, inst bytecode.Instruction, off int) bool {
	fmt.Fprintln(d.out, "\n=== paused ===")
	d.showInstruction(frame, inst, off)
	return d.prompt(frame)
}

func (d *Debugger) showInstruction(frame *Frame, inst bytecode.Instruction, off int) {
	fmt.Fprintf(d.out, "  %s:%s  %04d  %s", frame.moduleName, frame.name, off, inst.Op.String())
	for i, v := range inst.Operands {
		if v != 0 || i == 0 {
			fmt.Fprintf(d.out, " %d", v)
		}
	}
	fmt.Fprintln(d.out)
}

func (d *Debugger) prompt(frame *Frame) bool {
	for {
		fmt.Fprint(d.out, "debug> ")
		line, err := d.in.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "help", "h", "?":
			d.printHelp()
		case "continue", "c":
			d.SetStepMode(false)
			return true
		case "step", "s", "next", "n":
			d.SetStepMode(true)
			return true
		case "regs", "r":
			d.showRegisters(frame)
		case "acc", "a":
			fmt.Fprintf(d.out, "accumulator: %s\n", displayString(d.vm.acc))
		case "modvars", "m":
			d.showModuleVars(frame)
		case "callstack", "cs":
			d.showCallStack()
		case "inspect", "i":
			spew.Fdump(d.out, d.vm)
		case "break", "b":
			if len(parts) < 2 {
				fmt.Fprintln(d.out, "usage: break <offset>")
				continue
			}
			off, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Fprintln(d.out, "invalid offset")
				continue
			}
			d.AddBreakpoint(off)
			fmt.Fprintf(d.out, "breakpoint set at %d\n", off)
		case "delete", "d":
			if len(parts) < 2 {
				fmt.Fprintln(d.out, "usage: delete <offset>")
				continue
			}
			off, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Fprintln(d.out, "invalid offset")
				continue
			}
			d.RemoveBreakpoint(off)
			fmt.Fprintf(d.out, "breakpoint removed at %d\n", off)
		case "quit", "q":
			return false
		default:
			fmt.Fprintf(d.out, "unknown command: %s (try 'help')\n", parts[0])
		}
	}
}

func (d *Debugger) printHelp() {
	fmt.Fprintln(d.out, "debugger commands:")
	fmt.Fprintln(d.out, "  help, h, ?         show this help")
	fmt.Fprintln(d.out, "  continue, c        resume execution")
	fmt.Fprintln(d.out, "  step, s, next, n   execute one instruction and pause again")
	fmt.Fprintln(d.out, "  regs, r            show the current frame's register window")
	fmt.Fprintln(d.out, "  acc, a             show the accumulator")
	fmt.Fprintln(d.out, "  modvars, m         show the current module's exported vars")
	fmt.Fprintln(d.out, "  callstack, cs      show every live frame")
	fmt.Fprintln(d.out, "  inspect, i         dump the whole isolate (spew)")
	fmt.Fprintln(d.out, "  break <n>, b       add a breakpoint at byte offset n")
	fmt.Fprintln(d.out, "  delete <n>, d      remove a breakpoint at byte offset n")
	fmt.Fprintln(d.out, "  quit, q            abort execution")
}

func (d *Debugger) showRegisters(frame *Frame) {
	fmt.Fprintf(d.out, "registers (frame size %d):\n", frame.desc.FrameSize)
	for i := 0; i < frame.desc.FrameSize; i++ {
		v := d.vm.stack[frame.stackBase+i]
		if v.IsNone() {
			continue
		}
		fmt.Fprintf(d.out, "  r%-3d %s\n", i, displayString(v))
	}
}

func (d *Debugger) showModuleVars(frame *Frame) {
	vars, ok := d.vm.moduleVars[frame.moduleID]
	if !ok {
		fmt.Fprintln(d.out, "(no module_vars recorded yet)")
		return
	}
	fmt.Fprintf(d.out, "module_vars for %s: %s\n", frame.moduleName, displayString(vars))
}

func (d *Debugger) showCallStack() {
	fmt.Fprintln(d.out, "call stack (innermost first):")
	if len(d.vm.frames) == 0 {
		fmt.Fprintln(d.out, "  (empty)")
		return
	}
	for i := len(d.vm.frames) - 1; i >= 0; i-- {
		f := d.vm.frames[i]
		fmt.Fprintf(d.out, "  %s in %s (base r%d)\n", f.name, f.moduleName, f.stackBase)
	}
}
