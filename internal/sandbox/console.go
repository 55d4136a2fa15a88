package sandbox

import (
	"strings"

	"github.com/dop251/goja"
)

const maxConsoleLineLength = 512

// consoleTruncated appended once after the last kept line when output was dropped
const consoleTruncated = "..."

// console captures console output of a submission, lines beyond max are dropped
// and marked by a trailing consoleTruncated line
type console struct {
	max       int
	lines     []string
	truncated bool
}

func newConsole(max int) *console {
	return &console{max: max}
}

func (c *console) install(vm *goja.Runtime) {
	obj := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		prefix := ""
		if level == "warn" || level == "error" {
			prefix = "[" + level + "] "
		}
		_ = obj.Set(level, c.printer(prefix))
	}
	_ = vm.Set("console", obj)
}

func (c *console) printer(prefix string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(c.lines) >= c.max {
			if !c.truncated && c.max > 0 {
				c.lines = append(c.lines, consoleTruncated)
				c.truncated = true
			}
			return goja.Undefined()
		}
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		line := prefix + strings.Join(parts, " ")
		if len(line) > maxConsoleLineLength {
			line = line[:maxConsoleLineLength] + "..."
		}
		c.lines = append(c.lines, line)
		return goja.Undefined()
	}
}
