package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/protocol"
)

var consoleLevels = []string{"log", "info", "warn", "error", "debug"}

// engine owns one goja VM and its event loop. Everything except interrupt
// runs on the goroutine that called execute.
type engine struct {
	vm     *goja.Runtime
	loop   *loop
	out    Poster
	logger *zap.Logger

	stringify  goja.Callable
	rejections []*goja.Promise
}

func newEngine(cfg Config, out Poster, logger *zap.Logger) (*engine, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(cfg.MaxCallStackSize)

	e := &engine{
		vm:     vm,
		loop:   newLoop(),
		out:    out,
		logger: logger,
	}
	vm.SetPromiseRejectionTracker(e.trackRejection)

	if err := e.setupGlobals(); err != nil {
		return nil, fmt.Errorf("failed to set up runtime: %w", err)
	}
	return e, nil
}

// setupGlobals configures global objects and security
func (e *engine) setupGlobals() error {
	vm := e.vm

	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	console := vm.NewObject()
	for _, level := range consoleLevels {
		if err := console.Set(level, e.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	timers := map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout":    e.makeTimerFunc(false),
		"setInterval":   e.makeTimerFunc(true),
		"clearTimeout":  e.clearTimer,
		"clearInterval": e.clearTimer,
	}
	for name, fn := range timers {
		if err := vm.Set(name, fn); err != nil {
			return err
		}
	}

	jsonObj := vm.Get("JSON").ToObject(vm)
	stringify, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return errors.New("JSON.stringify is not callable")
	}
	e.stringify = stringify
	return nil
}

// makeConsoleFunc posts a log message for each console call
func (e *engine) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = e.format(arg)
		}

		data := protocol.LogData{
			Msg:  strings.Join(parts, " "),
			Type: level,
		}
		if pos, ok := e.callerPosition(); ok {
			data.Section = pos.file
			data.LineNo = pos.line
			data.ColNo = pos.col
		}
		e.post(protocol.TypeLog, data)
		return goja.Undefined()
	}
}

func (e *engine) makeTimerFunc(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			// String bodies are not evaluated
			return e.vm.ToValue(0)
		}
		delay := time.Duration(call.Argument(1).ToFloat() * float64(time.Millisecond))
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}
		return e.vm.ToValue(e.loop.schedule(fn, delay, repeat, args))
	}
}

func (e *engine) clearTimer(call goja.FunctionCall) goja.Value {
	e.loop.clear(call.Argument(0).ToInteger())
	return goja.Undefined()
}

// format renders one console argument. Plain objects and arrays are shown
// as JSON; everything else uses its string conversion.
func (e *engine) format(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, isFn := goja.AssertFunction(obj); isFn {
		return v.String()
	}
	switch obj.ClassName() {
	case "Error", "Date", "RegExp":
		return v.String()
	}

	out, err := e.stringify(goja.Undefined(), obj)
	if err != nil || out == nil || goja.IsUndefined(out) {
		return v.String()
	}
	return out.String()
}

type position struct {
	file string
	line int
	col  int
}

// callerPosition finds the innermost script frame on the call stack
func (e *engine) callerPosition() (position, bool) {
	for _, frame := range e.vm.CaptureCallStack(8, nil) {
		pos := frame.Position()
		if pos.Line > 0 {
			return position{file: pos.Filename, line: pos.Line, col: pos.Column}, true
		}
	}
	return position{}, false
}

func (e *engine) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		e.rejections = append(e.rejections, p)
	case goja.PromiseRejectionHandle:
		for i, r := range e.rejections {
			if r == p {
				e.rejections = append(e.rejections[:i], e.rejections[i+1:]...)
				break
			}
		}
	}
}

// flushRejections reports promises still unhandled at the end of a
// macrotask
func (e *engine) flushRejections() {
	pending := e.rejections
	e.rejections = nil
	for _, p := range pending {
		e.post(protocol.TypeUnhandledRejection, protocol.LogData{Msg: e.describe(p.Result())})
	}
}

func (e *engine) describe(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Error" {
		return v.String()
	}
	return e.format(v)
}

// runScript compiles and runs one script as a macrotask. Script errors are
// reported to the host; only an interrupt is returned.
func (e *engine) runScript(name, src string) error {
	prg, err := compile(name, src)
	if err == nil {
		_, err = e.vm.RunProgram(prg)
	}
	return e.settle(err)
}

// fire runs one timer callback as a macrotask
func (e *engine) fire(t *timer) error {
	_, err := t.fn(goja.Undefined(), t.args...)
	return e.settle(err)
}

func (e *engine) settle(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		e.rejections = nil
		return err
	}
	if err != nil {
		e.reportError(err)
	}
	e.flushRejections()
	return nil
}

// compile parses with the parser directly so syntax errors keep their
// position
func compile(name, src string) (*goja.Program, error) {
	ast, err := parser.ParseFile(nil, name, src, 0)
	if err != nil {
		return nil, err
	}
	return goja.CompileAST(ast, false)
}

// reportError posts an uncaught exception with the location of its top
// script frame
func (e *engine) reportError(err error) {
	data := protocol.LogData{Msg: err.Error()}

	var (
		exception *goja.Exception
		syntax    parser.ErrorList
		compiler  *goja.CompilerSyntaxError
	)
	switch {
	case errors.As(err, &exception):
		data.Msg = e.describe(exception.Value())
		for _, frame := range exception.Stack() {
			if pos := frame.Position(); pos.Line > 0 {
				data.URL, data.LineNo, data.ColNo = pos.Filename, pos.Line, pos.Column
				break
			}
		}
	case errors.As(err, &syntax) && len(syntax) > 0:
		first := syntax[0]
		data.Msg = "SyntaxError: " + first.Message
		data.URL, data.LineNo, data.ColNo = first.Position.Filename, first.Position.Line, first.Position.Column
	case errors.As(err, &compiler):
		data.Msg = "SyntaxError: " + compiler.Message
		if compiler.File != nil {
			pos := compiler.File.Position(compiler.Offset)
			data.URL, data.LineNo, data.ColNo = pos.Filename, pos.Line, pos.Column
		}
	}
	e.post(protocol.TypeError, data)
}

// execute runs the gist's scripts and then its timers until the loop
// drains or ctx ends
func (e *engine) execute(ctx context.Context, files Files) error {
	dom, err := NewDOM(files)
	if err != nil {
		return fmt.Errorf("failed to parse gist html: %w", err)
	}
	if err := dom.Bind(e.vm); err != nil {
		return fmt.Errorf("failed to bind document: %w", err)
	}
	if len(files.HTML) > 0 {
		defer func() {
			e.logger.Debug("Final document", zap.String("body", dom.Body()))
		}()
	}

	scripts := files.JS
	for _, s := range dom.Scripts() {
		scripts = append(scripts, protocol.File{Name: s.Section, Content: s.Source})
	}

	for _, f := range scripts {
		if err := e.runScript(f.Name, f.Content); err != nil {
			return err
		}
	}
	return e.loop.run(ctx, e.fire)
}

// MaxLogSize caps a single log message so its frame stays under
// protocol.MaxLineSize
const MaxLogSize = 1 << 20

// clip shortens msg to MaxLogSize bytes on a rune boundary
func clip(msg string) string {
	if len(msg) <= MaxLogSize {
		return msg
	}
	cut := MaxLogSize
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return fmt.Sprintf("%s... [truncated %d bytes]", msg[:cut], len(msg)-cut)
}

func (e *engine) post(t protocol.Type, data interface{}) {
	if d, ok := data.(protocol.LogData); ok {
		d.Msg = clip(d.Msg)
		data = d
	}
	msg, err := protocol.NewMessage(t, data)
	if err != nil {
		e.logger.Warn("Failed to encode runner message", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if err := e.out.Post(msg); err != nil {
		e.logger.Debug("Dropped runner message", zap.String("type", string(t)), zap.Error(err))
	}
}

// interrupt stops the VM from another goroutine
func (e *engine) interrupt(reason error) {
	e.vm.Interrupt(reason)
}
