package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/user/toolagent/internal/errors"
	"github.com/user/toolagent/internal/llmtypes"
	"github.com/user/toolagent/internal/logging"
)

// ErrorRecord is the structured failure fed back to the model in place of a result
type ErrorRecord struct {
	Kind    string `json:"kind"`
	Tool    string `json:"tool"`
	Message string `json:"message"`
}

// Result is the outcome of one tool invocation. Exactly one of Value or
// Error is meaningful.
type Result struct {
	Tool     string
	CallID   string
	Value    any
	Error    *ErrorRecord
	Duration time.Duration
}

// Failed reports whether the invocation produced an error record
func (r Result) Failed() bool {
	return r.Error != nil
}

// Content renders the result as tool-message text. Strings pass through
// verbatim, other values are JSON encoded and failures become
// {"error": {"kind", "tool", "message"}}.
func (r Result) Content() string {
	if r.Error != nil {
		data, _ := json.Marshal(map[string]any{"error": r.Error})
		return string(data)
	}

	switch v := r.Value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		return string(v)
	}

	data, err := json.Marshal(r.Value)
	if err != nil {
		return fmt.Sprintf("%v", r.Value)
	}
	return string(data)
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithoutValidation skips checking arguments against the declared schema
func WithoutValidation() ExecutorOption {
	return func(e *Executor) {
		e.validate = false
	}
}

// WithTimeout bounds each handler call. Zero means no limit.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// Executor runs registered tools and converts every failure into an
// ErrorRecord. It never returns an error or lets a handler panic escape.
type Executor struct {
	registry *Registry
	logger   *logging.Logger
	validate bool
	timeout  time.Duration
}

// NewExecutor creates an executor over reg
func NewExecutor(reg *Registry, logger *logging.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	e := &Executor{
		registry: reg,
		logger:   logger.Named("executor"),
		validate: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteCall runs a normalized call. A call that failed normalization is
// reported without touching the handler.
func (e *Executor) ExecuteCall(ctx context.Context, call llmtypes.NormalizedToolCall) Result {
	if call.Err != nil {
		return Result{
			Tool:   call.ToolName,
			CallID: call.ID,
			Error:  errorRecord(call.ToolName, call.Err),
		}
	}

	res := e.Execute(ctx, call.ToolName, call.Arguments)
	res.CallID = call.ID
	return res
}

// Execute looks up name and invokes its handler with args
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) Result {
	start := time.Now()
	res := Result{Tool: name}

	handler, _, err := e.registry.Get(name)
	if err != nil {
		e.logger.Warn("Unknown tool requested", logging.Tool(name))
		res.Error = errorRecord(name, err)
		return res
	}

	if args == nil {
		args = map[string]any{}
	}

	if e.validate {
		if err := e.registry.validate(name, args); err != nil {
			e.logger.Warn("Tool arguments rejected",
				logging.Tool(name),
				logging.Error(err),
			)
			res.Error = errorRecord(name, errors.NewToolExecutionError(name, fmt.Errorf("invalid arguments: %w", err)))
			return res
		}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	value, err := e.invoke(ctx, name, handler, args)
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Warn("Tool execution failed",
			logging.Tool(name),
			logging.Duration("duration", res.Duration),
			logging.Error(err),
		)
		res.Error = errorRecord(name, errors.NewToolExecutionError(name, err))
		return res
	}

	e.logger.Debug("Tool executed",
		logging.Tool(name),
		logging.Duration("duration", res.Duration),
	)
	res.Value = value
	return res
}

func (e *Executor) invoke(ctx context.Context, name string, handler Handler, args map[string]any) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("Tool handler panicked",
				logging.Tool(name),
				logging.Any("panic", p),
				logging.String("stack", string(debug.Stack())),
			)
			value = nil
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return handler(ctx, args)
}

func errorRecord(tool string, err error) *ErrorRecord {
	kind := errors.Kind(err)
	if kind == "" {
		kind = errors.KindToolExecution
	}

	message := err.Error()
	if taErr := asToolAgentError(err); taErr != nil && taErr.Cause != nil {
		message = taErr.Cause.Error()
	}

	return &ErrorRecord{Kind: kind, Tool: tool, Message: message}
}

func asToolAgentError(err error) *errors.ToolAgentError {
	switch e := err.(type) {
	case *errors.UnknownToolError:
		return e.ToolAgentError
	case *errors.ToolExecutionError:
		return e.ToolAgentError
	case *errors.ToolCallNormalizationError:
		return e.ToolAgentError
	}
	return nil
}
