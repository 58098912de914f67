package toolregistry

import (
	"context"
	"errors"
	"fmt"

	"sift/internal/logging"
	"sift/internal/ports"
)

var (
	// ErrUnknownTool reports an invocation of a name no tool is registered
	// under.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments reports arguments that failed schema validation.
	// The handler is never invoked in that case.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Executor dispatches validated tool invocations. Handlers share no state
// across calls; memory is the sole sanctioned channel between them.
type Executor struct {
	registry ports.ToolRegistry
	logger   logging.Logger
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry ports.ToolRegistry, logger logging.Logger) *Executor {
	return &Executor{
		registry: registry,
		logger:   logging.OrNop(logger),
	}
}

// Invoke validates call.Arguments against the tool's declared schema and
// dispatches. Unknown names and invalid arguments fail fast without side
// effects; handler errors come back inside the ToolResult.
func (e *Executor) Invoke(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	tool, err := e.registry.Get(call.Name)
	if err != nil {
		return nil, err
	}

	if err := validateArguments(tool.Definition().Parameters, call.Arguments); err != nil {
		return nil, fmt.Errorf("%w: tool %s: %v", ErrInvalidArguments, call.Name, err)
	}

	e.logger.Debug("invoking tool %s (call %s)", call.Name, call.ID)
	result, err := tool.Execute(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", call.Name, err)
	}
	if result.Error != nil {
		e.logger.Warn("tool %s returned error: %v", call.Name, result.Error)
	}
	return result, nil
}

// validateArguments checks required presence and primitive types against a
// ParameterSchema. Unknown extra arguments are rejected too; a typo'd key
// should fail loudly instead of being silently ignored.
func validateArguments(schema ports.ParameterSchema, args map[string]any) error {
	for _, required := range schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("missing required argument %q", required)
		}
	}

	for name, value := range args {
		prop, ok := schema.Properties[name]
		if !ok {
			return fmt.Errorf("unknown argument %q", name)
		}
		if err := checkType(name, prop, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(name string, prop ports.Property, value any) error {
	switch prop.Type {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("argument %q must be a string", name)
		}
	case "integer":
		switch v := value.(type) {
		case int:
		case int64:
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("argument %q must be an integer", name)
			}
		default:
			return fmt.Errorf("argument %q must be an integer", name)
		}
	case "number":
		switch value.(type) {
		case int, int64, float64:
		default:
			return fmt.Errorf("argument %q must be a number", name)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("argument %q must be a boolean", name)
		}
	case "array":
		switch value.(type) {
		case []any, []string:
		default:
			return fmt.Errorf("argument %q must be an array", name)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("argument %q must be an object", name)
		}
	}

	if len(prop.Enum) > 0 {
		for _, allowed := range prop.Enum {
			if value == allowed {
				return nil
			}
		}
		return fmt.Errorf("argument %q must be one of %v", name, prop.Enum)
	}
	return nil
}
