package ports

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ToolExecutor executes a single tool call
type ToolExecutor interface {
	// Execute runs the tool with given arguments
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)

	// Definition returns the tool's schema
	Definition() ToolDefinition

	// Metadata returns tool metadata
	Metadata() ToolMetadata
}

// ToolRegistry manages available tools
type ToolRegistry interface {
	// Register adds a tool to the registry
	Register(tool ToolExecutor) error

	// Get retrieves a tool by name
	Get(name string) (ToolExecutor, error)

	// List returns all available tools
	List() []ToolDefinition

	// Unregister removes a tool
	Unregister(name string) error
}

// ToolCall represents a request to execute a tool
type ToolCall struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments"`
	RunID        string         `json:"run_id,omitempty"`
	TaskID       string         `json:"task_id,omitempty"`
	ParentTaskID string         `json:"parent_task_id,omitempty"`
}

// ToolResult is the execution result
type ToolResult struct {
	CallID       string         `json:"call_id"`
	Content      string         `json:"content"`
	Error        error          `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RunID        string         `json:"run_id,omitempty"`
	TaskID       string         `json:"task_id,omitempty"`
	ParentTaskID string         `json:"parent_task_id,omitempty"`
}

// MarshalJSON customizes ToolResult JSON encoding to support the error interface.
func (r ToolResult) MarshalJSON() ([]byte, error) {
	type Alias struct {
		CallID   string         `json:"call_id"`
		Content  string         `json:"content"`
		Error    any            `json:"error,omitempty"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}

	alias := Alias{
		CallID:   r.CallID,
		Content:  r.Content,
		Metadata: r.Metadata,
	}

	if r.Error != nil {
		alias.Error = r.Error.Error()
	}

	return json.Marshal(alias)
}

// UnmarshalJSON customizes ToolResult decoding to accept both string and object error representations.
func (r *ToolResult) UnmarshalJSON(data []byte) error {
	type Alias struct {
		CallID   string          `json:"call_id"`
		Content  string          `json:"content"`
		Error    json.RawMessage `json:"error"`
		Metadata map[string]any  `json:"metadata,omitempty"`
	}

	var aux Alias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.CallID = aux.CallID
	r.Content = aux.Content
	r.Metadata = aux.Metadata
	r.Error = nil

	raw := strings.TrimSpace(string(aux.Error))
	if raw == "" || raw == "null" {
		return nil
	}

	var errStr string
	if err := json.Unmarshal(aux.Error, &errStr); err == nil {
		if errStr != "" {
			r.Error = errors.New(errStr)
		}
		return nil
	}

	var errObj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(aux.Error, &errObj); err == nil && errObj.Message != "" {
		r.Error = errors.New(errObj.Message)
	}
	return nil
}

// ToolDefinition describes a tool and its argument schema
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ToolMetadata contains tool information
type ToolMetadata struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// ParameterSchema defines tool parameters (JSON Schema format)
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Enum        []any  `json:"enum,omitempty"`
}

// Clock abstracts time for deterministic tests
type Clock interface {
	Now() time.Time
}

// SystemClock uses the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
