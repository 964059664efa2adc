// Package tools implements the canonical tool set the agent loop can call:
// filesystem access, command execution, reminders, cross-channel messaging,
// the knowledge base, identity linking, and skill lookup.
package tools

import "github.com/skynet-run/skynet/internal/providers"

// Result is the unified return value from a tool call.
type Result struct {
	ForLLM  string `json:"for_llm"`
	ForUser string `json:"for_user,omitempty"`
	Silent  bool   `json:"silent"`
	IsError bool   `json:"is_error"`
	Async   bool   `json:"async"`
	Err     error  `json:"-"`

	Usage    *providers.Usage `json:"-"`
	Provider string           `json:"-"`
	Model    string           `json:"-"`
}

func NewResult(forLLM string) *Result          { return &Result{ForLLM: forLLM} }
func SilentResult(forLLM string) *Result       { return &Result{ForLLM: forLLM, Silent: true} }
func ErrorResult(message string) *Result       { return &Result{ForLLM: message, IsError: true} }
func UserResult(content string) *Result        { return &Result{ForLLM: content, ForUser: content} }
func AsyncResult(message string) *Result       { return &Result{ForLLM: message, Async: true} }

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
