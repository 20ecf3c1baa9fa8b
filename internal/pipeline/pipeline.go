// Package pipeline models the external command invocations recorded in a
// backup run. A Pipeline is a small template data structure: tool names and
// argument vectors that may carry named placeholders such as {source} and
// {dest}. Templates are persisted as JSON text during clone and rendered
// again with different bindings at restore time. Rendering is a restricted,
// purely lexical substitution; the result is only ever handed to exec as an
// argument vector, never to a shell.
package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrRender indicates a placeholder left unbound or an invalid binding.
var ErrRender = errors.New("template render failed")

// None is the persisted representation of "no command": skipped partitions
// store this literal in their writer/wrote/reader files.
const None = "None"

// Placeholder names understood by Render.
const (
	PlaceholderSource = "source"
	PlaceholderDest   = "dest"
	PlaceholderUUID   = "uuid"
	PlaceholderLevel  = "level"
)

var placeholderPattern = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// Command is a single external tool invocation.
type Command struct {
	Tool string   `json:"tool"`
	Args []string `json:"args"`
}

// Pipeline is a sequence of commands connected stdout-to-stdin. Input, when
// set, names a file fed to the first stage's stdin; Output names a file that
// receives the last stage's stdout. Both may contain placeholders.
type Pipeline struct {
	Stages []Command `json:"stages"`
	Input  string    `json:"input,omitempty"`
	Output string    `json:"output,omitempty"`
}

// Tools returns the distinct tool names the pipeline invokes, in stage order.
func (p *Pipeline) Tools() []string {
	var tools []string
	seen := make(map[string]bool)
	for _, st := range p.Stages {
		if !seen[st.Tool] {
			seen[st.Tool] = true
			tools = append(tools, st.Tool)
		}
	}
	return tools
}

// String renders a shell-like description for logs and dry-run output. It is
// informational only and is never executed.
func (p *Pipeline) String() string {
	var parts []string
	for _, st := range p.Stages {
		parts = append(parts, strings.Join(append([]string{st.Tool}, st.Args...), " "))
	}
	s := strings.Join(parts, " | ")
	if p.Input != "" {
		s = s + " < " + p.Input
	}
	if p.Output != "" {
		s = s + " > " + p.Output
	}
	return s
}

func substitute(s string, binds map[string]string) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1 : len(m)-1]
		val, ok := binds[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return val
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: unbound placeholder(s) %s in %q",
			ErrRender, strings.Join(missing, ", "), s)
	}
	return out, nil
}

// Render returns a copy of the pipeline with every placeholder replaced by
// its binding. Every placeholder occurring in the template must be bound;
// unused bindings are allowed. Binding values are inserted verbatim into the
// argument vector, so no quoting or escaping semantics apply.
func (p *Pipeline) Render(binds map[string]string) (*Pipeline, error) {
	out := Pipeline{Stages: make([]Command, len(p.Stages))}
	var err error
	for i, st := range p.Stages {
		args := make([]string, len(st.Args))
		for j, a := range st.Args {
			if args[j], err = substitute(a, binds); err != nil {
				return nil, err
			}
		}
		out.Stages[i] = Command{Tool: st.Tool, Args: args}
	}
	if out.Input, err = substitute(p.Input, binds); err != nil {
		return nil, err
	}
	if out.Output, err = substitute(p.Output, binds); err != nil {
		return nil, err
	}
	return &out, nil
}

// Encode serializes a pipeline for persistence in a backup run. A nil
// pipeline encodes as the literal None.
func Encode(p *Pipeline) []byte {
	if p == nil {
		return []byte(None + "\n")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	// Encoding a struct without funny types cannot fail.
	_ = enc.Encode(p)
	return buf.Bytes()
}

// Decode parses a persisted pipeline. The literal None decodes to nil.
func Decode(data []byte) (*Pipeline, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == None {
		return nil, nil
	}
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	if len(p.Stages) == 0 {
		return nil, errors.New("decode pipeline: no stages")
	}
	return &p, nil
}
