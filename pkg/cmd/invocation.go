// Package cmd is the transport-agnostic command core. A command has a name,
// a description and Run(ctx, invocation); how it is registered and dispatched
// (Discord slash command, CLI) is left to adapters.
package cmd

import "context"

// Invocation is what an adapter passes to a command. Data carries the
// adapter's own context, such as a Discord interaction.
type Invocation struct {
	Args []string
	Data any
}

// Command is identity plus execution.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}

// Func adapts a plain function into a Command.
type Func struct {
	CmdName string
	Desc    string
	RunFunc func(ctx context.Context, inv *Invocation) error
}

func (f *Func) Name() string        { return f.CmdName }
func (f *Func) Description() string { return f.Desc }

func (f *Func) Run(ctx context.Context, inv *Invocation) error {
	return f.RunFunc(ctx, inv)
}
