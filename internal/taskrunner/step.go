// SPDX-License-Identifier: MIT
package taskrunner

import "slices"

// Step is one unit of a chain. Run returning false aborts the chain.
type Step interface {
	Name() string
	Run() bool
}

type checkStep struct {
	name string
	fn   func() bool
}

func (s checkStep) Name() string { return s.name }
func (s checkStep) Run() bool    { return s.fn() }

type doStep struct {
	name string
	fn   func()
}

func (s doStep) Name() string { return s.name }
func (s doStep) Run() bool {
	s.fn()
	return true
}

// Check wraps a fallible step.
func Check(name string, fn func() bool) Step { return checkStep{name: name, fn: fn} }

// Do wraps a step that always succeeds.
func Do(name string, fn func()) Step { return doStep{name: name, fn: fn} }

// Chain is an ordered, named list of steps. Chains are values: every
// builder method returns a new chain and leaves the receiver untouched.
type Chain struct {
	name  string
	steps []Step
}

// NewChain starts an empty chain. The name appears in signals and logs.
func NewChain(name string, steps ...Step) Chain {
	return Chain{name: name, steps: slices.Clone(steps)}
}

func (c Chain) Name() string  { return c.name }
func (c Chain) Len() int      { return len(c.steps) }
func (c Chain) Steps() []Step { return slices.Clone(c.steps) }

// Then appends steps.
func (c Chain) Then(steps ...Step) Chain {
	c.steps = append(slices.Clip(c.steps), steps...)
	return c
}

// Check appends a fallible step.
func (c Chain) Check(name string, fn func() bool) Chain { return c.Then(Check(name, fn)) }

// Do appends a step that always succeeds.
func (c Chain) Do(name string, fn func()) Chain { return c.Then(Do(name, fn)) }
