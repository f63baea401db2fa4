package telemetry

import "github.com/vango-dev/refs/pkg/refs"

// Combine returns hooks that forward every call to each of hooks in order.
// Nil entries are skipped.
func Combine(hooks ...refs.Hooks) refs.Hooks {
	list := make(multi, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			list = append(list, h)
		}
	}
	switch len(list) {
	case 0:
		return refs.NopHooks{}
	case 1:
		return list[0]
	}
	return list
}

type multi []refs.Hooks

func (m multi) OnDeliver(kind refs.Kind, name string, subscribers int) {
	for _, h := range m {
		h.OnDeliver(kind, name, subscribers)
	}
}

func (m multi) OnCoalesce(kind refs.Kind, name string) {
	for _, h := range m {
		h.OnCoalesce(kind, name)
	}
}

func (m multi) OnRecompute(kind refs.Kind, name string) func(error) {
	done := make([]func(error), len(m))
	for i, h := range m {
		done[i] = h.OnRecompute(kind, name)
	}
	return func(err error) {
		for _, fn := range done {
			fn(err)
		}
	}
}

func (m multi) OnLimit(name string, strategy refs.Strategy, outcome refs.LimitOutcome) {
	for _, h := range m {
		h.OnLimit(name, strategy, outcome)
	}
}

func (m multi) OnFault(err *refs.FaultError) {
	for _, h := range m {
		h.OnFault(err)
	}
}
