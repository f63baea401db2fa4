package refs

// Kind identifies the primitive type behind a hook call or fault.
type Kind int

const (
	KindObservable Kind = iota
	KindRef
	KindMapped
	KindComputed
	KindLimited
	KindMerged
)

// String returns the kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindObservable:
		return "observable"
	case KindRef:
		return "ref"
	case KindMapped:
		return "mapped"
	case KindComputed:
		return "computed"
	case KindLimited:
		return "limited"
	case KindMerged:
		return "merged"
	default:
		return "unknown"
	}
}

// LimitOutcome is what a rate limiter did with a write attempt or a pending
// value.
type LimitOutcome int

const (
	// LimitApplied means a value reached the origin.
	LimitApplied LimitOutcome = iota

	// LimitDeferred means an attempt was queued as the pending value.
	LimitDeferred

	// LimitSuperseded means a pending value was replaced by a newer attempt.
	LimitSuperseded

	// LimitDropped means a pending value was discarded by Dispose.
	LimitDropped
)

// String returns the outcome name.
func (o LimitOutcome) String() string {
	switch o {
	case LimitApplied:
		return "applied"
	case LimitDeferred:
		return "deferred"
	case LimitSuperseded:
		return "superseded"
	case LimitDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Hooks observes the propagation engine. Implementations must be cheap and
// must not call back into the primitive that invoked them.
// See package telemetry for Prometheus and OpenTelemetry implementations.
type Hooks interface {
	// OnDeliver is called once per notification pass with the number of
	// subscribers that received the value.
	OnDeliver(kind Kind, name string, subscribers int)

	// OnCoalesce is called when a write or dependency change is folded into
	// an already scheduled notification or recomputation.
	OnCoalesce(kind Kind, name string)

	// OnRecompute is called before a mapped or computed value is
	// recomputed. The returned function is called with the fault, if any,
	// once recomputation finishes.
	OnRecompute(kind Kind, name string) func(err error)

	// OnLimit is called for every rate limiter decision.
	OnLimit(name string, strategy Strategy, outcome LimitOutcome)

	// OnFault is called for every fault before it reaches the error sink.
	OnFault(err *FaultError)
}

// NopHooks ignores every call.
type NopHooks struct{}

func (NopHooks) OnDeliver(Kind, string, int)            {}
func (NopHooks) OnCoalesce(Kind, string)                {}
func (NopHooks) OnRecompute(Kind, string) func(error)   { return func(error) {} }
func (NopHooks) OnLimit(string, Strategy, LimitOutcome) {}
func (NopHooks) OnFault(*FaultError)                    {}

var _ Hooks = NopHooks{}
