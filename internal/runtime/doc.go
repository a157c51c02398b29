// Package runtime executes analyses.
//
// The Engine dispatches the five analysis categories of a generation
// concurrently and joins them with settle-all semantics. Each task writes
// into a TaskStore through a pure merge, and writes tagged with a superseded
// generation are rejected. The Resolver dispatches the allocation-dependent
// categories as soon as an allocation becomes available, and the Aggregator
// normalizes raw service answers into the payloads of pkg/domain.
//
// The Sequencer is the alternative, guided mode: it walks a Plan step by step,
// holding each step for a minimum duration and reporting progress.
package runtime
