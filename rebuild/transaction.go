package rebuild

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/brepkit/identity/kernel"
	"github.com/brepkit/identity/registry"
	"github.com/brepkit/identity/resolve"
	"github.com/brepkit/identity/shape"
)

// State is a phase of the transaction state machine.
type State string

const (
	// StateIdle is the state before the transaction starts.
	StateIdle State = "idle"

	// StateSnapshot captures the committed solid reference and a clone of
	// the registry. No geometry is copied.
	StateSnapshot State = "snapshot"

	// StateRebuilding walks the topological order of the dirty set,
	// recomputing each feature through the kernel.
	StateRebuilding State = "rebuilding"

	// StateResolving re-resolves every shape reference against the final
	// solid and compacts stale entries.
	StateResolving State = "resolving"

	// StateCommitted published the new solid and registry atomically.
	StateCommitted State = "committed"

	// StateRolledBack left the committed state exactly as it was.
	StateRolledBack State = "rolled_back"
)

// Outcome reports one finished transaction.
type Outcome struct {
	// TransactionID uniquely identifies the transaction in logs and traces.
	TransactionID string

	// Body names the body the transaction ran against.
	Body string

	// State is the terminal state: StateCommitted or StateRolledBack.
	State State

	// Rebuilt lists the features recomputed successfully, in rebuild order.
	Rebuilt []shape.FeatureID

	// Failed carries the kernel failure that aborted the transaction, nil
	// on commit.
	Failed *kernel.OperationError

	// Results holds the per-reference resolution outcomes of a committed
	// transaction.
	Results registry.Results

	// Unresolved is the subset of Results that failed to resolve. The
	// owning features were marked degraded.
	Unresolved map[shape.ShapeID]*resolve.Failure

	// Compacted is the number of stale references removed after resolving.
	Compacted int

	// Duration is the wall-clock time of the transaction.
	Duration time.Duration
}

// transaction is the short-lived state machine driving one rebuild.
type transaction struct {
	id    string
	body  *Body
	dirty []shape.FeatureID
	state State
}

func newTransaction(b *Body, dirty []shape.FeatureID) *transaction {
	return &transaction{
		id:    uuid.NewString(),
		body:  b,
		dirty: dirty,
		state: StateIdle,
	}
}

func (t *transaction) setState(s State) {
	t.state = s
	t.body.logger.Debug("rebuild transaction state",
		"body", t.body.name, "tx", t.id, "state", string(s))
}

// run drives the transaction to its terminal state. The returned Outcome
// is always non-nil; err is non-nil whenever the terminal state is
// StateRolledBack.
func (t *transaction) run(ctx context.Context) (outcome *Outcome, err error) {
	start := time.Now()
	graph := t.body.graph

	var span trace.Span
	if t.body.tracer != nil {
		ctx, span = t.body.tracer.Start(ctx, "rebuild.transaction",
			trace.WithAttributes(
				attribute.String("body", t.body.name),
				attribute.String("tx.id", t.id),
				attribute.Int("dirty.count", len(t.dirty)),
			))
		defer func() { span.End() }()
	}

	outcome = &Outcome{TransactionID: t.id, Body: t.body.name, State: StateRolledBack}

	// Snapshot: the committed state pointer plus a registry clone and the
	// graph's mutable node state. Cheap by construction.
	t.setState(StateSnapshot)
	prev := t.body.published.Load()
	graphSnap := graph.SnapshotState()
	working := prev.Registry.Clone()

	finish := func() {
		outcome.Duration = time.Since(start)
		t.body.ins.record(ctx, t.body.name, outcome, outcome.Duration)
		if span != nil {
			span.SetAttributes(
				attribute.String("state", string(outcome.State)),
				attribute.Int("rebuilt.count", len(outcome.Rebuilt)),
				attribute.Int("unresolved.count", len(outcome.Unresolved)),
			)
			if outcome.State == StateCommitted {
				span.SetStatus(codes.Ok, "")
			} else if err != nil {
				span.SetStatus(codes.Error, err.Error())
			}
		}
	}
	defer finish()

	// Any internal fault past this point restores the pre-transaction
	// node state exactly; the committed BodyState was never touched.
	defer func() {
		if r := recover(); r != nil {
			graph.RestoreState(graphSnap)
			outcome.State = StateRolledBack
			err = fmt.Errorf("rebuild: transaction %s panicked: %v", t.id, r)
			t.body.logger.Error("rebuild transaction panicked",
				"body", t.body.name, "tx", t.id, "panic", r)
		}
	}()

	order, orderErr := graph.TopoOrder(t.dirty)
	if orderErr != nil {
		t.setState(StateRolledBack)
		return outcome, fmt.Errorf("rebuild: order dirty set: %w", orderErr)
	}

	t.setState(StateRebuilding)
	finalSolid := prev.Solid
	rebuilt := make(map[shape.FeatureID]bool, len(order))

	for _, fid := range order {
		if ctxErr := ctx.Err(); ctxErr != nil {
			graph.RestoreState(graphSnap)
			t.setState(StateRolledBack)
			return outcome, fmt.Errorf("rebuild: cancelled before %s: %w", fid, ctxErr)
		}

		node, nodeErr := graph.Feature(fid)
		if nodeErr != nil {
			graph.RestoreState(graphSnap)
			t.setState(StateRolledBack)
			return outcome, fmt.Errorf("rebuild: %w", nodeErr)
		}

		newSolid, kernErr := t.body.kernel.Recompute(ctx, t.upstreamSolid(fid), fid, node.Params)
		if kernErr != nil {
			// Kernel rejection: partial success stands up to the failing
			// feature, which keeps its dirty flag and records the error;
			// downstream features are untouched and the committed state
			// is bit-for-bit unchanged.
			opErr := &kernel.OperationError{Feature: fid, Err: kernErr}
			_ = graph.SetFailed(fid, opErr)
			t.setState(StateRolledBack)
			outcome.Failed = opErr
			t.body.logger.Error("kernel rejected feature rebuild",
				"body", t.body.name, "tx", t.id, "feature", string(fid), "error", kernErr)
			return outcome, opErr
		}

		_ = graph.SetBuilt(fid, newSolid)
		rebuilt[fid] = true
		outcome.Rebuilt = append(outcome.Rebuilt, fid)
		finalSolid = newSolid
	}

	t.setState(StateResolving)
	if finalSolid != nil {
		var history *kernel.History
		if prev.Solid != nil {
			history = kernel.HistoryFor(t.body.kernel, prev.Solid, finalSolid, "rebuild")
		}

		results := working.ResolveAll(ctx, finalSolid, history)
		if commitErr := working.Commit(results); commitErr != nil {
			graph.RestoreState(graphSnap)
			t.setState(StateRolledBack)
			return outcome, fmt.Errorf("rebuild: commit resolutions: %w", commitErr)
		}
		outcome.Results = results
		outcome.Compacted = working.Compact(finalSolid, rebuilt)
		outcome.Unresolved = results.Failures()
		t.degradeOwners(outcome.Unresolved)
	}

	// Single atomic publish: readers switch from the old (solid, registry)
	// pair to the new one in one pointer swap.
	t.body.published.Store(&BodyState{Solid: finalSolid, Registry: working})
	t.setState(StateCommitted)
	outcome.State = StateCommitted

	t.body.logger.Info("rebuild transaction committed",
		"body", t.body.name,
		"tx", t.id,
		"rebuilt", len(outcome.Rebuilt),
		"unresolved", len(outcome.Unresolved),
		"compacted", outcome.Compacted)
	return outcome, nil
}

// upstreamSolid returns the solid a feature rebuilds from: the cached
// output of its primary (earliest-declared) upstream feature, already
// refreshed when that feature was rebuilt earlier in this transaction.
// Root features rebuild from nothing.
func (t *transaction) upstreamSolid(fid shape.FeatureID) shape.Solid {
	ups := t.body.graph.DirectUpstream(fid)
	for _, up := range ups {
		if node, err := t.body.graph.Feature(up); err == nil && node.CachedOutput != nil {
			return node.CachedOutput
		}
	}
	return nil
}

// degradeOwners marks the features owning unresolved references as
// degraded. DeletedByOperation is a legitimate lifecycle event and does
// not degrade anything; the reference is simply gone.
func (t *transaction) degradeOwners(failures map[shape.ShapeID]*resolve.Failure) {
	for id, f := range failures {
		if f.Reason == resolve.ReasonDeletedByOperation {
			continue
		}
		_ = t.body.graph.SetDegraded(id.OwningFeature, f)
		t.body.logger.Warn("shape reference needs manual re-selection",
			"body", t.body.name,
			"tx", t.id,
			"shape_id", id.String(),
			"reason", string(f.Reason),
			"detail", f.Detail)
	}
}
