package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/securecheckio/rules-engine/pkg/rules"
	"github.com/securecheckio/rules-engine/pkg/semantic"
	"github.com/securecheckio/rules-engine/pkg/state"
	"github.com/securecheckio/rules-engine/pkg/telemetry/metrics"
)

// Options configures a new Engine. Both external collaborators are optional:
// without a semantic matcher, semantic stages cannot establish a match;
// without a state provider, conversation state lives only in the cache.
type Options struct {
	// Semantic is the similarity backend, or nil.
	Semantic semantic.Matcher

	// Provider is the persistent state store, or nil.
	Provider state.Provider

	// Cache tunes the conversation state cache. Nil means defaults.
	Cache *state.CacheConfig

	// Logger receives structured diagnostics. Nil means slog.Default().
	Logger *slog.Logger

	// Metrics receives evaluation counters. Nil disables instrumentation.
	Metrics *metrics.EngineMetrics
}

// Engine evaluates messages against the loaded rule set.
//
// Engine is safe for concurrent evaluations of distinct conversation tuples.
// Concurrent evaluations of the same tuple are not serialized internally;
// the proxy in front of the engine processes a conversation's messages in
// order, which is the contract the state machine depends on.
type Engine struct {
	rules      *rules.Set
	regexes    *RegexCache
	thresholds *ThresholdTracker
	states     *state.Cache

	matcher  semantic.Matcher
	provider state.Provider

	logger  *slog.Logger
	metrics *metrics.EngineMetrics
	tracer  trace.Tracer

	mu     sync.Mutex
	closed bool

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// New creates an engine with no rules loaded.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		rules:      rules.NewSet(logger),
		regexes:    NewRegexCache(),
		thresholds: NewThresholdTracker(),
		states:     state.NewCache(opts.Cache, opts.Provider, logger),
		matcher:    opts.Semantic,
		provider:   opts.Provider,
		logger:     logger.With("component", "engine"),
		metrics:    opts.Metrics,
		tracer:     otel.Tracer("securecheck/engine"),
		now:        time.Now,
	}
}

// LoadRules replaces the rule set. Loads swap the list atomically, so
// in-flight evaluations finish against the snapshot they started with.
func (e *Engine) LoadRules(list []*rules.Rule) error {
	return e.rules.Load(list)
}

// RuleCount returns the number of loaded (enabled) rules.
func (e *Engine) RuleCount() int {
	return e.rules.Count()
}

// Stats returns a snapshot of engine resource usage.
func (e *Engine) Stats() Stats {
	return Stats{
		RulesLoaded:    e.rules.Count(),
		CacheSize:      e.states.Size(),
		RegexCacheSize: e.regexes.Size(),
	}
}

// Evaluate classifies one message and returns the ordered result list.
//
// Rules evaluate in priority order. Flag mutations by earlier rules are
// visible to later rules in the same pass through a copy-on-write state
// chain; each matched result snapshots the chain at its own mutation. A
// firing block/critical rule ends the pass immediately.
//
// The returned error is non-nil only for caller mistakes (nil context) or
// engine shutdown. Rule-level failures never abort the pass; they surface
// as diagnostic results or log lines per the failure taxonomy.
func (e *Engine) Evaluate(ctx context.Context, ec *EvaluationContext) ([]EvaluationResult, error) {
	if ec == nil {
		return nil, ErrNilContext
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.mu.Unlock()

	start := e.now()
	tuple := ec.Tuple()

	ctx, span := e.tracer.Start(ctx, "engine.evaluate",
		trace.WithAttributes(
			attribute.String("conversation.token_id", ec.TokenID),
			attribute.String("conversation.id", ec.ConversationID),
		))
	defer span.End()

	current := e.hydrate(ctx, ec, tuple)
	snapshot := e.rules.Snapshot()

	// Semantic queries are memoized per pass by threshold so several rules
	// sharing a floor cost one backend round trip.
	semanticMemo := make(map[float64][]semantic.Match)

	var results []EvaluationResult

	for _, rule := range snapshot {
		// Inert rules (no stages, no flag gate) load cleanly but can
		// never establish a match.
		if rule.Inert() {
			continue
		}
		if !flagGateHolds(rule, current) {
			continue
		}

		ruleStart := e.now()
		outcome := e.matchStages(ctx, rule, ec.Message, semanticMemo)
		if outcome.skipReason != "" {
			results = append(results, EvaluationResult{
				Matched:  false,
				Rule:     rule,
				Reason:   outcome.skipReason,
				EvalTime: e.now().Sub(ruleStart),
			})
			continue
		}
		if !outcome.matched {
			continue
		}

		if !e.thresholds.Check(rule, tuple, e.now()) {
			e.metrics.RuleGated(rule.ID)
			results = append(results, EvaluationResult{
				Matched:  false,
				Rule:     rule,
				Reason:   fmt.Sprintf("Threshold not met (%d in %ds)", rule.Threshold, rule.Window),
				EvalTime: e.now().Sub(ruleStart),
			})
			continue
		}

		current = e.applyFlags(rule, current, tuple)
		e.metrics.RuleHit(rule.ID, string(rule.Action))

		results = append(results, EvaluationResult{
			Matched:        true,
			Rule:           rule,
			Action:         rule.Action,
			State:          current,
			MatchedPattern: outcome.pattern,
			Similarity:     outcome.similarity,
			EvalTime:       e.now().Sub(ruleStart),
		})

		if rule.Action == rules.ActionBlock && rule.Severity == rules.SeverityCritical {
			e.logger.Debug("critical block fired, ending pass",
				"rule_id", rule.ID,
				"conversation", tuple.Key(),
			)
			break
		}
	}

	e.persistResults(ctx, results)

	matched := 0
	for _, r := range results {
		if r.Matched {
			matched++
		}
	}
	e.metrics.ObserveEvaluation(matched, e.now().Sub(start))
	span.SetAttributes(
		attribute.Int("engine.results", len(results)),
		attribute.Int("engine.matched", matched),
	)
	return results, nil
}

// hydrate resolves the conversation state for the pass: explicit override,
// cache, provider, then a fresh synthesized record. A synthesized or
// provider-loaded state is cached immediately so concurrent evaluations of
// the same tuple share one hydration.
func (e *Engine) hydrate(ctx context.Context, ec *EvaluationContext, tuple state.Tuple) *state.ConversationState {
	if ec.State != nil {
		return ec.State
	}

	if cached, ok := e.states.Get(tuple); ok {
		e.metrics.StateCacheHit()
		return cached
	}
	e.metrics.StateCacheMiss()

	if e.provider != nil {
		stored, err := e.provider.Get(ctx, tuple)
		if err != nil {
			e.logger.Warn("state provider read failed, synthesizing fresh state",
				"conversation", tuple.Key(),
				"error", err,
			)
		} else if stored != nil {
			e.states.Set(tuple, stored)
			return stored
		}
	}

	fresh := state.New(tuple, e.now())
	e.states.Set(tuple, fresh)
	return fresh
}

// flagGateHolds reports whether every flag in the rule's check list is
// currently true. Rules without a check list are always eligible.
func flagGateHolds(rule *rules.Rule, s *state.ConversationState) bool {
	if rule.Flags == nil {
		return true
	}
	for _, flag := range rule.Flags.Check {
		if !s.Flags[flag] {
			return false
		}
	}
	return true
}

// applyFlags produces the post-fire state: a clone with the rule's set and
// unset flags applied, the history extended, and the lifetime renewed from
// the rule's TTL. The clone replaces the cached state and becomes the
// current state for the rest of the pass.
func (e *Engine) applyFlags(rule *rules.Rule, current *state.ConversationState, tuple state.Tuple) *state.ConversationState {
	now := e.now()
	ms := now.UnixMilli()

	next := current.Clone()
	if rule.Flags != nil {
		for _, flag := range rule.Flags.Set {
			next.Flags[flag] = true
			next.FlagHistory = append(next.FlagHistory, state.FlagEvent{
				Flag: flag, Action: state.FlagSet, RuleID: rule.ID, Timestamp: ms,
			})
		}
		for _, flag := range rule.Flags.Unset {
			next.Flags[flag] = false
			next.FlagHistory = append(next.FlagHistory, state.FlagEvent{
				Flag: flag, Action: state.FlagUnset, RuleID: rule.ID, Timestamp: ms,
			})
		}
	}
	next.ExpiresAt = now.Add(time.Duration(rule.Flags.EffectiveTTL()) * time.Second).UnixMilli()
	next.UpdatedAt = ms

	e.states.Set(tuple, next)
	e.states.MarkDirty(tuple)
	return next
}

// persistResults writes each matched result's state snapshot through to the
// provider. Errors are logged, not retried; the batched cache flush remains
// the durable path.
func (e *Engine) persistResults(ctx context.Context, results []EvaluationResult) {
	if e.provider == nil {
		return
	}
	for _, r := range results {
		if !r.Matched || r.State == nil {
			continue
		}
		if err := e.provider.Save(ctx, r.State); err != nil {
			e.logger.Warn("state provider write failed",
				"state_id", r.State.ID,
				"rule_id", r.Rule.ID,
				"error", err,
			)
		}
	}
}

// ClearCaches drops cached conversation states, compiled regexes, and
// threshold counters. Loaded rules are kept.
func (e *Engine) ClearCaches() {
	e.states.Clear()
	e.regexes.Clear()
	e.thresholds.Clear()
}

// Shutdown flushes pending state writes and releases resources. It is
// idempotent; evaluations after shutdown fail with ErrEngineClosed.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	err := e.states.Close(ctx)
	e.regexes.Clear()
	e.thresholds.Clear()
	return err
}
