package resilience

import (
	"strings"
	"time"
)

// Operation names. Breakers are kept per operation and retry budgets are
// looked up by them.
const (
	OpChatCompletion = "openai.chat"
	OpOllamaGenerate = "ollama.generate"
	OpDispatch       = "nats.publish.summarize"
	OpProgress       = "nats.publish.progress"
	OpGraphProject   = "neo4j.project"
	OpGraphRemove    = "neo4j.remove"
)

// OperationPolicy overrides the default retry budget for one operation.
// Zero fields inherit the defaults.
type OperationPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// AttemptTimeout bounds each attempt separately; zero leaves only the caller's deadline.
	AttemptTimeout time.Duration

	// Operations is keyed by operation name, or by a prefix ending in "."
	// such as "neo4j.". An exact name wins over a prefix.
	Operations map[string]OperationPolicy

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,
		Operations:          DefaultOperations(),

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// DefaultOperations are the budgets the summarize pipeline runs with.
//   - A progress event is sent once: a late copy would arrive after newer steps.
//   - A lost dispatch leaves a document uploaded and never summarized, so
//     dispatch retries longer than the rest.
//   - The graph is a secondary projection and gets a single retry.
func DefaultOperations() map[string]OperationPolicy {
	return map[string]OperationPolicy{
		OpProgress: {MaxAttempts: 1},
		OpDispatch: {MaxAttempts: 5, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second},
		"neo4j.":   {MaxAttempts: 2},
	}
}

// policyFor resolves the effective budget of one operation.
func (c Config) policyFor(operation string) OperationPolicy {
	out := OperationPolicy{
		MaxAttempts:    c.RetryMaxAttempts,
		InitialBackoff: c.RetryInitialBackoff,
		MaxBackoff:     c.RetryMaxBackoff,
		AttemptTimeout: c.AttemptTimeout,
	}
	override, ok := c.Operations[operation]
	if !ok {
		longest := -1
		for key, candidate := range c.Operations {
			if strings.HasSuffix(key, ".") && strings.HasPrefix(operation, key) && len(key) > longest {
				override, longest = candidate, len(key)
			}
		}
		ok = longest >= 0
	}
	if !ok {
		return out
	}

	if override.MaxAttempts > 0 {
		out.MaxAttempts = override.MaxAttempts
	}
	if override.InitialBackoff > 0 {
		out.InitialBackoff = override.InitialBackoff
	}
	if override.MaxBackoff > 0 {
		out.MaxBackoff = override.MaxBackoff
	}
	if override.AttemptTimeout > 0 {
		out.AttemptTimeout = override.AttemptTimeout
	}
	if out.MaxBackoff < out.InitialBackoff {
		out.MaxBackoff = out.InitialBackoff
	}
	return out
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}
