package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool", "kind"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsDenied = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_denied",
		Help:         "stats_tool_calls_denied provides total tool calls denied by policy",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsRateLimited = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_rate_limited",
		Help:         "stats_tool_calls_rate_limited provides total tool calls denied by rate limiter",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsRetried = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_retried",
		Help:         "stats_tool_calls_retried provides total tool call attempts retried",
		RequiredTags: []string{"tool"},
	}

	StatsCacheHits = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_cache_hits",
		Help:         "stats_cache_hits provides total result cache hits",
		RequiredTags: []string{"tool"},
	}

	StatsCacheMisses = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_cache_misses",
		Help:         "stats_cache_misses provides total result cache misses",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfDispatch = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_dispatch",
		Help:         "perf_dispatch provides duration of the full dispatch pipeline",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfDispatch,
	&PerfToolCall,
	&StatsCacheHits,
	&StatsCacheMisses,
	&StatsToolCallsDenied,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsRateLimited,
	&StatsToolCallsRetried,
	&StatsToolCallsSucceeded,
}
