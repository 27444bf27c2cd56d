// Package cache implements the result cache for idempotent tools.
// A cached result must be indistinguishable from a fresh computation;
// only successful results are ever stored.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/toolcall"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "cache")

// ResultCache maps a request fingerprint to a previously computed
// result. Implementations are safe for concurrent use.
type ResultCache interface {
	// Lookup returns the stored result, refreshing its recency.
	// Expired entries are treated as absent.
	Lookup(ctx context.Context, fingerprint string) (*toolcall.Result, bool)
	// Store saves a successful result for the given ttl.
	Store(ctx context.Context, fingerprint string, res *toolcall.Result, ttl time.Duration) error
	// Remove drops the entry for the given fingerprint, if any.
	Remove(ctx context.Context, fingerprint string) error
}

// Fingerprint derives the deterministic cache key from a tool name and
// its arguments. encoding/json writes map keys in sorted order at
// every level, which gives a canonical form without extra machinery.
func Fingerprint(tool string, args map[string]any) (string, error) {
	js, err := json.Marshal(args)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal arguments")
	}

	h := xxhash.New()
	_, _ = h.WriteString(tool)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(js)
	return strconv.FormatUint(h.Sum64(), 16), nil
}
