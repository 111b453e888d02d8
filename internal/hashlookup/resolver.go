package hashlookup

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wintermute101/integrity-checker/internal/record"
	"github.com/wintermute101/integrity-checker/internal/storage"
)

// DefaultWorkers bounds the number of concurrent service queries.
const DefaultWorkers = 8

// Outcome classifies what is known about a hash after resolution.
type Outcome string

const (
	// OutcomeKnown means the service has the hash in its database.
	OutcomeKnown Outcome = "known"
	// OutcomeUnknown means the service definitively does not know the hash.
	OutcomeUnknown Outcome = "unknown"
	// OutcomeUnresolved means no answer could be obtained. Unresolved
	// hashes are not cached, so the next run asks again.
	OutcomeUnresolved Outcome = "unresolved"
)

// Resolution is the final verdict for one hash.
type Resolution struct {
	Hash      record.Digest `json:"hash"`
	Outcome   Outcome       `json:"outcome"`
	Trust     uint8         `json:"trust"`
	FromCache bool          `json:"fromCache"`
	Err       error         `json:"-"`
}

// Report aggregates one resolution pass.
type Report struct {
	Resolutions map[record.Digest]Resolution `json:"resolutions"`
	CacheHits   int                          `json:"cacheHits"`
	Queried     int                          `json:"queried"`
}

// Outcomes returns the resolutions with the given outcome, sorted by hash.
func (r *Report) Outcomes(outcome Outcome) []Resolution {
	var out []Resolution
	for _, res := range r.Resolutions {
		if res.Outcome == outcome {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

// Resolver answers hash reputation questions from the cache first and the
// service second. Every network verdict is written to the cache before the
// report is returned, so a hash never costs more than one query over the
// lifetime of the cache.
type Resolver struct {
	client  *Client
	cache   *storage.Cache
	workers int
	logger  *slog.Logger
}

// NewResolver wires a client to a verdict cache.
func NewResolver(client *Client, cache *storage.Cache, workers int, logger *slog.Logger) *Resolver {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{client: client, cache: cache, workers: workers, logger: logger}
}

// Resolve determines the reputation of every distinct hash in the list.
// Duplicates are collapsed before the cache is consulted; only hashes the
// cache has never seen go out to the service.
func (r *Resolver) Resolve(ctx context.Context, algorithm record.Algorithm, hashes []record.Digest) (*Report, error) {
	if _, err := lookupPath(algorithm); err != nil {
		return nil, err
	}

	distinct := dedupe(hashes)
	report := &Report{Resolutions: make(map[record.Digest]Resolution, len(distinct))}

	var misses []record.Digest
	for _, hash := range distinct {
		entry, ok, err := r.cache.Get(ctx, hash)
		if err != nil {
			return nil, err
		}
		if !ok {
			misses = append(misses, hash)
			continue
		}
		report.CacheHits++
		report.Resolutions[hash] = Resolution{
			Hash:      hash,
			Outcome:   outcomeOf(entry.Found),
			Trust:     entry.Trust,
			FromCache: true,
		}
	}

	r.logger.Debug("resolving hashes",
		slog.Int("distinct", len(distinct)),
		slog.Int("cached", report.CacheHits),
		slog.Int("to_query", len(misses)))

	if len(misses) == 0 {
		return report, nil
	}
	report.Queried = len(misses)

	type lookupResult struct {
		verdict Verdict
		hash    record.Digest
		err     error
	}

	jobs := make(chan record.Digest)
	results := make(chan lookupResult, len(misses))

	var wg sync.WaitGroup
	workers := r.workers
	if workers > len(misses) {
		workers = len(misses)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for hash := range jobs {
				verdict, err := r.client.Lookup(ctx, algorithm, hash)
				results <- lookupResult{verdict: verdict, hash: hash, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, hash := range misses {
			select {
			case jobs <- hash:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single-threaded cache writes: verdicts land on disk as they arrive,
	// so even an interrupted run pays for each hash at most once.
	for result := range results {
		if result.err != nil {
			r.logger.Warn("hash left unresolved",
				slog.String("hash", result.hash.Short()),
				slog.String("error", result.err.Error()))
			report.Resolutions[result.hash] = Resolution{
				Hash:    result.hash,
				Outcome: OutcomeUnresolved,
				Err:     result.err,
			}
			continue
		}

		entry := storage.CacheEntry{
			Hash:       result.hash,
			Algorithm:  algorithm,
			Found:      result.verdict.Found,
			Trust:      result.verdict.Trust,
			ObservedAt: time.Now(),
		}
		if err := r.cache.Put(ctx, entry); err != nil {
			return nil, err
		}
		report.Resolutions[result.hash] = Resolution{
			Hash:    result.hash,
			Outcome: outcomeOf(result.verdict.Found),
			Trust:   result.verdict.Trust,
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return report, nil
}

func outcomeOf(found bool) Outcome {
	if found {
		return OutcomeKnown
	}
	return OutcomeUnknown
}

// dedupe returns the distinct hashes in sorted order.
func dedupe(hashes []record.Digest) []record.Digest {
	seen := make(map[record.Digest]struct{}, len(hashes))
	out := make([]record.Digest, 0, len(hashes))
	for _, hash := range hashes {
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		out = append(out, hash)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
