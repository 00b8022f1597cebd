// Package fetcher caches a single remote JSON resource in memory for a fixed
// TTL and falls back to the last known-good value when a refresh fails.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultURL is the resource served when no URL is configured.
	DefaultURL = "https://a.cewe.pro/data.json"
	// DefaultTTL is how long a fetched value is served without refreshing.
	DefaultTTL = 24 * time.Hour
)

// isoMillis matches the ISO-8601 form with millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

var errNilResponse = errors.New("client returned no response")

// Response is what the HTTP collaborator hands back for one request.
type Response struct {
	StatusCode int
	StatusText string
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Client issues a GET-equivalent request. Transport failures are returned
// as errors.
type Client interface {
	Get(ctx context.Context, url string) (*Response, error)
}

// Observer receives cache events. Implementations must be safe for
// concurrent use.
type Observer interface {
	CacheHit()
	CacheMiss()
	StaleServed()
	FetchSucceeded(elapsed time.Duration, fetchedAt time.Time)
	FetchFailed(kind string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) CacheHit()                               {}
func (nopObserver) CacheMiss()                              {}
func (nopObserver) StaleServed()                            {}
func (nopObserver) FetchSucceeded(time.Duration, time.Time) {}
func (nopObserver) FetchFailed(string, time.Duration)       {}

// Options configures a Fetcher. Zero values fall back to defaults.
type Options struct {
	URL      string
	TTL      time.Duration
	Now      func() time.Time
	Observer Observer
	Logger   log.Interface
}

// Source tells where a returned value came from.
type Source int

const (
	SourceCache    Source = iota // fresh cache hit
	SourceUpstream               // fetched during this call
	SourceStale                  // refresh failed, last known-good value
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "HIT"
	case SourceUpstream:
		return "MISS"
	case SourceStale:
		return "STALE"
	default:
		return "UNKNOWN"
	}
}

// Result is a value together with its provenance.
type Result[T any] struct {
	Value     T
	FetchedAt time.Time
	Source    Source
}

// Fetcher serves the latest known value of one remote resource.
// It is safe for concurrent use; concurrent refreshes collapse into one
// request.
type Fetcher[T any] struct {
	url    string
	ttl    time.Duration
	client Client
	decode Decoder[T]
	now    func() time.Time
	obs    Observer
	log    log.Interface

	group singleflight.Group

	mu        sync.RWMutex
	value     T
	has       bool
	fetchedAt time.Time
}

// New builds an empty Fetcher.
func New[T any](client Client, decode Decoder[T], opts Options) *Fetcher[T] {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Log
	}
	if decode == nil {
		decode = JSONDecoder[T]()
	}
	return &Fetcher[T]{
		url:    opts.URL,
		ttl:    opts.TTL,
		client: client,
		decode: decode,
		now:    opts.Now,
		obs:    opts.Observer,
		log:    opts.Logger.WithField("url", opts.URL),
	}
}

// URL returns the resource location.
func (f *Fetcher[T]) URL() string { return f.url }

// TTL returns the freshness window.
func (f *Fetcher[T]) TTL() time.Duration { return f.ttl }

// Get returns the cached value while it is fresh, otherwise refreshes it.
// Once any value has been cached Get never fails; refresh failures fall
// back to the stale value. Before that, failures are reported as
// *NoDataAvailableError.
func (f *Fetcher[T]) Get(ctx context.Context) (T, error) {
	res, err := f.Load(ctx)
	return res.Value, err
}

// Load is Get with provenance.
func (f *Fetcher[T]) Load(ctx context.Context) (Result[T], error) {
	now := f.now()

	f.mu.RLock()
	value, has, fetchedAt := f.value, f.has, f.fetchedAt
	f.mu.RUnlock()

	if has {
		if age := now.Sub(fetchedAt); age < f.ttl {
			f.log.WithField("age_minutes", int64(math.Round(age.Minutes()))).Info("using cached data")
			f.obs.CacheHit()
			return Result[T]{Value: value, FetchedAt: fetchedAt, Source: SourceCache}, nil
		}
	}

	f.obs.CacheMiss()
	f.log.Info("cache expired or not found, fetching fresh data")

	res, err := f.refresh(ctx)
	if err == nil {
		return res, nil
	}

	f.log.WithError(err).Error("failed to fetch data")

	f.mu.RLock()
	value, has, fetchedAt = f.value, f.has, f.fetchedAt
	f.mu.RUnlock()

	if has {
		f.log.Warn("returning stale cached data as fallback")
		f.obs.StaleServed()
		return Result[T]{Value: value, FetchedAt: fetchedAt, Source: SourceStale}, nil
	}
	return Result[T]{}, &NoDataAvailableError{Cause: err}
}

// refresh joins or starts the single in-flight fetch. The fetch itself is
// detached from ctx; ctx only bounds how long this caller waits.
func (f *Fetcher[T]) refresh(ctx context.Context) (Result[T], error) {
	detached := context.WithoutCancel(ctx)
	ch := f.group.DoChan(f.url, func() (any, error) {
		// a flight that finished after our read may already have refreshed
		if res, ok := f.fresh(); ok {
			return res, nil
		}
		return f.fetch(detached)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return Result[T]{}, r.Err
		}
		return r.Val.(Result[T]), nil
	case <-ctx.Done():
		return Result[T]{}, ctx.Err()
	}
}

func (f *Fetcher[T]) fresh() (Result[T], bool) {
	now := f.now()
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.has && now.Sub(f.fetchedAt) < f.ttl {
		return Result[T]{Value: f.value, FetchedAt: f.fetchedAt, Source: SourceCache}, true
	}
	return Result[T]{}, false
}

func (f *Fetcher[T]) fetch(ctx context.Context) (Result[T], error) {
	startedAt := f.now()
	begin := time.Now()

	v, err := f.request(ctx)
	elapsed := time.Since(begin)
	if err != nil {
		f.obs.FetchFailed(errorKind(err), elapsed)
		return Result[T]{}, err
	}

	f.mu.Lock()
	f.value = v
	f.has = true
	f.fetchedAt = startedAt
	f.mu.Unlock()

	f.log.WithField("fetched_at", startedAt.UTC().Format(isoMillis)).Info("data successfully cached")
	f.obs.FetchSucceeded(elapsed, startedAt)
	return Result[T]{Value: v, FetchedAt: startedAt, Source: SourceUpstream}, nil
}

func (f *Fetcher[T]) request(ctx context.Context) (T, error) {
	var zero T

	resp, err := f.client.Get(ctx, f.url)
	if err != nil {
		return zero, fmt.Errorf("request %s: %w", f.url, err)
	}
	if resp == nil {
		return zero, fmt.Errorf("request %s: %w", f.url, errNilResponse)
	}
	if !resp.OK() {
		return zero, &FetchError{StatusCode: resp.StatusCode, StatusText: resp.StatusText}
	}

	v, err := f.decode(resp.Body)
	if err != nil {
		var pe *ParseError
		if !errors.As(err, &pe) {
			err = &ParseError{Err: err}
		}
		return zero, err
	}
	return v, nil
}
