package pipedrive

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ggoodman/pipedrive-mcp-server-go/storage"
)

// CacheNamespace is the storage namespace used for cached API responses.
const CacheNamespace = "pipedrive"

// CachedOption configures a Cached client.
type CachedOption func(*Cached)

// WithCacheLogger sets the logger used for cache failures.
func WithCacheLogger(l *slog.Logger) CachedOption {
	return func(c *Cached) {
		if l != nil {
			c.log = l
		}
	}
}

// WithCacheObserver registers a callback told whether each cacheable lookup hit.
func WithCacheObserver(fn func(op string, hit bool)) CachedOption {
	return func(c *Cached) { c.observe = fn }
}

// Cached serves users, pipelines and stages from a storage.Storage and
// forwards everything else to the wrapped Client. Storage failures are logged
// and treated as misses.
type Cached struct {
	Client
	store   storage.Storage
	ttl     time.Duration
	log     *slog.Logger
	observe func(op string, hit bool)
}

// NewCached wraps inner with a read-through cache. A ttl of zero keeps entries
// until the backend evicts them.
func NewCached(inner Client, store storage.Storage, ttl time.Duration, opts ...CachedOption) *Cached {
	c := &Cached{
		Client: inner,
		store:  store,
		ttl:    ttl,
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) ListUsers(ctx context.Context) ([]User, error) {
	return readThrough(ctx, c, "users", c.Client.ListUsers)
}

func (c *Cached) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	return readThrough(ctx, c, "pipelines", c.Client.ListPipelines)
}

func (c *Cached) GetPipeline(ctx context.Context, id int64) (json.RawMessage, error) {
	return readThrough(ctx, c, "pipeline:"+strconv.FormatInt(id, 10), func(ctx context.Context) (json.RawMessage, error) {
		return c.Client.GetPipeline(ctx, id)
	})
}

func (c *Cached) ListStages(ctx context.Context, pipelineID int64) ([]Stage, error) {
	return readThrough(ctx, c, "stages:"+strconv.FormatInt(pipelineID, 10), func(ctx context.Context) ([]Stage, error) {
		return c.Client.ListStages(ctx, pipelineID)
	})
}

func readThrough[T any](ctx context.Context, c *Cached, key string, load func(context.Context) (T, error)) (T, error) {
	ns := storage.WithNamespace(CacheNamespace)

	item, err := c.store.Get(ctx, key, ns)
	if err != nil {
		c.log.WarnContext(ctx, "pipedrive.cache.get.fail", slog.String("key", key), slog.String("err", err.Error()))
	}
	if item != nil {
		var v T
		err := json.Unmarshal(item.Data, &v)
		if err == nil {
			c.hit(key, true)
			return v, nil
		}
		c.log.WarnContext(ctx, "pipedrive.cache.decode.fail", slog.String("key", key), slog.String("err", err.Error()))
	}
	c.hit(key, false)

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	b, err := json.Marshal(v)
	if err != nil {
		c.log.WarnContext(ctx, "pipedrive.cache.encode.fail", slog.String("key", key), slog.String("err", err.Error()))
		return v, nil
	}
	opts := []storage.Option{ns}
	if c.ttl > 0 {
		opts = append(opts, storage.WithTTL(c.ttl))
	}
	if err := c.store.Set(ctx, key, b, opts...); err != nil {
		c.log.WarnContext(ctx, "pipedrive.cache.set.fail", slog.String("key", key), slog.String("err", err.Error()))
	}
	return v, nil
}

func (c *Cached) hit(key string, hit bool) {
	if c.observe == nil {
		return
	}
	op, _, _ := strings.Cut(key, ":")
	c.observe(op, hit)
}

var _ Client = (*Cached)(nil)
