package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gestalt-social/gestalt/internal/config"
	"github.com/gestalt-social/gestalt/internal/content"
	"github.com/gestalt-social/gestalt/internal/domain"
	"github.com/gestalt-social/gestalt/internal/events"
	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
	"github.com/gestalt-social/gestalt/internal/keys"
	"github.com/gestalt-social/gestalt/internal/logger"
	"github.com/gestalt-social/gestalt/internal/metrics"
	"github.com/gestalt-social/gestalt/internal/pool"
	"github.com/gestalt-social/gestalt/internal/search"
	"github.com/gestalt-social/gestalt/internal/social"
	"github.com/gestalt-social/gestalt/internal/state"
	"github.com/gestalt-social/gestalt/internal/storage"
)

// Builder assembles a Client stage by stage. Stages must run in order:
// identity, storage, pool, state, services.
type Builder struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	log    *zap.Logger

	signer domain.Signer
	secret content.SecretProvider

	store   *storage.Store
	pool    *pool.Pool
	factory *events.Factory

	profiles  *state.ProfileCache
	follows   *state.Follows
	bookmarks *state.Bookmarks
	feeds     *state.Feeds

	graph   *social.Graph
	content *content.Service
	search  *search.Service

	metricsSrv *http.Server
}

// NewBuilder creates a Builder with its own cancelable context.
func NewBuilder(ctx context.Context, cfg *config.Config) *Builder {
	c, cancel := context.WithCancel(ctx)
	return &Builder{
		ctx:    c,
		cancel: cancel,
		cfg:    cfg,
		log:    logger.New("client"),
	}
}

// BuildIdentity resolves the signing identity from configuration. A client
// without an identity stays read-only: queries and subscriptions work,
// publishing operations fail with ErrNoIdentity.
func (b *Builder) BuildIdentity() error {
	switch {
	case b.cfg.Identity.SecretKey != "":
		signer, err := keys.NewLocalSigner(b.cfg.Identity.SecretKey)
		if err != nil {
			return fmt.Errorf("configured secret key: %w", err)
		}
		b.signer, b.secret = signer, signer

	case b.cfg.Identity.KeyFile != "":
		signer, err := keys.LoadLocalSigner(b.cfg.Identity.KeyFile)
		if err != nil {
			return fmt.Errorf("key file %s: %w", b.cfg.Identity.KeyFile, err)
		}
		b.signer, b.secret = signer, signer

	default:
		b.log.Info("No identity configured, running read-only")
		return nil
	}

	b.log.Info("Identity loaded",
		zap.String("pubkey", logger.Abbrev(b.signer.PublicKey())))
	return nil
}

// UseSigner injects an externally constructed signer, e.g. an extension
// bridge, instead of the configured key material.
func (b *Builder) UseSigner(signer domain.Signer) {
	b.signer = signer
	if sp, ok := signer.(content.SecretProvider); ok {
		b.secret = sp
	} else {
		b.secret = nil
	}
}

// BuildStorage opens the local slot store.
func (b *Builder) BuildStorage() error {
	store, err := storage.Open(b.cfg.Storage)
	if err != nil {
		return err
	}
	b.store = store
	return nil
}

// BuildPool creates the relay pool. A relay list saved locally overrides
// the configured one, so runtime AddRelay/RemoveRelay calls survive
// restarts.
func (b *Builder) BuildPool() error {
	urls := b.cfg.Relays.URLs
	var saved []string
	if found, err := b.store.Get(storage.SlotRelays, &saved); err == nil && found && len(saved) > 0 {
		urls = saved
		b.log.Debug("Using saved relay list", zap.Int("count", len(urls)))
	}
	if len(urls) == 0 {
		return clienterrors.ErrNoRelays
	}
	b.pool = pool.New(b.cfg.Client, urls)
	return nil
}

// BuildState wires the derived-state layer over the pool and store.
func (b *Builder) BuildState() {
	b.factory = events.NewFactory(b.signer)
	b.profiles = state.NewProfileCache(b.pool, b.cfg.Client.ProfileTTL)
	b.follows = state.NewFollows(b.pool)
	b.bookmarks = state.NewBookmarks(b.pool, b.store)
	b.feeds = state.NewFeeds(b.store)
}

// BuildServices wires the operation layer.
func (b *Builder) BuildServices() {
	b.graph = social.NewGraph(b.factory, b.pool, b.follows, b.store)
	b.content = content.NewService(b.factory, b.pool, b.secret, b.bookmarks)
	b.search = search.New(b.pool, b.cfg.Client.SearchWindow)
}

// BuildMetrics starts the Prometheus endpoint when enabled.
func (b *Builder) BuildMetrics() {
	if !b.cfg.Metrics.Enabled {
		return
	}
	metrics.RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	b.metricsSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", b.cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		b.log.Info("Metrics endpoint listening", zap.Int("port", b.cfg.Metrics.Port))
		if err := b.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.log.Warn("Metrics endpoint stopped", zap.Error(err))
		}
	}()
}

// Build finishes assembly and returns the Client.
func (b *Builder) Build() (*Client, error) {
	if b.pool == nil || b.store == nil {
		b.cancel()
		return nil, fmt.Errorf("builder stages incomplete")
	}
	return &Client{
		ctx:        b.ctx,
		cancel:     b.cancel,
		cfg:        b.cfg,
		log:        b.log,
		signer:     b.signer,
		store:      b.store,
		pool:       b.pool,
		factory:    b.factory,
		profiles:   b.profiles,
		follows:    b.follows,
		bookmarks:  b.bookmarks,
		feeds:      b.feeds,
		graph:      b.graph,
		content:    b.content,
		search:     b.search,
		metricsSrv: b.metricsSrv,
	}, nil
}
