package engine

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ItsWendell/palot/internal/client"
	"github.com/ItsWendell/palot/internal/config"
	"github.com/ItsWendell/palot/internal/logging"
	"github.com/ItsWendell/palot/internal/store"
	"github.com/ItsWendell/palot/internal/types"
	"github.com/ItsWendell/palot/internal/views"
)

var ErrAlreadyConnected = errors.New("engine already connected")

// Engine is the only API surface external callers use: it owns the store,
// the stream consumer, the batcher and the view graph, and wires them
// together.
type Engine struct {
	cfg    config.Settings
	log    logging.Logger
	client *client.Client
	store  *store.EntityStore
	buffer *store.StreamBuffer
	batch  *Batcher
	graph  *views.Graph

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	hydrate    singleflight.Group
	hydratedMu sync.Mutex
	hydrated   map[string]bool
}

func New(cfg config.Settings, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	st := store.NewEntityStore()
	buf := store.NewStreamBuffer(cfg.NotifyInterval())
	cl := client.New(cfg.Server.URL, log.With(logging.F("component", "client")))
	batch := NewBatcher(st, buf, cfg.FlushInterval(), cfg.QueueBound(), log.With(logging.F("component", "batcher")))
	graph := views.NewGraph(st, buf)
	batch.OnFlush(graph.Broadcast)
	batch.OnLive(graph.Broadcast)
	buf.OnNotify(graph.Broadcast)
	return &Engine{
		cfg:      cfg,
		log:      log,
		client:   cl,
		store:    st,
		buffer:   buf,
		batch:    batch,
		graph:    graph,
		hydrated: map[string]bool{},
	}
}

// Connect starts the single stream consumer for this process. Teardown is
// all-or-nothing: cancelling ctx (or Close) unwinds the stream read and
// disposes the batcher with a final forced flush.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyConnected
	}
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer e.batch.Dispose()
		return e.client.Stream(ctx, e.batch.Enqueue)
	})
	e.started = true
	e.cancel = cancel
	e.group = group
	return nil
}

// Wait blocks until the consumer stops (cancellation is the only way it
// does).
func (e *Engine) Wait() error {
	e.mu.Lock()
	group := e.group
	e.mu.Unlock()
	if group == nil {
		return nil
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) Close() error {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return e.Wait()
}

// Scoped returns a request handle tagged with a project directory.
func (e *Engine) Scoped(directory string) *client.ScopedClient {
	return e.client.Scoped(directory)
}

// LoadInitialSnapshot hydrates the store for a session the stream has not
// touched yet. Idempotent per session: concurrent callers share one fetch
// and later calls are no-ops. Failures surface to the caller once and are
// never retried automatically.
func (e *Engine) LoadInitialSnapshot(ctx context.Context, sessionID string, limit int) error {
	if e.isHydrated(sessionID) {
		return nil
	}
	_, err, _ := e.hydrate.Do(sessionID, func() (any, error) {
		if e.isHydrated(sessionID) {
			return nil, nil
		}
		messages, err := e.client.SessionMessages(ctx, sessionID, limit)
		if err != nil {
			return nil, err
		}
		e.store.Update(func(tx *store.Tx) {
			for i := range messages {
				tx.UpsertMessage(messages[i].Info)
				tx.BatchUpsertParts(messages[i].Parts)
			}
		})
		e.markHydrated(sessionID)
		e.graph.Broadcast()
		return nil, nil
	})
	return err
}

func (e *Engine) isHydrated(sessionID string) bool {
	e.hydratedMu.Lock()
	defer e.hydratedMu.Unlock()
	return e.hydrated[sessionID]
}

func (e *Engine) markHydrated(sessionID string) {
	e.hydratedMu.Lock()
	defer e.hydratedMu.Unlock()
	e.hydrated[sessionID] = true
}

func (e *Engine) Views() *views.Graph {
	return e.graph
}

func (e *Engine) Store() *store.EntityStore {
	return e.store
}

func (e *Engine) Client() *client.Client {
	return e.client
}

// Enqueue feeds one event through the batcher, bypassing the network. Used
// by tests and by local echo paths.
func (e *Engine) Enqueue(event types.Event) {
	e.batch.Enqueue(event)
}

// FlushNow forces a batch flush, used at reconnect boundaries and in tests.
func (e *Engine) FlushNow() {
	e.batch.FlushNow()
}
