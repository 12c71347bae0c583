// Package session wires the queue, the transport and the notification
// manager into one host session.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playq/internal/app/filter"
	"github.com/osa030/playq/internal/app/notification"
	"github.com/osa030/playq/internal/app/playback"
	"github.com/osa030/playq/internal/app/queue"
	"github.com/osa030/playq/internal/domain/track"
	"github.com/osa030/playq/internal/infra/config"
)

var (
	ErrSessionNotRunning = errors.New("session is not running")
	ErrAlreadyStarted    = errors.New("session already started")
)

const resolveTimeout = 5 * time.Second

// Catalog resolves track metadata and lists the library.
type Catalog interface {
	Resolve(ctx context.Context, id track.ID) (*track.Track, error)
	IDs(ctx context.Context) ([]track.ID, error)
}

// Manager manages the host session.
type Manager struct {
	mu sync.RWMutex

	id        string
	phase     Phase
	looping   bool
	startedAt time.Time

	// Configuration
	config *config.Config

	// Components
	catalog      Catalog
	queue        *queue.Manager
	playback     *playback.Controller
	filterChain  *filter.Chain
	notification *notification.Manager
	outbox       *notification.Outbox

	// Metadata of the current track, nil when unknown
	current *track.Track

	// Channels
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	loopDone chan struct{}
}

// NewManager creates a new session manager. catalog and snapshots may be nil.
func NewManager(cfg *config.Config, catalog Catalog, snapshots playback.SnapshotStore) (*Manager, error) {
	notif := notification.NewManager()
	outbox := notification.NewOutbox(notif)
	q := queue.NewManager(queue.Config{
		FallbackTitle:    cfg.Queue.FallbackTitle,
		RestartThreshold: cfg.RestartThreshold(),
	}, outbox)

	var resolver filter.Resolver
	if catalog != nil {
		resolver = catalog
	}
	chain, err := filter.Build(filterSpecs(cfg), filter.Deps{Queue: q, Catalog: resolver})
	if err != nil {
		outbox.Close()
		return nil, errors.Wrap(err, "failed to build filter chain")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		id:     uuid.New().String(),
		phase:  PhaseCreated,
		config: cfg,

		catalog: catalog,
		queue:   q,
		playback: playback.NewController(q, snapshots, playback.Config{
			AutoAdvance: cfg.Queue.Advance == config.AdvanceTimer,
			SaveTimeout: cfg.SaveTimeout(),
		}),
		filterChain:  chain,
		notification: notif,
		outbox:       outbox,

		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	for _, f := range chain.Filters() {
		zlog.Info().Msgf("filter enabled: %s (%s)", f.Name(), f.Description())
	}
	return m, nil
}

// filterSpecs returns the enabled filters in a stable order.
func filterSpecs(cfg *config.Config) []filter.Spec {
	names := make([]string, 0, len(cfg.Filters))
	for name := range cfg.Filters {
		if cfg.IsFilterEnabled(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	specs := make([]filter.Spec, len(names))
	for i, name := range names {
		specs[i] = filter.Spec{Name: name, Settings: cfg.Filters[name].Settings}
	}
	return specs
}

// Start restores the last snapshot, or loads the library when there is
// none and the config asks for it, then starts the event loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.phase != PhaseCreated || m.looping {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.looping = true
	m.mu.Unlock()

	go m.playbackLoop()

	restored := m.playback.Restore(ctx)
	if !restored && m.config.Queue.LoadLibrary && m.catalog != nil {
		ids, err := m.catalog.IDs(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to list library")
		}
		if err := m.playback.SetQueue(ids, ""); err != nil {
			return err
		}
		zlog.Info().Msgf("loaded %d library tracks into the queue", len(ids))
	}

	m.mu.Lock()
	m.phase = PhaseRunning
	m.startedAt = time.Now()
	m.mu.Unlock()

	zlog.Info().Msgf("phase changed: phase=%s session_id=%s restored=%t", PhaseRunning, m.id, restored)
	return nil
}

// ID returns the session id.
func (m *Manager) ID() string {
	return m.id
}

// Phase returns the lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Done returns a channel that is closed when the session is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Playback returns the transport controller.
func (m *Manager) Playback() *playback.Controller {
	return m.playback
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// checkRunning returns ErrSessionNotRunning unless Start completed and Close
// has not been called.
func (m *Manager) checkRunning() error {
	if m.Phase() != PhaseRunning {
		return ErrSessionNotRunning
	}
	return nil
}

// Close saves the final snapshot and stops the session.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.phase == PhaseClosed {
		m.mu.Unlock()
		return
	}
	looping := m.looping
	m.phase = PhaseClosed
	m.mu.Unlock()

	m.cancel()
	m.playback.Close()
	if looping {
		<-m.loopDone
	}
	m.outbox.Close()
	close(m.done)
	m.notification.Close()
	zlog.Info().Msgf("phase changed: phase=%s session_id=%s", PhaseClosed, m.id)
}
