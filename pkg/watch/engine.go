package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/0xmhha/fskit/pkg/journal"
	"github.com/0xmhha/fskit/pkg/logger"
)

type state int

const (
	stateCreated state = iota
	stateRunning
	stateStopped
)

// command is work executed on the intake loop on behalf of a caller.
type command struct {
	run   func() error
	reply chan error
}

// Engine dispatches backend notifications to subscriptions.
//
// All watch bookkeeping is owned by a single intake loop goroutine; Watch
// and Stop are commands the loop acknowledges before they return. The loop
// never waits on a handler.
type Engine struct {
	cfg     Config
	logger  logger.Logger
	metrics *metrics
	backend Backend

	mu        sync.Mutex
	state     state
	closeOnce sync.Once
	closeErr  error

	cmds     chan command
	fired    chan debounceFire
	quit     chan struct{}
	loopDone chan struct{}

	nextID    atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	watches   atomic.Int64
	liveSubs  atomic.Int64

	// Owned by the intake loop.
	subs        map[uint64]*Subscription
	registry    *registry
	dedupe      *dedupe
	pending     map[string]*pendingModify
	debounceGen uint64
	seqs        map[string]uint64
	intakeSeq   uint64
	failures    int
}

// New creates an engine and its backend. No directory is watched until
// the first Watch call.
func New(cfg Config, log logger.Logger) (*Engine, error) {
	cfg = withDefaults(cfg)
	if log == nil {
		log = logger.Noop()
	}
	log = log.Named("watch")

	backend, err := newBackend(cfg, log)
	if err != nil {
		return nil, err
	}

	e, err := newWithBackend(cfg, log, backend)
	if err != nil {
		if closeErr := backend.Close(); closeErr != nil {
			log.Error("failed to close backend after initialization error",
				"error", closeErr)
		}
		return nil, err
	}
	return e, nil
}

func withDefaults(cfg Config) Config {
	if cfg.Backend == "" {
		cfg.Backend = BackendAuto
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.DebounceInterval < 0 {
		cfg.DebounceInterval = 0
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1024
	}
	if cfg.DedupeCacheSize <= 0 {
		cfg.DedupeCacheSize = 4096
	}
	if cfg.BackendBuffer <= 0 {
		cfg.BackendBuffer = 256
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	return cfg
}

func newWithBackend(cfg Config, log logger.Logger, backend Backend) (*Engine, error) {
	dd, err := newDedupe(cfg.DedupeCacheSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		logger:   log,
		metrics:  newMetrics(cfg.Registerer),
		backend:  backend,
		cmds:     make(chan command),
		fired:    make(chan debounceFire),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		subs:     make(map[uint64]*Subscription),
		registry: newRegistry(backend, cfg.MaxWatches),
		dedupe:   dd,
		pending:  make(map[string]*pendingModify),
		seqs:     make(map[string]uint64),
	}

	log.Info("watch engine created",
		"backend", backend.Name(),
		"debounce_interval", cfg.DebounceInterval,
		"queue_depth", cfg.QueueDepth,
		"max_watches", cfg.MaxWatches)

	return e, nil
}

// Start launches the intake loop.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateStopped:
		return ErrEngineClosed
	case stateRunning:
		return ErrAlreadyStarted
	}
	e.startLocked()
	return nil
}

// ensureRunning starts the loop on first use.
func (e *Engine) ensureRunning() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateStopped:
		return ErrEngineClosed
	case stateCreated:
		e.startLocked()
	}
	return nil
}

func (e *Engine) startLocked() {
	e.state = stateRunning
	go e.loop()
	e.logger.Info("watch engine started", "backend", e.backend.Name())
}

// Watch subscribes handler to changes of path.
//
// A directory root covers itself and its direct children; with recursive
// set it covers every descendant not excluded by WithExclude. A file root
// covers only that file. The returned subscription is live when Watch
// returns.
func (e *Engine) Watch(path string, recursive bool, kinds Kind, handler Handler, opts ...WatchOption) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if kinds&AllKinds == 0 {
		return nil, ErrInvalidKinds
	}

	var o watchOptions
	for _, opt := range opts {
		opt(&o)
	}
	for _, pattern := range o.excludes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
		}
	}

	if err := e.ensureRunning(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &PathNotFoundError{Path: root, Err: err}
		}
		return nil, &RegistrationError{Path: root, Err: err}
	}

	sub := &Subscription{
		id:        e.nextID.Add(1),
		root:      root,
		isDir:     info.IsDir(),
		recursive: recursive && info.IsDir(),
		kinds:     kinds & AllKinds,
		excludes:  o.excludes,
		handler:   handler,
		engine:    e,
		queue:     newQueue(root, e.cfg.QueueDepth, kinds.Has(KindOverflow)),
		done:      make(chan struct{}),
		dirs:      make(map[string]struct{}),
	}
	sub.live.Store(true)
	go sub.run()

	if err := e.exec(func() error { return e.register(sub) }); err != nil {
		sub.markStopped()
		sub.join()
		return nil, err
	}

	e.logger.Info("watch added",
		"root", root,
		"recursive", sub.recursive,
		"kinds", sub.kinds.String(),
		"excludes", len(sub.excludes))

	return sub, nil
}

// Stop ends sub. It waits for an in-flight handler call, releases only the
// watches sub referenced and joins its dispatch goroutine. Stopping twice,
// or after Close, is a no-op. Stop must not be called from sub's handler.
func (e *Engine) Stop(sub *Subscription) {
	if sub == nil {
		return
	}

	sub.stopOnce.Do(func() {
		sub.markStopped()
		err := e.exec(func() error {
			e.deregister(sub)
			return nil
		})
		if err != nil && !errors.Is(err, ErrEngineClosed) {
			e.logger.Warn("failed to deregister watch", "root", sub.root, "error", err)
		}
		sub.join()

		e.logger.Info("watch stopped", "root", sub.root)
	})
}

// Close stops every subscription, lets in-flight handler calls finish,
// joins all goroutines and releases the backend. Close is idempotent and
// must not be called from a handler.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		wasRunning := e.state == stateRunning
		e.state = stateStopped
		e.mu.Unlock()

		close(e.quit)
		if wasRunning {
			<-e.loopDone
		}

		// The loop has exited; its state is ours now.
		for id, sub := range e.subs {
			sub.markStopped()
			sub.join()
			delete(e.subs, id)
		}
		e.liveSubs.Store(0)
		e.metrics.subscriptions.Set(0)
		e.stopPending()

		if err := e.backend.Close(); err != nil {
			e.closeErr = err
			e.logger.Error("failed to close watch backend", "error", err)
		}

		e.logger.Info("watch engine closed",
			"delivered", e.delivered.Load(),
			"dropped", e.dropped.Load())
	})
	return e.closeErr
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Backend:       e.backend.Name(),
		Watches:       int(e.watches.Load()),
		Subscriptions: int(e.liveSubs.Load()),
		Delivered:     e.delivered.Load(),
		Dropped:       e.dropped.Load(),
	}
}

// closing reports whether Close has been requested.
func (e *Engine) closing() bool {
	select {
	case <-e.quit:
		return true
	default:
		return false
	}
}

// exec runs fn on the intake loop and waits for its result.
func (e *Engine) exec(fn func() error) error {
	cmd := command{run: fn, reply: make(chan error, 1)}

	select {
	case e.cmds <- cmd:
	case <-e.quit:
		return ErrEngineClosed
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-e.loopDone:
		return ErrEngineClosed
	}
}

// loop is the intake loop. It owns subscriptions, the registry, dedupe
// and debounce state.
func (e *Engine) loop() {
	defer close(e.loopDone)

	events := e.backend.Events()
	errs := e.backend.Errors()

	for {
		// Nothing new is dispatched once Close was requested.
		if e.closing() {
			return
		}

		select {
		case <-e.quit:
			return

		case cmd := <-e.cmds:
			cmd.reply <- cmd.run()

		case raw, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.intake(raw)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			e.handleBackendError(err)

		case fire := <-e.fired:
			e.flushModified(fire)
		}
	}
}

// register installs the watches sub needs and makes it visible to the
// dispatcher. Runs on the intake loop.
func (e *Engine) register(sub *Subscription) error {
	dirs := e.scopeDirs(sub)

	if err := e.registry.acquire(dirs); err != nil {
		e.metrics.registrationErrors.Inc()
		e.logger.Warn("watch registration failed",
			"root", sub.root,
			"error", err)
		return err
	}
	for _, dir := range dirs {
		sub.dirs[dir] = struct{}{}
	}

	e.seedSeq(sub.root)
	e.subs[sub.id] = sub
	e.updateGauges()
	return nil
}

// scopeDirs lists the directories to watch for sub.
func (e *Engine) scopeDirs(sub *Subscription) []string {
	if !sub.isDir {
		return []string{filepath.Dir(sub.root)}
	}
	if !sub.recursive {
		return []string{sub.root}
	}

	dirs := []string{sub.root}
	_ = filepath.WalkDir(sub.root, func(path string, d fs.DirEntry, err error) error { // nolint:errcheck
		if err != nil {
			e.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if path == sub.root || !d.IsDir() {
			return nil
		}
		rel, _ := relative(sub.root, path)
		if sub.excluded(rel) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs
}

// deregister removes sub and releases its watch references. Runs on the
// intake loop.
func (e *Engine) deregister(sub *Subscription) {
	if _, ok := e.subs[sub.id]; !ok {
		return
	}
	delete(e.subs, sub.id)

	for dir := range sub.dirs {
		if err := e.registry.release(dir); err != nil {
			e.logger.Debug("failed to remove watch", "path", dir, "error", err)
		}
	}
	sub.dirs = nil
	e.updateGauges()
}

// seedSeq starts a root's sequence after the last journaled record.
func (e *Engine) seedSeq(root string) {
	if _, ok := e.seqs[root]; ok {
		return
	}

	var last uint64
	if e.cfg.Journal != nil {
		seq, err := e.cfg.Journal.LastSeq(root)
		if err != nil {
			e.logger.Warn("failed to read journal sequence", "root", root, "error", err)
		}
		last = seq
	}
	e.seqs[root] = last
}

func (e *Engine) updateGauges() {
	e.watches.Store(int64(e.registry.len()))
	e.liveSubs.Store(int64(len(e.subs)))
	e.metrics.watches.Set(float64(e.registry.len()))
	e.metrics.subscriptions.Set(float64(len(e.subs)))
}

// intake accepts one backend notification.
func (e *Engine) intake(raw RawEvent) {
	e.intakeSeq++
	raw.Seq = e.intakeSeq
	if raw.Time.IsZero() {
		raw.Time = time.Now()
	}
	e.metrics.rawEvents.WithLabelValues(raw.Kind.String()).Inc()
	e.failures = 0

	if raw.Kind == KindOverflow {
		e.logger.Warn("backend overflow, events may have been lost")
		e.dedupe.purge()
		e.broadcastOverflow()
		return
	}

	raw.Path = filepath.Clean(raw.Path)
	e.process(raw, true)
}

// process runs the dispatch steps for one change. Synthetic events found
// while expanding a new directory are processed with expand unset since
// their subtree has been handled already.
func (e *Engine) process(raw RawEvent, expand bool) {
	if raw.Kind == KindDeleted {
		e.cancelModified(raw.Path)
		e.unwatchTree(raw.Path)
	}

	matched := e.matching(raw.Path)
	if len(matched) == 0 {
		e.metrics.dropped.WithLabelValues(dropUnmatched).Inc()
		return
	}

	if !e.dedupe.fresh(raw) {
		e.metrics.dropped.WithLabelValues(dropDuplicate).Inc()
		return
	}

	var entries []string
	if raw.Kind == KindCreated && expand {
		entries = e.expand(raw.Path, matched)
	}

	if raw.Kind == KindModified && e.cfg.DebounceInterval > 0 {
		e.scheduleModified(raw)
		return
	}

	e.deliver(raw, matched)

	for _, entry := range entries {
		e.process(RawEvent{Path: entry, Kind: KindCreated, Seq: raw.Seq, Time: raw.Time}, false)
	}
}

// matching returns the live subscriptions whose scope contains path.
func (e *Engine) matching(path string) []*Subscription {
	var out []*Subscription
	for _, sub := range e.subs {
		if sub.live.Load() && sub.matches(path) {
			out = append(out, sub)
		}
	}
	// Deterministic delivery order across subscriptions.
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// expand installs watches for a directory created under recursive
// subscriptions, including any subtree it already has, and returns the
// entries found below it. Each directory is watched before it is listed,
// so an entry created in between is either listed or reported by the
// backend.
func (e *Engine) expand(dir string, matched []*Subscription) []string {
	var recursive []*Subscription
	for _, sub := range matched {
		if sub.recursive && sub.root != dir {
			recursive = append(recursive, sub)
		}
	}
	if len(recursive) == 0 {
		return nil
	}

	info, err := os.Lstat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}

	x := &expansion{
		engine:   e,
		dir:      dir,
		subs:     recursive,
		acquired: make(map[*Subscription][]string, len(recursive)),
		failed:   make(map[*Subscription]bool),
	}
	x.walk(dir)

	for _, sub := range recursive {
		if x.failed[sub] {
			continue
		}
		if n := len(x.acquired[sub]); n > 0 {
			e.logger.Debug("watching new directory", "root", sub.root, "path", dir, "dirs", n)
		}
	}
	e.updateGauges()

	return x.entries
}

// expansion tracks one expand call.
type expansion struct {
	engine   *Engine
	dir      string
	subs     []*Subscription
	acquired map[*Subscription][]string
	failed   map[*Subscription]bool
	entries  []string
}

// walk watches d for every subscription that wants it, then lists d and
// descends into subdirectories in lexical order.
func (x *expansion) walk(d string) {
	if !x.watch(d) {
		return
	}

	children, err := os.ReadDir(d)
	if err != nil {
		return
	}
	for _, child := range children {
		path := filepath.Join(d, child.Name())
		x.entries = append(x.entries, path)
		if child.IsDir() {
			x.walk(path)
		}
	}
}

// watch takes a watch reference on d for each subscription covering it and
// reports whether any subscription now watches d. A subscription whose
// registration fails has this expansion's watches rolled back and is sent
// an overflow event.
func (x *expansion) watch(d string) bool {
	covered := false
	for _, sub := range x.subs {
		if x.failed[sub] {
			continue
		}
		if rel, _ := relative(sub.root, d); sub.excluded(rel) {
			continue
		}
		if _, held := sub.dirs[d]; held {
			covered = true
			continue
		}

		if err := x.engine.registry.acquire([]string{d}); err != nil {
			x.fail(sub, err)
			continue
		}
		sub.dirs[d] = struct{}{}
		x.acquired[sub] = append(x.acquired[sub], d)
		covered = true
	}
	return covered
}

func (x *expansion) fail(sub *Subscription, err error) {
	e := x.engine
	x.failed[sub] = true
	e.metrics.registrationErrors.Inc()
	e.logger.Warn("failed to watch new directory",
		"root", sub.root,
		"path", x.dir,
		"error", err)

	dirs := x.acquired[sub]
	for _, d := range dirs {
		delete(sub.dirs, d)
	}
	e.registry.releaseAll(dirs)
	delete(x.acquired, sub)

	e.overflow(sub)
}

// unwatchTree drops every watch reference on dir and below it after the
// directory was deleted.
func (e *Engine) unwatchTree(dir string) {
	if !e.registry.watched(dir) {
		return
	}

	for _, sub := range e.subs {
		for d := range sub.dirs {
			if d != dir && !isWithin(dir, d) {
				continue
			}
			delete(sub.dirs, d)
			if err := e.registry.release(d); err != nil {
				e.logger.Debug("watch already gone", "path", d, "error", err)
			}
		}
	}
	e.updateGauges()
}

// deliver queues raw for every matched subscription interested in its
// kind. Each root gets one sequence number per change.
func (e *Engine) deliver(raw RawEvent, matched []*Subscription) {
	seqs := make(map[string]uint64, 1)

	for _, sub := range matched {
		if !sub.kinds.Has(raw.Kind) {
			continue
		}

		seq, ok := seqs[sub.root]
		if !ok {
			seq = e.nextSeq(sub.root, raw.Kind, raw.Path, raw.Time)
			seqs[sub.root] = seq
		}

		e.enqueue(sub, Event{
			Kind: raw.Kind,
			Path: raw.Path,
			Root: sub.root,
			Seq:  seq,
			Time: raw.Time,
		})
	}
}

// nextSeq advances root's sequence and journals the change.
func (e *Engine) nextSeq(root string, kind Kind, path string, at time.Time) uint64 {
	e.seqs[root]++
	seq := e.seqs[root]

	if e.cfg.Journal != nil {
		err := e.cfg.Journal.Append(journal.Record{
			Root: root,
			Seq:  seq,
			Kind: kind.String(),
			Path: path,
			Time: at,
		})
		if err != nil {
			e.logger.Warn("failed to journal event", "root", root, "seq", seq, "error", err)
		}
	}
	return seq
}

func (e *Engine) enqueue(sub *Subscription, ev Event) {
	if sub.queue.push(ev) {
		e.dropped.Add(1)
		e.metrics.dropped.WithLabelValues(dropQueue).Inc()
		e.logger.Debug("subscription queue full, dropped oldest event", "root", sub.root)
	}
}

// overflow tells sub that changes may have been missed.
func (e *Engine) overflow(sub *Subscription) {
	if !wantsOverflow(sub) {
		return
	}
	now := time.Now()
	e.enqueue(sub, overflowEvent(sub.root, e.nextSeq(sub.root, KindOverflow, sub.root, now), now))
}

// broadcastOverflow sends an overflow event to every live subscription.
// Subscriptions sharing a root share one sequence number.
func (e *Engine) broadcastOverflow() {
	ids := make([]uint64, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	now := time.Now()
	seqs := make(map[string]uint64, 1)
	for _, id := range ids {
		sub := e.subs[id]
		if !wantsOverflow(sub) {
			continue
		}
		seq, ok := seqs[sub.root]
		if !ok {
			seq = e.nextSeq(sub.root, KindOverflow, sub.root, now)
			seqs[sub.root] = seq
		}
		e.enqueue(sub, overflowEvent(sub.root, seq, now))
	}
}

func wantsOverflow(sub *Subscription) bool {
	return sub.live.Load() && sub.kinds.Has(KindOverflow)
}

func overflowEvent(root string, seq uint64, at time.Time) Event {
	return Event{
		Kind: KindOverflow,
		Path: root,
		Root: root,
		Seq:  seq,
		Time: at,
	}
}

// handleBackendError reports a backend failure as overflow and, until the
// circuit breaker opens, re-registers every watched directory that still
// exists.
func (e *Engine) handleBackendError(err error) {
	e.failures++
	e.metrics.backendErrors.Inc()
	e.logger.Error("watch backend error",
		"error", err,
		"failure_count", e.failures)

	e.dedupe.purge()
	e.broadcastOverflow()

	if e.failures > e.cfg.CircuitBreakerThreshold {
		if e.failures == e.cfg.CircuitBreakerThreshold+1 {
			e.logger.Error("circuit breaker opened, not re-registering watches",
				"threshold", e.cfg.CircuitBreakerThreshold,
				"error", ErrCircuitBreakerOpen)
		}
		return
	}

	e.reregister()
}

// reregister re-adds every watched directory. Directories that no longer
// exist are dropped.
func (e *Engine) reregister() {
	dirs := e.registry.dirs()
	sort.Strings(dirs)

	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			e.unwatchTree(dir)
			continue
		}
		if err := e.backend.Add(dir); err != nil {
			e.metrics.registrationErrors.Inc()
			e.logger.Warn("failed to re-register watch", "path", dir, "error", err)
		}
	}
	e.logger.Info("watches re-registered", "count", e.registry.len())
}
