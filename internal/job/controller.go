package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/videogen/internal/cache"
	"github.com/maauso/videogen/internal/history"
	"github.com/maauso/videogen/internal/provider"
)

const (
	// DefaultPollInterval is the delay between two detail requests for a job.
	DefaultPollInterval = 60 * time.Second
	// DefaultRequestTimeout bounds each create and detail request.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultRefreshConcurrency caps parallel detail requests during Refresh.
	DefaultRefreshConcurrency = 4
)

var (
	// ErrPromptRequired is returned when a request has an empty prompt.
	ErrPromptRequired = errors.New("job: prompt is required")
	// ErrNoJobID is recorded on a job whose create response carried no id.
	ErrNoJobID = errors.New("job: provider returned no job id")
)

// Request is one submission.
type Request struct {
	Provider provider.Name
	Item     provider.Item
	Settings provider.Settings
	// Token is the per-provider API token. Empty falls back to the cached one.
	Token string
}

// Observer receives a snapshot of a job every time it changes.
type Observer func(*Job)

// poller is the cancellable polling task of one job.
type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (p *poller) stop() {
	p.once.Do(p.cancel)
}

// Controller submits jobs and polls them until they reach a terminal status.
// At most one poller runs per (provider, id).
type Controller struct {
	registry  *provider.Registry
	transport Transport
	cache     *cache.Cache
	history   *history.Store
	repo      Repository
	logger    *slog.Logger
	observers []Observer

	pollInterval       time.Duration
	requestTimeout     time.Duration
	refreshConcurrency int

	// mu guards pollers and serializes read-modify-write of history and cache.
	mu      sync.Mutex
	pollers map[Key]*poller
	wg      sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithPollInterval sets the interval between detail requests.
func WithPollInterval(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithRequestTimeout bounds every create and detail request.
func WithRequestTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithRefreshConcurrency caps the parallel detail requests of Refresh.
func WithRefreshConcurrency(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.refreshConcurrency = n
		}
	}
}

// WithRepository replaces the default in-memory repository.
func WithRepository(repo Repository) ControllerOption {
	return func(c *Controller) {
		if repo != nil {
			c.repo = repo
		}
	}
}

// WithObserver registers fn to receive job snapshots.
func WithObserver(fn Observer) ControllerOption {
	return func(c *Controller) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController creates a Controller.
func NewController(
	registry *provider.Registry,
	transport Transport,
	videoCache *cache.Cache,
	hist *history.Store,
	opts ...ControllerOption,
) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		registry:           registry,
		transport:          transport,
		cache:              videoCache,
		history:            hist,
		repo:               NewMemoryRepository(),
		logger:             slog.Default(),
		pollInterval:       DefaultPollInterval,
		requestTimeout:     DefaultRequestTimeout,
		refreshConcurrency: DefaultRefreshConcurrency,
		pollers:            make(map[Key]*poller),
		baseCtx:            ctx,
		baseCancel:         cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit sends one request. Validation failures return an error and create
// no job. A failed create call is not an error: the returned job is in
// PhaseError and is neither retried nor polled.
func (c *Controller) Submit(ctx context.Context, req Request) (*Job, error) {
	if strings.TrimSpace(req.Item.Prompt) == "" {
		return nil, ErrPromptRequired
	}
	a, err := c.registry.Get(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("job: %w", err)
	}

	token := c.resolveToken(a, req.Token)
	j := NewDraft(a.Name(), req.Item, req.Settings)
	_ = j.Submitting()
	c.notify(j)

	body := a.BuildCreateRequest(req.Item, req.Settings, token)
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	res, err := c.transport.Create(reqCtx, a, body)
	cancel()

	if err == nil && res.ID == "" {
		err = ErrNoJobID
	}
	if err != nil {
		c.logger.Warn("submission failed",
			slog.String("provider", string(a.Name())),
			slog.String("error", err.Error()),
		)
		_ = j.Fail(err.Error())
		c.notify(j)
		return j.Clone(), nil
	}

	_ = j.Submitted(res.ID)
	c.logger.Info("job submitted",
		slog.String("provider", string(a.Name())),
		slog.String("job_id", res.ID),
	)
	c.record(ctx, a, j)

	if url, ok := c.cache.Get(cache.VideoKey(string(a.Name()), res.ID)); ok {
		c.logger.Info("video already cached",
			slog.String("provider", string(a.Name())),
			slog.String("job_id", res.ID),
		)
		_ = j.CompleteWith(url)
		c.persist(ctx, a, j)
		return j.Clone(), nil
	}

	c.startPolling(a, j, token)
	return j.Clone(), nil
}

// SubmitAll submits reqs one after another. A request is sent only after the
// previous one has been answered. Jobs that fail validation are reported in
// the returned error; the others are returned in order.
func (c *Controller) SubmitAll(ctx context.Context, reqs []Request) ([]*Job, error) {
	jobs := make([]*Job, 0, len(reqs))
	var errs []error
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		j, err := c.Submit(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, errors.Join(errs...)
}

// Cancel stops polling the given job. It reports whether a poller was
// running. Calling it again is a no-op.
func (c *Controller) Cancel(p provider.Name, id string) bool {
	key := Key{Provider: p, ID: id}
	c.mu.Lock()
	pl, ok := c.pollers[key]
	delete(c.pollers, key)
	c.mu.Unlock()
	if ok {
		pl.stop()
	}
	return ok
}

// Active returns the keys of the jobs currently being polled.
func (c *Controller) Active() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]Key, 0, len(c.pollers))
	for k := range c.pollers {
		keys = append(keys, k)
	}
	return keys
}

// Wait blocks until the job's poller exits, then returns its latest snapshot.
func (c *Controller) Wait(ctx context.Context, p provider.Name, id string) (*Job, error) {
	key := Key{Provider: p, ID: id}
	c.mu.Lock()
	pl := c.pollers[key]
	c.mu.Unlock()

	if pl != nil {
		select {
		case <-pl.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.repo.FindByKey(ctx, key)
}

// Get returns the latest snapshot of a job tracked in this session.
func (c *Controller) Get(ctx context.Context, p provider.Name, id string) (*Job, error) {
	return c.repo.FindByKey(ctx, Key{Provider: p, ID: id})
}

// Jobs returns snapshots of every job tracked in this session.
func (c *Controller) Jobs(ctx context.Context) ([]*Job, error) {
	return c.repo.List(ctx)
}

// Close cancels every poller and waits for them to exit.
func (c *Controller) Close() {
	c.baseCancel()
	c.mu.Lock()
	for k, pl := range c.pollers {
		pl.stop()
		delete(c.pollers, k)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Query fetches the current detail of a job once and writes the result into
// the history entry with the same id, if any.
func (c *Controller) Query(ctx context.Context, p provider.Name, id string) (provider.Detail, error) {
	a, err := c.registry.Get(p)
	if err != nil {
		return provider.Detail{}, fmt.Errorf("job: %w", err)
	}
	if strings.TrimSpace(id) == "" {
		return provider.Detail{}, errors.New("job: id is required")
	}
	d, ok, err := c.fetchDetail(ctx, a, id, c.resolveToken(a, ""))
	if err != nil {
		return provider.Detail{}, err
	}
	if !ok {
		return provider.Detail{Status: StatusUnknown}, nil
	}

	c.mu.Lock()
	c.applyToHistoryLocked(a.Name(), map[string]provider.Detail{id: d})
	c.mu.Unlock()
	return d, nil
}

// Refresh re-queries every non-terminal history entry of p once and writes
// the results in place. It returns the updated history.
func (c *Controller) Refresh(ctx context.Context, p provider.Name) ([]history.Entry, error) {
	a, err := c.registry.Get(p)
	if err != nil {
		return nil, fmt.Errorf("job: %w", err)
	}
	token := c.resolveToken(a, "")

	var pending []string
	for _, e := range c.history.Load(p) {
		if e.ID == "" || e.VideoURL != "" || e.Status == StatusCompleted || e.Status == StatusFailed {
			continue
		}
		pending = append(pending, e.ID)
	}

	var resultsMu sync.Mutex
	results := make(map[string]provider.Detail, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.refreshConcurrency)
	for _, id := range pending {
		g.Go(func() error {
			d, ok, err := c.fetchDetail(gctx, a, id, token)
			if err != nil {
				c.logger.Warn("refresh query failed",
					slog.String("provider", string(p)),
					slog.String("job_id", id),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if !ok {
				return nil
			}
			resultsMu.Lock()
			results[id] = d
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.applyToHistoryLocked(p, results)
	c.mu.Unlock()
	return c.history.Load(p), nil
}

// SaveToken caches a provider token. Blank tokens are ignored.
func (c *Controller) SaveToken(p provider.Name, token string) error {
	a, err := c.registry.Get(p)
	if err != nil {
		return fmt.Errorf("job: %w", err)
	}
	if token = strings.TrimSpace(token); token != "" {
		c.cache.Set(a.TokenKey(), token)
	}
	return nil
}

// ClearToken removes a cached provider token.
func (c *Controller) ClearToken(p provider.Name) error {
	a, err := c.registry.Get(p)
	if err != nil {
		return fmt.Errorf("job: %w", err)
	}
	c.cache.Remove(a.TokenKey())
	return nil
}

func (c *Controller) resolveToken(a provider.Adapter, token string) string {
	if token = strings.TrimSpace(token); token != "" {
		return token
	}
	cached, _ := c.cache.Get(a.TokenKey())
	return cached
}

func (c *Controller) startPolling(a provider.Adapter, j *Job, token string) {
	key := j.Key()
	ctx, cancel := context.WithCancel(c.baseCtx)
	pl := &poller{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if old, ok := c.pollers[key]; ok {
		old.stop()
	}
	c.pollers[key] = pl
	c.mu.Unlock()

	_ = j.TransitionTo(PhasePolling)
	c.persist(ctx, a, j)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(pl.done)
		defer c.release(key, pl)
		c.poll(ctx, a, j, token)
	}()
}

// release drops pl from the registry if it is still the registered poller.
func (c *Controller) release(key Key, pl *poller) {
	c.mu.Lock()
	if c.pollers[key] == pl {
		delete(c.pollers, key)
	}
	c.mu.Unlock()
	pl.stop()
}

func (c *Controller) poll(ctx context.Context, a provider.Adapter, j *Job, token string) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if c.pollOnce(ctx, a, j, token) {
			c.logger.Info("job finished",
				slog.String("provider", string(a.Name())),
				slog.String("job_id", j.ID),
				slog.String("status", j.GetStatus()),
			)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce issues one detail request and reports whether polling should stop.
func (c *Controller) pollOnce(ctx context.Context, a provider.Adapter, j *Job, token string) bool {
	if ctx.Err() != nil {
		return true
	}
	d, ok, err := c.fetchDetail(ctx, a, j.ID, token)
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		c.logger.Warn("poll failed",
			slog.String("provider", string(a.Name())),
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !ok {
		return false
	}

	terminal := j.Apply(d)
	c.persist(ctx, a, j)
	return terminal
}

func (c *Controller) fetchDetail(ctx context.Context, a provider.Adapter, id, token string) (provider.Detail, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	raw, err := c.transport.Detail(reqCtx, a, id, token)
	if err != nil {
		return provider.Detail{}, false, err
	}
	d, ok := a.ParseDetail(raw)
	return d, ok, nil
}

// record stores a newly submitted job and prepends its history entry.
func (c *Controller) record(ctx context.Context, a provider.Adapter, j *Job) {
	snap := j.Clone()
	_ = c.repo.Save(ctx, snap)

	c.mu.Lock()
	err := c.history.Prepend(a.Name(), entryOf(snap))
	c.mu.Unlock()
	if err != nil {
		c.logger.Error("failed to record history",
			slog.String("provider", string(a.Name())),
			slog.String("job_id", snap.ID),
			slog.String("error", err.Error()),
		)
	}
	c.notify(snap)
}

// persist writes the job's latest state to the repository, its history
// entry, and the video cache.
func (c *Controller) persist(ctx context.Context, a provider.Adapter, j *Job) {
	snap := j.Clone()
	_ = c.repo.Save(ctx, snap)

	c.mu.Lock()
	c.applyToHistoryLocked(a.Name(), map[string]provider.Detail{
		snap.ID: {Status: snap.Status, VideoURL: snap.VideoURL, Error: snap.Error},
	})
	c.mu.Unlock()
	c.notify(snap)
}

// applyToHistoryLocked merges details into p's history by job id and caches
// new video URLs. Callers must hold c.mu.
func (c *Controller) applyToHistoryLocked(p provider.Name, details map[string]provider.Detail) {
	if len(details) == 0 {
		return
	}
	for id, d := range details {
		if d.VideoURL != "" {
			c.cache.Set(cache.VideoKey(string(p), id), d.VideoURL)
		}
	}

	entries := c.history.Load(p)
	changed := false
	for i := range entries {
		d, ok := details[entries[i].ID]
		if !ok {
			continue
		}
		if d.Status != "" {
			entries[i].Status = d.Status
		}
		if entries[i].VideoURL == "" && d.VideoURL != "" {
			entries[i].VideoURL = d.VideoURL
		}
		if d.Error != "" {
			entries[i].Error = d.Error
		}
		changed = true
	}
	if !changed {
		return
	}
	if err := c.history.Save(p, entries); err != nil {
		c.logger.Error("failed to update history",
			slog.String("provider", string(p)),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Controller) notify(j *Job) {
	if len(c.observers) == 0 {
		return
	}
	snap := j.Clone()
	for _, fn := range c.observers {
		fn(snap)
	}
}

func entryOf(j *Job) history.Entry {
	return history.Entry{
		ID:          j.ID,
		Prompt:      j.Item.Prompt,
		Status:      j.Status,
		VideoURL:    j.VideoURL,
		Error:       j.Error,
		FirstImage:  j.Item.FirstFrameImage,
		AspectRatio: j.Item.AspectRatio,
		Orientation: j.Item.Orientation,
		Settings:    j.Settings,
		CreatedAt:   j.CreatedAt,
	}
}
