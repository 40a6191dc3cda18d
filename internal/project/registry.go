package project

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"codescope/internal/config"
	"codescope/internal/errors"
	"codescope/internal/logging"
	"codescope/internal/ops"
	"codescope/internal/paths"
	"codescope/internal/symbols"
	"codescope/internal/watcher"
)

// Registry owns every resident project and the sessions bound to them.
// Insertions and evictions take the registry's exclusive lock; per-project
// state has its own synchronization.
type Registry struct {
	cfg       *config.Config
	logger    *logging.Logger
	extractor *symbols.Extractor

	mu       sync.Mutex
	projects map[string]*Project
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *config.Config, logger *logging.Logger) *Registry {
	return &Registry{
		cfg:       cfg,
		logger:    logger,
		extractor: symbols.NewExtractor(logger, cfg.MaxFileSize, cfg.SignatureBudget),
		projects:  make(map[string]*Project),
		sessions:  make(map[string]*Session),
	}
}

// GetOrCreate canonicalises cwd and returns the resident project for it,
// creating one if needed. Creation runs the initial scan synchronously (the
// project is queryable on return), starts symbol extraction in the
// background, and starts the watcher. If the insertion would exceed
// maxProjects, the LRU victim is evicted first.
func (r *Registry) GetOrCreate(ctx context.Context, cwd string) (*Project, error) {
	canonical, err := paths.Canonicalize(cwd)
	if err != nil {
		return nil, errors.Wrap(errors.BadArgument, err, "path %q not accessible", cwd)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, errors.Wrap(errors.BadArgument, err, "path %q not accessible", canonical)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.BadArgument, "%q is not a directory", canonical)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.projects[canonical]; ok {
		existing.Touch()
		return existing, nil
	}

	if len(r.projects) >= r.cfg.MaxProjects {
		if err := r.evictLRULocked(); err != nil {
			return nil, err
		}
	}

	p := newProject(canonical, r.extractor, r.cfg.MaxFileSize, r.logger)

	r.logger.Info("indexing new project", map[string]interface{}{"root": canonical})
	toExtract, cached := loadIndexCache(canonical, p.Tree, p.Table, p.walker, p.logger)
	if !cached {
		if _, err := p.walker.Scan(p.Tree); err != nil {
			return nil, errors.Wrap(errors.IO, err, "scanning %q", canonical)
		}
	}

	w, err := watcher.Start(canonical, time.Duration(r.cfg.DebounceMs)*time.Millisecond, r.logger, p.HandleEvents)
	if err != nil {
		r.logger.Warn("watcher unavailable, index will not track edits", map[string]interface{}{
			"root": canonical, "error": err.Error(),
		})
	} else {
		p.watch = w
	}

	// Apply the annotation sidecar before the project is returned; the
	// background pass applies it again so symbol definitions land on
	// symbols extracted after this point.
	if err := ops.LoadAnnotations(canonical, p.Tree, p.Table, p.logger); err != nil {
		p.logger.Warn("loading annotations failed", map[string]interface{}{"error": err.Error()})
	}

	r.projects[canonical] = p

	go r.extractInBackground(p, toExtract, cached)

	return p, nil
}

// extractInBackground populates the symbol table and then applies the
// annotation sidecar, so definitions land on extracted symbols.
func (r *Registry) extractInBackground(p *Project, toExtract []string, cached bool) {
	ctx := context.Background()
	start := time.Now()

	var count int
	var err error
	if cached {
		for _, rel := range toExtract {
			p.reindexPath(rel)
		}
		count = p.Table.Len()
	} else {
		count, err = p.extractor.ExtractAll(ctx, p.Root, p.Tree, p.Table)
	}
	if err != nil {
		p.logger.Error("symbol extraction aborted", map[string]interface{}{"error": err.Error()})
		return
	}

	if err := ops.LoadAnnotations(p.Root, p.Tree, p.Table, p.logger); err != nil {
		p.logger.Warn("loading annotations failed", map[string]interface{}{"error": err.Error()})
	}

	p.logger.Info("symbol extraction complete", map[string]interface{}{
		"symbols":  count,
		"duration": time.Since(start).String(),
	})
}

// evictLRULocked removes the project with the lowest lastActive, breaking
// ties by fewest bound sessions. Its sessions go stale and answer
// PROJECT_EVICTED on their next operation.
func (r *Registry) evictLRULocked() error {
	var victim *Project
	victimSessions := 0
	for _, p := range r.projects {
		n := r.sessionCountLocked(p.Root)
		switch {
		case victim == nil:
			victim, victimSessions = p, n
		case p.LastActive().Before(victim.LastActive()):
			victim, victimSessions = p, n
		case p.LastActive().Equal(victim.LastActive()) && n < victimSessions:
			victim, victimSessions = p, n
		}
	}
	if victim == nil {
		return errors.New(errors.Capacity, "no project can be evicted")
	}

	r.logger.Info("evicting project", map[string]interface{}{"root": victim.Root})
	victim.SaveSidecars()
	victim.Close()
	delete(r.projects, victim.Root)

	for _, s := range r.sessions {
		if s.Root == victim.Root {
			s.markStale()
		}
	}
	return nil
}

func (r *Registry) sessionCountLocked(root string) int {
	n := 0
	for _, s := range r.sessions {
		if s.Root == root && !s.Stale() {
			n++
		}
	}
	return n
}

// Evict drops a project by root, if resident.
func (r *Registry) Evict(root string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[root]
	if !ok {
		return false
	}
	p.SaveSidecars()
	p.Close()
	delete(r.projects, root)
	for _, s := range r.sessions {
		if s.Root == root {
			s.markStale()
		}
	}
	return true
}

// CreateSession indexes (or reuses) the project for cwd and binds a new
// session to it.
func (r *Registry) CreateSession(ctx context.Context, cwd string) (*Session, error) {
	p, err := r.GetOrCreate(ctx, cwd)
	if err != nil {
		return nil, err
	}
	s := newSession(p.Root)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s, nil
}

// EndSession destroys a session explicitly.
func (r *Registry) EndSession(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return errors.New(errors.NotFound, "session %q not found", id)
	}
	delete(r.sessions, id)
	return nil
}

// Resolve maps a session ID to its project, touching both. Unknown IDs are
// NOT_FOUND; sessions whose project was evicted answer PROJECT_EVICTED so
// the client can re-create.
func (r *Registry) Resolve(id string) (*Session, *Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, nil, errors.New(errors.NotFound, "session %q not found", id)
	}
	p, ok := r.projects[s.Root]
	if !ok || s.Stale() {
		return nil, nil, errors.New(errors.ProjectEvicted,
			"project at %q was evicted under capacity pressure; create a new session to re-index", s.Root)
	}
	s.touch()
	p.Touch()
	return s, p, nil
}

// Session returns a session by ID without resolving its project.
func (r *Registry) Session(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// ListSessions snapshots every session.
func (r *Registry) ListSessions() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// RootInfo is the listing snapshot of one resident project.
type RootInfo struct {
	Root         string    `json:"root"`
	FileCount    int       `json:"fileCount"`
	SymbolCount  int       `json:"symbolCount"`
	LastActive   time.Time `json:"lastActive"`
	SessionCount int       `json:"sessionCount"`
}

// ListRoots snapshots every resident project.
func (r *Registry) ListRoots() []RootInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RootInfo, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, RootInfo{
			Root:         p.Root,
			FileCount:    p.Tree.Len(),
			SymbolCount:  p.Table.Len(),
			LastActive:   p.LastActive(),
			SessionCount: r.sessionCountLocked(p.Root),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Root < out[j].Root })
	return out
}

// Health is the daemon-level capacity snapshot.
type Health struct {
	Projects    int `json:"projects"`
	Sessions    int `json:"sessions"`
	MaxProjects int `json:"maxProjects"`
}

// Health reports current residency against capacity.
func (r *Registry) Health() Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Health{
		Projects:    len(r.projects),
		Sessions:    len(r.sessions),
		MaxProjects: r.cfg.MaxProjects,
	}
}

// SessionHistory is one session's history block for the all-sessions view.
type SessionHistory struct {
	SessionID string         `json:"sessionId"`
	Root      string         `json:"root"`
	Entries   []HistoryEntry `json:"entries"`
}

// AllHistory returns per-session history blocks, most recently active
// first.
func (r *Registry) AllHistory(limit int) []SessionHistory {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	blocks := make([]SessionHistory, 0, len(sessions))
	for _, s := range sessions {
		blocks = append(blocks, SessionHistory{
			SessionID: s.ID,
			Root:      s.Root,
			Entries:   s.History(limit),
		})
	}
	sort.Slice(blocks, func(i, j int) bool {
		var ti, tj time.Time
		if n := len(blocks[i].Entries); n > 0 {
			ti = blocks[i].Entries[n-1].Timestamp
		}
		if n := len(blocks[j].Entries); n > 0 {
			tj = blocks[j].Entries[n-1].Timestamp
		}
		return tj.Before(ti)
	})
	return blocks
}

// Shutdown saves every project's sidecars and stops the watchers.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.projects {
		p.SaveSidecars()
		p.Close()
	}
	r.logger.Info("registry shut down", map[string]interface{}{
		"projects": len(r.projects),
	})
}
