// Package http exposes the JSON API for expenses, categories, financial
// tasks, and dashboard stats.
package http

import (
	"container/list"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fintask/internal/core"
	"fintask/internal/services"
)

// lruCache is a small LRU cache with TTL and size-based eviction.
type lruCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

func newLRUCache[T any](maxSize int, ttl time.Duration) *lruCache[T] {
	return &lruCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

func (c *lruCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}

	item := elem.Value.(*cacheItem[T])
	if time.Now().After(item.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}

	c.lru.MoveToFront(elem)
	return item.data, true
}

func (c *lruCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := &cacheItem[T]{
		key:       key,
		data:      data,
		expiresAt: time.Now().Add(c.ttl),
	}

	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

func (c *lruCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

func (c *lruCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

// CleanExpired removes all expired entries.
func (c *lruCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*cacheItem[T])
		if now.After(item.expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	return len(toRemove)
}

// TaskAPI is the task surface the handlers call.
type TaskAPI interface {
	Get(ctx context.Context, userID string, taskID int64) (*core.FinancialTask, error)
	List(ctx context.Context, userID string, month core.Month) ([]core.FinancialTask, error)
	ListInRange(ctx context.Context, userID string, from, to time.Time) ([]core.FinancialTask, error)
	UpdateStatus(ctx context.Context, userID string, taskID int64, rawStatus string) (*core.FinancialTask, error)
}

// GeneratorAPI triggers task generation for a month.
type GeneratorAPI interface {
	Generate(ctx context.Context, userID string, month core.Month) ([]core.FinancialTask, error)
}

// StatsAPI computes dashboard stats.
type StatsAPI interface {
	ComputeStats(ctx context.Context, userID string, asOf time.Time) (*services.DashboardStats, error)
}

// ExpenseAPI is the expense and category CRUD surface.
type ExpenseAPI interface {
	CreateExpense(ctx context.Context, e core.RecurringExpense) (*core.RecurringExpense, error)
	GetExpense(ctx context.Context, userID string, id int64) (*core.RecurringExpense, error)
	ListExpenses(ctx context.Context, userID string) ([]core.RecurringExpense, error)
	UpdateExpense(ctx context.Context, e core.RecurringExpense) (*core.RecurringExpense, error)
	ArchiveExpense(ctx context.Context, userID string, id int64) error
	DeleteExpense(ctx context.Context, userID string, id int64) error
	CreateCategory(ctx context.Context, c core.Category) (*core.Category, error)
	ListCategories(ctx context.Context, userID string) ([]core.Category, error)
	UpdateCategory(ctx context.Context, userID string, id int64, name, categoryType string) (*core.Category, error)
	DeleteCategory(ctx context.Context, userID string, id int64) error
}

type Server struct {
	http.Server
	tasks     TaskAPI
	generator GeneratorAPI
	stats     StatsAPI
	expenses  ExpenseAPI

	rateLimiter *rateLimiter

	// Stats responses cached per user for a short window
	statsCache *lruCache[*services.DashboardStats]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// rateLimiter is a simple in-memory per-client limiter.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes.
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, tasks TaskAPI, generator GeneratorAPI, stats StatsAPI, expenses ExpenseAPI) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		tasks:            tasks,
		generator:        generator,
		stats:            stats,
		expenses:         expenses,
		rateLimiter:      newRateLimiter(),
		statsCache:       newLRUCache[*services.DashboardStats](500, 30*time.Second),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("GET /api/fin-tasks", s.wrap(s.handleListTasks))
	mux.HandleFunc("GET /api/fin-tasks/{id}", s.wrap(s.handleGetTask))
	mux.HandleFunc("PUT /api/fin-tasks/{id}/status", s.wrap(s.handleUpdateTaskStatus))
	mux.HandleFunc("POST /api/fin-tasks/generate", s.wrap(s.handleGenerateTasks))

	mux.HandleFunc("GET /api/expenses", s.wrap(s.handleListExpenses))
	mux.HandleFunc("POST /api/expenses", s.wrap(s.handleCreateExpense))
	mux.HandleFunc("GET /api/expenses/{id}", s.wrap(s.handleGetExpense))
	mux.HandleFunc("PUT /api/expenses/{id}", s.wrap(s.handleUpdateExpense))
	mux.HandleFunc("POST /api/expenses/{id}/archive", s.wrap(s.handleArchiveExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.wrap(s.handleDeleteExpense))

	mux.HandleFunc("GET /api/categories", s.wrap(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.wrap(s.handleCreateCategory))
	mux.HandleFunc("PUT /api/categories/{id}", s.wrap(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.wrap(s.handleDeleteCategory))

	mux.HandleFunc("GET /api/dashboard/stats", s.wrap(s.handleDashboardStats))

	return s
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.statsCache.CleanExpired(); cleaned > 0 {
				slog.Debug("Cache cleanup completed", "stats_entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// wrap adds security headers, rate limiting, request IDs, and request logging.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		// Rate-limit mutating requests
		if (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodDelete) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) invalidateStats(userID string) {
	s.statsCache.Delete(userID)
}
