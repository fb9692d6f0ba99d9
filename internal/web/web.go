package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"laborcal/internal/agenda"
	"laborcal/internal/calendar"
	"laborcal/internal/config"
	"laborcal/internal/conflict"
	"laborcal/internal/ics"
	appLog "laborcal/internal/log"
	"laborcal/internal/model"
	"laborcal/internal/recurrence"
	"laborcal/internal/shift"
)

// SnapshotSource is what the server reads data from. *store.Store
// satisfies it. Version must change whenever Snapshot would return
// different data.
type SnapshotSource interface {
	Snapshot() model.Snapshot
	Version() uint64
}

// Server exposes the calendar, shift and booking-check API.
type Server struct {
	cfg     *config.Config
	planner *agenda.Planner
	data    SnapshotSource
	now     func() time.Time
	engine  *gin.Engine

	// In-memory cache for /api/events responses so that repeated polling
	// of the same window does not expand again until the data changes.
	eventsMu    sync.RWMutex
	eventsCache map[string]eventsCache
}

// eventsCache holds a cached /api/events response and its provenance.
type eventsCache struct {
	resp      eventsResponse
	version   uint64
	updatedAt time.Time
}

const (
	eventsCacheTTL = 30 * time.Second
	// maxEventsCacheEntries bounds the cache against callers that walk
	// through many distinct windows.
	maxEventsCacheEntries = 64
)

// Option customizes a Server.
type Option func(*Server)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, planner *agenda.Planner, data SnapshotSource, opts ...Option) *Server {
	s := &Server{
		cfg:         cfg,
		planner:     planner,
		data:        data,
		now:         time.Now,
		eventsCache: make(map[string]eventsCache),
	}
	for _, o := range opts {
		o(s)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.engine = gin.New()
	s.engine.Use(requestLogger(), gin.Recovery())
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/events", s.handleEvents)
	api.GET("/events.ics", s.handleEventsICS)
	api.GET("/shifts/:technicianId", s.handleShift)
	api.POST("/appointments/check", s.handleCheck)
}

// requestLogger writes one line per request through the app logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		kv := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			appLog.Error("http request", c.Errors.Last(), kv...)
			return
		}
		appLog.Info("http request", kv...)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events    []eventDTO           `json:"events"`
	Warnings  []recurrence.Warning `json:"warnings,omitempty"`
	Truncated bool                 `json:"truncated,omitempty"`
	From      calendar.Date        `json:"from"`
	To        calendar.Date        `json:"to"`
	Timezone  string               `json:"timezone"`
}

// eventDTO mirrors projector.Event; it is spelled out so the wire shape
// does not change when the projector grows fields.
type eventDTO struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Start           string         `json:"start"`
	End             string         `json:"end"`
	AllDay          bool           `json:"allDay,omitempty"`
	BackgroundColor string         `json:"backgroundColor"`
	BorderColor     string         `json:"borderColor"`
	Meta            map[string]any `json:"meta,omitempty"`
}

// handleEvents returns the projected calendar for a window.
//
// GET /api/events?from=2024-01-01&to=2024-01-31&owner=tec-1
//   - from: first day (default today in the configured zone)
//   - to:   last day, inclusive (default from + horizon_days - 1)
//   - days: alternative to "to"
//   - owner: repeatable, or a comma separated list; empty means everybody
func (s *Server) handleEvents(c *gin.Context) {
	window, owners, err := s.windowQuery(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	key := eventsKey(window, owners)
	// Read the version before the snapshot so a concurrent change can only
	// make the entry look stale, never fresh.
	version := s.data.Version()
	if resp, ok := s.cached(key, version); ok {
		c.JSON(http.StatusOK, resp)
		return
	}

	view, err := s.planner.Calendar(c.Request.Context(), s.data.Snapshot(), window, owners)
	if err != nil {
		writeCalendarError(c, err)
		return
	}

	resp := eventsResponse{
		Events:    make([]eventDTO, 0, len(view.Events)),
		Warnings:  view.Warnings,
		Truncated: view.Truncated,
		From:      window.Start,
		To:        window.End,
		Timezone:  s.planner.Location.String(),
	}
	for _, e := range view.Events {
		resp.Events = append(resp.Events, eventDTO(e))
	}

	s.storeEvents(key, eventsCache{resp: resp, version: version, updatedAt: s.now()})

	c.JSON(http.StatusOK, resp)
}

// eventsKey identifies a request by what it asks for, not by how the query
// string spells it.
func eventsKey(window calendar.Range, owners []string) string {
	ids := slices.Clone(owners)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	return window.String() + "|" + strings.Join(ids, ",")
}

func (s *Server) cached(key string, version uint64) (eventsResponse, bool) {
	s.eventsMu.RLock()
	ec, ok := s.eventsCache[key]
	s.eventsMu.RUnlock()
	if !ok || !s.fresh(ec, version) {
		return eventsResponse{}, false
	}
	return ec.resp, true
}

func (s *Server) fresh(ec eventsCache, version uint64) bool {
	return ec.version == version && s.now().Sub(ec.updatedAt) < eventsCacheTTL
}

// storeEvents inserts an entry, dropping stale ones first. When the cache
// is still full it starts over.
func (s *Server) storeEvents(key string, ec eventsCache) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	for k, old := range s.eventsCache {
		if !s.fresh(old, ec.version) {
			delete(s.eventsCache, k)
		}
	}
	if _, ok := s.eventsCache[key]; !ok && len(s.eventsCache) >= maxEventsCacheEntries {
		clear(s.eventsCache)
	}
	s.eventsCache[key] = ec
}

// handleEventsICS returns the same window as an iCalendar document.
func (s *Server) handleEventsICS(c *gin.Context) {
	window, owners, err := s.windowQuery(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	view, err := s.planner.Calendar(c.Request.Context(), s.data.Snapshot(), window, owners)
	if err != nil {
		writeCalendarError(c, err)
		return
	}

	doc, err := ics.Export("laborcal", view.Events, s.planner.Location, s.now())
	if err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, errors.New("failed to export calendar"))
		return
	}
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(doc))
}

// shiftResponse is the JSON response shape for /api/shifts/:technicianId.
type shiftResponse struct {
	TechnicianID string        `json:"technicianId"`
	Date         calendar.Date `json:"date"`
	Status       shift.Status  `json:"status"`
	ScheduleID   string        `json:"scheduleId,omitempty"`
	Slots        []model.Slot  `json:"slots"`
	Bounds       *shift.Bounds `json:"bounds,omitempty"`
}

func (s *Server) handleShift(c *gin.Context) {
	tech := c.Param("technicianId")
	raw := c.Query("date")
	if raw == "" {
		writeError(c, http.StatusBadRequest, errors.New("date is required"))
		return
	}
	date, err := calendar.ParseDate(raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	l := s.planner.Shift(s.data.Snapshot(), tech, date)
	slots := l.Slots
	if slots == nil {
		slots = []model.Slot{}
	}
	c.JSON(http.StatusOK, shiftResponse{
		TechnicianID: tech,
		Date:         date,
		Status:       l.Status,
		ScheduleID:   l.ScheduleID,
		Slots:        slots,
		Bounds:       l.Bounds,
	})
}

// checkRequest is the body of POST /api/appointments/check.
type checkRequest struct {
	conflict.Candidate
	ExcludeID string `json:"excludeId,omitempty"`
}

func (s *Server) handleCheck(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if req.TechnicianID == "" || req.Date.IsZero() {
		writeError(c, http.StatusBadRequest, errors.New("technicianId and date are required"))
		return
	}

	res := s.planner.Check(s.data.Snapshot(), req.Candidate, s.now(), req.ExcludeID)
	if !res.OK {
		appLog.Debug("appointment rejected",
			"technician_id", req.TechnicianID,
			"date", req.Date.String(),
			"reason", string(res.Reason),
		)
	}
	c.JSON(http.StatusOK, res)
}

// windowQuery reads from/to/days/owner from the query string.
func (s *Server) windowQuery(c *gin.Context) (calendar.Range, []string, error) {
	from := calendar.DateOf(s.now().In(s.planner.Location))
	if raw := c.Query("from"); raw != "" {
		d, err := calendar.ParseDate(raw)
		if err != nil {
			return calendar.Range{}, nil, fmt.Errorf("from: %w", err)
		}
		from = d
	}

	days := s.cfg.HorizonDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return calendar.Range{}, nil, fmt.Errorf("days: must be a positive integer, got %q", raw)
		}
		days = n
	}
	to := from.AddDays(days - 1)
	if raw := c.Query("to"); raw != "" {
		d, err := calendar.ParseDate(raw)
		if err != nil {
			return calendar.Range{}, nil, fmt.Errorf("to: %w", err)
		}
		to = d
	}

	var owners []string
	for _, v := range c.QueryArray("owner") {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				owners = append(owners, id)
			}
		}
	}
	return calendar.Range{Start: from, End: to}, owners, nil
}

func writeCalendarError(c *gin.Context, err error) {
	if errors.Is(err, agenda.ErrWindowTooLarge) || errors.Is(err, recurrence.ErrInvalidWindow) {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	_ = c.Error(err)
	writeError(c, http.StatusInternalServerError, errors.New("failed to build calendar"))
}

func writeError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
