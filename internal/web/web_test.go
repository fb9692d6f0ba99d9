package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laborcal/internal/agenda"
	"laborcal/internal/calendar"
	"laborcal/internal/config"
	"laborcal/internal/conflict"
	"laborcal/internal/model"
	"laborcal/internal/overlay"
	"laborcal/internal/projector"
	"laborcal/internal/shift"
	"laborcal/internal/store"
)

var loc = time.FixedZone("COT", -5*60*60)

type fakeSource struct {
	snap    model.Snapshot
	version uint64
}

func (f *fakeSource) Snapshot() model.Snapshot { return f.snap.Clone() }
func (f *fakeSource) Version() uint64          { return f.version }

func fixture() model.Snapshot {
	s := model.RecurringSchedule{
		ID:        "h-1",
		OwnerIDs:  []string{"tec-1"},
		Title:     "Turno",
		StartDate: calendar.MustDate("2024-01-01"),
	}
	for _, d := range []calendar.Weekday{calendar.Monday, calendar.Tuesday, calendar.Wednesday, calendar.Thursday, calendar.Friday} {
		s.Pattern.Set(d, []model.Slot{
			{Start: calendar.Clock(8, 0), End: calendar.Clock(12, 0)},
			{Start: calendar.Clock(14, 0), End: calendar.Clock(18, 0)},
		})
	}
	return model.Snapshot{
		Schedules: []model.RecurringSchedule{s},
		Exceptions: []model.Exception{
			{ID: "fest", Title: "Festivo", StartDate: calendar.MustDate("2024-01-08"), AllDay: true},
		},
		Appointments: []model.Appointment{
			{ID: "c-1", TechnicianID: "tec-1", Date: calendar.MustDate("2024-01-02"), StartTime: calendar.Clock(9, 0), EndTime: calendar.Clock(10, 0), Status: model.AppointmentConfirmed},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *fakeSource) {
	t.Helper()
	src := &fakeSource{snap: fixture(), version: 1}
	return newServerWith(t, src), src
}

func newServerWith(t *testing.T, src SnapshotSource) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.HorizonDays = 7
	p := &agenda.Planner{
		Location:      loc,
		Policy:        overlay.PolicyAnnotate,
		MaxWindowDays: 31,
		BufferMinutes: 60,
		LeadTime:      time.Hour,
		Palette:       projector.DefaultPalette(),
		Workers:       1,
	}
	now := time.Date(2023, 12, 31, 12, 0, 0, 0, loc)
	return NewServer(cfg, p, src, WithClock(func() time.Time { return now }))
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestEvents(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/events?from=2024-01-01&to=2024-01-07&owner=tec-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 10, "two slots on five weekdays")
	assert.Equal(t, "2024-01-01", resp.From.String())
	assert.Equal(t, "COT", resp.Timezone)
	assert.Equal(t, "2024-01-01T08:00:00", resp.Events[0].Start)
}

func TestEventsDefaultWindowUsesHorizon(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2023-12-31", resp.From.String())
	assert.Equal(t, "2024-01-06", resp.To.String())
	assert.Len(t, resp.Events, 10)
}

func TestEventsIncludesExceptions(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/events?from=2024-01-08&days=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 3)
	last := resp.Events[2]
	assert.Equal(t, "novedad-fest", last.ID)
	assert.True(t, last.AllDay)
}

func TestEventsBadRequests(t *testing.T) {
	s, _ := newTestServer(t)
	for _, target := range []string{
		"/api/events?from=2024-13-01",
		"/api/events?from=2024-01-01&to=2024-03-01",
		"/api/events?from=2024-01-07&to=2024-01-01",
		"/api/events?days=zero",
	} {
		rec := do(t, s, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, rec.Body.String(), `"error"`, target)
	}
}

func TestEventsCacheInvalidatedOnReload(t *testing.T) {
	s, src := newTestServer(t)
	target := "/api/events?from=2024-01-01&to=2024-01-07"
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, target, "").Code)

	src.snap.Schedules = nil
	var resp eventsResponse
	require.NoError(t, json.Unmarshal(do(t, s, http.MethodGet, target, "").Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 10, "served from cache while data is unchanged")

	src.version++
	require.NoError(t, json.Unmarshal(do(t, s, http.MethodGet, target, "").Body.Bytes(), &resp))
	assert.Empty(t, resp.Events)
}

func TestEventsCacheSeesFeedExceptions(t *testing.T) {
	st := store.New(t.TempDir() + "/snapshot.yaml")
	st.Replace(fixture())
	s := newServerWith(t, st)
	target := "/api/events?from=2024-01-03&days=1"

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(do(t, s, http.MethodGet, target, "").Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)

	st.SetFeedExceptions([]model.Exception{
		{ID: "feed:vac", Title: "Vacaciones", OwnerID: "tec-1", StartDate: calendar.MustDate("2024-01-03"), AllDay: true},
	})
	require.NoError(t, json.Unmarshal(do(t, s, http.MethodGet, target, "").Body.Bytes(), &resp))
	require.Len(t, resp.Events, 3, "feed refresh is visible without waiting for the cache to expire")
	assert.Equal(t, "novedad-feed:vac", resp.Events[2].ID)
}

func TestEventsCacheKeyIgnoresQuerySpelling(t *testing.T) {
	s, _ := newTestServer(t)
	for i := 0; i < 200; i++ {
		target := fmt.Sprintf("/api/events?from=2024-01-01&to=2024-01-07&owner=tec-1&x=%d", i)
		require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, target, "").Code)
	}
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/events?owner=tec-1,tec-1&days=7&from=2024-01-01", "").Code)
	assert.Len(t, s.eventsCache, 1)
}

func TestEventsCacheStaysBounded(t *testing.T) {
	s, _ := newTestServer(t)
	start := calendar.MustDate("2024-01-01")
	for i := 0; i < 3*maxEventsCacheEntries; i++ {
		target := "/api/events?days=1&from=" + start.AddDays(i).String()
		require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, target, "").Code)
		assert.LessOrEqual(t, len(s.eventsCache), maxEventsCacheEntries)
	}
}

func TestEventsCacheDropsStaleEntries(t *testing.T) {
	s, src := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/events?from=2024-01-01&days=1", "").Code)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/events?from=2024-01-02&days=1", "").Code)
	require.Len(t, s.eventsCache, 2)

	src.version++
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/events?from=2024-01-03&days=1", "").Code)
	assert.Len(t, s.eventsCache, 1)
}

func TestEventsICS(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/events.ics?from=2024-01-01&days=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "BEGIN:VEVENT")
	assert.Equal(t, 2, strings.Count(rec.Body.String(), "BEGIN:VEVENT"))
}

func TestShift(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/shifts/tec-1?date=2024-01-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp shiftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, shift.StatusScheduled, resp.Status)
	assert.Equal(t, "h-1", resp.ScheduleID)
	assert.Len(t, resp.Slots, 2)

	rec = do(t, s, http.MethodGet, "/api/shifts/tec-1?date=2023-12-01", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, shift.StatusOutsideRange, resp.Status)
	require.NotNil(t, resp.Bounds)
	assert.Equal(t, "2024-01-01", resp.Bounds.Start.String())

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/shifts/tec-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/shifts/tec-1?date=bad", "").Code)
}

func TestCheck(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		name   string
		body   string
		ok     bool
		reason conflict.Reason
	}{
		{"fits", `{"technicianId":"tec-1","date":"2024-01-02","startTime":"14:00","endTime":"15:00"}`, true, ""},
		{"buffer", `{"technicianId":"tec-1","date":"2024-01-02","startTime":"10:30","endTime":"11:30"}`, false, conflict.ReasonBufferConflict},
		{"excluded", `{"technicianId":"tec-1","date":"2024-01-02","startTime":"10:30","endTime":"11:30","excludeId":"c-1"}`, true, ""},
		{"lunch", `{"technicianId":"tec-1","date":"2024-01-03","startTime":"12:00","endTime":"13:00"}`, false, conflict.ReasonOutsideShift},
		{"weekend", `{"technicianId":"tec-1","date":"2024-01-06","startTime":"09:00","endTime":"10:00"}`, false, conflict.ReasonNotScheduled},
		{"lead", `{"technicianId":"tec-1","date":"2023-12-31","startTime":"12:30","endTime":"13:00"}`, false, conflict.ReasonLeadTime},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/appointments/check", tc.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var res conflict.Result
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tc.ok, res.OK, res.Message)
			assert.Equal(t, tc.reason, res.Reason)
		})
	}
}

func TestCheckBuffersReportConflictingAppointment(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/appointments/check",
		`{"technicianId":"tec-1","date":"2024-01-02","startTime":"10:30","endTime":"11:30"}`)

	var res conflict.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Conflicting)
	assert.Equal(t, "c-1", res.Conflicting.ID)
}

func TestCheckBadBody(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/appointments/check", `{"technicianId":`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/appointments/check", `{"technicianId":"tec-1","date":"2024-01-02","startTime":"25:00","endTime":"26:00"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/appointments/check", `{"date":"2024-01-02","startTime":"09:00","endTime":"10:00"}`).Code)
}
