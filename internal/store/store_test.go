package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laborcal/internal/calendar"
	"laborcal/internal/model"
)

const snapshotYAML = `
schedules:
  - id: h-1
    ownerId: tec-1
    title: Turno mañana
    startDate: 2024-01-01
    dias:
      lunes:
        - horaInicio: "08:00"
          horaFin: "12:00"
      martes:
        - horaInicio: "08:00"
          horaFin: "12:00"
  - id: h-bad
    ownerId: tec-2
    title: Roto
    startDate: 2024-01-01
    dias:
      funday:
        - horaInicio: "08:00"
          horaFin: "12:00"
exceptions:
  - id: n-1
    ownerId: tec-1
    title: Vacaciones
    startDate: 2024-02-05
    endDate: 2024-02-09
    allDay: true
appointments:
  - id: c-1
    technicianId: tec-1
    date: 2024-01-02
    startTime: "09:00"
    endTime: "10:00"
    status: Confirmada
`

func write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	s := New(write(t, "snapshot.yaml", snapshotYAML))
	require.NoError(t, s.Load())

	snap := s.Snapshot()
	require.Len(t, snap.Schedules, 1, "unreadable record is skipped, not fatal")
	assert.Equal(t, "h-1", snap.Schedules[0].ID)
	assert.Len(t, snap.Schedules[0].Pattern.Slots(calendar.Monday), 1)
	require.Len(t, snap.Exceptions, 1)
	assert.Equal(t, "2024-02-09", snap.Exceptions[0].EndDate.String())
	require.Len(t, snap.Appointments, 1)
	assert.Equal(t, calendar.Clock(9, 0), snap.Appointments[0].StartTime)
	assert.Equal(t, model.AppointmentConfirmed, snap.Appointments[0].Status)
	assert.False(t, s.LoadedAt().IsZero())
}

func TestLoadJSON(t *testing.T) {
	s := New(write(t, "snapshot.json", `{
  "schedules": [{"id": "h-1", "ownerId": ["tec-1", "tec-2"], "title": "T", "startDate": "2024-01-01",
    "dias": {"viernes": [{"horaInicio": "14:00", "horaFin": "18:00"}]}}],
  "exceptions": [],
  "appointments": []
}`))
	require.NoError(t, s.Load())

	snap := s.Snapshot()
	require.Len(t, snap.Schedules, 1)
	assert.Equal(t, []string{"tec-1", "tec-2"}, snap.Schedules[0].OwnerIDs)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, s.Load())
	assert.Empty(t, s.Snapshot().Schedules)
}

func TestLoadKeepsPreviousOnDecodeError(t *testing.T) {
	path := write(t, "snapshot.yaml", snapshotYAML)
	s := New(path)
	require.NoError(t, s.Load())

	require.NoError(t, os.WriteFile(path, []byte("schedules: {not: [a list"), 0o600))
	assert.Error(t, s.Load())
	assert.Len(t, s.Snapshot().Schedules, 1)
}

func TestFeedExceptionsSurviveReload(t *testing.T) {
	s := New(write(t, "snapshot.yaml", snapshotYAML))
	require.NoError(t, s.Load())

	s.SetFeedExceptions([]model.Exception{{ID: "feed:fest", Title: "Festivo", StartDate: calendar.MustDate("2024-01-08"), AllDay: true}})
	require.NoError(t, s.Load())

	ex := s.Snapshot().Exceptions
	require.Len(t, ex, 2)
	assert.Equal(t, "n-1", ex[0].ID)
	assert.Equal(t, "feed:fest", ex[1].ID)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New(write(t, "snapshot.yaml", snapshotYAML))
	require.NoError(t, s.Load())

	snap := s.Snapshot()
	snap.Appointments[0].ID = "mutated"
	assert.Equal(t, "c-1", s.Snapshot().Appointments[0].ID)
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.json"} {
		t.Run(name, func(t *testing.T) {
			src := New(write(t, "snapshot.yaml", snapshotYAML))
			require.NoError(t, src.Load())

			dst := New(filepath.Join(t.TempDir(), name))
			dst.Replace(src.Snapshot())
			require.NoError(t, dst.Save())

			again := New(dst.Path())
			require.NoError(t, again.Load())
			assert.Equal(t, src.Snapshot(), again.Snapshot())
		})
	}
}

func TestConcurrentReadersAndReloads(t *testing.T) {
	s := New(write(t, "snapshot.yaml", snapshotYAML))
	require.NoError(t, s.Load())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.Len(t, s.Snapshot().Schedules, 1)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Load())
		}()
	}
	wg.Wait()
}

func TestVersionTracksEveryChange(t *testing.T) {
	s := New(write(t, "snapshot.yaml", snapshotYAML))
	v0 := s.Version()

	require.NoError(t, s.Load())
	v1 := s.Version()
	assert.NotEqual(t, v0, v1)

	s.SetFeedExceptions([]model.Exception{{ID: "feed:vac", StartDate: calendar.MustDate("2024-02-05"), AllDay: true}})
	v2 := s.Version()
	assert.NotEqual(t, v1, v2, "feed exceptions change the visible data")

	assert.Equal(t, v2, s.Version(), "reads do not bump the version")
}
