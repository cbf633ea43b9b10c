package usecases

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/polling"
	"github.com/abelzeko/riverflow/internal/repository"
)

// memStore is an in-memory repository.Store for use case tests.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	rivers   map[int64]entities.River
	markers  map[int64][]entities.MileMarker
	points   map[int64]entities.AccessPoint
	stations map[int64]entities.GaugeStation
	gauges   map[int64]entities.RiverGauge
	readings map[int64]map[int64]entities.GaugeReading

	mileUpdates int
	failSaveFor int64
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		rivers:   make(map[int64]entities.River),
		markers:  make(map[int64][]entities.MileMarker),
		points:   make(map[int64]entities.AccessPoint),
		stations: make(map[int64]entities.GaugeStation),
		gauges:   make(map[int64]entities.RiverGauge),
		readings: make(map[int64]map[int64]entities.GaugeReading),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) Close() error { return nil }

func (m *memStore) SaveRiver(_ context.Context, r *entities.River) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.rivers {
		if existing.Slug == r.Slug {
			r.ID = id
		}
	}
	if r.ID == 0 {
		r.ID = m.id()
	}
	m.rivers[r.ID] = *r
	return nil
}

func (m *memStore) GetRiver(_ context.Context, id int64) (*entities.River, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) GetRiverBySlug(_ context.Context, slug string) (*entities.River, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rivers {
		if r.Slug == slug {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) ListRivers(_ context.Context) ([]entities.River, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.River
	for _, r := range m.rivers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) SaveMileMarker(_ context.Context, mm *entities.MileMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.markers[mm.RiverID]
	for i := range list {
		if list[i].Mile == mm.Mile {
			mm.ID = list[i].ID
			list[i] = *mm
			return nil
		}
	}
	mm.ID = m.id()
	list = append(list, *mm)
	sort.Slice(list, func(i, j int) bool { return list[i].Mile < list[j].Mile })
	m.markers[mm.RiverID] = list
	return nil
}

func (m *memStore) ListMileMarkers(_ context.Context, riverID int64) ([]entities.MileMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.MileMarker(nil), m.markers[riverID]...), nil
}

func (m *memStore) SaveAccessPoint(_ context.Context, ap *entities.AccessPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ap.ID == 0 {
		ap.ID = m.id()
	} else if _, ok := m.points[ap.ID]; !ok {
		return repository.ErrNotFound
	}
	m.points[ap.ID] = *ap
	return nil
}

func (m *memStore) GetAccessPoint(_ context.Context, id int64) (*entities.AccessPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ap, ok := m.points[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ap, nil
}

func (m *memStore) ListAccessPoints(_ context.Context, riverID *int64) ([]entities.AccessPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AccessPoint
	for _, ap := range m.points {
		if riverID == nil || ap.RiverID == *riverID {
			out = append(out, ap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateAccessPointMile(_ context.Context, id int64, mile float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ap, ok := m.points[id]
	if !ok {
		return repository.ErrNotFound
	}
	ap.MileFromHeadwaters = &mile
	m.points[id] = ap
	m.mileUpdates++
	return nil
}

func (m *memStore) ApproveAccessPoint(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ap, ok := m.points[id]
	if !ok {
		return repository.ErrNotFound
	}
	ap.Approved = true
	m.points[id] = ap
	return nil
}

func (m *memStore) SaveGaugeStation(_ context.Context, st *entities.GaugeStation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.stations {
		if existing.Source == st.Source && existing.SiteID == st.SiteID {
			st.ID = id
		}
	}
	if st.ID == 0 {
		st.ID = m.id()
	}
	m.stations[st.ID] = *st
	return nil
}

func (m *memStore) GetGaugeStation(_ context.Context, id int64) (*entities.GaugeStation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &st, nil
}

func (m *memStore) ListGaugeStations(_ context.Context) ([]entities.GaugeStation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.GaugeStation
	for _, st := range m.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) SetHighFrequency(_ context.Context, id int64, high bool, rate *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[id]
	if !ok {
		return repository.ErrNotFound
	}
	st.HighFrequency = high
	st.RateFtPerHour = rate
	m.stations[id] = st
	return nil
}

func (m *memStore) SaveRiverGauge(_ context.Context, g *entities.RiverGauge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.gauges {
		if existing.RiverID == g.RiverID && existing.StationID == g.StationID {
			g.ID = id
		}
		if g.IsPrimary && existing.RiverID == g.RiverID && existing.StationID != g.StationID {
			existing.IsPrimary = false
			m.gauges[id] = existing
		}
	}
	if g.ID == 0 {
		g.ID = m.id()
	}
	m.gauges[g.ID] = *g
	return nil
}

func (m *memStore) ListRiverGauges(_ context.Context, riverID int64) ([]entities.RiverGauge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.RiverGauge
	for _, g := range m.gauges {
		if g.RiverID == riverID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) SaveReadings(_ context.Context, readings []entities.GaugeReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range readings {
		if m.failSaveFor != 0 && r.StationID == m.failSaveFor {
			return context.DeadlineExceeded
		}
		byTS, ok := m.readings[r.StationID]
		if !ok {
			byTS = make(map[int64]entities.GaugeReading)
			m.readings[r.StationID] = byTS
		}
		byTS[r.Timestamp.Unix()] = r
	}
	return nil
}

func (m *memStore) LatestReading(_ context.Context, stationID int64) (*entities.GaugeReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *entities.GaugeReading
	for _, r := range m.readings[stationID] {
		if latest == nil || r.Timestamp.After(latest.Timestamp) {
			r := r
			latest = &r
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (m *memStore) ReadingsSince(_ context.Context, stationID int64, since time.Time) ([]entities.GaugeReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.GaugeReading
	for _, r := range m.readings[stationID] {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// staticFetcher returns canned readings per station.
type staticFetcher struct {
	readings []entities.GaugeReading
	err      error
	asked    []int64
}

func (f *staticFetcher) FetchStations(_ context.Context, stations []entities.GaugeStation) ([]entities.GaugeReading, error) {
	for _, st := range stations {
		f.asked = append(f.asked, st.ID)
	}
	return f.readings, f.err
}

// recordingNotifier captures frequency notifications.
type recordingNotifier struct {
	mu      sync.Mutex
	changes map[int64]bool
}

func (n *recordingNotifier) FrequencyChanged(_ context.Context, st entities.GaugeStation, d polling.Decision) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.changes == nil {
		n.changes = make(map[int64]bool)
	}
	n.changes[st.ID] = d.HighFrequency
	return nil
}

func fptr(v float64) *float64 { return &v }
