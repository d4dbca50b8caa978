// Package runstore keeps finished detection runs in memory for a limited time
// so the dashboard can fetch them, render annotated images and export CSV.
package runstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/visiondash/internal/aggregator"
	"github.com/tphakala/visiondash/internal/detection"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/imaging"
	"github.com/tphakala/visiondash/internal/observability/metrics"
)

// DefaultTTL is how long runs are kept when no TTL is configured.
const DefaultTTL = 30 * time.Minute

// Run is one aggregated detection run with the uploaded image.
type Run struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"createdAt"`
	Image     imaging.Info       `json:"image"`
	Report    *aggregator.Report `json:"report"`

	image []byte
}

// NewRun creates a run from an aggregator report and the image it was computed on.
// The report ID becomes the run ID and each result records the image size.
func NewRun(report *aggregator.Report, info imaging.Info, image []byte) *Run {
	id := report.ID
	if id == "" {
		id = uuid.NewString()
	}
	for _, res := range report.Results() {
		res.ImageWidth = info.Width
		res.ImageHeight = info.Height
	}
	return &Run{
		ID:        id,
		CreatedAt: report.CreatedAt,
		Image:     info,
		Report:    report,
		image:     image,
	}
}

// ImageBytes returns the original upload.
func (r *Run) ImageBytes() []byte { return r.image }

// Detections returns the run's detections for source. An empty source returns all.
func (r *Run) Detections(source detection.Source) []detection.Detection {
	if source == "" {
		return r.Report.Detections
	}
	return detection.BySource(r.Report.Detections, source)
}

// Results returns the successful per-service results.
func (r *Run) Results() []*detection.Result {
	return r.Report.Results()
}

// Store is a TTL cache of runs. Saved runs are not modified afterwards.
type Store struct {
	cache   *cache.Cache
	metrics *metrics.DetectorMetrics
}

// New creates a store whose runs expire after ttl. m may be nil.
func New(ttl time.Duration, m *metrics.DetectorMetrics) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		cache:   cache.New(ttl, ttl*2),
		metrics: m,
	}
	s.cache.OnEvicted(func(string, any) { s.updateGauge() })
	return s
}

// Save stores run until it expires.
func (s *Store) Save(run *Run) {
	s.cache.Set(run.ID, run, cache.DefaultExpiration)
	s.updateGauge()
}

// Get returns the run with id or a not-found error.
func (s *Store) Get(id string) (*Run, error) {
	if cached, found := s.cache.Get(id); found {
		if run, ok := cached.(*Run); ok {
			return run, nil
		}
	}
	return nil, errors.Newf("run %s not found or expired", id).
		Component("runstore").
		Category(errors.CategoryNotFound).
		Context("run_id", id).
		Build()
}

// Delete removes a run.
func (s *Store) Delete(id string) {
	s.cache.Delete(id)
	s.updateGauge()
}

// Len returns the number of unexpired runs.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

func (s *Store) updateGauge() {
	if s.metrics != nil {
		s.metrics.SetStoredRuns(s.cache.ItemCount())
	}
}
