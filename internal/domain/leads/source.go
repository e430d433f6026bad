package leads

import (
	"context"
	"sync"

	"github.com/okian/pinnacle/internal/domain/model"
)

// Source is the upstream lead directory read on a list cache miss.
type Source interface {
	Leads(ctx context.Context) ([]model.LeadRecord, error)
}

// StaticSource serves a fixed directory. It stands in for the CRM search
// API when none is configured.
type StaticSource struct {
	mu      sync.RWMutex
	records []model.LeadRecord
}

// NewStaticSource returns a source holding records.
func NewStaticSource(records ...model.LeadRecord) *StaticSource {
	return &StaticSource{records: cloneRecords(records)}
}

func (s *StaticSource) Leads(context.Context) ([]model.LeadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecords(s.records), nil
}

// Add appends a record.
func (s *StaticSource) Add(rec model.LeadRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, cloneRecords([]model.LeadRecord{rec})...)
}

// SampleLead is the directory entry served when nothing else is configured.
func SampleLead() model.LeadRecord {
	return model.LeadRecord{
		ID: "1",
		Properties: map[string]any{
			"firstname": "Arnold",
			"lastname":  "Masutha",
			"email":     "arnold@example.com",
		},
	}
}
