// Package template loads the disclosure template and holds the records that
// extraction fills in.
package template

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gri-cli/internal/model"
)

// Store maps composite disclosure keys to their records. Iteration order is
// the order in which keys were first seen, so compiling an unmutated store
// always yields the same output.
//
// A Store has a single writer: it is not safe for concurrent use.
type Store struct {
	order      []model.Key
	records    map[model.Key]*model.DisclosureRecord
	byString   map[string]model.Key
	duplicates []model.Key
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		records:  make(map[model.Key]*model.DisclosureRecord),
		byString: make(map[string]model.Key),
	}
}

// Put inserts r under its composite key. A record whose key already exists
// replaces the earlier one in place (last write wins) and is counted as a
// duplicate; replaced reports that case. A distinct key whose string form is
// already taken is rejected with ErrKeyCollision, since the model could not
// tell the two apart.
func (s *Store) Put(r *model.DisclosureRecord) (replaced bool, err error) {
	key := r.Key()
	k := key.String()
	if prev, ok := s.byString[k]; ok && prev != key {
		return false, eris.Wrapf(ErrKeyCollision, "%q: ref %q field %q source %q and ref %q field %q source %q",
			k, prev.RefNo, prev.DataField, prev.DisclosureSource, key.RefNo, key.DataField, key.DisclosureSource)
	}
	if _, ok := s.records[key]; ok {
		s.records[key] = r
		s.duplicates = append(s.duplicates, key)
		zap.L().Warn("template: duplicate disclosure key, keeping last row",
			zap.String("key", k),
		)
		return true, nil
	}
	s.order = append(s.order, key)
	s.records[key] = r
	s.byString[k] = key
	return false, nil
}

// Get returns the record for a key string as presented to the extraction client.
func (s *Store) Get(key string) (*model.DisclosureRecord, bool) {
	k, ok := s.byString[key]
	if !ok {
		return nil, false
	}
	return s.records[k], true
}

// Len returns the number of distinct records.
func (s *Store) Len() int {
	return len(s.order)
}

// Records returns all records in store order.
func (s *Store) Records() []*model.DisclosureRecord {
	out := make([]*model.DisclosureRecord, len(s.order))
	for i, k := range s.order {
		out[i] = s.records[k]
	}
	return out
}

// Eligible returns the narrative records that hold no data yet, in store order.
func (s *Store) Eligible() []*model.DisclosureRecord {
	var out []*model.DisclosureRecord
	for _, k := range s.order {
		if r := s.records[k]; r.Eligible() {
			out = append(out, r)
		}
	}
	return out
}

// Duplicates returns the keys of rows that overwrote an earlier row.
func (s *Store) Duplicates() []model.Key {
	return s.duplicates
}

// Counts tallies records by type and status.
type Counts struct {
	Total     int
	Narrative int
	Metric    int
	Populated int
	Missing   int
}

// Counts returns the current tallies.
func (s *Store) Counts() Counts {
	var c Counts
	for _, r := range s.records {
		c.Total++
		switch r.DataType {
		case model.DataTypeNarrative:
			c.Narrative++
		case model.DataTypeMetric:
			c.Metric++
		}
		if r.Status == model.StatusPopulated {
			c.Populated++
		} else {
			c.Missing++
		}
	}
	return c
}
