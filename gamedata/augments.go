package gamedata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type augmentDocument struct {
	Metadata Metadata  `json:"metadata"`
	Augments []Augment `json:"augments"`
}

// AugmentManager loads the augments document once and answers lookups and
// substring searches over it. Before a successful Load every query returns
// nil or empty; after a failed Load the manager stays not-loaded and keeps
// answering empty rather than erroring per call.
type AugmentManager struct {
	source string
	log    *zap.Logger

	once sync.Once
	err  error

	mu       sync.RWMutex
	loaded   bool
	meta     Metadata
	augments map[string]*Augment
}

func NewAugmentManager(source string, log *zap.Logger) *AugmentManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &AugmentManager{source: source, log: log}
}

// Load fetches and indexes the document. Repeat and concurrent calls share
// the first load; they return its cached outcome without refetching.
func (m *AugmentManager) Load(ctx context.Context) error {
	m.once.Do(func() {
		m.err = m.load(ctx)
		if m.err != nil {
			m.log.Error("augment data load failed", zap.String("source", m.source), zap.Error(m.err))
		}
	})
	return m.err
}

func (m *AugmentManager) load(ctx context.Context) error {
	data, err := fetchDocument(ctx, m.source)
	if err != nil {
		return err
	}
	var doc augmentDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse augments: %w", err)
	}
	index := make(map[string]*Augment, len(doc.Augments))
	for i := range doc.Augments {
		a := &doc.Augments[i]
		if a.Key == "" {
			return fmt.Errorf("parse augments: record %d has no key", i)
		}
		parts := []string{strings.ToLower(a.Title), strings.ToLower(a.Description)}
		for _, tr := range a.Traits {
			parts = append(parts, strings.ToLower(tr))
		}
		a.searchText = strings.Join(parts, " ")
		index[a.Key] = a
	}
	m.mu.Lock()
	m.meta = doc.Metadata
	m.augments = index
	m.loaded = true
	m.mu.Unlock()
	m.log.Info("augment data loaded",
		zap.String("set", doc.Metadata.Set),
		zap.String("version", doc.Metadata.Version),
		zap.Int("augments", len(index)))
	return nil
}

// Loaded reports whether a load has completed successfully.
func (m *AugmentManager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// Metadata returns the document metadata, zero before load.
func (m *AugmentManager) Metadata() Metadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta
}

// Count returns the number of indexed augments.
func (m *AugmentManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.augments)
}

// Get returns the record stored under key, or nil before load and for
// unknown keys.
func (m *AugmentManager) Get(key string) *Augment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loaded {
		return nil
	}
	return m.augments[key]
}

// Search returns the augments whose precomputed search text contains the
// lowercase query, exact title matches first, then by descending tier
// priority. The empty query matches nothing.
func (m *AugmentManager) Search(query string) []*Augment {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loaded {
		return nil
	}
	var hits []*Augment
	for _, a := range m.augments {
		if strings.Contains(a.searchText, q) {
			hits = append(hits, a)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		ei := strings.ToLower(hits[i].Title) == q
		ej := strings.ToLower(hits[j].Title) == q
		if ei != ej {
			return ei
		}
		pi, pj := tierPriority[hits[i].Tier], tierPriority[hits[j].Tier]
		if pi != pj {
			return pi > pj
		}
		return hits[i].Title < hits[j].Title
	})
	return hits
}
