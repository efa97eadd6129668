package gamedata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type traitDocument struct {
	Metadata Metadata `json:"metadata"`
	Traits   []Trait  `json:"traits"`
}

// TraitManager loads the traits document once and resolves trait effects
// by unit count. It mirrors AugmentManager's degrade-to-empty contract.
type TraitManager struct {
	source string
	log    *zap.Logger

	once sync.Once
	err  error

	mu     sync.RWMutex
	loaded bool
	meta   Metadata
	traits map[string]*Trait
}

func NewTraitManager(source string, log *zap.Logger) *TraitManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &TraitManager{source: source, log: log}
}

// Load fetches and indexes the document; repeat calls share the first
// load's outcome.
func (m *TraitManager) Load(ctx context.Context) error {
	m.once.Do(func() {
		m.err = m.load(ctx)
		if m.err != nil {
			m.log.Error("trait data load failed", zap.String("source", m.source), zap.Error(m.err))
		}
	})
	return m.err
}

func (m *TraitManager) load(ctx context.Context) error {
	data, err := fetchDocument(ctx, m.source)
	if err != nil {
		return err
	}
	var doc traitDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse traits: %w", err)
	}
	index := make(map[string]*Trait, len(doc.Traits))
	for i := range doc.Traits {
		tr := &doc.Traits[i]
		if tr.Key == "" {
			return fmt.Errorf("parse traits: record %d has no key", i)
		}
		sort.Slice(tr.Levels, func(a, b int) bool { return tr.Levels[a].Count < tr.Levels[b].Count })
		index[tr.Key] = tr
	}
	m.mu.Lock()
	m.meta = doc.Metadata
	m.traits = index
	m.loaded = true
	m.mu.Unlock()
	m.log.Info("trait data loaded",
		zap.String("set", doc.Metadata.Set),
		zap.String("version", doc.Metadata.Version),
		zap.Int("traits", len(index)))
	return nil
}

func (m *TraitManager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

func (m *TraitManager) Metadata() Metadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta
}

func (m *TraitManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.traits)
}

// Get returns the trait stored under key, or nil before load and for
// unknown keys.
func (m *TraitManager) Get(key string) *Trait {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loaded {
		return nil
	}
	return m.traits[key]
}

// Effect returns the activation level in force at the given unit count:
// the highest level whose count is <= count. It returns nil before load,
// for unknown keys, and when count is below the smallest activation level.
func (m *TraitManager) Effect(key string, count int) *TraitLevel {
	tr := m.Get(key)
	if tr == nil {
		return nil
	}
	var active *TraitLevel
	for i := range tr.Levels {
		if tr.Levels[i].Count <= count {
			active = &tr.Levels[i]
		}
	}
	return active
}
