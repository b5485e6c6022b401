package gateway

import (
	"sync"

	"github.com/carelane/carelane/pkg/diary"
)

// cacheEntry pairs the cached diary with the store generation it was last
// persisted at. A nil generation means the diary has never been saved and
// the first save must be unconditional.
type cacheEntry struct {
	d          *diary.PatientDiary
	generation *int64
}

// diaryCache is the per-patient in-memory working set. The cached diary is
// authoritative between saves: pipeline reads and writes go through deep
// copies so no caller can mutate the cached copy in place, and a completed
// background save updates only the generation.
type diaryCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

func newDiaryCache() *diaryCache {
	return &diaryCache{entries: map[string]*cacheEntry{}}
}

// load returns a deep copy of the cached diary and its generation.
func (c *diaryCache) load(patientID string) (*diary.PatientDiary, *int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[patientID]
	if e == nil {
		return nil, nil, false
	}
	return e.d.Clone(), copyGeneration(e.generation), true
}

// put stores a deep copy of the diary together with its generation.
func (c *diaryCache) put(patientID string, d *diary.PatientDiary, generation *int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[patientID] = &cacheEntry{d: d.Clone(), generation: copyGeneration(generation)}
}

// putDiary overwrites the cached diary, keeping whatever generation is
// already recorded. The background save owns generation updates.
func (c *diaryCache) putDiary(patientID string, d *diary.PatientDiary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[patientID]
	if e == nil {
		c.entries[patientID] = &cacheEntry{d: d.Clone()}
		return
	}
	e.d = d.Clone()
}

// setGeneration records the store generation without touching the cached
// diary data.
func (c *diaryCache) setGeneration(patientID string, generation int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[patientID]
	if e == nil {
		return
	}
	e.generation = &generation
}

// generation returns the recorded store generation, nil when the diary has
// never been persisted or the patient is not cached.
func (c *diaryCache) generation(patientID string) *int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[patientID]
	if e == nil {
		return nil
	}
	return copyGeneration(e.generation)
}

// evict drops the cache entry for a patient.
func (c *diaryCache) evict(patientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, patientID)
}

func (c *diaryCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func copyGeneration(g *int64) *int64 {
	if g == nil {
		return nil
	}
	v := *g
	return &v
}
