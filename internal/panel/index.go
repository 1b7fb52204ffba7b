package panel

import "sort"

// Index groups intervals by entity id, each group ordered by inclusion date.
type Index struct {
	byEntity map[string][]Interval
	total    int
}

// NewIndex builds an Index. Intervals without an entity id are ignored.
func NewIndex(intervals []Interval) *Index {
	idx := &Index{byEntity: make(map[string][]Interval)}
	for _, interval := range intervals {
		if interval.EntityID == "" {
			continue
		}
		idx.byEntity[interval.EntityID] = append(idx.byEntity[interval.EntityID], interval)
		idx.total++
	}
	for _, group := range idx.byEntity {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Inclusion.Before(group[j].Inclusion)
		})
	}
	return idx
}

// Intervals returns the intervals of one entity.
func (idx *Index) Intervals(entityID string) []Interval {
	return idx.byEntity[entityID]
}

// Entities returns the number of distinct entities with at least one interval.
func (idx *Index) Entities() int {
	return len(idx.byEntity)
}

// Len returns the number of indexed intervals.
func (idx *Index) Len() int {
	return idx.total
}
