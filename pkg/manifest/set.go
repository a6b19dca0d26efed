package manifest

import (
	"fmt"
	"sort"
)

// UnknownWorkloadError reports a workload ID absent from every manifest in
// the set. Returned for bad caller input and for dangling extends edges.
type UnknownWorkloadError struct {
	ID WorkloadID
}

// Error implements the error interface.
func (e *UnknownWorkloadError) Error() string {
	return fmt.Sprintf("unknown workload: %s", e.ID)
}

// UnknownPackError reports a pack ID with no PackDef in the set.
type UnknownPackError struct {
	ID PackID
}

// Error implements the error interface.
func (e *UnknownPackError) Error() string {
	return fmt.Sprintf("unknown pack: %s", e.ID)
}

// Set is the resolved view of one generation's manifests: every workload and
// pack declaration across the manifest documents currently installed for the
// generation. Lookups are pure and perform no I/O.
type Set struct {
	generation Generation
	manifests  []*Manifest
	workloads  map[WorkloadID]*WorkloadDef
	packs      map[PackID]*PackDef
}

// NewSet builds the lookup view over the given manifests. It enforces the
// declaration invariant: a workload or pack ID is declared by at most one
// manifest within a generation.
func NewSet(generation Generation, manifests []*Manifest) (*Set, error) {
	s := &Set{
		generation: generation,
		manifests:  manifests,
		workloads:  make(map[WorkloadID]*WorkloadDef),
		packs:      make(map[PackID]*PackDef),
	}

	declaredWorkloads := make(map[WorkloadID]string)
	declaredPacks := make(map[PackID]string)

	for _, m := range manifests {
		for i := range m.Workloads {
			w := &m.Workloads[i]
			if prev, ok := declaredWorkloads[w.ID]; ok {
				return nil, fmt.Errorf("workload %q declared by both manifest %q and %q in generation %s", w.ID, prev, m.ID, generation)
			}
			declaredWorkloads[w.ID] = m.ID
			s.workloads[w.ID] = w
		}
		for i := range m.Packs {
			p := &m.Packs[i]
			if prev, ok := declaredPacks[p.ID]; ok {
				return nil, fmt.Errorf("pack %q declared by both manifest %q and %q in generation %s", p.ID, prev, m.ID, generation)
			}
			declaredPacks[p.ID] = m.ID
			s.packs[p.ID] = p
		}
	}

	return s, nil
}

// Generation returns the generation this set was resolved for.
func (s *Set) Generation() Generation {
	return s.generation
}

// Workload returns the definition for id, or an UnknownWorkloadError.
func (s *Set) Workload(id WorkloadID) (*WorkloadDef, error) {
	w, ok := s.workloads[id]
	if !ok {
		return nil, &UnknownWorkloadError{ID: id}
	}
	return w, nil
}

// Pack returns the definition for id, or an UnknownPackError.
func (s *Set) Pack(id PackID) (*PackDef, error) {
	p, ok := s.packs[id]
	if !ok {
		return nil, &UnknownPackError{ID: id}
	}
	return p, nil
}

// Workloads returns all workload definitions sorted by ID. Intended for
// display; installation paths use Expand.
func (s *Set) Workloads() []WorkloadDef {
	out := make([]WorkloadDef, 0, len(s.workloads))
	for _, w := range s.workloads {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Packs returns all pack definitions sorted by ID.
func (s *Set) Packs() []PackDef {
	out := make([]PackDef, 0, len(s.packs))
	for _, p := range s.packs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Manifests returns the underlying manifest documents.
func (s *Set) Manifests() []*Manifest {
	return s.manifests
}
