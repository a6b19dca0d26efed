package manifest

// Expand computes the deduplicated, flattened set of packs required by the
// requested workloads on the given host platform.
//
// Traversal is breadth-first over extends edges. A workload visited more than
// once, including through an extends cycle, contributes its packs at most
// once; cycles terminate with no error. A workload whose platform filter
// excludes the host contributes no packs of its own but is still traversed
// for its extends edges. The result is a set: traversal order never affects
// it.
//
// Any referenced workload ID absent from the set, whether requested directly
// or reached via extends, yields an UnknownWorkloadError.
func Expand(s *Set, workloadIDs []WorkloadID, platform Platform) (map[PackRef]struct{}, error) {
	visited := make(map[WorkloadID]struct{})
	queue := make([]WorkloadID, 0, len(workloadIDs))
	for _, id := range workloadIDs {
		queue = append(queue, id)
	}

	refs := make(map[PackRef]struct{})

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}

		w, err := s.Workload(id)
		if err != nil {
			return nil, err
		}

		if w.supportsPlatform(platform) {
			for _, packID := range w.Packs {
				p, err := s.Pack(packID)
				if err != nil {
					return nil, err
				}
				refs[p.Ref()] = struct{}{}
			}
		}

		queue = append(queue, w.Extends...)
	}

	return refs, nil
}

// ExpandResolved expands the requested workloads and resolves every resulting
// pack reference to its concrete package for the platform. This is the pack
// set the backend is driven with.
func ExpandResolved(s *Set, workloadIDs []WorkloadID, platform Platform) (map[ConcretePackage]struct{}, error) {
	refs, err := Expand(s, workloadIDs, platform)
	if err != nil {
		return nil, err
	}

	pkgs := make(map[ConcretePackage]struct{}, len(refs))
	for ref := range refs {
		pkg, err := Resolve(s, ref, platform)
		if err != nil {
			return nil, err
		}
		pkgs[pkg] = struct{}{}
	}
	return pkgs, nil
}

// Installable reports whether the workload is directly installable on the
// platform: declared non-abstract and expanding to a non-empty pack set. A
// non-abstract workload that filters to nothing is implicitly abstract for
// the host.
func Installable(s *Set, id WorkloadID, platform Platform) (bool, error) {
	w, err := s.Workload(id)
	if err != nil {
		return false, err
	}
	if w.Abstract {
		return false, nil
	}
	refs, err := Expand(s, []WorkloadID{id}, platform)
	if err != nil {
		return false, err
	}
	return len(refs) > 0, nil
}
