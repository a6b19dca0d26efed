package manifest

// Resolve rewrites a pack reference into the concrete package to fetch and
// install on the given platform.
//
// If the PackDef for ref.ID carries an alias for the platform, or a wildcard
// "any" alias, the alias target ID is returned with the PackDef's version.
// Otherwise the reference passes through unchanged. Resolution is single-hop:
// an alias target is never itself re-aliased, which rules out alias chains
// and cycles by construction.
func Resolve(s *Set, ref PackRef, platform Platform) (ConcretePackage, error) {
	p, err := s.Pack(ref.ID)
	if err != nil {
		return ConcretePackage{}, err
	}

	if target, ok := p.AliasTo[platform]; ok {
		return ConcretePackage{ID: target, Version: p.Version}, nil
	}
	if target, ok := p.AliasTo[PlatformAny]; ok {
		return ConcretePackage{ID: target, Version: p.Version}, nil
	}

	return ConcretePackage{ID: string(ref.ID), Version: ref.Version}, nil
}
