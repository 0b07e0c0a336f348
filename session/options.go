package session

// WithDryRun returns FlushOptions configured to run every flush pass
// without executing the resulting batch or mutating any ObjectLink; see
// FlushOptions.DryRun.
func WithDryRun() FlushOptions { return FlushOptions{DryRun: true} }

// GetReference returns a Reference to the entity of the type produced by
// ctor with the given id, without touching the datastore. If an ObjectLink
// already tracks that identity in this session, the returned Reference is
// pre-resolved to the live managed object (IsResolved() is already true);
// otherwise it is left unresolved for Fetch to load later.
func (s *Session) GetReference(ctor any, id any) (*Reference, error) {
	m, ok := s.registry.GetMappingForConstructor(ctor)
	if !ok {
		return nil, newErr(KindUnmapped, nil, errUnmappedWalk(ctor))
	}
	ref := NewReference(m, id)
	if link, ok := s.table.byIdentity(stringifyIdentity(id)); ok {
		ref.resolved = link.Object()
		ref.hasResolved = true
	}
	return ref, nil
}
