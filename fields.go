package ability

// ============================================================================
// FIELD PERMISSION PROJECTOR
// ============================================================================

// PermittedFields returns the sorted set of field names the user may touch
// for action on subject. A matching rule without a field restriction grants
// the caller-supplied allFields fallback (the core carries no schema of its
// own). Walking happens in declaration order: grants add fields, inverted
// rules remove them, so a later forbid narrows an earlier broad grant.
//
// An empty result means the caller must reject the mutation outright with
// ErrPermissionDenied rather than perform a silent no-op write.
func (a *Ability) PermittedFields(action Action, subject SubjectType, allFields []string) []string {
	set := make(map[string]struct{})
	for _, r := range a.rules {
		if !actionMatches(r.Action, action) || !subjectMatches(r.Subject, subject) {
			continue
		}
		fields := r.Fields
		if len(fields) == 0 {
			fields = allFields
		}
		if r.Inverted {
			for _, f := range fields {
				delete(set, f)
			}
			continue
		}
		for _, f := range fields {
			set[f] = struct{}{}
		}
	}
	return sortedFields(set)
}

// PickFields copies only the permitted keys out of a write payload. Pairs
// with PermittedFields to strip disallowed columns before the persistence
// call.
func PickFields(payload map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := payload[f]; ok {
			out[f] = v
		}
	}
	return out
}
