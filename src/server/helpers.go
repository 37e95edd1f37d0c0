package server

import (
	"sort"

	"multisig-observer/src/models"
)

// -----------------------------------------------------------------------------

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// sortedStates copies the states of the named watches, or of all watches
// when names is nil, ordered by watch name.
func sortedStates(states map[string]models.MWatchState, names []string) []models.MWatchState {
	out := make([]models.MWatchState, 0, len(states))
	for name, st := range states {
		if names != nil && !contains(names, name) {
			continue
		}
		if st.Requests == nil {
			st.Requests = []models.MSignatureRequest{}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Watch < out[j].Watch })
	return out
}
