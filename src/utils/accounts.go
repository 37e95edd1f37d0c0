package utils

import "strings"

// Dedupe returns items without repeats, keeping the first occurrence order.
func Dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		result = append(result, item)
	}
	return result
}

// -----------------------------------------------------------------------------

// AccountKey is the path segment coordinators use to key an account set.
func AccountKey(accountIDs []string) string {
	return strings.Join(Dedupe(accountIDs), ",")
}
