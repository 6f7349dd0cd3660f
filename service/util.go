package service

import "sort"

func sortedNames[T any](m map[string]T) []string {
	acc := make([]string, 0, len(m))
	for k := range m {
		acc = append(acc, k)
	}
	sort.Strings(acc)
	return acc
}
