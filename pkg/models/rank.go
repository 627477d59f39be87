package models

import "sort"

// RankStartupEntries sorts entries by descending load time (ties by name,
// then ID) and assigns contiguous ranks starting at 1.
func RankStartupEntries(entries []StartupEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.LoadTimeSeconds != b.LoadTimeSeconds {
			return a.LoadTimeSeconds > b.LoadTimeSeconds
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// RankServiceEntries is RankStartupEntries for services, keyed on the label.
func RankServiceEntries(entries []ServiceEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.LoadTimeSeconds != b.LoadTimeSeconds {
			return a.LoadTimeSeconds > b.LoadTimeSeconds
		}
		if a.Label() != b.Label() {
			return a.Label() < b.Label()
		}
		return a.ID < b.ID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
