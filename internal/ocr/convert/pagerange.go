package convert

import (
	"sort"
	"strconv"
	"strings"
)

// ParsePageRange expands a page-range spec like "1-3,5" into a sorted,
// de-duplicated list of valid 1-based page numbers. An empty spec selects all
// pages. Malformed or out-of-bounds tokens are dropped silently; invalid
// input degrades to selecting nothing for that token, never to an error.
func ParsePageRange(spec string, numPages int) []int {
	if numPages <= 0 {
		return []int{}
	}

	if strings.TrimSpace(spec) == "" {
		pages := make([]int, numPages)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages
	}

	selected := make(map[int]bool)
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		if start, end, ok := strings.Cut(token, "-"); ok {
			lo, err1 := strconv.Atoi(strings.TrimSpace(start))
			hi, err2 := strconv.Atoi(strings.TrimSpace(end))
			if err1 != nil || err2 != nil {
				continue
			}
			// Clamp before iterating so an absurd bound like "1-2000000000"
			// costs numPages iterations, not two billion
			if lo < 1 {
				lo = 1
			}
			if hi > numPages {
				hi = numPages
			}
			for p := lo; p <= hi; p++ {
				selected[p] = true
			}
			continue
		}

		p, err := strconv.Atoi(token)
		if err != nil || p < 1 || p > numPages {
			continue
		}
		selected[p] = true
	}

	pages := make([]int, 0, len(selected))
	for p := range selected {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}
