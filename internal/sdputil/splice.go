package sdputil

import (
	"sort"
	"strconv"
	"strings"
)

const (
	priorityKeyStart = 10
	priorityKeyEnd   = 12
)

// SpliceICECandidates inserts the buffered candidates of each media line
// index in front of the first "a=mid:<index>" line of answer. Indices
// with no candidates, or whose anchor is missing, leave answer untouched.
func SpliceICECandidates(answer string, candidates map[int][]string) string {
	indices := make([]int, 0, len(candidates))
	for idx, list := range candidates {
		if len(list) > 0 {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)

	for _, idx := range indices {
		pos := findMidAnchor(answer, idx)
		if pos < 0 {
			logger.WithField("mline", idx).Debug("no mid anchor for candidates")
			continue
		}
		var b strings.Builder
		for _, c := range orderCandidates(candidates[idx]) {
			b.WriteString("a=")
			b.WriteString(c)
			b.WriteString("\r\n")
		}
		answer = answer[:pos] + b.String() + answer[pos:]
	}
	return answer
}

// findMidAnchor returns the offset of the first "a=mid:<idx>" line.
func findMidAnchor(answer string, idx int) int {
	anchor := "a=mid:" + strconv.Itoa(idx)
	offset := 0
	for {
		i := strings.Index(answer[offset:], anchor)
		if i < 0 {
			return -1
		}
		start := offset + i
		end := start + len(anchor)
		atLineStart := start == 0 || answer[start-1] == '\n'
		atLineEnd := end == len(answer) || answer[end] == '\r' || answer[end] == '\n'
		if atLineStart && atLineEnd {
			return start
		}
		offset = end
	}
}

// orderCandidates drops duplicates and sorts by the numeric key embedded
// at a fixed offset of each candidate. Candidates without a numeric key
// keep their arrival order after the keyed ones.
func orderCandidates(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, c := range list {
		c = strings.TrimPrefix(trimEOL(c), "a=")
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, oki := priorityKey(out[i])
		kj, okj := priorityKey(out[j])
		switch {
		case oki && okj:
			return ki < kj
		case oki:
			return true
		default:
			return false
		}
	})
	return out
}

func priorityKey(candidate string) (int, bool) {
	if len(candidate) < priorityKeyEnd {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(candidate[priorityKeyStart:priorityKeyEnd]))
	if err != nil {
		return 0, false
	}
	return n, true
}
