package naming

import (
	"sort"
	"strings"
)

// Candidate is a port name reported by one SNMP column.
type Candidate struct {
	Name   string
	Source string
}

const (
	SourceEntPhysicalName  = "entPhysicalName"
	SourceIfName           = "ifName"
	SourceIfDescr          = "ifDescr"
	SourceEntPhysicalDescr = "entPhysicalDescr"
)

type normalizedCandidate struct {
	Source string
	Name   string
	Score  int
}

func NormalizeCandidate(source, rawName string) (name string, score int, ok bool) {
	name = strings.Join(strings.Fields(rawName), " ")
	if name == "" {
		return "", 0, false
	}
	score = scoreCandidate(source, name)
	if score < 0 {
		return name, score, false
	}
	return name, score, true
}

// ChooseBestDisplayName picks the best-scoring usable candidate.
func ChooseBestDisplayName(candidates []Candidate) (string, bool) {
	best := normalizedCandidate{Score: -1}
	for _, c := range candidates {
		name, score, ok := NormalizeCandidate(c.Source, c.Name)
		if !ok {
			continue
		}
		next := normalizedCandidate{Source: c.Source, Name: name, Score: score}
		if betterCandidate(next, best) {
			best = next
		}
	}
	if best.Score < 0 {
		return "", false
	}
	return best.Name, true
}

func SortCandidatesForDisplay(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		ni, si, oki := NormalizeCandidate(out[i].Source, out[i].Name)
		nj, sj, okj := NormalizeCandidate(out[j].Source, out[j].Name)
		if oki != okj {
			return oki
		}
		if si != sj {
			return si > sj
		}
		return Less(ni, nj)
	})
	return out
}

func betterCandidate(a, b normalizedCandidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	// Shorter names tend to be the front-panel label.
	if len(a.Name) != len(b.Name) {
		return len(a.Name) < len(b.Name)
	}
	return Less(a.Name, b.Name)
}

func scoreCandidate(source, name string) int {
	if looksGarbage(strings.ToLower(name)) {
		return -1
	}

	base := 30
	switch source {
	case SourceEntPhysicalName:
		base = 90
	case SourceIfName:
		base = 85
	case SourceIfDescr:
		base = 70
	case SourceEntPhysicalDescr:
		base = 60
	}

	// Long free-text descriptions make poor labels.
	if len(name) > LabelLimit {
		base -= 25
	}
	if strings.Count(name, " ") > 2 {
		base -= 10
	}
	return base
}

func looksGarbage(normalized string) bool {
	switch normalized {
	case "", "port", "unknown", "n/a", "none", "-":
		return true
	}
	return false
}
