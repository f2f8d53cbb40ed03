package naming

import (
	"sort"
	"strings"
	"unicode/utf8"

	"kuwaiba/osp-core/internal/connectivity"
)

// LabelLimit is the longest label rendered without truncation.
const LabelLimit = 30

// Compare orders display names. It is the only ordering used for tree
// children, port rows and container listings. Comparison is case-insensitive
// and digit runs compare numerically, so "Fiber 2" sorts before "Fiber 10".
// Names equal under that rule fall back to a byte comparison.
func Compare(a, b string) int {
	if c := compareNatural(a, b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func Less(a, b string) bool { return Compare(a, b) < 0 }

// CompareRefs orders by display name, then by key.
func CompareRefs(a, b connectivity.Ref) int {
	if c := Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.Key(), b.Key())
}

func SortRefs(refs []connectivity.Ref) {
	sort.SliceStable(refs, func(i, j int) bool {
		return CompareRefs(refs[i], refs[j]) < 0
	})
}

func SortObjects(objs []connectivity.Object) {
	sort.SliceStable(objs, func(i, j int) bool {
		return CompareRefs(objs[i].Ref, objs[j].Ref) < 0
	})
}

// TruncateLabel shortens labels longer than limit, keeping limit+1 runes and
// appending " ...".
func TruncateLabel(label string, limit int) string {
	if limit <= 0 {
		limit = LabelLimit
	}
	if utf8.RuneCountInString(label) <= limit {
		return label
	}
	runes := []rune(label)
	return string(runes[:limit+1]) + " ..."
}

func compareNatural(a, b string) int {
	ar := []rune(strings.ToLower(a))
	br := []rune(strings.ToLower(b))
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		if isDigit(ar[i]) && isDigit(br[j]) {
			si := i
			for i < len(ar) && isDigit(ar[i]) {
				i++
			}
			sj := j
			for j < len(br) && isDigit(br[j]) {
				j++
			}
			if c := compareDigits(string(ar[si:i]), string(br[sj:j])); c != 0 {
				return c
			}
			continue
		}
		if ar[i] != br[j] {
			if ar[i] < br[j] {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case len(ar)-i < len(br)-j:
		return -1
	case len(ar)-i > len(br)-j:
		return 1
	}
	return 0
}

// isDigit accepts ASCII digits only; compareDigits sizes runs by byte length.
func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
