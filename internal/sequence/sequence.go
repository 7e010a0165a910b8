package sequence

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Sequence is a set of frame files sharing head, tail, and padding.
// Indexes are sorted ascending and unique.
type Sequence struct {
	Head    string `json:"head"`
	Tail    string `json:"tail"`
	Padding int    `json:"padding"`
	Indexes []int  `json:"indexes"`
}

// Result is the outcome of assembling a listing.
type Result struct {
	Sequences []Sequence
	Remainder []string
}

// Pattern renders the printf-style filename pattern, e.g. "shot_%04d.png".
func (s Sequence) Pattern() string {
	return s.Template().String()
}

// Template returns the parsed pattern for the sequence.
func (s Sequence) Template() Template {
	return Template{Head: s.Head, Tail: s.Tail, Padding: s.Padding}
}

// Start returns the lowest frame number.
func (s Sequence) Start() int {
	if len(s.Indexes) == 0 {
		return 0
	}
	return s.Indexes[0]
}

// End returns the highest frame number.
func (s Sequence) End() int {
	if len(s.Indexes) == 0 {
		return 0
	}
	return s.Indexes[len(s.Indexes)-1]
}

// Count returns the number of frames present on disk.
func (s Sequence) Count() int {
	return len(s.Indexes)
}

// RangeString formats the inclusive range as "[start-end]".
func (s Sequence) RangeString() string {
	return fmt.Sprintf("[%d-%d]", s.Start(), s.End())
}

// FrameName returns the file name for frame n.
func (s Sequence) FrameName(n int) string {
	return s.Template().Frame(n)
}

// Holes lists frame numbers inside [Start, End] with no file.
func (s Sequence) Holes() []int {
	if len(s.Indexes) < 2 {
		return nil
	}
	var holes []int
	for i := 1; i < len(s.Indexes); i++ {
		for n := s.Indexes[i-1] + 1; n < s.Indexes[i]; n++ {
			holes = append(holes, n)
		}
	}
	return holes
}

// Contiguous reports whether the sequence has no holes.
func (s Sequence) Contiguous() bool {
	return s.Count() == s.End()-s.Start()+1
}

// Contains reports whether frame n exists in the sequence.
func (s Sequence) Contains(n int) bool {
	i := sort.SearchInts(s.Indexes, n)
	return i < len(s.Indexes) && s.Indexes[i] == n
}

type groupKey struct {
	head    string
	tail    string
	padding int
}

// Assemble groups names into sequences. Names may carry directories; only the
// base name is split. Multiple sequences are returned sorted by head, tail,
// then padding. Remainder holds names without a frame number followed by the
// members of single-file groups.
func Assemble(names []string) Result {
	groups := make(map[groupKey][]int)
	members := make(map[groupKey][]string)
	var order []groupKey
	var remainder []string

	for _, name := range names {
		head, digits, tail, ok := split(filepath.Base(name))
		if !ok {
			remainder = append(remainder, name)
			continue
		}
		index, err := parseIndex(digits)
		if err != nil {
			remainder = append(remainder, name)
			continue
		}
		key := groupKey{head: head, tail: tail, padding: len(digits)}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], index)
		members[key] = append(members[key], name)
	}

	var result Result
	for _, key := range order {
		indexes := uniqueSorted(groups[key])
		if len(indexes) < 2 {
			remainder = append(remainder, members[key]...)
			continue
		}
		result.Sequences = append(result.Sequences, Sequence{
			Head:    key.head,
			Tail:    key.tail,
			Padding: key.padding,
			Indexes: indexes,
		})
	}
	sort.Slice(result.Sequences, func(i, j int) bool {
		a, b := result.Sequences[i], result.Sequences[j]
		if a.Head != b.Head {
			return a.Head < b.Head
		}
		if a.Tail != b.Tail {
			return a.Tail < b.Tail
		}
		return a.Padding < b.Padding
	})
	result.Remainder = remainder
	return result
}

// split finds the last run of digits that ends right before the extension.
func split(base string) (head, digits, tail string, ok bool) {
	stem := base
	ext := ""
	if dot := strings.LastIndexByte(base, '.'); dot > 0 {
		stem, ext = base[:dot], base[dot:]
	}
	end := len(stem)
	start := end
	for start > 0 && isDigit(stem[start-1]) {
		start--
	}
	if start == end {
		return "", "", "", false
	}
	return stem[:start], stem[start:end], ext, true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func parseIndex(digits string) (int, error) {
	if len(digits) > 9 {
		return 0, fmt.Errorf("frame number %q too long", digits)
	}
	n := 0
	for i := 0; i < len(digits); i++ {
		n = n*10 + int(digits[i]-'0')
	}
	return n, nil
}

func uniqueSorted(values []int) []int {
	out := append([]int(nil), values...)
	sort.Ints(out)
	n := 0
	for i, v := range out {
		if i > 0 && v == out[n-1] {
			continue
		}
		out[n] = v
		n++
	}
	return out[:n]
}
