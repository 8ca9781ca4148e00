package grading

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// FallbackLetter is the grade every non-empty outcome set qualifies for.
const FallbackLetter = "I"

// NoGrade is returned for a course with no gradable outcomes.
const NoGrade = "N/A"

var (
	ErrUnknownGrade = errors.New("unknown grade letter")
	ErrInvalidScale = errors.New("invalid grade scale")
)

// Entry is one letter grade and the thresholds that qualify for it.
type Entry struct {
	Letter           string  `json:"letter" yaml:"letter"`
	Rank             int     `json:"rank" yaml:"rank"`
	CountedThreshold float64 `json:"counted_threshold" yaml:"counted_threshold"`
	AllThreshold     float64 `json:"all_threshold" yaml:"all_threshold"`
}

// Ordering is the result of comparing two grades by rank.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Greater:
		return "greater"
	default:
		return "equal"
	}
}

// Scale is an immutable ranked table of letter grades. The zero value is not
// usable; build one with NewScale or DefaultScale.
type Scale struct {
	entries  []Entry // best first
	byLetter map[string]Entry
}

var defaultEntries = []Entry{
	{Letter: "A", Rank: 6, CountedThreshold: 3.3, AllThreshold: 3.0},
	{Letter: "A-", Rank: 5, CountedThreshold: 3.3, AllThreshold: 2.5},
	{Letter: "B+", Rank: 4, CountedThreshold: 2.6, AllThreshold: 2.5},
	{Letter: "B", Rank: 3, CountedThreshold: 2.6, AllThreshold: 0},
	{Letter: "B-", Rank: 2, CountedThreshold: 2.6, AllThreshold: 0},
	{Letter: "C", Rank: 1, CountedThreshold: 2.2, AllThreshold: 0},
	{Letter: FallbackLetter, Rank: 0, CountedThreshold: 0, AllThreshold: 0},
}

// DefaultScale returns the canonical grade table.
func DefaultScale() *Scale {
	s, err := NewScale(defaultEntries)
	if err != nil {
		panic(err)
	}
	return s
}

// NewScale validates entries and returns a scale ordered best to worst.
// The input slice is copied.
func NewScale(entries []Entry) (*Scale, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrInvalidScale)
	}
	out := make([]Entry, len(entries))
	copy(out, entries)

	byLetter := make(map[string]Entry, len(out))
	ranks := make(map[int]string, len(out))
	for _, e := range out {
		if e.Letter == "" {
			return nil, fmt.Errorf("%w: empty letter", ErrInvalidScale)
		}
		if e.Letter == NoGrade {
			return nil, fmt.Errorf("%w: %q is reserved", ErrInvalidScale, NoGrade)
		}
		if _, dup := byLetter[e.Letter]; dup {
			return nil, fmt.Errorf("%w: duplicate letter %q", ErrInvalidScale, e.Letter)
		}
		if other, dup := ranks[e.Rank]; dup {
			return nil, fmt.Errorf("%w: %q and %q share rank %d", ErrInvalidScale, other, e.Letter, e.Rank)
		}
		if e.Rank < 0 {
			return nil, fmt.Errorf("%w: negative rank for %q", ErrInvalidScale, e.Letter)
		}
		if !finite(e.CountedThreshold) || !finite(e.AllThreshold) {
			return nil, fmt.Errorf("%w: non-finite threshold for %q", ErrInvalidScale, e.Letter)
		}
		if e.CountedThreshold < 0 || e.AllThreshold < 0 {
			return nil, fmt.Errorf("%w: negative threshold for %q", ErrInvalidScale, e.Letter)
		}
		byLetter[e.Letter] = e
		ranks[e.Rank] = e.Letter
	}

	fb, ok := byLetter[FallbackLetter]
	if !ok {
		return nil, fmt.Errorf("%w: missing fallback %q", ErrInvalidScale, FallbackLetter)
	}
	if fb.Rank != 0 || fb.CountedThreshold != 0 || fb.AllThreshold != 0 {
		return nil, fmt.Errorf("%w: fallback %q must have rank 0 and zero thresholds", ErrInvalidScale, FallbackLetter)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Rank > out[j].Rank })
	return &Scale{entries: out, byLetter: byLetter}, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Entries returns a copy of the table, best grade first.
func (s *Scale) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Scale) Fallback() Entry { return s.byLetter[FallbackLetter] }

func (s *Scale) Lookup(letter string) (Entry, error) {
	e, ok := s.byLetter[letter]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownGrade, letter)
	}
	return e, nil
}

func (s *Scale) Rank(letter string) (int, error) {
	e, err := s.Lookup(letter)
	if err != nil {
		return 0, err
	}
	return e.Rank, nil
}

// Compare reports whether a outranks (Greater), equals, or is outranked by b.
func (s *Scale) Compare(a, b string) (Ordering, error) {
	ra, err := s.Rank(a)
	if err != nil {
		return Equal, err
	}
	rb, err := s.Rank(b)
	if err != nil {
		return Equal, err
	}
	switch {
	case ra > rb:
		return Greater, nil
	case ra < rb:
		return Less, nil
	default:
		return Equal, nil
	}
}

// Best returns the highest ranked of the given letters.
func (s *Scale) Best(letters ...string) (string, error) {
	return s.pick(letters, Greater)
}

// Worst returns the lowest ranked of the given letters.
func (s *Scale) Worst(letters ...string) (string, error) {
	return s.pick(letters, Less)
}

func (s *Scale) pick(letters []string, want Ordering) (string, error) {
	if len(letters) == 0 {
		return "", fmt.Errorf("%w: no letters given", ErrUnknownGrade)
	}
	cur := letters[0]
	if _, err := s.Lookup(cur); err != nil {
		return "", err
	}
	for _, l := range letters[1:] {
		o, err := s.Compare(l, cur)
		if err != nil {
			return "", err
		}
		if o == want {
			cur = l
		}
	}
	return cur, nil
}
