package grading

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrInvalidScore = errors.New("invalid outcome score")

// OutcomeScore is one outcome's rolled-up average for a student in a course.
type OutcomeScore struct {
	OutcomeID             string  `json:"outcome_id"`
	Average               float64 `json:"average"`
	DidDropWorstComponent bool    `json:"did_drop_worst_component"`
}

// LowestOutcome identifies the outcome that produced the lowest score.
type LowestOutcome struct {
	OutcomeID             string  `json:"outcome_id"`
	Score                 float64 `json:"score"`
	DidDropWorstComponent bool    `json:"did_drop_worst_component"`
}

// Result is the grade for one outcome set plus the breakdown behind it.
// Everything but Grade is nil for an empty set; LowestCountedScore is also
// nil when fewer than four outcomes leave nothing in the counted set.
type Result struct {
	Grade              string         `json:"grade"`
	SortedScores       []float64      `json:"sorted_scores,omitempty"`
	CountedScores      []float64      `json:"counted_scores,omitempty"`
	LowestCountedScore *float64       `json:"lowest_counted_score,omitempty"`
	LowestScore        *float64       `json:"lowest_score,omitempty"`
	LowestOutcome      *LowestOutcome `json:"lowest_outcome,omitempty"`
}

// EmptyCountedPolicy decides how an empty counted set is checked against a
// grade's counted threshold.
type EmptyCountedPolicy int

const (
	// PassEmptyCounted treats an empty counted set as meeting every counted
	// threshold.
	PassEmptyCounted EmptyCountedPolicy = iota
	// FailClosedEmptyCounted lets an empty counted set meet only a zero
	// counted threshold.
	FailClosedEmptyCounted
)

// ParseEmptyCountedPolicy accepts "pass" or "fail".
func ParseEmptyCountedPolicy(s string) (EmptyCountedPolicy, error) {
	switch s {
	case "", "pass":
		return PassEmptyCounted, nil
	case "fail", "fail_closed":
		return FailClosedEmptyCounted, nil
	default:
		return PassEmptyCounted, fmt.Errorf("unknown empty counted policy %q", s)
	}
}

type Option func(*config)

type config struct {
	scale        *Scale
	emptyCounted EmptyCountedPolicy
	validate     bool
}

func WithScale(s *Scale) Option { return func(c *config) { c.scale = s } }
func WithEmptyCountedPolicy(p EmptyCountedPolicy) Option {
	return func(c *config) { c.emptyCounted = p }
}

// WithValidation toggles the NaN/Inf/negative check in Compute.
func WithValidation(b bool) Option { return func(c *config) { c.validate = b } }

// Calculator turns outcome scores into a letter grade. It holds no mutable
// state and is safe for concurrent use.
type Calculator struct {
	scale        *Scale
	emptyCounted EmptyCountedPolicy
	validate     bool
}

func NewCalculator(opts ...Option) *Calculator {
	cfg := &config{validate: true}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.scale == nil {
		cfg.scale = DefaultScale()
	}
	return &Calculator{scale: cfg.scale, emptyCounted: cfg.emptyCounted, validate: cfg.validate}
}

func (c *Calculator) Scale() *Scale { return c.scale }

// CountedCount is floor(0.75 * n).
func CountedCount(n int) int {
	if n <= 0 {
		return 0
	}
	return n * 3 / 4
}

// Compute derives the letter grade for one student's outcomes in one course.
func (c *Calculator) Compute(scores []OutcomeScore) (Result, error) {
	if len(scores) == 0 {
		return Result{Grade: NoGrade}, nil
	}
	if c.validate {
		for i, s := range scores {
			if err := checkScore(s.Average); err != nil {
				return Result{}, fmt.Errorf("%w: outcome %q (index %d): %v", ErrInvalidScore, s.OutcomeID, i, err)
			}
		}
	}

	n := len(scores)
	sorted := make([]float64, n)
	for i, s := range scores {
		sorted[i] = s.Average
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	k := CountedCount(n)
	counted := sorted[:k:k]
	lowest := sorted[n-1]

	res := Result{
		SortedScores:  sorted,
		CountedScores: counted,
		LowestScore:   &lowest,
		LowestOutcome: lowestOutcome(scores, lowest),
	}
	if k > 0 {
		lc := counted[k-1]
		res.LowestCountedScore = &lc
	}

	for _, e := range c.scale.entries {
		if c.qualifies(e, lowest, res.LowestCountedScore) {
			res.Grade = e.Letter
			return res, nil
		}
	}
	// unreachable with a validated scale: the fallback has zero thresholds
	res.Grade = c.scale.Fallback().Letter
	return res, nil
}

func (c *Calculator) qualifies(e Entry, lowest float64, lowestCounted *float64) bool {
	if lowest < e.AllThreshold {
		return false
	}
	if lowestCounted == nil {
		return c.emptyCounted == PassEmptyCounted || e.CountedThreshold <= 0
	}
	return *lowestCounted >= e.CountedThreshold
}

// LowestOutcomeFor returns the first outcome, in input order, whose average
// equals lowest. It returns nil when none match.
func LowestOutcomeFor(scores []OutcomeScore, lowest float64) *LowestOutcome {
	return lowestOutcome(scores, lowest)
}

func lowestOutcome(scores []OutcomeScore, lowest float64) *LowestOutcome {
	for _, s := range scores {
		if s.Average == lowest {
			return &LowestOutcome{OutcomeID: s.OutcomeID, Score: s.Average, DidDropWorstComponent: s.DidDropWorstComponent}
		}
	}
	return nil
}

func checkScore(v float64) error {
	switch {
	case math.IsNaN(v):
		return errors.New("average is NaN")
	case math.IsInf(v, 0):
		return errors.New("average is infinite")
	case v < 0:
		return fmt.Errorf("average %v is negative", v)
	}
	return nil
}
