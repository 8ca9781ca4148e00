package grading

import (
	"errors"
	"fmt"
)

var ErrNoOutcomes = errors.New("no outcomes to explain")

// Gap describes what separates a computed result from a target grade.
type Gap struct {
	Target           string  `json:"target"`
	Current          string  `json:"current"`
	CountedThreshold float64 `json:"counted_threshold"`
	AllThreshold     float64 `json:"all_threshold"`
	Qualifies        bool    `json:"qualifies"`
	// CountedDeficit is how far the lowest counted score sits below the
	// counted threshold; AllDeficit the same for the lowest score.
	CountedDeficit float64 `json:"counted_deficit"`
	AllDeficit     float64 `json:"all_deficit"`
	// CountedBelow counts counted outcomes under the counted threshold,
	// AllBelow counts every outcome under the floor.
	CountedBelow int `json:"counted_below"`
	AllBelow     int `json:"all_below"`
}

// Explain reports how res compares to the thresholds for target.
func (c *Calculator) Explain(res Result, target string) (Gap, error) {
	e, err := c.scale.Lookup(target)
	if err != nil {
		return Gap{}, err
	}
	if res.Grade == NoGrade || res.LowestScore == nil {
		return Gap{}, fmt.Errorf("%w: grade is %s", ErrNoOutcomes, NoGrade)
	}

	g := Gap{
		Target:           e.Letter,
		Current:          res.Grade,
		CountedThreshold: e.CountedThreshold,
		AllThreshold:     e.AllThreshold,
		Qualifies:        c.qualifies(e, *res.LowestScore, res.LowestCountedScore),
	}
	if d := e.AllThreshold - *res.LowestScore; d > 0 {
		g.AllDeficit = d
	}
	switch {
	case res.LowestCountedScore != nil:
		if d := e.CountedThreshold - *res.LowestCountedScore; d > 0 {
			g.CountedDeficit = d
		}
	case c.emptyCounted == FailClosedEmptyCounted:
		g.CountedDeficit = e.CountedThreshold
	}

	for _, v := range res.CountedScores {
		if v < e.CountedThreshold {
			g.CountedBelow++
		}
	}
	for _, v := range res.SortedScores {
		if v < e.AllThreshold {
			g.AllBelow++
		}
	}
	return g, nil
}
