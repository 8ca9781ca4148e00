package grading

// Direction is the movement between two grades.
type Direction string

const (
	Improved  Direction = "improved"
	Declined  Direction = "declined"
	Unchanged Direction = "unchanged"
	// NoTrend is used when either side has no grade to compare.
	NoTrend Direction = "none"
)

// Trend compares a previous grade to the current one by rank.
func Trend(s *Scale, previous, current string) (Direction, error) {
	if previous == "" || previous == NoGrade || current == "" || current == NoGrade {
		return NoTrend, nil
	}
	o, err := s.Compare(current, previous)
	if err != nil {
		return NoTrend, err
	}
	switch o {
	case Greater:
		return Improved, nil
	case Less:
		return Declined, nil
	default:
		return Unchanged, nil
	}
}
