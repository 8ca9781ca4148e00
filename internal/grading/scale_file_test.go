package grading

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passFailYAML = `
grades:
  - letter: P
    rank: 1
    counted_threshold: 2.5
    all_threshold: 1.5
  - letter: I
    rank: 0
    counted_threshold: 0
    all_threshold: 0
`

func TestParseScale(t *testing.T) {
	s, err := ParseScale(strings.NewReader(passFailYAML))
	require.NoError(t, err)
	p, err := s.Lookup("P")
	require.NoError(t, err)
	assert.Equal(t, 2.5, p.CountedThreshold)
	assert.Equal(t, 1.5, p.AllThreshold)
}

func TestParseScale_Rejects(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":         "",
		"unknown field": "grades:\n  - {letter: I, rank: 0, bonus: 1}\n",
		"no fallback":   "grades:\n  - {letter: A, rank: 1}\n",
		"not yaml":      "grades: [",
	} {
		_, err := ParseScale(strings.NewReader(doc))
		assert.ErrorIs(t, err, ErrInvalidScale, name)
	}
}

func TestMarshalScale_RoundTripsDefault(t *testing.T) {
	b, err := MarshalScale(DefaultScale())
	require.NoError(t, err)
	s, err := ParseScale(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, DefaultScale().Entries(), s.Entries())
}

func TestLoadScaleFile(t *testing.T) {
	s, err := LoadScaleFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultScale().Entries(), s.Entries())

	path := filepath.Join(t.TempDir(), "scale.yaml")
	require.NoError(t, os.WriteFile(path, []byte(passFailYAML), 0o600))
	s, err = LoadScaleFile(path)
	require.NoError(t, err)
	assert.Len(t, s.Entries(), 2)

	_, err = LoadScaleFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseScale_RejectsNonFiniteThresholds(t *testing.T) {
	for name, entry := range map[string]string{
		"nan counted": "{letter: A+, rank: 7, counted_threshold: .nan, all_threshold: 1}",
		"nan all":     "{letter: A+, rank: 7, counted_threshold: 1, all_threshold: .nan}",
		"inf all":     "{letter: A+, rank: 7, counted_threshold: 1, all_threshold: .inf}",
		"inf counted": "{letter: A+, rank: 7, counted_threshold: .inf, all_threshold: 1}",
	} {
		doc := "grades:\n  - " + entry + "\n  - {letter: I, rank: 0, counted_threshold: 0, all_threshold: 0}\n"
		_, err := ParseScale(strings.NewReader(doc))
		assert.ErrorIs(t, err, ErrInvalidScale, name)
	}

	_, err := NewScale([]Entry{
		{Letter: "A+", Rank: 7, CountedThreshold: math.NaN(), AllThreshold: math.NaN()},
		{Letter: FallbackLetter},
	})
	assert.ErrorIs(t, err, ErrInvalidScale)
}
