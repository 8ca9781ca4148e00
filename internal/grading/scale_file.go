package grading

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type scaleFile struct {
	Grades []Entry `yaml:"grades"`
}

// ParseScale reads a YAML grade table:
//
//	grades:
//	  - {letter: A, rank: 6, counted_threshold: 3.3, all_threshold: 3.0}
//	  - {letter: I, rank: 0, counted_threshold: 0, all_threshold: 0}
func ParseScale(r io.Reader) (*Scale, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f scaleFile
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty file", ErrInvalidScale)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidScale, err)
	}
	return NewScale(f.Grades)
}

// LoadScaleFile returns DefaultScale when path is empty.
func LoadScaleFile(path string) (*Scale, error) {
	if path == "" {
		return DefaultScale(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScale(bytes.NewReader(b))
}

// MarshalScale renders s in the format ParseScale reads.
func MarshalScale(s *Scale) ([]byte, error) {
	return yaml.Marshal(scaleFile{Grades: s.Entries()})
}
