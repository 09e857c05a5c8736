// Package evidence holds the raw inputs of an aggregation run (raw calls and
// per-experiment evidence) and merge-joins their sorted streams gene by gene.
package evidence

import (
	"strings"

	"github.com/teranos/globalcalls/errors"
)

// DataType is the experimental technique that produced evidence
type DataType string

const (
	Affymetrix       DataType = "affymetrix"
	EST              DataType = "est"
	InSitu           DataType = "in_situ"
	RNASeq           DataType = "rna_seq"
	FullLengthRNASeq DataType = "full_length"
)

// DataTypes lists every data type in canonical order
var DataTypes = []DataType{Affymetrix, EST, InSitu, RNASeq, FullLengthRNASeq}

// ParseDataType accepts the stored form of a data type
func ParseDataType(s string) (DataType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, dt := range DataTypes {
		if string(dt) == s {
			return dt, nil
		}
	}
	return "", errors.NewInvalidRequestError("unknown data type %q", s)
}

// ParseDataTypes parses a comma-separated list; empty means every data type
func ParseDataTypes(s string) ([]DataType, error) {
	if strings.TrimSpace(s) == "" {
		return DataTypes, nil
	}
	var out []DataType
	seen := make(map[DataType]bool)
	for _, part := range strings.Split(s, ",") {
		dt, err := ParseDataType(part)
		if err != nil {
			return nil, err
		}
		if !seen[dt] {
			seen[dt] = true
			out = append(out, dt)
		}
	}
	return out, nil
}

// Direction tells whether an experiment detected expression
type Direction uint8

const (
	Absent Direction = iota
	Present
)

func (d Direction) String() string {
	if d == Present {
		return "present"
	}
	return "absent"
}

// ParseDirection accepts "present" or "absent"
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "present":
		return Present, nil
	case "absent":
		return Absent, nil
	}
	return 0, errors.Newf("unknown call direction %q", s)
}

// Quality is the confidence of an experiment's call
type Quality uint8

const (
	Low Quality = iota
	High
)

func (q Quality) String() string {
	if q == High {
		return "high"
	}
	return "low"
}

// ParseQuality accepts "high" or "low"
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(s) {
	case "high":
		return High, nil
	case "low":
		return Low, nil
	}
	return 0, errors.Newf("unknown call quality %q", s)
}

// Rank orders evidence for "best evidence wins": present beats absent
// regardless of quality, then high beats low.
func Rank(d Direction, q Quality) int {
	return int(d)*2 + int(q)
}

// RawCall is one observed call of a gene in a raw condition
type RawCall struct {
	ID          int64
	GeneID      int64
	ConditionID int64
}

// ExperimentEvidence is one experiment's contribution to a raw call
type ExperimentEvidence struct {
	GeneID       int64
	CallID       int64
	DataType     DataType
	ExperimentID string
	Direction    Direction
	Quality      Quality
}

// Rank of this record
func (e ExperimentEvidence) Rank() int { return Rank(e.Direction, e.Quality) }

// Better reports whether e strictly beats other
func (e ExperimentEvidence) Better(other ExperimentEvidence) bool {
	return e.Rank() > other.Rank()
}
