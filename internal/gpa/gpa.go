// Package gpa computes weighted grade-point averages on a 5.00 scale.
package gpa

import (
	"errors"
	"math"
	"strings"
)

// ErrInvalidInput is returned when the grade/credit input cannot produce a result.
var ErrInvalidInput = errors.New("invalid gpa input")

// Scale is the display scale of computed averages.
const Scale = "5.00"

var gradePoints = map[string]float64{
	"A": 5.0,
	"B": 4.0,
	"C": 3.0,
	"D": 2.0,
	"E": 1.0,
	"F": 0.0,
}

// Result holds a computed average and its classification band.
type Result struct {
	GPA            float64
	TotalCredits   float64
	TotalPoints    float64
	Classification string
}

// Compute maps letter grades and credit weights to a weighted average.
// Grades match the point table case-insensitively after trimming; unknown
// codes are skipped together with their credit rather than rejected.
func Compute(grades []string, credits []float64) (Result, error) {
	if len(grades) == 0 || len(credits) == 0 || len(grades) != len(credits) {
		return Result{}, ErrInvalidInput
	}

	var totalPoints, totalCredits float64
	for i, grade := range grades {
		points, ok := gradePoints[strings.ToUpper(strings.TrimSpace(grade))]
		if !ok {
			continue
		}
		totalPoints += points * credits[i]
		totalCredits += credits[i]
	}
	if totalCredits == 0 {
		return Result{}, ErrInvalidInput
	}

	// Classify on the exact average; rounding is display-only, so 4.499
	// stays below the 4.50 boundary even though it rounds to 4.50.
	avg := totalPoints / totalCredits
	return Result{
		GPA:            round2(avg),
		TotalCredits:   totalCredits,
		TotalPoints:    round2(totalPoints),
		Classification: Classify(avg),
	}, nil
}

// Classify returns the band name for an average. Bands are inclusive on
// their lower bound and evaluated highest-first.
func Classify(avg float64) string {
	switch {
	case avg >= 4.50:
		return "First Class"
	case avg >= 3.50:
		return "Second Class Upper"
	case avg >= 2.50:
		return "Second Class Lower"
	case avg >= 1.50:
		return "Third Class"
	case avg >= 1.00:
		return "Pass"
	default:
		return "Fail"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
