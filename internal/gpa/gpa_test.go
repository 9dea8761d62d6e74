package gpa

import (
	"errors"
	"math"
	"testing"
)

func TestComputeSingleGrade(t *testing.T) {
	res, err := Compute([]string{"A"}, []float64{3})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.GPA != 5.00 {
		t.Fatalf("gpa = %v, want 5.00", res.GPA)
	}
	if res.Classification != "First Class" {
		t.Fatalf("classification = %q", res.Classification)
	}
}

func TestComputeWeighted(t *testing.T) {
	res, err := Compute([]string{"A", "C"}, []float64{3, 2})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.TotalPoints != 21 {
		t.Fatalf("totalPoints = %v, want 21", res.TotalPoints)
	}
	if res.TotalCredits != 5 {
		t.Fatalf("totalCredits = %v, want 5", res.TotalCredits)
	}
	if res.GPA != 4.20 {
		t.Fatalf("gpa = %v, want 4.20", res.GPA)
	}
	if res.Classification != "Second Class Upper" {
		t.Fatalf("classification = %q", res.Classification)
	}
}

func TestComputeInvalidInput(t *testing.T) {
	cases := []struct {
		name    string
		grades  []string
		credits []float64
	}{
		{"empty", nil, nil},
		{"mismatched", []string{"A", "B"}, []float64{3}},
		{"all unrecognized", []string{"Z"}, []float64{3}},
		{"zero credits", []string{"A"}, []float64{0}},
	}
	for _, tc := range cases {
		if _, err := Compute(tc.grades, tc.credits); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestComputeSkipsUnrecognizedGrades(t *testing.T) {
	res, err := Compute([]string{"A", "X", " b "}, []float64{3, 99, 1})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// X and its 99 credits must not count; "b" matches case-insensitively.
	if res.TotalCredits != 4 {
		t.Fatalf("totalCredits = %v, want 4", res.TotalCredits)
	}
	if res.TotalPoints != 19 {
		t.Fatalf("totalPoints = %v, want 19", res.TotalPoints)
	}
}

func TestClassificationBoundaries(t *testing.T) {
	// Exactly on a boundary belongs to the higher band.
	res, err := Compute([]string{"A", "B"}, []float64{1, 1})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.GPA != 4.50 || res.Classification != "First Class" {
		t.Fatalf("4.50 should be First Class, got %v %q", res.GPA, res.Classification)
	}

	// Just under the boundary stays in the lower band even though the
	// rounded display value reads 4.50: 1799 points over 400 credits = 4.4975.
	res, err = Compute([]string{"A", "B"}, []float64{199, 201})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.GPA != 4.50 {
		t.Fatalf("display gpa = %v, want rounded 4.50", res.GPA)
	}
	if res.Classification != "Second Class Upper" {
		t.Fatalf("just-under 4.50 should be Second Class Upper, got %q", res.Classification)
	}

	bands := map[float64]string{
		4.50: "First Class",
		3.50: "Second Class Upper",
		2.50: "Second Class Lower",
		1.50: "Third Class",
		1.00: "Pass",
		0.99: "Fail",
	}
	for avg, want := range bands {
		if got := Classify(avg); got != want {
			t.Fatalf("Classify(%v) = %q, want %q", avg, got, want)
		}
	}
}

func TestComputeRounding(t *testing.T) {
	// 5*1 + 4*2 = 13 over 3 credits = 4.333... -> 4.33
	res, err := Compute([]string{"A", "B"}, []float64{1, 2})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if math.Abs(res.GPA-4.33) > 1e-9 {
		t.Fatalf("gpa = %v, want 4.33", res.GPA)
	}
}
