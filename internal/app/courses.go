package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"thinkora/pkg/domain"
	"thinkora/pkg/store"
)

// ErrCourseFieldsRequired rejects course writes with missing fields.
var ErrCourseFieldsRequired = errors.New("course_name, credits and letter_grade are required")

// CourseInput carries caller-supplied course fields.
type CourseInput struct {
	CourseName   string  `json:"course_name"`
	Credits      float64 `json:"credits"`
	LetterGrade  string  `json:"letter_grade"`
	SemesterYear string  `json:"semester_year"`
}

func (in CourseInput) validate() error {
	if strings.TrimSpace(in.CourseName) == "" || strings.TrimSpace(in.LetterGrade) == "" || in.Credits <= 0 {
		return ErrCourseFieldsRequired
	}
	return nil
}

// CreateCourse records a course owned by the user.
func (a *App) CreateCourse(user domain.User, in CourseInput) (domain.Course, error) {
	if err := in.validate(); err != nil {
		return domain.Course{}, err
	}
	now := time.Now().UTC()
	course := domain.Course{
		ID:           store.NewID(),
		UserID:       user.ID,
		CourseName:   strings.TrimSpace(in.CourseName),
		Credits:      in.Credits,
		LetterGrade:  strings.ToUpper(strings.TrimSpace(in.LetterGrade)),
		SemesterYear: strings.TrimSpace(in.SemesterYear),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveCourse(course); err != nil {
		return domain.Course{}, fmt.Errorf("save course: %w", err)
	}
	return course, nil
}

// ListCourses returns the user's courses ordered by name.
func (a *App) ListCourses(user domain.User) ([]domain.Course, error) {
	return a.store.ListCoursesByOwner(user.ID)
}

// GetCourse returns an owned course.
func (a *App) GetCourse(user domain.User, id string) (domain.Course, error) {
	course, ok, err := a.store.GetCourse(id)
	if err != nil {
		return domain.Course{}, fmt.Errorf("fetch course: %w", err)
	}
	if !ok {
		return domain.Course{}, ErrCourseNotFound
	}
	if course.UserID != user.ID {
		return domain.Course{}, ErrForbidden
	}
	return course, nil
}

// UpdateCourse replaces an owned course's fields.
func (a *App) UpdateCourse(user domain.User, id string, in CourseInput) (domain.Course, error) {
	course, err := a.GetCourse(user, id)
	if err != nil {
		return domain.Course{}, err
	}
	if err := in.validate(); err != nil {
		return domain.Course{}, err
	}
	course.CourseName = strings.TrimSpace(in.CourseName)
	course.Credits = in.Credits
	course.LetterGrade = strings.ToUpper(strings.TrimSpace(in.LetterGrade))
	course.SemesterYear = strings.TrimSpace(in.SemesterYear)
	course.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveCourse(course); err != nil {
		return domain.Course{}, fmt.Errorf("save course: %w", err)
	}
	return course, nil
}

// DeleteCourse removes an owned course.
func (a *App) DeleteCourse(user domain.User, id string) error {
	if _, err := a.GetCourse(user, id); err != nil {
		return err
	}
	return a.store.DeleteCourse(id)
}
