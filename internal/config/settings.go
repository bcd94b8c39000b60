package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Settings is the user-entered tracking configuration: which students to
// follow and, per student, which routes. A missing file means "track
// everything".
type Settings struct {
	// Origin overrides the provider backend, e.g. for a regional deployment.
	Origin string `yaml:"origin" validate:"omitempty,url"`

	// PollIntervalMinutes overrides the poll interval.
	PollIntervalMinutes int `yaml:"pollIntervalMinutes" validate:"gte=0"`

	// Students selects which students to poll. Empty means all students on
	// the account.
	Students []StudentSelection `yaml:"students" validate:"dive"`
}

// StudentSelection picks one student by the id printed on their SMART tag.
type StudentSelection struct {
	ExternalID string `yaml:"externalId" validate:"required"`

	// Routes restricts window computation to these route ids. Empty means
	// all routes the student has ridden.
	Routes []int64 `yaml:"routes"`
}

// LoadSettings reads and validates the settings file. A missing file is not
// an error; it yields the zero Settings.
func LoadSettings(path string) (Settings, error) {
	var settings Settings

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parse settings file: %w", err)
	}

	v := validator.New()
	if err := v.Struct(settings); err != nil {
		return settings, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

// Selected reports whether a student external id is tracked, and which of
// its routes are (nil means all).
func (s Settings) Selected(externalID string) (bool, []int64) {
	if len(s.Students) == 0 {
		return true, nil
	}
	for _, sel := range s.Students {
		if sel.ExternalID == externalID {
			return true, sel.Routes
		}
	}
	return false, nil
}
