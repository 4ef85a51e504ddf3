package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CourseCatalog maps LMS course ids to the subject namespace their lectures belong to.
//
//	courses:
//	  - courseId: abc123
//	    subjectId: dsa
type CourseCatalog struct {
	Courses []CourseEntry `yaml:"courses"`
}

type CourseEntry struct {
	CourseID  string `yaml:"courseId"`
	SubjectID string `yaml:"subjectId"`
	Name      string `yaml:"name"`
}

// LoadCatalog reads the YAML catalog. An empty path yields an empty catalog.
func LoadCatalog(path string) (*CourseCatalog, error) {
	if path == "" {
		return &CourseCatalog{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var cat CourseCatalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i, c := range cat.Courses {
		if c.CourseID == "" {
			return nil, fmt.Errorf("catalog entry %d: courseId is empty", i)
		}
	}
	return &cat, nil
}

// SubjectFor returns the subject id configured for courseID, or courseID itself.
func (c *CourseCatalog) SubjectFor(courseID string) string {
	if c != nil {
		for _, e := range c.Courses {
			if e.CourseID == courseID && e.SubjectID != "" {
				return e.SubjectID
			}
		}
	}
	return courseID
}
