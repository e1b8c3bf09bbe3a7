package domain

import "fmt"

// Category identifies one of the five persisted collections.
type Category string

const (
	CategoryModules     Category = "modules"
	CategoryFiles       Category = "files"
	CategoryMultimedia  Category = "multimedia"
	CategoryWebLectures Category = "weblectures"
	CategoryConferences Category = "conferences"
)

// ResourceCategories lists the categories holding ResourceState items.
var ResourceCategories = []Category{
	CategoryFiles,
	CategoryMultimedia,
	CategoryWebLectures,
	CategoryConferences,
}

func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryModules, CategoryFiles, CategoryMultimedia, CategoryWebLectures, CategoryConferences:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) String() string {
	return string(c)
}

// IsResource reports whether the category holds ResourceState items.
func (c Category) IsResource() bool {
	switch c {
	case CategoryFiles, CategoryMultimedia, CategoryWebLectures, CategoryConferences:
		return true
	}
	return false
}

// FolderName is the directory a category's downloads are placed under,
// below the module code.
func (c Category) FolderName() string {
	switch c {
	case CategoryFiles:
		return "Files"
	case CategoryMultimedia:
		return "Multimedia"
	case CategoryWebLectures:
		return "Web Lectures"
	case CategoryConferences:
		return "Conferences"
	}
	return "Other"
}
