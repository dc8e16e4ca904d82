package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/cvsync/internal/models"
)

var _ list.Item = courseItem{}

// courseItem wraps [models.Course] to implement [list.Item].
type courseItem struct {
	course  models.Course
	tracked bool
}

func (i courseItem) FilterValue() string { return i.course.Label() }
func (i courseItem) Title() string {
	if i.tracked {
		return "✓ " + i.course.Label()
	}
	return "  " + i.course.Label()
}
func (i courseItem) Description() string {
	desc := fmt.Sprintf("id %s", i.course.ID)
	if i.course.Term != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.course.Term)
	}
	if !i.tracked {
		desc += " • not whitelisted"
	}
	return desc
}
