package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cvsync/internal/shared"
)

type courseListing struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Term        string `json:"term,omitempty"`
	Whitelisted bool   `json:"whitelisted"`
}

// Courses lists the active courses and marks the whitelisted ones.
func (r *Runner) Courses(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if config.Canvas.APIToken == "" {
		return fmt.Errorf("%w: canvas api token (set %s)", shared.ErrMissingCredentials, shared.EnvAPIToken)
	}

	lister, err := r.canvas(config)
	if err != nil {
		return err
	}

	courses, err := lister.ListCourses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list courses: %w", err)
	}

	listing := make([]courseListing, 0, len(courses))
	active := make(map[string]struct{}, len(courses))
	for _, c := range courses {
		active[c.ID] = struct{}{}
		listing = append(listing, courseListing{
			ID:          c.ID,
			Code:        c.Code,
			Name:        c.Name,
			Term:        c.Term,
			Whitelisted: slices.Contains(config.Courses.Whitelist, c.ID),
		})
	}

	if cmd.Bool("json") {
		return r.writeJSON(listing, true)
	}

	r.writePlainHeader(fmt.Sprintf("Active Courses (%d)", len(listing)))
	for _, c := range listing {
		mark := " "
		if c.Whitelisted {
			mark = "✓"
		}
		r.writePlain("%s %-8s %s - %s", mark, c.ID, c.Code, c.Name)
		if c.Term != "" {
			r.writePlain(" (%s)", c.Term)
		}
		r.writePlain("\n")
	}

	for _, id := range config.Courses.Whitelist {
		if _, ok := active[id]; !ok {
			r.writePlain("\n⚠️  Whitelisted course %s is not among the active courses\n", id)
		}
	}

	r.writePlainln("✓ = synced (courses.whitelist in the configuration)")
	return nil
}
