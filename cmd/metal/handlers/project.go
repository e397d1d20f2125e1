package handlers

import (
	"context"
	"fmt"
	"io"

	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/provisioning/project"
)

// CreateProject connects a Hetzner Cloud project and prints its id and
// SSH key name. Credentials never appear in the output.
func CreateProject(ctx context.Context, configPath string, in project.CreateInput, out io.Writer) error {
	a, err := open(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.run(ctx, project.WorkflowCreate, in.TeamID, in)
	if err != nil {
		return err
	}
	p, ok := result.(*model.Project)
	if !ok {
		return fmt.Errorf("unexpected result %T", result)
	}
	fmt.Fprintf(out, "Project %s connected (ssh key %s)\n", p.ID, p.SSHKeyName)
	return nil
}

// DeleteProject disconnects a project that has no active clusters.
func DeleteProject(ctx context.Context, configPath, id string, out io.Writer) error {
	a, err := open(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.run(ctx, project.WorkflowDelete, id, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Project %s deleted\n", id)
	return nil
}
