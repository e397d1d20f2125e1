package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imamik/metal/cmd/metal/handlers"
	"github.com/imamik/metal/internal/provisioning/project"
)

// Environment variables carrying project credentials. Secrets are never
// accepted as flags so they stay out of shell history and process lists.
const (
	envHCloudToken   = "HCLOUD_TOKEN"
	envRobotUser     = "HETZNER_ROBOT_USER"
	envRobotPassword = "HETZNER_ROBOT_PASSWORD"
)

// Project returns the project command group.
func Project() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Connect and disconnect Hetzner Cloud projects",
	}
	cmd.AddCommand(projectCreate())
	cmd.AddCommand(projectDelete())
	return cmd
}

func projectCreate() *cobra.Command {
	var (
		in             project.CreateInput
		publicKeyFile  string
		privateKeyFile string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Connect a Hetzner Cloud project to a team",
		Long: `Create validates the API token read from ` + envHCloudToken + `, registers an SSH key
named metal-<project id> in the Hetzner project and stores the project.

An ed25519 key pair is generated unless both --public-key-file and
--private-key-file are given.

Example:
  HCLOUD_TOKEN=... metal project create --team team-1 --name Production`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.APIToken = os.Getenv(envHCloudToken)
			in.WebServiceUser = os.Getenv(envRobotUser)
			in.WebServicePassword = os.Getenv(envRobotPassword)

			var err error
			if in.PublicKey, err = readOptional(publicKeyFile); err != nil {
				return err
			}
			if in.PrivateKey, err = readOptional(privateKeyFile); err != nil {
				return err
			}
			return handlers.CreateProject(cmd.Context(), configPath(cmd), in, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&in.ID, "id", "", "Project id (generated when empty)")
	cmd.Flags().StringVar(&in.TeamID, "team", "", "Owning team id")
	cmd.Flags().StringVar(&in.CreatorID, "creator", "", "Id of the user connecting the project")
	cmd.Flags().StringVar(&in.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&publicKeyFile, "public-key-file", "", "OpenSSH public key to register instead of generating one")
	cmd.Flags().StringVar(&privateKeyFile, "private-key-file", "", "OpenSSH private key matching --public-key-file")
	_ = cmd.MarkFlagRequired("team")
	cmd.MarkFlagsRequiredTogether("public-key-file", "private-key-file")

	return cmd
}

func projectDelete() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Disconnect a project that has no active clusters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.DeleteProject(cmd.Context(), configPath(cmd), args[0], cmd.OutOrStdout())
		},
	}
}

func readOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
