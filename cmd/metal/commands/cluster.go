package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/imamik/metal/cmd/metal/handlers"
)

// Cluster returns the cluster command group.
func Cluster() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Create, provision and destroy tenant clusters",
	}
	cmd.AddCommand(clusterCreate())
	cmd.AddCommand(clusterCommand("provision", "Provision a created cluster until it is running", handlers.ProvisionCluster))
	cmd.AddCommand(clusterCommand("delete", "Start destroying a cluster", handlers.DeleteCluster))
	cmd.AddCommand(clusterCommand("force-delete-servers", "Delete the cloud servers backing a cluster's nodes", handlers.ForceDeleteServers))
	cmd.AddCommand(clusterCommand("confirm-destroyed", "Mark a destroying cluster destroyed once cluster-api removed it", handlers.ConfirmDestroyed))
	return cmd
}

func clusterCreate() *cobra.Command {
	var req handlers.ClusterRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a new cluster for a team's project",
		Long: `Create stores a cluster in the creating state together with a single
fixed-size node group. Run "metal cluster provision <id>" afterwards.

Example:
  metal cluster create --team team-1 --location fsn1 --instance-type cx22 --nodes 3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.CreateCluster(cmd.Context(), configPath(cmd), req, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&req.TeamID, "team", "", "Owning team id")
	cmd.Flags().StringVar(&req.CreatorID, "creator", "", "Id of the requesting user")
	cmd.Flags().StringVar(&req.Name, "name", "", "Cluster name (random when empty)")
	cmd.Flags().StringVar(&req.Location, "location", "fsn1", "Hetzner location")
	cmd.Flags().StringVar(&req.NetworkZone, "network-zone", "eu-central", "Hetzner network zone")
	cmd.Flags().StringVar(&req.InstanceType, "instance-type", "cx22", "Server type of the worker nodes")
	cmd.Flags().IntVar(&req.Nodes, "nodes", 1, "Number of worker nodes")
	_ = cmd.MarkFlagRequired("team")

	return cmd
}

type clusterHandler = func(ctx context.Context, configPath, id string, out io.Writer) error

func clusterCommand(use, short string, h clusterHandler) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <cluster-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return h(cmd.Context(), configPath(cmd), args[0], cmd.OutOrStdout())
		},
	}
}
