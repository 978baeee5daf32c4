package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newKeypairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keypair",
		Short: "Deploy-key management commands",
	}

	cmd.AddCommand(newKeypairGenCmd())
	cmd.AddCommand(newKeypairShowCmd())
	cmd.AddCommand(newKeypairRemoveCmd())
	return cmd
}

func newKeypairGenCmd() *cobra.Command {
	var (
		configPath string
		replace    bool
	)

	cmd := &cobra.Command{
		Use:   "gen <owner/name>",
		Short: "Generate a deploy keypair for a repository",
		Long: `Generates an ed25519 keypair for SSH clones. The private key stays on the
server, the printed public key goes in the forge's deploy-key settings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeypairGen(cmd, configPath, args[0], replace)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	cmd.Flags().BoolVar(&replace, "replace", false, "replace an existing keypair")
	return cmd
}

func runKeypairGen(cmd *cobra.Command, configPath, name string, replace bool) error {
	_, reg, err := registryFromConfig(configPath)
	if err != nil {
		return err
	}

	publicKey, err := reg.GenerateKeypair(name, replace)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generated keypair for %s\n", name)
	fmt.Fprintln(out, "Add this deploy key to the repository:")
	fmt.Fprintf(out, "\n%s\n", strings.TrimSpace(publicKey))
	return nil
}

func newKeypairShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <owner/name>",
		Short: "Print a repository's public deploy key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeypairShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	return cmd
}

func runKeypairShow(cmd *cobra.Command, configPath, name string) error {
	_, reg, err := registryFromConfig(configPath)
	if err != nil {
		return err
	}

	repo, err := reg.GetByName(name)
	if err != nil {
		return err
	}
	if !repo.HasKeypair() {
		return fmt.Errorf("repository %s has no keypair", name)
	}

	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(repo.PublicKey))
	return nil
}

func newKeypairRemoveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rm <owner/name>",
		Short: "Remove a repository's deploy keypair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeypairRemove(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	return cmd
}

func runKeypairRemove(cmd *cobra.Command, configPath, name string) error {
	_, reg, err := registryFromConfig(configPath)
	if err != nil {
		return err
	}

	if err := reg.RemoveKeypair(name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed keypair for %s\n", name)
	return nil
}
