package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/roundhouse/internal/config"
	"github.com/zulandar/roundhouse/internal/keystore"
	"github.com/zulandar/roundhouse/internal/registry"
	"golang.org/x/term"
)

func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Repository management commands",
	}

	cmd.AddCommand(newRepoAddCmd())
	cmd.AddCommand(newRepoEditCmd())
	cmd.AddCommand(newRepoListCmd())
	cmd.AddCommand(newRepoShowCmd())
	cmd.AddCommand(newRepoRemoveCmd())
	return cmd
}

func newRepoAddCmd() *cobra.Command {
	var (
		configPath   string
		cloneURL     string
		secret       string
		promptSecret bool
		refWhitelist string
		buildScript  string
	)

	cmd := &cobra.Command{
		Use:   "add <owner/name>",
		Short: "Register a repository",
		Long: `Registers a repository so its webhooks trigger builds. The name must match
the owner/name path segment of the webhook URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if promptSecret {
				s, err := readSecret(cmd)
				if err != nil {
					return err
				}
				secret = s
			}
			return runRepoAdd(cmd, configPath, registry.Fields{
				Name:         args[0],
				CloneURL:     cloneURL,
				Secret:       secret,
				RefWhitelist: refWhitelist,
				BuildScript:  buildScript,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	cmd.Flags().StringVar(&cloneURL, "url", "", "clone URL (required)")
	cmd.Flags().StringVar(&secret, "secret", "", "webhook shared secret")
	cmd.Flags().BoolVar(&promptSecret, "prompt-secret", false, "read the webhook secret from the terminal")
	cmd.Flags().StringVar(&refWhitelist, "refs", "", "newline-separated ref patterns (empty accepts all)")
	cmd.Flags().StringVar(&buildScript, "script", "", "override script text, runs instead of the in-repo script")
	cmd.MarkFlagRequired("url")
	return cmd
}

func runRepoAdd(cmd *cobra.Command, configPath string, f registry.Fields) error {
	_, reg, err := registryFromConfig(configPath)
	if err != nil {
		return err
	}

	repo, err := reg.Create(f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Registered repository %s\n", repo.Name)
	fmt.Fprintf(out, "Webhook path: /hook/%s\n", repo.Name)
	if repo.Secret == "" {
		fmt.Fprintln(out, "Warning: no secret set, webhooks will be accepted unsigned")
	}
	return nil
}

func newRepoEditCmd() *cobra.Command {
	var (
		configPath   string
		cloneURL     string
		secret       string
		promptSecret bool
		refWhitelist string
		buildScript  string
	)

	cmd := &cobra.Command{
		Use:   "edit <owner/name>",
		Short: "Update a registered repository",
		Long:  "Updates only the fields whose flags are given. Other fields are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if promptSecret {
				s, err := readSecret(cmd)
				if err != nil {
					return err
				}
				secret = s
				cmd.Flags().Set("secret", secret)
			}
			return runRepoEdit(cmd, configPath, args[0], registry.Fields{
				CloneURL:     cloneURL,
				Secret:       secret,
				RefWhitelist: refWhitelist,
				BuildScript:  buildScript,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	cmd.Flags().StringVar(&cloneURL, "url", "", "clone URL")
	cmd.Flags().StringVar(&secret, "secret", "", "webhook shared secret")
	cmd.Flags().BoolVar(&promptSecret, "prompt-secret", false, "read the webhook secret from the terminal")
	cmd.Flags().StringVar(&refWhitelist, "refs", "", "newline-separated ref patterns (empty accepts all)")
	cmd.Flags().StringVar(&buildScript, "script", "", "override script text, runs instead of the in-repo script")
	return cmd
}

func runRepoEdit(cmd *cobra.Command, configPath, name string, f registry.Fields) error {
	_, reg, err := registryFromConfig(configPath)
	if err != nil {
		return err
	}

	// Merge: flags not given keep the stored value.
	existing, err := reg.GetByName(name)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("url") {
		f.CloneURL = existing.CloneURL
	}
	if !flags.Changed("secret") {
		f.Secret = existing.Secret
	}
	if !flags.Changed("refs") {
		f.RefWhitelist = existing.RefWhitelist
	}
	if !flags.Changed("script") {
		f.BuildScript = existing.BuildScript
	}

	if _, err := reg.Update(name, f); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated repository %s\n", name)
	return nil
}

func newRepoListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	return cmd
}

func runRepoList(cmd *cobra.Command, configPath string) error {
	_, reg, err := registryFromConfig(configPath)
	if err != nil {
		return err
	}

	repos, err := reg.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(repos) == 0 {
		fmt.Fprintln(out, "No repositories registered.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCLONE URL\tSECRET\tKEYPAIR\tREFS")
	for _, r := range repos {
		secret := "-"
		if r.Secret != "" {
			secret = "set"
		}
		keypair := "-"
		if r.HasKeypair() {
			keypair = "yes"
		}
		refs := "all"
		if r.RefWhitelist != "" {
			refs = strings.Join(strings.Fields(r.RefWhitelist), ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Name, truncate(r.CloneURL, 50), secret, keypair, truncate(refs, 40))
	}
	w.Flush()
	return nil
}

func newRepoShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <owner/name>",
		Short: "Show a repository's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	return cmd
}

func runRepoShow(cmd *cobra.Command, configPath, name string) error {
	_, reg, err := registryFromConfig(configPath)
	if err != nil {
		return err
	}

	repo, err := reg.GetByName(name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:         %s\n", repo.Name)
	fmt.Fprintf(out, "Clone URL:    %s\n", repo.CloneURL)
	fmt.Fprintf(out, "Webhook path: /hook/%s\n", repo.Name)
	if repo.Secret != "" {
		fmt.Fprintln(out, "Secret:       set")
	} else {
		fmt.Fprintln(out, "Secret:       none (webhooks accepted unsigned)")
	}
	if repo.BuildScript != "" {
		fmt.Fprintf(out, "Build script: override set (%d bytes)\n", len(repo.BuildScript))
	}
	if repo.RefWhitelist != "" {
		fmt.Fprintln(out, "Refs:")
		for _, p := range strings.Fields(repo.RefWhitelist) {
			fmt.Fprintf(out, "  %s\n", p)
		}
	} else {
		fmt.Fprintln(out, "Refs:         all")
	}
	if repo.HasKeypair() {
		fmt.Fprintf(out, "Public key:   %s\n", strings.TrimSpace(repo.PublicKey))
	}
	return nil
}

func newRepoRemoveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rm <owner/name>",
		Short: "Remove a registered repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoRemove(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	return cmd
}

func runRepoRemove(cmd *cobra.Command, configPath, name string) error {
	_, reg, err := registryFromConfig(configPath)
	if err != nil {
		return err
	}

	if err := reg.Delete(name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed repository %s\n", name)
	return nil
}

// readSecret reads a secret from the terminal without echoing it.
func readSecret(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal, pass --secret instead")
	}
	fmt.Fprint(cmd.OutOrStdout(), "Webhook secret: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return string(raw), nil
}

// registryFromConfig loads config and builds a Registry over the configured
// database and key store.
func registryFromConfig(configPath string) (*config.Config, *registry.Registry, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	keys, err := keystore.NewFileStore(cfg.Builds.KeysDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open key store: %w", err)
	}
	return cfg, registry.New(gormDB, keys), nil
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
