package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/roundhouse/internal/sourcer"
)

func newPingCmd() *cobra.Command {
	var (
		configPath string
		repoName   string
	)

	cmd := &cobra.Command{
		Use:   "ping <clone-url>",
		Short: "Check that a clone URL is reachable",
		Long: `Runs git ls-remote against the URL. With --repo, the named repository's
deploy key is used for authentication.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd, configPath, args[0], repoName)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	cmd.Flags().StringVar(&repoName, "repo", "", "registered repository whose deploy key to use")
	return cmd
}

func runPing(cmd *cobra.Command, configPath, url, repoName string) error {
	cfg, reg, err := registryFromConfig(configPath)
	if err != nil {
		return err
	}

	identity := ""
	if repoName != "" {
		repo, err := reg.GetByName(repoName)
		if err != nil {
			return err
		}
		if repo.HasKeypair() {
			identity, err = reg.KeyPath(repoName)
			if err != nil {
				return err
			}
		}
	}

	src := sourcer.New(cfg.Builds.PingTimeout.Std(), cfg.Builds.CloneTimeout.Std())
	start := time.Now()
	if err := src.Ping(context.Background(), url, identity); err != nil {
		return fmt.Errorf("%s is not accessible: %w", url, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s is accessible (took %s)\n", url, time.Since(start).Round(time.Millisecond))
	return nil
}
