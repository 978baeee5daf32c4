package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/roundhouse/internal/config"
	"github.com/zulandar/roundhouse/internal/models"
	"gorm.io/gorm"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build management commands",
	}

	cmd.AddCommand(newBuildListCmd())
	cmd.AddCommand(newBuildShowCmd())
	cmd.AddCommand(newBuildLogsCmd())
	cmd.AddCommand(newBuildAbortCmd())
	cmd.AddCommand(newBuildTriggerCmd())
	return cmd
}

func newBuildListCmd() *cobra.Command {
	var (
		configPath string
		repo       string
		limit      int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent builds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuildList(cmd, configPath, repo, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	cmd.Flags().StringVar(&repo, "repo", "", "filter by repository name")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of builds to show")
	return cmd
}

func runBuildList(cmd *cobra.Command, configPath, repo string, limit int) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	var builds []models.Build
	q := gormDB.Order("id DESC").Limit(limit)
	if repo != "" {
		q = q.Where("repo_name = ?", repo)
	}
	if err := q.Find(&builds).Error; err != nil {
		return fmt.Errorf("list builds: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(builds) == 0 {
		fmt.Fprintln(out, "No builds found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREPO\tREF\tSTATUS\tQUEUED\tDURATION")
	for _, b := range builds {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.RepoName, truncate(b.Ref, 30), b.Status,
			b.QueuedAt.Format("2006-01-02 15:04:05"), buildDuration(b))
	}
	w.Flush()
	return nil
}

// buildDuration formats the run time of a build, "-" before it starts.
func buildDuration(b models.Build) string {
	if b.StartedAt == nil {
		return "-"
	}
	end := time.Now()
	if b.FinishedAt != nil {
		end = *b.FinishedAt
	}
	return end.Sub(*b.StartedAt).Round(time.Second).String()
}

func newBuildShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <build-id>",
		Short: "Show a build's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBuildID(args[0])
			if err != nil {
				return err
			}
			return runBuildShow(cmd, configPath, id)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	return cmd
}

func runBuildShow(cmd *cobra.Command, configPath string, id uint) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	build, err := findBuild(gormDB, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Build:      #%d\n", build.ID)
	fmt.Fprintf(out, "Repository: %s\n", build.RepoName)
	fmt.Fprintf(out, "Ref:        %s\n", build.Ref)
	if build.Commit != "" {
		fmt.Fprintf(out, "Commit:     %s\n", build.Commit)
	}
	fmt.Fprintf(out, "Status:     %s\n", build.Status)
	if build.Cause != "" {
		fmt.Fprintf(out, "Cause:      %s\n", build.Cause)
	}
	if build.Status == models.BuildFailed {
		fmt.Fprintf(out, "Exit code:  %d\n", build.ExitCode)
	}
	fmt.Fprintf(out, "Queued:     %s\n", build.QueuedAt.Format(time.RFC3339))
	if build.StartedAt != nil {
		fmt.Fprintf(out, "Started:    %s\n", build.StartedAt.Format(time.RFC3339))
	}
	if build.FinishedAt != nil {
		fmt.Fprintf(out, "Finished:   %s (%s)\n", build.FinishedAt.Format(time.RFC3339), buildDuration(*build))
	}
	return nil
}

func newBuildLogsCmd() *cobra.Command {
	var (
		configPath string
		follow     bool
	)

	cmd := &cobra.Command{
		Use:   "logs <build-id>",
		Short: "Print a build's output",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one build id")
			}
			id, err := parseBuildID(args[0])
			if err != nil {
				return err
			}
			return runBuildLogs(cmd, configPath, id, follow)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing output until the build finishes")
	return cmd
}

func runBuildLogs(cmd *cobra.Command, configPath string, id uint, follow bool) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	if _, err := findBuild(gormDB, id); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	nextSeq := 0
	for {
		var chunks []models.BuildLog
		err := gormDB.Where("build_id = ? AND seq >= ?", id, nextSeq).
			Order("seq ASC").Find(&chunks).Error
		if err != nil {
			return fmt.Errorf("read log: %w", err)
		}
		for _, chunk := range chunks {
			fmt.Fprint(out, chunk.Content)
			nextSeq = chunk.Seq + 1
		}

		build, err := findBuild(gormDB, id)
		if err != nil {
			return err
		}
		if build.Terminal() || !follow {
			return nil
		}
		time.Sleep(time.Second)
	}
}

func newBuildAbortCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "abort <build-id>",
		Short: "Abort a queued or running build",
		Long:  "Asks the running server to abort the build. The server must be up.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBuildID(args[0])
			if err != nil {
				return err
			}
			return runBuildAbort(cmd, configPath, id)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	return cmd
}

func runBuildAbort(cmd *cobra.Command, configPath string, id uint) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	url := fmt.Sprintf("%s/api/builds/%d/abort", serverBase(cfg), id)
	status, body, err := postJSON(url, nil)
	if err != nil {
		return fmt.Errorf("reach server: %w", err)
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("abort build %d: server said %d: %s", id, status, body)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Aborted build #%d\n", id)
	return nil
}

func newBuildTriggerCmd() *cobra.Command {
	var (
		configPath string
		ref        string
	)

	cmd := &cobra.Command{
		Use:   "trigger <owner/name>",
		Short: "Trigger a build as if a push webhook arrived",
		Long: `Sends a signed push payload to the running server, exactly like a forge
webhook would. Useful for testing a repository's build script.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuildTrigger(cmd, configPath, args[0], ref)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	cmd.Flags().StringVar(&ref, "ref", "refs/heads/main", "git ref to build")
	return cmd
}

func runBuildTrigger(cmd *cobra.Command, configPath, name, ref string) error {
	cfg, reg, err := registryFromConfig(configPath)
	if err != nil {
		return err
	}

	repo, err := reg.GetByName(name)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{"ref": ref})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/hook/%s", serverBase(cfg), name)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if repo.Secret != "" {
		mac := hmac.New(sha256.New, []byte(repo.Secret))
		mac.Write(payload)
		req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reach server: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	out := cmd.OutOrStdout()
	switch resp.StatusCode {
	case http.StatusAccepted:
		var accepted struct {
			BuildID uint `json:"build_id"`
		}
		if err := json.Unmarshal(body, &accepted); err == nil && accepted.BuildID > 0 {
			fmt.Fprintf(out, "Triggered build #%d for %s (%s)\n", accepted.BuildID, name, ref)
			return nil
		}
		fmt.Fprintf(out, "Triggered build for %s (%s)\n", name, ref)
		return nil
	case http.StatusOK:
		fmt.Fprintf(out, "Ref %s is not whitelisted for %s, no build queued\n", ref, name)
		return nil
	default:
		return fmt.Errorf("trigger build: server said %d: %s", resp.StatusCode, body)
	}
}

// serverBase derives the API base URL from the listener config.
func serverBase(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

func postJSON(url string, body []byte) (int, string, error) {
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(data), nil
}

func parseBuildID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid build id %q", raw)
	}
	return uint(id), nil
}

// findBuild loads one build or reports it missing.
func findBuild(gormDB *gorm.DB, id uint) (*models.Build, error) {
	var build models.Build
	if err := gormDB.First(&build, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("build %d not found", id)
		}
		return nil, fmt.Errorf("load build %d: %w", id, err)
	}
	return &build, nil
}
