package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/edubill-dev/edubill/internal/gitops"
	"github.com/edubill-dev/edubill/internal/workspace"
)

func newInitCommand() *cobra.Command {
	var name string
	var git bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new edubill workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			if err := runInit(cmd.Context(), absDir, name, git); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized edubill workspace at %s\n", absDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "institution name (required)")
	cmd.Flags().BoolVar(&git, "git", false, "track the workspace in a git repository")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runInit(ctx context.Context, dir, name string, git bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if _, err := workspace.Init(dir, name); err != nil {
		return err
	}

	gitignore := ".env\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	if !git {
		return nil
	}
	repo, err := gitops.Init(ctx, dir)
	if err != nil {
		return err
	}
	_, err = repo.CommitAll(ctx, "edubill init", historyAuthor())
	return err
}
