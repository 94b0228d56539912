package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	rocketfilter "github.com/xoofx/git-rocket-filter"
	"github.com/xoofx/git-rocket-filter/internal/cmdutil"
)

func main() {
	newCmd().Execute()
}

// Cmd wraps the cobra.Command flag surface described in spec §6 around a
// rocketfilter.RunConfig.
type Cmd struct {
	*cobra.Command

	cfg rocketfilter.RunConfig

	configFile string
	logLevel   int
}

const longDescription = `git-rocket-filter rewrites a branch of git history by applying a commit
filter and a tree filter to every reachable commit.

Keep/remove rules are a mix of gitignore-style patterns and glob+predicate
pairs ("glob => expression" or "glob {% ... %}"), evaluated by an embedded
Starlark predicate host. The commit filter is a single predicate body run
once per commit before the tree is even looked at.

The result is written to --branch in the same repository. Rewritten blobs,
trees and commits are added to the object database as the run goes; no ref
is changed until the new branch ref is set at the very end of a successful
run.
`

func newCmd() (cmd *Cmd) {
	cmd = &Cmd{
		Command: &cobra.Command{
			Use:   "git-rocket-filter [revspec]",
			Short: "rewrite git history with a commit and tree filter",
			Long:  longDescription,
			Args:  cobra.MaximumNArgs(1),
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cmd.cfg.RepoDir, "repo", ".", "path to the repository to filter")
	flags.StringVar(&cmd.cfg.Branch, "branch", "", "name of the branch to write the result to")
	flags.BoolVar(&cmd.cfg.Force, "force", false, "overwrite --branch if it already exists")

	flags.StringVar(&cmd.cfg.KeepPatterns, "keep", "", "keep pattern block (inline)")
	flags.StringVar(&cmd.cfg.KeepPatternFile, "keep-file", "", "file containing the keep pattern block")
	flags.StringVar(&cmd.cfg.RemovePatterns, "remove", "", "remove pattern block (inline)")
	flags.StringVar(&cmd.cfg.RemovePatternFile, "remove-file", "", "file containing the remove pattern block")

	flags.StringVar(&cmd.cfg.CommitFilter, "commit-filter", "", "commit predicate body (inline)")
	flags.StringVar(&cmd.cfg.CommitFilterFile, "commit-filter-file", "", "file containing the commit predicate body")

	flags.BoolVar(&cmd.cfg.Detach, "detach", false, "drop references to parents outside the processed range instead of passing them through")
	flags.BoolVar(&cmd.cfg.IncludeLinks, "include-links", false, "admit submodule links when no keep pattern is configured")
	flags.BoolVar(&cmd.cfg.DisableThreads, "disable-threads", false, "force fully serial tree evaluation")
	flags.BoolVar(&cmd.cfg.PreserveMergeCommits, "preserve-merge-commits", false, "never prune a merge commit even if its tree matches a parent's")
	flags.IntVar(&cmd.cfg.MaxDepth, "max-depth", 0, "stop walking history this many generations back from the revspec (0 disables the cap)")

	flags.BoolVar(&cmd.cfg.CheckPatches, "check-patches", false, "warn about commits touching paths the filter would drop")
	flags.BoolVar(&cmd.cfg.StrictCheckPatches, "strict-check-patches", false, "like --check-patches, but fail the run instead of warning")

	flags.BoolVarP(&cmd.cfg.Verbose, "verbose", "v", false, "log progress as each commit is rewritten")
	flags.IntVar(&cmd.logLevel, "log-level", 0, "log level passed to slog")

	flags.StringVar(&cmd.configFile, "config", "", "YAML file providing defaults for any flag not given on the command line")

	cmd.RunE = cmd.run

	return
}

func (cmd *Cmd) run(_ *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := new(slog.LevelVar)
	level.Set(slog.Level(cmd.logLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := cmd.cfg
	if cmd.configFile != "" {
		fileCfg := cmdutil.GetOrPanic(rocketfilter.LoadConfigFile(cmd.configFile))
		cfg = mergeConfig(*fileCfg, cfg)
	}

	if len(args) == 1 {
		cfg.Revspec = args[0]
	}

	return rocketfilter.NewDriver(&cfg).Run(ctx)
}

// mergeConfig overlays explicit (flag-set) values from over a file-provided
// base, field by field: a zero value in over means "not set on the command
// line", so base's value wins there.
func mergeConfig(base, over rocketfilter.RunConfig) rocketfilter.RunConfig {
	result := base

	if over.RepoDir != "" && over.RepoDir != "." {
		result.RepoDir = over.RepoDir
	}
	if over.Branch != "" {
		result.Branch = over.Branch
	}
	if over.Force {
		result.Force = true
	}
	if over.KeepPatterns != "" {
		result.KeepPatterns = over.KeepPatterns
	}
	if over.KeepPatternFile != "" {
		result.KeepPatternFile = over.KeepPatternFile
	}
	if over.RemovePatterns != "" {
		result.RemovePatterns = over.RemovePatterns
	}
	if over.RemovePatternFile != "" {
		result.RemovePatternFile = over.RemovePatternFile
	}
	if over.CommitFilter != "" {
		result.CommitFilter = over.CommitFilter
	}
	if over.CommitFilterFile != "" {
		result.CommitFilterFile = over.CommitFilterFile
	}
	if over.Detach {
		result.Detach = true
	}
	if over.IncludeLinks {
		result.IncludeLinks = true
	}
	if over.DisableThreads {
		result.DisableThreads = true
	}
	if over.PreserveMergeCommits {
		result.PreserveMergeCommits = true
	}
	if over.MaxDepth != 0 {
		result.MaxDepth = over.MaxDepth
	}
	if over.CheckPatches {
		result.CheckPatches = true
	}
	if over.StrictCheckPatches {
		result.StrictCheckPatches = true
	}
	if over.Verbose {
		result.Verbose = true
	}
	if over.Revspec != "" {
		result.Revspec = over.Revspec
	}

	return result
}
