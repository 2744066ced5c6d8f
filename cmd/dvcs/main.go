package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"dvcs/internal/config"
	"dvcs/internal/logging"
	"dvcs/internal/repository"
	"dvcs/internal/staging"
	"dvcs/internal/watch"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg    = config.Default()
	logger = zap.NewNop()

	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "dvcs",
	Short: "dvcs is a minimal distributed version control system",
	Long: `dvcs fingerprints a working tree, stages files into a content-addressed
object store and records commits in a per-repository ledger.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	l, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	logger = l.Logger
	return nil
}

func openRepo() (*repository.Repository, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}
	return repository.Open(cwd, cfg, logger)
}

// withRepo opens the enclosing repository for the duration of fn.
func withRepo(fn func(r *repository.Repository, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()
		return fn(r, args)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	var initCmd = &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a repository in dir (default: current directory)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			r, err := repository.Init(dir, cfg, logger)
			if err != nil {
				return err
			}
			defer r.Close()

			fmt.Println("Initialized empty repository in", r.MetaDir)
			return nil
		},
	}

	var addCmd = &cobra.Command{
		Use:   "add <paths...>",
		Short: "Stage files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			for _, path := range args {
				if err := r.Add(path); err != nil {
					return err
				}
			}
			return nil
		}),
	}

	var removeCmd = &cobra.Command{
		Use:     "remove <paths...>",
		Aliases: []string{"rm"},
		Short:   "Unstage files",
		Args:    cobra.MinimumNArgs(1),
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			for _, path := range args {
				if err := r.Remove(path); err != nil {
					return err
				}
			}
			return nil
		}),
	}

	var statusAll bool
	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show staged files whose working copy changed",
		Args:  cobra.NoArgs,
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			if !statusAll {
				report, err := r.Status()
				if err != nil {
					return err
				}
				fmt.Print(report)
				return nil
			}
			changes, err := r.Changes()
			if err != nil {
				return err
			}
			printChanges(changes)
			return nil
		}),
	}
	statusCmd.Flags().BoolVarP(&statusAll, "all", "a", false, "classify every path in the working tree")

	var diffRevision string
	var diffCmd = &cobra.Command{
		Use:   "diff <path>",
		Short: "Show line changes between the working copy and the staged or committed version",
		Args:  cobra.ExactArgs(1),
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			result, err := r.Diff(args[0], diffRevision)
			if err != nil {
				return err
			}
			if result.Empty() {
				return nil
			}
			printColoredDiff(result.Format())
			fmt.Printf("%d insertion(s), %d deletion(s)\n", result.Stats.Additions, result.Stats.Deletions)
			return nil
		}),
	}
	diffCmd.Flags().StringVarP(&diffRevision, "revision", "r", "", "compare against this commit")

	var commitMessage, commitBranch string
	var commitCmd = &cobra.Command{
		Use:   "commit",
		Short: "Record the staged files",
		Args:  cobra.NoArgs,
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			n, err := r.Commit(commitBranch, commitMessage)
			if err != nil {
				return err
			}
			fmt.Printf("[%s %s] %d file(s)\n", commitBranch, commitMessage, n)
			return nil
		}),
	}
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message, used as the commit id")
	commitCmd.Flags().StringVarP(&commitBranch, "branch", "b", repository.DefaultBranch, "branch to commit on")
	commitCmd.MarkFlagRequired("message")

	var logCmd = &cobra.Command{
		Use:   "log",
		Short: "List commits in commit order",
		Args:  cobra.NoArgs,
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			yellow := color.New(color.FgYellow).SprintFunc()
			for _, id := range r.Log() {
				fmt.Println(yellow(id))
			}
			return nil
		}),
	}

	var headsCmd = &cobra.Command{
		Use:   "heads",
		Short: "List branches and their head commits",
		Args:  cobra.NoArgs,
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			green := color.New(color.FgGreen).SprintFunc()
			for _, branch := range r.Ledger.Branches() {
				head, _ := r.Ledger.Head(branch)
				fmt.Printf("%s\t%s\n", green(branch), head)
			}
			return nil
		}),
	}

	var historyCmd = &cobra.Command{
		Use:   "history <path>",
		Short: "List the commits that recorded path",
		Args:  cobra.ExactArgs(1),
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			entries, err := r.FileHistory(args[0])
			if err != nil {
				return err
			}
			for _, entry := range entries {
				fmt.Println(entry)
			}
			return nil
		}),
	}

	var checkoutBranch string
	var checkoutCmd = &cobra.Command{
		Use:   "checkout <commit>",
		Short: "Move a branch to an existing commit",
		Args:  cobra.ExactArgs(1),
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			if err := r.Checkout(checkoutBranch, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s is now at %s\n", checkoutBranch, args[0])
			return nil
		}),
	}
	checkoutCmd.Flags().StringVarP(&checkoutBranch, "branch", "b", repository.DefaultBranch, "branch to move")

	var concatBranch string
	var concatCmd = &cobra.Command{
		Use:   "concat <commits...>",
		Short: "Commit the concatenation of several commits",
		Args:  cobra.MinimumNArgs(1),
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			joined, err := r.Concatenate(concatBranch, args)
			if err != nil {
				return err
			}
			fmt.Println(joined)
			return nil
		}),
	}
	concatCmd.Flags().StringVarP(&concatBranch, "branch", "b", repository.DefaultBranch, "branch to commit on")

	var mergeCmd = &cobra.Command{
		Use:   "merge <ancestor> <ours> <theirs>",
		Short: "Compute a three-way merge of the paths recorded by three commits",
		Args:  cobra.ExactArgs(3),
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			result, err := r.Merge(args[0], args[1], args[2])
			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			for _, path := range result.Additions.Sorted() {
				fmt.Printf("\t%s %s\n", green("A"), path)
			}
			for _, path := range result.MergeCandidates.Sorted() {
				fmt.Printf("\t%s %s\n", yellow("M"), path)
			}
			return err
		}),
	}

	var changedRevision string
	var changedCmd = &cobra.Command{
		Use:   "changed",
		Short: "List working files that are new or differ from a commit",
		Args:  cobra.NoArgs,
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			changed, err := r.Changed(changedRevision)
			if err != nil {
				return err
			}
			paths := make([]string, 0, len(changed))
			for path := range changed {
				paths = append(paths, path)
			}
			sort.Strings(paths)
			for _, path := range paths {
				fmt.Println(path)
			}
			return nil
		}),
	}
	changedCmd.Flags().StringVarP(&changedRevision, "revision", "r", "", "commit to compare against (default: last commit)")

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Refresh working fingerprints whenever the tree changes",
		Args:  cobra.NoArgs,
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := watch.New(r.Root, cfg.Repository.MetadataDir, r.Index, watch.Options{
				Logger:  logger.Named("watch"),
				Tracked: func(path string) bool {
					rec, ok := r.Index.Record(path)
					return ok && rec.Staging != nil
				},
				OnRefresh: func(err error) {
					if err != nil {
						renderError(err)
						return
					}
					fmt.Print(r.Index.StatusReport())
				},
			})
			if err != nil {
				return err
			}
			defer w.Close()

			fmt.Println("Watching", r.Root)
			if err := w.Run(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}),
	}

	var lsCmd = &cobra.Command{
		Use:   "ls",
		Short: "List index entries with their working, staged and committed slots",
		Args:  cobra.NoArgs,
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			for _, e := range r.Entries() {
				fmt.Printf("%s%s%s %s\n",
					slotMark(e.WorkingDirectory != nil, "W"),
					slotMark(e.Staging != nil, "S"),
					slotMark(e.RepositoryVersion != nil, "R"),
					e.Path)
			}
			return nil
		}),
	}

	var verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Check every stored object against its hash",
		Args:  cobra.NoArgs,
		RunE: withRepo(func(r *repository.Repository, args []string) error {
			report, stats, err := r.Verify()
			if err != nil {
				return err
			}
			red := color.New(color.FgRed).SprintFunc()
			for _, hash := range report.Missing {
				fmt.Printf("\t%s %s (metadata dropped)\n", red("missing"), hash)
			}
			for _, hash := range report.Corrupt {
				fmt.Printf("\t%s %s\n", red("corrupt"), hash)
			}
			fmt.Printf("%d object(s) verified, %d bytes (%d stored)\n",
				report.Verified, stats.Size, stats.StoredSize)
			if len(report.Corrupt) > 0 {
				return fmt.Errorf("%d corrupt object(s)", len(report.Corrupt))
			}
			return nil
		}),
	}

	rootCmd.AddCommand(lsCmd, verifyCmd)
	rootCmd.AddCommand(initCmd, addCmd, removeCmd, statusCmd, diffCmd, commitCmd, logCmd,
		headsCmd, historyCmd, checkoutCmd, concatCmd, mergeCmd, changedCmd, watchCmd)
}

func printChanges(changes []staging.Change) {
	if len(changes) == 0 {
		fmt.Println("No changes detected (working tree clean)")
		return
	}

	marks := map[staging.ChangeKind]string{
		staging.ChangeStaged:    color.New(color.FgGreen).Sprint("S"),
		staging.ChangeRemoved:   color.New(color.FgRed).Sprint("R"),
		staging.ChangeModified:  color.New(color.FgYellow).Sprint("M"),
		staging.ChangeDeleted:   color.New(color.FgRed).Sprint("D"),
		staging.ChangeUntracked: color.New(color.FgBlue).Sprint("?"),
	}
	for _, c := range changes {
		fmt.Printf("\t%s %s\n", marks[c.Kind], c.Path)
	}
}

func slotMark(set bool, mark string) string {
	if !set {
		return "-"
	}
	return color.New(color.FgGreen).Sprint(mark)
}

func printColoredDiff(diff string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func main() {
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		renderError(err)
		os.Exit(1)
	}
}
