package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lechange-action/lechange/pkg/api"
)

// options mirrors SPEC_FULL.md §8.1's configuration record, organized
// by concern the way the teacher groups flags in its larger commands
// (git refs, patterns, diff, submodules, workflow, output, transport).
type options struct {
	// Git refs.
	baseSHA string
	sha     string

	// Patterns.
	files                string
	filesSeparator       string
	filesIgnore          string
	filesIgnoreSeparator string
	filesYAML            string
	filesFromSourceFile  string
	negationPatternsFirst bool

	// Diff.
	diffFilter  string
	skipSameSHA bool

	// Submodules.
	includeSubmodules bool
	submoduleFilter   string

	// Path handling.
	dirNames                          bool
	dirNamesMaxDepth                  int
	dirNamesExcludeCurrentDir         bool
	dirNamesIncludeFiles              []string
	dirNamesDeletedOnlyDirs           bool
	usePosixPathSeparator             bool
	ancestorLookupDepth               int
	recoverDeletedFiles               bool

	// Tags-based comparison.
	tagsPattern       string
	tagsIgnorePattern string

	// Output.
	outputDir          string
	writeOutputFiles   bool
	deployMatrixReason bool
	deployMatrixConcur bool
	outputRenamedAsDeletedAdded bool
	matrixSeparator    string

	// Soft-fail.
	failOnInitialDiffError   bool
	failOnSubmoduleDiffError bool

	// Repository transport.
	repoDir   string
	useRESTAPI bool
	apiURL    string
	tokenPath string
	owner     string
	repo      string
	branch    string
	currentRunID int64

	// Observability.
	metricsAddr string

	// Workflow history.
	trackWorkflowFailures   bool
	waitForActiveWorkflows  bool
	workflowLookbackCommits int
	workflowSuccessLookback int
	failureTrackingLevel    string
	workflowNameFilter      string
	workflowMaxWaitSeconds  int
}

func defaultOptions() *options {
	return &options{
		filesSeparator:           "\n",
		filesIgnoreSeparator:     "\n",
		diffFilter:               "ACDMRTUX",
		negationPatternsFirst:    true,
		dirNamesMaxDepth:         3,
		matrixSeparator:          " ",
		failOnInitialDiffError:   true,
		failOnSubmoduleDiffError: false,
		workflowLookbackCommits:  5,
		workflowSuccessLookback:  5,
		waitForActiveWorkflows:   true,
		workflowMaxWaitSeconds:   300,
		failureTrackingLevel:     "run",
	}
}

func (o *options) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.baseSHA, "base-sha", "", "Base ref/SHA to diff against. Defaults to head^.")
	flags.StringVar(&o.sha, "sha", "HEAD", "Head ref/SHA to diff.")

	flags.StringVar(&o.files, "files", "", "Newline-separated include glob patterns.")
	flags.StringVar(&o.filesSeparator, "files-separator", o.filesSeparator, "Separator for --files.")
	flags.StringVar(&o.filesIgnore, "files-ignore", "", "Newline-separated exclude glob patterns.")
	flags.StringVar(&o.filesIgnoreSeparator, "files-ignore-separator", o.filesIgnoreSeparator, "Separator for --files-ignore.")
	flags.StringVar(&o.filesYAML, "files-yaml", "", "Literal files_yaml group document.")
	flags.StringVar(&o.filesFromSourceFile, "files-from-source-file", "", "Path to a newline-separated pattern file.")
	flags.BoolVar(&o.negationPatternsFirst, "negation-patterns-first", o.negationPatternsFirst, "Evaluate exclude patterns before includes.")

	flags.StringVar(&o.diffFilter, "diff-filter", o.diffFilter, "git diff --diff-filter subset to consider.")
	flags.BoolVar(&o.skipSameSHA, "skip-same-sha", false, "Skip the diff entirely when base and head resolve to the same commit.")

	flags.BoolVar(&o.includeSubmodules, "include-submodules", false, "Detect submodule pointer bumps as changed files.")
	flags.StringVar(&o.submoduleFilter, "submodule-filter", "", "Glob restricting which submodule paths are considered.")

	flags.BoolVar(&o.dirNames, "dir-names", false, "Emit directory names instead of file paths in the output.")
	flags.IntVar(&o.dirNamesMaxDepth, "dir-names-max-depth", o.dirNamesMaxDepth, "Maximum directory depth for --dir-names.")
	flags.BoolVar(&o.dirNamesExcludeCurrentDir, "dir-names-exclude-current-dir", false, "Exclude files at the repository root from --dir-names.")
	flags.StringArrayVar(&o.dirNamesIncludeFiles, "dir-names-include-files", nil, "Restrict --dir-names to directories containing at least one of these file names.")
	flags.BoolVar(&o.dirNamesDeletedOnlyDirs, "dir-names-deleted-files-include-only-deleted-dirs", false, "Only report directories whose every changed file was deleted.")
	flags.BoolVar(&o.usePosixPathSeparator, "use-posix-path-separator", false, "Force forward slashes in reported paths regardless of host OS.")
	flags.IntVar(&o.ancestorLookupDepth, "files-ancestor-lookup-depth", 0, "Promote unmatched files whose ancestor directory (up to N levels up) holds a matched file (0-3).")
	flags.BoolVar(&o.recoverDeletedFiles, "recover-deleted-files", false, "Fetch the pre-deletion content of every deleted file from the base commit.")

	flags.StringVar(&o.tagsPattern, "tags-pattern", "", "Resolve the base ref to the most recently created tag matching this glob, instead of --base-sha.")
	flags.StringVar(&o.tagsIgnorePattern, "tags-ignore-pattern", "", "Exclude tags matching this glob from --tags-pattern resolution.")

	flags.StringVar(&o.outputDir, "output-dir", "", "Directory to write deploy-matrix.json into (required with --write-output-files).")
	flags.BoolVar(&o.writeOutputFiles, "write-output-files", false, "Also write the deploy matrix as deploy-matrix.json under --output-dir, in addition to $GITHUB_OUTPUT.")
	flags.BoolVar(&o.deployMatrixReason, "deploy-matrix-include-reason", false, "Include per-group action/reason fields in the deploy matrix.")
	flags.BoolVar(&o.deployMatrixConcur, "deploy-matrix-include-concurrency", false, "Include concurrency-blocked fields in the deploy matrix.")
	flags.BoolVar(&o.outputRenamedAsDeletedAdded, "output-renamed-as-deleted-added", false, "Report renames as a synthetic delete+add pair instead of one renamed entry.")
	flags.StringVar(&o.matrixSeparator, "matrix-files-separator", o.matrixSeparator, "Separator joining a group's files in the deploy matrix.")

	flags.BoolVar(&o.failOnInitialDiffError, "fail-on-initial-diff-error", o.failOnInitialDiffError, "Abort the run if the initial diff fails.")
	flags.BoolVar(&o.failOnSubmoduleDiffError, "fail-on-submodule-diff-error", o.failOnSubmoduleDiffError, "Abort the run if submodule diffing fails.")

	flags.StringVar(&o.repoDir, "repo-dir", ".", "Path to the checked-out repository (gitexec backend).")
	flags.BoolVar(&o.useRESTAPI, "use-rest-api", false, "Use the GitHub REST API instead of a local git checkout.")
	flags.StringVar(&o.apiURL, "api-url", "https://api.github.com", "GitHub API base URL.")
	flags.StringVar(&o.tokenPath, "token-path", "", "Path to a file containing the GitHub token (required with --use-rest-api or --track-workflow-failures).")
	flags.StringVar(&o.owner, "owner", "", "Repository owner/org.")
	flags.StringVar(&o.repo, "repo", "", "Repository name.")
	flags.StringVar(&o.branch, "branch", "", "Branch the current run belongs to.")
	flags.Int64Var(&o.currentRunID, "current-run-id", 0, "The workflow run id of the run invoking lechange, excluded from overlap checks.")

	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "If set, serve Prometheus metrics on this address until the process exits (e.g. :9090).")

	flags.BoolVar(&o.trackWorkflowFailures, "track-workflow-failures", false, "Ingest workflow history and rebuild files from unresolved failures.")
	flags.BoolVar(&o.waitForActiveWorkflows, "wait-for-active-workflows", o.waitForActiveWorkflows, "Record earlier in-flight runs that overlap this change as concurrency blockers, then wait for them to finish.")
	flags.IntVar(&o.workflowLookbackCommits, "workflow-lookback-commits", o.workflowLookbackCommits, "How many recent commits of failed runs to inspect.")
	flags.IntVar(&o.workflowSuccessLookback, "workflow-success-lookback", o.workflowSuccessLookback, "How many recent commits of successful runs to inspect.")
	flags.StringVar(&o.failureTrackingLevel, "failure-tracking-level", o.failureTrackingLevel, `Attribution granularity: "run" or "job".`)
	flags.StringVar(&o.workflowNameFilter, "workflow-name-filter", "", "Restrict workflow ingestion to runs whose name matches this single-* glob.")
	flags.IntVar(&o.workflowMaxWaitSeconds, "workflow-max-wait-seconds", o.workflowMaxWaitSeconds, "Maximum seconds to wait for an overlapping active run.")
}

func (o *options) validate() error {
	if o.sha == "" {
		return fmt.Errorf("--sha must not be empty")
	}
	if o.writeOutputFiles && o.outputDir == "" {
		return fmt.Errorf("--output-dir is required with --write-output-files")
	}
	if (o.useRESTAPI || o.trackWorkflowFailures) && o.tokenPath == "" {
		return fmt.Errorf("--token-path is required with --use-rest-api or --track-workflow-failures")
	}
	if o.trackWorkflowFailures && (o.owner == "" || o.repo == "" || o.branch == "") {
		return fmt.Errorf("--owner, --repo, and --branch are required with --track-workflow-failures")
	}
	if o.ancestorLookupDepth < 0 || o.ancestorLookupDepth > 3 {
		return fmt.Errorf("--files-ancestor-lookup-depth must be between 0 and 3, got %d", o.ancestorLookupDepth)
	}
	switch o.failureTrackingLevel {
	case "run", "job":
	default:
		return fmt.Errorf(`--failure-tracking-level must be "run" or "job", got %q`, o.failureTrackingLevel)
	}
	return nil
}

func (o *options) failureTrackingLevelKind() api.FailureTrackingLevel {
	if o.failureTrackingLevel == "job" {
		return api.LevelJob
	}
	return api.LevelRun
}

func newRootCommand() *cobra.Command {
	o := defaultOptions()
	cmd := &cobra.Command{
		Use:   "lechange",
		Short: "Detect changed files and compute which deploy groups need to run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), o)
		},
	}
	o.addFlags(cmd.Flags())
	return cmd
}
