package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"k8s.io/test-infra/prow/interrupts"
	"sigs.k8s.io/prow/pkg/config/secret"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/diff"
	"github.com/lechange-action/lechange/pkg/dirnames"
	"github.com/lechange-action/lechange/pkg/interner"
	"github.com/lechange-action/lechange/pkg/metrics"
	"github.com/lechange-action/lechange/pkg/output"
	"github.com/lechange-action/lechange/pkg/patterns"
	"github.com/lechange-action/lechange/pkg/pipeline"
	"github.com/lechange-action/lechange/pkg/recovery"
	"github.com/lechange-action/lechange/pkg/repository"
	"github.com/lechange-action/lechange/pkg/repository/gitexec"
	repoREST "github.com/lechange-action/lechange/pkg/repository/rest"
	"github.com/lechange-action/lechange/pkg/tagref"
	"github.com/lechange-action/lechange/pkg/workflow"
	workflowREST "github.com/lechange-action/lechange/pkg/workflow/rest"
)

const (
	exitChangesFound = 0
	exitNoChanges    = 2
)

// run wires the CLI options into a pipeline.Run invocation and renders
// the result. "No changes found" exits via os.Exit(exitNoChanges),
// matching §8.6, since cobra's RunE has no notion of a non-error,
// non-zero exit code.
func run(ctx context.Context, o *options) error {
	fs := afero.NewOsFs()

	if o.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		interrupts.ListenAndServe(&http.Server{Addr: o.metricsAddr, Handler: mux}, 5*time.Second)
	}

	var token string
	if o.tokenPath != "" {
		if err := secret.Add(o.tokenPath); err != nil {
			return errors.Wrapf(err, "loading token from %s", o.tokenPath)
		}
		token = string(secret.GetSecret(o.tokenPath))
	}

	in := interner.New()

	matcher, groups, err := loadPatterns(fs, o)
	if err != nil {
		return err
	}

	repoProvider, tagLister := buildRepositoryProvider(o, token)

	baseRef := o.baseSHA
	if o.tagsPattern != "" {
		if tagLister == nil {
			return fmt.Errorf("--tags-pattern requires the gitexec backend (a local checkout), not --use-rest-api")
		}
		tag, err := tagref.Resolve(ctx, tagLister, o.tagsPattern, o.tagsIgnorePattern)
		if err != nil {
			return errors.Wrap(err, "resolving --tags-pattern")
		}
		baseRef = tag
		logrus.WithField("tag", tag).Info("resolved base ref from tags_pattern")
	}

	var workflowProvider workflow.Provider
	if o.trackWorkflowFailures {
		workflowProvider = workflowREST.New(o.apiURL, token, in)
	}

	cfg := pipeline.Config{
		Owner: o.owner, Repo: o.repo, Branch: o.branch, CurrentRunID: o.currentRunID,
		BaseRef: baseRef, HeadRef: o.sha,
		Diff:                        buildDiffConfig(o),
		Workflow:                    buildWorkflowConfig(o),
		OutputRenamedAsDeletedAdded: o.outputRenamedAsDeletedAdded,
	}

	out, err := pipeline.Run(ctx, repoProvider, workflowProvider, in, cfg, matcher, groups)
	if err != nil {
		return err
	}

	if o.metricsAddr != "" {
		observeGroupDecisions(in, out.Computed.GroupDeployDecisions)
	}

	if o.recoverDeletedFiles {
		recovered := recovery.RecoverDeletedFiles(ctx, repoProvider, in, out.Result.AllFiles, baseRef)
		for _, r := range recovered {
			if r.Err != nil {
				p, _ := in.Resolve(r.Path)
				logrus.WithError(r.Err).WithField("path", p).Warn("could not recover deleted file content")
			}
		}
	}

	if err := render(fs, o, in, out); err != nil {
		return err
	}

	if !out.Computed.AnyChanged() && !out.Computed.HasDeployableGroups() {
		os.Exit(exitNoChanges)
	}
	os.Exit(exitChangesFound)
	return nil
}

func loadPatterns(fs afero.Fs, o *options) (*patterns.Matcher, []patterns.Group, error) {
	var includes, excludes []string
	if o.files != "" {
		includes = splitNonEmpty(o.files, o.filesSeparator)
	}
	if o.filesIgnore != "" {
		excludes = splitNonEmpty(o.filesIgnore, o.filesIgnoreSeparator)
	}
	if o.filesFromSourceFile != "" {
		fromFile, err := patterns.LoadFromSourceFile(fs, o.filesFromSourceFile)
		if err != nil {
			return nil, nil, err
		}
		includes = append(includes, fromFile...)
	}

	var matcher *patterns.Matcher
	if len(includes) > 0 || len(excludes) > 0 {
		m, err := patterns.New(includes, excludes, o.negationPatternsFirst)
		if err != nil {
			return nil, nil, err
		}
		matcher = m
	}

	var groups []patterns.Group
	if o.filesYAML != "" {
		g, err := patterns.LoadLiteralYAML(o.filesYAML, o.negationPatternsFirst)
		if err != nil {
			return nil, nil, err
		}
		groups = g
	}

	return matcher, groups, nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func buildDiffConfig(o *options) diff.Config {
	cfg := diff.DefaultConfig()
	cfg.DiffFilter = o.diffFilter
	cfg.SkipSameSHA = o.skipSameSHA
	cfg.FailOnInitialDiffError = o.failOnInitialDiffError
	cfg.IncludeSubmodules = o.includeSubmodules
	cfg.SubmoduleFilter = o.submoduleFilter
	cfg.DirNamesMaxDepth = o.dirNamesMaxDepth
	cfg.FailOnSubmoduleDiffError = o.failOnSubmoduleDiffError
	cfg.AncestorLookupDepth = o.ancestorLookupDepth
	return cfg
}

func buildWorkflowConfig(o *options) workflow.Config {
	return workflow.Config{
		TrackWorkflowFailures:   o.trackWorkflowFailures,
		WaitForActiveWorkflows:  o.waitForActiveWorkflows,
		WorkflowLookbackCommits: o.workflowLookbackCommits,
		WorkflowSuccessLookback: o.workflowSuccessLookback,
		FailureTrackingLevel:    o.failureTrackingLevelKind(),
		WorkflowNameFilter:      o.workflowNameFilter,
		WorkflowMaxWaitSeconds:  o.workflowMaxWaitSeconds,
	}
}

func buildRepositoryProvider(o *options, token string) (repository.Provider, repository.TagLister) {
	if o.useRESTAPI {
		return repoREST.New(o.owner, o.repo, o.apiURL, token), nil
	}
	repo := gitexec.New(o.repoDir)
	return repo, repo
}

// render writes every §8.4 output surface: the GitHub Actions
// $GITHUB_OUTPUT heredoc keys, and optionally a standalone JSON matrix
// file under --output-dir.
func render(fs afero.Fs, o *options, in *interner.Interner, out *pipeline.Output) error {
	if githubOutputPath := os.Getenv("GITHUB_OUTPUT"); githubOutputPath != "" {
		f, err := os.OpenFile(githubOutputPath, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return errors.Wrap(err, "opening $GITHUB_OUTPUT")
		}
		defer f.Close()
		if err := writeOutputKeys(f, o, in, out); err != nil {
			return err
		}
	}

	if o.writeOutputFiles {
		matrix := output.BuildMatrix(out.Computed.GroupDeployDecisions, in, o.matrixSeparator, o.deployMatrixReason, o.deployMatrixConcur)
		b, err := json.Marshal(matrix)
		if err != nil {
			return err
		}
		if err := afero.WriteFile(fs, o.outputDir+"/deploy-matrix.json", b, 0o644); err != nil {
			return errors.Wrap(err, "writing deploy matrix")
		}
	}

	return nil
}

func writeOutputKeys(w *os.File, o *options, in *interner.Interner, out *pipeline.Output) error {
	joinPaths := func(handles []interner.Handle) string {
		parts := make([]string, 0, len(handles))
		for _, h := range handles {
			if s, ok := in.Resolve(h); ok {
				parts = append(parts, output.NormalizePathSeparator(s, o.usePosixPathSeparator))
			}
		}
		return strings.Join(parts, o.matrixSeparator)
	}
	allFiles := out.Result.AllFiles
	pathsOf := func(indices []uint32) []interner.Handle {
		hs := make([]interner.Handle, 0, len(indices))
		for _, idx := range indices {
			if int(idx) < len(allFiles) {
				hs = append(hs, allFiles[idx].Path)
			}
		}
		return hs
	}

	matrix := output.BuildMatrix(out.Computed.GroupDeployDecisions, in, o.matrixSeparator, o.deployMatrixReason, o.deployMatrixConcur)
	matrixJSON, err := json.Marshal(matrix)
	if err != nil {
		return err
	}

	anyChanged := out.Computed.AnyChanged()
	entries := [][2]string{
		{"matrix", string(matrixJSON)},
		{"has_changes", boolStr(anyChanged)},
		{"any_changed", boolStr(anyChanged)},
		{"changed_files", joinPaths(pathsOf(out.Result.FilteredIndices))},
		{"changed_files_count", fmt.Sprintf("%d", len(out.Result.FilteredIndices))},
		{"added_files", joinPaths(pathsOf(out.Computed.FilteredAdded))},
		{"modified_files", joinPaths(pathsOf(out.Computed.FilteredModified))},
		{"deleted_files", joinPaths(pathsOf(out.Computed.FilteredDeleted))},
	}
	if out.Result.CiDecision != nil {
		entries = append(entries,
			[2]string{"files_to_rebuild", joinPaths(out.Result.CiDecision.FilesToRebuild)},
			[2]string{"files_to_skip", joinPaths(out.Result.CiDecision.FilesToSkip)},
		)
	}
	if o.dirNames {
		dirOpts := dirnames.Options{
			MaxDepth:          o.dirNamesMaxDepth,
			ExcludeCurrentDir: o.dirNamesExcludeCurrentDir,
			IncludeFiles:      o.dirNamesIncludeFiles,
			DeletedOnlyDirs:   o.dirNamesDeletedOnlyDirs,
		}
		dirHandles := dirnames.Extract(in, allFiles, out.Result.FilteredIndices, dirOpts)
		entries = append(entries, [2]string{"dir_names", joinPaths(dirHandles)})
	}

	var diagMsgs []string
	for _, d := range out.Diagnostics {
		diagMsgs = append(diagMsgs, d.Message)
	}
	entries = append(entries, [2]string{"diagnostics", strings.Join(diagMsgs, "; ")})

	for _, e := range entries {
		if err := output.WriteKV(w, e[0], e[1]); err != nil {
			return err
		}
	}
	return nil
}

// observeGroupDecisions feeds the deploy-matrix synthesis result into
// the Prometheus counters exposed by --metrics-addr.
func observeGroupDecisions(in *interner.Interner, decisions []api.GroupDeployDecision) {
	for _, d := range decisions {
		key, _ := in.Resolve(d.Key)
		metrics.ObserveGroupDecision(key, d.Action.String())
		if d.ConcurrencyBlocked {
			metrics.ObserveConcurrencyBlocked(key)
		}
		if d.Reason != nil {
			for range d.FilesToRebuild {
				metrics.ObserveFileRebuilt(d.Reason.String())
			}
		}
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
