// Package api holds the data types shared by every stage of the
// lechange pipeline: changed files, workflow runs and jobs, CI
// decisions, and the per-group deploy decisions that make up the
// deploy matrix.
package api

import "github.com/lechange-action/lechange/pkg/interner"

// ChangeType enumerates how a path changed between two commits.
type ChangeType uint8

const (
	Added ChangeType = iota
	Copied
	Deleted
	Modified
	Renamed
	TypeChanged
	Unmerged
	Unknown
)

// ChangeTypeFromByte parses the first column of `git diff --name-status`.
func ChangeTypeFromByte(b byte) (ChangeType, bool) {
	switch b {
	case 'A':
		return Added, true
	case 'C':
		return Copied, true
	case 'D':
		return Deleted, true
	case 'M':
		return Modified, true
	case 'R':
		return Renamed, true
	case 'T':
		return TypeChanged, true
	case 'U':
		return Unmerged, true
	case 'X':
		return Unknown, true
	default:
		return Unknown, false
	}
}

func (c ChangeType) Byte() byte {
	switch c {
	case Added:
		return 'A'
	case Copied:
		return 'C'
	case Deleted:
		return 'D'
	case Modified:
		return 'M'
	case Renamed:
		return 'R'
	case TypeChanged:
		return 'T'
	case Unmerged:
		return 'U'
	default:
		return 'X'
	}
}

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "added"
	case Copied:
		return "copied"
	case Deleted:
		return "deleted"
	case Modified:
		return "modified"
	case Renamed:
		return "renamed"
	case TypeChanged:
		return "type_changed"
	case Unmerged:
		return "unmerged"
	default:
		return "unknown"
	}
}

// FileOrigin records which stages of the pipeline contributed a file to
// the final accounting. A file can be in the current diff, a previous
// failed workflow, and a previous successful workflow simultaneously.
type FileOrigin struct {
	InCurrentChanges bool
	InPreviousFailure bool
	InPreviousSuccess bool
}

// ChangedFile is one row of a diff, with its path interned for cheap
// comparison and membership testing throughout the pipeline.
type ChangedFile struct {
	Path            interner.Handle
	ChangeType      ChangeType
	PreviousPath    interner.Handle // zero value (interner.NoHandle) when not a rename/copy
	IsSymlink       bool
	SubmoduleDepth  uint32
	Origin          FileOrigin
}

// HasPreviousPath reports whether PreviousPath is meaningful. Per the
// data-model invariant, this holds iff ChangeType is Renamed or Copied.
func (f ChangedFile) HasPreviousPath() bool {
	return f.PreviousPath != interner.NoHandle
}

// WorkflowStatus is the lifecycle state of a CI workflow run.
type WorkflowStatus uint8

const (
	Queued WorkflowStatus = iota
	InProgress
	Completed
)

func (s WorkflowStatus) String() string {
	switch s {
	case Queued:
		return "queued"
	case InProgress:
		return "in_progress"
	default:
		return "completed"
	}
}

// WorkflowConclusion is only meaningful when WorkflowStatus is Completed.
type WorkflowConclusion uint8

const (
	Success WorkflowConclusion = iota
	Failure
	Cancelled
	Skipped
	TimedOut
	Neutral
)

func (c WorkflowConclusion) String() string {
	switch c {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Cancelled:
		return "cancelled"
	case Skipped:
		return "skipped"
	case TimedOut:
		return "timed_out"
	default:
		return "neutral"
	}
}

// WorkflowRun is a single execution of a CI workflow.
type WorkflowRun struct {
	ID         int64
	Name       interner.Handle
	Status     WorkflowStatus
	Conclusion *WorkflowConclusion
	Branch     interner.Handle
	HeadSHA    interner.Handle
	CreatedAt  int64 // unix seconds
}

// WorkflowJob is one job within a WorkflowRun.
type WorkflowJob struct {
	ID          int64
	Name        interner.Handle
	Status      WorkflowStatus
	Conclusion  *WorkflowConclusion
	RunID       int64
	StartedAt   int64
	CompletedAt int64
}

// WorkflowFailure pairs a failed run with the files attributed to it and
// the job names that failed. Jobs are fetched only under job-level
// failure tracking; at run level FailedJobs is empty.
type WorkflowFailure struct {
	Run        WorkflowRun
	Files      []interner.Handle
	FailedJobs []interner.Handle
}

// WorkflowSuccess pairs a succeeded run with the files attributed to it
// and its jobs, from which SuccessfulJobs is computed downstream. Jobs
// are fetched only under job-level failure tracking; at run level Jobs
// is empty.
type WorkflowSuccess struct {
	Run  WorkflowRun
	Files []interner.Handle
	Jobs []WorkflowJob
}

// FailureTrackingLevel selects whether workflow attribution happens at
// the whole-run granularity or per job, using job-key extraction.
type FailureTrackingLevel uint8

const (
	LevelRun FailureTrackingLevel = iota
	LevelJob
)

// RebuildReasonKind explains why a single file needs to be rebuilt.
type RebuildReasonKind uint8

const (
	ReasonNewChange RebuildReasonKind = iota
	ReasonPreviousFailure
	ReasonBothNewAndFailed
)

func (k RebuildReasonKind) String() string {
	switch k {
	case ReasonNewChange:
		return "new_change"
	case ReasonPreviousFailure:
		return "previous_failure"
	default:
		return "both_new_and_failed"
	}
}

// RebuildReason is the per-file audit trail backing a CiDecision.
type RebuildReason struct {
	File          interner.Handle
	Kind          RebuildReasonKind
	FailedRunID   *int64
	FailedJobName *interner.Handle
}

// CiDecision is the output of the latest-run-wins engine (stage E).
type CiDecision struct {
	FilesToRebuild  []interner.Handle
	FilesToSkip     []interner.Handle
	FailedJobs      []interner.Handle
	SuccessfulJobs  []interner.Handle
	RebuildReasons  []RebuildReason
}

// GroupDeployAction is the top-level verdict for one group.
type GroupDeployAction uint8

const (
	ActionDeploy GroupDeployAction = iota
	ActionSkip
)

func (a GroupDeployAction) String() string {
	if a == ActionDeploy {
		return "deploy"
	}
	return "skip"
}

// GroupDeployReason mirrors RebuildReasonKind at the group level.
type GroupDeployReason uint8

const (
	GroupReasonNewChange GroupDeployReason = iota
	GroupReasonPreviousFailure
	GroupReasonBothNewAndFailed
)

func (r GroupDeployReason) String() string {
	switch r {
	case GroupReasonNewChange:
		return "new_change"
	case GroupReasonPreviousFailure:
		return "previous_failure"
	default:
		return "both_new_and_failed"
	}
}

// GroupByKey selects how a discovered group's key string is derived.
type GroupByKey uint8

const (
	GroupByName GroupByKey = iota
	GroupByPath
	GroupByHash
)

// ParseGroupByKey parses the config string form, defaulting to GroupByName
// for anything unrecognized (matching the original's permissive parse).
func ParseGroupByKey(s string) GroupByKey {
	switch s {
	case "path":
		return GroupByPath
	case "hash":
		return GroupByHash
	default:
		return GroupByName
	}
}

// GroupResult is the set of all_files indices that matched one group's
// patterns, produced by stage C (group assignment).
type GroupResult struct {
	Key            interner.Handle
	MatchedIndices []uint32
}

// GroupDeployDecision is one row of the final deploy matrix.
type GroupDeployDecision struct {
	Key                  interner.Handle
	Action               GroupDeployAction
	Reason               *GroupDeployReason
	FilesToRebuild       []interner.Handle
	FilesToSkip          []interner.Handle
	TotalFiles           uint32
	ConcurrencyBlocked   bool
	ConcurrencyBlockedBy uint32
}

// DiagnosticSeverity classifies a Diagnostic; diagnostics never abort
// the pipeline regardless of severity.
type DiagnosticSeverity uint8

const (
	SeverityWarning DiagnosticSeverity = iota
	SeveritySoftError
)

// DiagnosticCategory is a closed set of the places a Diagnostic can come
// from, so front-ends can filter or group them without string matching.
type DiagnosticCategory uint8

const (
	CategoryInitialDiff DiagnosticCategory = iota
	CategorySubmoduleDiff
	CategorySkippedSameSHA
	CategoryShallowClone
	CategoryPatternLoad
	CategorySymlinkDetection
	CategoryWorkflowAPI
	CategoryAncestorRecovery
)

// Diagnostic is an informational message accumulated through the
// pipeline. It never halts execution.
type Diagnostic struct {
	Severity DiagnosticSeverity
	Category DiagnosticCategory
	Message  string
}

// ProcessedResult is the accumulated state threaded through stages A-F:
// the full file list plus the index partitions and group memberships
// computed along the way.
type ProcessedResult struct {
	AllFiles         []ChangedFile
	FilteredIndices  []uint32
	UnmatchedIndices []uint32
	PatternApplied   bool
	GroupResults     []GroupResult
	Additions        int
	Deletions        int
	Diagnostics      []Diagnostic
	CiDecision       *CiDecision
}
