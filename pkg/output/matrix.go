package output

import (
	"strings"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
)

// MatrixInclude is one row of the deploy matrix's `include` array.
// action/reason/concurrency fields are all `omitempty`: §6.5 makes
// their presence conditional on the caller's include flags.
type MatrixInclude struct {
	Stack                string `json:"stack"`
	Files                string `json:"files"`
	Count                int    `json:"count"`
	Action               string `json:"action,omitempty"`
	Reason               string `json:"reason,omitempty"`
	ConcurrencyBlocked   *bool  `json:"concurrency_blocked,omitempty"`
	ConcurrencyBlockedBy *uint32 `json:"concurrency_blocked_by,omitempty"`
}

// Matrix is the top-level `{"include": [...]}` shape GitHub Actions'
// matrix strategy expects.
type Matrix struct {
	Include []MatrixInclude `json:"include"`
}

// BuildMatrix renders the group deploy decisions into the matrix shape.
// With includeReason=false, skip decisions are omitted entirely (they
// carry no files to rebuild); with includeReason=true every decision,
// deploy or skip, is emitted.
func BuildMatrix(decisions []api.GroupDeployDecision, in *interner.Interner, separator string, includeReason, includeConcurrency bool) Matrix {
	if separator == "" {
		separator = " "
	}

	var out Matrix
	for _, d := range decisions {
		if !includeReason && d.Action == api.ActionSkip {
			continue
		}

		files := d.FilesToRebuild
		if d.Action == api.ActionSkip {
			files = d.FilesToSkip
		}

		row := MatrixInclude{
			Stack: resolveOr(in, d.Key, ""),
			Files: joinHandles(in, files, separator),
			Count: len(files),
		}
		if includeReason {
			row.Action = d.Action.String()
			if d.Reason != nil {
				row.Reason = d.Reason.String()
			}
		}
		if includeConcurrency {
			blocked := d.ConcurrencyBlocked
			row.ConcurrencyBlocked = &blocked
			if blocked {
				by := d.ConcurrencyBlockedBy
				row.ConcurrencyBlockedBy = &by
			}
		}
		out.Include = append(out.Include, row)
	}
	return out
}

func resolveOr(in *interner.Interner, h interner.Handle, fallback string) string {
	if s, ok := in.Resolve(h); ok {
		return s
	}
	return fallback
}

func joinHandles(in *interner.Interner, handles []interner.Handle, sep string) string {
	if len(handles) == 0 {
		return ""
	}
	parts := make([]string, len(handles))
	for i, h := range handles {
		parts[i] = resolveOr(in, h, "")
	}
	return strings.Join(parts, sep)
}
