package diff

import (
	"strconv"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
)

// recoverAncestors implements stage B (§4.2): for each unmatched file,
// walk up to depth ancestor directories; if any ancestor directory
// already contains a filtered file, promote the unmatched file into
// filtered_indices. The filtered/unmatched sets remain disjoint.
func recoverAncestors(files []api.ChangedFile, in *interner.Interner, filtered, unmatched []uint32, depth int) (newFiltered, newUnmatched []uint32, diagnostics []api.Diagnostic) {
	filteredDirs := make(map[string]struct{})
	for _, idx := range filtered {
		p, _ := in.Resolve(files[idx].Path)
		for _, d := range dirAncestors(p, depth) {
			filteredDirs[d] = struct{}{}
		}
	}

	newFiltered = append(newFiltered, filtered...)
	promoted := 0
	for _, idx := range unmatched {
		p, _ := in.Resolve(files[idx].Path)
		recovered := false
		for _, d := range dirAncestors(p, depth) {
			if _, ok := filteredDirs[d]; ok {
				recovered = true
				break
			}
		}
		if recovered {
			newFiltered = append(newFiltered, idx)
			promoted++
		} else {
			newUnmatched = append(newUnmatched, idx)
		}
	}

	if promoted > 0 {
		diagnostics = append(diagnostics, api.Diagnostic{
			Severity: api.SeverityWarning,
			Category: api.CategoryAncestorRecovery,
			Message:  ancestorRecoveryMessage(promoted, depth),
		})
	}
	return newFiltered, newUnmatched, diagnostics
}

func ancestorRecoveryMessage(count, depth int) string {
	return "Recovered " + strconv.Itoa(count) + " file(s) via ancestor directory lookup (depth=" + strconv.Itoa(depth) + ")"
}
