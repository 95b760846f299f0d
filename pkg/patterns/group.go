package patterns

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/lcerror"
)

// Group is a named set of paths sharing a deployment lifecycle: a
// compiled Matcher plus the key under which it is reported.
type Group struct {
	Key     string
	Matcher *Matcher
}

// rawGroupFile is the literal `files_yaml` shape: a map of group name to
// either a single pattern or a list of patterns, where entries prefixed
// with `!` are excludes. Grounded on patterns/loader.rs's literal-group
// mode.
type rawGroupFile map[string]interface{}

// LoadLiteralYAML parses a `files_yaml` document into compiled Groups,
// sorted by name for deterministic iteration order.
func LoadLiteralYAML(content string, negationFirst bool) ([]Group, error) {
	var raw rawGroupFile
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		return nil, lcerror.Wrap(lcerror.KindYAML, err, "parsing files_yaml")
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]Group, 0, len(names))
	for _, name := range names {
		patterns, err := toPatternList(raw[name])
		if err != nil {
			return nil, lcerror.Wrap(lcerror.KindYAML, err, "group %q", name)
		}
		var includes, excludes []string
		for _, p := range patterns {
			if strings.HasPrefix(p, "!") {
				excludes = append(excludes, strings.TrimPrefix(p, "!"))
			} else {
				includes = append(includes, p)
			}
		}
		matcher, err := New(includes, excludes, negationFirst)
		if err != nil {
			return nil, err
		}
		groups = append(groups, Group{Key: name, Matcher: matcher})
	}
	return groups, nil
}

func toPatternList(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("pattern list entries must be strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("group value must be a string or list of strings, got %T", v)
	}
}

// LoadFromSourceFile reads newline-separated patterns from a plain text
// pattern file (`files_from_source_file`). Lines are trimmed; blank
// lines and lines starting with `#` are skipped.
func LoadFromSourceFile(fs afero.Fs, path string) ([]string, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, lcerror.Wrap(lcerror.KindIO, err, "reading pattern source file %s", path)
	}
	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, nil
}

// DiscoverGroupsByTemplate implements `files_group_by`: a template of the
// shape `prefix/{group}/suffix` containing exactly one `{group}`
// placeholder. The filesystem at prefix is scanned for entries matching
// the template, and one Group is produced per discovered directory,
// keyed according to keyMode. Discovered groups are sorted by name for
// determinism, grounded on patterns/loader.rs's GroupByTemplate.
func DiscoverGroupsByTemplate(fs afero.Fs, template string, keyMode api.GroupByKey, negationFirst bool) ([]Group, error) {
	prefix, suffix, err := splitTemplate(template)
	if err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(fs, prefix)
	if err != nil {
		return nil, lcerror.Wrap(lcerror.KindConfig, err, "scanning files_group_by prefix %q", prefix)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	groups := make([]Group, 0, len(names))
	for _, name := range names {
		dirPath := joinTemplatePath(prefix, name, suffix)
		pattern := dirPath
		if !strings.HasSuffix(pattern, "/**") {
			pattern = strings.TrimSuffix(pattern, "/") + "/**"
		}
		matcher, err := New([]string{pattern}, nil, negationFirst)
		if err != nil {
			return nil, err
		}
		groups = append(groups, Group{Key: groupKey(name, dirPath, keyMode), Matcher: matcher})
	}
	return groups, nil
}

// splitTemplate validates that template contains exactly one `{group}`
// placeholder and splits it into the literal prefix and suffix around it.
func splitTemplate(template string) (prefix, suffix string, err error) {
	count := strings.Count(template, "{group}")
	if count != 1 {
		return "", "", lcerror.New(lcerror.KindConfig, "files_group_by template must contain exactly one {group} placeholder, got %d in %q", count, template)
	}
	idx := strings.Index(template, "{group}")
	prefix = strings.TrimSuffix(template[:idx], "/")
	suffix = strings.TrimPrefix(template[idx+len("{group}"):], "/")
	return prefix, suffix, nil
}

func joinTemplatePath(prefix, name, suffix string) string {
	path := prefix + "/" + name
	if suffix != "" {
		path = path + "/" + suffix
	}
	return path
}

// groupKey derives the reported key for a discovered group per keyMode.
func groupKey(name, path string, keyMode api.GroupByKey) string {
	switch keyMode {
	case api.GroupByPath:
		return path
	case api.GroupByHash:
		h := fnv.New32a()
		_, _ = h.Write([]byte(name))
		return fmt.Sprintf("%08x", h.Sum32())
	default:
		return name
	}
}
