package tree

import "sort"

// BackupDirName is the directory that holds backup copies inside a site root.
// It is always excluded from traversal.
const BackupDirName = "backup"

// Exclusions is a set of directory names skipped at any depth.
// Names are matched against a single path segment exactly.
type Exclusions map[string]struct{}

// NewExclusions returns the default exclusion set ({"backup"}) merged with
// names. Empty names are ignored and duplicates collapse.
func NewExclusions(names ...string) Exclusions {
	e := Exclusions{BackupDirName: {}}
	for _, n := range names {
		if n == "" {
			continue
		}
		e[n] = struct{}{}
	}
	return e
}

// Contains reports whether name is excluded.
func (e Exclusions) Contains(name string) bool {
	_, ok := e[name]
	return ok
}

// With returns a copy of e extended with names.
func (e Exclusions) With(names ...string) Exclusions {
	out := make(Exclusions, len(e)+len(names))
	for n := range e {
		out[n] = struct{}{}
	}
	for _, n := range names {
		if n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

// Names returns the excluded names sorted for stable logging.
func (e Exclusions) Names() []string {
	names := make([]string, 0, len(e))
	for n := range e {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
