package module

import "maps"

// MergeStrategy decides how a module's template and the user's stored
// config combine.
type MergeStrategy string

const (
	// DefaultWithStoredExclusive overrides template keys from the stored
	// config and ignores stored keys the template does not know.
	DefaultWithStoredExclusive MergeStrategy = "default_with_stored_exclusive"
	// DefaultWithStoredMerged overrides template keys and keeps extra
	// stored keys.
	DefaultWithStoredMerged MergeStrategy = "default_with_stored_merged"
	// StoredOrDefault uses the stored config when present, else the template.
	StoredOrDefault MergeStrategy = "stored_or_default"
)

// Defaults describes a module's configuration surface.
type Defaults struct {
	Strategy     MergeStrategy
	Help         string
	HelpTemplate map[string]string
	Template     map[string]string
}

// Merge combines the template with stored according to the strategy.
// The result is always a fresh map.
func (d Defaults) Merge(stored map[string]string) map[string]string {
	switch d.Strategy {
	case StoredOrDefault:
		if len(stored) > 0 {
			return maps.Clone(stored)
		}
		return cloneOrEmpty(d.Template)
	case DefaultWithStoredMerged:
		out := cloneOrEmpty(d.Template)
		maps.Copy(out, stored)
		return out
	default:
		out := cloneOrEmpty(d.Template)
		for k := range out {
			if v, ok := stored[k]; ok {
				out[k] = v
			}
		}
		return out
	}
}

func cloneOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
