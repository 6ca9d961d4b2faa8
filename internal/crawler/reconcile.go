package crawler

// Diff is the reconciliation outcome: four pairwise-disjoint sets whose
// union covers filesystem_keys ∪ index_keys.
type Diff struct {
	Add    []string
	Update []string
	Delete []string
	Skip   []string
}

// Reconcile diffs the index snapshot against the filesystem snapshot,
// both keyed by path with modified-time millis as values. full forces
// every surviving path into Update regardless of timestamps. Content
// hashes are consulted later, during processing, never here.
func Reconcile(index, fs map[string]int64, full bool) Diff {
	var d Diff
	for path := range index {
		if _, ok := fs[path]; !ok {
			d.Delete = append(d.Delete, path)
		}
	}
	for path, fsMtime := range fs {
		idxMtime, ok := index[path]
		switch {
		case !ok:
			d.Add = append(d.Add, path)
		case full || fsMtime > idxMtime:
			d.Update = append(d.Update, path)
		default:
			d.Skip = append(d.Skip, path)
		}
	}
	return d
}
