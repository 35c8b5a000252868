package core

// DefaultRetentionKeep is the number of datasets kept per user.
const DefaultRetentionKeep = 5

// Prune returns the dataset ids that fall outside the newest keep datasets.
//
// ids must be ordered newest first (created_at desc, id desc), as returned by
// Queries.ListDatasetIDs. Every id at index >= keep is returned, in the same
// order. A keep below zero is treated as zero.
func Prune(ids []int64, keep int) []int64 {
	if keep < 0 {
		keep = 0
	}
	if len(ids) <= keep {
		return nil
	}
	out := make([]int64, len(ids)-keep)
	copy(out, ids[keep:])
	return out
}
