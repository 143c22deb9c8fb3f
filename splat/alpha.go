package splat

// FilterAlpha returns the records whose opacity is strictly greater than threshold, in their
// original relative order, together with the indices they had in arr. A threshold of 0 drops
// only fully transparent records.
func FilterAlpha(arr *Array, threshold float64) (*Array, []int, error) {
	kept := make([]int, 0, arr.Len())
	arr.Iterate(func(i int, r Record) bool {
		if r.Opacity > threshold {
			kept = append(kept, i)
		}
		return true
	})
	out, err := arr.Subset(kept)
	if err != nil {
		return nil, nil, err
	}
	return out, kept, nil
}
