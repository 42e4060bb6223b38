// Package diff partitions two sequences of comparable values into the
// elements unique to each side and the elements they share.
package diff

// Result holds the partition produced by Compare. Slices are never nil.
type Result[T comparable] struct {
	LeftOnly  []T
	RightOnly []T
	Intersect []T
}

// Compare splits left and right by membership. LeftOnly and Intersect keep
// the order of left, RightOnly keeps the order of right. Duplicates are kept
// as they occur, so a value repeated on the left appears repeatedly in
// whichever partition it lands in.
func Compare[T comparable](left, right []T) Result[T] {
	inRight := make(map[T]struct{}, len(right))
	for _, v := range right {
		inRight[v] = struct{}{}
	}
	inLeft := make(map[T]struct{}, len(left))
	for _, v := range left {
		inLeft[v] = struct{}{}
	}

	res := Result[T]{
		LeftOnly:  []T{},
		RightOnly: []T{},
		Intersect: []T{},
	}

	for _, v := range left {
		if _, ok := inRight[v]; ok {
			res.Intersect = append(res.Intersect, v)
		} else {
			res.LeftOnly = append(res.LeftOnly, v)
		}
	}

	for _, v := range right {
		if _, ok := inLeft[v]; !ok {
			res.RightOnly = append(res.RightOnly, v)
		}
	}

	return res
}

// Equal reports whether left and right hold the same set of values.
func (r Result[T]) Equal() bool {
	return len(r.LeftOnly) == 0 && len(r.RightOnly) == 0
}
