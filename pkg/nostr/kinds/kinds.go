package kinds

import (
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
)

type T []kind.T

// FromIntSlice converts a slice of plain ints to a typed kind list.
func FromIntSlice(is []int) (k T) {
	for i := range is {
		k = append(k, kind.T(is[i]))
	}
	return
}

// ToIntSlice converts the typed kind list back to plain ints.
func (ar T) ToIntSlice() (is []int) {
	for i := range ar {
		is = append(is, ar[i].ToInt())
	}
	return
}

// Clone makes a new kinds.T with the same members. A nil list stays nil.
func (ar T) Clone() (c T) {
	if ar == nil {
		return
	}
	c = make(T, len(ar))
	copy(c, ar)
	return
}

// Contains returns true if the provided element is found in the kinds.T.
func (ar T) Contains(s kind.T) bool {
	for i := range ar {
		if ar[i] == s {
			return true
		}
	}
	return false
}

// Equals checks that the provided kinds.T matches.
func (ar T) Equals(t1 T) bool {
	if len(ar) != len(t1) {
		return false
	}
	for i := range ar {
		if ar[i] != t1[i] {
			return false
		}
	}
	return true
}
