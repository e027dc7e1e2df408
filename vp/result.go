// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vp implements parallel validity-predicate dispatch: running
// every verifier's VP concurrently, aggregating their outcomes, and
// pricing the round via the block gas meter's parallel-fee policy.
package vp

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ledgerd/shellcore/address"
)

// Result aggregates the outcome of every VP run for one transaction.
type Result struct {
	Accepted     mapset.Set[address.Address]
	Rejected     mapset.Set[address.Address]
	ChangedKeys  []string
	GasUsed      []uint64
	HadHostError bool
}

// NewResult returns an empty Result ready for Merge.
func NewResult() Result {
	return Result{
		Accepted: mapset.NewThreadUnsafeSet[address.Address](),
		Rejected: mapset.NewThreadUnsafeSet[address.Address](),
	}
}

func (r Result) String() string {
	return fmt.Sprintf(
		"vp result: accepted=%v rejected=%v changed_keys=%v gas_used=%v host_error=%v",
		r.Accepted.ToSlice(), r.Rejected.ToSlice(), r.ChangedKeys, r.GasUsed, r.HadHostError,
	)
}

// Merge combines two results commutatively and associatively: set
// unions for accepted/rejected, concatenation for the order-insensitive
// changed_keys and gas_used multisets, disjunction for had_host_error.
func Merge(a, b Result) Result {
	out := Result{
		Accepted:     a.Accepted.Union(b.Accepted),
		Rejected:     a.Rejected.Union(b.Rejected),
		HadHostError: a.HadHostError || b.HadHostError,
	}
	out.ChangedKeys = append(append([]string{}, a.ChangedKeys...), b.ChangedKeys...)
	out.GasUsed = append(append([]uint64{}, a.GasUsed...), b.GasUsed...)
	return out
}

// SortedGasDescending returns a copy of GasUsed sorted from largest to
// smallest, the order the parallel-fee policy requires (spec.md §4.5).
func (r Result) SortedGasDescending() []uint64 {
	out := append([]uint64{}, r.GasUsed...)
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}
