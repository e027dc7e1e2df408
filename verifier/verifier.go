// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package verifier derives, from the set of keys a transaction
// mutated, the set of accounts whose validity predicate must run
// (spec.md §4.4).
package verifier

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ledgerd/shellcore/address"
)

// Job is everything the VP engine needs to dispatch one verifier: the
// address and the subset of changed keys that concern it (possibly
// empty, if it was only declared via insert_verifier). The full
// verifier set is not part of a Job; the engine derives it from the
// whole job slice.
type Job struct {
	Address address.Address
	Keys    []address.Key
}

// Discover implements V = B ∪ {a | k ∈ K, a ∈ find_addresses(k)} and
// groups K_a = {k ∈ K | a ∈ find_addresses(k)} for every a ∈ V.
func Discover(base mapset.Set[address.Address], changedKeys []address.Key) []Job {
	byAddr := make(map[address.Address][]address.Key)
	for a := range base.Iter() {
		if _, ok := byAddr[a]; !ok {
			byAddr[a] = nil
		}
	}
	for _, k := range changedKeys {
		for _, a := range k.FindAddresses() {
			byAddr[a] = append(byAddr[a], k)
		}
	}

	jobs := make([]Job, 0, len(byAddr))
	for a, keys := range byAddr {
		jobs = append(jobs, Job{Address: a, Keys: keys})
	}
	// Deterministic order so dispatch scheduling is reproducible
	// across nodes even though accepted/rejected outcomes themselves
	// are aggregated commutatively.
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Address.Less(jobs[j].Address) })
	return jobs
}

// Set collects the addresses of a job slice into a mapset, used by
// callers that need the full verifier set V as dispatch context.
func Set(jobs []Job) mapset.Set[address.Address] {
	s := mapset.NewThreadUnsafeSet[address.Address]()
	for _, j := range jobs {
		s.Add(j.Address)
	}
	return s
}
