package graph

import (
	"sort"

	"github.com/pkgmill/pkgmill/pkg/types"
)

// Order flattens the build dependencies into a single build order.
// Packages become eligible once every dependency that is itself a
// node has been emitted; ties among simultaneously eligible packages
// break lexicographically so the order is stable across runs with
// the same input.  Edges to packages not in the mapping are ignored
// here; whether those are satisfied is the execution loop's call.
//
// A cycle returns an ErrCycle naming exactly the packages on it.
// Packages that merely depend on a cycle are not members; they stay
// in the returned order, placed after the cycle had it resolved, so
// the execution loop can skip them against their failed dependency
// rather than condemn them outright.
func Order(buildDeps map[string]map[string]struct{}) ([]string, error) {
	emitted := make(map[string]struct{}, len(buildDeps))
	order := make([]string, 0, len(buildDeps))
	var cycle []string

	for len(emitted) < len(buildDeps) {
		eligible := []string{}
		for name, deps := range buildDeps {
			if _, done := emitted[name]; done {
				continue
			}
			ready := true
			for d := range deps {
				if _, isNode := buildDeps[d]; !isNode {
					continue
				}
				if _, done := emitted[d]; !done {
					ready = false
					break
				}
			}
			if ready {
				eligible = append(eligible, name)
			}
		}

		if len(eligible) == 0 {
			// Stalled.  Pull the actual cycle members out of
			// the stuck set and resume; everything else in it
			// is just downstream of them.
			members := cycleMembers(buildDeps, emitted)
			cycle = append(cycle, members...)
			for _, name := range members {
				emitted[name] = struct{}{}
			}
			continue
		}

		sort.Strings(eligible)
		for _, name := range eligible {
			emitted[name] = struct{}{}
			order = append(order, name)
		}
	}

	if len(cycle) > 0 {
		sort.Strings(cycle)
		return order, types.ErrCycle{Members: cycle}
	}
	return order, nil
}

// cycleMembers returns the unemitted packages that sit on a
// dependency cycle: those that can reach themselves by following
// dependency edges through other unemitted packages.
func cycleMembers(buildDeps map[string]map[string]struct{}, emitted map[string]struct{}) []string {
	stuck := make(map[string]struct{})
	for name := range buildDeps {
		if _, done := emitted[name]; !done {
			stuck[name] = struct{}{}
		}
	}

	members := []string{}
	for name := range stuck {
		if reaches(buildDeps, stuck, name, name, make(map[string]struct{})) {
			members = append(members, name)
		}
	}
	sort.Strings(members)
	return members
}

func reaches(buildDeps map[string]map[string]struct{}, stuck map[string]struct{}, from, target string, seen map[string]struct{}) bool {
	for d := range buildDeps[from] {
		if _, in := stuck[d]; !in {
			continue
		}
		if d == target {
			return true
		}
		if _, visited := seen[d]; visited {
			continue
		}
		seen[d] = struct{}{}
		if reaches(buildDeps, stuck, d, target, seen) {
			return true
		}
	}
	return false
}
