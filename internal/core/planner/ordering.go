package planner

import (
	"fmt"
	"sort"

	"github.com/industware/composor/internal/core/domain"
)

// =============================================================================
// Application Ordering
// =============================================================================

// TopoSort orders applications so every dependency precedes its dependents,
// using Kahn's algorithm. Only dependencies inside the given set count as
// edges: a dependency outside the request is assumed already healthy.
//
// Ready applications are processed in id-ascending order, so the result is
// deterministic for a given input set. A cycle fails the whole request with
// domain.ErrCyclicDependency before anything executes.
func TopoSort(apps []domain.Application) ([]domain.Application, error) {
	if len(apps) == 0 {
		return nil, nil
	}

	appMap := make(map[string]domain.Application, len(apps))
	inDegree := make(map[string]int, len(apps))
	dependents := make(map[string][]string)

	for _, app := range apps {
		appMap[app.ID] = app
		inDegree[app.ID] = 0
	}
	for _, app := range apps {
		for _, dep := range app.DependsOn {
			if _, requested := appMap[dep]; !requested {
				continue
			}
			inDegree[app.ID]++
			dependents[dep] = append(dependents[dep], app.ID)
		}
	}

	var ready []string
	for id, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	result := make([]domain.Application, 0, len(apps))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		result = append(result, appMap[id])

		released := false
		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(result) < len(apps) {
		var cycle []string
		for id, degree := range inDegree {
			if degree > 0 {
				cycle = append(cycle, id)
			}
		}
		sort.Strings(cycle)
		return nil, fmt.Errorf("%w: %v", domain.ErrCyclicDependency, cycle)
	}

	return result, nil
}
