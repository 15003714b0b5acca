package sim

// Partition splits the model into activity managers. Resource types are
// vertices of an undirected graph; types co-occurring in a workgroup, or used
// by different workgroups of the same activity, are connected. Each
// connected component becomes one manager owning its types and the
// activities that use them. Activities without any requirement get a
// singleton manager, as do types that no activity uses.
//
// Resources whose bindings fall into more than one manager are marked
// shared. Partition is one-shot; membership is immutable afterwards.
func Partition(model *Model, rng *PartitionedRNG) []*ActivityManager {
	adj := make(map[*ResourceType][]*ResourceType, len(model.types))
	link := func(a, b *ResourceType) {
		if a == b {
			return
		}
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}
	for _, a := range model.activities {
		types := a.resourceTypes()
		for i := 1; i < len(types); i++ {
			link(types[0], types[i])
		}
	}

	var managers []*ActivityManager
	newManager := func() *ActivityManager {
		m := &ActivityManager{id: len(managers)}
		m.rng = rng.ForSubsystem(SubsystemManager(m.id))
		managers = append(managers, m)
		return m
	}

	owner := make(map[*ResourceType]*ActivityManager, len(model.types))
	for _, root := range model.types {
		if owner[root] != nil {
			continue
		}
		m := newManager()
		// iterative depth-first search
		stack := []*ResourceType{root}
		owner[root] = m
		for len(stack) > 0 {
			t := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			m.types = append(m.types, t)
			t.addManager(m)
			for _, next := range adj[t] {
				if owner[next] == nil {
					owner[next] = m
					stack = append(stack, next)
				}
			}
		}
	}

	for _, a := range model.activities {
		types := a.resourceTypes()
		var m *ActivityManager
		if len(types) == 0 {
			m = newManager()
		} else {
			m = owner[types[0]]
		}
		a.manager = m
		m.activities = append(m.activities, a)
	}

	for _, r := range model.resources {
		seen := make(map[*ActivityManager]bool)
		for _, entry := range r.timetable {
			for _, t := range entry.Types {
				seen[owner[t]] = true
			}
		}
		r.shared = len(seen) > 1
	}
	return managers
}
