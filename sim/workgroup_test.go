package sim

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkGroup_Validation(t *testing.T) {
	m := NewModel()
	a := m.NewResourceType("a")
	tests := []struct {
		name     string
		duration DurationFunc
		needs    []Need
		wantErr  string
	}{
		{"nil duration", nil, nil, "nil duration"},
		{"nil type", Constant(1), []Need{{Type: nil, Count: 1}}, "nil resource type"},
		{"negative count", Constant(1), []Need{{Type: a, Count: -1}}, "negative count"},
		{"duplicate type", Constant(1), []Need{{Type: a, Count: 1}, {Type: a, Count: 2}}, "listed twice"},
		{"zero count", Constant(1), []Need{{Type: a, Count: 0}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wg, err := NewWorkGroup(0, tt.duration, tt.needs...)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.True(t, wg.Empty(), "zero counts are trivially feasible")
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestActivity_AddWorkGroup_Twice_ReturnsError(t *testing.T) {
	m := NewModel()
	first := m.NewActivity("first")
	second := m.NewActivity("second")
	wg := mustWorkGroup(t, first, 0, 1)

	err := second.AddWorkGroup(wg)

	assert.ErrorContains(t, err, `workgroup already belongs to activity "first"`)
	assert.Equal(t, first, wg.Activity())
	assert.Empty(t, second.WorkGroups())
}

func TestWorkGroup_Empty_IsTriviallyFeasible(t *testing.T) {
	m := NewModel()
	a := m.NewResourceType("a")
	act := m.NewActivity("think")
	wg := mustWorkGroup(t, act, 0, 1, Need{Type: a, Count: 0})

	res := wg.findSolution(testExecutor(1))

	assert.True(t, wg.Empty())
	assert.True(t, res.found)
	assert.Empty(t, res.caught)
}

func TestWorkGroup_FindSolution_TwoAOneB(t *testing.T) {
	// GIVEN a workgroup needing 2 A and 1 B with exactly that available
	m := NewModel()
	a := m.NewResourceType("a")
	b := m.NewResourceType("b")
	a1 := availableResource(m, "a1", a)
	a2 := availableResource(m, "a2", a)
	b1 := availableResource(m, "b1", b)
	act := m.NewActivity("job")
	wg := mustWorkGroup(t, act, 0, 10, Need{Type: a, Count: 2}, Need{Type: b, Count: 1})
	x := testExecutor(1)

	// WHEN the search runs
	res := wg.findSolution(x)

	// THEN it succeeds and leaves nothing available
	require.True(t, res.found)
	require.Len(t, res.caught, 3)
	assert.Zero(t, a.AvailableCount())
	assert.Zero(t, b.AvailableCount())
	for _, r := range []*Resource{a1, a2, b1} {
		assert.Equal(t, x, r.Holder())
		assert.Empty(t, r.bookings)
	}

	// AND releasing restores exactly 2 A and 1 B
	for _, c := range res.caught {
		assert.True(t, c.resource.Release())
	}
	assert.Equal(t, 2, a.AvailableCount())
	assert.Equal(t, 1, b.AvailableCount())
}

func TestWorkGroup_FindSolution_Infeasible_UndoesBookings(t *testing.T) {
	m := NewModel()
	a := m.NewResourceType("a")
	b := m.NewResourceType("b")
	a1 := availableResource(m, "a1", a)
	availableResource(m, "b1", b)
	act := m.NewActivity("job")
	wg := mustWorkGroup(t, act, 0, 10, Need{Type: a, Count: 1}, Need{Type: b, Count: 2})
	x := testExecutor(1)

	res := wg.findSolution(x)

	assert.False(t, res.found)
	assert.Nil(t, a1.Holder())
	assert.Empty(t, a1.bookings)
	assert.Equal(t, 1, a.AvailableCount())
	assert.Nil(t, x.currentZone())
}

func TestWorkGroup_FindSolution_BacktracksOverMultiRoleResource(t *testing.T) {
	// GIVEN r1 bound to A and B, r2 bound to A only
	m := NewModel()
	a := m.NewResourceType("a")
	b := m.NewResourceType("b")
	r1 := availableResource(m, "r1", a, b)
	r2 := availableResource(m, "r2", a)
	act := m.NewActivity("job")
	wg := mustWorkGroup(t, act, 0, 10, Need{Type: a, Count: 1}, Need{Type: b, Count: 1})

	// WHEN the search needs one of each
	res := wg.findSolution(testExecutor(1))

	// THEN r1 is saved for B and r2 serves as A
	require.True(t, res.found)
	require.Len(t, res.caught, 2)
	assert.Equal(t, caught{resource: r2, rtype: a}, res.caught[0])
	assert.Equal(t, caught{resource: r1, rtype: b}, res.caught[1])
	assert.Equal(t, a, r2.CurrentType())
	assert.Equal(t, b, r1.CurrentType())
}

func TestWorkGroup_FindSolution_SameResourceNotUsedTwice(t *testing.T) {
	m := NewModel()
	a := m.NewResourceType("a")
	b := m.NewResourceType("b")
	availableResource(m, "r1", a, b)
	act := m.NewActivity("job")
	wg := mustWorkGroup(t, act, 0, 10, Need{Type: a, Count: 1}, Need{Type: b, Count: 1})

	res := wg.findSolution(testExecutor(1))

	assert.False(t, res.found)
	assert.Equal(t, 1, a.AvailableCount())
	assert.Equal(t, 1, b.AvailableCount())
}

func TestWorkGroup_FindSolution_ConcurrentSharedContention(t *testing.T) {
	// GIVEN one shared resource and many concurrent searches for it
	m := NewModel()
	a := m.NewResourceType("a")
	r := availableResource(m, "r", a)
	r.shared = true
	act := m.NewActivity("job")
	wg := mustWorkGroup(t, act, 0, 10, Need{Type: a, Count: 1})

	const searchers = 16
	results := make([]searchResult, searchers)
	var done sync.WaitGroup
	for i := 0; i < searchers; i++ {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			results[i] = wg.findSolution(testExecutor(int64(i)))
		}(i)
	}
	done.Wait()

	// THEN exactly one search obtained it and no booking is left behind
	found := 0
	for _, res := range results {
		if res.found {
			found++
		}
	}
	assert.Equal(t, 1, found)
	assert.NotNil(t, r.Holder())
	assert.Empty(t, r.bookings)
}

func TestSearch_CheckCaughtResources_StaleBookingIsDetected(t *testing.T) {
	// GIVEN x has tentatively booked a shared resource
	m := NewModel()
	a := m.NewResourceType("a")
	r1 := availableResource(m, "r1", a)
	r1.shared = true
	act := m.NewActivity("job")
	wg := mustWorkGroup(t, act, 0, 10, Need{Type: a, Count: 1})
	x, y := testExecutor(1), testExecutor(2)
	s := newSearch(x, wg)
	require.True(t, s.find(0, 0))
	require.True(t, s.shared)

	// WHEN another executor commits the resource first
	require.True(t, r1.Commit(y, a))

	// THEN re-validation fails and undoing leaves no booking behind
	assert.False(t, s.checkCaughtResources())
	s.undoAll()
	assert.Empty(t, s.stack)
	assert.Empty(t, r1.bookings)
	assert.Equal(t, y, r1.Holder())
}

func TestWorkGroup_FindSolution_StaleBookingRestartsSearch(t *testing.T) {
	// GIVEN a shared resource r1 and an unshared alternative r2, and x's
	// conflict zone gated by a mutex the test holds
	m := NewModel()
	a := m.NewResourceType("a")
	r1 := availableResource(m, "r1", a)
	r1.shared = true
	r2 := availableResource(m, "r2", a)
	act := m.NewActivity("job")
	wg := mustWorkGroup(t, act, 0, 10, Need{Type: a, Count: 1})
	x, y := testExecutor(1), testExecutor(2)
	gate := &stackMutex{serial: zoneSerial.Add(1)}
	gate.Lock()
	x.ensureZone().stack = []*stackMutex{gate}

	result := make(chan searchResult, 1)
	go func() { result <- wg.findSolution(x) }()

	// WHEN x has booked r1 and waits for its zone, y takes r1
	require.Eventually(t, func() bool {
		r1.mu.Lock()
		defer r1.mu.Unlock()
		return len(r1.bookings) == 1 && r1.bookings[0] == x
	}, time.Second, time.Millisecond)
	require.True(t, r1.Commit(y, a))
	gate.Unlock()

	// THEN the search drops the stale booking and restarts on r2
	var res searchResult
	select {
	case res = <-result:
	case <-time.After(time.Second):
		t.Fatal("search did not finish")
	}
	require.True(t, res.found)
	require.Len(t, res.caught, 1)
	assert.Equal(t, r2, res.caught[0].resource)
	assert.Equal(t, x, r2.Holder())
	assert.Equal(t, y, r1.Holder())
	assert.Empty(t, r1.bookings)
	assert.Nil(t, x.currentZone())
}
