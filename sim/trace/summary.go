package trace

// Summary aggregates statistics from recorded notifications.
type Summary struct {
	TotalRecords        int
	ElementsCreated     int
	ElementsFinished    int
	ActivitiesStarted   int
	ActivitiesFinished  int
	Interruptions       int
	ExpiredResources    int
	LastClock           int64
	StartsPerActivity   map[string]int // activity name → number of starts
	AcquiredPerResource map[string]int // resource name → number of acquisitions
}

// Summarize computes aggregate statistics from a slice of records.
// Safe for nil or empty input (returns zero-value fields).
func Summarize(records []Record) *Summary {
	summary := &Summary{
		StartsPerActivity:   make(map[string]int),
		AcquiredPerResource: make(map[string]int),
	}
	summary.TotalRecords = len(records)
	for _, rec := range records {
		if rec.Clock > summary.LastClock {
			summary.LastClock = rec.Clock
		}
		switch rec.Kind {
		case KindElementCreated:
			summary.ElementsCreated++
		case KindElementFinished:
			summary.ElementsFinished++
		case KindActivityStarted:
			summary.ActivitiesStarted++
			summary.StartsPerActivity[rec.Activity]++
		case KindActivityFinished:
			summary.ActivitiesFinished++
		case KindActivityInterrupted:
			summary.Interruptions++
		case KindResourceExpired:
			summary.ExpiredResources++
		case KindResourceAcquired:
			summary.AcquiredPerResource[rec.Resource]++
		}
	}
	return summary
}
