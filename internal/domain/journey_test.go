package domain

import (
	"errors"
	"testing"

	"github.com/kr/pretty"
)

func trainJourney() Journey {
	rec := ItineraryRecord{
		DepartureDate: 10000,
		ArrivalDate:   17200,
		JourneySteps: []StepRecord{
			{
				Type:              "Train",
				Label:             "Paris - Lyon",
				DistanceM:         450000,
				DurationS:         7200,
				PriceEUR:          []float64{45},
				GCO2:              1500,
				DeparturePoint:    NewPoint(48.84, 2.37),
				ArrivalPoint:      NewPoint(45.70, 4.80),
				DepartureStopName: "Paris Gare de Lyon",
				ArrivalStopName:   "Lyon Part-Dieu",
				DepartureDate:     10000,
				ArrivalDate:       17200,
			},
		},
	}
	return rec.ToJourney(0)
}

func walk(distance, duration float64, from, to Point, departure int64) Step {
	return Step{
		Type:           ModeWalk,
		Label:          "walk",
		DistanceM:      distance,
		DurationS:      duration,
		DeparturePoint: from,
		ArrivalPoint:   to,
		DepartureDate:  departure,
		ArrivalDate:    departure + int64(duration),
		BikeFriendly:   true,
	}
}

func checkDenseIDs(t *testing.T, j Journey) {
	t.Helper()
	for i, s := range j.Steps {
		if s.ID != i {
			t.Errorf("step %d has id %d", i, s.ID)
		}
	}
}

func TestRecomputeSumsSteps(t *testing.T) {
	j := Journey{Steps: []Step{
		{Type: ModeWalk, DistanceM: 100, DurationS: 60, GCO2: 0, BikeFriendly: true},
		{Type: ModeWait, DurationS: 900, BikeFriendly: true},
		{Type: ModeTrain, DistanceM: 1000, DurationS: 600, PriceEUR: []float64{10, 2.5}, GCO2: 30, BikeFriendly: true},
		{Type: ModeBus, DistanceM: 500, DurationS: 300, PriceEUR: []float64{1.5}, GCO2: 12},
		{Type: ModeTrain, DistanceM: 2000, DurationS: 1200, PriceEUR: []float64{20}, GCO2: 60, BikeFriendly: true},
	}}
	j.Recompute()

	if j.TotalDistance != 3600 {
		t.Errorf("expected total distance 3600, got %v", j.TotalDistance)
	}
	if j.TotalDuration != 3060 {
		t.Errorf("expected total duration 3060, got %v", j.TotalDuration)
	}
	if j.TotalPrice != 34 {
		t.Errorf("expected total price 34, got %v", j.TotalPrice)
	}
	if j.TotalGCO2 != 102 {
		t.Errorf("expected total gCO2 102, got %v", j.TotalGCO2)
	}
	if j.BikeFriendly {
		t.Error("expected journey with a non bike friendly step not to be bike friendly")
	}

	want := []Mode{ModeWalk, ModeTrain, ModeBus}
	if diff := pretty.Diff(want, j.Category); len(diff) > 0 {
		t.Errorf("unexpected category: %v", diff)
	}
}

func TestSpliceBothEnds(t *testing.T) {
	j := trainJourney()
	origin := walk(600, 300, NewPoint(48.85, 2.35), NewPoint(48.84, 2.37), 9000)
	destination := walk(900, 400, NewPoint(45.70, 4.80), NewPoint(45.75, 4.85), 17200)

	if err := j.Splice([]Step{origin}, true); err != nil {
		t.Fatalf("splice start: %v", err)
	}
	if err := j.Splice([]Step{destination}, false); err != nil {
		t.Fatalf("splice end: %v", err)
	}
	j.Recompute()

	if len(j.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(j.Steps))
	}
	checkDenseIDs(t, j)

	modes := []Mode{j.Steps[0].Type, j.Steps[1].Type, j.Steps[2].Type}
	if diff := pretty.Diff([]Mode{ModeWalk, ModeTrain, ModeWalk}, modes); len(diff) > 0 {
		t.Errorf("unexpected step order: %v", diff)
	}
	if j.TotalDistance != 451500 {
		t.Errorf("expected total distance 451500, got %v", j.TotalDistance)
	}
	if j.TotalDuration != 7900 {
		t.Errorf("expected total duration 7900, got %v", j.TotalDuration)
	}
	if j.DepartureDate != 10000-300 {
		t.Errorf("expected departure shifted to %d, got %d", 10000-300, j.DepartureDate)
	}
	if j.ArrivalDate != 17200+400 {
		t.Errorf("expected arrival shifted to %d, got %d", 17200+400, j.ArrivalDate)
	}
	if j.Steps[0].ArrivalDate != 10000 {
		t.Errorf("expected origin walk to end at train departure, got %d", j.Steps[0].ArrivalDate)
	}
	for i := 1; i < len(j.Steps); i++ {
		if j.Steps[i].DepartureDate < j.Steps[i-1].DepartureDate {
			t.Errorf("step %d departs before step %d", i, i-1)
		}
	}
}

func TestSpliceTwiceIsRejected(t *testing.T) {
	j := trainJourney()
	gap := []Step{walk(600, 300, NewPoint(48.85, 2.35), NewPoint(48.84, 2.37), 9000)}

	if err := j.Splice(gap, true); err != nil {
		t.Fatalf("first splice: %v", err)
	}
	departure := j.DepartureDate

	err := j.Splice(gap, true)
	if !errors.Is(err, ErrAlreadySpliced) {
		t.Errorf("expected ErrAlreadySpliced, got %v", err)
	}
	if j.DepartureDate != departure {
		t.Errorf("departure moved on rejected splice: %d -> %d", departure, j.DepartureDate)
	}
	if len(j.Steps) != 2 {
		t.Errorf("expected 2 steps after rejected splice, got %d", len(j.Steps))
	}
}

func TestSpliceEmptyIsNoop(t *testing.T) {
	j := trainJourney()
	before := j

	if err := j.Splice(nil, true); err != nil {
		t.Fatalf("splice: %v", err)
	}
	if err := j.Splice([]Step{}, false); err != nil {
		t.Fatalf("splice: %v", err)
	}
	j.Recompute()

	if diff := pretty.Diff(before, j); len(diff) > 0 {
		t.Errorf("journey changed by empty splice: %v", diff)
	}
}

func TestSpliceDoesNotShareGapSteps(t *testing.T) {
	gap := []Step{walk(600, 300, NewPoint(48.85, 2.35), NewPoint(48.84, 2.37), 9000)}
	gap[0].PriceEUR = []float64{1}

	a := trainJourney()
	b := trainJourney()
	b.DepartureDate = 20000

	if err := a.Splice(gap, true); err != nil {
		t.Fatal(err)
	}
	if err := b.Splice(gap, true); err != nil {
		t.Fatal(err)
	}

	a.Steps[0].PriceEUR[0] = 99
	if b.Steps[0].PriceEUR[0] != 1 || gap[0].PriceEUR[0] != 1 {
		t.Error("expected spliced steps to be independent copies")
	}
	if a.Steps[0].DepartureDate == b.Steps[0].DepartureDate {
		t.Error("expected gap steps to be retimed per journey")
	}
	if gap[0].DepartureDate != 9000 {
		t.Errorf("source gap step was retimed: %d", gap[0].DepartureDate)
	}
}

func TestFillStopNames(t *testing.T) {
	j := Journey{Steps: []Step{
		{Type: ModeWalk},
		{Type: ModeTrain, DepartureStopName: "Paris Gare de Lyon", ArrivalStopName: "Lyon Part-Dieu"},
		{Type: ModeWalk},
	}}
	j.FillStopNames("Home", "Hotel")

	got := [][2]string{}
	for _, s := range j.Steps {
		got = append(got, [2]string{s.DepartureStopName, s.ArrivalStopName})
	}
	want := [][2]string{
		{"Home", "Paris Gare de Lyon"},
		{"Paris Gare de Lyon", "Lyon Part-Dieu"},
		{"Lyon Part-Dieu", "Hotel"},
	}
	if diff := pretty.Diff(want, got); len(diff) > 0 {
		t.Errorf("unexpected stop names: %v", diff)
	}
}

func TestFillStopNamesAcrossBlankRun(t *testing.T) {
	j := Journey{Steps: []Step{
		{Type: ModeTrain, DepartureStopName: "A", ArrivalStopName: "B"},
		{Type: ModeWait},
		{Type: ModeBus},
	}}
	j.FillStopNames("", "")

	if j.Steps[1].DepartureStopName != "B" || j.Steps[1].ArrivalStopName != "B" {
		t.Errorf("expected wait step to be labelled B, got %q/%q", j.Steps[1].DepartureStopName, j.Steps[1].ArrivalStopName)
	}
	if j.Steps[2].DepartureStopName != "B" {
		t.Errorf("expected bus to depart from B, got %q", j.Steps[2].DepartureStopName)
	}
}
