package model

import "testing"

func TestSealFor(t *testing.T) {
	cases := map[Status]SealState{
		StatusAtSource:    SealOpen,
		StatusLoading:     SealOpen,
		StatusInTransit:   SealSealed,
		StatusReachedDest: SealSealed,
		StatusUnloading:   SealOpen,
		StatusDelayed:     SealOpen,
	}
	for status, want := range cases {
		if got := SealFor(status); got != want {
			t.Fatalf("SealFor(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestTankerValidate(t *testing.T) {
	valid := Tanker{TankerID: "TNK-001", OilVolumeLiters: 15000, MaxCapacityLiters: 20000}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid tanker rejected: %v", err)
	}

	cases := []struct {
		name string
		t    Tanker
	}{
		{"missing id", Tanker{MaxCapacityLiters: 20000}},
		{"zero capacity", Tanker{TankerID: "TNK-001"}},
		{"overfull", Tanker{TankerID: "TNK-001", OilVolumeLiters: 21000, MaxCapacityLiters: 20000}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.t.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
