package model

import (
	"testing"
	"time"
)

func TestParseSpecialties(t *testing.T) {
	got, err := ParseSpecialties([]string{"orthodontics", "Oral Surgery", "Orthodontics"})
	if err != nil {
		t.Fatalf("ParseSpecialties: %v", err)
	}
	if len(got) != 2 || got[0] != Orthodontics || got[1] != OralSurgery {
		t.Fatalf("unexpected specialties %v", got)
	}

	if _, err := ParseSpecialties(nil); err == nil {
		t.Fatal("expected error for empty expertise")
	}
	if _, err := ParseSpecialties([]string{"Cardiology"}); err == nil {
		t.Fatal("expected error for unknown specialty")
	}
}

func TestOffHourCoversIsInclusive(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)
	o := OffHour{Start: start, End: end}

	cases := []struct {
		at   time.Time
		want bool
	}{
		{start, true},
		{end, true},
		{start.Add(10 * time.Hour), true},
		{start.Add(-time.Nanosecond), false},
		{end.Add(time.Minute), false},
	}
	for _, tc := range cases {
		if got := o.Covers(tc.at); got != tc.want {
			t.Errorf("Covers(%s) = %v, want %v", tc.at.Format(time.RFC3339), got, tc.want)
		}
	}
}

func TestOffHourAppliesTo(t *testing.T) {
	own := OffHour{OwnerID: "u1"}
	if !own.AppliesTo("u1") || own.AppliesTo("u2") {
		t.Fatal("owner scoped off-hour should only apply to its owner")
	}
	global := OffHour{IsForAllDentist: true}
	if !global.AppliesTo("anyone") {
		t.Fatal("global off-hour should apply to every provider")
	}
	if (OffHour{}).AppliesTo("") {
		t.Fatal("ownerless non-global off-hour should apply to nobody")
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole(" Admin "); err != nil || r != RoleAdmin {
		t.Fatalf("ParseRole admin = %q, %v", r, err)
	}
	if _, err := ParseRole("root"); err == nil {
		t.Fatal("expected unknown role error")
	}
	if RoleUser.Privileged() || !RoleDentist.Privileged() || !RoleAdmin.Privileged() {
		t.Fatal("unexpected privilege mapping")
	}
}
