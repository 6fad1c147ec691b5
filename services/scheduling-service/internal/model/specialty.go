package model

import (
	"fmt"
	"strings"
)

type Specialty string

const (
	Orthodontics       Specialty = "Orthodontics"
	PediatricDentistry Specialty = "Pediatric Dentistry"
	Endodontics        Specialty = "Endodontics"
	Prosthodontics     Specialty = "Prosthodontics"
	Periodontics       Specialty = "Periodontics"
	OralSurgery        Specialty = "Oral Surgery"
	GeneralDentistry   Specialty = "General Dentistry"
)

var specialties = []Specialty{
	Orthodontics, PediatricDentistry, Endodontics, Prosthodontics,
	Periodontics, OralSurgery, GeneralDentistry,
}

// ParseSpecialties validates each value case-insensitively, drops duplicates and keeps input order.
func ParseSpecialties(values []string) ([]Specialty, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one area of expertise is required")
	}
	seen := map[Specialty]bool{}
	out := make([]Specialty, 0, len(values))
	for _, raw := range values {
		s, ok := lookupSpecialty(raw)
		if !ok {
			return nil, fmt.Errorf("unknown area of expertise %q", raw)
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

func lookupSpecialty(raw string) (Specialty, bool) {
	raw = strings.TrimSpace(raw)
	for _, s := range specialties {
		if strings.EqualFold(string(s), raw) {
			return s, true
		}
	}
	return "", false
}
