package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/and161185/pill-monitor/internal/model"
)

var hhmmRe = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// parseHHMM converts HH:MM into minutes since midnight.
func parseHHMM(s string) (int, error) {
	m := hhmmRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("bad time %q, want HH:MM", s)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return hh*60 + mm, nil
}

// findMedicine matches ref against ids first, then names case-insensitively.
// An ambiguous name is an error.
func findMedicine(ms []model.Medicine, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("need -med")
	}
	for _, m := range ms {
		if m.ID == ref {
			return m.ID, nil
		}
	}
	var hits []string
	for _, m := range ms {
		if strings.EqualFold(m.Name, ref) {
			hits = append(hits, m.ID)
		}
	}
	switch len(hits) {
	case 0:
		return "", fmt.Errorf("medicine %q not found", ref)
	case 1:
		return hits[0], nil
	default:
		return "", fmt.Errorf("medicine name %q is ambiguous, use the id", ref)
	}
}
