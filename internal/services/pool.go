package services

import (
	"fmt"
	"slices"
	"strings"

	"luckydraw/internal/models"
)

// Pool is the event-wide inclusive range of ticket numbers.
type Pool struct {
	Min int
	Max int
}

// DefaultPool is used when no bounds are configured.
var DefaultPool = Pool{Min: 1, Max: 999}

// Validate checks that both bounds are positive and ordered.
func (p Pool) Validate() error {
	if p.Min < 1 {
		return invalid("minNumber", "must be a positive integer")
	}
	if p.Max < p.Min {
		return invalid("maxNumber", fmt.Sprintf("must be >= minNumber (%d)", p.Min))
	}
	return nil
}

// Size is the number of tickets in the pool.
func (p Pool) Size() int {
	return p.Max - p.Min + 1
}

// Candidates returns the pool numbers not present in used, ascending.
func (p Pool) Candidates(used map[int]struct{}) []int {
	out := make([]int, 0, max(p.Size()-len(used), 0))
	for n := p.Min; n <= p.Max; n++ {
		if _, taken := used[n]; !taken {
			out = append(out, n)
		}
	}
	return out
}

// usedNumbers is the set of numbers held by participants.
func usedNumbers(participants []models.Participant) map[int]struct{} {
	used := make(map[int]struct{}, len(participants))
	for _, p := range participants {
		used[p.Number] = struct{}{}
	}
	return used
}

// availableNumbers derives participant numbers minus winner numbers, ascending.
// It is always recomputed from the two record sets and never stored.
func availableNumbers(participants []models.Participant, winners []models.Winner) []int {
	won := make(map[int]struct{}, len(winners))
	for _, w := range winners {
		won[w.Number] = struct{}{}
	}
	out := make([]int, 0, len(participants))
	for _, p := range participants {
		if _, ok := won[p.Number]; !ok {
			out = append(out, p.Number)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func findEmail(participants []models.Participant, email string) (models.Participant, bool) {
	for _, p := range participants {
		if normalizeEmail(p.Email) == email {
			return p, true
		}
	}
	return models.Participant{}, false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail accepts exactly one "@" with non-empty local and domain parts.
func validateEmail(email string) error {
	if email == "" {
		return invalid("email", "must not be empty")
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return invalid("email", "must look like name@example.com")
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return invalid("email", "must not contain whitespace")
	}
	return nil
}
