package ingest

import (
	"strings"
	"sync"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/melee"
	"slippi-tracker/internal/repository"
)

// RivalDetector finds the viewer's own code: the one code two consecutive
// games have in common.
type RivalDetector struct {
	mu    sync.Mutex
	seen  map[string]bool
	found []Detected
}

// Detected is a code seen in two consecutive games and the user id it was
// played under in the first of them.
type Detected struct {
	Code   string `json:"code"`
	UserID string `json:"userId"`
}

func NewRivalDetector() *RivalDetector {
	return &RivalDetector{seen: map[string]bool{}}
}

// Observe compares two consecutive games and reports a newly detected code.
func (d *RivalDetector) Observe(prev, cur repository.CodePair) (Detected, bool) {
	shared := melee.IntersectFold(
		[]string{prev.Player1Code, prev.Player2Code},
		[]string{cur.Player1Code, cur.Player2Code},
	)
	if len(shared) != 1 || shared[0] == "" {
		return Detected{}, false
	}
	code := shared[0]

	d.mu.Lock()
	defer d.mu.Unlock()
	key := strings.ToUpper(code)
	if d.seen[key] {
		return Detected{}, false
	}
	d.seen[key] = true

	det := Detected{Code: code, UserID: prev.Player2UserID}
	if strings.EqualFold(prev.Player1Code, code) {
		det.UserID = prev.Player1UserID
	}
	d.found = append(d.found, det)
	return det, true
}

// Found returns every detected code in detection order.
func (d *RivalDetector) Found() []Detected {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Detected{}, d.found...)
}

func (d *RivalDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = map[string]bool{}
	d.found = nil
}

// PairOf returns the code columns of a game.
func PairOf(g *domain.GameResults) repository.CodePair {
	return repository.CodePair{
		Player1Code:   g.Player1Code,
		Player2Code:   g.Player2Code,
		Player1UserID: g.Player1UserID,
		Player2UserID: g.Player2UserID,
		StartAt:       g.StartAt,
	}
}
