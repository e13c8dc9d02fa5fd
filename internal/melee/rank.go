package melee

import (
	"fmt"
	"math"

	"slippi-tracker/internal/domain"
)

const (
	GrandMasterMin     = 2192
	Master3Min         = 2350
	Master2Min         = 2275
	Master1Min         = 2192
	Diamond3Min        = 2137
	Diamond2Min        = 2074
	Diamond1Min        = 2004
	Plat3Min           = 1928
	Plat2Min           = 1843
	Plat1Min           = 1752
	Gold3Min           = 1654
	Gold2Min           = 1549
	Gold1Min           = 1436
	Silver3Min         = 1316
	Silver2Min         = 1189
	Silver1Min         = 1055
	Bronze3Min         = 914
	Bronze2Min         = 766
	Bronze1Min         = 500
	PlacementThreshold = 300
	MaxElo             = 999999
)

type tier struct {
	name string
	min  float64
}

// tiers is ordered from the highest threshold down.
var tiers = []tier{
	{"Master 3", Master3Min},
	{"Master 2", Master2Min},
	{"Master 1", Master1Min},
	{"Diamond 3", Diamond3Min},
	{"Diamond 2", Diamond2Min},
	{"Diamond 1", Diamond1Min},
	{"Plat 3", Plat3Min},
	{"Plat 2", Plat2Min},
	{"Plat 1", Plat1Min},
	{"Gold 3", Gold3Min},
	{"Gold 2", Gold2Min},
	{"Gold 1", Gold1Min},
	{"Silver 3", Silver3Min},
	{"Silver 2", Silver2Min},
	{"Silver 1", Silver1Min},
	{"Bronze 3", Bronze3Min},
	{"Bronze 2", Bronze2Min},
}

// RankFromElo names the tier for elo. A placement inside the threshold with
// master-level elo is Grand Master.
func RankFromElo(elo float64, placement *int) string {
	if placement != nil && *placement > 0 && *placement <= PlacementThreshold && elo >= GrandMasterMin {
		return "Grand Master"
	}
	for _, t := range tiers {
		if elo >= t.min {
			return t.name
		}
	}
	return "Bronze 1"
}

type EloRange struct {
	Min float64
	Max float64
}

// EloRangeForRank returns the inclusive elo bounds of a tier name.
func EloRangeForRank(rank string) (EloRange, error) {
	switch rank {
	case "Grand Master":
		return EloRange{GrandMasterMin, MaxElo}, nil
	case "Master 3":
		return EloRange{Master3Min, MaxElo}, nil
	case "Bronze 1":
		return EloRange{0, Bronze2Min - 1}, nil
	}
	for i, t := range tiers {
		if t.name == rank && i > 0 {
			return EloRange{t.min, tiers[i-1].min - 1}, nil
		}
	}
	return EloRange{}, fmt.Errorf("invalid rank: %s", rank)
}

type EloResult struct {
	Player1 float64
	Player2 float64
}

// CalculateElo applies one game between two ratings. result is player 1's
// score: 1 win, 0.5 draw, 0 loss.
func CalculateElo(player1, player2, result, kFactor float64) EloResult {
	expected1 := 1 / (1 + math.Pow(10, (player2-player1)/400))
	expected2 := 1 / (1 + math.Pow(10, (player1-player2)/400))

	p1 := player1 + kFactor*(result-expected1)
	p2 := player2 + kFactor*((1-result)-expected2)

	return EloResult{
		Player1: math.Max(300, math.Round(p1)),
		Player2: math.Max(300, math.Round(p2)),
	}
}

// HasValidRank reports whether a rank carries a win/loss record. Either
// count being present is enough, including 0/0.
func HasValidRank(r *domain.PlayerRank) bool {
	if r == nil {
		return false
	}
	return r.Wins != nil || r.Losses != nil
}
