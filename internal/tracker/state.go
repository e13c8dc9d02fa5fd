package tracker

import (
	"slippi-tracker/internal/domain"
)

// gameState is the live game: nil when idle, then detected, unconfirmed or
// confirmed, and ending while it is finalized.
type gameState interface {
	file() string
}

// detectedGame is a replay being written that has not been read yet.
type detectedGame struct {
	path string
}

// liveGame is an initialized game. Indexes are result slots; ports maps a
// slot to the player index used in frames.
type liveGame struct {
	path          string
	ports         [2]int
	yourIndex     int
	opponentIndex *int
	ranks         []domain.PlayerRank
}

// unconfirmedGame is a live game where neither code is a known viewer code.
// Player 1 is assumed to be the viewer until ConfirmCode.
type unconfirmedGame struct {
	liveGame
	pending pendingCodes
}

type confirmedGame struct {
	liveGame
}

type endingGame struct {
	path string
}

type pendingCodes struct {
	Player1Code   string
	Player2Code   string
	Player1UserID string
	Player2UserID string
	StartAt       string
}

func (g *detectedGame) file() string    { return g.path }
func (g *unconfirmedGame) file() string { return g.path }
func (g *confirmedGame) file() string   { return g.path }
func (g *endingGame) file() string      { return g.path }

// live returns the initialized part of g, if any.
func live(g gameState) *liveGame {
	switch g := g.(type) {
	case *unconfirmedGame:
		return &g.liveGame
	case *confirmedGame:
		return &g.liveGame
	}
	return nil
}

func (l *liveGame) setOpponent(player *domain.PlayerGameResults, ranks []domain.PlayerRank) {
	idx := player.OpponentPlayerIndex
	l.opponentIndex = &idx
	l.yourIndex = player.YourPlayerIndex
	l.ranks = ranks
}
