// Package replay describes the decoded shape of a replay file and the
// parser collaborator that produces it. The binary format itself is decoded
// by an external program.
package replay

import (
	"context"
	"encoding/json"
	"strconv"
)

type Mode int

const (
	// Full decodes the whole file including the frame statistics blob.
	Full Mode = iota
	// Live decodes whatever has been written so far and skips statistics.
	Live
)

func (m Mode) String() string {
	if m == Live {
		return "live"
	}
	return "full"
}

type Parser interface {
	Parse(ctx context.Context, path string, mode Mode) (*Decoded, error)
}

type Decoded struct {
	Replay
	Stats json.RawMessage `json:"stats,omitempty"`
}

type Replay struct {
	Settings  *Settings   `json:"settings"`
	Metadata  *Metadata   `json:"metaData"`
	Winners   []Placement `json:"winners"`
	GameEnd   *GameEnd    `json:"gameEnd"`
	LastFrame *Frame      `json:"lastFrame"`
}

type Settings struct {
	StageID   int              `json:"stageId"`
	Players   []PlayerSettings `json:"players"`
	MatchInfo *MatchInfo       `json:"matchInfo,omitempty"`
}

type MatchInfo struct {
	MatchID          string `json:"matchId"`
	GameNumber       int    `json:"gameNumber"`
	TiebreakerNumber int    `json:"tiebreakerNumber"`
}

type PlayerSettings struct {
	PlayerIndex    int    `json:"playerIndex"`
	Port           int    `json:"port"`
	CharacterID    int    `json:"characterId"`
	CharacterColor *int   `json:"characterColor"`
	DisplayName    string `json:"displayName"`
	ConnectCode    string `json:"connectCode"`
	UserID         string `json:"userId"`
}

type Metadata struct {
	StartAt  string `json:"startAt"`
	LastFrame int   `json:"lastFrame"`
	PlayedOn string `json:"playedOn"`
}

// End methods reported by the game.
const (
	EndUnresolved = 0
	EndTime       = 1
	EndGame       = 2
	EndResolved   = 3
	EndNoContest  = 7
)

type GameEnd struct {
	GameEndMethod      int  `json:"gameEndMethod"`
	LRASInitiatorIndex *int `json:"lrasInitiatorIndex"`
}

func (g *GameEnd) MethodName() string {
	switch g.GameEndMethod {
	case EndUnresolved:
		return "unresolved"
	case EndTime:
		return "time"
	case EndGame:
		return "game"
	case EndResolved:
		return "resolved"
	case EndNoContest:
		return "no contest"
	}
	return "unknown(" + strconv.Itoa(g.GameEndMethod) + ")"
}

type Placement struct {
	PlayerIndex int `json:"playerIndex"`
	Position    int `json:"position"`
}

type Frame struct {
	Frame   int                     `json:"frame"`
	Players map[string]*FramePlayer `json:"players"`
}

type FramePlayer struct {
	Post *PostFrame `json:"post"`
}

type PostFrame struct {
	PlayerIndex     int      `json:"playerIndex"`
	StocksRemaining *int     `json:"stocksRemaining"`
	Percent         *float64 `json:"percent"`
}

// Post returns the post-frame data for the given player index.
func (f *Frame) Post(playerIndex int) *PostFrame {
	if f == nil {
		return nil
	}
	for _, p := range f.Players {
		if p != nil && p.Post != nil && p.Post.PlayerIndex == playerIndex {
			return p.Post
		}
	}
	return nil
}

// ValidPlayers reports whether the replay has exactly two players and every
// player carries a connect code.
func (r *Replay) ValidPlayers() bool {
	if r == nil || r.Settings == nil || len(r.Settings.Players) != 2 {
		return false
	}
	for _, p := range r.Settings.Players {
		if p.ConnectCode == "" {
			return false
		}
	}
	return true
}
