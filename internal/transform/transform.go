// Package transform turns decoded replays into stored results and projects
// stored results onto a viewer.
package transform

import (
	"errors"
	"hash/fnv"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/melee"
	"slippi-tracker/internal/replay"
)

var ErrNotTwoPlayers = errors.New("game did not have 2 players")

// frameMillis is the duration of one frame at 60 fps.
const frameMillis = 16.66667

// FromReplay validates the player count before transforming.
func FromReplay(raw *replay.Replay, path string, fallbackStart time.Time) (domain.GameResults, error) {
	if raw == nil || raw.Settings == nil || len(raw.Settings.Players) != 2 {
		return domain.GameResults{}, ErrNotTwoPlayers
	}
	return ToGameResults(raw, path, fallbackStart), nil
}

// ToGameResults builds the symmetric record for a two player replay.
// fallbackStart is used when the replay carries no start time.
func ToGameResults(raw *replay.Replay, path string, fallbackStart time.Time) domain.GameResults {
	settings := raw.Settings
	if settings == nil {
		settings = &replay.Settings{}
	}

	matchID := ""
	gameNumber := 0
	if settings.MatchInfo != nil {
		matchID = settings.MatchInfo.MatchID
		gameNumber = settings.MatchInfo.GameNumber
	}
	if gameNumber == 0 {
		gameNumber = fallbackGameNumber(path)
	}
	if matchID == "" && raw.Metadata != nil {
		matchID = raw.Metadata.StartAt
	}
	if matchID == "" {
		matchID = "slp-" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	var matchLength int64
	if raw.LastFrame != nil && raw.LastFrame.Frame != 0 {
		matchLength = int64(math.Floor(float64(raw.LastFrame.Frame) * frameMillis))
	}

	game := domain.GameResults{
		Results: domain.Results{
			Raw:         raw,
			MatchID:     matchID,
			GameNumber:  gameNumber,
			SlpFilePath: path,
			SlpFile:     filepath.Base(path),
			StartAt:     startAt(raw.Metadata, fallbackStart),
			StageID:     settings.StageID,
			Type:        gameType(matchID, path),
			Notes:       []domain.MatchNote{},
			MatchLength: matchLength,
		},
	}

	for i := 0; i < 2 && i < len(settings.Players); i++ {
		game.SetSlot(i, slotFor(raw, settings.Players[i]))
	}
	return game
}

func slotFor(raw *replay.Replay, p replay.PlayerSettings) domain.Slot {
	s := domain.Slot{
		Ranks:     []domain.PlayerRank{},
		UserID:    p.UserID,
		Character: p.CharacterID,
		Nickname:  p.DisplayName,
		Code:      p.ConnectCode,
	}
	if p.CharacterColor != nil && *p.CharacterColor >= 0 && *p.CharacterColor < melee.PaletteSize(p.CharacterID) {
		s.CharacterColor = *p.CharacterColor
	}
	if len(raw.Winners) > 0 {
		s.Won = raw.Winners[0].PlayerIndex == p.PlayerIndex
	}
	if end := raw.GameEnd; end != nil && end.GameEndMethod == replay.EndNoContest {
		s.Quit = end.LRASInitiatorIndex != nil && *end.LRASInitiatorIndex == p.PlayerIndex
	}
	if post := raw.LastFrame.Post(p.PlayerIndex); post != nil {
		if post.StocksRemaining != nil {
			s.Stocks = *post.StocksRemaining
		}
		if post.Percent != nil {
			s.Percent = *post.Percent
		}
	}
	return s
}

// gameType reads the queue from the match id or path. "unranked" is checked
// first since it contains "ranked".
func gameType(matchID, path string) domain.GameType {
	switch {
	case strings.Contains(matchID, "unranked") || strings.Contains(path, "unranked"):
		return domain.GameTypeUnranked
	case strings.Contains(matchID, "ranked") || strings.Contains(path, "ranked"):
		return domain.GameTypeRanked
	}
	return domain.GameTypeDirect
}

func startAt(meta *replay.Metadata, fallback time.Time) string {
	if meta != nil && meta.StartAt != "" {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z0700", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, meta.StartAt); err == nil {
				return strconv.FormatInt(t.UnixMilli(), 10)
			}
		}
	}
	return strconv.FormatInt(fallback.UnixMilli(), 10)
}

// fallbackGameNumber derives a stable negative number from the path.
func fallbackGameNumber(path string) int {
	h := fnv.New32a()
	h.Write([]byte(path))
	return -int(h.Sum32()%100000000) - 1
}
