package domain

import (
	"slippi-tracker/internal/replay"
)

type GameType int

const (
	GameTypeUnranked GameType = iota
	GameTypeRanked
	GameTypeDirect
)

func (t GameType) String() string {
	switch t {
	case GameTypeUnranked:
		return "unranked"
	case GameTypeRanked:
		return "ranked"
	case GameTypeDirect:
		return "direct"
	}
	return "unknown"
}

type MatchNote struct {
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

// Results holds the slot-independent part of a stored game.
type Results struct {
	ID          int64          `json:"id,omitempty"`
	StatsID     *int64         `json:"statsId,omitempty"`
	Raw         *replay.Replay `json:"raw,omitempty"`
	MatchID     string         `json:"matchId"`
	GameNumber  int            `json:"gameNumber"`
	SlpFilePath string         `json:"slpFilePath"`
	SlpFile     string         `json:"slpFile"`
	StartAt     string         `json:"startAt"`
	StageID     int            `json:"stageId"`
	Type        GameType       `json:"type"`
	Notes       []MatchNote    `json:"notes"`
	MatchLength int64          `json:"matchLength"`
}

// GameResults is the symmetric stored record; column names match the
// results table.
type GameResults struct {
	Results

	Player1Ranks []PlayerRank `json:"player1Ranks"`
	Player2Ranks []PlayerRank `json:"player2Ranks"`

	Player1Won bool `json:"player1Won"`
	Player2Won bool `json:"player2Won"`

	Player1UserID string `json:"player1UserId"`
	Player2UserID string `json:"player2UserId"`

	Player1Character int `json:"player1Character"`
	Player2Character int `json:"player2Character"`

	Player1Quit bool `json:"player1Quit"`
	Player2Quit bool `json:"player2Quit"`

	Player1CharacterColor int `json:"player1CharacterColor"`
	Player2CharacterColor int `json:"player2CharacterColor"`

	Player1Stocks int `json:"player1Stocks"`
	Player2Stocks int `json:"player2Stocks"`

	Player1Percent float64 `json:"player1Percent"`
	Player2Percent float64 `json:"player2Percent"`

	Player1Nickname string `json:"player1Nickname"`
	Player2Nickname string `json:"player2Nickname"`

	Player1Code string `json:"player1Code"`
	Player2Code string `json:"player2Code"`

	Player1ActiveElo  *float64 `json:"player1ActiveElo"`
	Player1HighestElo *float64 `json:"player1HighestElo"`

	Player2ActiveElo  *float64 `json:"player2ActiveElo"`
	Player2HighestElo *float64 `json:"player2HighestElo"`
}

// Slot is one player's half of a GameResults.
type Slot struct {
	Ranks          []PlayerRank
	Won            bool
	Quit           bool
	UserID         string
	Character      int
	CharacterColor int
	Stocks         int
	Percent        float64
	Nickname       string
	Code           string
	ActiveElo      *float64
	HighestElo     *float64
}

// Slot returns the player at index 0 or 1.
func (g *GameResults) Slot(index int) Slot {
	if index == 0 {
		return Slot{
			Ranks: g.Player1Ranks, Won: g.Player1Won, Quit: g.Player1Quit, UserID: g.Player1UserID,
			Character: g.Player1Character, CharacterColor: g.Player1CharacterColor,
			Stocks: g.Player1Stocks, Percent: g.Player1Percent, Nickname: g.Player1Nickname,
			Code: g.Player1Code, ActiveElo: g.Player1ActiveElo, HighestElo: g.Player1HighestElo,
		}
	}
	return Slot{
		Ranks: g.Player2Ranks, Won: g.Player2Won, Quit: g.Player2Quit, UserID: g.Player2UserID,
		Character: g.Player2Character, CharacterColor: g.Player2CharacterColor,
		Stocks: g.Player2Stocks, Percent: g.Player2Percent, Nickname: g.Player2Nickname,
		Code: g.Player2Code, ActiveElo: g.Player2ActiveElo, HighestElo: g.Player2HighestElo,
	}
}

func (g *GameResults) SetSlot(index int, s Slot) {
	if index == 0 {
		g.Player1Ranks, g.Player1Won, g.Player1Quit, g.Player1UserID = s.Ranks, s.Won, s.Quit, s.UserID
		g.Player1Character, g.Player1CharacterColor = s.Character, s.CharacterColor
		g.Player1Stocks, g.Player1Percent, g.Player1Nickname = s.Stocks, s.Percent, s.Nickname
		g.Player1Code, g.Player1ActiveElo, g.Player1HighestElo = s.Code, s.ActiveElo, s.HighestElo
		return
	}
	g.Player2Ranks, g.Player2Won, g.Player2Quit, g.Player2UserID = s.Ranks, s.Won, s.Quit, s.UserID
	g.Player2Character, g.Player2CharacterColor = s.Character, s.CharacterColor
	g.Player2Stocks, g.Player2Percent, g.Player2Nickname = s.Stocks, s.Percent, s.Nickname
	g.Player2Code, g.Player2ActiveElo, g.Player2HighestElo = s.Code, s.ActiveElo, s.HighestElo
}

// PlayerGameResults is a GameResults seen from one viewer's side.
type PlayerGameResults struct {
	Results

	StageName string `json:"stageName"`

	OpponentRanks []PlayerRank `json:"opponentRanks"`
	YourRanks     []PlayerRank `json:"yourRanks"`

	YourPlayerIndex     int `json:"yourPlayerIndex"`
	OpponentPlayerIndex int `json:"opponentPlayerIndex"`

	YouWon      bool `json:"youWon"`
	OpponentWon bool `json:"opponentWon"`

	YouQuit      bool `json:"youQuit"`
	OpponentQuit bool `json:"opponentQuit"`

	YourUserID     string `json:"yourUserId"`
	OpponentUserID string `json:"opponentUserId"`

	YourCharacter     int `json:"yourCharacter"`
	OpponentCharacter int `json:"opponentCharacter"`

	YourCharacterName     string `json:"yourCharacterName"`
	OpponentCharacterName string `json:"opponentCharacterName"`

	YourCharacterColor     int `json:"yourCharacterColor"`
	OpponentCharacterColor int `json:"opponentCharacterColor"`

	YourCharacterColorName     string `json:"yourCharacterColorName"`
	OpponentCharacterColorName string `json:"opponentCharacterColorName"`

	YourStocks     int `json:"yourStocks"`
	OpponentStocks int `json:"opponentStocks"`

	YourPercent     float64 `json:"yourPercent"`
	OpponentPercent float64 `json:"opponentPercent"`

	YourNickname     string `json:"yourNickname"`
	OpponentNickname string `json:"opponentNickname"`

	YourCode     string `json:"yourCode"`
	OpponentCode string `json:"opponentCode"`

	YourActiveElo     *float64 `json:"yourActiveElo"`
	OpponentActiveElo *float64 `json:"opponentActiveElo"`

	YourHighestElo     *float64 `json:"yourHighestElo"`
	OpponentHighestElo *float64 `json:"opponentHighestElo"`
}

type RankCharacter struct {
	Name      string `json:"name"`
	GameCount int    `json:"gameCount"`
}

type PlayerRank struct {
	UserID            string          `json:"userId"`
	Elo               float64         `json:"elo"`
	SeasonID          string          `json:"seasonId"`
	Wins              *int            `json:"wins"`
	Losses            *int            `json:"losses"`
	WasActiveSeason   bool            `json:"wasActiveSeason"`
	GlobalPlacement   *int            `json:"globalPlacement"`
	RegionalPlacement *int            `json:"regionalPlacement"`
	SeasonDateStart   string          `json:"seasonDateStart"`
	SeasonDateEnd     string          `json:"seasonDateEnd"`
	SeasonName        string          `json:"seasonName"`
	Continent         string          `json:"continent"`
	Characters        []RankCharacter `json:"characters"`
}

// RankRecord is a stored rank snapshot.
type RankRecord struct {
	ID        int64  `json:"id,omitempty"`
	UpdatedAt string `json:"updatedAt"`
	PlayerRank
}

type Player struct {
	ID             string  `json:"id"`
	FetchedRanksAt *string `json:"fetchedRanksAt"`
}

type Season struct {
	ID        int64   `json:"id,omitempty"`
	SlippiID  string  `json:"slippiId"`
	Name      string  `json:"name"`
	StartedAt *string `json:"startedAt"`
	EndedAt   *string `json:"endedAt"`
}

type Stats struct {
	ID      int64  `json:"id,omitempty"`
	StartAt string `json:"startAt"`
	Stats   any    `json:"stats"`
}

type InvalidResult struct {
	ID          int64  `json:"id,omitempty"`
	SlpFilePath string `json:"slpFilePath"`
	Error       string `json:"error"`
	Data        string `json:"data"`
}

type CharacterNote struct {
	ID                   int64  `json:"id,omitempty"`
	CharacterID          int    `json:"characterId"`
	Content              string `json:"content"`
	StageIDs             []int  `json:"stageIds"`
	YourCharacterIDs     []int  `json:"yourCharacterIds"`
	OpponentPercentStart *int   `json:"opponentPercentStart"`
	OpponentPercentEnd   *int   `json:"opponentPercentEnd"`
	YourPercentStart     *int   `json:"yourPercentStart"`
	YourPercentEnd       *int   `json:"yourPercentEnd"`
}

type PlayerNote struct {
	ID      int64  `json:"id,omitempty"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

type Chat struct {
	ID             int64  `json:"id,omitempty"`
	OpponentUserID string `json:"opponentUserId"`
}

type ChatMessage struct {
	ID       int64  `json:"id,omitempty"`
	ChatID   int64  `json:"chatId"`
	PlayerID int64  `json:"playerId"`
	Nickname string `json:"nickname"`
	ResultID *int64 `json:"resultId"`
	Content  string `json:"content"`
	SentAt   string `json:"sentAt"`
}

// IngestRun is one audit row of a folder scan.
type IngestRun struct {
	ID         string `json:"id"`
	Root       string `json:"root"`
	StartedAt  int64  `json:"startedAt"`
	FinishedAt *int64 `json:"finishedAt"`
	Total      int    `json:"total"`
	Parsed     int    `json:"parsed"`
	Failed     int    `json:"failed"`
	Cancelled  bool   `json:"cancelled"`
}
