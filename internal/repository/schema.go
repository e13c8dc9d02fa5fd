package repository

import (
	"slippi-tracker/internal/rowstore"
)

const (
	TableInvalidResults = "invalid_results"
	TablePlayers        = "players"
	TableChats          = "chats"
	TableChatMessages   = "chat_messages"
	TableCharacterNotes = "character_notes"
	TablePlayerNotes    = "player_notes"
	TableRanks          = "ranks"
	TableSeasons        = "seasons"
	TableStats          = "stats"
	TableResults        = "results"
)

// Schema is the column registry for every tracker table.
var Schema = rowstore.Schema{
	TableInvalidResults: {
		{Name: "id", Type: rowstore.Integer, Primary: true},
		{Name: "slpFilePath", Type: rowstore.Text, Unique: true, Index: true},
		{Name: "error", Type: rowstore.Text},
		{Name: "data", Type: rowstore.Text},
	},
	TablePlayers: {
		{Name: "id", Type: rowstore.Text, Index: true, Primary: true},
		{Name: "fetchedRanksAt", Type: rowstore.Text},
	},
	TableChats: {
		{Name: "id", Type: rowstore.Integer, Primary: true},
		{Name: "opponentUserId", Type: rowstore.Text},
	},
	TableChatMessages: {
		{Name: "id", Type: rowstore.Integer, Primary: true},
		{Name: "chatId", Type: rowstore.Integer, Index: true, References: &rowstore.Reference{Table: TableChats, Column: "id"}},
		{Name: "playerId", Type: rowstore.Integer},
		{Name: "nickname", Type: rowstore.Text},
		{Name: "resultId", Type: rowstore.Integer, References: &rowstore.Reference{Table: TableResults, Column: "id"}},
		{Name: "content", Type: rowstore.Text},
		{Name: "sentAt", Type: rowstore.Text},
	},
	TableCharacterNotes: {
		{Name: "id", Type: rowstore.Integer, Primary: true},
		{Name: "characterId", Type: rowstore.Integer},
		{Name: "yourCharacterIds", Type: rowstore.Array},
		{Name: "content", Type: rowstore.Text},
		{Name: "stageIds", Type: rowstore.Array},
		{Name: "opponentPercentStart", Type: rowstore.Integer},
		{Name: "opponentPercentEnd", Type: rowstore.Integer},
		{Name: "yourPercentStart", Type: rowstore.Integer},
		{Name: "yourPercentEnd", Type: rowstore.Integer},
	},
	TablePlayerNotes: {
		{Name: "id", Type: rowstore.Integer, Primary: true},
		{Name: "userId", Type: rowstore.Text, Index: true},
		{Name: "content", Type: rowstore.Text},
	},
	TableRanks: {
		{Name: "id", Type: rowstore.Integer, Primary: true},
		{Name: "updatedAt", Type: rowstore.Text, Index: true},
		{Name: "elo", Type: rowstore.Integer},
		{Name: "wasActiveSeason", Type: rowstore.Boolean},
		{Name: "seasonId", Type: rowstore.Text, Index: true},
		{Name: "userId", Type: rowstore.Text, Index: true},
		{Name: "wins", Type: rowstore.Integer},
		{Name: "losses", Type: rowstore.Integer},
		{Name: "regionalPlacement", Type: rowstore.Integer},
		{Name: "globalPlacement", Type: rowstore.Integer},
		{Name: "characters", Type: rowstore.Array},
		{Name: "seasonDateStart", Type: rowstore.Text},
		{Name: "seasonDateEnd", Type: rowstore.Text},
		{Name: "seasonName", Type: rowstore.Text},
		{Name: "continent", Type: rowstore.Text},
	},
	TableSeasons: {
		{Name: "id", Type: rowstore.Integer, Primary: true},
		{Name: "slippiId", Type: rowstore.Text, Unique: true},
		{Name: "startedAt", Type: rowstore.Text, Unique: true},
		{Name: "endedAt", Type: rowstore.Text},
		{Name: "name", Type: rowstore.Text, Unique: true},
	},
	TableStats: {
		{Name: "id", Type: rowstore.Integer, Primary: true},
		{Name: "startAt", Type: rowstore.Text, Unique: true},
		{Name: "stats", Type: rowstore.Object},
	},
	TableResults: {
		{Name: "id", Type: rowstore.Integer, Primary: true},
		{Name: "statsId", Type: rowstore.Integer, References: &rowstore.Reference{Table: TableStats, Column: "id"}},
		{Name: "raw", Type: rowstore.Object},
		{Name: "notes", Type: rowstore.Array},
		{Name: "matchId", Type: rowstore.Text, Index: true},
		{Name: "gameNumber", Type: rowstore.Integer},
		{Name: "type", Type: rowstore.Integer, Index: true},
		{Name: "slpFile", Type: rowstore.Text, Unique: true, Index: true},
		{Name: "slpFilePath", Type: rowstore.Text},
		{Name: "startAt", Type: rowstore.Text, Index: true},
		{Name: "stageId", Type: rowstore.Integer, Index: true},
		{Name: "matchLength", Type: rowstore.Integer},

		{Name: "player1Won", Type: rowstore.Boolean},
		{Name: "player2Won", Type: rowstore.Boolean},

		{Name: "player1Quit", Type: rowstore.Boolean},
		{Name: "player2Quit", Type: rowstore.Boolean},

		{Name: "player1UserId", Type: rowstore.Text, Index: true},
		{Name: "player2UserId", Type: rowstore.Text, Index: true},

		{Name: "player1Character", Type: rowstore.Integer, Index: true},
		{Name: "player2Character", Type: rowstore.Integer, Index: true},

		{Name: "player1CharacterColor", Type: rowstore.Integer},
		{Name: "player2CharacterColor", Type: rowstore.Integer},

		{Name: "player1Stocks", Type: rowstore.Integer, Index: true},
		{Name: "player2Stocks", Type: rowstore.Integer, Index: true},

		{Name: "player1Percent", Type: rowstore.Integer},
		{Name: "player2Percent", Type: rowstore.Integer},

		{Name: "player1Ranks", Type: rowstore.Array},
		{Name: "player2Ranks", Type: rowstore.Array},

		{Name: "player1Nickname", Type: rowstore.Text, Index: true},
		{Name: "player2Nickname", Type: rowstore.Text, Index: true},

		{Name: "player1Code", Type: rowstore.Text, Index: true},
		{Name: "player2Code", Type: rowstore.Text, Index: true},

		{Name: "player1ActiveElo", Type: rowstore.Integer},
		{Name: "player2ActiveElo", Type: rowstore.Integer},

		{Name: "player1HighestElo", Type: rowstore.Integer},
		{Name: "player2HighestElo", Type: rowstore.Integer},
	},
}

// resultSelect is the default results projection; the raw replay is only
// read back on request.
var resultSelect = &rowstore.Select{Except: []string{"raw"}}
