package domain

type EventName string

const (
	EventOpponentRank             EventName = "opponent-rank"
	EventNumCPUs                  EventName = "num-cpus"
	EventDBImportFinish           EventName = "db-import-finish"
	EventDBImportTableStart       EventName = "db-import-table-start"
	EventDBImportStart            EventName = "db-import-start"
	EventDBImportRow              EventName = "db-import-row"
	EventMeta                     EventName = "meta"
	EventSeasons                  EventName = "seasons"
	EventInitializedDB            EventName = "initialized-db"
	EventLoadStart                EventName = "load-start"
	EventParseStart               EventName = "parse-start"
	EventLoadFinish               EventName = "load-finish"
	EventCancelledInit            EventName = "cancelled-init"
	EventFreedWorker              EventName = "freed-worker"
	EventPersistFinish            EventName = "persist-finish"
	EventGameStart                EventName = "game-start"
	EventGameEnd                  EventName = "game-end"
	EventPlayerPercents           EventName = "player-percents"
	EventParsedFile               EventName = "parsed-file"
	EventCharacterNotes           EventName = "character-notes"
	EventUnknownCodeGameStarted   EventName = "unknown-code-game-started"
	EventStartedGameCodeConfirmed EventName = "started-game-code-confirmed"
	EventSetOptions               EventName = "set-options"
	EventParseFinish              EventName = "parse-finish"
)

// Event is one notification for the host.
type Event struct {
	Name EventName `json:"event"`
	Data any       `json:"data"`
}

// Emitter is implemented by anything that can publish tracker events.
type Emitter interface {
	Emit(name EventName, data any)
}

type EmitterFunc func(name EventName, data any)

func (f EmitterFunc) Emit(name EventName, data any) { f(name, data) }

type GameStartPayload struct {
	Result  *PlayerGameResults   `json:"result"`
	History []*PlayerGameResults `json:"history"`
}

type UnknownCodePayload struct {
	Player1Code string `json:"player1Code"`
	Player2Code string `json:"player2Code"`
	StartAt     string `json:"startAt"`
}

type ImportTablePayload struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
}

type ImportRowPayload struct {
	Table   string `json:"table"`
	Success int    `json:"success"`
	Failed  int    `json:"failed"`
}
