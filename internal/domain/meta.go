package domain

const DefaultUnrankedElo = 1100

// Meta is the small per-install document kept next to the database.
type Meta struct {
	UnrankedEloMatches int               `json:"unrankedEloMatches"`
	UnrankedElo        float64           `json:"unrankedElo"`
	LastUsedCode       string            `json:"lastUsedCode"`
	LastUsedUserID     string            `json:"lastUsedUserId"`
	FolderTimestamps   map[string]int64  `json:"folderTimetstamps"`
	DetectedUserCodes  map[string]string `json:"detectedUserCodes"`
}

func DefaultMeta() Meta {
	return Meta{
		UnrankedElo:       DefaultUnrankedElo,
		FolderTimestamps:  map[string]int64{},
		DetectedUserCodes: map[string]string{},
	}
}

type BaseCharacterStats struct {
	TimesPlayedAs      int `json:"timesPlayedAs"`
	TimesPlayedAgainst int `json:"timesPlayedAgainst"`
	TimesWonAs         int `json:"timesWonAs"`
	TimesLostAs        int `json:"timesLostAs"`
	TimesWonAgainst    int `json:"timesWonAgainst"`
	TimesLostAgainst   int `json:"timesLostAgainst"`
}

type ByCharacterStats struct {
	TimesWonAgainst    int `json:"timesWonAgainst"`
	TimesLostAgainst   int `json:"timesLostAgainst"`
	TimesPlayedAgainst int `json:"timesPlayedAgainst"`
}

type ByStageStats struct {
	TimesWonAs    int                          `json:"timesWonAs"`
	TimesLostAs   int                          `json:"timesLostAs"`
	TimesPlayedAs int                          `json:"timesPlayedAs"`
	ByCharacter   map[string]*ByCharacterStats `json:"byCharacter"`
}

type CharacterStats struct {
	BaseCharacterStats
	ByStage     map[string]*ByStageStats     `json:"byStage"`
	ByCharacter map[string]*ByCharacterStats `json:"byCharacter"`
}

func NewCharacterStats() *CharacterStats {
	return &CharacterStats{
		ByStage:     map[string]*ByStageStats{},
		ByCharacter: map[string]*ByCharacterStats{},
	}
}
