package domain

// TrackerOptions are the user-facing tracker settings.
type TrackerOptions struct {
	UseCPUs             int      `json:"useCpus" yaml:"useCpus"`
	AutodetectCodes     bool     `json:"autodetectCodes" yaml:"autodetectCodes"`
	ProcessParallel     bool     `json:"processParallel" yaml:"processParallel"`
	CurrentCodes        []string `json:"currentCodes" yaml:"currentCodes"`
	PathToReplays       string   `json:"pathToReplays" yaml:"pathToReplays"`
	PathToDB            string   `json:"pathToDb" yaml:"pathToDb"`
	RecursivelyAllPaths bool     `json:"recursivelyAllPaths" yaml:"recursivelyAllPaths"`
	DisableLiveTracking bool     `json:"disableLiveTracking" yaml:"disableLiveTracking"`
}

func DefaultTrackerOptions() TrackerOptions {
	return TrackerOptions{
		UseCPUs:             1,
		AutodetectCodes:     true,
		ProcessParallel:     true,
		CurrentCodes:        []string{},
		PathToDB:            "./slippi-ops.db",
		RecursivelyAllPaths: true,
	}
}

// QueryFilters narrows a results query from the viewer's side.
type QueryFilters struct {
	Ranks                       []string `json:"ranks,omitempty"`
	StartAtBefore               string   `json:"startAtBefore,omitempty"`
	StartAtAfter                string   `json:"startAtAfter,omitempty"`
	OpponentString              string   `json:"opponentString,omitempty"`
	SearchOnlyOpponentCodes     bool     `json:"searchOnlyOpponentCodes,omitempty"`
	SearchOnlyOpponentNicknames bool     `json:"searchOnlyOpponentNicknames,omitempty"`
	OpponentSearchExactMatch    bool     `json:"opponentSearchExactMatch,omitempty"`
	YourString                  string   `json:"yourString,omitempty"`
	SearchOnlyYourCodes         bool     `json:"searchOnlyYourCodes,omitempty"`
	SearchOnlyYourNicknames     bool     `json:"searchOnlyYourNicknames,omitempty"`
	YourSearchExactMatch        bool     `json:"yourSearchExactMatch,omitempty"`
	YourStocks                  *int     `json:"yourStocks,omitempty"`
	OpponentStocks              *int     `json:"opponentStocks,omitempty"`
	OpponentCharacters          []int    `json:"opponentCharacters,omitempty"`
	YourCharacters              []int    `json:"yourCharacters,omitempty"`
	Stages                      []int    `json:"stages,omitempty"`
	YouQuit                     bool     `json:"youQuit,omitempty"`
	OpponentQuit                bool     `json:"opponentQuit,omitempty"`
	IncludeFinished             bool     `json:"includeFinished,omitempty"`
	Ranked                      bool     `json:"ranked,omitempty"`
	Unranked                    bool     `json:"unranked,omitempty"`
	Direct                      bool     `json:"direct,omitempty"`
	YouWon                      bool     `json:"youWon,omitempty"`
	YouLoss                     bool     `json:"youLoss,omitempty"`
	MatchLengthStart            *int64   `json:"matchLengthStart,omitempty"`
	MatchLengthEnd              *int64   `json:"matchLengthEnd,omitempty"`
}

type QuerySort struct {
	SortBy    string `json:"sortBy,omitempty"`
	SortOrder string `json:"sortOrder,omitempty"`
}

type QueryPagination struct {
	Page  *int `json:"page,omitempty"`
	Limit *int `json:"limit,omitempty"`
}

type QueryParams struct {
	Filters    *QueryFilters    `json:"filters,omitempty"`
	Sort       *QuerySort       `json:"sort,omitempty"`
	Pagination *QueryPagination `json:"pagination,omitempty"`
}
