package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/melee"
	"slippi-tracker/internal/rowstore"
	"slippi-tracker/internal/transform"
)

// BuildResultQuery compiles the viewer scoped filter, sort and pagination of
// a results query. Every value ends up bound.
func BuildResultQuery(codes []string, params *domain.QueryParams) (rowstore.QueryOptions, error) {
	where := rowstore.All{rowstore.Any{
		rowstore.Fields{"player1Code": rowstore.Cond{OneOf: rowstore.Strings(codes)}},
		rowstore.Fields{"player2Code": rowstore.Cond{OneOf: rowstore.Strings(codes)}},
	}}
	opts := rowstore.QueryOptions{}
	if params == nil {
		opts.Where = where
		return opts, nil
	}

	if params.Filters != nil {
		filters, err := filterWhere(codes, params.Filters)
		if err != nil {
			return opts, err
		}
		where = append(where, filters...)
	}
	opts.Where = where

	if params.Sort != nil && params.Sort.SortBy != "" {
		sort, err := resultSort(codes, params.Sort)
		if err != nil {
			return opts, err
		}
		opts.Sort = sort
	}

	if p := params.Pagination; p != nil && p.Limit != nil {
		if p.Page != nil {
			opts.Pagination = rowstore.Page(*p.Page, *p.Limit)
		} else {
			opts.Pagination = rowstore.Limit(*p.Limit)
		}
	}
	return opts, nil
}

func filterWhere(codes []string, f *domain.QueryFilters) (rowstore.All, error) {
	var out rowstore.All

	if !(f.Ranked && f.Unranked && f.Direct) {
		var types rowstore.Any
		if f.Ranked {
			types = append(types, rowstore.Fields{"type": int(domain.GameTypeRanked)})
		}
		if f.Unranked {
			types = append(types, rowstore.Fields{"type": int(domain.GameTypeUnranked)})
		}
		if f.Direct {
			types = append(types, rowstore.Fields{"type": int(domain.GameTypeDirect)})
		}
		if len(types) > 0 {
			out = append(out, types)
		}
	}

	if !(f.IncludeFinished && f.YouQuit && f.OpponentQuit) {
		var quits rowstore.Any
		if f.IncludeFinished {
			quits = append(quits, rowstore.Fields{"player1Quit": false, "player2Quit": false})
		}
		if f.YouQuit {
			quits = append(quits, transform.ViewerWhere(codes, rowstore.Fields{"quit": true}, nil))
		}
		if f.OpponentQuit {
			quits = append(quits, transform.ViewerWhere(codes, nil, rowstore.Fields{"quit": true}))
		}
		if len(quits) > 0 {
			out = append(out, quits)
		}
	}

	if f.StartAtBefore != "" {
		ms, err := parseDate(f.StartAtBefore)
		if err != nil {
			return nil, err
		}
		out = append(out, rowstore.Fields{"startAt": rowstore.Cond{LessThan: ms}})
	}
	if f.StartAtAfter != "" {
		ms, err := parseDate(f.StartAtAfter)
		if err != nil {
			return nil, err
		}
		out = append(out, rowstore.Fields{"startAt": rowstore.Cond{GreaterThan: ms}})
	}

	if f.OpponentString != "" {
		search := textSearch(f.OpponentString, f.SearchOnlyOpponentCodes, f.SearchOnlyOpponentNicknames, f.OpponentSearchExactMatch)
		out = append(out, transform.ViewerWhere(codes, nil, search))
	}
	if f.YourString != "" {
		search := textSearch(f.YourString, f.SearchOnlyYourCodes, f.SearchOnlyYourNicknames, f.YourSearchExactMatch)
		out = append(out, transform.ViewerWhere(codes, search, nil))
	}

	if len(f.YourCharacters) > 0 {
		out = append(out, transform.ViewerWhere(codes,
			rowstore.Fields{"character": rowstore.Cond{OneOf: rowstore.Ints(f.YourCharacters)}}, nil))
	}
	if len(f.OpponentCharacters) > 0 {
		out = append(out, transform.ViewerWhere(codes, nil,
			rowstore.Fields{"character": rowstore.Cond{OneOf: rowstore.Ints(f.OpponentCharacters)}}))
	}

	if f.YourStocks != nil {
		out = append(out, transform.ViewerWhere(codes, rowstore.Fields{"stocks": *f.YourStocks}, nil))
	}
	if f.OpponentStocks != nil {
		out = append(out, transform.ViewerWhere(codes, nil, rowstore.Fields{"stocks": *f.OpponentStocks}))
	}

	if len(f.Ranks) > 0 {
		var ranks rowstore.Any
		for _, rank := range f.Ranks {
			r, err := melee.EloRangeForRank(rank)
			if err != nil {
				return nil, err
			}
			ranks = append(ranks, transform.ViewerWhere(codes, nil,
				rowstore.Fields{"activeElo": rowstore.Cond{AtLeast: r.Min, AtMost: r.Max}}))
		}
		out = append(out, ranks)
	}

	if len(f.Stages) > 0 {
		out = append(out, rowstore.Fields{"stageId": rowstore.Cond{OneOf: rowstore.Ints(f.Stages)}})
	}

	if f.YouWon != f.YouLoss {
		out = append(out, transform.ViewerWhere(codes, rowstore.Fields{"won": f.YouWon}, nil))
	}

	if f.MatchLengthStart != nil || f.MatchLengthEnd != nil {
		var c rowstore.Cond
		if f.MatchLengthStart != nil {
			c.AtLeast = *f.MatchLengthStart
		}
		if f.MatchLengthEnd != nil {
			c.AtMost = *f.MatchLengthEnd
		}
		out = append(out, rowstore.Fields{"matchLength": c})
	}
	return out, nil
}

// textSearch matches the code and/or nickname of one side. Setting both
// "only" flags searches both columns, like setting neither.
func textSearch(s string, onlyCodes, onlyNicknames, exact bool) rowstore.Fields {
	cond := rowstore.Cond{Includes: s}
	if exact {
		cond = rowstore.Cond{OneOfNoCase: []string{s}}
	}
	switch {
	case onlyCodes && !onlyNicknames:
		return rowstore.Fields{"code": cond}
	case onlyNicknames && !onlyCodes:
		return rowstore.Fields{"nickname": cond}
	}
	return rowstore.Fields{"search": rowstore.Any{
		rowstore.Fields{"code": cond},
		rowstore.Fields{"nickname": cond},
	}}
}

// parseDate accepts an RFC 3339 time, a calendar date or epoch millis and
// returns the epoch millis string stored in startAt.
func parseDate(s string) (string, error) {
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return s, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return strconv.FormatInt(t.UnixMilli(), 10), nil
		}
	}
	return "", fmt.Errorf("invalid date filter: %s", s)
}

func resultSort(codes []string, s *domain.QuerySort) (*rowstore.Sort, error) {
	dir := rowstore.Asc
	if strings.EqualFold(s.SortOrder, "desc") {
		dir = rowstore.Desc
	}

	yours := func(col1, col2 string) *rowstore.Sort {
		return caseSort(codes, "IN", col1, col2, dir)
	}
	theirs := func(col1, col2 string) *rowstore.Sort {
		return caseSort(codes, "NOT IN", col1, col2, dir)
	}

	switch s.SortBy {
	case "yourStocks":
		return yours("player1Stocks", "player2Stocks"), nil
	case "opponentStocks":
		return theirs("player1Stocks", "player2Stocks"), nil
	case "yourCharacterName":
		return yours(characterNameCase("player1Character"), characterNameCase("player2Character")), nil
	case "opponentCharacterName":
		return theirs(characterNameCase("player1Character"), characterNameCase("player2Character")), nil
	case "youWon":
		return yours("player1Won", "player2Won"), nil
	case "opponentWon":
		return theirs("player1Won", "player2Won"), nil
	case "opponentNickname":
		return theirs("player1Nickname", "player2Nickname"), nil
	case "opponentCode":
		return theirs("player1Code", "player2Code"), nil
	case "opponentActiveElo":
		return theirs("player1ActiveElo", "player2ActiveElo"), nil
	}

	if _, ok := Schema.Column(TableResults, s.SortBy); !ok {
		return nil, fmt.Errorf("invalid sort key: %s", s.SortBy)
	}
	return &rowstore.Sort{By: s.SortBy, Direction: dir}, nil
}

func caseSort(codes []string, op, then1, then2 string, dir rowstore.Direction) *rowstore.Sort {
	in := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(codes)), ", ") + ")"
	expr := "CASE WHEN player1Code " + op + " " + in + " THEN " + then1 +
		" WHEN player2Code " + op + " " + in + " THEN " + then2 + " ELSE NULL END"
	args := append(rowstore.Strings(codes), rowstore.Strings(codes)...)
	return &rowstore.Sort{Expr: expr, Args: args, Direction: dir}
}

func characterNameCase(column string) string {
	var b strings.Builder
	b.WriteString("CASE " + column)
	for _, c := range melee.Characters() {
		fmt.Fprintf(&b, " WHEN %d THEN '%s'", c.ID, strings.ReplaceAll(c.Name, "'", "''"))
	}
	b.WriteString(" ELSE 'Unknown' END")
	return b.String()
}
