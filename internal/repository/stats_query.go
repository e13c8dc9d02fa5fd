package repository

import (
	"context"
	"fmt"
	"strings"

	"slippi-tracker/internal/rowstore"
)

// Total marks an aggregated dimension in a CharacterStatRow.
const Total = "Total"

// CharacterStatRow is one group of the character aggregation. Dimensions
// hold either an id or Total.
type CharacterStatRow struct {
	CharacterID       string
	StageID           string
	Won               string
	OpponentCharacter string
	Count             int
}

const statsSources = `
	SELECT player1Character AS characterId, stageId,
		CASE WHEN player1Won = 1 THEN 'yes' ELSE 'no' END AS won,
		player2Character AS opponentCharacter
	FROM results WHERE %[1]s
	UNION ALL
	SELECT player2Character AS characterId, stageId,
		CASE WHEN player2Won = 1 THEN 'yes' ELSE 'no' END AS won,
		player1Character AS opponentCharacter
	FROM results WHERE %[2]s`

// characterStatsSQL groups per stage and opponent, per stage, per opponent,
// per stage again and overall. Each section binds where1 then where2.
const characterStatsSQL = `
SELECT characterId, stageId, won, opponentCharacter, COUNT(*) AS count
FROM (%[1]s) AS combined
GROUP BY characterId, stageId, won, opponentCharacter

UNION ALL

SELECT characterId, stageId, won, 'Total' AS opponentCharacter, COUNT(*) AS count
FROM (%[1]s) AS combined
GROUP BY characterId, stageId, won

UNION ALL

SELECT characterId, 'Total' AS stageId, won, opponentCharacter, COUNT(*) AS count
FROM (%[1]s) AS combined
GROUP BY characterId, won, opponentCharacter

UNION ALL

SELECT characterId, stageId, won, 'Total' AS opponentCharacter, COUNT(*) AS count
FROM (%[1]s) AS combined
GROUP BY characterId, stageId, won

UNION ALL

SELECT 'Total' AS characterId, 'Total' AS stageId, 'Total' AS won, 'Total' AS opponentCharacter, COUNT(*) AS count
FROM (%[1]s) AS combined`

const statsSections = 5

// CharacterStats aggregates the games where a viewer code played
// characterID.
func (r *ResultRepository) CharacterStats(ctx context.Context, codes []string, characterID int) ([]CharacterStatRow, error) {
	return r.characterStats(ctx,
		rowstore.Fields{"player1Code": rowstore.Cond{OneOf: rowstore.Strings(codes)}, "player1Character": characterID},
		rowstore.Fields{"player2Code": rowstore.Cond{OneOf: rowstore.Strings(codes)}, "player2Character": characterID},
	)
}

// OpponentCharacterStats aggregates the games where someone other than the
// viewer played characterID against a viewer code.
func (r *ResultRepository) OpponentCharacterStats(ctx context.Context, codes []string, characterID int) ([]CharacterStatRow, error) {
	return r.characterStats(ctx,
		rowstore.Fields{
			"player1Code":      rowstore.Cond{NotOneOf: rowstore.Strings(codes)},
			"player2Code":      rowstore.Cond{OneOf: rowstore.Strings(codes)},
			"player1Character": characterID,
		},
		rowstore.Fields{
			"player2Code":      rowstore.Cond{NotOneOf: rowstore.Strings(codes)},
			"player1Code":      rowstore.Cond{OneOf: rowstore.Strings(codes)},
			"player2Character": characterID,
		},
	)
}

func (r *ResultRepository) characterStats(ctx context.Context, where1, where2 rowstore.Fields) ([]CharacterStatRow, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	query, args, err := characterStatsQuery(where1, where2)
	if err != nil {
		return nil, err
	}
	rows, err := store.All(ctx, TableResults, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate character stats: %w", err)
	}
	out := make([]CharacterStatRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, CharacterStatRow{
			CharacterID:       dimension(row["characterId"]),
			StageID:           dimension(row["stageId"]),
			Won:               dimension(row["won"]),
			OpponentCharacter: dimension(row["opponentCharacter"]),
			Count:             int(count(row["count"])),
		})
	}
	return out, nil
}

func characterStatsQuery(where1, where2 rowstore.Fields) (string, []any, error) {
	cond1, args1, err := rowstore.Compile(where1)
	if err != nil {
		return "", nil, err
	}
	cond2, args2, err := rowstore.Compile(where2)
	if err != nil {
		return "", nil, err
	}
	sources := fmt.Sprintf(statsSources, cond1, cond2)
	query := fmt.Sprintf(characterStatsSQL, sources)

	args := make([]any, 0, statsSections*(len(args1)+len(args2)))
	for i := 0; i < statsSections; i++ {
		args = append(args, args1...)
		args = append(args, args2...)
	}
	return strings.TrimSpace(query), args, nil
}

func dimension(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprint(int64(t))
	}
	return fmt.Sprint(v)
}

func count(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	case int:
		return int64(t)
	}
	return 0
}
