package transform

import (
	"unicode"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/melee"
	"slippi-tracker/internal/rowstore"
)

// ToPlayerResults projects game onto the viewer owning one of yourCodes.
// It returns nil when neither player is the viewer; player 1 wins when both
// codes match.
func ToPlayerResults(game *domain.GameResults, yourCodes []string) *domain.PlayerGameResults {
	if game == nil {
		return nil
	}
	you := -1
	switch {
	case contains(yourCodes, game.Player1Code):
		you = 0
	case contains(yourCodes, game.Player2Code):
		you = 1
	default:
		return nil
	}
	opp := 1 - you
	y, o := game.Slot(you), game.Slot(opp)

	return &domain.PlayerGameResults{
		Results:   game.Results,
		StageName: melee.StageName(game.StageID),

		YourPlayerIndex:     you,
		OpponentPlayerIndex: opp,

		YourRanks:     y.Ranks,
		OpponentRanks: o.Ranks,

		YouWon:      y.Won,
		OpponentWon: o.Won,

		YouQuit:      y.Quit,
		OpponentQuit: o.Quit,

		YourUserID:     y.UserID,
		OpponentUserID: o.UserID,

		YourCharacter:     y.Character,
		OpponentCharacter: o.Character,

		YourCharacterName:     melee.CharacterName(y.Character),
		OpponentCharacterName: melee.CharacterName(o.Character),

		YourCharacterColor:     y.CharacterColor,
		OpponentCharacterColor: o.CharacterColor,

		YourCharacterColorName:     melee.ColorName(y.Character, y.CharacterColor),
		OpponentCharacterColorName: melee.ColorName(o.Character, o.CharacterColor),

		YourStocks:     y.Stocks,
		OpponentStocks: o.Stocks,

		YourPercent:     y.Percent,
		OpponentPercent: o.Percent,

		YourNickname:     y.Nickname,
		OpponentNickname: o.Nickname,

		YourCode:     y.Code,
		OpponentCode: o.Code,

		YourActiveElo:     y.ActiveElo,
		OpponentActiveElo: o.ActiveElo,

		YourHighestElo:     y.HighestElo,
		OpponentHighestElo: o.HighestElo,
	}
}

// SetOpponentRanks attaches ranks to the opponent slot of both records and
// derives the active and highest elo from the valid ones. It returns the
// valid ranks.
func SetOpponentRanks(player *domain.PlayerGameResults, game *domain.GameResults, ranks []domain.PlayerRank) []domain.PlayerRank {
	valid := make([]domain.PlayerRank, 0, len(ranks))
	var highest, active *float64
	foundActive := false
	for i := range ranks {
		r := ranks[i]
		if !melee.HasValidRank(&r) {
			continue
		}
		valid = append(valid, r)
		if highest == nil || r.Elo > *highest {
			elo := r.Elo
			highest = &elo
		}
		if !foundActive && r.WasActiveSeason {
			foundActive = true
			if r.Elo != 0 {
				elo := r.Elo
				active = &elo
			}
		}
	}

	slot := game.Slot(player.OpponentPlayerIndex)
	slot.Ranks = ranks
	slot.HighestElo = highest
	slot.ActiveElo = active
	game.SetSlot(player.OpponentPlayerIndex, slot)

	player.OpponentRanks = ranks
	player.OpponentHighestElo = highest
	player.OpponentActiveElo = active
	return valid
}

// PrefixFields expands unprefixed player fields ("code") into the player 1
// and player 2 columns ("player1Code", "player2Code"). Nested groups are
// prefixed too.
func PrefixFields(unprefixed rowstore.Fields) (rowstore.Fields, rowstore.Fields) {
	return prefix(unprefixed, "player1"), prefix(unprefixed, "player2")
}

func prefix(f rowstore.Fields, p string) rowstore.Fields {
	out := make(rowstore.Fields, len(f))
	for k, v := range f {
		switch g := v.(type) {
		case rowstore.Fields:
			out[p+capitalize(k)] = prefix(g, p)
		case rowstore.Any:
			out[p+capitalize(k)] = prefixGroup(g, p)
		case rowstore.All:
			out[p+capitalize(k)] = rowstore.All(prefixGroup(rowstore.Any(g), p))
		default:
			out[p+capitalize(k)] = v
		}
	}
	return out
}

func prefixGroup(members rowstore.Any, p string) rowstore.Any {
	out := make(rowstore.Any, 0, len(members))
	for _, m := range members {
		if f, ok := m.(rowstore.Fields); ok {
			out = append(out, prefix(f, p))
			continue
		}
		out = append(out, m)
	}
	return out
}

// ViewerWhere matches games where the player holding one of codes has the
// yours fields and the other player has the opponent fields.
func ViewerWhere(codes []string, yours, opponent rowstore.Fields) rowstore.Any {
	return sides(rowstore.Cond{OneOf: rowstore.Strings(codes)}, nil, yours, opponent)
}

// OpponentWhere matches games where a player not holding one of codes has
// the opponent fields and faces one of codes with the yours fields.
func OpponentWhere(codes []string, opponent, yours rowstore.Fields) rowstore.Any {
	return sides(
		rowstore.Cond{NotOneOf: rowstore.Strings(codes)},
		&rowstore.Cond{OneOf: rowstore.Strings(codes)},
		opponent, yours,
	)
}

// sides builds the two slot permutations of a two sided predicate; the
// subject is player 1 in the first member and player 2 in the second.
func sides(subjectCode rowstore.Cond, otherCode *rowstore.Cond, subject, other rowstore.Fields) rowstore.Any {
	build := func(s, o string) rowstore.Fields {
		out := rowstore.Fields{s + "Code": subjectCode}
		if otherCode != nil {
			out[o+"Code"] = *otherCode
		}
		for k, v := range prefix(subject, s) {
			out[k] = v
		}
		for k, v := range prefix(other, o) {
			out[k] = v
		}
		return out
	}
	return rowstore.Any{build("player1", "player2"), build("player2", "player1")}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
