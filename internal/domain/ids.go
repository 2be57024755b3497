package domain

import (
	"strconv"
	"strings"
	"time"
)

// idEscaper keeps "_" free to act as the battle id separator.
var idEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// BattleID derives the shared battle id for two users. Both sides compute the
// same value regardless of argument order. Ids are ordered raw and then
// escaped, so distinct pairs never share a battle id.
func BattleID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "battle_" + idEscaper.Replace(a) + "_" + idEscaper.Replace(b)
}

// BotBattleID builds a battle id for a local bot match.
func BotBattleID(userID string, at time.Time) string {
	return "bot_" + idEscaper.Replace(userID) + "_" + strconv.FormatInt(at.UnixMilli(), 10)
}

// IsHost reports whether self distributes questions in a battle against peer.
// Raw string comparison; the smaller id hosts.
func IsHost(self, peer string) bool {
	return self < peer
}

// NewMatchProposal pairs self with peer under their deterministic battle id.
func NewMatchProposal(self, peer Player) MatchProposal {
	return MatchProposal{
		BattleID: BattleID(self.ID, peer.ID),
		Player1:  self,
		Player2:  peer,
	}
}
