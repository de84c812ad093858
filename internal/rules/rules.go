package rules

import "errors"

var ErrUnsupportedPlayerCount = errors.New("unsupported player count")

const (
	MinPlayers = 5
	MaxPlayers = 10

	// Rounds counts the quests in a full game; round numbers past this
	// end the game in the spies' favor.
	Rounds = 5

	// MaxFailedProposals consecutive rejected proposals hand the game
	// to the spies.
	MaxFailedProposals = 5
)

// spyCounts maps player count to the number of hidden spies dealt at
// role assignment.
var spyCounts = map[int]int{
	5:  2,
	6:  2,
	7:  3,
	8:  3,
	9:  3,
	10: 4,
}

// teamSizes maps player count to the required team size for rounds 1..5.
var teamSizes = map[int][Rounds]int{
	5:  {2, 3, 2, 3, 3},
	6:  {2, 3, 4, 3, 4},
	7:  {2, 3, 3, 4, 4},
	8:  {3, 4, 4, 5, 5},
	9:  {3, 4, 4, 5, 5},
	10: {3, 4, 4, 5, 5},
}

// SpyCount returns how many spies a game with the given player count
// gets. Counts outside the table fail fast rather than guessing.
func SpyCount(players int) (int, error) {
	n, ok := spyCounts[players]
	if !ok {
		return 0, ErrUnsupportedPlayerCount
	}
	return n, nil
}

// TeamSize returns the mandated team size for a round (1-based).
func TeamSize(players, round int) (int, error) {
	sizes, ok := teamSizes[players]
	if !ok {
		return 0, ErrUnsupportedPlayerCount
	}
	if round < 1 || round > Rounds {
		return 0, ErrUnsupportedPlayerCount
	}
	return sizes[round-1], nil
}
