package engine

import "errors"

// Rule violations. All are recoverable: the command is rejected and the
// state is returned unchanged.
var (
	ErrInvalidPhase           = errors.New("invalid phase for command")
	ErrCapacityExceeded       = errors.New("game is full")
	ErrDuplicatePlayer        = errors.New("player already joined")
	ErrInsufficientPlayers    = errors.New("not enough players")
	ErrIncompleteVotes        = errors.New("votes still outstanding")
	ErrIncompleteQuestActions = errors.New("quest actions still outstanding")
	ErrCannotAutoAdvance      = errors.New("phase requires an explicit player command")
	ErrNotLeader              = errors.New("only the leader may propose")
	ErrWrongTeamSize          = errors.New("wrong team size")
	ErrDuplicateTeamMember    = errors.New("duplicate team member")
	ErrUnknownPlayer          = errors.New("unknown player")
	ErrWindowClosed           = errors.New("submission window closed")
	ErrDuplicateVote          = errors.New("vote already recorded")
	ErrDuplicateAction        = errors.New("quest action already recorded")
	ErrNotOnTeam              = errors.New("player not on proposed team")
)
