// internal/game/errors.go
package game

import "errors"

var (
	ErrNotCurrentDrawer = errors.New("only the current drawer may do that")
	ErrAlreadyGuessed   = errors.New("already guessed correctly this round")
	ErrTooFewPlayers    = errors.New("not enough players to continue the session")
	ErrNotPlayer        = errors.New("user is not a player in this session")
	ErrWrongState       = errors.New("operation not valid in the current session state")
	ErrInvalidWord      = errors.New("word is not one of the offered options")
)
