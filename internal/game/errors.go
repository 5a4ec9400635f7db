package game

import (
	"errors"
	"fmt"
)

// RuleErrorCode classifies a rejected command. Rejections never mutate
// state and are reported to the issuing player only.
type RuleErrorCode string

const (
	CodeNotYourTurn      RuleErrorCode = "NOT_YOUR_TURN"
	CodeInsufficientMana RuleErrorCode = "INSUFFICIENT_MANA"
	CodeIllegalTarget    RuleErrorCode = "ILLEGAL_TARGET"
	CodeCardNotInHand    RuleErrorCode = "CARD_NOT_IN_HAND"
	CodeInvalidPhase     RuleErrorCode = "INVALID_PHASE"
	CodeBoardFull        RuleErrorCode = "BOARD_FULL"
	CodeGameOver         RuleErrorCode = "GAME_OVER"
)

// RuleError is a command validation failure.
type RuleError struct {
	Code    RuleErrorCode
	Message string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newRuleError(code RuleErrorCode, format string, args ...interface{}) *RuleError {
	return &RuleError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRuleError extracts a RuleError from err, if it is one.
func AsRuleError(err error) (*RuleError, bool) {
	var re *RuleError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// FatalEngineError reports a violated internal invariant. The affected
// match is aborted and declared void; other matches are unaffected.
type FatalEngineError struct {
	MatchID string
	Reason  string
}

func (e *FatalEngineError) Error() string {
	return fmt.Sprintf("fatal engine error in match %s: %s", e.MatchID, e.Reason)
}

// ErrMatchNotFound is returned when a match id is not in the arena.
var ErrMatchNotFound = errors.New("match not found")

// ErrMatchFinished is returned when a command reaches an archived match.
var ErrMatchFinished = errors.New("match already finished")
