package votes

import "errors"

// Sentinel kinds for vote errors.
var (
	ErrInvalidVoteType = errors.New("invalid vote type")
	ErrMissingVoter    = errors.New("missing voter id")
)
