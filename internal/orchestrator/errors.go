package orchestrator

import "errors"

var (
	// ErrSettingInvalid is returned when ProcessTurn is called with a
	// Setting that fails its own Validate.
	ErrSettingInvalid = errors.New("orchestrator: invalid setting")
)
