package pad

import "github.com/KevinKickass/OpenWalkingPad/internal/types"

// Device is the synchronous operation surface of a pad driver.
// Every method may block on network I/O and is called with the
// gateway's gate held, so implementations need no locking of their own.
type Device interface {
	Status(quick bool) (types.PadStatus, error)
	Start() (types.CommandResult, error)
	Stop() (types.CommandResult, error)
	PowerOn() (types.CommandResult, error)
	PowerOff() (types.CommandResult, error)
	Lock() (types.CommandResult, error)
	Unlock() (types.CommandResult, error)
	SetSpeed(speedKmh float64) (types.CommandResult, error)
	SetStartSpeed(speedKmh float64) (types.CommandResult, error)
	SetMode(mode types.PadMode) (types.CommandResult, error)
	SetSensitivity(sensitivity types.PadSensitivity) (types.CommandResult, error)
	Capabilities() types.Capabilities
}
