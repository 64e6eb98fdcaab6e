package pad

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenWalkingPad/internal/types"
)

// Command names accepted by Dispatch. CLI spellings with dashes are accepted too.
type Command string

const (
	CommandStart          Command = "start"
	CommandStop           Command = "stop"
	CommandPowerOn        Command = "power_on"
	CommandPowerOff       Command = "power_off"
	CommandLock           Command = "lock"
	CommandUnlock         Command = "unlock"
	CommandSetSpeed       Command = "set_speed"
	CommandSetStartSpeed  Command = "set_start_speed"
	CommandSetMode        Command = "set_mode"
	CommandSetSensitivity Command = "set_sensitivity"
)

// Commands lists every dispatchable command.
var Commands = []Command{
	CommandStart, CommandStop, CommandPowerOn, CommandPowerOff, CommandLock, CommandUnlock,
	CommandSetSpeed, CommandSetStartSpeed, CommandSetMode, CommandSetSensitivity,
}

// ParseCommand normalizes "power-on" style names.
func ParseCommand(name string) (Command, error) {
	cmd := Command(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	for _, c := range Commands {
		if c == cmd {
			return cmd, nil
		}
	}
	return "", types.NewValidationError(fmt.Sprintf("unknown command: %s", name))
}

// NeedsArgument reports whether the command takes a value.
func (c Command) NeedsArgument() bool {
	switch c {
	case CommandSetSpeed, CommandSetStartSpeed, CommandSetMode, CommandSetSensitivity:
		return true
	}
	return false
}

// CommandRequest is one command plus its optional argument in text form.
type CommandRequest struct {
	Command Command `json:"command"`
	Value   string  `json:"value,omitempty"`
}

// Dispatch runs a single command by name.
func (s *Service) Dispatch(ctx context.Context, req CommandRequest) (types.CommandResult, error) {
	if req.Command.NeedsArgument() && strings.TrimSpace(req.Value) == "" {
		return types.CommandResult{}, types.NewValidationError(fmt.Sprintf("%s requires a value", req.Command))
	}

	switch req.Command {
	case CommandStart:
		return s.Start(ctx)
	case CommandStop:
		return s.Stop(ctx)
	case CommandPowerOn:
		return s.PowerOn(ctx)
	case CommandPowerOff:
		return s.PowerOff(ctx)
	case CommandLock:
		return s.Lock(ctx)
	case CommandUnlock:
		return s.Unlock(ctx)
	case CommandSetSpeed:
		speed, err := parseSpeed(req.Value)
		if err != nil {
			return types.CommandResult{}, err
		}
		return s.SetSpeed(ctx, speed)
	case CommandSetStartSpeed:
		speed, err := parseSpeed(req.Value)
		if err != nil {
			return types.CommandResult{}, err
		}
		return s.SetStartSpeed(ctx, speed)
	case CommandSetMode:
		mode, err := types.ParsePadMode(req.Value)
		if err != nil {
			return types.CommandResult{}, err
		}
		return s.SetMode(ctx, mode)
	case CommandSetSensitivity:
		sens, err := types.ParsePadSensitivity(req.Value)
		if err != nil {
			return types.CommandResult{}, err
		}
		return s.SetSensitivity(ctx, sens)
	default:
		return types.CommandResult{}, types.NewValidationError(fmt.Sprintf("unknown command: %s", req.Command))
	}
}

func parseSpeed(v string) (float64, error) {
	speed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, types.NewValidationError(fmt.Sprintf("invalid speed %q", v))
	}
	return speed, nil
}
