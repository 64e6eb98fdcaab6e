// Package tui is the interactive terminal dashboard.
package tui

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenWalkingPad/internal/events"
	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	maxLogLines = 200
	speedStep   = 0.5
)

// Controller is the pad surface the dashboard drives.
type Controller interface {
	GetStatus(ctx context.Context, quick bool) (types.PadStatus, error)
	LatestStatus() (types.PadStatus, bool)
	Start(ctx context.Context) (types.CommandResult, error)
	Stop(ctx context.Context) (types.CommandResult, error)
	PowerOn(ctx context.Context) (types.CommandResult, error)
	PowerOff(ctx context.Context) (types.CommandResult, error)
	Lock(ctx context.Context) (types.CommandResult, error)
	Unlock(ctx context.Context) (types.CommandResult, error)
	SetSpeed(ctx context.Context, speedKmh float64) (types.CommandResult, error)
	SetStartSpeed(ctx context.Context, speedKmh float64) (types.CommandResult, error)
	SetMode(ctx context.Context, mode types.PadMode) (types.CommandResult, error)
	SetSensitivity(ctx context.Context, sensitivity types.PadSensitivity) (types.CommandResult, error)
}

type (
	eventMsg  struct{ event events.Event }
	streamEnd struct{}

	statusMsg struct {
		status types.PadStatus
		err    error
	}

	actionMsg struct {
		label  string
		result types.CommandResult
		err    error
	}
)

// Model is the bubbletea model of the dashboard.
type Model struct {
	ctx  context.Context
	pad  Controller
	sub  *events.Subscription
	name string

	status  *types.PadStatus
	pending string
	entry   *speedEntry
	log     []string
	width   int
}

// speedEntry is an exact speed being typed for one operation.
type speedEntry struct {
	op     string
	prompt string
	text   string
}

// NewModel creates the dashboard. sub delivers hub events and is owned by the caller.
func NewModel(ctx context.Context, pad Controller, sub *events.Subscription, model string) Model {
	return Model{
		ctx:  ctx,
		pad:  pad,
		sub:  sub,
		name: model,
		log:  []string{"Started polling"},
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.refresh())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m = m.handleEvent(msg.event)
		return m, m.waitForEvent()

	case streamEnd:
		m = m.appendLog("event stream closed")
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m = m.appendLog("refresh: ERROR " + msg.err.Error())
			return m, nil
		}
		st := msg.status
		m.status = &st
		return m, nil

	case actionMsg:
		m.pending = ""
		if msg.err != nil {
			return m.appendLog(fmt.Sprintf("%s: ERROR %v", msg.label, msg.err)), nil
		}
		return m.appendLog(fmt.Sprintf("%s: %s", msg.label, msg.result.Message)), nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.entry != nil {
		return m.handleEntry(msg)
	}

	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "r":
		return m, m.refresh()
	case "s":
		return m.run(types.OpStart, m.pad.Start)
	case "x":
		return m.run(types.OpStop, m.pad.Stop)
	case "p":
		return m.run(types.OpPowerOn, m.pad.PowerOn)
	case "o":
		return m.run(types.OpPowerOff, m.pad.PowerOff)
	case "l":
		return m.run(types.OpLock, m.pad.Lock)
	case "u":
		return m.run(types.OpUnlock, m.pad.Unlock)
	case "+", "=":
		return m.adjustSpeed(speedStep)
	case "-", "_":
		return m.adjustSpeed(-speedStep)
	case "v":
		m.entry = &speedEntry{op: types.OpSetSpeed, prompt: "Set speed"}
		return m, nil
	case "t":
		m.entry = &speedEntry{op: types.OpSetStartSpeed, prompt: "Set start speed"}
		return m, nil
	case "m":
		mode := nextMode(m.status)
		return m.run(types.OpSetMode, func(ctx context.Context) (types.CommandResult, error) {
			return m.pad.SetMode(ctx, mode)
		})
	case "e":
		sens := nextSensitivity(m.status)
		return m.run(types.OpSetSensitivity, func(ctx context.Context) (types.CommandResult, error) {
			return m.pad.SetSensitivity(ctx, sens)
		})
	}
	return m, nil
}

// handleEntry edits the speed being typed; enter submits, esc cancels.
func (m Model) handleEntry(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	entry := *m.entry
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.entry = nil
		return m, nil
	case tea.KeyBackspace:
		if entry.text != "" {
			entry.text = entry.text[:len(entry.text)-1]
		}
	case tea.KeyEnter:
		m.entry = nil
		speed, err := strconv.ParseFloat(entry.text, 64)
		if err != nil {
			return m.appendLog(fmt.Sprintf("%s: ERROR invalid speed %q", entry.op, entry.text)), nil
		}
		set := m.pad.SetSpeed
		if entry.op == types.OpSetStartSpeed {
			set = m.pad.SetStartSpeed
		}
		return m.run(entry.op, func(ctx context.Context) (types.CommandResult, error) {
			return set(ctx, speed)
		})
	case tea.KeyRunes:
		for _, r := range msg.Runes {
			if (r >= '0' && r <= '9') || r == '.' {
				entry.text += string(r)
			}
		}
	}
	m.entry = &entry
	return m, nil
}

func (m Model) handleEvent(ev events.Event) Model {
	m = m.appendLog("event: " + string(ev.Kind()))
	switch e := ev.(type) {
	case events.OperationTiming:
		m = m.appendLog(TimingLine(e))
	case events.StatusUpdated:
		st := e.Status
		m.status = &st
	case events.Error:
		m = m.appendLog(fmt.Sprintf("error in %s: %s", e.Operation, e.Message))
	}
	return m
}

// TimingLine renders an OperationTiming for the event log.
func TimingLine(e events.OperationTiming) string {
	return fmt.Sprintf("timing op=%s wait=%.1fms run=%.1fms total=%.1fms ok=%t",
		e.Operation, e.WaitMs, e.RunMs, e.TotalMs, e.Success)
}

func (m Model) appendLog(line string) Model {
	log := append(append([]string(nil), m.log...), line)
	if len(log) > maxLogLines {
		log = log[len(log)-maxLogLines:]
	}
	m.log = log
	return m
}

func (m Model) run(label string, call func(ctx context.Context) (types.CommandResult, error)) (tea.Model, tea.Cmd) {
	m.pending = label
	ctx := m.ctx
	return m, func() tea.Msg {
		result, err := call(ctx)
		return actionMsg{label: label, result: result, err: err}
	}
}

func (m Model) adjustSpeed(delta float64) (tea.Model, tea.Cmd) {
	current := m.status
	if current == nil || current.SpeedKmh == nil {
		if st, ok := m.pad.LatestStatus(); ok {
			current = &st
		}
	}
	base := 0.0
	if current != nil && current.SpeedKmh != nil {
		base = *current.SpeedKmh
	}
	target := NextSpeed(base, delta)
	return m.run(types.OpSetSpeed, func(ctx context.Context) (types.CommandResult, error) {
		return m.pad.SetSpeed(ctx, target)
	})
}

// NextSpeed applies delta, rounds to 0.1 km/h and clamps to the pad limits.
func NextSpeed(base, delta float64) float64 {
	v := math.Round((base+delta)*10) / 10
	return math.Max(types.MinSpeedKmh, math.Min(types.MaxSpeedKmh, v))
}

func nextMode(st *types.PadStatus) types.PadMode {
	if st == nil || st.Mode == nil {
		return types.ModeManual
	}
	return cycle(types.PadModes, *st.Mode)
}

func nextSensitivity(st *types.PadStatus) types.PadSensitivity {
	if st == nil || st.Sensitivity == nil {
		return types.SensitivityMedium
	}
	return cycle(types.PadSensitivities, *st.Sensitivity)
}

func cycle[T comparable](all []T, cur T) T {
	for i, v := range all {
		if v == cur {
			return all[(i+1)%len(all)]
		}
	}
	return all[0]
}

func (m Model) refresh() tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		st, err := m.pad.GetStatus(ctx, false)
		return statusMsg{status: st, err: err}
	}
}

func (m Model) waitForEvent() tea.Cmd {
	if m.sub == nil {
		return nil
	}
	sub, ctx := m.sub, m.ctx
	return func() tea.Msg {
		ev, err := sub.Next(ctx)
		if err != nil {
			return streamEnd{}
		}
		return eventMsg{event: ev}
	}
}

func (m Model) View() string {
	var b strings.Builder

	fmt.Fprintf(&b, "WalkingPad %s\n\n", m.name)

	if m.status == nil {
		b.WriteString("  No data yet\n")
	} else {
		for _, f := range m.status.Fields() {
			fmt.Fprintf(&b, "  %-16s %s\n", f[0]+":", f[1])
		}
	}

	b.WriteString("\n")
	if m.entry != nil {
		fmt.Fprintf(&b, "  %s (km/h, enter to send, esc to cancel): %s_\n", m.entry.prompt, m.entry.text)
	} else if m.pending != "" {
		fmt.Fprintf(&b, "  Executing: %s ...\n", m.pending)
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n[r] refresh  [s] start  [x] stop  [+/-] speed  [p/o] power on/off\n")
	b.WriteString("[v] exact speed  [t] start speed  [l/u] lock/unlock  [m] mode  [e] sensitivity  [q] quit\n\n")

	const visible = 12
	start := 0
	if len(m.log) > visible {
		start = len(m.log) - visible
	}
	for _, line := range m.log[start:] {
		if m.width > 0 && len(line) > m.width {
			line = line[:m.width]
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// Run shows the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, pad Controller, sub *events.Subscription, model string, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	p := tea.NewProgram(NewModel(ctx, pad, sub, model), opts...)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
