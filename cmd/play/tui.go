package play

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gigurra/stemdeck/cmd/play/transport"
	"github.com/mattn/go-runewidth"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("250"))
	playingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))  // Green
	pausedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("226")) // Yellow
	stoppedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")) // Gray
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true)
	barStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	spectrumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const (
	seekStep   = 5.0
	volumeStep = 0.05
	tickEvery  = 100 * time.Millisecond
	nameWidth  = 16
)

var spectrumLevels = []rune("▁▂▃▄▅▆▇█")

type tickMsg time.Time

type snapshotMsg transport.Snapshot

type model struct {
	engine   *transport.Engine
	snap     transport.Snapshot
	spectrum []byte
	width    int
	err      error
}

func newModel(engine *transport.Engine) model {
	return model{
		engine: engine,
		snap:   engine.Snapshot(),
		width:  80,
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case snapshotMsg:
		m.snap = transport.Snapshot(msg)
		return m, nil

	case tickMsg:
		m.snap = m.engine.Snapshot()
		m.spectrum = m.readSpectrum()
		return m, tickCmd()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	switch key := msg.String(); key {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case " ":
		m.err = m.engine.TogglePlayPause()
	case "left":
		m.err = m.engine.Seek(m.engine.CurrentPosition() - seekStep)
	case "right":
		m.err = m.engine.Seek(m.engine.CurrentPosition() + seekStep)
	case "+", "=":
		m.engine.SetMasterVolume(m.engine.MasterVolume() + volumeStep)
	case "-":
		m.engine.SetMasterVolume(m.engine.MasterVolume() - volumeStep)
	case "s":
		m.engine.Stop()
	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			stems := m.engine.Stems()
			if i := int(key[0] - '1'); i < len(stems) {
				m.engine.ToggleStemMuted(stems[i])
			}
		}
	}
	m.snap = m.engine.Snapshot()
	return m, nil
}

func (m model) readSpectrum() []byte {
	a := m.engine.Analyser()
	if a == nil {
		return nil
	}
	bins := make([]byte, a.FrequencyBinCount())
	n := a.ByteFrequencyData(bins)
	return bins[:n]
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("stemdeck"))
	b.WriteString("  ")
	b.WriteString(statusStyle(m.snap.Status).Render(string(m.snap.Status)))
	b.WriteString(fmt.Sprintf("  vol %3.0f%%\n\n", m.snap.MasterVolume*100))

	barWidth := max(10, m.width-16)
	b.WriteString(barStyle.Render(renderProgress(m.snap.Position, m.snap.Duration, barWidth)))
	b.WriteString(fmt.Sprintf(" %s/%s\n\n",
		transport.FormatSeconds(m.snap.Position),
		transport.FormatSeconds(m.snap.Duration)))

	if len(m.spectrum) > 0 {
		b.WriteString(spectrumStyle.Render(renderSpectrum(m.spectrum, max(10, m.width-2))))
		b.WriteString("\n\n")
	}

	if len(m.snap.Stems) == 0 {
		b.WriteString(stoppedStyle.Render("No stems loaded."))
		b.WriteString("\n")
	}
	for i, s := range m.snap.Stems {
		line := fmt.Sprintf("%d  %s %s", i+1, fitName(s.Name, nameWidth), transport.FormatSeconds(s.Duration))
		if s.Muted {
			b.WriteString(mutedStyle.Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space play/pause • ←/→ seek • 1-9 mute • +/- volume • s stop • q quit"))
	return b.String()
}

func statusStyle(s transport.Status) lipgloss.Style {
	switch s {
	case transport.StatusPlaying:
		return playingStyle
	case transport.StatusPaused:
		return pausedStyle
	default:
		return stoppedStyle
	}
}

// fitName pads or truncates name to width terminal cells.
func fitName(name string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(name, width, "…"), width)
}

// renderProgress draws a width-cell bar filled in proportion to pos/duration.
func renderProgress(pos, duration float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if duration > 0 {
		filled = int(float64(width) * pos / duration)
	}
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// renderSpectrum folds bins into width columns, each showing the loudest bin
// of its group as a block height.
func renderSpectrum(bins []byte, width int) string {
	if len(bins) == 0 || width <= 0 {
		return ""
	}
	cols := min(width, len(bins))
	per := len(bins) / cols
	out := make([]rune, cols)
	for c := range out {
		var peak byte
		for _, v := range bins[c*per : (c+1)*per] {
			peak = max(peak, v)
		}
		out[c] = spectrumLevels[int(peak)*len(spectrumLevels)/256]
	}
	return string(out)
}

func runInteractive(engine *transport.Engine) error {
	p := tea.NewProgram(newModel(engine), tea.WithAltScreen())
	// Engine changes made from Update notify on the UI goroutine itself.
	engine.OnChange(func(s transport.Snapshot) {
		go p.Send(snapshotMsg(s))
	})
	_, err := p.Run()
	return err
}
