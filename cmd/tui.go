// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/blemidi/pkg/blemidi"
	"github.com/Thermoquad/blemidi/pkg/transport"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// idleAfter is how long without a packet before the monitor shows idle
const idleAfter = time.Second

// Packet log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type monitorInfo struct {
	source string
	sink   string
}

// statsSource is satisfied by *bridge.Bridge
type statsSource interface {
	Stats() blemidi.Statistics
}

// TUI model
type model struct {
	info          monitorInfo
	bridge        statsSource
	stats         blemidi.Statistics
	packets       <-chan packetMsg
	decoder       *blemidi.Decoder
	asm           blemidi.Assembler
	spinner       spinner.Model
	log           []logEntry
	maxLogEntries int
	lastPacket    time.Time
	width         int
	height        int
	quitting      bool
	bridgeErr     error
	bridgeDone    bool
}

// Messages
type tickMsg time.Time
type packetMsg struct {
	at     time.Time
	packet []byte
}
type bridgeDoneMsg struct {
	err error
}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	units := []struct {
		n    uint64
		name string
	}{
		{days, "day"},
		{hours, "hour"},
		{minutes, "minute"},
		{seconds, "second"},
	}

	parts := []string{}
	for i, u := range units {
		last := i == len(units)-1
		if u.n == 0 && !(last && len(parts) == 0) {
			continue
		}
		if u.n == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", u.n, u.name))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(info monitorInfo, b statsSource, packets <-chan packetMsg) model {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	return model{
		info:          info,
		bridge:        b,
		stats:         b.Stats(),
		packets:       packets,
		decoder:       blemidi.NewDecoder(),
		spinner:       s,
		log:           make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		waitForPacket(m.packets),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForPacket(packets <-chan packetMsg) tea.Cmd {
	return func() tea.Msg {
		return <-packets
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats = m.bridge.Stats()
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case packetMsg:
		m.lastPacket = msg.at
		events, err := m.decoder.DecodePacket(msg.packet)
		line := transport.FormatCompact(msg.at, msg.packet, m.asm.Feed(events), err)
		m.addLogEntry(msg.at, strings.TrimRight(line, "\n"), err != nil)
		return m, waitForPacket(m.packets)

	case bridgeDoneMsg:
		m.bridgeDone = true
		m.bridgeErr = msg.err
		m.stats = m.bridge.Stats()
		if msg.err != nil {
			m.addLogEntry(time.Now(), fmt.Sprintf("bridge stopped: %v", msg.err), true)
		} else {
			m.addLogEntry(time.Now(), "input drained, bridge stopped", false)
		}
	}

	return m, nil
}

func (m *model) addLogEntry(at time.Time, message string, isError bool) {
	m.log = append(m.log, logEntry{
		timestamp: at,
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

func (m model) idle() bool {
	return m.lastPacket.IsZero() || time.Since(m.lastPacket) > idleAfter
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("BLEMIDI - BRIDGE MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Source: %s | Sink: %s | Press 'q' to quit",
		m.info.source, m.info.sink)))
	s.WriteString("\n\n")

	// Activity
	switch {
	case m.bridgeDone && m.bridgeErr != nil:
		s.WriteString(errorStyle.Render("✗ Bridge stopped"))
	case m.bridgeDone:
		s.WriteString(statsValueStyle.Render("✓ Input drained"))
	case !m.stats.Connected:
		s.WriteString(warningStyle.Render("⏳ Waiting for BLE link..."))
	case m.idle():
		s.WriteString(m.spinner.View() + warningStyle.Render(" Waiting for MIDI..."))
	default:
		s.WriteString(statsValueStyle.Render("♪ Streaming"))
	}
	s.WriteString("\n\n")

	st := m.stats
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Bytes In:"), statsValueStyle.Render(fmt.Sprintf("%d", st.BytesIn)),
		statsLabelStyle.Render("Events:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Events)),
		statsLabelStyle.Render("Ignored:"), warningStyle.Render(fmt.Sprintf("%d", st.Ignored)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Packets:"), statsValueStyle.Render(fmt.Sprintf("%d (avg %.1f B)", st.Packets, st.AveragePacketSize())),
		statsLabelStyle.Render("Tick/Overflow:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", st.TickFlushes, st.OverflowFlushes)),
		statsLabelStyle.Render("Send Errors:"), func() string {
			if st.SendErrors > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", st.SendErrors))
			}
			return statsValueStyle.Render("0")
		}(),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Capacity:"), statsValueStyle.Render(fmt.Sprintf("%d B", st.Capacity)),
		statsLabelStyle.Render("Tick:"), statsValueStyle.Render(st.TickInterval.String()),
		statsLabelStyle.Render("Reconfigures:"), statsValueStyle.Render(fmt.Sprintf("%d (%d rejected)", st.Reconfigures, st.RejectedReconfigures)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Packet Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", st.PacketRate)),
		statsLabelStyle.Render("Byte Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f B/s", st.ByteRate)),
		statsLabelStyle.Render("Uptime:"), statsValueStyle.Render(formatUptime(uint64(time.Since(st.StartTime).Milliseconds()))),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("Recent Packets:"))
	s.WriteString("\n")

	logHeight := m.height - 14 // header and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.log) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.log) == 0 {
		logContent.WriteString(headerStyle.Render("  (no packets yet)"))
	} else {
		for i := startIdx; i < len(m.log); i++ {
			entry := m.log[i]
			if entry.isError {
				logContent.WriteString(errorStyle.Render("✗ "+entry.message) + "\n")
			} else {
				logContent.WriteString(entry.message + "\n")
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

// bridgeRunner is satisfied by *bridge.Bridge
type bridgeRunner interface {
	statsSource
	Run(ctx context.Context) error
}

// runMonitor runs the bridge under the TUI. Quitting the TUI cancels the bridge.
func runMonitor(ctx context.Context, cancel context.CancelFunc, b bridgeRunner, packets <-chan packetMsg, info monitorInfo) error {
	p := tea.NewProgram(initialModel(info, b, packets), tea.WithContext(ctx))

	errCh := make(chan error, 1)
	go func() {
		err := b.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		errCh <- err
		p.Send(bridgeDoneMsg{err: err})
	}()

	_, tuiErr := p.Run()
	cancel()
	bridgeErr := <-errCh

	if tuiErr != nil && !errors.Is(tuiErr, tea.ErrProgramKilled) && !errors.Is(tuiErr, context.Canceled) {
		return tuiErr
	}
	return bridgeErr
}
