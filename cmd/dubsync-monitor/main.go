// dubsync-monitor is a terminal dashboard for watching a running
// playback engine: the clock, the active narration, source state, and
// dependency health, polled over the HTTP API.
package main

import (
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	accent  = lipgloss.Color("#1E88E5")
	good    = lipgloss.Color("#4CAF50")
	bad     = lipgloss.Color("#F44336")
	muted   = lipgloss.Color("#90A4AE")
	textCol = lipgloss.Color("#E0E0E0")

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#1C2128")).
			Padding(0, 2).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#30363D")).
			Foreground(textCol).
			Padding(1, 2).
			Width(52)

	titleStyle = lipgloss.NewStyle().Foreground(accent).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(good).Bold(true)
	downStyle  = lipgloss.NewStyle().Foreground(bad).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(muted)
)

type playbackStatus struct {
	Time        float64 `json:"time"`
	Playing     bool    `json:"playing"`
	SourceState string  `json:"source_state"`
	ActiveTrack string  `json:"active_track"`
	Active      *struct {
		SubtitleID int64  `json:"subtitle_id"`
		Track      string `json:"track"`
	} `json:"active_narration"`
}

type healthStatus struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Checks map[string]struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"checks"`
}

type pollMsg struct {
	status *playbackStatus
	health *healthStatus
	err    error
}

type tickMsg time.Time

type model struct {
	baseURL string
	client  *http.Client

	status  *playbackStatus
	health  *healthStatus
	lastErr error
	polls   int
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.poll, tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) poll() tea.Msg {
	msg := pollMsg{}

	var status playbackStatus
	if err := m.fetch("/api/v1/playback/status", &status); err != nil {
		msg.err = err
		return msg
	}
	msg.status = &status

	var health healthStatus
	if err := m.fetch("/health", &health); err == nil {
		msg.health = &health
	}

	return msg
}

func (m model) fetch(path string, out interface{}) error {
	resp, err := m.client.Get(m.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.poll, tick())
	case pollMsg:
		m.polls++
		m.lastErr = msg.err
		if msg.status != nil {
			m.status = msg.status
		}
		if msg.health != nil {
			m.health = msg.health
		}
	}
	return m, nil
}

func (m model) View() string {
	header := headerStyle.Render("dubsync monitor  " + m.baseURL)

	var body string
	switch {
	case m.lastErr != nil:
		body = panelStyle.Render(downStyle.Render("UNREACHABLE") + "\n\n" + mutedStyle.Render(m.lastErr.Error()))
	case m.status == nil:
		body = panelStyle.Render(mutedStyle.Render("connecting..."))
	default:
		body = lipgloss.JoinVertical(lipgloss.Left, m.playbackPanel(), m.healthPanel())
	}

	footer := mutedStyle.Render(fmt.Sprintf("polls: %d   q to quit", m.polls))

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer) + "\n"
}

func (m model) playbackPanel() string {
	s := m.status

	state := mutedStyle.Render("PAUSED")
	if s.Playing {
		state = okStyle.Render("PLAYING")
	}

	active := mutedStyle.Render("none")
	if s.Active != nil {
		active = okStyle.Render(fmt.Sprintf("subtitle %d (%s)", s.Active.SubtitleID, s.Active.Track))
	}

	track := s.ActiveTrack
	if track == "" {
		track = "-"
	}

	lines := fmt.Sprintf("%s\n\nclock       %8.2fs  %s\nsource      %s\ntrack       %s\nnarration   %s",
		titleStyle.Render("PLAYBACK"),
		s.Time, state,
		s.SourceState,
		track,
		active,
	)
	return panelStyle.Render(lines)
}

func (m model) healthPanel() string {
	if m.health == nil {
		return panelStyle.Render(titleStyle.Render("HEALTH") + "\n\n" + mutedStyle.Render("unavailable"))
	}

	overall := okStyle.Render(m.health.Status)
	if m.health.Status != "ok" {
		overall = downStyle.Render(m.health.Status)
	}

	body := fmt.Sprintf("%s\n\noverall     %s\nuptime      %s", titleStyle.Render("HEALTH"), overall, m.health.Uptime)
	for name, check := range m.health.Checks {
		mark := okStyle.Render("ok")
		if check.Status != "ok" {
			mark = downStyle.Render(check.Status + " " + check.Message)
		}
		body += fmt.Sprintf("\n%-11s %s", name, mark)
	}
	return panelStyle.Render(body)
}

func main() {
	var (
		baseURL  string
		insecure bool
	)
	flag.StringVar(&baseURL, "url", "https://localhost:8080", "Engine base URL")
	flag.BoolVar(&insecure, "insecure", true, "Skip TLS verification (self-signed dev certs)")
	flag.Parse()

	client := &http.Client{
		Timeout: 3 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure},
		},
	}

	m := model{baseURL: baseURL, client: client}

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor error: %v\n", err)
		os.Exit(1)
	}
}
