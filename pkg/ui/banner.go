// Package ui renders the startup banner shown in text mode.
package ui

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#10B981") // Green
	ColorMuted     = lipgloss.Color("#6B7280") // Gray
	ColorBorder    = lipgloss.Color("#374151") // Dark gray
)

// Styles
var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ColorPrimary).
			Padding(0, 2)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Width(14)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)
)

// BannerInfo is what the banner shows.
type BannerInfo struct {
	Version      string
	ProviderURL  string
	PollInterval time.Duration
	RetryLimit   int
	Output       string
	LogFile      string
}

// Banner renders info as a boxed block.
func Banner(info BannerInfo) string {
	rows := [][2]string{
		{"version", info.Version},
		{"provider", RedactURL(info.ProviderURL)},
		{"interval", info.PollInterval.String()},
		{"retry limit", fmt.Sprintf("%d", info.RetryLimit)},
		{"output", info.Output},
	}
	if info.LogFile != "" {
		rows = append(rows, [2]string{"log file", info.LogFile})
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, TitleStyle.Render("gas price monitor"))
	for _, r := range rows {
		lines = append(lines, LabelStyle.Render(r[0])+ValueStyle.Render(r[1]))
	}

	return BoxStyle.Render(strings.Join(lines, "\n"))
}

// RedactURL keeps scheme and host only. Provider URLs often embed API keys
// in the path or query.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid url>"
	}
	if u.Path == "" && u.RawQuery == "" && u.User == nil {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "/***"
}
