package ui

import (
	"fmt"
	"time"

	"github.com/BioHazard786/Warpchat/internal/session"
	"github.com/BioHazard786/Warpchat/internal/utils"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	pretty "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PoolsView renders the announce endpoints with their position in the list.
func PoolsView(pools []string) string {
	if len(pools) == 0 {
		return MutedStyle.Render("No announce endpoints configured")
	}

	rows := make([][]string, len(pools))
	for i, p := range pools {
		rows[i] = []string{fmt.Sprintf("%d", i+1), utils.TruncateString(p, 60)}
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Announce endpoint").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func RenderPools(pools []string) {
	fmt.Println(PoolsView(pools))
}

// SummaryView is the end-of-run table of what moved over the wire.
func SummaryView(stats session.Stats, elapsed time.Duration) string {
	t := pretty.NewWriter()
	t.SetTitle("Session Summary")
	t.SetStyle(pretty.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.Style().Title.Colors = text.Colors{text.FgCyan, text.Bold}

	t.AppendHeader(pretty.Row{"Metric", "Sent", "Received"})
	t.AppendRows([]pretty.Row{
		{"Messages", stats.MessagesSent, stats.MessagesReceived},
		{"Files", stats.FilesSent, stats.FilesReceived},
		{"Bytes", utils.FormatSize(stats.BytesSent), utils.FormatSize(stats.BytesReceived)},
	})
	t.AppendSeparator()
	t.AppendRow(pretty.Row{"Sessions", stats.Sessions, ""})
	if secs := elapsed.Seconds(); secs > 0 {
		t.AppendRow(pretty.Row{"Throughput", utils.FormatSpeed(float64(stats.BytesSent) / secs), utils.FormatSpeed(float64(stats.BytesReceived) / secs)})
	}
	t.AppendFooter(pretty.Row{"Duration", utils.FormatTimeDuration(elapsed), ""})

	t.SetColumnConfigs([]pretty.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	return t.Render()
}

func RenderSummary(stats session.Stats, elapsed time.Duration) {
	fmt.Println(SummaryView(stats, elapsed))
}

// DescriptionView frames an offer or answer for copying to the other side.
func DescriptionView(sdpType, desc string) string {
	title := fmt.Sprintf("%s Your %s, send it to the other side:", IconCopy, sdpType)
	return BoxStyle.Render(TitleStyle.Render(title) + "\n\n" + desc)
}
