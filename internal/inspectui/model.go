// Package inspectui provides the Bubble Tea interface for browsing one analyzed dump.
package inspectui

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/verte-zerg/dt5202fix/internal/fixer"
	"github.com/verte-zerg/dt5202fix/internal/outlier"
	"github.com/verte-zerg/dt5202fix/internal/stats"
	"github.com/verte-zerg/dt5202fix/internal/validity"
)

const (
	tabOverview = iota
	tabRejected
	tabSequences
)

const plotHeight = 10

// policyCycle is the order the policy key steps through.
var policyCycle = []validity.Policy{
	{ExcludeIQR: true},
	{ExcludeIQR: true, ExcludeDiff: true},
	{ExcludeDiff: true},
	{},
}

// Model implements the Bubble Tea inspect UI.
type Model struct {
	res    *fixer.Result
	detect outlier.Config

	errMsg string

	tabs         []string
	activeTab    int
	viewports    []viewport.Model
	rejectTable  table.Model
	rejectLayout tableLayout

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string
}

type tableLayout struct {
	width    int
	height   int
	rowCount int
}

// NewModel constructs an inspect UI over an analyzed run. Policy and threshold
// changes made in the UI reclassify res in place.
func NewModel(res *fixer.Result, detect outlier.Config) *Model {
	m := &Model{
		res:    res,
		detect: detect,
		tabs:   []string{"Overview", "Rejected Frames", "Sequences"},
	}
	m.initInputs()
	m.rejectTable = newRejectTable()
	m.initViewports()
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || (!m.filterMode && msg.String() == "q") {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "p":
			m.res.Reclassify(m.detect, nextPolicy(m.res.Policy))
			m.refresh()
			return m, nil
		case "/":
			return m.startFilter()
		case "g", "home":
			if m.activeTab == tabRejected {
				m.rejectTable.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabRejected {
				m.rejectTable.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabRejected {
				var cmd tea.Cmd
				m.rejectTable, cmd = m.rejectTable.Update(msg)
				return m, cmd
			}
			vp := m.viewports[m.activeTab]
			var cmd tea.Cmd
			vp, cmd = vp.Update(msg)
			m.viewports[m.activeTab] = vp
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fit(m.renderHeader(), m.width, headerHeight)
	body := fit(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fit(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) initViewports() {
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
}

func (m *Model) initInputs() {
	m.filterInputs = []textinput.Model{
		newFilterInput("IQR k: "),
		newFilterInput("TrgID diff: "),
		newFilterInput("TS diff: "),
	}
	m.setInputsFromConfig()
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) setInputsFromConfig() {
	m.filterInputs[0].SetValue(formatFloat(m.detect.IQRMultiplier))
	m.filterInputs[1].SetValue(formatFloat(m.detect.TrgIDDiffThreshold))
	m.filterInputs[2].SetValue(formatFloat(m.detect.TSDiffThreshold))
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(lipgloss.Height(tabActive.Render("X")), 1)
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(m.height-headerHeight-footerHeight, 1)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, vpHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = vpHeight
	}
	m.setRejectTableSize(m.width, vpHeight)
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = max(10, m.width-promptWidth-2)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := (m.activeTab + delta + count) % count
	m.activeTab = next
	if m.activeTab == tabRejected {
		m.rejectTable.Focus()
	} else {
		m.rejectTable.Blur()
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, tabActive.Render(tab))
		} else {
			parts = append(parts, tabIdle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := fit(m.renderTabs(), m.width, -1)
	settings := fit(m.renderSettingsSummary(), m.width, -1)
	return tabs + "\n" + settings
}

func (m *Model) renderSettingsSummary() string {
	s := m.res.Summary
	summary := fmt.Sprintf("Settings: exclude=%s  iqr-k=%s  trgid-diff=%s  ts-diff=%s  valid=%d/%d",
		policyLabel(m.res.Policy),
		formatFloat(m.detect.IQRMultiplier),
		formatFloat(m.detect.TrgIDDiffThreshold),
		formatFloat(m.detect.TSDiffThreshold),
		s.ValidFrames, s.Frames)
	return mutedText.Render(truncate(summary, m.width))
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return mutedText.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	help := mutedText.Render("Nav: left/right  Scroll: up/down/pgup/pgdn  Policy: p  Thresholds: /  Quit: q")
	if m.errMsg != "" {
		return help + "\n" + errText.Render(m.errMsg)
	}
	return help
}

func (m *Model) renderFilterForm() string {
	lines := []string{"Thresholds (enter to apply, esc to cancel)"}
	for _, input := range m.filterInputs {
		lines = append(lines, input.View())
	}
	if m.filterError != "" {
		lines = append(lines, errText.Render(m.filterError))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderBody(height int) string {
	if m.filterMode {
		return fit(m.renderFilterForm(), m.width, height)
	}
	if m.activeTab == tabRejected {
		if len(m.res.Rejected) == 0 {
			return fit("No rejected frames.", m.width, height)
		}
		return fit(tableText.Render(m.rejectTable.View()), m.width, height)
	}
	return fit(m.viewports[m.activeTab].View(), m.width, height)
}

// refresh rebuilds every tab from the current result.
func (m *Model) refresh() {
	m.errMsg = ""
	rows := rejectRows(m.res)
	m.rejectTable.SetRows(rows)
	m.rejectLayout.rowCount = len(rows)
	m.renderTabContents()
}

func (m *Model) renderTabContents() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabOverview].SetContent(m.renderOverview(width))
	m.viewports[tabSequences].SetContent(m.renderSequences(width))
}

func (m *Model) renderOverview(width int) string {
	s := m.res.Summary
	cards := []string{
		metricCard("Frames", humanize.Comma(int64(s.Frames))),
		metricCard("Intact", humanize.Comma(int64(s.IntactFrames))),
		metricCard("Valid", humanize.Comma(int64(s.ValidFrames))),
		metricCard("Abnormal", humanize.Comma(int64(s.AbnormalFrames))),
		metricCard("Zero-channel", humanize.Comma(int64(s.ZeroChannelFrames))),
	}
	var summary string
	if width < 80 {
		summary = strings.Join(cards, "\n")
	} else {
		summary = lipgloss.JoinHorizontal(lipgloss.Top, cards...)
	}

	var buf bytes.Buffer
	if err := stats.RenderOutlierTable(&buf, m.res.Report, m.res.Policy); err != nil {
		return fmt.Sprintf("Failed to render outliers: %v", err)
	}
	mult := stats.TrgIDMultiplicity(&m.res.Parse.Table)
	lines := []string{
		summary,
		"",
		fmt.Sprintf("Input: %s (%s)", s.InputPath, humanize.Bytes(uint64(s.InputBytes))),
		fmt.Sprintf("TrgID: %s", mult),
		"",
		strings.TrimRight(buf.String(), "\n"),
	}
	if n := len(m.res.Parse.Diagnostics); n > 0 {
		lines = append(lines, "", fmt.Sprintf("Diagnostics: %s", humanize.Comma(int64(n))))
	}
	return strings.Join(lines, "\n")
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardLabel.Render(label), cardValue.Render(value))
	return card.Render(content)
}

func (m *Model) renderSequences(width int) string {
	if m.res.Parse.Table.Len() == 0 {
		return "No frames found."
	}
	var buf bytes.Buffer
	opts := stats.PlotOptions{Width: stats.PlotWidthFor(width), Height: plotHeight, Color: true}
	if err := stats.RenderSequences(&buf, &m.res.Parse.Table, m.res.Report, opts); err != nil {
		return fmt.Sprintf("Failed to render sequences: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func rejectColumns() []table.Column {
	return []table.Column{
		{Title: "Frame", Width: 8},
		{Title: "Board", Width: 5},
		{Title: "TrgID", Width: 12},
		{Title: "TS", Width: 16},
		{Title: "CH", Width: 4},
		{Title: "Abnormal", Width: 8},
		{Title: "Reasons", Width: 28},
	}
}

func rejectRows(res *fixer.Result) []table.Row {
	rows := make([]table.Row, 0, len(res.Rejected))
	for _, rf := range res.Rejected {
		rows = append(rows, table.Row{
			strconv.Itoa(rf.Frame),
			strconv.Itoa(rf.Board),
			strconv.FormatInt(rf.TrgID, 10),
			strconv.FormatFloat(rf.Timestamp, 'f', 3, 64),
			strconv.Itoa(rf.Channels),
			strconv.Itoa(rf.Abnormal),
			validity.Reason(rf.Reasons).String(),
		})
	}
	return rows
}

func newRejectTable() table.Model {
	t := table.New(
		table.WithColumns(rejectColumns()),
		table.WithHeight(1),
	)
	t.SetStyles(rejectTableStyles())
	return t
}

func rejectTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func (m *Model) setRejectTableSize(width, height int) {
	viewportHeight := max(1, height-1)
	if m.rejectLayout.width == width && m.rejectLayout.height == viewportHeight {
		return
	}
	m.rejectLayout.width = width
	m.rejectLayout.height = viewportHeight
	m.rejectTable.SetWidth(width)
	m.rejectTable.SetHeight(viewportHeight)
	// The header border takes rows the table height does not count.
	if viewHeight := lipgloss.Height(m.rejectTable.View()); viewHeight != height {
		m.rejectTable.SetHeight(max(1, viewportHeight+height-viewHeight))
	}
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.setInputsFromConfig()
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		cfg, err := m.parseFilter()
		if err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filterMode = false
		m.filterError = ""
		m.detect = cfg
		m.res.Reclassify(m.detect, m.res.Policy)
		m.refresh()
		m.updateLayout()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	m.filterIndex = (idx + count) % count
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) parseFilter() (outlier.Config, error) {
	names := []string{"IQR k", "TrgID diff", "TS diff"}
	values := make([]float64, len(m.filterInputs))
	for i, input := range m.filterInputs {
		raw := strings.TrimSpace(input.Value())
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return outlier.Config{}, fmt.Errorf("invalid %s (use a number > 0)", names[i])
		}
		values[i] = v
	}
	return outlier.Config{
		IQRMultiplier:      values[0],
		TrgIDDiffThreshold: values[1],
		TSDiffThreshold:    values[2],
	}, nil
}

func nextPolicy(p validity.Policy) validity.Policy {
	for i, c := range policyCycle {
		if c == p {
			return policyCycle[(i+1)%len(policyCycle)]
		}
	}
	return policyCycle[0]
}

func policyLabel(p validity.Policy) string {
	switch {
	case p.ExcludeIQR && p.ExcludeDiff:
		return "iqr,diff"
	case p.ExcludeIQR:
		return "iqr"
	case p.ExcludeDiff:
		return "diff"
	default:
		return "none"
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
