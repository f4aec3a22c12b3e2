package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"stockpane/internal/app"
	"stockpane/internal/config"
	"stockpane/internal/dashboard"
	"stockpane/internal/domain"
	"stockpane/internal/refresh"
	"stockpane/internal/store"
	"stockpane/internal/util"
)

// Styles.
var (
	riseStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	fallStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	neutralStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Padding(0, 1)
	tabActiveStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6")).Padding(0, 1)
	paneStyle      = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
	paneFocusStyle = paneStyle.BorderForeground(lipgloss.Color("6"))
	errStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	confirmStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	highlightBG    = lipgloss.Color("236") // dark grey background
)

// hlStyle returns a copy of s with the highlight background applied when hl is true.
func hlStyle(s lipgloss.Style, hl bool) lipgloss.Style {
	if hl {
		return s.Background(highlightBG)
	}
	return s
}

func classStyle(c dashboard.Class) lipgloss.Style {
	switch c {
	case dashboard.Rise:
		return riseStyle
	case dashboard.Fall:
		return fallStyle
	default:
		return neutralStyle
	}
}

// Messages.
type viewsMsg struct {
	views map[string]dashboard.View
}

type dispatchMsg struct {
	cmd app.Command
	res app.Result
	err error
}

// actionMsg reports a desktop action (clipboard, browser).
type actionMsg struct {
	status string
	err    error
}

type inputMode int

const (
	inputNone inputMode = iota
	inputSymbol
	inputPortfolio
	inputConfirm
)

// chartURLPrefix is the Yahoo Finance chart page; the symbol is appended.
const chartURLPrefix = "https://finance.yahoo.com/chart/"

// Desktop hooks, replaced in tests.
var (
	writeClipboard = clipboard.WriteAll
	openBrowser    = browser.OpenURL
)

func chartURL(symbol string) string {
	return chartURLPrefix + url.PathEscape(symbol)
}

// paneState is the per-pane cursor: active tab, page and selected row.
type paneState struct {
	tab    int
	page   int
	cursor int
}

// Model.
type model struct {
	app      *app.Application
	sched    *refresh.Scheduler
	ctx      context.Context
	cancel   context.CancelFunc
	pageSize int
	logger   *slog.Logger

	views  map[string]dashboard.View
	side   store.Side
	panes  map[store.Side]*paneState
	status string
	errMsg string
	busy   int

	input   textinput.Model
	mode    inputMode
	pending app.Command // awaiting y/n in inputConfirm
	prompt  string

	viewport      viewport.Model
	ready         bool
	width, height int
}

func initialModel(ctx context.Context, cancel context.CancelFunc, a *app.Application, sched *refresh.Scheduler, pageSize int, logger *slog.Logger) model {
	ti := textinput.New()
	ti.CharLimit = 32
	return model{
		app:      a,
		sched:    sched,
		ctx:      ctx,
		cancel:   cancel,
		pageSize: pageSize,
		logger:   logger,
		views:    make(map[string]dashboard.View),
		side:     store.SideLeft,
		panes: map[store.Side]*paneState{
			store.SideLeft:  {},
			store.SideRight: {},
		},
		input: ti,
	}
}

func (m model) Init() tea.Cmd {
	sched, ctx := m.sched, m.ctx
	return func() tea.Msg {
		sched.Start(ctx)
		return nil
	}
}

// dispatch runs c off the UI loop and reports back with a dispatchMsg.
func (m *model) dispatch(c app.Command) tea.Cmd {
	a, ctx := m.app, m.ctx
	m.busy++
	return func() tea.Msg {
		res, err := a.Dispatch(ctx, c)
		return dispatchMsg{cmd: c, res: res, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			// The scheduler is stopped after the program exits; stopping it
			// here could wait on a task blocked sending to this loop.
			m.cancel()
			return m, tea.Quit
		case "pgup", "pgdown":
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "tab":
			m.side = other(m.side)
		case "[", "]":
			n := len(m.app.Pane(m.side).Portfolios())
			if n > 0 {
				ps := m.panes[m.side]
				if msg.String() == "[" {
					ps.tab = (ps.tab + n - 1) % n
				} else {
					ps.tab = (ps.tab + 1) % n
				}
				ps.page, ps.cursor = 0, 0
			}
		case "up", "k":
			m.moveCursor(-1)
		case "down", "j":
			m.moveCursor(1)
		case ",", ".":
			ps := m.panes[m.side]
			if msg.String() == "," {
				ps.page--
			} else {
				ps.page++
			}
			ps.cursor = 0
		case "1", "2", "3":
			p := m.activePortfolio(m.side)
			if p == nil {
				return m, nil
			}
			col := map[string]domain.Column{
				"1": domain.ColumnSymbol,
				"2": domain.ColumnPrice,
				"3": domain.ColumnChangePercent,
			}[msg.String()]
			return m, m.dispatch(app.ChangeSort{Portfolio: p.ID, Column: col})
		case "r":
			m.status = "refreshing..."
			return m, m.dispatch(app.Refresh{})
		case "a":
			if m.activePortfolio(m.side) != nil {
				m.startInput(inputSymbol, "symbol to add")
			}
		case "n":
			m.startInput(inputPortfolio, "new portfolio name")
		case "d":
			p, sym := m.activePortfolio(m.side), m.selectedSymbol()
			if p != nil && sym != "" {
				m.confirm(app.RemoveSymbol{Portfolio: p.ID, Symbol: sym},
					fmt.Sprintf("remove %s from %s?", sym, p.Name))
			}
		case "c":
			if sym := m.selectedSymbol(); sym != "" {
				return m, copySymbol(sym)
			}
		case "o":
			if sym := m.selectedSymbol(); sym != "" {
				return m, openChart(sym)
			}
		case "m":
			from, to := m.activePortfolio(m.side), m.activePortfolio(other(m.side))
			sym := m.selectedSymbol()
			if from != nil && to != nil && sym != "" {
				return m, m.dispatch(app.MoveSymbol{From: from.ID, To: to.ID, Symbol: sym})
			}
		case "x":
			if p := m.activePortfolio(m.side); p != nil {
				m.confirm(app.DeletePortfolio{Portfolio: p.ID},
					fmt.Sprintf("delete portfolio %s and its file?", p.Name))
			}
		}
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			m.logger.Warn("action failed", "error", msg.err)
		} else {
			m.errMsg = ""
			m.status = msg.status
		}
		return m, nil

	case viewsMsg:
		for id, v := range msg.views {
			m.views[id] = v
		}
		m.status = "updated " + time.Now().Format("15:04:05")
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case dispatchMsg:
		m.busy--
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			m.logger.Warn("command failed", "command", fmt.Sprintf("%T", msg.cmd), "error", msg.err)
		} else {
			m.errMsg = ""
			for id, v := range msg.res.Views {
				m.views[id] = v
			}
			switch c := msg.cmd.(type) {
			case app.Refresh:
				m.status = "updated " + time.Now().Format("15:04:05")
			case app.AddPortfolio:
				m.panes[c.Side].tab = len(m.app.Pane(c.Side).Portfolios()) - 1
			case app.DeletePortfolio:
				delete(m.views, msg.res.Portfolio)
				m.clampTabs()
			}
		}
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerH := 1
		footerH := 2
		vpHeight := m.height - headerH - footerH
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.viewport.SetContent(m.renderContent())
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == inputConfirm {
		c := m.pending
		m.pending, m.prompt = nil, ""
		m.mode = inputNone
		if k := msg.String(); (k == "y" || k == "Y") && c != nil {
			return m, m.dispatch(c)
		}
		m.status = "cancelled"
		return m, nil
	}

	switch msg.String() {
	case "esc":
		m.stopInput()
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.stopInput()
		if value == "" {
			return m, nil
		}
		if mode == inputSymbol {
			if p := m.activePortfolio(m.side); p != nil {
				return m, m.dispatch(app.AddSymbol{Portfolio: p.ID, Symbol: value})
			}
			return m, nil
		}
		return m, m.dispatch(app.AddPortfolio{Side: m.side, Name: value})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) startInput(mode inputMode, prompt string) {
	m.mode = mode
	m.input.Placeholder = prompt
	m.input.SetValue("")
	m.input.Focus()
}

func (m *model) stopInput() {
	m.mode = inputNone
	m.input.Blur()
}

// confirm holds c until the user answers y; any other key cancels it.
func (m *model) confirm(c app.Command, prompt string) {
	m.mode = inputConfirm
	m.pending = c
	m.prompt = prompt
}

func copySymbol(sym string) tea.Cmd {
	return func() tea.Msg {
		if err := writeClipboard(sym); err != nil {
			return actionMsg{err: fmt.Errorf("copying %s: %w", sym, err)}
		}
		return actionMsg{status: "copied " + sym}
	}
}

func openChart(sym string) tea.Cmd {
	return func() tea.Msg {
		u := chartURL(sym)
		if err := openBrowser(u); err != nil {
			return actionMsg{err: fmt.Errorf("opening %s: %w", u, err)}
		}
		return actionMsg{status: "opened chart for " + sym}
	}
}

func other(s store.Side) store.Side {
	if s == store.SideLeft {
		return store.SideRight
	}
	return store.SideLeft
}

// activePortfolio returns the selected tab of side, or nil for an empty pane.
func (m *model) activePortfolio(side store.Side) *app.Portfolio {
	ps := m.app.Pane(side).Portfolios()
	if len(ps) == 0 {
		return nil
	}
	st := m.panes[side]
	st.tab = min(max(st.tab, 0), len(ps)-1)
	return ps[st.tab]
}

func (m *model) clampTabs() {
	for _, side := range store.Sides {
		m.activePortfolio(side)
	}
}

// viewFor returns the last delivered view of p, or its current cache view
// when none has arrived yet.
func (m *model) viewFor(p *app.Portfolio) dashboard.View {
	if v, ok := m.views[p.ID]; ok {
		return v
	}
	return p.View()
}

func (m *model) currentPage(side store.Side) (dashboard.Page, bool) {
	p := m.activePortfolio(side)
	if p == nil {
		return dashboard.Page{}, false
	}
	st := m.panes[side]
	page := dashboard.Paginate(m.viewFor(p).Rows, st.page, m.pageSize)
	st.page = page.Number
	return page, true
}

func (m *model) moveCursor(delta int) {
	page, ok := m.currentPage(m.side)
	if !ok || len(page.Rows) == 0 {
		return
	}
	st := m.panes[m.side]
	st.cursor = min(max(st.cursor+delta, 0), len(page.Rows)-1)
}

func (m *model) selectedSymbol() string {
	page, ok := m.currentPage(m.side)
	if !ok || len(page.Rows) == 0 {
		return ""
	}
	st := m.panes[m.side]
	st.cursor = min(max(st.cursor, 0), len(page.Rows)-1)
	return page.Rows[st.cursor].Symbol
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	headerText := fmt.Sprintf(" stockpane    %s", m.status)
	if m.busy > 0 {
		headerText += "    working..."
	}
	headerBar := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("4")).
		Render(padOrTrunc(headerText, m.width))

	var statusLine string
	switch {
	case m.mode == inputConfirm:
		statusLine = confirmStyle.Render(padOrTrunc(" "+m.prompt+" (y/n)", m.width))
	case m.mode != inputNone:
		statusLine = " " + m.input.View()
	case m.errMsg != "":
		statusLine = errStyle.Render(padOrTrunc(" "+m.errMsg, m.width))
	default:
		statusLine = ""
	}

	footerText := " q quit  tab pane  [/] portfolio  1/2/3 sort  r refresh  a add  d del  m move  c copy  o chart  n/x new/del portfolio  ,/. page"
	footerBar := lipgloss.NewStyle().
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("8")).
		Render(padOrTrunc(footerText, m.width))

	return headerBar + "\n" + m.viewport.View() + "\n" + statusLine + "\n" + footerBar
}

func (m model) renderContent() string {
	// Each pane's border takes two columns.
	w := max(m.width/2-2, 20)
	left := m.renderPane(store.SideLeft, w)
	right := m.renderPane(store.SideRight, w)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m model) renderPane(side store.Side, width int) string {
	var b strings.Builder

	ports := m.app.Pane(side).Portfolios()
	st := m.panes[side]
	var tabs []string
	for i, p := range ports {
		if i == st.tab {
			tabs = append(tabs, tabActiveStyle.Render(p.Name))
		} else {
			tabs = append(tabs, tabStyle.Render(p.Name))
		}
	}
	if len(tabs) == 0 {
		b.WriteString(dimStyle.Render(padOrTrunc(" no portfolios (n to add)", width)))
		return m.frame(side, b.String())
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n")

	page, _ := m.currentPage(side)
	p := m.activePortfolio(side)
	sel := p.Selector()

	b.WriteString(colHeaderStyle.Render(padOrTrunc(fmt.Sprintf(" %-10s %12s %10s",
		header("Symbol", domain.ColumnSymbol, sel),
		header("Price", domain.ColumnPrice, sel),
		header("Change%", domain.ColumnChangePercent, sel),
	), width)))
	b.WriteString("\n")

	if len(page.Rows) == 0 {
		b.WriteString(dimStyle.Render(padOrTrunc(" empty (a to add)", width)))
		b.WriteString("\n")
	}
	for i, r := range page.Rows {
		hl := side == m.side && i == st.cursor
		marker := " "
		if r.Stale {
			marker = "*"
		}
		line := fmt.Sprintf("%s%-10s %12s %10s", marker, r.Symbol, r.Price, r.ChangePercent)
		style := classStyle(r.Class)
		if r.Pending {
			style = dimStyle
		}
		b.WriteString(hlStyle(style, hl).Render(padOrTrunc(line, width)))
		b.WriteString("\n")
	}
	if page.Count > 1 {
		b.WriteString(dimStyle.Render(fmt.Sprintf(" page %d/%d", page.Number+1, page.Count)))
		b.WriteString("\n")
	}
	return m.frame(side, b.String())
}

func (m model) frame(side store.Side, content string) string {
	if side == m.side {
		return paneFocusStyle.Render(content)
	}
	return paneStyle.Render(content)
}

// header labels a column, marking the active sort column with its arrow.
func header(label string, col domain.Column, sel domain.Selector) string {
	if sel.Column == col {
		return label + sel.Direction.Arrow()
	}
	return label
}

// padOrTrunc pads s with spaces to width cells, or truncates if wider.
func padOrTrunc(s string, width int) string {
	if w := ansi.StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return ansi.Truncate(s, width, "")
}

func openLog(cfg *config.Config) (*slog.Logger, func(), error) {
	logPath := cfg.Logging.File
	if logPath == "" {
		logPath = filepath.Join(os.TempDir(), fmt.Sprintf("stockpane-%s.log", time.Now().Format("2006-01-02")))
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, logFile), func() { logFile.Close() }, nil
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, closeLog, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var p *tea.Program
	sched := refresh.NewScheduler(cfg.Refresh.PollInterval, func(ctx context.Context) {
		res, _ := a.Dispatch(ctx, app.Refresh{})
		if ctx.Err() == nil {
			p.Send(viewsMsg{views: res.Views})
		}
	})

	p = tea.NewProgram(
		initialModel(ctx, cancel, a, sched, cfg.Display.PageSize, logger),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err = p.Run()
	sched.Stop()
	return err
}

func main() {
	var configPath string
	rootCmd := &cobra.Command{
		Use:   "stockpane",
		Short: "Two-pane terminal stock portfolio tracker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML config (env STOCKPANE_CONFIG)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if v := os.Getenv("STOCKPANE_CONFIG"); v != "" {
		return v
	}
	return "config/stockpane.yaml"
}
