package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	tickInterval = 150 * time.Millisecond
	marqueeGap   = "   "
	columnGap    = "  "
)

// tickMsg drives the marquee and the elapsed timers.
type tickMsg time.Time

// Column is one column of the acquisition table.
type Column struct {
	Header string
	Width  int
}

// Column headers of the acquisition table.
const (
	ColLocator = "LOCATOR"
	ColVersion = "VERSION"
	ColStatus  = "STATUS"
	ColElapsed = "TIME"
	ColDetail  = "DETAIL"
)

// AcquireColumns is the layout used by install. TIME is computed by the
// model and cannot be set through RowUpdateMsg.
func AcquireColumns() []Column {
	return []Column{
		{Header: ColLocator, Width: 48},
		{Header: ColVersion, Width: 16},
		{Header: ColStatus, Width: 11},
		{Header: ColElapsed, Width: 6},
		{Header: ColDetail, Width: 40},
	}
}

// Row is one acquisition. started is set by the first stage past pending and
// finished by the first terminal stage.
type Row struct {
	Key      string
	Fields   []string
	started  time.Time
	finished time.Time
}

// ProgressModel renders one row per bundle being acquired and updates rows
// as stage messages arrive.
type ProgressModel struct {
	columns  []Column
	rows     []Row
	rowIndex map[string]int
	title    string
	done     bool
	err      error
	// interrupted is set when the user quits before WorkDoneMsg.
	interrupted bool

	statusCol  int
	elapsedCol int
	tick       int
	spinner    spinner.Model
	now        func() time.Time
}

// NewProgressModel creates a model for the given columns. The STATUS and TIME
// columns get special treatment when present.
func NewProgressModel(title string, columns []Column) ProgressModel {
	m := ProgressModel{
		columns:    columns,
		rowIndex:   make(map[string]int),
		title:      title,
		statusCol:  -1,
		elapsedCol: -1,
		spinner:    spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(activeStyle)),
		now:        time.Now,
	}
	for i, c := range columns {
		switch c.Header {
		case ColStatus:
			m.statusCol = i
		case ColElapsed:
			m.elapsedCol = i
		}
	}
	return m
}

// NewAcquireModel seeds a pending row per distinct locator.
func NewAcquireModel(locators []string) ProgressModel {
	m := NewProgressModel("Acquiring bundles", AcquireColumns())
	for _, loc := range locators {
		m.AddRow(loc, map[string]string{ColLocator: loc, ColStatus: "pending"})
	}
	return m
}

// AddRow adds a row keyed by key with fields keyed by column header.
// Duplicate keys are ignored. Call this before the program starts.
func (m *ProgressModel) AddRow(key string, fields map[string]string) {
	if _, exists := m.rowIndex[key]; exists {
		return
	}
	row := Row{Key: key, Fields: make([]string, len(m.columns))}
	m.setFields(&row, fields)
	m.rowIndex[key] = len(m.rows)
	m.rows = append(m.rows, row)
}

func scheduleTick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init satisfies the tea.Model interface.
func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(scheduleTick(), m.spinner.Tick)
}

// Update satisfies the tea.Model interface.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.tick++
		if m.done {
			return m, nil
		}
		return m, scheduleTick()

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case RowUpdateMsg:
		if idx, ok := m.rowIndex[msg.Key]; ok {
			m.setFields(&m.rows[idx], msg.Fields)
		}
		return m, nil

	case WorkDoneMsg:
		m.done = true
		return m, tea.Quit

	case ErrorMsg:
		m.err = msg.Err
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.interrupted = !m.done
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// setFields copies header-keyed values into row and starts or stops its
// timer when the status moves on.
func (m *ProgressModel) setFields(row *Row, fields map[string]string) {
	for j, col := range m.columns {
		if j == m.elapsedCol {
			continue
		}
		if val, ok := fields[col.Header]; ok {
			row.Fields[j] = val
		}
	}

	status, ok := fields[ColStatus]
	if !ok || status == "pending" {
		return
	}
	if row.started.IsZero() {
		row.started = m.now()
	}
	if IsTerminalStatus(status) && row.finished.IsZero() {
		row.finished = m.now()
	}
}

func (m ProgressModel) elapsed(row Row) string {
	if row.started.IsZero() {
		return ""
	}
	end := row.finished
	if end.IsZero() {
		end = m.now()
	}
	return fmt.Sprintf("%.1fs", end.Sub(row.started).Seconds())
}

// View satisfies the tea.Model interface.
func (m ProgressModel) View() string {
	if m.done && m.err != nil {
		return fmt.Sprintf("Error: %v\n", m.err)
	}

	widths := make([]int, len(m.columns))
	header := make([]string, len(m.columns))
	for i, col := range m.columns {
		widths[i] = max(len(col.Header), col.Width)
		header[i] = HeaderStyle.Render(pad(col.Header, widths[i]))
	}

	var b strings.Builder
	if m.title != "" {
		b.WriteString(TitleStyle.Render(m.title))
		b.WriteString("\n\n")
	}
	b.WriteString(strings.Join(header, columnGap))
	b.WriteByte('\n')

	for _, row := range m.rows {
		b.WriteString(m.renderRow(row, widths))
		b.WriteByte('\n')
	}

	if !m.done {
		finished, total := m.progressCounts()
		fmt.Fprintf(&b, "\n%s Acquired %d/%d...\n", m.spinner.View(), finished, total)
	}
	return b.String()
}

func (m ProgressModel) renderRow(row Row, widths []int) string {
	cells := make([]string, len(m.columns))
	for i := range m.columns {
		val := row.Fields[i]
		if i == m.elapsedCol {
			val = m.elapsed(row)
		}

		// Long values scroll while work is running and are cut once it ends.
		if !m.done && len(strings.TrimSpace(val)) > widths[i] {
			val = marqueeText(val, widths[i], m.tick)
		} else {
			val = TruncateWithEllipsis(val, widths[i])
		}

		cell := pad(val, widths[i])
		if i == m.statusCol {
			cell = StatusStyle(val).Render(cell)
		}
		cells[i] = cell
	}
	return strings.Join(cells, columnGap)
}

// progressCounts returns how many rows reached a terminal status, and the
// row count.
func (m ProgressModel) progressCounts() (finished, total int) {
	total = len(m.rows)
	if m.statusCol < 0 {
		return 0, total
	}
	for _, row := range m.rows {
		if IsTerminalStatus(strings.TrimSpace(row.Fields[m.statusCol])) {
			finished++
		}
	}
	return finished, total
}

// Done returns whether the model has finished (work done or error).
func (m ProgressModel) Done() bool {
	return m.done
}

// Interrupted reports whether the user quit while work was still running.
func (m ProgressModel) Interrupted() bool {
	return m.interrupted
}

// Err returns any fatal error that occurred.
func (m ProgressModel) Err() error {
	return m.err
}

func pad(s string, width int) string {
	if n := width - len(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

// marqueeText renders a scrolling window over text wider than width.
func marqueeText(text string, width, tick int) string {
	text = strings.TrimSpace(text)
	if width <= 0 {
		return ""
	}
	if len(text) <= width {
		return text
	}
	cycle := text + marqueeGap
	offset := tick % len(cycle)
	out := make([]byte, width)
	for i := range out {
		out[i] = cycle[(offset+i)%len(cycle)]
	}
	return string(out)
}

// NonEmptyOrDash returns "-" for empty or whitespace-only strings.
func NonEmptyOrDash(value string) string {
	if value = strings.TrimSpace(value); value == "" {
		return "-"
	}
	return value
}

// TruncateWithEllipsis shortens value to limit bytes, ending in "..." when
// there is room for it.
func TruncateWithEllipsis(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	value = strings.TrimSpace(value)
	switch {
	case len(value) <= limit:
		return value
	case limit <= 3:
		return value[:limit]
	default:
		return value[:limit-3] + "..."
	}
}
