// Package ux renders probe progress and summaries for the terminal.
package ux

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/leandroluk/golem-statichooks/metrics"
	"github.com/leandroluk/golem-statichooks/probe"
)

var (
	ColorPrimary = lipgloss.Color("#20B9B4")
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Bold(true).Foreground(ColorSuccess),
	Error:   lipgloss.NewStyle().Bold(true).Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorPrimary).
		Padding(0, 1),
}

// Reporter prints one line per scenario. It implements probe.Reporter.
type Reporter struct {
	mutex sync.Mutex
	out   io.Writer
}

var _ probe.Reporter = (*Reporter)(nil)

func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// Banner prints the run header.
func (r *Reporter) Banner(driverName string, scenarioCount int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	fmt.Fprintln(r.out, Styles.Box.Render(
		Styles.Title.Render("statichooks")+" "+
			Styles.Muted.Render(fmt.Sprintf("driver=%s scenarios=%d", driverName, scenarioCount))))
}

func (r *Reporter) ScenarioStarted(scenario probe.Scenario) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	fmt.Fprintf(r.out, "%s %s\n", Styles.Muted.Render("running"), scenario.Name)
}

func (r *Reporter) ScenarioFinished(result probe.Result) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	took := Styles.Muted.Render(result.Duration.Round(time.Microsecond).String())
	if result.Passed() {
		fmt.Fprintf(r.out, "%s %s %s\n", Styles.Success.Render("✔ pass"), result.Scenario.Name, took)
		return
	}
	fmt.Fprintf(r.out, "%s %s %s\n      %s\n", Styles.Error.Render("✘ fail"), result.Scenario.Name, took,
		Styles.Error.Render(result.Err.Error()))
}

// Summary prints pass/fail totals.
func (r *Reporter) Summary(resultList []probe.Result) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	passed := 0
	for _, result := range resultList {
		if result.Passed() {
			passed++
		}
	}
	line := fmt.Sprintf("%d passed, %d failed", passed, len(resultList)-passed)
	if passed == len(resultList) {
		fmt.Fprintln(r.out, Styles.Success.Render(line))
		return
	}
	fmt.Fprintln(r.out, Styles.Error.Render(line))
}

// HookTable prints the hook firing totals gathered by the metrics collector.
func (r *Reporter) HookTable(totalList []metrics.HookTotal) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if len(totalList) == 0 {
		return
	}
	fmt.Fprintln(r.out, Styles.Title.Render("hook firings"))
	for _, total := range totalList {
		if total.Count == 0 {
			continue
		}
		fmt.Fprintf(r.out, "  %-12s %-4s %-9s %-6s %s\n",
			total.Operation, total.Phase, total.Kind, total.Origin,
			Styles.Title.Render(fmt.Sprintf("%.0f", total.Count)))
	}
}

// ScenarioList prints the available scenarios.
func (r *Reporter) ScenarioList(scenarios []probe.Scenario) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, scenario := range scenarios {
		fmt.Fprintf(r.out, "%s\n  %s\n", Styles.Title.Render(scenario.Name), Styles.Muted.Render(scenario.Description))
	}
}
