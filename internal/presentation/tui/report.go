package tui

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/muesli/termenv"
)

// Report renders result sets for a terminal.
type Report struct {
	out      *termenv.Output
	w        io.Writer
	markdown func(string) (string, error)
	// TopN caps the correlation and feature lists.
	TopN int
}

// NewReport writes to w and renders the explanation text with markdown.
// A nil markdown func prints the text as is.
func NewReport(w io.Writer, markdown func(string) (string, error)) *Report {
	if markdown == nil {
		markdown = PlainRenderer
	}
	return &Report{out: termenv.NewOutput(w), w: w, markdown: markdown, TopN: 5}
}

// Badge colours a task status.
func (r *Report) Badge(s domain.Status) string {
	switch s {
	case domain.StatusSuccess:
		return r.out.String("✔ success").Foreground(r.out.Color("#22c55e")).String()
	case domain.StatusError:
		return r.out.String("✘ error").Foreground(r.out.Color("#ef4444")).Bold().String()
	case domain.StatusLoading:
		return r.out.String("… loading").Foreground(r.out.Color("#eab308")).String()
	default:
		return r.out.String("· pending").Faint().String()
	}
}

// Progress renders one line of a guided run.
func (r *Report) Progress(p runtime.Progress) string {
	const width = 24
	filled := p.Progress * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	line := fmt.Sprintf("%s %3d%%", r.out.String(bar).Foreground(r.out.Color("#38bdf8")), p.Progress)
	switch p.Phase {
	case runtime.PhaseCompleted:
		return line + "  " + r.out.String("Analysis complete").Bold().String()
	case runtime.PhaseError:
		return line + "  " + r.out.String("Failed: "+p.Err).Foreground(r.out.Color("#ef4444")).String()
	}
	title := p.Title
	if title == "" {
		title = p.StepID
	}
	return line + "  " + title
}

// Render writes every section of rs that has data. Failed categories are
// listed with their error so they can be retried one by one.
func (r *Report) Render(rs *domain.ResultSet) error {
	if rs == nil {
		return nil
	}
	r.header(rs)
	r.statuses(rs)

	if p, ok := rs.Portfolio(); ok {
		r.allocation(p)
		r.metrics(p)
	}
	if e, ok := rs.Explanation(); ok {
		if err := r.explanation(e); err != nil {
			return err
		}
	}
	if pts := rs.Performance(); len(pts) > 0 {
		r.performance(pts)
	}
	if pairs := rs.Correlations(); len(pairs) > 0 {
		r.correlations(pairs)
	}
	if pts := rs.RiskReturn(); len(pts) > 0 {
		r.riskReturn(pts)
	}
	return nil
}

func (r *Report) section(title string) {
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, r.out.String(title).Bold().Underline())
}

func (r *Report) header(rs *domain.ResultSet) {
	ac := rs.Context
	fmt.Fprintln(r.w, r.out.String(fmt.Sprintf("Analysis %s", rs.SessionID)).Bold())
	fmt.Fprintf(r.w, "Amount %s · %s risk · %d months · %s explanation · run #%d\n",
		FormatAmount(ac.Amount), ac.RiskTolerance, ac.HorizonMonths, ac.ExplanationMode, rs.Generation)
}

func (r *Report) statuses(rs *domain.ResultSet) {
	r.section("Tasks")
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	for _, c := range domain.Categories() {
		t := rs.Task(c)
		line := fmt.Sprintf("  %s\t%s", c, r.Badge(t.Status))
		if t.Status == domain.StatusLoading {
			line += fmt.Sprintf(" %d%%", t.Progress)
		}
		if t.Error != "" {
			line += "\t" + t.Error
		}
		fmt.Fprintln(tw, line)
	}
	_ = tw.Flush()
}

func (r *Report) allocation(p domain.Portfolio) {
	r.section("Allocation")
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Symbol\tWeight\tAmount\t")
	for _, h := range p.Holdings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", h.Symbol, runtime.FormatPercent(h.Percentage), FormatAmount(h.Amount))
	}
	_ = tw.Flush()

	q := p.Quick
	fmt.Fprintf(r.w, "\nAnnual return %s · Sharpe %s · Max drawdown %s · Volatility %s\n",
		q.AnnualReturn, q.SharpeRatio, q.MaxDrawdown, q.Volatility)
}

func (r *Report) metrics(p domain.Portfolio) {
	if len(p.Metrics) == 0 {
		return
	}
	r.section("Metrics")
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tPortfolio\tBenchmark 1\tBenchmark 2\t")
	for _, m := range p.Metrics {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", m.Label, m.Portfolio, m.Benchmark1, m.Benchmark2)
	}
	_ = tw.Flush()
}

func (r *Report) explanation(e domain.Explanation) error {
	r.section("Explanation")
	if strings.TrimSpace(e.Text) != "" {
		rendered, err := r.markdown(e.Text)
		if err != nil {
			return fmt.Errorf("render explanation: %w", err)
		}
		fmt.Fprintln(r.w, strings.TrimRight(rendered, "\n"))
	}

	features := append([]domain.FeatureImportance(nil), e.FeatureImportance...)
	sort.SliceStable(features, func(i, j int) bool {
		return features[i].ImportanceScore > features[j].ImportanceScore
	})
	if len(features) > r.TopN {
		features = features[:r.TopN]
	}
	for _, f := range features {
		fmt.Fprintf(r.w, "  %s · %s  %s\n", f.AssetName, f.FeatureName, runtime.FormatRatio(f.ImportanceScore))
	}
	return nil
}

func (r *Report) performance(pts []domain.PerformancePoint) {
	r.section("Performance")
	first, last := pts[0], pts[len(pts)-1]
	fmt.Fprintf(r.w, "%s → %s (%d days)\n", first.Date, last.Date, len(pts))
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tPortfolio\tBenchmark 1\tBenchmark 2\t")
	fmt.Fprintf(tw, "Change\t%s\t%s\t%s\t\n",
		change(first.Portfolio, last.Portfolio),
		change(first.Benchmark1, last.Benchmark1),
		change(first.Benchmark2, last.Benchmark2))
	_ = tw.Flush()
}

func change(from, to float64) string {
	if from == 0 {
		return "-"
	}
	return runtime.FormatReturn((to - from) / from * 100)
}

func (r *Report) correlations(pairs []domain.CorrelationPair) {
	r.section("Correlations")
	sorted := append([]domain.CorrelationPair(nil), pairs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Correlation) > math.Abs(sorted[j].Correlation)
	})
	if len(sorted) > r.TopN {
		sorted = sorted[:r.TopN]
	}
	for _, p := range sorted {
		fmt.Fprintf(r.w, "  %s ↔ %s  %s\n", p.Stock1, p.Stock2, runtime.FormatRatio(p.Correlation))
	}
}

func (r *Report) riskReturn(pts []domain.RiskReturnPoint) {
	r.section("Risk / Return")
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Symbol\tRisk\tReturn\tAllocation\t")
	for _, p := range pts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", p.Symbol,
			runtime.FormatPercent(p.Risk), runtime.FormatReturn(p.ReturnRate), runtime.FormatPercent(p.Allocation))
	}
	_ = tw.Flush()
}

// FormatAmount renders a currency amount rounded to units with thousands
// separators: 1234567.8 -> "1,234,568".
func FormatAmount(v float64) string {
	neg := v < 0
	digits := strconv.FormatFloat(math.Round(math.Abs(v)), 'f', 0, 64)
	var sb strings.Builder
	if neg && digits != "0" {
		sb.WriteByte('-')
	}
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(d)
	}
	return sb.String()
}
