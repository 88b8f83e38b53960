// Package report renders a result collection as HTML, in either the
// historical (collapsible, deep-linkable) or the table layout, and as a
// markdown step summary.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultoor/pkg/result"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	generatedBegin = "<!-- generated:begin -->"
	generatedEnd   = "<!-- generated:end -->"

	defaultHistoricalTitle = "Test Results - Historical View"
	defaultTableTitle      = "Test Results"
)

var generatedRe = regexp.MustCompile(`(?s)<!-- generated:begin -->.*?<!-- generated:end -->`)

// StripGenerated removes the delimited generated-at region, leaving the
// deterministic part of a document.
func StripGenerated(doc []byte) []byte {
	return generatedRe.ReplaceAll(doc, []byte(generatedBegin+generatedEnd))
}

// Options parameterize a Renderer.
type Options struct {
	Mode  Mode
	Title string

	// BaseURL is the published location of the historical document. Copy-link
	// buttons use it when set, and table mode links back to it.
	BaseURL string

	// RetentionWindow is described in the historical summary.
	RetentionWindow time.Duration

	// Columns are the detail keys shown as table columns and as the leading
	// fields of each card. Empty means derive them from the data.
	Columns []string

	// PRNumber is shown in table mode when positive.
	PRNumber int

	// GeneratedAt, when non-zero, is rendered inside the generated region.
	GeneratedAt time.Time
}

// Document is a rendered report.
type Document struct {
	Mode         Mode
	HTML         []byte
	Degradations []result.RenderDegradation
}

// Renderer produces HTML reports for one mode.
type Renderer struct {
	log  logrus.FieldLogger
	opts Options
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer(log logrus.FieldLogger, opts Options) (*Renderer, error) {
	tmpl, err := template.New("report").ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing report templates: %w", err)
	}

	if opts.Title == "" {
		opts.Title = defaultHistoricalTitle
		if opts.Mode == ModeTable {
			opts.Title = defaultTableTitle
		}
	}

	return &Renderer{
		log:  log.WithField("component", "report-renderer"),
		opts: opts,
		tmpl: tmpl,
	}, nil
}

// Render produces the document for c. Output is byte-identical for the same
// collection and options.
func (r *Renderer) Render(c *result.Collection) (*Document, error) {
	page := r.buildPage(c)

	name := "historical"
	if r.opts.Mode == ModeTable {
		name = "table"
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, page); err != nil {
		return nil, fmt.Errorf("rendering %s report: %w", r.opts.Mode, err)
	}

	if n := len(page.degradations); n > 0 {
		r.log.WithFields(logrus.Fields{
			"mode":         r.opts.Mode.String(),
			"placeholders": n,
		}).Warn("Rendered report with placeholder values")
	}

	return &Document{
		Mode:         r.opts.Mode,
		HTML:         buf.Bytes(),
		Degradations: page.degradations,
	}, nil
}

// pageData is the view model handed to the templates.
type pageData struct {
	Title           string
	BaseURL         string
	RetentionWindow string
	PRNumber        int
	Generated       template.HTML
	Columns         []column
	Counts          result.StatusCounts
	RunCount        int
	EnvCount        int
	Runs            []runData
	Rows            []envData

	degradations []result.RenderDegradation
}

type column struct {
	Key   string
	Label string
}

type runData struct {
	Anchor    string
	ID        string
	Title     string
	Timestamp string
	Latest    bool
	Collapsed bool
	Counts    result.StatusCounts
	Envs      []envData
}

type envData struct {
	Anchor      string
	RowID       string
	Environment string
	Status      string
	Source      string
	Fields      []fieldData
	Extra       []fieldData
}

type fieldData struct {
	Label       string
	Value       string
	Placeholder bool
}

func (r *Renderer) buildPage(c *result.Collection) *pageData {
	keys := r.opts.Columns
	if len(keys) == 0 {
		keys = deriveColumns(c)
	}

	cols := make([]column, 0, len(keys))
	for _, k := range keys {
		cols = append(cols, column{Key: k, Label: humanizeKey(k)})
	}

	page := &pageData{
		Title:           r.opts.Title,
		BaseURL:         r.opts.BaseURL,
		RetentionWindow: formatWindow(r.opts.RetentionWindow),
		PRNumber:        r.opts.PRNumber,
		Columns:         cols,
		Counts:          c.StatusCounts(),
		RunCount:        len(c.Runs),
		EnvCount:        c.EnvironmentCount(),
		Runs:            make([]runData, 0, len(c.Runs)),
	}

	if !r.opts.GeneratedAt.IsZero() {
		page.Generated = template.HTML(generatedBegin + //nolint:gosec // fixed layout, no user input
			"Generated " + formatTime(r.opts.GeneratedAt) + generatedEnd)
	}

	for i := range c.Runs {
		view := &c.Runs[i]

		rd := runData{
			Anchor:    view.Anchor(),
			ID:        view.Run.ID,
			Title:     runTitle(view.Run),
			Timestamp: formatTime(view.Run.Timestamp),
			Latest:    view.Latest,
			Collapsed: !view.Latest,
			Counts:    view.Run.StatusCounts(),
			Envs:      make([]envData, 0, len(view.Environments)),
		}

		for j, env := range view.Environments {
			ed := page.buildEnv(env, cols)
			ed.RowID = fmt.Sprintf("row-%d", j)
			rd.Envs = append(rd.Envs, ed)
		}

		page.Runs = append(page.Runs, rd)
	}

	if r.opts.Mode == ModeTable && len(page.Runs) > 0 {
		page.Rows = page.Runs[0].Envs
	}

	return page
}

func (p *pageData) buildEnv(env result.EnvView, cols []column) envData {
	res := env.Result
	anchor := env.Anchor.EnvAnchor()

	ed := envData{
		Anchor:      anchor,
		Environment: res.Environment,
		Status:      res.Status.String(),
		Source:      res.Source,
		Fields:      make([]fieldData, 0, len(cols)),
	}

	shown := make(map[string]struct{}, len(cols))

	for _, col := range cols {
		shown[col.Key] = struct{}{}

		v, ok := res.Detail(col.Key)

		value, present := formatValue(v, ok)
		if !present {
			p.degradations = append(p.degradations, result.RenderDegradation{Anchor: anchor, Field: col.Key})
		}

		ed.Fields = append(ed.Fields, fieldData{Label: col.Label, Value: value, Placeholder: !present})
	}

	if res.Details == nil {
		return ed
	}

	for pair := res.Details.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := shown[pair.Key]; ok {
			continue
		}

		value, present := formatValue(pair.Value, true)
		if !present {
			p.degradations = append(p.degradations, result.RenderDegradation{Anchor: anchor, Field: pair.Key})
		}

		ed.Extra = append(ed.Extra, fieldData{
			Label:       humanizeKey(pair.Key),
			Value:       value,
			Placeholder: !present,
		})
	}

	return ed
}

func runTitle(run *result.Run) string {
	if run.Number > 0 {
		return fmt.Sprintf("Run #%d", run.Number)
	}

	return "Run " + run.ID
}
