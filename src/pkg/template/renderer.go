package template

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/template"
	"time"

	"github.com/trakrf/action-spec-sub003/src/pkg/models"
)

// PRBodyData is the data a pull request body template is rendered with.
type PRBodyData struct {
	SpecName      string
	Kind          string
	Environment   string
	FilePath      string
	BranchName    string
	Warnings      []models.ChangeWarning
	PolicySummary string
	// Diff is the markdown-formatted textual diff, already fenced.
	Diff      string
	Timestamp time.Time
}

// Renderer renders pull request titles and bodies.
type Renderer struct {
	funcMap template.FuncMap
	// templateDir optionally overrides the embedded default with
	// pr_body.md.tmpl from disk.
	templateDir string
}

func NewRenderer(templateDir string) *Renderer {
	return &Renderer{
		templateDir: templateDir,
		funcMap: template.FuncMap{
			"icon": severityIcon,
		},
	}
}

func severityIcon(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "🔴"
	case models.SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// RenderPRTitle returns the one-line PR title.
func (r *Renderer) RenderPRTitle(data PRBodyData) string {
	return fmt.Sprintf("ActionSpec Update: %s", data.SpecName)
}

// RenderPRBody renders the PR body with warnings ordered most severe first.
// The input slice is not modified.
func (r *Renderer) RenderPRBody(data PRBodyData) (string, error) {
	sorted := append([]models.ChangeWarning(nil), data.Warnings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
	})
	data.Warnings = sorted

	tmplStr := defaultPRBodyTemplate
	if r.templateDir != "" {
		content, err := os.ReadFile(filepath.Join(r.templateDir, "pr_body.md.tmpl"))
		if err != nil {
			return "", fmt.Errorf("failed to read PR body template: %w", err)
		}
		tmplStr = string(content)
	}
	return r.RenderString(tmplStr, data)
}

// RenderString renders a template string with the provided data.
func (r *Renderer) RenderString(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("template").Funcs(r.funcMap).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

const defaultPRBodyTemplate = `## ActionSpec Update

Proposed update to specification ` + "`{{.SpecName}}`" + ` (` + "`{{.Kind}}`" + `).
{{if .Environment}}
**Environment:** ` + "`{{.Environment}}`" + `{{end}}
**File:** ` + "`{{.FilePath}}`" + `
**Branch:** ` + "`{{.BranchName}}`" + `

### Detected Changes

{{if .Warnings}}{{range .Warnings}}- {{icon .Severity}} **{{.Severity}}** ({{.Category}}): {{.Message}} (` + "`{{.FieldPath}}`" + `)
{{end}}{{else}}No warnings - changes appear safe ✅
{{end}}
{{if .Diff}}
### Raw Diff

{{.Diff}}
{{end}}
{{if .PolicySummary}}
### Policy Evaluation

{{.PolicySummary}}
{{end}}
### Review Checklist

- [ ] The change matches the intended infrastructure outcome
- [ ] Every warning above has been reviewed and accepted
- [ ] A rollback plan exists for destructive changes
`
