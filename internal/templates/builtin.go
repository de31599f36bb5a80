package templates

import "intelterm/internal/core"

const itemsMD = `{{range .Highlights}}
- {{trunc 200 .Text}}{{if .URL}} ([link]({{.URL}})){{end}}{{end}}`

const itemsTG = `{{range .Highlights}}
• {{esc (trunc 200 .Text)}}{{if .URL}} <a href="{{esc .URL}}">link</a>{{end}}{{end}}`

const footerMD = `{{if not .Highlights}}_No signals collected._{{end}}

_{{.Total}} items{{if .Sources}} from {{.Sources}}{{end}} · {{.Date}}_{{range $src, $err := .Failures}}
> {{$src}} unavailable: {{$err}}{{end}}`

const footerTG = `{{if not .Highlights}}<i>No signals collected.</i>{{end}}

<i>{{.Total}} items{{if .Sources}} from {{esc .Sources}}{{end}} · {{.Date}}</i>{{range $src, $err := .Failures}}
⚠️ {{esc $src}} unavailable: {{esc $err}}{{end}}`

// Builtin возвращает реестр со всеми шаблонами аналитических команд.
func Builtin() *Registry {
	return NewRegistry(
		MustNew(core.TemplateDailyEcosystem, "Daily Ecosystem Analysis",
			`# 📊 {{.Title}}
{{if .Query}}
**Focus:** {{.Query}}
{{end}}
## Top signals
`+itemsMD+"\n"+footerMD,
			`<b>📊 {{esc .Title}}</b>{{if .Query}}
Focus: <code>{{esc .Query}}</code>{{end}}
`+itemsTG+"\n"+footerTG),

		MustNew(core.TemplateProjectSpot, "Project Spotlight",
			`# 🔦 {{.Title}}: {{.Query}}

## What people are saying
`+itemsMD+"\n"+footerMD,
			`<b>🔦 {{esc .Title}}: {{esc .Query}}</b>
`+itemsTG+"\n"+footerTG),

		MustNew(core.TemplateVCIntelligence, "Claim Verification",
			`# 🔍 {{.Title}}

**Claim:** {{if .Query}}{{.Query}}{{else}}_none given_{{end}}

## Evidence
`+itemsMD+"\n"+footerMD+`

_Evidence is unverified social signal; check primary sources._`,
			`<b>🔍 {{esc .Title}}</b>
Claim: {{if .Query}}<i>{{esc .Query}}</i>{{else}}none given{{end}}
`+itemsTG+"\n"+footerTG),

		MustNew(core.TemplateGithubUpdates, "Active Agents & Builder Updates",
			`# 🤖 {{.Title}}
{{if .Query}}
**Filter:** {{.Query}}
{{end}}
## Latest activity
`+itemsMD+"\n"+footerMD,
			`<b>🤖 {{esc .Title}}</b>{{if .Query}}
Filter: <code>{{esc .Query}}</code>{{end}}
`+itemsTG+"\n"+footerTG),
	)
}
