package oracle

import (
	_ "embed"
	"strings"
	"text/template"
)

//go:embed prompts/classify.md
var classifyPromptRaw string

const systemPrompt = "You are a precise structured data extractor for job postings. You only output JSON."

// classifyTemplate is parsed once at package init and reused on every call.
var classifyTemplate = template.Must(template.New("classify").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(classifyPromptRaw))
