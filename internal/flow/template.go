package flow

import (
	"fmt"
	"strings"
)

// Interpolate substitutes {{ path.to.value }} expressions against the
// context. An optional helper may follow a pipe:
// {{ incident.title | uppercase }}. Unknown paths pass through
// literally so partially-populated contexts don't destroy templates.
// Unterminated expressions are an error and fail the action.
func Interpolate(tmpl string, ctx map[string]any) (string, error) {
	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:start])
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			return "", fmt.Errorf("unterminated template expression at offset %d", start)
		}
		expr := rest[start+2 : start+end]
		rest = rest[start+end+2:]

		resolved, ok, err := evalExpr(expr, ctx)
		if err != nil {
			return "", err
		}
		if ok {
			b.WriteString(resolved)
		} else {
			// Literal passthrough for unknown paths.
			b.WriteString("{{" + expr + "}}")
		}
	}
}

func evalExpr(expr string, ctx map[string]any) (string, bool, error) {
	parts := strings.Split(expr, "|")
	path := strings.TrimSpace(parts[0])
	if path == "" {
		return "", false, fmt.Errorf("empty template expression")
	}

	val, ok := Lookup(ctx, path)
	if !ok {
		return "", false, nil
	}
	s := fmt.Sprintf("%v", val)

	for _, helper := range parts[1:] {
		switch strings.TrimSpace(helper) {
		case "uppercase":
			s = strings.ToUpper(s)
		case "lowercase":
			s = strings.ToLower(s)
		default:
			return "", false, fmt.Errorf("unknown template helper %q", strings.TrimSpace(helper))
		}
	}
	return s, true, nil
}

// TemplateContext builds the lookup map for action interpolation.
// Secrets are injected at execution start and must never be exported
// or logged; callers only ever render them into action parameters.
func TemplateContext(incident, assignee, team, workflow map[string]any, secrets map[string]string) map[string]any {
	sec := make(map[string]any, len(secrets))
	for k, v := range secrets {
		sec[k] = v
	}
	return map[string]any{
		"incident": incident,
		"assignee": assignee,
		"team":     team,
		"workflow": workflow,
		"secrets":  sec,
	}
}
