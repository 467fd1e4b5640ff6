package mail

import (
	"embed"
	"fmt"
	"html"
	"sync"

	"github.com/osteele/liquid"
)

//go:embed templates/*.liquid
var templateFS embed.FS

// Renderer turns Digest artifacts into HTML bodies using Liquid templates.
// Templates are parsed once and cached; a Renderer is safe for concurrent use.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template name -> *liquid.Template
}

func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// Missing values render as the fallback: {{ name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s, ok := value.(string); ok && s == "" {
			return fallback
		}
		return value
	})

	engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	return &Renderer{engine: engine}
}

// Render produces the HTML body for the given digest.
func (r *Renderer) Render(d *Digest) (string, error) {
	tmpl, err := r.template(d.TemplateName)
	if err != nil {
		return "", err
	}

	days := make([]map[string]interface{}, len(d.Days))
	for i, day := range d.Days {
		articles := make([]map[string]interface{}, len(day.Articles))
		for j, a := range day.Articles {
			articles[j] = map[string]interface{}{
				"article_id":  a.ArticleID,
				"title":       a.Title,
				"authors":     a.Authors,
				"explanation": a.Explanation,
				"read_link":   a.ReadLink,
				"save_link":   a.SaveLink,
			}
		}
		days[i] = map[string]interface{}{
			"label":     day.Label,
			"articles":  articles,
			"day_index": day.DayIndex,
		}
	}

	out, err := tmpl.Render(liquid.Bindings{
		"subject":          d.Subject,
		"name":             d.Name,
		"days":             days,
		"unsubscribe_link": d.UnsubscribeLink,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render digest template: %w", err)
	}
	return string(out), nil
}

func (r *Renderer) template(name string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(name); ok {
		return cached.(*liquid.Template), nil
	}

	source, err := templateFS.ReadFile("templates/" + name + ".liquid")
	if err != nil {
		return nil, fmt.Errorf("unknown mail template %q: %w", name, err)
	}

	tmpl, err := r.engine.ParseTemplate(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mail template %q: %w", name, err)
	}

	r.cache.Store(name, tmpl)
	return tmpl, nil
}
