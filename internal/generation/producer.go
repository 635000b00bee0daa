package generation

import (
	"context"
	"fmt"
	"strings"

	"go_sitegen/internal/model"
	"go_sitegen/internal/scaffold"
	"go_sitegen/internal/vfs"
)

// ContentProducer writes the pages and section components of a site.
// Its files override the scaffold on path collision.
type ContentProducer interface {
	Produce(ctx context.Context, cfg scaffold.GenerationConfig, ds scaffold.DesignSystem) (*vfs.Tree, error)
	Model() string
}

// TemplateProducer renders pages from their component lists and a stub
// component per section. It uses no tokens.
type TemplateProducer struct {
	builder *scaffold.Builder
}

// NewTemplateProducer creates a template producer
func NewTemplateProducer(builder *scaffold.Builder) *TemplateProducer {
	return &TemplateProducer{builder: builder}
}

// Model implements ContentProducer
func (p *TemplateProducer) Model() string { return "template" }

// Produce implements ContentProducer
func (p *TemplateProducer) Produce(ctx context.Context, cfg scaffold.GenerationConfig, _ scaffold.DesignSystem) (*vfs.Tree, error) {
	tree := vfs.New()

	pages := cfg.Pages
	if len(pages) == 0 {
		pages = []scaffold.PageConfig{{Title: cfg.Title, Description: cfg.Description}}
	}

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path, err := scaffold.PagePath(page.Route)
		if err != nil {
			return nil, err
		}
		content, err := p.builder.RenderPage(page.Components, scaffold.PageMeta{
			Title:       firstNonEmpty(page.Title, cfg.Title, cfg.ProjectName),
			Description: firstNonEmpty(page.Description, cfg.Description),
		})
		if err != nil {
			return nil, err
		}
		tree.AddFile(path, content, model.FileTypePage)

		for _, c := range page.Components {
			compPath, ok, err := scaffold.ComponentFile(c.ImportPath)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if _, exists := tree.GetFile(compPath); exists {
				continue
			}
			tree.Put(compPath, vfs.File{
				Content:     stubComponent(c.Name),
				Type:        model.FileTypeComponent,
				SectionType: strings.ToLower(c.Name),
			})
		}
	}
	return tree, nil
}

func stubComponent(name string) string {
	return fmt.Sprintf(`export default function %s() {
  return (
    <section className="container mx-auto px-4 py-16" data-section=%s />
  );
}
`, name, scaffold.Quote(strings.ToLower(name)))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
