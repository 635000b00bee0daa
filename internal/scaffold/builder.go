// Package scaffold builds the fixed skeleton of a deployable Next.js project.
// Output is a pure function of its inputs: no timestamps, no map-order leaks.
package scaffold

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"go_sitegen/internal/model"
	"go_sitegen/internal/vfs"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// ErrInvalidConfig is wrapped by every input validation failure
var ErrInvalidConfig = errors.New("invalid generation config")

var (
	slugPattern      = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	tokenPattern     = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	identPattern     = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]*$`)
	routePattern     = regexp.MustCompile(`^[a-z0-9-]+(/[a-z0-9-]+)*$`)
	localImport      = regexp.MustCompile(`^[A-Za-z0-9_-]+(/[A-Za-z0-9_-]+)*$`)
	cssUnsafePattern = regexp.MustCompile(`[;{}<>]`)
)

var jsEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
)

// Quote renders s as a double-quoted JS/JSON string literal
func Quote(s string) string {
	return `"` + jsEscaper.Replace(s) + `"`
}

// Builder renders the scaffold templates
type Builder struct {
	templates *template.Template
}

// NewBuilder parses the embedded templates
func NewBuilder() (*Builder, error) {
	tmpl, err := template.New("scaffold").
		Funcs(template.FuncMap{"quote": Quote}).
		ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Builder{templates: tmpl}, nil
}

type colorToken struct {
	Name  string
	Value string
}

type styleData struct {
	Colors      []colorToken
	FontSans    string
	FontHeading string
	Radius      string
}

type layoutData struct {
	Title       string
	Description string
	Language    string
}

type pageData struct {
	Title       string
	Description string
	Imports     []ComponentRef
	Components  []ComponentRef
}

type packageManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Private         bool              `json:"private"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Build returns the project skeleton for cfg styled by ds
func (b *Builder) Build(cfg GenerationConfig, ds DesignSystem) (*vfs.Tree, error) {
	if !slugPattern.MatchString(cfg.Slug) {
		return nil, fmt.Errorf("%w: slug %q is not URL-safe", ErrInvalidConfig, cfg.Slug)
	}
	style, err := normalizeDesign(ds)
	if err != nil {
		return nil, err
	}

	tree := vfs.New()

	manifest, err := renderManifest(cfg)
	if err != nil {
		return nil, err
	}
	tree.AddFile("package.json", manifest, model.FileTypeConfig)

	static := []struct {
		path, tmpl string
		kind       model.FileType
		data       any
	}{
		{"next.config.mjs", "next.config.mjs.tmpl", model.FileTypeConfig, nil},
		{"tailwind.config.ts", "tailwind.config.ts.tmpl", model.FileTypeConfig, style},
		{"postcss.config.mjs", "postcss.config.mjs.tmpl", model.FileTypeConfig, nil},
		{"tsconfig.json", "tsconfig.json.tmpl", model.FileTypeConfig, nil},
		{"src/app/globals.css", "globals.css.tmpl", model.FileTypeStyle, style},
		{"src/app/layout.tsx", "layout.tsx.tmpl", model.FileTypeComponent, layoutData{
			Title:       firstNonEmpty(cfg.Title, cfg.ProjectName, cfg.Slug),
			Description: cfg.Description,
			Language:    firstNonEmpty(cfg.Language, defaultLanguage),
		}},
		{"src/lib/utils.ts", "utils.ts.tmpl", model.FileTypeComponent, nil},
	}
	for _, s := range static {
		out, err := b.execute(s.tmpl, s.data)
		if err != nil {
			return nil, err
		}
		tree.AddFile(s.path, out, s.kind)
	}

	return tree, nil
}

// RenderPage renders one page module importing and mounting components in order
func (b *Builder) RenderPage(components []ComponentRef, meta PageMeta) (string, error) {
	seen := make(map[string]string, len(components))
	var imports []ComponentRef
	for _, c := range components {
		if !identPattern.MatchString(c.Name) {
			return "", fmt.Errorf("%w: component name %q is not a valid identifier", ErrInvalidConfig, c.Name)
		}
		if c.ImportPath == "" {
			return "", fmt.Errorf("%w: component %s has no import path", ErrInvalidConfig, c.Name)
		}
		if _, _, err := ComponentFile(c.ImportPath); err != nil {
			return "", err
		}
		if prev, ok := seen[c.Name]; ok {
			if prev != c.ImportPath {
				return "", fmt.Errorf("%w: component %s imported from both %s and %s", ErrInvalidConfig, c.Name, prev, c.ImportPath)
			}
			continue
		}
		seen[c.Name] = c.ImportPath
		imports = append(imports, c)
	}

	return b.execute("page.tsx.tmpl", pageData{
		Title:       meta.Title,
		Description: meta.Description,
		Imports:     imports,
		Components:  components,
	})
}

// PagePath maps a route to its app-router file path
func PagePath(route string) (string, error) {
	route = strings.Trim(route, "/")
	if route == "" {
		return "src/app/page.tsx", nil
	}
	if !routePattern.MatchString(route) {
		return "", fmt.Errorf("%w: route %q", ErrInvalidConfig, route)
	}
	return "src/app/" + route + "/page.tsx", nil
}

// ComponentFile maps an "@/..." import to its source file under src/.
// Package imports report ok=false.
func ComponentFile(importPath string) (path string, ok bool, err error) {
	rest, local := strings.CutPrefix(importPath, "@/")
	if !local {
		return "", false, nil
	}
	if !localImport.MatchString(rest) {
		return "", false, fmt.Errorf("%w: import path %q", ErrInvalidConfig, importPath)
	}
	return "src/" + rest + ".tsx", true, nil
}

func (b *Builder) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := b.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return buf.String(), nil
}

func renderManifest(cfg GenerationConfig) (string, error) {
	deps := map[string]string{
		"clsx":           "^2.1.1",
		"next":           "14.2.5",
		"react":          "^18.3.1",
		"react-dom":      "^18.3.1",
		"tailwind-merge": "^2.4.0",
	}
	for name, version := range cfg.Dependencies {
		deps[name] = version
	}

	m := packageManifest{
		Name:    cfg.Slug,
		Version: "0.1.0",
		Private: true,
		Scripts: map[string]string{
			"build": "next build",
			"dev":   "next dev",
			"lint":  "next lint",
			"start": "next start",
		},
		Dependencies: deps,
		DevDependencies: map[string]string{
			"@types/node":      "^20",
			"@types/react":     "^18",
			"@types/react-dom": "^18",
			"autoprefixer":     "^10.4.19",
			"postcss":          "^8.4.40",
			"tailwindcss":      "^3.4.7",
			"typescript":       "^5",
		},
	}

	// encoding/json sorts map keys
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("failed to encode package.json: %w", err)
	}
	return buf.String(), nil
}

func normalizeDesign(ds DesignSystem) (styleData, error) {
	colors := make(map[string]string, len(defaultColors)+len(ds.Colors))
	for k, v := range defaultColors {
		colors[k] = v
	}
	for k, v := range ds.Colors {
		if !tokenPattern.MatchString(k) {
			return styleData{}, fmt.Errorf("%w: color token %q", ErrInvalidConfig, k)
		}
		if v == "" || cssUnsafePattern.MatchString(v) {
			return styleData{}, fmt.Errorf("%w: color value %q for %s", ErrInvalidConfig, v, k)
		}
		colors[k] = v
	}

	names := make([]string, 0, len(colors))
	for k := range colors {
		names = append(names, k)
	}
	sort.Strings(names)

	out := styleData{
		FontSans:    firstNonEmpty(ds.FontSans, defaultFont),
		FontHeading: firstNonEmpty(ds.FontHeading, ds.FontSans, defaultFont),
		Radius:      firstNonEmpty(ds.Radius, defaultRadius),
	}
	if cssUnsafePattern.MatchString(out.Radius) {
		return styleData{}, fmt.Errorf("%w: radius %q", ErrInvalidConfig, out.Radius)
	}
	for _, n := range names {
		out.Colors = append(out.Colors, colorToken{Name: n, Value: colors[n]})
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
