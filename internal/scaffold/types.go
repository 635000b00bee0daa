package scaffold

// GenerationConfig describes the site to scaffold
type GenerationConfig struct {
	ProjectName  string            `json:"project_name"`
	Slug         string            `json:"slug"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Language     string            `json:"language"`
	Pages        []PageConfig      `json:"pages"`
	Dependencies map[string]string `json:"dependencies,omitempty"` // extra npm packages
}

// PageConfig is one route of the site
type PageConfig struct {
	Route       string         `json:"route"` // "" for the home page
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Components  []ComponentRef `json:"components"`
}

// ComponentRef points at a section component rendered on a page
type ComponentRef struct {
	Name       string `json:"name"`
	ImportPath string `json:"import_path"`
}

// PageMeta is the metadata exported by a page module
type PageMeta struct {
	Title       string
	Description string
}

// DesignSystem carries the visual tokens
type DesignSystem struct {
	Colors      map[string]string `json:"colors"` // token -> HSL triplet, e.g. "221 83% 53%"
	FontSans    string            `json:"font_sans"`
	FontHeading string            `json:"font_heading"`
	Radius      string            `json:"radius"`
}

var defaultColors = map[string]string{
	"background": "0 0% 100%",
	"foreground": "222 47% 11%",
	"primary":    "221 83% 53%",
	"secondary":  "210 40% 96%",
	"muted":      "210 40% 96%",
	"accent":     "210 40% 90%",
}

const (
	defaultFont     = "Inter"
	defaultRadius   = "0.5rem"
	defaultLanguage = "en"
)
