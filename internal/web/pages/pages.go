// Пакет pages — HTML-страницы состояния раздаваемых файлов.
// Mustache-шаблоны встраиваются в бинарник и разбираются один раз при
// старте; рендер — чистая функция от (страница, данные) к разметке,
// без обращений к файловой системе на запрос.
package pages

import (
	"embed"
	"fmt"

	"github.com/cbroglie/mustache"
)

//go:embed templates/*.mustache
var templatesFS embed.FS

// Имена страниц соответствуют состояниям записи реестра.
var pageNames = []string{"active", "consumed", "expired", "notfound"}

// Частичные шаблоны, общие для всех страниц.
var partialNames = []string{"header", "footer"}

// ActiveData — данные страницы активной записи.
// Наружу уходят только имя, размер и ссылки, построенные из токена —
// никаких внутренних путей и идентификаторов.
type ActiveData struct {
	DisplayName string
	SizeHuman   string
	ExpiresAt   string
	PreviewURL  string
	FileURL     string
	IsVideo     bool
	IsAudio     bool
	HasAudio    bool
	AudioURL    string
}

// Renderer — набор разобранных шаблонов страниц.
type Renderer struct {
	templates map[string]*mustache.Template
}

// New разбирает встроенные шаблоны. Вызывается один раз при старте.
func New() (*Renderer, error) {
	partials := &mustache.StaticProvider{Partials: map[string]string{}}
	for _, name := range partialNames {
		content, err := templatesFS.ReadFile("templates/" + name + ".mustache")
		if err != nil {
			return nil, fmt.Errorf("чтение частичного шаблона %s: %w", name, err)
		}
		partials.Partials[name] = string(content)
	}

	templates := make(map[string]*mustache.Template, len(pageNames))
	for _, name := range pageNames {
		content, err := templatesFS.ReadFile("templates/" + name + ".mustache")
		if err != nil {
			return nil, fmt.Errorf("чтение шаблона %s: %w", name, err)
		}
		tmpl, err := mustache.ParseStringPartials(string(content), partials)
		if err != nil {
			return nil, fmt.Errorf("разбор шаблона %s: %w", name, err)
		}
		templates[name] = tmpl
	}

	return &Renderer{templates: templates}, nil
}

// Render отрисовывает страницу по имени.
func (r *Renderer) Render(name string, data any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("неизвестная страница: %s", name)
	}

	html, err := tmpl.Render(data)
	if err != nil {
		return "", fmt.Errorf("рендер страницы %s: %w", name, err)
	}
	return html, nil
}
