package ui

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/varsilias/chatbot/internal/session"
	"github.com/varsilias/chatbot/pkg/types"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

type UI struct {
	log      *slog.Logger
	tpl      *template.Template
	sessions session.Store
	model    string
	md       goldmark.Markdown
	policy   *bluemonday.Policy
}

func New(log *slog.Logger, store session.Store, model string) (*UI, error) {
	t, err := template.New("root").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	md := goldmark.New(
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		goldmark.WithExtensions(
			highlighting.NewHighlighting(
				highlighting.WithStyle("dracula"),
				highlighting.WithFormatOptions(
					// inline styles, no extra stylesheet
					chromahtml.WithLineNumbers(false),
				),
			),
		),
	)

	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("code", "pre", "span")
	p.AllowAttrs("style").OnElements("span", "pre") // inline styles from the highlighter

	return &UI{
		log:      log,
		tpl:      t,
		sessions: store,
		model:    model,
		md:       md,
		policy:   p,
	}, nil
}

// Static serves the embedded scripts and stylesheets.
func (u *UI) Static() http.Handler {
	sub, _ := fs.Sub(staticFS, "static")
	return http.FileServerFS(sub)
}

type MsgView struct {
	Role string
	HTML template.HTML
	At   string
}

func (u *UI) view(m types.Message) MsgView {
	v := MsgView{Role: string(m.Role), HTML: u.mdHTML(m.Content)}
	if !m.Timestamp.IsZero() {
		v.At = m.Timestamp.Format(time.Kitchen)
	}
	return v
}

// mdHTML renders Markdown and strips anything unsafe. Model output and user
// input both go through here.
func (u *UI) mdHTML(src string) template.HTML {
	var buf bytes.Buffer
	if err := u.md.Convert([]byte(src), &buf); err != nil {
		u.log.Warn("markdown render", "err", err)
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(u.policy.SanitizeBytes(buf.Bytes()))
}

func (u *UI) render(w http.ResponseWriter, name string, data any, status int) {
	var buf bytes.Buffer
	if err := u.tpl.ExecuteTemplate(&buf, name, data); err != nil {
		u.errTpl(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// fragment renders a template into a string, for SSE payloads.
func (u *UI) fragment(name string, data any) (string, error) {
	var sb strings.Builder
	if err := u.tpl.ExecuteTemplate(&sb, name, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (u *UI) errTpl(w http.ResponseWriter, err error) {
	u.log.Error("template execute", "err", err)
	http.Error(w, "template error", http.StatusInternalServerError)
}
