package ui

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/varsilias/chatbot/internal/buildinfo"
	"github.com/varsilias/chatbot/internal/middleware"
	"github.com/varsilias/chatbot/internal/session"
	"github.com/varsilias/chatbot/internal/stream"
	"github.com/varsilias/chatbot/pkg/types"
)

const cookieName = "chat_session"

func RegisterRoutes(mux chi.Router, h *UI) {
	mux.Get("/", h.Home)
	mux.Post("/ui/chat", h.ChatPost)
	mux.Post("/ui/reset", h.Reset)
	mux.Get("/ui/version-pill", h.VersionPill)
	mux.Handle("/static/*", http.StripPrefix("/static/", h.Static()))
}

// sessionID returns the caller's session cookie, issuing a new one when
// missing. It must run before anything is written to w.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	id := session.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Home renders the conversation, the input line and the reset button.
func (u *UI) Home(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)

	var hist []MsgView
	if cs, ok := u.sessions.Lookup(sid); ok {
		msgs := cs.Messages()
		hist = make([]MsgView, 0, len(msgs))
		for _, m := range msgs {
			hist = append(hist, u.view(m))
		}
	}

	u.render(w, "chat.html", map[string]any{
		"Model":   u.model,
		"History": hist,
		"Version": buildinfo.Version,
		"Commit":  buildinfo.Commit,
		"BuiltAt": buildinfo.BuiltAt,
	}, http.StatusOK)
}

// ChatPost runs one turn and streams it back as events: the rendered user
// bubble, every delta, then the rendered assistant bubble.
func (u *UI) ChatPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	msg := r.Form.Get("message")
	if strings.TrimSpace(msg) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	sid := sessionID(w, r)
	cs, err := u.sessions.Session(sid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log := u.log.With("session", sid, "req_id", middleware.GetRequestID(r.Context()))

	sw := stream.NewWriter(w)

	userHTML, err := u.fragment("message.html", u.view(types.NewMessage(types.RoleUser, msg)))
	if err != nil {
		log.Error("template execute", "err", err)
		_ = sw.Error("render failed")
		return
	}
	if err := sw.Event(stream.EventUser, map[string]string{"html": userHTML}); err != nil {
		log.Warn("client gone", "err", err)
		return
	}

	reply, err := cs.Submit(r.Context(), msg, sw.Delta)
	if err != nil {
		log.Error("chat turn", "err", err)
		_ = sw.Error("Something went wrong while generating a reply. Please try again.")
		return
	}

	html, err := u.fragment("message.html", u.view(reply))
	if err != nil {
		log.Error("template execute", "err", err)
		_ = sw.Error("render failed")
		return
	}
	_ = sw.Event(stream.EventDone, map[string]string{"html": html})
}

// Reset clears the caller's conversation and sends the browser back to /.
func (u *UI) Reset(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(cookieName); err == nil {
		if cs, ok := u.sessions.Lookup(c.Value); ok {
			cs.Reset()
		}
	}

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type versionVM struct {
	Version string
	Commit  string
	BuiltAt string
}

func (u *UI) VersionPill(w http.ResponseWriter, r *http.Request) {
	// fragment; never cached so rollouts show up at once
	w.Header().Set("Cache-Control", "no-store")
	u.render(w, "version-pill.html", versionVM{
		Version: buildinfo.Version,
		Commit:  buildinfo.Commit,
		BuiltAt: buildinfo.BuiltAt,
	}, http.StatusOK)
}
