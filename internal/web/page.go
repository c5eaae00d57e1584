package web

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"

	"wave-portal/internal/features/portal"
	"wave-portal/internal/features/writer"
	"wave-portal/internal/infra/log"

	"go.uber.org/zap"
)

const (
	gateSignedOut  = "signed_out"
	gateOnboarding = "onboarding"
	gateReady      = "ready"
)

type pageData struct {
	State         portal.State
	Gate          string
	SignInURL     string
	OnboardingURL string
	ExplorerTxURL string
	NeedsPIN      bool
	Message       string
	FormError     string
	SentTx        string
}

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Wave Portal</title>
{{if or .State.Pending .State.Celebrating}}<meta http-equiv="refresh" content="5">{{end}}
</head>
<body>
<h1>Wave Portal</h1>

{{if eq .Gate "signed_out"}}
  <p><a href="{{.SignInURL}}"><button type="button">Sign in to wave</button></a></p>
{{else if eq .Gate "onboarding"}}
  <p>Your account has no wallet yet.</p>
  <p><a href="{{.OnboardingURL}}"><button type="button">Create wallet</button></a></p>
{{else}}
  <form method="post" action="/">
    <input type="text" name="message" value="{{.Message}}" placeholder="Say hi" maxlength="200">
    {{if .NeedsPIN}}<input type="password" name="pin" placeholder="PIN" inputmode="numeric">{{end}}
    <button type="submit" {{if .State.Sending}}disabled{{end}}>{{if .State.Sending}}Sending...{{else}}Wave{{end}}</button>
  </form>
{{end}}

{{if .FormError}}<p class="error">{{.FormError}}</p>{{else if .State.LastSendError}}<p class="error">{{.State.LastSendError}}</p>{{end}}
{{with .SentTx}}<p>Wave sent: <a href="{{$.ExplorerTxURL}}{{.}}">{{.}}</a>. Waiting for confirmation...</p>{{end}}

{{range .State.Pending}}
  <p>Pending: <a href="{{$.ExplorerTxURL}}{{.Hash}}">{{.Hash}}</a> "{{.Message}}"</p>
{{end}}

{{if .State.Celebrating}}
  <p><img src="/api/celebrate/{{.State.CelebrationHash}}.png" alt="Wave confirmed" width="600"></p>
{{end}}

<p>Total waves: {{.State.EventTotal}} (contract: {{.State.ContractTotal}})</p>
{{if .State.Stale}}<p class="warning">Showing cached waves, last refresh failed: {{.State.LastError}}</p>{{end}}

<form method="post" action="/api/refresh" onsubmit="fetch('/api/refresh',{method:'POST'}).then(()=>location.reload());return false;">
  <button type="submit" {{if .State.Refreshing}}disabled{{end}}>{{if .State.Refreshing}}Refreshing...{{else}}Refresh{{end}}</button>
</form>

{{if .State.Waves}}
<ul>
  {{range .State.Waves}}
  <li>{{if .Valid}}{{.Message}}{{else}}<em>{{.Message}}</em>{{end}}{{with .TxHash}} <a href="{{$.ExplorerTxURL}}{{.}}">tx</a>{{end}}</li>
  {{end}}
</ul>
{{else}}
<p>No waves yet. Be the first!</p>
{{end}}
</body>
</html>
`

type pageRenderer struct {
	tmpl *template.Template
}

func newPageRenderer() *pageRenderer {
	return &pageRenderer{tmpl: template.Must(template.New("page").Parse(pageHTML))}
}

func (p *pageRenderer) render(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		log.LogError("Failed to render page", zap.Error(err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) basePage(v viewer, authErr error) pageData {
	data := pageData{
		State:         s.portal.State(),
		Gate:          gateReady,
		SignInURL:     s.opts.SignInURL,
		OnboardingURL: s.opts.OnboardingURL,
		ExplorerTxURL: s.opts.ExplorerTxURL,
		NeedsPIN:      s.opts.Auth != nil,
	}
	if s.opts.Auth == nil {
		return data
	}
	switch {
	case authErr != nil || v.identity == nil:
		data.Gate = gateSignedOut
	case v.wallet == nil:
		data.Gate = gateOnboarding
	}
	return data
}

// Index handles GET /
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	v, err := s.identify(r)
	data := s.basePage(v, err)
	if tx := r.URL.Query().Get("tx"); txHashPattern.MatchString(tx) {
		data.SentTx = tx
	}
	s.page.render(w, http.StatusOK, data)
}

// SubmitForm handles POST / from the wave form. Success redirects, which clears the message field.
func (s *Server) SubmitForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	message := r.PostFormValue("message")
	pin := r.PostFormValue("pin")

	v, authErr := s.identify(r)
	data := s.basePage(v, authErr)
	if data.Gate != gateReady {
		data.FormError = "Sign in and create a wallet before sending a wave."
		s.page.render(w, http.StatusUnauthorized, data)
		return
	}

	req, err := s.waveRequest(r.Context(), v, message, pin)
	if err != nil {
		if writer.IsValidationError(err) {
			s.renderFormError(w, v, authErr, message, err, writer.UserMessage(err))
			return
		}
		log.LogError("Failed to get signer token", zap.Error(err))
		s.renderFormError(w, v, authErr, message, err, "Could not authorize the signing request, please sign in again.")
		return
	}

	handle, err := s.portal.SendWave(r.Context(), req)
	if err != nil {
		s.renderFormError(w, v, authErr, message, err, writer.UserMessage(err))
		return
	}
	http.Redirect(w, r, "/?tx="+url.QueryEscape(handle.Hash), http.StatusSeeOther)
}

// renderFormError re-renders the page keeping the typed message
func (s *Server) renderFormError(w http.ResponseWriter, v viewer, authErr error, message string, err error, text string) {
	status, _ := sendErrorStatus(err)
	data := s.basePage(v, authErr)
	data.Message = message
	data.FormError = text
	s.page.render(w, status, data)
}
