package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"wordbento/internal/domain"
)

type saveCredentialRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Token    string `json:"token" validate:"required"`
	Model    string `json:"model" validate:"max=128"`
	Active   *bool  `json:"active"`
}

type credentialView struct {
	Platform string `json:"platform"`
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
	Model    string `json:"model"`
	Active   bool   `json:"active"`
}

func viewOf(c domain.Credential) credentialView {
	return credentialView{
		Platform: c.Platform,
		Endpoint: c.Endpoint,
		Token:    c.MaskedToken(),
		Model:    c.Model,
		Active:   c.Active,
	}
}

func (a *App) ListCredentials(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	creds, err := a.Credentials.List(r.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Msg("http: list credentials failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list credentials")
		return
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].Platform < creds[j].Platform })
	items := make([]credentialView, 0, len(creds))
	for _, c := range creds {
		items = append(items, viewOf(c))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) SaveCredential(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	platform := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "platform")))
	if _, ok := a.platforms[platform]; !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported platform")
		return
	}
	var req saveCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	req.Token = strings.TrimSpace(req.Token)
	if err := a.validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "endpoint must be a url and token is required")
		return
	}
	cred := domain.Credential{
		CallerID: userID,
		Platform: platform,
		Endpoint: req.Endpoint,
		Token:    req.Token,
		Model:    strings.TrimSpace(req.Model),
		Active:   req.Active == nil || *req.Active,
	}
	if err := a.Credentials.Save(r.Context(), cred); err != nil {
		a.logger.Error().Err(err).Str("platform", platform).Msg("http: save credential failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to save credential")
		return
	}
	a.json(w, http.StatusOK, viewOf(cred))
}
