package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"wave-portal/internal/clients_api/chipi"
	"wave-portal/internal/clients_api/clerk"
	"wave-portal/internal/features/celebrate"
	"wave-portal/internal/features/portal"
	"wave-portal/internal/features/writer"
	"wave-portal/internal/infra/log"

	"go.uber.org/zap"
)

const sessionCookie = "__session"

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)

// SendWaveRequest - body of POST /api/waves
type SendWaveRequest struct {
	Message string `json:"message"`
	PIN     string `json:"pin"`
}

// ErrorResponse is the JSON body of every API error
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// sessionToken - __session cookie, or a bearer header for API clients
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// viewer - who is looking at the page; nil identity when signed out
type viewer struct {
	identity *clerk.Identity
	wallet   *writer.WalletReference
}

func (s *Server) identify(r *http.Request) (viewer, error) {
	if s.opts.Auth == nil {
		return viewer{}, nil
	}
	id, err := s.opts.Auth.Authenticate(r.Context(), sessionToken(r))
	if err != nil {
		return viewer{}, err
	}
	v := viewer{identity: id}
	if wm, ok := id.User.Wallet(); ok {
		v.wallet = &writer.WalletReference{PublicKey: wm.PublicKey, EncryptedPrivateKey: wm.EncryptedPrivateKey}
	}
	return v, nil
}

// waveRequest assembles the writer request for an authenticated viewer
func (s *Server) waveRequest(ctx context.Context, v viewer, message, pin string) (writer.WaveRequest, error) {
	req := writer.WaveRequest{Message: message, PIN: pin, Wallet: v.wallet}
	if s.opts.Auth == nil || v.identity == nil {
		return req, nil
	}
	// no token is minted for a request the writer would reject
	if err := writer.Validate(req); err != nil {
		return req, err
	}
	token, err := s.opts.Auth.BearerToken(ctx, v.identity.SessionID)
	if err != nil {
		return req, err
	}
	req.BearerToken = token
	return req, nil
}

func sendErrorStatus(err error) (int, string) {
	var apiErr *chipi.APIError
	switch {
	case writer.IsValidationError(err):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, writer.ErrSignerUnavailable):
		return http.StatusServiceUnavailable, "signer_unavailable"
	case errors.Is(err, portal.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "signer_" + string(apiErr.Kind)
	case errors.Is(err, clerk.ErrUnauthenticated), errors.Is(err, clerk.ErrSessionInactive):
		return http.StatusUnauthorized, "unauthenticated"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// ListWaves handles GET /api/waves
// @Summary      List waves
// @Description  Recent waves (most recent first), event total, contract total and send state
// @Tags         waves
// @Produce      json
// @Success      200  {object}  portal.State
// @Router       /api/waves [get]
func (s *Server) ListWaves(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.portal.State())
}

// SendWave handles POST /api/waves
// @Summary      Send a wave
// @Description  Signs wave(message) with the caller's custodial wallet and starts waiting for confirmation
// @Tags         waves
// @Accept       json
// @Produce      json
// @Param        request  body      SendWaveRequest  true  "Message and PIN"
// @Success      202      {object}  writer.TxHandle
// @Failure      400      {object}  ErrorResponse
// @Failure      401      {object}  ErrorResponse
// @Failure      502      {object}  ErrorResponse
// @Failure      503      {object}  ErrorResponse
// @Router       /api/waves [post]
func (s *Server) SendWave(w http.ResponseWriter, r *http.Request) {
	var body SendWaveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	v, err := s.identify(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "sign in to send a wave")
		return
	}

	req, err := s.waveRequest(r.Context(), v, body.Message, body.PIN)
	if err != nil {
		status, code := sendErrorStatus(err)
		if writer.IsValidationError(err) {
			writeError(w, status, code, writer.UserMessage(err))
			return
		}
		log.LogError("Failed to get signer token", zap.Error(err))
		writeError(w, status, code, "could not authorize the signing request")
		return
	}

	handle, err := s.portal.SendWave(r.Context(), req)
	if err != nil {
		status, code := sendErrorStatus(err)
		writeError(w, status, code, writer.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusAccepted, handle)
}

// Refresh handles POST /api/refresh
// @Summary      Refresh waves
// @Description  Runs a read round now, shared with any round already in flight
// @Tags         waves
// @Produce      json
// @Success      200  {object}  portal.State
// @Router       /api/refresh [post]
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	s.portal.Refresh(r.Context())
	writeJSON(w, http.StatusOK, s.portal.State())
}

// TxStatus handles GET /api/tx/{hash}
// @Summary      Transaction status
// @Description  Confirmation state of a transaction sent through this server
// @Tags         transactions
// @Produce      json
// @Param        hash  path      string  true  "Transaction hash"
// @Success      200   {object}  poller.Result
// @Failure      404   {object}  ErrorResponse
// @Router       /api/tx/{hash} [get]
func (s *Server) TxStatus(w http.ResponseWriter, r *http.Request) {
	res, ok := s.portal.TxStatus(r.PathValue("hash"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_tx", "transaction was not sent through this server")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Celebrate handles GET /api/celebrate/{hash}.png
// @Summary      Celebration card
// @Description  Confetti card with the wave message and a QR code to the explorer
// @Tags         transactions
// @Produce      png
// @Param        hash  path  string  true  "Transaction hash"
// @Success      200
// @Failure      400  {object}  ErrorResponse
// @Router       /api/celebrate/{hash}.png [get]
func (s *Server) Celebrate(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimSuffix(r.PathValue("file"), ".png")
	if !txHashPattern.MatchString(hash) {
		writeError(w, http.StatusBadRequest, "bad_hash", "invalid transaction hash")
		return
	}

	card := celebrate.Card{TxHash: hash, Message: s.portal.Message(hash)}
	if s.opts.ExplorerTxURL != "" {
		card.ExplorerURL = s.opts.ExplorerTxURL + hash
	}
	data, err := celebrate.RenderPNG(card)
	if err != nil {
		log.LogError("Failed to render celebration card", zap.String("txHash", hash), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "render", "failed to render card")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// Health handles GET /healthz
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	st := s.portal.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"stale":     st.Stale,
		"updatedAt": st.UpdatedAt,
	})
}
