package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"safesaviour/core/events"
	"safesaviour/crypto"
	"safesaviour/native/rescue"
)

var errUnavailable = errors.New("resource not served by this daemon")

type rescueRequest struct {
	CollateralType string `json:"collateralType"`
	Handler        string `json:"handler"`
}

type rescueResponse struct {
	Outcome         string `json:"outcome"`
	VaultID         uint64 `json:"vaultId,omitempty"`
	CollateralAdded string `json:"collateralAdded"`
	Reward          string `json:"reward"`
	CollateralValue string `json:"collateralValue"`
	ReceiptID       string `json:"receiptId,omitempty"`
}

type bindingResponse struct {
	CollateralType string `json:"collateralType"`
	Token          string `json:"token"`
}

type registerRequest struct {
	CollateralType string `json:"collateralType"`
	Token          string `json:"token"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type eligibilityRequest struct {
	Enabled bool `json:"enabled"`
}

type eligibilityResponse struct {
	VaultID  uint64 `json:"vaultId"`
	Eligible bool   `json:"eligible"`
}

type parametersResponse struct {
	LiquidatorReward string `json:"liquidatorReward"`
	Treasury         string `json:"treasury"`
	ProtocolCaller   string `json:"protocolCaller"`
}

type parameterRequest struct {
	Value string `json:"value"`
}

type roleResponse struct {
	Role    string   `json:"role"`
	Members []string `json:"members"`
}

type authorizationResponse struct {
	Role       string `json:"role"`
	Principal  string `json:"principal"`
	Authorized bool   `json:"authorized"`
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type pauseResponse struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type eventResponse struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (s *Server) rescue(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req rescueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ct, err := rescue.NewCollateralType(req.CollateralType)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	handler, err := parseAddress(req.Handler, crypto.HandlerPrefix)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.engine.Rescue(r.Context(), caller, ct, handler)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := rescueResponse{
		Outcome:         result.Outcome.String(),
		VaultID:         uint64(result.VaultID),
		CollateralAdded: rescue.FormatWad(result.CollateralAdded),
		Reward:          rescue.FormatWad(result.Reward),
		CollateralValue: rescue.FormatWad(result.CollateralValue),
	}
	if result.Outcome == rescue.OutcomeRescued {
		resp.ReceiptID = hex.EncodeToString(result.ReceiptID[:])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listCollateralTypes(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errNotFound, errUnavailable))
		return
	}
	bindings, err := s.catalog.Bindings()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]bindingResponse, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, bindingResponse{CollateralType: b.CollateralType.String(), Token: b.Token.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) registerCollateralType(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ct, err := rescue.NewCollateralType(req.CollateralType)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := parseAddress(req.Token, crypto.TokenPrefix)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.engine.RegisterCollateralType(caller, ct, token)
	s.governance("register_collateral_type", err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bindingResponse{CollateralType: ct.String(), Token: token.String()})
}

func (s *Server) getCollateralType(w http.ResponseWriter, r *http.Request) {
	ct, err := rescue.NewCollateralType(chi.URLParam(r, "collateralType"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.engine.TokenFor(ct)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if token.IsZero() {
		s.fail(w, r, fmt.Errorf("%w: collateral type %s", errNotFound, ct))
		return
	}
	writeJSON(w, http.StatusOK, bindingResponse{CollateralType: ct.String(), Token: token.String()})
}

func (s *Server) reassignCollateralType(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	ct, err := rescue.NewCollateralType(chi.URLParam(r, "collateralType"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := parseAddress(req.Token, crypto.TokenPrefix)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.engine.ReassignCollateralToken(caller, ct, token)
	s.governance("reassign_collateral_token", err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bindingResponse{CollateralType: ct.String(), Token: token.String()})
}

func (s *Server) listEligibleVaults(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errNotFound, errUnavailable))
		return
	}
	ids, err := s.catalog.EligibleVaults()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]eligibilityResponse, 0, len(ids))
	for _, id := range ids {
		out = append(out, eligibilityResponse{VaultID: uint64(id), Eligible: true})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getEligibility(w http.ResponseWriter, r *http.Request) {
	id, err := vaultParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	eligible, err := s.engine.IsEligible(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse{VaultID: uint64(id), Eligible: eligible})
}

func (s *Server) setEligibility(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, err := vaultParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req eligibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.engine.SetEligible(r.Context(), caller, id, req.Enabled)
	s.governance("set_eligible", err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse{VaultID: uint64(id), Eligible: req.Enabled})
}

func (s *Server) getParameters(w http.ResponseWriter, r *http.Request) {
	params, err := s.engine.Parameters()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, parametersResponse{
		LiquidatorReward: rescue.FormatWad(params.LiquidatorReward),
		Treasury:         params.Treasury.String(),
		ProtocolCaller:   params.ProtocolCaller.String(),
	})
}

func (s *Server) modifyParameter(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req parameterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	err := s.engine.ModifyParameters(caller, chi.URLParam(r, "key"), req.Value)
	s.governance("modify_parameters", err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.getParameters(w, r)
}

func (s *Server) listRole(w http.ResponseWriter, r *http.Request) {
	role, err := rescue.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	members, err := s.engine.RoleMembers(role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := roleResponse{Role: role.String(), Members: make([]string, 0, len(members))}
	for _, member := range members {
		out.Members = append(out.Members, member.String())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) checkRole(w http.ResponseWriter, r *http.Request) {
	role, principal, err := roleParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	authorized, err := s.engine.IsAuthorized(principal, role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authorizationResponse{Role: role.String(), Principal: principal.String(), Authorized: authorized})
}

func (s *Server) grantRole(w http.ResponseWriter, r *http.Request) {
	s.changeRole(w, r, true)
}

func (s *Server) revokeRole(w http.ResponseWriter, r *http.Request) {
	s.changeRole(w, r, false)
}

func (s *Server) changeRole(w http.ResponseWriter, r *http.Request, grant bool) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	role, principal, err := roleParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	operation := "revoke"
	if grant {
		operation = "grant"
		err = s.engine.Grant(caller, role, principal)
	} else {
		err = s.engine.Revoke(caller, role, principal)
	}
	s.governance(operation, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authorizationResponse{Role: role.String(), Principal: principal.String(), Authorized: grant})
}

func (s *Server) getPause(w http.ResponseWriter, r *http.Request) {
	if s.pauses == nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errNotFound, errUnavailable))
		return
	}
	module := strings.TrimSpace(chi.URLParam(r, "module"))
	writeJSON(w, http.StatusOK, pauseResponse{Module: module, Paused: s.pauses.IsPaused(module)})
}

// setPause toggles a module. The engine persists the switch and restricts it
// to governance and the treasury.
func (s *Server) setPause(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	module := strings.TrimSpace(chi.URLParam(r, "module"))
	if module == "" {
		s.fail(w, r, wrapBadRequest(errors.New("module required")))
		return
	}
	var req pauseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	err := s.engine.SetPaused(caller, module, req.Paused)
	s.governance("set_pause", err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("module pause updated",
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.String("module", module),
		slog.Bool("paused", req.Paused),
		slog.String("caller", caller.String()))
	writeJSON(w, http.StatusOK, pauseResponse{Module: module, Paused: req.Paused})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errNotFound, errUnavailable))
		return
	}
	filter := strings.TrimSpace(r.URL.Query().Get("type"))
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.fail(w, r, wrapBadRequest(fmt.Errorf("limit %q", raw)))
			return
		}
		limit = parsed
	}
	recorded := s.events.Events()
	out := make([]eventResponse, 0, len(recorded))
	for i := len(recorded) - 1; i >= 0; i-- {
		evt := recorded[i]
		if filter != "" && evt.EventType() != filter {
			continue
		}
		resp := eventResponse{Type: evt.EventType()}
		if attributed, ok := evt.(events.Attributed); ok {
			resp.Attributes = attributed.Attributes()
		}
		out = append(out, resp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// caller returns the authenticated principal or writes a 401.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, apiError{Error: "missing principal", Code: "unauthenticated"})
		return crypto.Address{}, false
	}
	return principal, true
}

func vaultParam(r *http.Request) (rescue.VaultID, error) {
	raw := chi.URLParam(r, "vaultID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, wrapBadRequest(fmt.Errorf("vault id %q", raw))
	}
	return rescue.VaultID(id), nil
}

func roleParams(r *http.Request) (rescue.Role, crypto.Address, error) {
	role, err := rescue.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		return "", crypto.Address{}, err
	}
	principal, err := parseAddress(chi.URLParam(r, "principal"), crypto.PrincipalPrefix)
	if err != nil {
		return "", crypto.Address{}, err
	}
	return role, principal, nil
}

func parseAddress(value string, prefix crypto.AddressPrefix) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", rescue.ErrInvalidAddress, err)
	}
	if addr.Prefix() != prefix {
		return crypto.Address{}, fmt.Errorf("%w: expected %s prefix, got %s", rescue.ErrInvalidAddress, prefix, addr.Prefix())
	}
	return addr, nil
}

func wrapBadRequest(err error) error {
	return fmt.Errorf("%w: %v", errBadRequest, err)
}
