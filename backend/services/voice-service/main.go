package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common/api"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/fabricclient"
)

// The voice service fronts the on-chain command registry. It keeps no local
// state; every lookup goes to the chain so resolution stays consistent with
// the registry admin's view.
type Service struct {
	fabric *fabricclient.Client
	logger *zap.Logger
}

type resolveRequest struct {
	Language string `json:"language"`
	Command  string `json:"command"`
}

type registerActionRequest struct {
	Language    string `json:"language"`
	Command     string `json:"command"`
	Target      string `json:"target"`
	Operation   string `json:"operation"`
	Description string `json:"description"`
}

type action struct {
	Hash         string `json:"hash"`
	Target       string `json:"target"`
	Operation    string `json:"operation"`
	Description  string `json:"description"`
	Active       bool   `json:"active"`
	RegisteredAt int64  `json:"registered_at"`
}

func (s *Service) ResolveHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}

	hashBytes, err := s.fabric.EvaluateTransaction("CommandRegistry:HashCommand", req.Language, req.Command)
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}

	result, err := s.fabric.EvaluateTransaction("CommandRegistry:Resolve", string(hashBytes))
	if err != nil {
		s.logger.Info("Command did not resolve",
			zap.String("language", req.Language), zap.String("trace_id", traceID), zap.Error(err))
		api.WriteChainError(w, err, traceID)
		return
	}

	var act action
	if err := json.Unmarshal(result, &act); err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to parse action", traceID)
		return
	}
	api.WriteSuccess(w, http.StatusOK, act)
}

func (s *Service) RegisterActionHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	var req registerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}

	hashBytes, err := s.fabric.EvaluateTransaction("CommandRegistry:HashCommand", req.Language, req.Command)
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}
	hash := string(hashBytes)

	_, err = s.fabric.SubmitTransaction("CommandRegistry:RegisterAction",
		hash, req.Target, req.Operation, req.Description)
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}
	api.WriteSuccess(w, http.StatusCreated, map[string]string{"hash": hash})
}

func (s *Service) GetActionHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	hash := mux.Vars(r)["hash"]

	result, err := s.fabric.EvaluateTransaction("CommandRegistry:GetAction", hash)
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}
	var act action
	if err := json.Unmarshal(result, &act); err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to parse action", traceID)
		return
	}
	api.WriteSuccess(w, http.StatusOK, act)
}

func main() {
	cfg := common.LoadConfig()
	logger, err := common.NewLogger("voice-service")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	fabric, err := fabricclient.NewClient(
		cfg.FabricConfig, cfg.Channel, cfg.Chaincode, cfg.MSP, cfg.CertPath, cfg.KeyPath)
	if err != nil {
		logger.Warn("Fabric connection failed", zap.Error(err))
	} else {
		defer fabric.Close()
	}

	svc := &Service{fabric: fabric, logger: logger}
	auth := common.AuthMiddleware([]byte(cfg.JWTSecret))

	r := mux.NewRouter()
	protected := r.NewRoute().Subrouter()
	protected.Use(auth)
	protected.HandleFunc("/voice/resolve", svc.ResolveHandler).Methods("POST")
	protected.HandleFunc("/voice/actions", common.RequireRole(common.RoleAdmin, svc.RegisterActionHandler)).Methods("POST")

	r.HandleFunc("/voice/actions/{hash}", svc.GetActionHandler).Methods("GET")

	logger.Info("Voice Service running", zap.String("port", cfg.Port))
	logger.Fatal("Server stopped", zap.Error(http.ListenAndServe(":"+cfg.Port, r)))
}
