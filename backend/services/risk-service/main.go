package main

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common/api"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common/db"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common/migrations"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/fabricclient"
)

type Service struct {
	fabric *fabricclient.Client
	db     *sql.DB
	logger *zap.Logger
}

type setTierRequest struct {
	Account string `json:"account"`
	Tier    string `json:"tier"`
}

type batchTierRequest struct {
	Assessments []setTierRequest `json:"assessments"`
}

func (s *Service) SetTierHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	var req setTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}

	if _, err := s.fabric.SubmitTransaction("RiskRegistry:SetTier", req.Account, req.Tier); err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}

	s.mirrorTier(req.Account, req.Tier)
	api.WriteSuccess(w, http.StatusOK, map[string]string{"account": req.Account, "tier": req.Tier})
}

func (s *Service) SetTiersBatchHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	var req batchTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}
	if len(req.Assessments) == 0 {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Assessments are required", traceID)
		return
	}

	// The chaincode takes parallel JSON arrays so the batch commits in one
	// transaction.
	accounts := make([]string, len(req.Assessments))
	tiers := make([]string, len(req.Assessments))
	for i, a := range req.Assessments {
		accounts[i] = a.Account
		tiers[i] = a.Tier
	}
	accountsJSON, _ := json.Marshal(accounts)
	tiersJSON, _ := json.Marshal(tiers)

	if _, err := s.fabric.SubmitTransaction("RiskRegistry:SetTiersBatch", string(accountsJSON), string(tiersJSON)); err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}

	for _, a := range req.Assessments {
		s.mirrorTier(a.Account, a.Tier)
	}
	api.WriteSuccess(w, http.StatusOK, map[string]int{"updated": len(req.Assessments)})
}

func (s *Service) GetTierHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	account := mux.Vars(r)["account"]

	result, err := s.fabric.EvaluateTransaction("RiskRegistry:GetTier", account)
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"account": account, "tier": string(result)})
}

func (s *Service) GetTierLabelHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	account := mux.Vars(r)["account"]

	result, err := s.fabric.EvaluateTransaction("RiskRegistry:GetTierLabel", account)
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"account": account, "label": string(result)})
}

func (s *Service) mirrorTier(account, tier string) {
	_, err := s.db.Exec(`
		INSERT INTO risk_db.assessments (account, tier, assessed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account) DO UPDATE SET tier = $2, assessed_at = NOW()`, account, tier)
	if err != nil {
		s.logger.Warn("Failed to persist assessment mirror", zap.String("account", account), zap.Error(err))
	}
}

func main() {
	cfg := common.LoadConfig()
	logger, err := common.NewLogger("risk-service")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	database, err := db.Connect(cfg.DB, logger)
	if err != nil {
		logger.Fatal("Failed to connect to DB", zap.Error(err))
	}
	defer database.Close()

	migrationsDir := cfg.MigrationsDir
	if migrationsDir == "" {
		migrationsDir = "backend/migrations/risk"
	}
	if err := migrations.RunMigrations(database, migrationsDir, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	fabric, err := fabricclient.NewClient(
		cfg.FabricConfig, cfg.Channel, cfg.Chaincode, cfg.MSP, cfg.CertPath, cfg.KeyPath)
	if err != nil {
		logger.Warn("Fabric connection failed", zap.Error(err))
	} else {
		defer fabric.Close()
	}

	svc := &Service{fabric: fabric, db: database, logger: logger}
	auth := common.AuthMiddleware([]byte(cfg.JWTSecret))

	r := mux.NewRouter()
	protected := r.NewRoute().Subrouter()
	protected.Use(auth)
	protected.HandleFunc("/risk/tiers", common.RequireRole(common.RoleOperator, svc.SetTierHandler)).Methods("POST")
	protected.HandleFunc("/risk/tiers/batch", common.RequireRole(common.RoleOperator, svc.SetTiersBatchHandler)).Methods("POST")
	protected.HandleFunc("/risk/accounts/{account}/tier", svc.GetTierHandler).Methods("GET")

	r.HandleFunc("/risk/accounts/{account}/label", svc.GetTierLabelHandler).Methods("GET")

	logger.Info("Risk Service running", zap.String("port", cfg.Port))
	logger.Fatal("Server stopped", zap.Error(http.ListenAndServe(":"+cfg.Port, r)))
}
