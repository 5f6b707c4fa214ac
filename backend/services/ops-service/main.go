package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common/api"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common/db"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/fabricclient"
)

// The ops service is the administrator's console. Every mutation here maps
// onto an admin-gated chaincode operation; the chaincode rejects the call if
// the submitting identity is not the contract admin, so the JWT role check
// is a front gate, not the authority.
type Service struct {
	fabric *fabricclient.Client
	db     *sql.DB
	logger *zap.Logger
}

type mintRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  uint64 `json:"amount"`
}

type assetRequest struct {
	Asset string `json:"asset"`
}

type rateRequest struct {
	Tier    string `json:"tier"`
	RateBps uint64 `json:"rate_bps"`
}

type corridorFeeRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	RateBps     uint64 `json:"rate_bps"`
}

type feeRequest struct {
	RateBps uint64 `json:"rate_bps"`
}

type limitsRequest struct {
	Min uint64 `json:"min"`
	Max uint64 `json:"max"`
}

type accountRequest struct {
	Account string `json:"account"`
}

type languageRequest struct {
	Code string `json:"code"`
}

// submit sends an admin transaction and writes a uniform response.
func (s *Service) submit(w http.ResponseWriter, traceID, name string, args ...string) {
	if _, err := s.fabric.SubmitTransaction(name, args...); err != nil {
		s.logger.Warn("Admin operation rejected",
			zap.String("operation", name), zap.String("trace_id", traceID), zap.Error(err))
		api.WriteChainError(w, err, traceID)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"operation": name, "status": "committed"})
}

func (s *Service) MintHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}
	s.submit(w, traceID, "TokenBank:Mint", req.Account, req.Asset, strconv.FormatUint(req.Amount, 10))
}

func (s *Service) RegisterLendingAssetHandler(w http.ResponseWriter, r *http.Request) {
	s.assetHandler(w, r, "LendingLedger:RegisterAsset")
}

func (s *Service) DeregisterLendingAssetHandler(w http.ResponseWriter, r *http.Request) {
	s.assetHandler(w, r, "LendingLedger:DeregisterAsset")
}

func (s *Service) RegisterRemittanceAssetHandler(w http.ResponseWriter, r *http.Request) {
	s.assetHandler(w, r, "RemittanceLedger:RegisterAsset")
}

func (s *Service) DeregisterRemittanceAssetHandler(w http.ResponseWriter, r *http.Request) {
	s.assetHandler(w, r, "RemittanceLedger:DeregisterAsset")
}

func (s *Service) assetHandler(w http.ResponseWriter, r *http.Request, operation string) {
	traceID := api.NewTraceID()
	var req assetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}
	s.submit(w, traceID, operation, req.Asset)
}

func (s *Service) SetInterestRateHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}
	s.submit(w, traceID, "LendingLedger:SetInterestRate", req.Tier, strconv.FormatUint(req.RateBps, 10))
}

func (s *Service) SetCorridorFeeHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	var req corridorFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}
	s.submit(w, traceID, "RemittanceLedger:SetCorridorFee",
		req.Origin, req.Destination, strconv.FormatUint(req.RateBps, 10))
}

func (s *Service) SetDefaultFeeHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	var req feeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}
	s.submit(w, traceID, "RemittanceLedger:SetDefaultFee", strconv.FormatUint(req.RateBps, 10))
}

func (s *Service) SetLimitsHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	var req limitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}
	s.submit(w, traceID, "RemittanceLedger:SetTransferLimits",
		strconv.FormatUint(req.Min, 10), strconv.FormatUint(req.Max, 10))
}

func (s *Service) SetTreasuryHandler(w http.ResponseWriter, r *http.Request) {
	s.accountHandler(w, r, "RemittanceLedger:SetTreasury")
}

func (s *Service) SetOperatorHandler(w http.ResponseWriter, r *http.Request) {
	s.accountHandler(w, r, "RemittanceLedger:SetOperator")
}

func (s *Service) SetRiskUpdaterHandler(w http.ResponseWriter, r *http.Request) {
	s.accountHandler(w, r, "RiskRegistry:SetUpdater")
}

func (s *Service) AuthorizeRiskReaderHandler(w http.ResponseWriter, r *http.Request) {
	s.accountHandler(w, r, "RiskRegistry:AuthorizeReader")
}

func (s *Service) RevokeRiskReaderHandler(w http.ResponseWriter, r *http.Request) {
	s.accountHandler(w, r, "RiskRegistry:RevokeReader")
}

func (s *Service) AuthorizeProcessorHandler(w http.ResponseWriter, r *http.Request) {
	s.accountHandler(w, r, "CommandRegistry:AuthorizeProcessor")
}

func (s *Service) RevokeProcessorHandler(w http.ResponseWriter, r *http.Request) {
	s.accountHandler(w, r, "CommandRegistry:RevokeProcessor")
}

func (s *Service) accountHandler(w http.ResponseWriter, r *http.Request, operation string) {
	traceID := api.NewTraceID()
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}
	s.submit(w, traceID, operation, req.Account)
}

func (s *Service) AddLanguageHandler(w http.ResponseWriter, r *http.Request) {
	s.languageHandler(w, r, "CommandRegistry:AddLanguage")
}

func (s *Service) RemoveLanguageHandler(w http.ResponseWriter, r *http.Request) {
	s.languageHandler(w, r, "CommandRegistry:RemoveLanguage")
}

func (s *Service) languageHandler(w http.ResponseWriter, r *http.Request, operation string) {
	traceID := api.NewTraceID()
	var req languageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}
	s.submit(w, traceID, operation, req.Code)
}

// DashboardHandler summarizes recent chaincode activity from the event
// mirror maintained by the indexer service.
func (s *Service) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	rows, err := s.db.Query(`
		SELECT event_name, COUNT(*)
		FROM indexer_db.chain_events
		WHERE received_at > NOW() - INTERVAL '24 hours'
		GROUP BY event_name
		ORDER BY COUNT(*) DESC`)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to query events", traceID)
		return
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			continue
		}
		counts[name] = n
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"window": "24h", "events": counts})
}

func main() {
	cfg := common.LoadConfig()
	logger, err := common.NewLogger("ops-service")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	database, err := db.Connect(cfg.DB, logger)
	if err != nil {
		logger.Fatal("Failed to connect to DB", zap.Error(err))
	}
	defer database.Close()

	fabric, err := fabricclient.NewClient(
		cfg.FabricConfig, cfg.Channel, cfg.Chaincode, cfg.MSP, cfg.CertPath, cfg.KeyPath)
	if err != nil {
		logger.Warn("Fabric connection failed", zap.Error(err))
	} else {
		defer fabric.Close()
	}

	svc := &Service{fabric: fabric, db: database, logger: logger}
	auth := common.AuthMiddleware([]byte(cfg.JWTSecret))
	admin := func(h http.HandlerFunc) http.HandlerFunc {
		return common.RequireRole(common.RoleAdmin, h)
	}

	r := mux.NewRouter()
	protected := r.NewRoute().Subrouter()
	protected.Use(auth)
	protected.HandleFunc("/ops/mint", admin(svc.MintHandler)).Methods("POST")
	protected.HandleFunc("/ops/lending/assets", admin(svc.RegisterLendingAssetHandler)).Methods("POST")
	protected.HandleFunc("/ops/lending/assets", admin(svc.DeregisterLendingAssetHandler)).Methods("DELETE")
	protected.HandleFunc("/ops/lending/rates", admin(svc.SetInterestRateHandler)).Methods("POST")
	protected.HandleFunc("/ops/remittance/assets", admin(svc.RegisterRemittanceAssetHandler)).Methods("POST")
	protected.HandleFunc("/ops/remittance/assets", admin(svc.DeregisterRemittanceAssetHandler)).Methods("DELETE")
	protected.HandleFunc("/ops/remittance/fees/corridor", admin(svc.SetCorridorFeeHandler)).Methods("POST")
	protected.HandleFunc("/ops/remittance/fees/default", admin(svc.SetDefaultFeeHandler)).Methods("POST")
	protected.HandleFunc("/ops/remittance/limits", admin(svc.SetLimitsHandler)).Methods("POST")
	protected.HandleFunc("/ops/remittance/treasury", admin(svc.SetTreasuryHandler)).Methods("POST")
	protected.HandleFunc("/ops/remittance/operator", admin(svc.SetOperatorHandler)).Methods("POST")
	protected.HandleFunc("/ops/risk/updater", admin(svc.SetRiskUpdaterHandler)).Methods("POST")
	protected.HandleFunc("/ops/risk/readers", admin(svc.AuthorizeRiskReaderHandler)).Methods("POST")
	protected.HandleFunc("/ops/risk/readers", admin(svc.RevokeRiskReaderHandler)).Methods("DELETE")
	protected.HandleFunc("/ops/voice/languages", admin(svc.AddLanguageHandler)).Methods("POST")
	protected.HandleFunc("/ops/voice/languages", admin(svc.RemoveLanguageHandler)).Methods("DELETE")
	protected.HandleFunc("/ops/voice/processors", admin(svc.AuthorizeProcessorHandler)).Methods("POST")
	protected.HandleFunc("/ops/voice/processors", admin(svc.RevokeProcessorHandler)).Methods("DELETE")
	protected.HandleFunc("/ops/dashboard", admin(svc.DashboardHandler)).Methods("GET")

	logger.Info("Ops Service running", zap.String("port", cfg.Port))
	logger.Fatal("Server stopped", zap.Error(http.ListenAndServe(":"+cfg.Port, r)))
}
