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
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common/migrations"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/fabricclient"
	"github.com/rohitjadhav07/AIFI-Project/backend/services/remittance-service/models"
)

type Service struct {
	fabric *fabricclient.Client
	db     *sql.DB
	logger *zap.Logger
}

func (s *Service) InitiateHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	var req models.InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}
	if req.Recipient == "" || req.Asset == "" {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Recipient and asset are required", traceID)
		return
	}

	result, err := s.fabric.SubmitTransaction("RemittanceLedger:InitiateTransfer",
		req.Asset, strconv.FormatUint(req.Amount, 10), req.Recipient, req.Origin, req.Destination)
	if err != nil {
		s.logger.Warn("Transfer rejected", zap.String("trace_id", traceID), zap.Error(err))
		api.WriteChainError(w, err, traceID)
		return
	}

	var transfer models.Transfer
	if err := json.Unmarshal(result, &transfer); err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to parse transfer", traceID)
		return
	}
	s.mirrorTransfer(&transfer)
	api.WriteSuccess(w, http.StatusCreated, transfer)
}

func (s *Service) CompleteHandler(w http.ResponseWriter, r *http.Request) {
	s.resolveTransfer(w, r, "CompleteTransfer")
}

func (s *Service) CancelHandler(w http.ResponseWriter, r *http.Request) {
	s.resolveTransfer(w, r, "CancelTransfer")
}

func (s *Service) resolveTransfer(w http.ResponseWriter, r *http.Request, operation string) {
	traceID := api.NewTraceID()
	id := mux.Vars(r)["id"]
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Transfer ID must be numeric", traceID)
		return
	}

	if _, err := s.fabric.SubmitTransaction("RemittanceLedger:"+operation, id); err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}

	// Pull the resolved record back for the mirror.
	if result, err := s.fabric.EvaluateTransaction("RemittanceLedger:GetTransfer", id); err == nil {
		var transfer models.Transfer
		if json.Unmarshal(result, &transfer) == nil {
			s.mirrorTransfer(&transfer)
		}
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"id": id, "status": "resolved"})
}

func (s *Service) QuoteHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	origin := r.URL.Query().Get("from")
	destination := r.URL.Query().Get("to")
	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Amount must be numeric", traceID)
		return
	}

	result, err := s.fabric.EvaluateTransaction("RemittanceLedger:QuoteFee",
		origin, destination, strconv.FormatUint(amount, 10))
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}
	fee, err := strconv.ParseUint(string(result), 10, 64)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to parse fee", traceID)
		return
	}
	api.WriteSuccess(w, http.StatusOK, models.QuoteResponse{Amount: amount, Fee: fee, Total: amount + fee})
}

func (s *Service) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	id := mux.Vars(r)["id"]

	result, err := s.fabric.EvaluateTransaction("RemittanceLedger:GetTransfer", id)
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}
	var transfer models.Transfer
	if err := json.Unmarshal(result, &transfer); err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to parse transfer", traceID)
		return
	}
	api.WriteSuccess(w, http.StatusOK, transfer)
}

func (s *Service) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	account := mux.Vars(r)["account"]

	result, err := s.fabric.EvaluateTransaction("RemittanceLedger:GetTransfersForAccount", account)
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}
	var transfers []models.Transfer
	if err := json.Unmarshal(result, &transfers); err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to parse transfers", traceID)
		return
	}
	api.WriteSuccess(w, http.StatusOK, transfers)
}

func (s *Service) mirrorTransfer(t *models.Transfer) {
	_, err := s.db.Exec(`
		INSERT INTO remittance_db.transfers (id, sender, recipient, asset, amount, fee, origin, destination, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET status = $9, updated_at = NOW()`,
		t.ID, t.Sender, t.Recipient, t.Asset, t.Amount, t.Fee, t.Origin, t.Destination, t.Status)
	if err != nil {
		s.logger.Warn("Failed to persist transfer mirror", zap.Uint64("id", t.ID), zap.Error(err))
	}
}

func main() {
	cfg := common.LoadConfig()
	logger, err := common.NewLogger("remittance-service")
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
		migrationsDir = "backend/migrations/remittance"
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
	protected.HandleFunc("/remittance/transfers", svc.InitiateHandler).Methods("POST")
	protected.HandleFunc("/remittance/transfers/{id}/cancel", svc.CancelHandler).Methods("POST")
	protected.HandleFunc("/remittance/transfers/{id}/complete",
		common.RequireRole(common.RoleOperator, svc.CompleteHandler)).Methods("POST")

	r.HandleFunc("/remittance/quote", svc.QuoteHandler).Methods("GET")
	r.HandleFunc("/remittance/transfers/{id}", svc.GetTransferHandler).Methods("GET")
	r.HandleFunc("/remittance/accounts/{account}/transfers", svc.ListTransfersHandler).Methods("GET")

	logger.Info("Remittance Service running", zap.String("port", cfg.Port))
	logger.Fatal("Server stopped", zap.Error(http.ListenAndServe(":"+cfg.Port, r)))
}
