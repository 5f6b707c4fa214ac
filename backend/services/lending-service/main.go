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
	"github.com/rohitjadhav07/AIFI-Project/backend/services/lending-service/models"
)

type Service struct {
	fabric *fabricclient.Client
	db     *sql.DB
	logger *zap.Logger
}

// submitAmount runs one of the four account operations and refreshes the
// position mirror. The chaincode resolves the account from the submitting
// identity; the JWT account claim is only used for the mirror row.
func (s *Service) submitAmount(w http.ResponseWriter, r *http.Request, operation string) {
	traceID := api.NewTraceID()
	claims, ok := common.ClaimsFrom(r)
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "unauthenticated", "Missing claims", traceID)
		return
	}
	var req models.AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}

	_, err := s.fabric.SubmitTransaction("LendingLedger:"+operation, req.Asset, strconv.FormatUint(req.Amount, 10))
	if err != nil {
		s.logger.Warn("Chaincode rejected operation",
			zap.String("operation", operation), zap.String("trace_id", traceID), zap.Error(err))
		api.WriteChainError(w, err, traceID)
		return
	}

	s.refreshPosition(claims.Account, req.Asset)
	api.WriteSuccess(w, http.StatusOK, map[string]string{"status": "submitted"})
}

func (s *Service) DepositHandler(w http.ResponseWriter, r *http.Request) {
	s.submitAmount(w, r, "Deposit")
}

func (s *Service) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	s.submitAmount(w, r, "Withdraw")
}

func (s *Service) BorrowHandler(w http.ResponseWriter, r *http.Request) {
	s.submitAmount(w, r, "Borrow")
}

func (s *Service) RepayHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	claims, ok := common.ClaimsFrom(r)
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "unauthenticated", "Missing claims", traceID)
		return
	}
	var req models.RepayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}

	_, err := s.fabric.SubmitTransaction("LendingLedger:Repay", req.Asset)
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}

	s.refreshPosition(claims.Account, req.Asset)
	api.WriteSuccess(w, http.StatusOK, map[string]string{"status": "repaid"})
}

func (s *Service) RepayQuoteHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	asset := mux.Vars(r)["asset"]

	result, err := s.fabric.EvaluateTransaction("LendingLedger:RepayPreview", asset)
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}
	var quote models.RepayQuote
	if err := json.Unmarshal(result, &quote); err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to parse quote", traceID)
		return
	}
	api.WriteSuccess(w, http.StatusOK, quote)
}

func (s *Service) GetPositionHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	vars := mux.Vars(r)
	account, asset := vars["account"], vars["asset"]

	// Mirror first, chain as the authority on balance.
	var position models.Position
	err := s.db.QueryRow(`
		SELECT account, asset, balance, updated_at
		FROM lending_db.positions WHERE account = $1 AND asset = $2`, account, asset).
		Scan(&position.Account, &position.Asset, &position.Balance, &position.UpdatedAt)
	if err != nil && err != sql.ErrNoRows {
		s.logger.Error("DB error", zap.String("trace_id", traceID), zap.Error(err))
	}

	result, err := s.fabric.EvaluateTransaction("LendingLedger:GetBalance", asset, account)
	if err == nil {
		if balance, parseErr := strconv.ParseUint(string(result), 10, 64); parseErr == nil {
			position.Account, position.Asset, position.Balance = account, asset, balance
		}
	}

	api.WriteSuccess(w, http.StatusOK, position)
}

func (s *Service) GetLoanHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	vars := mux.Vars(r)

	result, err := s.fabric.EvaluateTransaction("LendingLedger:GetLoan", vars["account"], vars["asset"])
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}
	var loan models.Loan
	if err := json.Unmarshal(result, &loan); err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to parse loan", traceID)
		return
	}
	api.WriteSuccess(w, http.StatusOK, loan)
}

func (s *Service) GetPoolHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	asset := mux.Vars(r)["asset"]

	result, err := s.fabric.EvaluateTransaction("LendingLedger:GetPoolTotal", asset)
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}
	total, err := strconv.ParseUint(string(result), 10, 64)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to parse pool total", traceID)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"asset": asset, "total": total})
}

func (s *Service) GetRateHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	tier := mux.Vars(r)["tier"]

	result, err := s.fabric.EvaluateTransaction("LendingLedger:GetInterestRate", tier)
	if err != nil {
		api.WriteChainError(w, err, traceID)
		return
	}
	rate, err := strconv.ParseUint(string(result), 10, 64)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to parse rate", traceID)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"tier": tier, "rate_bps": rate})
}

func (s *Service) refreshPosition(account, asset string) {
	result, err := s.fabric.EvaluateTransaction("LendingLedger:GetBalance", asset, account)
	if err != nil {
		s.logger.Warn("Failed to refresh position", zap.String("account", account), zap.Error(err))
		return
	}
	balance, err := strconv.ParseUint(string(result), 10, 64)
	if err != nil {
		return
	}
	_, err = s.db.Exec(`
		INSERT INTO lending_db.positions (account, asset, balance, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (account, asset) DO UPDATE SET balance = $3, updated_at = NOW()`,
		account, asset, balance)
	if err != nil {
		s.logger.Warn("Failed to persist position mirror", zap.Error(err))
	}
}

func main() {
	cfg := common.LoadConfig()
	logger, err := common.NewLogger("lending-service")
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
		migrationsDir = "backend/migrations/lending"
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
	protected.HandleFunc("/lending/deposit", svc.DepositHandler).Methods("POST")
	protected.HandleFunc("/lending/withdraw", svc.WithdrawHandler).Methods("POST")
	protected.HandleFunc("/lending/borrow", svc.BorrowHandler).Methods("POST")
	protected.HandleFunc("/lending/repay", svc.RepayHandler).Methods("POST")
	protected.HandleFunc("/lending/repay-quote/{asset}", svc.RepayQuoteHandler).Methods("GET")

	r.HandleFunc("/lending/positions/{account}/{asset}", svc.GetPositionHandler).Methods("GET")
	r.HandleFunc("/lending/loans/{account}/{asset}", svc.GetLoanHandler).Methods("GET")
	r.HandleFunc("/lending/pool/{asset}", svc.GetPoolHandler).Methods("GET")
	r.HandleFunc("/lending/rates/{tier}", svc.GetRateHandler).Methods("GET")

	logger.Info("Lending Service running", zap.String("port", cfg.Port))
	logger.Fatal("Server stopped", zap.Error(http.ListenAndServe(":"+cfg.Port, r)))
}
