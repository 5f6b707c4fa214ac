package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common/api"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common/db"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common/migrations"
	"github.com/rohitjadhav07/AIFI-Project/backend/services/auth-service/models"
)

type Service struct {
	db     *sql.DB
	secret []byte
	logger *zap.Logger
}

func (s *Service) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}
	if req.Username == "" || req.Password == "" {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Username and password are required", traceID)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to hash password", traceID)
		return
	}

	userID := "user-" + req.Username
	account := req.Account
	if account == "" {
		account = userID
	}

	_, err = s.db.Exec(`
		INSERT INTO auth_db.users (id, username, password_hash, account, role, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, req.Username, string(hashedPassword), account, common.RoleAccount, "ACTIVE")
	if err != nil {
		s.logger.Error("Failed to register user", zap.String("trace_id", traceID), zap.Error(err))
		api.WriteError(w, http.StatusConflict, "user_exists", "Username already exists", traceID)
		return
	}

	api.WriteSuccess(w, http.StatusCreated, map[string]string{"user_id": userID, "status": "created"})
}

func (s *Service) LoginHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", traceID)
		return
	}

	var user models.User
	err := s.db.QueryRow(`
		SELECT id, password_hash, account, role, status
		FROM auth_db.users WHERE username = $1`, req.Username).
		Scan(&user.ID, &user.PasswordHash, &user.Account, &user.Role, &user.Status)

	if err == sql.ErrNoRows {
		api.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password", traceID)
		return
	} else if err != nil {
		s.logger.Error("DB error on login", zap.String("trace_id", traceID), zap.Error(err))
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Database error", traceID)
		return
	}

	if user.Status != "ACTIVE" {
		api.WriteError(w, http.StatusForbidden, "account_inactive", "Account is not active", traceID)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		api.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password", traceID)
		return
	}

	go func() {
		s.db.Exec("UPDATE auth_db.users SET last_login_at = $1 WHERE id = $2", time.Now(), user.ID)
	}()

	expirationTime := time.Now().Add(24 * time.Hour)
	claims := &common.Claims{
		UserID:   user.ID,
		Username: req.Username,
		Role:     user.Role,
		Account:  user.Account,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			Issuer:    "aifi-auth-service",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to generate token", traceID)
		return
	}

	api.WriteSuccess(w, http.StatusOK, models.TokenResponse{Token: tokenString, ExpiresAt: expirationTime.Unix()})
}

func (s *Service) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	claims, valid := s.parseToken(r)
	if !valid {
		api.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token", traceID)
		return
	}

	expirationTime := time.Now().Add(24 * time.Hour)
	claims.ExpiresAt = jwt.NewNumericDate(expirationTime)

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	newTokenString, err := newToken.SignedString(s.secret)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to refresh token", traceID)
		return
	}

	api.WriteSuccess(w, http.StatusOK, models.TokenResponse{Token: newTokenString, ExpiresAt: expirationTime.Unix()})
}

func (s *Service) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	claims, valid := s.parseToken(r)
	if !valid {
		api.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token", traceID)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"valid":    true,
		"user_id":  claims.UserID,
		"username": claims.Username,
		"role":     claims.Role,
		"account":  claims.Account,
	})
}

func (s *Service) parseToken(r *http.Request) (*common.Claims, bool) {
	tokenString := r.Header.Get("Authorization")
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}
	claims := &common.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	return claims, err == nil && token.Valid
}

func main() {
	cfg := common.LoadConfig()
	logger, err := common.NewLogger("auth-service")
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
		migrationsDir = "backend/migrations/auth"
	}
	if err := migrations.RunMigrations(database, migrationsDir, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	svc := &Service{db: database, secret: []byte(cfg.JWTSecret), logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/auth/register", svc.RegisterHandler).Methods("POST")
	r.HandleFunc("/auth/login", svc.LoginHandler).Methods("POST")
	r.HandleFunc("/auth/refresh", svc.RefreshHandler).Methods("POST")
	r.HandleFunc("/auth/verify", svc.VerifyHandler).Methods("GET")

	logger.Info("Auth Service running", zap.String("port", cfg.Port))
	logger.Fatal("Server stopped", zap.Error(http.ListenAndServe(":"+cfg.Port, r)))
}
