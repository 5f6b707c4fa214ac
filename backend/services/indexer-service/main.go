package main

import (
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/hyperledger/fabric-sdk-go/pkg/common/providers/fab"
	"go.uber.org/zap"

	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common/api"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common/db"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/common/migrations"
	"github.com/rohitjadhav07/AIFI-Project/backend/pkg/fabricclient"
)

// The indexer subscribes to every chaincode event and appends it to a
// Postgres table. Other services read the table for dashboards and history;
// the chain remains the source of truth.
type Service struct {
	fabric *fabricclient.Client
	db     *sql.DB
	logger *zap.Logger
}

func (s *Service) consume(events <-chan *fab.CCEvent) {
	for ev := range events {
		_, err := s.db.Exec(`
			INSERT INTO indexer_db.chain_events (tx_id, event_name, payload, block_number, received_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (tx_id, event_name) DO NOTHING`,
			ev.TxID, ev.EventName, ev.Payload, ev.BlockNumber)
		if err != nil {
			s.logger.Error("Failed to index event",
				zap.String("tx_id", ev.TxID), zap.String("event", ev.EventName), zap.Error(err))
			continue
		}
		s.logger.Debug("Indexed event",
			zap.String("tx_id", ev.TxID), zap.String("event", ev.EventName))
	}
}

func (s *Service) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	traceID := api.NewTraceID()
	name := r.URL.Query().Get("name")

	query := `
		SELECT tx_id, event_name, payload, block_number, received_at
		FROM indexer_db.chain_events`
	args := []interface{}{}
	if name != "" {
		query += ` WHERE event_name = $1`
		args = append(args, name)
	}
	query += ` ORDER BY received_at DESC LIMIT 100`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to query events", traceID)
		return
	}
	defer rows.Close()

	type eventRow struct {
		TxID        string `json:"tx_id"`
		EventName   string `json:"event_name"`
		Payload     string `json:"payload"`
		BlockNumber uint64 `json:"block_number"`
		ReceivedAt  string `json:"received_at"`
	}
	var out []eventRow
	for rows.Next() {
		var e eventRow
		var payload []byte
		if err := rows.Scan(&e.TxID, &e.EventName, &payload, &e.BlockNumber, &e.ReceivedAt); err != nil {
			continue
		}
		e.Payload = string(payload)
		out = append(out, e)
	}
	api.WriteSuccess(w, http.StatusOK, out)
}

func main() {
	cfg := common.LoadConfig()
	logger, err := common.NewLogger("indexer-service")
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
		migrationsDir = "backend/migrations/indexer"
	}
	if err := migrations.RunMigrations(database, migrationsDir, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	fabric, err := fabricclient.NewClient(
		cfg.FabricConfig, cfg.Channel, cfg.Chaincode, cfg.MSP, cfg.CertPath, cfg.KeyPath)
	if err != nil {
		logger.Fatal("Fabric connection failed", zap.Error(err))
	}
	defer fabric.Close()

	svc := &Service{fabric: fabric, db: database, logger: logger}

	events, cancel, err := fabric.RegisterChaincodeEventListener(".*")
	if err != nil {
		logger.Fatal("Failed to register event listener", zap.Error(err))
	}
	defer cancel()
	go svc.consume(events)

	r := mux.NewRouter()
	r.HandleFunc("/indexer/events", svc.ListEventsHandler).Methods("GET")

	go func() {
		logger.Info("Indexer Service running", zap.String("port", cfg.Port))
		if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
			logger.Fatal("Server stopped", zap.Error(err))
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info("Shutting down")
}
