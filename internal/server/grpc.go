package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"DexSettle/internal/ingestion"
	"DexSettle/internal/observability"
	"DexSettle/internal/persistence"
	"DexSettle/internal/projection"
	"DexSettle/internal/query"
)

// APIServer runs the gRPC endpoint (health, reflection) and the HTTP/JSON
// API for queries and admin injection.
type APIServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	healthChecker *observability.HealthChecker
	deps          *ServerDeps
}

// ServerDeps holds all dependencies needed by the API handlers.
type ServerDeps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	IngestService *ingestion.GRPCIngestService
	SnapshotMgr   *persistence.SnapshotManager
	TradeHistory  *projection.TradeHistoryProjection
	StartTime     time.Time
	HealthChecker *observability.HealthChecker
}

// NewAPIServer creates the gRPC server and prepares the HTTP mux.
func NewAPIServer(grpcAddr, httpAddr string, deps *ServerDeps) *APIServer {
	grpcServer := grpc.NewServer()

	// Health check
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &APIServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		healthChecker: deps.HealthChecker,
		deps:          deps,
	}
}

// StartGRPC starts the gRPC server (blocking).
func (s *APIServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: gRPC server shutting down...")
		s.grpcServer.GracefulStop()
	}()

	log.Printf("INFO: gRPC server listening on %s", s.grpcAddr)
	return s.grpcServer.Serve(lis)
}

// StartHTTP starts the HTTP/JSON API (blocking). Query and admin
// endpoints are served from the gateway mux; probes sit beside it.
func (s *APIServer) StartHTTP(ctx context.Context) error {
	mux := runtime.NewServeMux()

	if err := s.registerRoutes(mux); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: httpMux,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP API listening on %s", s.httpAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) registerRoutes(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/balances/{wallet}", s.handleGetBalances},
		{"GET", "/v1/balances/{wallet}/{asset}", s.handleGetBalance},
		{"GET", "/v1/pools", s.handleGetPools},
		{"GET", "/v1/trades/{market}", s.handleGetTrades},
		{"GET", "/v1/settlements", s.handleGetSettlements},
		{"GET", "/v1/journals/{wallet}", s.handleGetJournals},
		{"GET", "/v1/admin/integrity", s.handleVerifyIntegrity},
		{"POST", "/v1/admin/projections/rebuild", s.handleRebuildProjections},
		{"POST", "/v1/admin/deposits", s.handleInjectDeposit},
		{"POST", "/v1/admin/withdrawals", s.handleInjectWithdrawal},
		{"POST", "/v1/admin/assets/register", s.handleInjectAssetRegistration},
		{"POST", "/v1/admin/assets/confirm", s.handleInjectAssetConfirmation},
		{"POST", "/v1/admin/pools/promote", s.handleInjectPoolPromotion},
		{"POST", "/v1/admin/blocks", s.handleInjectBlockHeight},
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("%s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

// --- Query handlers ---

func (s *APIServer) handleGetBalances(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	wallet, ok := parseAddressParam(w, pathParams, "wallet")
	if !ok {
		return
	}

	entries, err := s.deps.QueryService.GetBalances(r.Context(), wallet)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"balances": entries})
}

func (s *APIServer) handleGetBalance(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	wallet, ok := parseAddressParam(w, pathParams, "wallet")
	if !ok {
		return
	}
	asset, ok := parseAddressParam(w, pathParams, "asset")
	if !ok {
		return
	}

	entry, err := s.deps.QueryService.GetBalance(r.Context(), wallet, asset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, entry)
}

func (s *APIServer) handleGetPools(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	pools, err := s.deps.QueryService.GetPools(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"pools": pools})
}

func (s *APIServer) handleGetTrades(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	market := pathParams["market"]
	if market == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("market is required"))
		return
	}
	if s.deps.TradeHistory == nil {
		writeJSON(w, map[string]interface{}{"trades": []struct{}{}})
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), 100, 1000)
	writeJSON(w, map[string]interface{}{"trades": s.deps.TradeHistory.QueryByMarket(market, limit)})
}

func (s *APIServer) handleGetSettlements(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	q := r.URL.Query()

	var market *string
	if m := q.Get("market"); m != "" {
		market = &m
	}

	limit := parseLimit(q.Get("limit"), 100, 500)

	var before *int64
	if b := q.Get("before"); b != "" {
		v, err := strconv.ParseInt(b, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid before cursor: %q", b))
			return
		}
		before = &v
	}

	settlements, err := s.deps.QueryService.GetSettlements(r.Context(), market, limit, before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"settlements": settlements})
}

func (s *APIServer) handleGetJournals(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	wallet, ok := parseAddressParam(w, pathParams, "wallet")
	if !ok {
		return
	}

	q := r.URL.Query()
	limit := parseLimit(q.Get("limit"), 100, 500)

	var before *int64
	if b := q.Get("before"); b != "" {
		v, err := strconv.ParseInt(b, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid before cursor: %q", b))
			return
		}
		before = &v
	}

	entries, err := s.deps.QueryService.GetJournalHistory(r.Context(), wallet, limit, before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"journals": entries})
}

// --- Admin handlers ---

func (s *APIServer) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	report, err := s.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, report)
}

func (s *APIServer) handleRebuildProjections(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	if err := projection.RebuildProjections(r.Context(), s.deps.DB); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"rebuilt": true})
}

type fundsRequest struct {
	Wallet   string `json:"wallet"`
	Asset    string `json:"asset"`
	Quantity int64  `json:"quantity"`
}

func (s *APIServer) handleInjectDeposit(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req fundsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wallet, asset, ok := parseFundsAddresses(w, req)
	if !ok {
		return
	}

	if err := s.deps.IngestService.InjectDeposit(r.Context(), wallet, asset, req.Quantity); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, map[string]interface{}{"accepted": true})
}

func (s *APIServer) handleInjectWithdrawal(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req fundsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wallet, asset, ok := parseFundsAddresses(w, req)
	if !ok {
		return
	}

	if err := s.deps.IngestService.InjectWithdrawal(r.Context(), wallet, asset, req.Quantity); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, map[string]interface{}{"accepted": true})
}

type assetRequest struct {
	Asset    string `json:"asset"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

func (s *APIServer) handleInjectAssetRegistration(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req assetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.Asset) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid asset address: %q", req.Asset))
		return
	}

	err := s.deps.IngestService.InjectAssetRegistration(r.Context(), common.HexToAddress(req.Asset), req.Symbol, req.Decimals)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, map[string]interface{}{"accepted": true})
}

func (s *APIServer) handleInjectAssetConfirmation(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req assetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.Asset) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid asset address: %q", req.Asset))
		return
	}

	err := s.deps.IngestService.InjectAssetConfirmation(r.Context(), common.HexToAddress(req.Asset), req.Symbol, req.Decimals)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, map[string]interface{}{"accepted": true})
}

type poolPromotionRequest struct {
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
	PairToken  string `json:"pair_token"`
}

func (s *APIServer) handleInjectPoolPromotion(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req poolPromotionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	for name, v := range map[string]string{"base_asset": req.BaseAsset, "quote_asset": req.QuoteAsset, "pair_token": req.PairToken} {
		if !common.IsHexAddress(v) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s: %q", name, v))
			return
		}
	}

	err := s.deps.IngestService.InjectPoolPromotion(
		r.Context(),
		common.HexToAddress(req.BaseAsset),
		common.HexToAddress(req.QuoteAsset),
		common.HexToAddress(req.PairToken),
	)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, map[string]interface{}{"accepted": true})
}

type blockHeightRequest struct {
	Height int64 `json:"height"`
}

func (s *APIServer) handleInjectBlockHeight(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req blockHeightRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.deps.IngestService.InjectBlockHeight(r.Context(), req.Height); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, map[string]interface{}{"accepted": true})
}

// --- helpers ---

func parseAddressParam(w http.ResponseWriter, pathParams map[string]string, name string) (common.Address, bool) {
	raw := pathParams[name]
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s address: %q", name, raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseFundsAddresses(w http.ResponseWriter, req fundsRequest) (common.Address, common.Address, bool) {
	if !common.IsHexAddress(req.Wallet) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid wallet address: %q", req.Wallet))
		return common.Address{}, common.Address{}, false
	}
	if !common.IsHexAddress(req.Asset) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid asset address: %q", req.Asset))
		return common.Address{}, common.Address{}, false
	}
	return common.HexToAddress(req.Wallet), common.HexToAddress(req.Asset), true
}

func parseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > max {
		return def
	}
	return v
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
