package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"agrichain/internal/txqueue"
	"agrichain/pkg/certification"
	"agrichain/pkg/contract"
	"agrichain/pkg/farm"
	"agrichain/pkg/ledger"
	"agrichain/pkg/logistics"
	"agrichain/pkg/metrics"
	"agrichain/pkg/quality"
	"agrichain/pkg/storage"
	"agrichain/pkg/version"
)

// SenderHeader carries the principal a mutation is executed as.
const SenderHeader = "X-Principal"

// requestTimeout bounds every API call, queue wait included.
const requestTimeout = 5 * time.Second

// maxBodyBytes bounds request bodies; the largest payload is a test record with 500 characters of notes.
const maxBodyBytes = 16 << 10

// ErrBadRequest is returned for bodies that are not valid JSON.
var ErrBadRequest = ledger.NewError(ledger.KindValidation, 7, "invalid JSON body")

// Server wires HTTP endpoints to the contract services.
type Server struct {
	farms     *farm.Service
	certs     *certification.Service
	quality   *quality.Service
	logistics *logistics.Service
	registry  *contract.Registry
	clock     ledger.Clock
	gov       ledger.Governance
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// New keeps construction cheap; the router is built by Handler.
func New(services contract.Services, registry *contract.Registry, clock ledger.Clock, gov ledger.Governance, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	if registry == nil {
		registry = contract.New(services)
	}
	return &Server{
		farms:     services.Farms,
		certs:     services.Certifications,
		quality:   services.Quality,
		logistics: services.Logistics,
		registry:  registry,
		clock:     clock,
		gov:       gov,
		metrics:   m,
		logger:    logger.With(zap.String("component", "httpapi")),
	}
}

// Handler exposes the JSON API, health and metrics endpoints.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.observe)

	r.Handle("/healthz", http.HandlerFunc(s.health)).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(withTimeout)

	api.HandleFunc("/chain", s.chain).Methods(http.MethodGet)
	api.HandleFunc("/contracts/{contract}/{function}", s.invoke).Methods(http.MethodPost)

	api.HandleFunc("/farms", s.registerFarm).Methods(http.MethodPost)
	api.HandleFunc("/farms", s.listFarms).Methods(http.MethodGet)
	api.HandleFunc("/farms/{id}", s.getFarm).Methods(http.MethodGet)
	api.HandleFunc("/farms/{id}/verify", s.verifyFarm).Methods(http.MethodPost)
	api.HandleFunc("/farms/{id}/suspend", s.suspendFarm).Methods(http.MethodPost)
	api.HandleFunc("/farms/{id}/certifications", s.listFarmCertifications).Methods(http.MethodGet)

	api.HandleFunc("/certifications", s.issueCertification).Methods(http.MethodPost)
	api.HandleFunc("/certifications/{id}", s.getCertification).Methods(http.MethodGet)
	api.HandleFunc("/certifications/{id}/valid", s.certificationValid).Methods(http.MethodGet)
	api.HandleFunc("/certifications/{id}/revoke", s.revokeCertification).Methods(http.MethodPost)

	api.HandleFunc("/certifiers", s.addCertifier).Methods(http.MethodPost)
	api.HandleFunc("/certifiers", s.listCertifiers).Methods(http.MethodGet)
	api.HandleFunc("/certifiers/{principal}", s.removeCertifier).Methods(http.MethodDelete)

	api.HandleFunc("/testers", s.addTester).Methods(http.MethodPost)
	api.HandleFunc("/testers", s.listTesters).Methods(http.MethodGet)
	api.HandleFunc("/testers/{principal}", s.removeTester).Methods(http.MethodDelete)

	api.HandleFunc("/tests", s.recordTest).Methods(http.MethodPost)
	api.HandleFunc("/tests/{id}", s.getTest).Methods(http.MethodGet)

	api.HandleFunc("/shipments", s.createShipment).Methods(http.MethodPost)
	api.HandleFunc("/shipments/{id}", s.getShipment).Methods(http.MethodGet)
	api.HandleFunc("/shipments/{id}/status", s.updateShipmentStatus).Methods(http.MethodPut)
	api.HandleFunc("/shipments/{id}/history", s.shipmentHistory).Methods(http.MethodGet)
	api.HandleFunc("/shipments/{id}/tests", s.shipmentTests).Methods(http.MethodGet)
	api.HandleFunc("/shipments/{id}/passed-all-tests", s.shipmentPassed).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.respondError(w, ledger.NewError(ledger.KindNotFound, 0, "no such endpoint"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{Message: "method not allowed"}})
	})
	return r
}

// statusRecorder remembers the status code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// observe logs and measures every request by its route template.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(route, r.Method, rec.status, elapsed)
		s.logger.Debug("request served",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.String("sender", r.Header.Get(SenderHeader)),
			zap.Duration("elapsed", elapsed))
	})
}

func withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version()})
}

func (s *Server) chain(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"block-height":   s.clock.Height(),
		"contract-owner": s.gov.Owner,
	})
}

// invoke is the generic positional call used by the CLI and scripted clients.
func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Args []json.RawMessage `json:"args"`
	}
	if !s.decode(w, r, &payload) {
		return
	}
	tx, ok := s.tx(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	res, err := s.registry.Invoke(r.Context(), tx, vars["contract"], vars["function"], payload.Args)
	if err != nil {
		s.fail(w, "contract call failed", err, zap.String("contract", vars["contract"]), zap.String("function", vars["function"]))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// tx builds the transaction context from the sender header. A missing header
// yields an anonymous transaction, which every mutation rejects.
func (s *Server) tx(w http.ResponseWriter, r *http.Request) (ledger.Tx, bool) {
	raw := strings.TrimSpace(r.Header.Get(SenderHeader))
	if raw == "" {
		return ledger.NewTx(""), true
	}
	sender, err := ledger.ParsePrincipal(raw)
	if err != nil {
		s.respondError(w, err)
		return ledger.Tx{}, false
	}
	return ledger.NewTx(sender), true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		s.logger.Info("rejected request body", zap.String("path", r.URL.Path), zap.Error(err))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: errorDetail{
				Code:    ErrBadRequest.Code,
				Message: "request body too large",
			}})
			return false
		}
		s.respondError(w, ErrBadRequest)
		return false
	}
	return true
}

// fail logs err at a level matching its kind and writes the error body.
func (s *Server) fail(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if StatusFor(err) >= http.StatusInternalServerError {
		s.logger.Error(msg, fields...)
	} else {
		s.logger.Info(msg, fields...)
	}
	s.respondError(w, err)
}

type errorDetail struct {
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

// StatusFor maps a contract error kind onto an HTTP status.
func StatusFor(err error) int {
	switch ledger.KindOf(err) {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindUnauthorized:
		return http.StatusForbidden
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindConflict, ledger.KindInvalidState:
		return http.StatusConflict
	}
	switch {
	case errors.Is(err, storage.ErrInvalidKeyPart):
		return http.StatusBadRequest
	case errors.Is(err, txqueue.ErrBusy), errors.Is(err, txqueue.ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondError keeps JSON formatting consistent across endpoints.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	detail := errorDetail{Code: ledger.CodeOf(err), Message: err.Error()}
	var le *ledger.Error
	if errors.As(err, &le) {
		detail.Message = le.Message
	}
	writeJSON(w, StatusFor(err), errorBody{Success: false, Error: detail})
}

func respondValue(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, contract.Result{Success: true, Value: v})
}

func respondWritten(w http.ResponseWriter, status int, tx ledger.Tx) {
	writeJSON(w, status, contract.Result{Success: true, Value: true, TxID: tx.TxID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
