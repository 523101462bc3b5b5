// Package api exposes the engine's read surface, signed mutation
// endpoints, and the WebSocket event stream.
package api

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/crypto"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/engine"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/fhe"
)

// Server authenticates mutating requests by recovering the caller address
// from the request signature; authorization stays in the engine.
type Server struct {
	eng    *engine.Engine
	eval   fhe.Evaluator
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(eng *engine.Engine, eval fhe.Evaluator, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		eng:    eng,
		eval:   eval,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Read surface
	api.HandleFunc("/batch", s.handleGetBatch).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/decryptions/{requestId}", s.handleGetContext).Methods("GET")
	api.HandleFunc("/access", s.handleGetAccess).Methods("GET")
	api.HandleFunc("/chain/status", s.handleGetStatus).Methods("GET")

	// Signed mutations
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/admin", s.handleAdmin).Methods("POST")

	// WebSocket event stream
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the HTTP server. PublishEvent must already be wired.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ServeHTTP lets the server be mounted as a plain handler, without the
// CORS wrapper Start applies.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// PublishEvent forwards an engine notification to WebSocket subscribers.
// Wire it as the engine's OnEvent hook.
func (s *Server) PublishEvent(ev engine.Event) {
	s.hub.BroadcastToChannel(ev.Name(), WSEvent{Channel: ev.Name(), Data: ev})
	s.hub.BroadcastToChannel("events", WSEvent{Channel: ev.Name(), Data: ev})
}

// ==============================
// Mutations
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	msg := OrderSigningMessage(req.AssetID, req.Amount, req.Price, req.Expiry, req.IsAsk, req.Nonce)
	caller, err := crypto.RecoverMessageAddress(msg, req.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "signature recovery failed: "+err.Error())
		return
	}

	var p engine.OrderParams
	if p.AssetID, err = s.eval.Deserialize(req.AssetID); err != nil {
		writeError(w, http.StatusBadRequest, "assetId: "+err.Error())
		return
	}
	if p.Amount, err = s.eval.Deserialize(req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, "amount: "+err.Error())
		return
	}
	if p.Price, err = s.eval.Deserialize(req.Price); err != nil {
		writeError(w, http.StatusBadRequest, "price: "+err.Error())
		return
	}
	if p.Expiry, err = s.eval.Deserialize(req.Expiry); err != nil {
		writeError(w, http.StatusBadRequest, "expiry: "+err.Error())
		return
	}
	if p.AssetID == nil || p.Amount == nil || p.Price == nil {
		writeError(w, http.StatusBadRequest, "assetId, amount, and price are required")
		return
	}
	p.IsAsk = req.IsAsk

	id, err := s.eng.SubmitOrder(caller, p)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitOrderResponse{OrderID: id, BatchID: s.eng.CurrentBatch().ID})
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	var req AdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	args, err := adminArgs(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg := AdminSigningMessage(req.Action, req.Nonce, args...)
	caller, err := crypto.RecoverMessageAddress(msg, req.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "signature recovery failed: "+err.Error())
		return
	}

	resp := AdminResponse{OK: true}
	switch req.Action {
	case "open_batch":
		resp.BatchID, err = s.eng.OpenBatch(caller)
	case "close_batch":
		resp.BatchID, err = s.eng.CloseBatch(caller)
	case "add_provider":
		err = s.eng.AddProvider(caller, *req.Address)
	case "remove_provider":
		err = s.eng.RemoveProvider(caller, *req.Address)
	case "transfer_ownership":
		err = s.eng.TransferOwnership(caller, *req.Address)
	case "set_paused":
		err = s.eng.SetPaused(caller, *req.Paused)
	case "set_cooldown":
		err = s.eng.SetCooldown(caller, time.Duration(*req.CooldownMs)*time.Millisecond)
	case "request_decryption":
		var id engine.RequestID
		id, err = s.eng.RequestAggregateDecryption(caller, *req.BatchID)
		resp.BatchID = *req.BatchID
		resp.RequestID = id[:]
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// adminArgs returns the canonical signing arguments for an action and
// validates that its parameters are present.
func adminArgs(req *AdminRequest) ([][]byte, error) {
	switch req.Action {
	case "open_batch", "close_batch":
		return nil, nil
	case "add_provider", "remove_provider", "transfer_ownership":
		if req.Address == nil {
			return nil, errors.New("address is required for " + req.Action)
		}
		return [][]byte{req.Address.Bytes()}, nil
	case "set_paused":
		if req.Paused == nil {
			return nil, errors.New("paused is required for set_paused")
		}
		b := byte(0)
		if *req.Paused {
			b = 1
		}
		return [][]byte{{b}}, nil
	case "set_cooldown":
		if req.CooldownMs == nil {
			return nil, errors.New("cooldownMs is required for set_cooldown")
		}
		return [][]byte{uint64Bytes(*req.CooldownMs)}, nil
	case "request_decryption":
		if req.BatchID == nil {
			return nil, errors.New("batchId is required for request_decryption")
		}
		return [][]byte{uint64Bytes(*req.BatchID)}, nil
	default:
		return nil, errors.New("unknown action: " + req.Action)
	}
}

// ==============================
// Reads
// ==============================

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b := s.eng.CurrentBatch()
	writeJSON(w, http.StatusOK, BatchInfo{ID: b.ID, Open: b.Open})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := s.eng.Order(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	info := OrderInfo{ID: o.ID, Submitter: o.Submitter, IsAsk: o.IsAsk}
	if info.AssetID, err = cipherHex(o.AssetID); err == nil {
		if info.Amount, err = cipherHex(o.Amount); err == nil {
			if info.Price, err = cipherHex(o.Price); err == nil {
				info.Expiry, err = cipherHex(o.Expiry)
			}
		}
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "serialize order: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["requestId"]
	if len(raw) >= 2 && raw[:2] == "0x" {
		raw = raw[2:]
	}
	var id engine.RequestID
	if len(raw) != 64 {
		writeError(w, http.StatusBadRequest, "request id must be 32 bytes hex")
		return
	}
	for i := 0; i < 32; i++ {
		v, err := strconv.ParseUint(raw[2*i:2*i+2], 16, 8)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request id hex")
			return
		}
		id[i] = byte(v)
	}
	ctx, ok := s.eng.Context(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown decryption request")
		return
	}
	writeJSON(w, http.StatusOK, ContextInfo{
		RequestID: id[:],
		BatchID:   ctx.BatchID,
		StateHash: ctx.StateHash[:],
		Processed: ctx.Processed,
	})
}

func (s *Server) handleGetAccess(w http.ResponseWriter, r *http.Request) {
	a := s.eng.AccessState()
	writeJSON(w, http.StatusOK, AccessInfo{
		Owner:      a.Owner,
		Paused:     a.Paused,
		CooldownMs: a.Cooldown.Milliseconds(),
		Providers:  a.Providers,
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	b := s.eng.CurrentBatch()
	writeJSON(w, http.StatusOK, StatusInfo{
		Height:     s.eng.Height(),
		OrderCount: s.eng.OrderCount(),
		BatchID:    b.ID,
		BatchOpen:  b.Open,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// helpers
// ==============================

func cipherHex(ct fhe.Ciphertext) ([]byte, error) {
	if ct == nil || !ct.Initialized() {
		return nil, nil
	}
	return ct.Bytes()
}

func uint64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotOwner), errors.Is(err, engine.ErrNotProvider):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrPaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrCooldownActive):
		status = http.StatusTooManyRequests
	case errors.Is(err, engine.ErrOrderNotFound), errors.Is(err, engine.ErrUnknownRequest):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrBatchOpen), errors.Is(err, engine.ErrBatchNotOpen),
		errors.Is(err, engine.ErrInvalidBatchID), errors.Is(err, engine.ErrProviderExists),
		errors.Is(err, engine.ErrProviderMissing), errors.Is(err, engine.ErrPauseUnchanged),
		errors.Is(err, engine.ErrReplayAttempt), errors.Is(err, engine.ErrStateMismatch),
		errors.Is(err, engine.ErrEmptyAggregate):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrInvalidProof):
		status = http.StatusBadRequest
	}
	writeError(w, status, err.Error())
}
