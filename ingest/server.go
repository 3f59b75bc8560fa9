// Package ingest implements the HTTP ingest server: the external boundary
// that funnels single transactions into the assembly engine's push
// channel.
package ingest

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/init4tech/zenith-builder/codec"
	"github.com/init4tech/zenith-builder/log"
)

// Server is the HTTP boundary accepting transactions from outside the
// process and pushing them onto the assembler's push channel.
type Server struct {
	router *chi.Mux
	queue  *txQueue
}

// New constructs a Server wired to push accepted transactions onto
// pushChan, in arrival order, via an internal unbounded queue. It does not
// start listening; call ListenAndServe.
func New(pushChan chan<- *codec.Transaction) *Server {
	s := &Server{queue: newTxQueue()}
	s.initRouter()
	go s.queue.drain(pushChan)
	return s
}

// txQueue is an unbounded, order-preserving FIFO of accepted transactions
// sitting between the HTTP handlers and the (possibly full) push channel.
// HTTP handlers never block on a saturated pushChan and never spawn a
// goroutine per send — both of which would let concurrent requests race
// for the channel and reorder transactions relative to their arrival.
type txQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []*codec.Transaction
}

func newTxQueue() *txQueue {
	q := &txQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *txQueue) push(tx *codec.Transaction) {
	q.mu.Lock()
	q.items = append(q.items, tx)
	q.mu.Unlock()
	q.cond.Signal()
}

// drain is the queue's single consumer: it forwards items to out strictly
// in push order, blocking on out when the downstream channel is full
// rather than ever dropping or reordering a transaction.
func (q *txQueue) drain(out chan<- *codec.Transaction) {
	for {
		q.mu.Lock()
		for len(q.items) == 0 {
			q.cond.Wait()
		}
		tx := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		out <- tx
	}
}

// Router returns the chi router, for testing with httptest.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe starts the HTTP server on addr and blocks until it
// returns an error (including on graceful shutdown via the supervisor).
func (s *Server) ListenAndServe(addr string) error {
	log.Infow("starting ingest server", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) initRouter() {
	s.router = chi.NewRouter()
	s.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Throttle(100))
	s.router.Use(middleware.Timeout(45 * time.Second))

	s.router.Get("/healthcheck", s.healthcheck)
	s.router.Post("/sendTransaction", s.sendTransaction)
	s.router.Post("/sendRawTransaction", s.sendRawTransaction)
	s.router.Post("/rpc", s.rpc)
	s.router.NotFound(notFound)
}

func (s *Server) healthcheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// sendTransaction accepts a JSON-body transaction envelope in the
// eth_getTransactionByHash shape.
func (s *Server) sendTransaction(w http.ResponseWriter, r *http.Request) {
	var gethTx types.Transaction
	if err := json.NewDecoder(r.Body).Decode(&gethTx); err != nil {
		writeDecodeError(w, err)
		return
	}
	tx, err := codec.NewTransaction(&gethTx)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	s.accept(w, tx)
}

// sendRawTransaction accepts a JSON string body holding the hex-encoded
// envelope (with or without a 0x prefix).
func (s *Server) sendRawTransaction(w http.ResponseWriter, r *http.Request) {
	var hexBody string
	if err := json.NewDecoder(r.Body).Decode(&hexBody); err != nil {
		writeDecodeError(w, err)
		return
	}
	raw := common.FromHex(hexBody)
	tx, err := codec.DecodeTransaction(raw)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	s.accept(w, tx)
}

// rpcRequest is the minimal JSON-RPC envelope the ingest server accepts:
// only the eth_sendRawTransaction method is meaningful.
type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result string          `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpc implements the eth_sendRawTransaction JSON-RPC shape over the ingest
// endpoint for clients that speak JSON-RPC rather than the bespoke REST
// shape.
func (s *Server) rpc(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Method != "eth_sendRawTransaction" || len(req.Params) != 1 {
		writeRPCError(w, req.ID, -32601, "method not supported")
		return
	}
	var hexBody string
	if err := json.Unmarshal(req.Params[0], &hexBody); err != nil {
		writeRPCError(w, req.ID, -32602, "invalid params")
		return
	}
	raw := common.FromHex(hexBody)
	tx, err := codec.DecodeTransaction(raw)
	if err != nil {
		writeRPCError(w, req.ID, -32602, "invalid transaction: "+err.Error())
		return
	}

	s.queue.push(tx)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: tx.Hash().Hex()})
}

// accept enqueues tx for delivery to the push channel in arrival order
// (see txQueue) and responds immediately; it never blocks on a saturated
// downstream consumer and never reorders concurrently accepted requests.
func (s *Server) accept(w http.ResponseWriter, tx *codec.Transaction) {
	s.queue.push(tx)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"hash": tx.Hash().Hex()})
}

func writeDecodeError(w http.ResponseWriter, err error) {
	log.Debugw("ingest decode error", "error", err.Error())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rpcResponse{ID: id, Error: &rpcError{Code: code, Message: message}})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}
