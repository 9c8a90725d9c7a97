package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"fifobook/domain/orderbook"
	"fifobook/infra/codec"
	"fifobook/pkg/logger"
	"fifobook/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	svc        *service.OrderService
	scale      int32
	depthLimit int
}

func NewHandler(svc *service.OrderService, priceScale int32, depthLimit int) *Handler {
	return &Handler{svc: svc, scale: priceScale, depthLimit: depthLimit}
}

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)
	h.SetupRoutes(r)
	return r
}

func (h *Handler) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/api/health", h.healthCheck).Methods(http.MethodGet)
	r.HandleFunc("/api/orders", h.createOrder).Methods(http.MethodPost)
	r.HandleFunc("/api/orders/{id:[0-9]+}", h.getOrder).Methods(http.MethodGet)
	r.HandleFunc("/api/orders/{id:[0-9]+}", h.cancelOrder).Methods(http.MethodDelete)
	r.HandleFunc("/api/depth", h.depth).Methods(http.MethodGet)
}

type orderRequest struct {
	OrderID  uint64 `json:"order_id"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

type matchView struct {
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
	Price       string `json:"price"`
	Quantity    int64  `json:"quantity"`
}

type orderView struct {
	OrderID  uint64 `json:"order_id"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

type levelView struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
	Orders   int    `json:"orders"`
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Err(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "halted", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "seq": h.svc.LastSeq()})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, errors.Join(orderbook.ErrInvalidQuery, err))
		return
	}

	side, err := codec.ParseSide(req.Side)
	if err != nil {
		writeError(w, err)
		return
	}
	price, err := toTicks(req.Price, h.scale)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.svc.Add(r.Context(), orderbook.Add{
		ID:    orderbook.OrderID(req.OrderID),
		Side:  side,
		Price: price,
		Qty:   req.Quantity,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	matches := make([]matchView, len(res.Matches))
	for i, m := range res.Matches {
		matches[i] = matchView{
			BuyOrderID:  uint64(m.BuyID),
			SellOrderID: uint64(m.SellID),
			Price:       fromTicks(m.Price, h.scale),
			Quantity:    m.Qty,
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"seq": res.Seq, "matches": matches})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, errors.Join(orderbook.ErrInvalidQuery, err))
		return
	}
	o, ok := h.svc.Order(orderbook.OrderID(id))
	if !ok {
		writeError(w, orderbook.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, orderView{
		OrderID:  uint64(o.ID),
		Side:     o.Side.String(),
		Price:    fromTicks(o.Price, h.scale),
		Quantity: o.Qty,
	})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, errors.Join(orderbook.ErrInvalidQuery, err))
		return
	}
	res, err := h.svc.Cancel(r.Context(), orderbook.OrderID(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"seq": res.Seq})
}

// depth serves GET /api/depth?side=buy|sell&limit=n; no side returns both.
func (h *Handler) depth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := h.depthLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, errors.Join(orderbook.ErrInvalidQuery, errors.New("limit must be a non-negative integer")))
			return
		}
		if n > 0 && (limit == 0 || n < limit) {
			limit = n
		}
	}

	resp := map[string][]levelView{}
	sides := []orderbook.Side{orderbook.Buy, orderbook.Sell}
	if s := q.Get("side"); s != "" {
		side, err := codec.ParseSide(s)
		if err != nil {
			writeError(w, err)
			return
		}
		sides = []orderbook.Side{side}
	}
	for _, side := range sides {
		key := "bids"
		if side == orderbook.Sell {
			key = "asks"
		}
		lvls := h.svc.Depth(side, limit)
		views := make([]levelView, len(lvls))
		for i, l := range lvls {
			views[i] = levelView{Price: fromTicks(l.Price, h.scale), Quantity: l.Qty, Orders: l.Orders}
		}
		resp[key] = views
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusOf(err error) int {
	var iv *orderbook.InvariantViolation
	switch {
	case errors.Is(err, orderbook.ErrBookHalted), errors.As(err, &iv):
		return http.StatusServiceUnavailable
	case errors.Is(err, orderbook.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, orderbook.ErrDuplicateOrder):
		return http.StatusConflict
	case errors.Is(err, orderbook.ErrInvalidQuery):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		logger.LogError("http", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error(), "code": codec.ErrorCode(err)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Component("http").WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("request")
	})
}
