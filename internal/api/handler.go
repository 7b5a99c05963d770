package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudeshabasnet/MediTrack-sub001/domain"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/order"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/stock"
)

type ctxKey string

const (
	ctxUserID ctxKey = "userID"
	ctxRole   ctxKey = "role"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db       *sqlx.DB
	secret   string
	orders   *order.Service
	ledger   *stock.Ledger
	validate *validator.Validate
}

// New constructs a Handler.
func New(db *sqlx.DB, secret string, orders *order.Service, ledger *stock.Ledger) *Handler {
	return &Handler{
		db:       db,
		secret:   secret,
		orders:   orders,
		ledger:   ledger,
		validate: validator.New(),
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/medicines", func(r chi.Router) {
			r.Post("/", h.createMedicine)
			r.Get("/", h.searchMedicines)
			r.Get("/{id}/stock", h.stockStatus)
			r.Post("/{id}/restock", h.restock)
			r.Get("/alerts/low-stock", h.lowStockAlerts)
		})

		pr.Route("/orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Get("/", h.listOrders)
			r.Get("/{id}", h.getOrder)
			r.Get("/{id}/status", h.orderStatus)
			r.Post("/{id}/status", h.transitionOrder)
		})

		pr.Route("/reports", func(r chi.Router) {
			r.Get("/orders/daily", h.dailyOrders)
			r.Get("/orders/monthly", h.monthlyOrders)
			r.Get("/orders", h.ordersReport)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers

type authClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64, role string) (string, error) {
	claims := authClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role := r.Context().Value(ctxRole)
	if role == nil {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	current := role.(string)
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

func (h *Handler) actor(r *http.Request) order.Actor {
	return order.Actor{
		UserID: r.Context().Value(ctxUserID).(int64),
		Role:   r.Context().Value(ctxRole).(string),
	}
}

// Auth Handlers

type registerRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=admin supplier customer"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.bind(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}

	var userID int64
	err = h.db.QueryRowx(`INSERT INTO users (username, email, password, role) VALUES (?, ?, ?, ?) RETURNING id`,
		req.Username, strings.ToLower(req.Email), hashed, req.Role).Scan(&userID)
	if err != nil {
		respondError(w, http.StatusConflict, "email already exists")
		return
	}

	token, err := h.generateToken(userID, req.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{
		Token: token,
		User:  domain.User{ID: userID, Username: req.Username, Email: strings.ToLower(req.Email), Role: req.Role},
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.bind(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user domain.User
	err := h.db.Get(&user, `SELECT id, username, email, password, role FROM users WHERE email = ?`, strings.ToLower(req.Email))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.generateToken(user.ID, user.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	user.Password = ""
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewPassword string `json:"new_password" validate:"required,min=6"`
	}
	if err := h.bind(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	uid := r.Context().Value(ctxUserID).(int64)
	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}
	if _, err := h.db.Exec(`UPDATE users SET password = ? WHERE id = ?`, hashed, uid); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// Medicine handlers

type medicineRequest struct {
	Name          string  `json:"name" validate:"required"`
	GenericName   string  `json:"generic_name"`
	Manufacturer  string  `json:"manufacturer"`
	UnitPrice     float64 `json:"unit_price" validate:"required,gt=0"`
	Stock         int64   `json:"stock" validate:"gte=0"`
	MinStockLevel int64   `json:"min_stock_level" validate:"gte=0"`
}

func (h *Handler) createMedicine(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	var req medicineRequest
	if err := h.bind(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := domain.StockStatusFor(req.Stock, req.MinStockLevel)
	var id int64
	err := h.db.QueryRowx(`INSERT INTO medicines (name, generic_name, manufacturer, unit_price, stock, min_stock_level, stock_status) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		req.Name, req.GenericName, req.Manufacturer, req.UnitPrice, req.Stock, req.MinStockLevel, status).Scan(&id)
	if err != nil {
		respondError(w, http.StatusConflict, "medicine already exists")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "name": req.Name, "stock_status": status})
}

func (h *Handler) searchMedicines(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	var medicines []domain.Medicine
	if query == "" {
		h.db.Select(&medicines, `SELECT id, name, generic_name, manufacturer, unit_price, stock, min_stock_level, stock_status, created_at, updated_at FROM medicines ORDER BY name LIMIT 25`)
	} else {
		like := "%" + query + "%"
		h.db.Select(&medicines, `SELECT id, name, generic_name, manufacturer, unit_price, stock, min_stock_level, stock_status, created_at, updated_at FROM medicines WHERE name LIKE ? OR generic_name LIKE ? ORDER BY name LIMIT 25`, like, like)
	}
	respondJSON(w, http.StatusOK, medicines)
}

func (h *Handler) stockStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid medicine id")
		return
	}
	level, err := h.ledger.Level(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, level)
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleSupplier) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid medicine id")
		return
	}
	var payload struct {
		Quantity int64 `json:"quantity" validate:"required,gt=0"`
	}
	if err := h.bind(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.ledger.Restore(r.Context(), id, payload.Quantity); err != nil {
		h.respondServiceError(w, err)
		return
	}
	level, err := h.ledger.Level(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, level)
}

func (h *Handler) lowStockAlerts(w http.ResponseWriter, r *http.Request) {
	medicines, err := h.ledger.Alerts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch alerts")
		return
	}
	respondJSON(w, http.StatusOK, medicines)
}

// Order handlers

type orderItemRequest struct {
	MedicineID int64 `json:"medicine_id" validate:"required,gt=0"`
	Quantity   int64 `json:"quantity" validate:"required,gt=0"`
}

type orderRequest struct {
	Items []orderItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := h.bind(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	items := make([]order.LineInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, order.LineInput{MedicineID: item.MedicineID, Quantity: item.Quantity})
	}
	customerID := r.Context().Value(ctxUserID).(int64)
	created, err := h.orders.Create(r.Context(), customerID, items)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleSupplier) {
		return
	}
	orders, err := h.orders.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list orders")
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handler) orderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	status, err := h.orders.CurrentStatus(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason"`
}

func (h *Handler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req transitionRequest
	if err := h.bind(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	receipt, err := h.orders.Transition(r.Context(), id, req.Status, h.actor(r), req.Reason)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

// Reports

func (h *Handler) dailyOrders(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleSupplier) {
		return
	}
	var revenue float64
	var count int64
	err := h.db.QueryRow(`SELECT COALESCE(SUM(total_amount), 0), COUNT(*) FROM orders WHERE DATE(created_at) = DATE('now') AND status != ?`, domain.OrderCancelled).Scan(&revenue, &count)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch daily orders")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"revenue": revenue, "order_count": count})
}

func (h *Handler) monthlyOrders(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleSupplier) {
		return
	}
	var revenue float64
	var count int64
	err := h.db.QueryRow(`SELECT COALESCE(SUM(total_amount), 0), COUNT(*) FROM orders WHERE strftime('%Y-%m', created_at) = strftime('%Y-%m', 'now') AND status != ?`, domain.OrderCancelled).Scan(&revenue, &count)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch monthly orders")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"revenue": revenue, "order_count": count})
}

type orderReportEntry struct {
	domain.Order
	Items []domain.OrderItem `json:"items"`
}

func (h *Handler) ordersReport(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}

	var (
		args    []any
		clauses []string
	)

	statusFilter := strings.TrimSpace(r.URL.Query().Get("status"))
	if statusFilter != "" {
		status, ok := domain.ParseOrderStatus(statusFilter)
		if !ok {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", statusFilter))
			return
		}
		args = append(args, status)
		clauses = append(clauses, "status = ?")
	}

	startDate := strings.TrimSpace(r.URL.Query().Get("start_date"))
	if startDate != "" {
		if _, err := time.Parse("2006-01-02", startDate); err != nil {
			respondError(w, http.StatusBadRequest, "start_date must be in YYYY-MM-DD format")
			return
		}
		args = append(args, startDate)
		clauses = append(clauses, "DATE(created_at) >= ?")
	}

	endDate := strings.TrimSpace(r.URL.Query().Get("end_date"))
	if endDate != "" {
		if _, err := time.Parse("2006-01-02", endDate); err != nil {
			respondError(w, http.StatusBadRequest, "end_date must be in YYYY-MM-DD format")
			return
		}
		args = append(args, endDate)
		clauses = append(clauses, "DATE(created_at) <= ?")
	}

	query := `SELECT id, customer_id, status, total_amount, cancellation_reason, cancelled_at, created_at, updated_at FROM orders`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	var orders []domain.Order
	if err := h.db.Select(&orders, query, args...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch orders report")
		return
	}
	if len(orders) == 0 {
		respondJSON(w, http.StatusOK, []orderReportEntry{})
		return
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	itemsQuery, itemsArgs, err := sqlx.In(`SELECT id, order_id, medicine_id, quantity, unit_price, subtotal FROM order_items WHERE order_id IN (?)`, ids)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to prepare order items query")
		return
	}
	itemsQuery = h.db.Rebind(itemsQuery)

	var rows []domain.OrderItem
	if err := h.db.Select(&rows, itemsQuery, itemsArgs...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load order items")
		return
	}
	itemsByOrder := make(map[int64][]domain.OrderItem)
	for _, row := range rows {
		itemsByOrder[row.OrderID] = append(itemsByOrder[row.OrderID], row)
	}

	report := make([]orderReportEntry, len(orders))
	for i, o := range orders {
		report[i] = orderReportEntry{Order: o, Items: itemsByOrder[o.ID]}
	}

	respondJSON(w, http.StatusOK, report)
}

// Helpers

func (h *Handler) bind(r *http.Request, dest interface{}) error {
	if err := decodeJSON(r, dest); err != nil {
		return err
	}
	if err := h.validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("field %s failed validation on %s", first.Field(), first.Tag())
		}
		return err
	}
	return nil
}

// respondServiceError maps the core error taxonomy onto HTTP statuses,
// keeping each specific message visible to the caller.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, stock.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrOrderLocked):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrInvalidInput),
		errors.Is(err, stock.ErrInsufficientStock),
		errors.Is(err, stock.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
