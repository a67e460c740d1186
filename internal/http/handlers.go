package http

import (
	"net/http"
	"time"

	"github.com/ivstefano/personal-finance-manager/internal/core"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
)

// --- accounts ---

type accountPayload struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	Currency         string  `json:"currency"`
	Balance          string  `json:"balance"`
	AvailableBalance *string `json:"available_balance,omitempty"`
	CreditLimit      *string `json:"credit_limit,omitempty"`
	AvailableCredit  *string `json:"available_credit,omitempty"`
	InterestRate     *float64 `json:"interest_rate,omitempty"`
	Hidden           bool    `json:"hidden"`
	CreatedAt        string  `json:"created_at"`
}

func accountToPayload(a core.Account) accountPayload {
	p := accountPayload{
		ID:           a.ID,
		Name:         a.Name,
		Type:         string(a.Type),
		Currency:     a.Currency,
		Balance:      a.Balance.String(),
		InterestRate: a.InterestRate,
		Hidden:       a.Hidden,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
	}
	if a.AvailableBalance != nil {
		s := a.AvailableBalance.String()
		p.AvailableBalance = &s
	}
	if a.CreditLimit != nil {
		s := a.CreditLimit.String()
		p.CreditLimit = &s
	}
	if available, ok := a.AvailableCredit(); ok {
		s := available.String()
		p.AvailableCredit = &s
	}
	return p
}

type createAccountRequest struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Currency     string   `json:"currency"`
	Balance      string   `json:"balance"`
	CreditLimit  *string  `json:"credit_limit"`
	InterestRate *float64 `json:"interest_rate"`
	Hidden       bool     `json:"hidden"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	accounts, err := s.accounts.ListAccounts(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload := make([]accountPayload, 0, len(accounts))
	for _, a := range accounts {
		payload = append(payload, accountToPayload(a))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := s.accounts.GetAccount(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountToPayload(*a))
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	a := core.Account{
		OwnerID:      owner,
		Name:         req.Name,
		Type:         core.AccountType(req.Type),
		Currency:     req.Currency,
		InterestRate: req.InterestRate,
		Hidden:       req.Hidden,
	}
	if req.Balance != "" {
		balance, err := core.ParseSignedAmount(req.Balance)
		if err != nil {
			writeError(w, r, err)
			return
		}
		a.Balance = balance
	}
	if req.CreditLimit != nil {
		limit, err := core.ParseAmount(*req.CreditLimit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		a.CreditLimit = &limit
	}

	created, err := s.accounts.CreateAccount(r.Context(), a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountToPayload(*created))
}

type updateAccountRequest struct {
	Name         *string  `json:"name"`
	Type         *string  `json:"type"`
	Currency     *string  `json:"currency"`
	Balance      *string  `json:"balance"`
	CreditLimit  *string  `json:"credit_limit"`
	InterestRate *float64 `json:"interest_rate"`
	Hidden       *bool    `json:"hidden"`
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	u := storage.AccountUpdate{
		Name:         req.Name,
		Currency:     req.Currency,
		InterestRate: req.InterestRate,
		Hidden:       req.Hidden,
	}
	if req.Type != nil {
		typ := core.AccountType(*req.Type)
		if !typ.Valid() {
			writeError(w, r, core.ErrInvalidAccountType)
			return
		}
		u.Type = &typ
	}
	if req.Balance != nil {
		balance, err := core.ParseSignedAmount(*req.Balance)
		if err != nil {
			writeError(w, r, err)
			return
		}
		u.Balance = &balance
	}
	if req.CreditLimit != nil {
		limit, err := core.ParseAmount(*req.CreditLimit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		u.CreditLimit = &limit
	}

	updated, err := s.accounts.UpdateAccount(r.Context(), owner, r.PathValue("id"), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountToPayload(*updated))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.accounts.DeactivateAccount(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNetWorth(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	total, err := s.accounts.NetWorth(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"net_worth": total.String()})
}

// --- transactions ---

type transactionPayload struct {
	ID                string   `json:"id"`
	AccountID         string   `json:"account_id"`
	TransferAccountID string   `json:"transfer_account_id,omitempty"`
	CategoryID        string   `json:"category_id,omitempty"`
	Amount            string   `json:"amount"`
	Kind              string   `json:"kind"`
	Description       string   `json:"description"`
	Merchant          string   `json:"merchant,omitempty"`
	Date              string   `json:"date"`
	Pending           bool     `json:"pending"`
	Notes             string   `json:"notes,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	AccountName       string   `json:"account_name,omitempty"`
	CategoryName      string   `json:"category_name,omitempty"`
	CategoryIcon      string   `json:"category_icon,omitempty"`
}

func transactionToPayload(t core.Transaction) transactionPayload {
	return transactionPayload{
		ID:                t.ID,
		AccountID:         t.AccountID,
		TransferAccountID: t.TransferAccountID,
		CategoryID:        t.CategoryID,
		Amount:            t.Amount.String(),
		Kind:              string(t.Kind),
		Description:       t.Description,
		Merchant:          t.Merchant,
		Date:              t.Date.Format("2006-01-02"),
		Pending:           t.Pending,
		Notes:             t.Notes,
		Tags:              t.Tags,
	}
}

func rowToPayload(row storage.TransactionRow) transactionPayload {
	p := transactionToPayload(row.Transaction)
	p.AccountName = row.AccountName
	p.CategoryName = row.CategoryName
	p.CategoryIcon = row.CategoryIcon
	return p
}

type createTransactionRequest struct {
	AccountID         string   `json:"account_id"`
	TransferAccountID string   `json:"transfer_account_id"`
	CategoryID        string   `json:"category_id"`
	Amount            string   `json:"amount"`
	Kind              string   `json:"kind"`
	Description       string   `json:"description"`
	Merchant          string   `json:"merchant"`
	Date              string   `json:"date"`
	Pending           bool     `json:"pending"`
	Notes             string   `json:"notes"`
	Tags              []string `json:"tags"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, r, core.ErrZeroDate)
		return
	}

	t := core.Transaction{
		OwnerID:           owner,
		AccountID:         req.AccountID,
		TransferAccountID: req.TransferAccountID,
		CategoryID:        req.CategoryID,
		Amount:            amount,
		Kind:              core.TransactionKind(req.Kind),
		Description:       req.Description,
		Merchant:          req.Merchant,
		Date:              date,
		Pending:           req.Pending,
		Notes:             req.Notes,
		Tags:              req.Tags,
	}

	created, err := s.transactions.CreateTransaction(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionToPayload(*created))
}

type updateTransactionRequest struct {
	AccountID         *string   `json:"account_id"`
	TransferAccountID *string   `json:"transfer_account_id"`
	CategoryID        *string   `json:"category_id"`
	Amount            *string   `json:"amount"`
	Kind              *string   `json:"kind"`
	Description       *string   `json:"description"`
	Merchant          *string   `json:"merchant"`
	Date              *string   `json:"date"`
	Pending           *bool     `json:"pending"`
	Notes             *string   `json:"notes"`
	Tags              *[]string `json:"tags"`
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	u := storage.TransactionUpdate{
		AccountID:         req.AccountID,
		TransferAccountID: req.TransferAccountID,
		CategoryID:        req.CategoryID,
		Description:       req.Description,
		Merchant:          req.Merchant,
		Pending:           req.Pending,
		Notes:             req.Notes,
		Tags:              req.Tags,
	}
	if req.Amount != nil {
		amount, err := core.ParseAmount(*req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		u.Amount = &amount
	}
	if req.Kind != nil {
		kind := core.TransactionKind(*req.Kind)
		if !kind.Valid() {
			writeError(w, r, core.ErrInvalidKind)
			return
		}
		u.Kind = &kind
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, r, core.ErrZeroDate)
			return
		}
		u.Date = &date
	}

	updated, err := s.transactions.UpdateTransaction(r.Context(), owner, r.PathValue("id"), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionToPayload(*updated))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := s.transactions.GetTransaction(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionToPayload(*t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.transactions.DeleteTransaction(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := parseIntParam(r, "limit", 0)
	offset := parseIntParam(r, "offset", 0)

	rows, err := s.transactions.ListRecent(r.Context(), owner, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload := make([]transactionPayload, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, rowToPayload(row))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSearchTransactions(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	f := storage.TransactionFilter{
		Query:      q.Get("q"),
		AccountID:  q.Get("account_id"),
		CategoryID: q.Get("category_id"),
		Kind:       core.TransactionKind(q.Get("kind")),
	}
	if v := q.Get("start_date"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid start_date"})
			return
		}
		f.StartDate = &d
	}
	if v := q.Get("end_date"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid end_date"})
			return
		}
		f.EndDate = &d
	}
	if v := q.Get("min_amount"); v != "" {
		m, err := core.ParseAmount(v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.MinAmount = &m
	}
	if v := q.Get("max_amount"); v != "" {
		m, err := core.ParseAmount(v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.MaxAmount = &m
	}

	rows, err := s.transactions.Search(r.Context(), owner, f, parseIntParam(r, "limit", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload := make([]transactionPayload, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, rowToPayload(row))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSpendingByCategory(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	year, month := parseYearMonth(r)
	start, end := storage.MonthRange(year, month)

	spends, err := s.transactions.SpendingByCategory(r.Context(), owner, start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type spendPayload struct {
		CategoryID   string `json:"category_id"`
		CategoryName string `json:"category_name"`
		CategoryIcon string `json:"category_icon,omitempty"`
		Total        string `json:"total"`
	}
	payload := make([]spendPayload, 0, len(spends))
	for _, sp := range spends {
		payload = append(payload, spendPayload{
			CategoryID:   sp.CategoryID,
			CategoryName: sp.CategoryName,
			CategoryIcon: sp.CategoryIcon,
			Total:        sp.Total.String(),
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleMonthlySpending(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	year, month := parseYearMonth(r)
	total, err := s.transactions.MonthlySpending(r.Context(), owner, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":  year,
		"month": month,
		"total": total.String(),
	})
}

// --- categories ---

type categoryPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	ParentID string `json:"parent_id,omitempty"`
	Icon     string `json:"icon,omitempty"`
	Color    string `json:"color,omitempty"`
	System   bool   `json:"system"`
}

func categoryToPayload(c core.Category) categoryPayload {
	return categoryPayload{
		ID:       c.ID,
		Name:     c.Name,
		Kind:     string(c.Kind),
		ParentID: c.ParentID,
		Icon:     c.Icon,
		Color:    c.Color,
		System:   c.System,
	}
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	kind := core.CategoryKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, r, core.ErrInvalidCategory)
		return
	}

	categories, err := s.categories.ListCategories(r.Context(), owner, kind)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload := make([]categoryPayload, 0, len(categories))
	for _, c := range categories {
		payload = append(payload, categoryToPayload(c))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.categories.GetCategory(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryToPayload(*c))
}

type createCategoryRequest struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	ParentID string `json:"parent_id"`
	Icon     string `json:"icon"`
	Color    string `json:"color"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createCategoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	created, err := s.categories.CreateCategory(r.Context(), core.Category{
		OwnerID:  owner,
		Name:     req.Name,
		Kind:     core.CategoryKind(req.Kind),
		ParentID: req.ParentID,
		Icon:     req.Icon,
		Color:    req.Color,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryToPayload(*created))
}

type updateCategoryRequest struct {
	Name     *string `json:"name"`
	Kind     *string `json:"kind"`
	ParentID *string `json:"parent_id"`
	Icon     *string `json:"icon"`
	Color    *string `json:"color"`
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateCategoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	u := storage.CategoryUpdate{
		Name:     req.Name,
		ParentID: req.ParentID,
		Icon:     req.Icon,
		Color:    req.Color,
	}
	if req.Kind != nil {
		kind := core.CategoryKind(*req.Kind)
		if !kind.Valid() {
			writeError(w, r, core.ErrInvalidCategory)
			return
		}
		u.Kind = &kind
	}

	updated, err := s.categories.UpdateCategory(r.Context(), owner, r.PathValue("id"), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryToPayload(*updated))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.categories.DeactivateCategory(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
