package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorCodeInvalidPayload = "invalid_payload"
	timestampLayout         = time.RFC3339
)

type httpHandler struct {
	service RewardService
	logger  *zap.Logger
	timeout time.Duration
}

func (handler *httpHandler) withTimeout(ctx *gin.Context) {
	if handler.timeout <= 0 {
		ctx.Next()
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.timeout)
	defer cancel()
	ctx.Request = ctx.Request.WithContext(requestCtx)
	ctx.Next()
}

func (handler *httpHandler) handleRouletteStatus(ctx *gin.Context) {
	userID, ok := handler.userIDParam(ctx)
	if !ok {
		return
	}
	today := handler.service.Today()
	status, err := handler.service.ParticipationStatus(ctx.Request.Context(), userID, today)
	if err != nil {
		handler.respondError(ctx, "roulette status failed", err)
		return
	}
	response := rouletteStatusResponse{
		Date:            today.String(),
		HasParticipated: status.HasParticipated,
		RemainingBudget: status.RemainingBudget.Int64(),
	}
	if status.LastParticipation != nil {
		payload := newParticipationPayload(*status.LastParticipation)
		response.LastParticipation = &payload
	}
	ctx.JSON(http.StatusOK, response)
}

func (handler *httpHandler) handleParticipate(ctx *gin.Context) {
	userID, ok := handler.userIDParam(ctx)
	if !ok {
		return
	}
	today := handler.service.Today()
	result, err := handler.service.Participate(ctx.Request.Context(), userID, today)
	if err != nil {
		handler.respondError(ctx, "participate failed", err)
		return
	}
	ctx.JSON(http.StatusCreated, participateResponse{
		ParticipationID: result.ParticipationID.Int64(),
		Date:            today.String(),
		WonAmount:       result.WonAmount.Int64(),
		RemainingBudget: result.RemainingBudget.Int64(),
	})
}

func (handler *httpHandler) handleCancelParticipation(ctx *gin.Context) {
	rawID, ok := int64Param(ctx, "participationID")
	if !ok {
		return
	}
	participationID, err := rewards.NewParticipationID(rawID)
	if err != nil {
		handler.respondError(ctx, "cancel participation failed", err)
		return
	}
	snapshot, err := handler.service.CancelParticipation(ctx.Request.Context(), participationID)
	if err != nil {
		handler.respondError(ctx, "cancel participation failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"participation":    newParticipationPayload(snapshot.Participation),
		"remaining_budget": snapshot.RemainingBudget.Int64(),
	})
}

func (handler *httpHandler) handlePointBalance(ctx *gin.Context) {
	userID, ok := handler.userIDParam(ctx)
	if !ok {
		return
	}
	balance, err := handler.service.PointBalance(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondError(ctx, "point balance failed", err)
		return
	}
	lots := make([]lotPayload, 0, len(balance.Lots))
	for _, lot := range balance.Lots {
		lots = append(lots, lotPayload{
			LotID:           lot.ID.Int64(),
			InitialAmount:   lot.InitialAmount.Int64(),
			RemainingAmount: lot.RemainingAmount.Int64(),
			EarnedAt:        lot.EarnedAt.UTC().Format(timestampLayout),
			ExpiresAt:       lot.ExpiresAt.UTC().Format(timestampLayout),
			SourceType:      lot.SourceType.String(),
			SourceID:        lot.SourceID,
		})
	}
	ctx.JSON(http.StatusOK, balanceResponse{
		CurrentPoint:        balance.CurrentPoint.Int64(),
		SpendablePoint:      balance.SpendablePoint.Int64(),
		ExpiringWithin7Days: balance.ExpiringWithin7Days.Int64(),
		Lots:                lots,
	})
}

func (handler *httpHandler) handlePointHistory(ctx *gin.Context) {
	userID, ok := handler.userIDParam(ctx)
	if !ok {
		return
	}
	limit := 0
	if rawLimit := ctx.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(string(rewards.KindValidation), "limit must be an integer", nil))
			return
		}
		limit = parsed
	}
	histories, err := handler.service.PointHistory(ctx.Request.Context(), userID, limit)
	if err != nil {
		handler.respondError(ctx, "point history failed", err)
		return
	}
	entries := make([]historyPayload, 0, len(histories))
	for _, history := range histories {
		var lotID *int64
		if history.LotID != nil {
			value := history.LotID.Int64()
			lotID = &value
		}
		entries = append(entries, historyPayload{
			HistoryID:       history.ID,
			LotID:           lotID,
			Amount:          history.Amount.Int64(),
			TransactionType: history.Type.String(),
			ReferenceType:   history.ReferenceType.String(),
			ReferenceID:     history.ReferenceID,
			BalanceAfter:    history.BalanceAfter.Int64(),
			Metadata:        json.RawMessage(history.Metadata.String()),
			CreatedAt:       history.CreatedAt.UTC().Format(timestampLayout),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (handler *httpHandler) handlePurchase(ctx *gin.Context) {
	userID, ok := handler.userIDParam(ctx)
	if !ok {
		return
	}
	var request purchaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body", nil))
		return
	}
	productID, err := rewards.NewProductID(request.ProductID)
	if err != nil {
		handler.respondError(ctx, "purchase failed", err)
		return
	}
	snapshot, err := handler.service.Purchase(ctx.Request.Context(), userID, productID, request.Quantity)
	if err != nil {
		handler.respondError(ctx, "purchase failed", err)
		return
	}
	ctx.JSON(http.StatusCreated, newOrderPayload(snapshot))
}

func (handler *httpHandler) handleCancelOrder(ctx *gin.Context) {
	rawID, ok := int64Param(ctx, "orderID")
	if !ok {
		return
	}
	orderID, err := rewards.NewOrderID(rawID)
	if err != nil {
		handler.respondError(ctx, "cancel order failed", err)
		return
	}
	snapshot, err := handler.service.CancelOrder(ctx.Request.Context(), orderID)
	if err != nil {
		handler.respondError(ctx, "cancel order failed", err)
		return
	}
	ctx.JSON(http.StatusOK, newOrderPayload(snapshot))
}

func (handler *httpHandler) handleEnsureBudgets(ctx *gin.Context) {
	var request ensureBudgetsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body", nil))
		return
	}
	start, end, err := parseDateRange(request.StartDate, request.EndDate)
	if err != nil {
		handler.respondError(ctx, "ensure budgets failed", err)
		return
	}
	budgets, err := handler.service.EnsureBudgetRange(ctx.Request.Context(), start, end, rewards.Points(request.DailyCap))
	if err != nil {
		handler.respondError(ctx, "ensure budgets failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"budgets": newBudgetPayloads(budgets)})
}

func (handler *httpHandler) handleQueryBudgets(ctx *gin.Context) {
	start, end, err := parseDateRange(ctx.Query("start_date"), ctx.Query("end_date"))
	if err != nil {
		handler.respondError(ctx, "query budgets failed", err)
		return
	}
	pageNumber, err := optionalInt(ctx.Query("page"))
	if err != nil {
		handler.respondError(ctx, "query budgets failed", err)
		return
	}
	pageSize, err := optionalInt(ctx.Query("size"))
	if err != nil {
		handler.respondError(ctx, "query budgets failed", err)
		return
	}
	pageRequest, err := rewards.NewPageRequest(pageNumber, pageSize)
	if err != nil {
		handler.respondError(ctx, "query budgets failed", err)
		return
	}
	page, err := handler.service.QueryBudgets(ctx.Request.Context(), start, end, pageRequest)
	if err != nil {
		handler.respondError(ctx, "query budgets failed", err)
		return
	}
	ctx.JSON(http.StatusOK, budgetPageResponse{
		Budgets:    newBudgetPayloads(page.Items),
		Page:       page.Number,
		Size:       page.Size,
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages,
	})
}

func (handler *httpHandler) userIDParam(ctx *gin.Context) (rewards.UserID, bool) {
	rawID, ok := int64Param(ctx, "userID")
	if !ok {
		return 0, false
	}
	userID, err := rewards.NewUserID(rawID)
	if err != nil {
		handler.respondError(ctx, "invalid user id", err)
		return 0, false
	}
	return userID, true
}

func (handler *httpHandler) respondError(ctx *gin.Context, message string, err error) {
	kind := rewards.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		handler.logger.Error(message, zap.Error(err), zap.String("path", ctx.FullPath()))
	}
	ctx.JSON(status, errorResponse(string(kind), errorMessage(kind, err), errorDetails(err)))
}

func statusForKind(kind rewards.ErrorKind) int {
	switch kind {
	case rewards.KindNotFound:
		return http.StatusNotFound
	case rewards.KindValidation:
		return http.StatusBadRequest
	case rewards.KindAlreadyParticipated,
		rewards.KindBudgetExhausted,
		rewards.KindInsufficientStock,
		rewards.KindProductUnavailable,
		rewards.KindInsufficientPoint,
		rewards.KindAlreadyUsed,
		rewards.KindAlreadyCancelled,
		rewards.KindNicknameTaken:
		return http.StatusConflict
	case rewards.KindTransientConflict:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(kind rewards.ErrorKind, err error) string {
	if kind == rewards.KindInternal {
		return "internal error"
	}
	return err.Error()
}

func errorDetails(err error) gin.H {
	var budgetError rewards.BudgetExhaustedError
	if errors.As(err, &budgetError) {
		return gin.H{"date": budgetError.Date.String(), "requested": budgetError.Requested.Int64(), "remaining": budgetError.Remaining.Int64()}
	}
	var pointError rewards.InsufficientPointError
	if errors.As(err, &pointError) {
		return gin.H{"required": pointError.Required.Int64(), "available": pointError.Available.Int64()}
	}
	var stockError rewards.InsufficientStockError
	if errors.As(err, &stockError) {
		return gin.H{"product_id": stockError.ProductID.Int64(), "requested": stockError.Requested, "available": stockError.Available}
	}
	var usedError rewards.AlreadyUsedError
	if errors.As(err, &usedError) {
		return gin.H{"lot_id": usedError.LotID.Int64(), "status": usedError.Status.String(), "initial_amount": usedError.InitialAmount.Int64(), "remaining_amount": usedError.RemainingAmount.Int64()}
	}
	return nil
}

func errorResponse(code string, message string, details gin.H) gin.H {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	return gin.H{"error": body}
}

func int64Param(ctx *gin.Context, name string) (int64, bool) {
	value, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(string(rewards.KindValidation), fmt.Sprintf("%s must be an integer", name), nil))
		return 0, false
	}
	return value, true
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", rewards.ErrInvalidPage, raw)
	}
	return value, nil
}

func parseDateRange(rawStart string, rawEnd string) (rewards.Date, rewards.Date, error) {
	start, err := rewards.ParseDate(rawStart)
	if err != nil {
		return rewards.Date{}, rewards.Date{}, err
	}
	end, err := rewards.ParseDate(rawEnd)
	if err != nil {
		return rewards.Date{}, rewards.Date{}, err
	}
	return start, end, nil
}

func newParticipationPayload(participation rewards.Participation) participationPayload {
	return participationPayload{
		ParticipationID: participation.ID.Int64(),
		Date:            participation.Date.String(),
		WonAmount:       participation.WonAmount.Int64(),
		Status:          participation.Status.String(),
		CreatedAt:       participation.CreatedAt.UTC().Format(timestampLayout),
	}
}

func newOrderPayload(snapshot rewards.OrderSnapshot) orderPayload {
	return orderPayload{
		OrderID:      snapshot.ID.Int64(),
		ProductID:    snapshot.ProductID.Int64(),
		ProductName:  snapshot.ProductName,
		UnitPrice:    snapshot.UnitPrice.Int64(),
		Quantity:     snapshot.Quantity,
		TotalPrice:   snapshot.TotalPrice.Int64(),
		Status:       snapshot.Status.String(),
		BalanceAfter: snapshot.BalanceAfter.Int64(),
		CreatedAt:    snapshot.CreatedAt.UTC().Format(timestampLayout),
	}
}

func newBudgetPayloads(budgets []rewards.BudgetSnapshot) []budgetPayload {
	payloads := make([]budgetPayload, 0, len(budgets))
	for _, budget := range budgets {
		payloads = append(payloads, budgetPayload{
			Date:            budget.Date.String(),
			TotalAmount:     budget.TotalAmount.Int64(),
			RemainingAmount: budget.RemainingAmount.Int64(),
			UsedAmount:      budget.UsedAmount.Int64(),
		})
	}
	return payloads
}

type purchaseRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type ensureBudgetsRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	DailyCap  int64  `json:"daily_cap"`
}

type participateResponse struct {
	ParticipationID int64  `json:"participation_id"`
	Date            string `json:"date"`
	WonAmount       int64  `json:"won_amount"`
	RemainingBudget int64  `json:"remaining_budget"`
}

type participationPayload struct {
	ParticipationID int64  `json:"participation_id"`
	Date            string `json:"date"`
	WonAmount       int64  `json:"won_amount"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

type rouletteStatusResponse struct {
	Date              string                `json:"date"`
	HasParticipated   bool                  `json:"has_participated"`
	RemainingBudget   int64                 `json:"remaining_budget"`
	LastParticipation *participationPayload `json:"last_participation,omitempty"`
}

type balanceResponse struct {
	CurrentPoint        int64        `json:"current_point"`
	SpendablePoint      int64        `json:"spendable_point"`
	ExpiringWithin7Days int64        `json:"expiring_within_7_days"`
	Lots                []lotPayload `json:"lots"`
}

type lotPayload struct {
	LotID           int64  `json:"lot_id"`
	InitialAmount   int64  `json:"initial_amount"`
	RemainingAmount int64  `json:"remaining_amount"`
	EarnedAt        string `json:"earned_at"`
	ExpiresAt       string `json:"expires_at"`
	SourceType      string `json:"source_type"`
	SourceID        int64  `json:"source_id"`
}

type historyPayload struct {
	HistoryID       int64           `json:"history_id"`
	LotID           *int64          `json:"lot_id,omitempty"`
	Amount          int64           `json:"amount"`
	TransactionType string          `json:"transaction_type"`
	ReferenceType   string          `json:"reference_type"`
	ReferenceID     int64           `json:"reference_id"`
	BalanceAfter    int64           `json:"balance_after"`
	Metadata        json.RawMessage `json:"metadata"`
	CreatedAt       string          `json:"created_at"`
}

type orderPayload struct {
	OrderID      int64  `json:"order_id"`
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	UnitPrice    int64  `json:"unit_price"`
	Quantity     int64  `json:"quantity"`
	TotalPrice   int64  `json:"total_price"`
	Status       string `json:"status"`
	BalanceAfter int64  `json:"balance_after"`
	CreatedAt    string `json:"created_at"`
}

type budgetPayload struct {
	Date            string `json:"date"`
	TotalAmount     int64  `json:"total_amount"`
	RemainingAmount int64  `json:"remaining_amount"`
	UsedAmount      int64  `json:"used_amount"`
}

type budgetPageResponse struct {
	Budgets    []budgetPayload `json:"budgets"`
	Page       int             `json:"page"`
	Size       int             `json:"size"`
	TotalItems int64           `json:"total_items"`
	TotalPages int             `json:"total_pages"`
}
