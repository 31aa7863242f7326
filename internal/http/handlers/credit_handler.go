// Credit and referral HTTP handlers.
//
//   - GET  /credits               (balance after lazy reset and expiry)
//   - GET  /credits/transactions  (audit log, paginated, ETag support)
//   - GET  /referrals             (the caller's referral status)
//   - POST /referrals/code        (get or create the caller's code)
//   - POST /referrals/redeem      (redeem someone else's code)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
	"github.com/tbourn/recipe-extraction-backend/internal/ledger"
	"github.com/tbourn/recipe-extraction-backend/internal/repo"
	"github.com/tbourn/recipe-extraction-backend/internal/utils"
)

// ListTransactionsResponse wraps a page of ledger rows.
type ListTransactionsResponse struct {
	Transactions []domain.CreditTransaction `json:"transactions"`
	Pagination   Pagination                 `json:"pagination"`
}

// RedeemReferralRequest is the JSON payload for redeeming a code.
type RedeemReferralRequest struct {
	Code string `json:"code" binding:"required" example:"K7Q2ZP4M"`
}

// GetCredits godoc
// @ID          getCredits
// @Summary     Current credit balance
// @Description Applies any due weekly reset and grant expiry, then returns both pools and the usable referral grants.
// @Tags        Credits
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"  example(user123)
// @Success     200  {object} ledger.Snapshot
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /credits [get]
func (h *Handlers) GetCredits(c *gin.Context) {
	snap, err := h.credits.Balance(c.Request.Context(), userID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, snap)
}

// ListTransactions godoc
// @ID          listCreditTransactions
// @Summary     Credit transaction log (paginated)
// @Tags        Credits
// @Produce     json
// @Param       X-User-ID      header  string  true  "User ID"  example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListTransactionsResponse
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /credits/transactions [get]
func (h *Handlers) ListTransactions(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	if l, ok := h.credits.(*ledger.Ledger); ok && l.DB != nil {
		if count, maxTS, err := repo.TransactionsStats(ctx, l.DB, uid); err == nil {
			if notModified(c, "transactions", uid, count, maxTS) {
				return
			}
		}
	}

	items, total, err := h.credits.ListTransactions(ctx, uid, utils.Page{Number: page, Size: pageSize}.Offset(), pageSize)
	if err != nil {
		internalError(c, ErrCodeListFailed, err)
		return
	}
	ok(c, http.StatusOK, ListTransactionsResponse{
		Transactions: items,
		Pagination:   newPagination(page, pageSize, total),
	})
}

// GetReferralStatus godoc
// @ID          getReferralStatus
// @Summary     Referral status
// @Description Returns the caller's code if one was minted, whether the caller has redeemed a code, and how many users redeemed theirs.
// @Tags        Referrals
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"  example(user123)
// @Success     200  {object} services.ReferralStatus
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /referrals [get]
func (h *Handlers) GetReferralStatus(c *gin.Context) {
	st, err := h.referrals.Status(c.Request.Context(), userID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// CreateReferralCode godoc
// @ID          createReferralCode
// @Summary     Get or create the caller's referral code
// @Description Idempotent: the same code is returned on every call.
// @Tags        Referrals
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"  example(user123)
// @Success     200  {object} domain.ReferralCode
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /referrals/code [post]
func (h *Handlers) CreateReferralCode(c *gin.Context) {
	code, err := h.referrals.GenerateCode(c.Request.Context(), userID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, code)
}

// RedeemReferral godoc
// @ID          redeemReferral
// @Summary     Redeem a referral code
// @Description Grants 5 expiring credits to both the caller and the code owner. Each user may redeem once.
// @Tags        Referrals
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"  example(user123)
// @Param       body       body    handlers.RedeemReferralRequest  true  "Code"
// @Success     200  {object} services.Redemption
// @Failure     400  {object} handlers.ErrorResponse "Self referral"
// @Failure     404  {object} handlers.ErrorResponse "Unknown code"
// @Failure     409  {object} handlers.ErrorResponse "Already redeemed"
// @Router      /referrals/redeem [post]
func (h *Handlers) RedeemReferral(c *gin.Context) {
	var req RedeemReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code required")
		return
	}
	red, err := h.referrals.Redeem(c.Request.Context(), userID(c), req.Code)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, red)
}
