package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/flightclub/internal/ledger/domain"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
	"github.com/smallbiznis/flightclub/internal/statement"
	"github.com/smallbiznis/flightclub/pkg/db/pagination"
)

type manualEntryRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   *time.Time      `json:"created_at"`
}

type editTransactionRequest struct {
	Description *string    `json:"description"`
	CreatedAt   *time.Time `json:"created_at"`
}

type listTransactionsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

func (s *Server) AddUserPayment(c *gin.Context) {
	s.addManualEntry(c, ownerdomain.TypeUser, ledgerdomain.KindPayment)
}

func (s *Server) AddUserCharge(c *gin.Context) {
	s.addManualEntry(c, ownerdomain.TypeUser, ledgerdomain.KindCharge)
}

func (s *Server) AddUserAdjustment(c *gin.Context) {
	s.addManualEntry(c, ownerdomain.TypeUser, ledgerdomain.KindAdjustment)
}

func (s *Server) AddCostCenterCredit(c *gin.Context) {
	s.addManualEntry(c, ownerdomain.TypeCostCenter, ledgerdomain.KindCredit)
}

func (s *Server) AddCostCenterCharge(c *gin.Context) {
	s.addManualEntry(c, ownerdomain.TypeCostCenter, ledgerdomain.KindCharge)
}

func (s *Server) AddCostCenterAdjustment(c *gin.Context) {
	s.addManualEntry(c, ownerdomain.TypeCostCenter, ledgerdomain.KindAdjustment)
}

func (s *Server) addManualEntry(c *gin.Context, ownerType ownerdomain.Type, kind ledgerdomain.Kind) {
	ownerID, err := pathID(c, "owner_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req manualEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	by, _ := s.actorFromContext(c)
	entry, err := s.ledgerSvc.AddManual(c.Request.Context(), by, ledgerdomain.ManualEntryRequest{
		Owner:       ownerdomain.Ref{Type: ownerType, ID: ownerID},
		Kind:        kind,
		Amount:      req.Amount,
		Description: req.Description,
		CreatedAt:   req.CreatedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) GetUserTransaction(c *gin.Context) {
	s.getTransaction(c, ownerdomain.TypeUser)
}

func (s *Server) GetCostCenterTransaction(c *gin.Context) {
	s.getTransaction(c, ownerdomain.TypeCostCenter)
}

func (s *Server) getTransaction(c *gin.Context, ownerType ownerdomain.Type) {
	id, err := pathID(c, "transaction_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entry, err := s.ledgerSvc.Get(c.Request.Context(), ownerType, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) EditUserTransaction(c *gin.Context) {
	s.editTransaction(c, ownerdomain.TypeUser)
}

func (s *Server) EditCostCenterTransaction(c *gin.Context) {
	s.editTransaction(c, ownerdomain.TypeCostCenter)
}

func (s *Server) editTransaction(c *gin.Context, ownerType ownerdomain.Type) {
	id, err := pathID(c, "transaction_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req editTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	by, _ := s.actorFromContext(c)
	entry, err := s.ledgerSvc.Edit(c.Request.Context(), by, ownerType, id, ledgerdomain.EditRequest{
		Description: req.Description,
		CreatedAt:   req.CreatedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) ReverseUserTransaction(c *gin.Context) {
	s.reverseTransaction(c, ownerdomain.TypeUser, false)
}

func (s *Server) ReverseCostCenterTransaction(c *gin.Context) {
	s.reverseTransaction(c, ownerdomain.TypeCostCenter, false)
}

func (s *Server) ReverseUserFlightCharge(c *gin.Context) {
	s.reverseTransaction(c, ownerdomain.TypeUser, true)
}

func (s *Server) ReverseCostCenterFlightCharge(c *gin.Context) {
	s.reverseTransaction(c, ownerdomain.TypeCostCenter, true)
}

func (s *Server) reverseTransaction(c *gin.Context, ownerType ownerdomain.Type, flightCharge bool) {
	id, err := pathID(c, "transaction_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	by, _ := s.actorFromContext(c)
	var result ledgerdomain.ReverseResult
	if flightCharge {
		result, err = s.ledgerSvc.ReverseFlightCharge(c.Request.Context(), by, ownerType, id)
	} else {
		result, err = s.ledgerSvc.Reverse(c.Request.Context(), by, ownerType, id)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListUserTransactions(c *gin.Context) {
	s.listTransactions(c, ownerdomain.TypeUser)
}

func (s *Server) ListCostCenterTransactions(c *gin.Context) {
	s.listTransactions(c, ownerdomain.TypeCostCenter)
}

func (s *Server) listTransactions(c *gin.Context, ownerType ownerdomain.Type) {
	ownerID, err := pathID(c, "owner_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	owner := ownerdomain.Ref{Type: ownerType, ID: ownerID}

	if _, err := s.authorizeAccount(c, owner, ActionLedgerView); err != nil {
		AbortWithError(c, err)
		return
	}

	var query listTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.List(c.Request.Context(), ledgerdomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Owner: owner,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ExportUserStatement(c *gin.Context) {
	s.exportStatement(c, ownerdomain.TypeUser)
}

func (s *Server) ExportCostCenterStatement(c *gin.Context) {
	s.exportStatement(c, ownerdomain.TypeCostCenter)
}

func (s *Server) exportStatement(c *gin.Context, ownerType ownerdomain.Type) {
	ownerID, err := pathID(c, "owner_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	owner := ownerdomain.Ref{Type: ownerType, ID: ownerID}

	if _, err := s.authorizeAccount(c, owner, ActionLedgerExport); err != nil {
		AbortWithError(c, err)
		return
	}

	var buf bytes.Buffer
	filename, err := s.statement.Export(c.Request.Context(), owner, &buf)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, statement.ContentType, buf.Bytes())
}

func (s *Server) ListUserBalances(c *gin.Context) {
	s.listBalances(c, ownerdomain.TypeUser)
}

func (s *Server) ListCostCenterBalances(c *gin.Context) {
	s.listBalances(c, ownerdomain.TypeCostCenter)
}

func (s *Server) listBalances(c *gin.Context, ownerType ownerdomain.Type) {
	balances, err := s.ledgerSvc.Balances(c.Request.Context(), ownerType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balances})
}
