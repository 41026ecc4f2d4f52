package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/access"
	splitdomain "github.com/smallbiznis/placementpay/internal/split/domain"
)

type placementSplitsResponse struct {
	PlacementID       string                     `json:"placement_id"`
	TotalFee          *decimal.Decimal           `json:"total_fee,omitempty"`
	PlatformRemainder *decimal.Decimal           `json:"platform_remainder,omitempty"`
	Splits            []*splitdomain.Split       `json:"splits"`
	Transactions      []*splitdomain.Transaction `json:"transactions"`
}

// GetPlacementSplits returns every split to admins. Other callers see only
// their own rows and must be a payee of the placement.
func (s *Server) GetPlacementSplits(c *gin.Context) {
	ctx := c.Request.Context()
	ac := accessFromContext(c)
	placementID := strings.TrimSpace(c.Param("id"))

	seesAll := s.authorizer.Can(ctx, ac, access.ObjectPlacement, access.ActionViewAll)
	if !seesAll {
		isPayee, err := s.splits.IsPayee(ctx, placementID, ac.UserID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !isPayee {
			AbortWithError(c, access.ErrForbidden)
			return
		}
	}

	summary, err := s.splits.PlacementSummary(ctx, placementID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := placementSplitsResponse{
		PlacementID:  summary.PlacementID,
		Splits:       summary.Splits,
		Transactions: summary.Transactions,
	}
	if seesAll {
		resp.TotalFee = &summary.TotalFee
		resp.PlatformRemainder = &summary.PlatformRemainder
	} else {
		resp.Splits = ownSplits(summary.Splits, ac.UserID)
		resp.Transactions = ownTransactions(summary.Transactions, ac.UserID)
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func ownSplits(splits []*splitdomain.Split, payeeID string) []*splitdomain.Split {
	out := make([]*splitdomain.Split, 0, len(splits))
	for _, split := range splits {
		if split.PayeeID == payeeID {
			out = append(out, split)
		}
	}
	return out
}

func ownTransactions(txs []*splitdomain.Transaction, payeeID string) []*splitdomain.Transaction {
	out := make([]*splitdomain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.PayeeID == payeeID {
			out = append(out, tx)
		}
	}
	return out
}
