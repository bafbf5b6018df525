package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/flightclub/internal/billing/rate"
	chargedomain "github.com/smallbiznis/flightclub/internal/charge/domain"
	flightdomain "github.com/smallbiznis/flightclub/internal/flight/domain"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
)

type chargeFlightRequest struct {
	TargetType   string           `json:"target_type"`
	TargetID     snowflake.ID     `json:"target_id"`
	Amount       *decimal.Decimal `json:"amount"`
	Description  string           `json:"description"`
	OverrideRate *decimal.Decimal `json:"override_rate"`
	Fees         []rate.Fee       `json:"fees"`
}

type batchChargeItem struct {
	FlightID snowflake.ID `json:"flight_id"`
	chargeFlightRequest
}

type batchChargeRequest struct {
	Items []batchChargeItem `json:"items"`
}

// toSingle keeps an unknown target type as is so the charge reports it
// against this item only.
func (r chargeFlightRequest) toSingle(flightID snowflake.ID) chargedomain.SingleChargeRequest {
	ownerType, err := ownerdomain.ParseType(r.TargetType)
	if err != nil {
		ownerType = ownerdomain.Type(r.TargetType)
	}
	return chargedomain.SingleChargeRequest{
		FlightID:     flightID,
		Owner:        ownerdomain.Ref{Type: ownerType, ID: r.TargetID},
		Amount:       r.Amount,
		Description:  r.Description,
		OverrideRate: r.OverrideRate,
		Fees:         r.Fees,
	}
}

func (s *Server) GetFlight(c *gin.Context) {
	id, err := flightPathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	detail, err := s.flightSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

func (s *Server) ListUnchargedFlights(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	req := flightdomain.ListUnchargedRequest{}
	if limit != nil {
		req.Limit = *limit
	}
	flights, err := s.flightSvc.ListUncharged(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": flights})
}

func (s *Server) ChargeFlight(c *gin.Context) {
	id, err := flightPathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req chargeFlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if _, err := ownerdomain.ParseType(req.TargetType); err != nil {
		AbortWithError(c, err)
		return
	}

	by, _ := s.actorFromContext(c)
	result, err := s.chargeSvc.ChargeFlight(c.Request.Context(), by, req.toSingle(id))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) SplitChargeFlight(c *gin.Context) {
	id, err := flightPathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req chargedomain.SplitChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.FlightID = id

	by, _ := s.actorFromContext(c)
	result, err := s.chargeSvc.SplitCharge(c.Request.Context(), by, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) BatchChargeFlights(c *gin.Context) {
	var req batchChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items := make([]chargedomain.BatchItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, item.toSingle(item.FlightID))
	}

	by, _ := s.actorFromContext(c)
	result, err := s.chargeSvc.BatchCharge(c.Request.Context(), by, items)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) QuoteFlight(c *gin.Context) {
	id, err := flightPathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req chargedomain.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.FlightID = id

	quote, err := s.chargeSvc.Quote(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}

// flightPathID reads the flight :id and tags the request log with it.
func flightPathID(c *gin.Context) (snowflake.ID, error) {
	id, err := pathID(c, "flight_id")
	if err != nil {
		return 0, err
	}
	c.Set("flight_id", id.String())
	return id, nil
}
