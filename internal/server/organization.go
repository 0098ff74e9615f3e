package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/mailseat/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name         string `json:"name" binding:"required"`
	Seats        int    `json:"seats"`
	Plan         string `json:"plan"`
	BillingEmail string `json:"billing_email"`
}

type updateSeatsRequest struct {
	Seats *int `json:"seats" binding:"required"`
}

type transferOwnershipRequest struct {
	NewOwnerUserID string `json:"new_owner_user_id" binding:"required"`
}

type organizationResponse struct {
	ID             snowflake.ID `json:"id"`
	Name           string       `json:"name"`
	Slug           string       `json:"slug"`
	Plan           string       `json:"plan"`
	Seats          int          `json:"seats"`
	SeatsUsed      int          `json:"seats_used"`
	SeatsAvailable int          `json:"seats_available"`
	BillingEmail   string       `json:"billing_email"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func newOrganizationResponse(org *organizationdomain.Organization) organizationResponse {
	return organizationResponse{
		ID:             org.ID,
		Name:           org.Name,
		Slug:           org.Slug,
		Plan:           org.Plan,
		Seats:          org.Seats,
		SeatsUsed:      org.SeatsUsed,
		SeatsAvailable: org.SeatsAvailable(),
		BillingEmail:   org.BillingEmail,
		CreatedAt:      org.CreatedAt,
		UpdatedAt:      org.UpdatedAt,
	}
}

func (s *Server) CreateOrganization(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizationSvc.CreateOrganization(c.Request.Context(), userID, organizationdomain.CreateOrganizationRequest{
		Name:         strings.TrimSpace(req.Name),
		Seats:        req.Seats,
		Plan:         strings.TrimSpace(req.Plan),
		BillingEmail: strings.TrimSpace(req.BillingEmail),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newOrganizationResponse(org))
}

func (s *Server) GetOrganization(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orgID, ok := pathID(c, "orgId", "organization")
	if !ok {
		return
	}

	org, err := s.organizationSvc.GetOrganization(c.Request.Context(), userID, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOrganizationResponse(org))
}

func (s *Server) UpdateSeats(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orgID, ok := pathID(c, "orgId", "organization")
	if !ok {
		return
	}

	var req updateSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizationSvc.UpdateSeats(c.Request.Context(), userID, orgID, *req.Seats)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOrganizationResponse(org))
}

func (s *Server) TransferOwnership(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orgID, ok := pathID(c, "orgId", "organization")
	if !ok {
		return
	}

	var req transferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	newOwnerID, err := parseSnowflakeID(req.NewOwnerUserID)
	if err != nil {
		AbortWithError(c, newValidationError("new_owner_user_id", "invalid_new_owner_user_id", "invalid new_owner_user_id"))
		return
	}

	if err := s.organizationSvc.TransferOwnership(c.Request.Context(), userID, orgID, newOwnerID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"org_id": orgID, "owner_user_id": newOwnerID})
}

func (s *Server) ListMembers(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orgID, ok := pathID(c, "orgId", "organization")
	if !ok {
		return
	}

	members, err := s.organizationSvc.ListMembers(c.Request.Context(), userID, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": members})
}
