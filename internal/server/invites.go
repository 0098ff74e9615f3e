package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/mailseat/internal/organization/domain"
)

type inviteMemberRequest struct {
	OrgID string `json:"org_id" binding:"required"`
	Email string `json:"email" binding:"required"`
	Role  string `json:"role" binding:"required"`
}

type issuedInviteResponse struct {
	ID        snowflake.ID                    `json:"id"`
	OrgID     snowflake.ID                    `json:"org_id"`
	Email     string                          `json:"email"`
	Role      organizationdomain.Role         `json:"role"`
	Status    organizationdomain.InviteStatus `json:"status"`
	InvitedBy snowflake.ID                    `json:"invited_by"`
	CreatedAt time.Time                       `json:"created_at"`
	ExpiresAt time.Time                       `json:"expires_at"`
	Token     string                          `json:"token"`
}

func (s *Server) InviteMember(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req inviteMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	orgID, err := parseSnowflakeID(req.OrgID)
	if err != nil {
		AbortWithError(c, organizationdomain.ErrInvalidOrganization)
		return
	}
	role, err := organizationdomain.ParseRole(req.Role)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	issued, err := s.organizationSvc.InviteMember(c.Request.Context(), userID, organizationdomain.InviteRequest{
		OrgID: orgID,
		Email: req.Email,
		Role:  role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invite := issued.Invite
	c.JSON(http.StatusCreated, issuedInviteResponse{
		ID:        invite.ID,
		OrgID:     invite.OrgID,
		Email:     invite.Email,
		Role:      invite.Role,
		Status:    organizationdomain.InviteStatusPending,
		InvitedBy: invite.InvitedBy,
		CreatedAt: invite.CreatedAt,
		ExpiresAt: invite.ExpiresAt,
		Token:     issued.Token,
	})
}

func (s *Server) ValidateInvite(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))

	view, err := s.organizationSvc.ValidateInvite(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) AcceptInvite(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	token := strings.TrimSpace(c.Param("token"))

	result, err := s.organizationSvc.AcceptInvite(c.Request.Context(), userID, token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"organization_id": result.OrgID,
		"role":            result.Role,
		"already_member":  result.AlreadyMember,
	})
}

func (s *Server) RevokeInvite(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	inviteID, ok := pathID(c, "id", "invite")
	if !ok {
		return
	}

	if err := s.organizationSvc.RevokeInvite(c.Request.Context(), userID, inviteID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": inviteID, "status": organizationdomain.InviteStatusRevoked})
}

func (s *Server) ListInvites(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orgID, ok := pathID(c, "orgId", "organization")
	if !ok {
		return
	}

	invites, err := s.organizationSvc.ListInvites(c.Request.Context(), userID, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invites})
}
