package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/mailseat/internal/organization/domain"
)

type addMemberRequest struct {
	OrgID string `json:"org_id" binding:"required"`
	Name  string `json:"name"`
	Email string `json:"email" binding:"required"`
	Role  string `json:"role" binding:"required"`
}

type changeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (s *Server) AddUserDirect(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req addMemberRequest
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

	result, err := s.organizationSvc.AddUserDirect(c.Request.Context(), userID, organizationdomain.AddUserRequest{
		OrgID: orgID,
		Email: req.Email,
		Name:  strings.TrimSpace(req.Name),
		Role:  role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":     result.User.ID,
		"is_new_user": result.IsNewUser,
		"member":      result.Member,
	})
}

func (s *Server) RemoveMember(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orgID, ok := pathID(c, "orgId", "organization")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userId", "user")
	if !ok {
		return
	}

	if err := s.organizationSvc.RemoveMember(c.Request.Context(), userID, orgID, targetID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"org_id": orgID, "user_id": targetID, "removed": true})
}

func (s *Server) ChangeRole(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orgID, ok := pathID(c, "orgId", "organization")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userId", "user")
	if !ok {
		return
	}

	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	role, err := organizationdomain.ParseRole(req.Role)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	member, err := s.organizationSvc.ChangeRole(c.Request.Context(), userID, orgID, targetID, role)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, member)
}
