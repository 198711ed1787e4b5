package handlers

import (
	"fmt"

	"messaging_backend/internal/auth"
	"messaging_backend/internal/logger"
	"messaging_backend/internal/services"
	"messaging_backend/internal/validator"
	"messaging_backend/pkg/apperrors"
	"messaging_backend/pkg/contextkeys"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ============================================================================
// 1. Base handler
// ============================================================================

type BaseHandler struct {
	validator *validator.Validator
	access    services.AccessService
}

func NewBaseHandler(v *validator.Validator, access services.AccessService) *BaseHandler {
	return &BaseHandler{
		validator: v,
		access:    access,
	}
}

// ============================================================================
// 2. Database handle
// ============================================================================

// GetDB returns the *gorm.DB (pool or request transaction) that DBMiddleware
// stored in the context.
func (h *BaseHandler) GetDB(c *gin.Context) *gorm.DB {
	dbKey := string(contextkeys.DBContextKey)

	val, ok := c.Get(dbKey)
	if !ok {
		logger.CtxError(c.Request.Context(), "critical error: db key not found in context", "key", dbKey)
		panic("critical error: DBMiddleware did not set the db key")
	}

	db, ok := val.(*gorm.DB)
	if !ok {
		logger.CtxError(c.Request.Context(), "critical error: db in context is not *gorm.DB", "key", dbKey, "type", fmt.Sprintf("%T", val))
		panic("critical error: db in context has incorrect type")
	}

	return db
}

// ============================================================================
// 3. Binding and validation
// ============================================================================

func (h *BaseHandler) BindAndValidate_JSON(c *gin.Context, obj interface{}) bool {
	ctx := c.Request.Context()

	if err := c.ShouldBindJSON(obj); err != nil {
		logger.CtxWithError(ctx, "Failed to bind JSON body", err, "path", c.Request.URL.Path)
		apperrors.HandleError(c, apperrors.NewBadRequestError("Invalid request body: "+err.Error()))
		return false
	}
	return h.validate(c, obj)
}

func (h *BaseHandler) BindAndValidate_Query(c *gin.Context, obj interface{}) bool {
	ctx := c.Request.Context()

	if err := c.ShouldBindQuery(obj); err != nil {
		logger.CtxWithError(ctx, "Failed to bind query params", err, "path", c.Request.URL.Path)
		apperrors.HandleError(c, apperrors.NewBadRequestError("Invalid query parameters: "+err.Error()))
		return false
	}
	return h.validate(c, obj)
}

func (h *BaseHandler) validate(c *gin.Context, obj interface{}) bool {
	ctx := c.Request.Context()

	if err := h.validator.Validate(obj); err != nil {
		if vErr, ok := err.(*validator.ValidationError); ok {
			logger.CtxWarn(ctx, "Validation failed", "errors", vErr.Errors, "path", c.Request.URL.Path)
			apperrors.HandleError(c, apperrors.ValidationError(vErr.Errors))
		} else {
			logger.CtxWithError(ctx, "Internal validator error", err, "path", c.Request.URL.Path)
			apperrors.HandleError(c, apperrors.InternalError(err))
		}
		return false
	}
	return true
}

// ============================================================================
// 4. Error handling
// ============================================================================

func (h *BaseHandler) HandleServiceError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		logger.CtxWarn(ctx, "Service error",
			"code", appErr.Code,
			"error", appErr.Message,
			"details", appErr.Details,
			"path", c.Request.URL.Path,
		)
		apperrors.HandleError(c, appErr)
	} else {
		logger.CtxWithError(ctx, "Internal server error", err, "path", c.Request.URL.Path)
		apperrors.HandleError(c, apperrors.InternalError(err))
	}
}

// ============================================================================
// 5. Principal and capability checks
// ============================================================================

func (h *BaseHandler) GetAndAuthorizeUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(string(contextkeys.UserIDKey))
	if userID == "" {
		logger.CtxWarn(c.Request.Context(), "Unauthorized access: userID not found in context",
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
		)
		apperrors.HandleError(c, apperrors.NewUnauthorizedError("User not authenticated"))
		return "", false
	}
	return userID, true
}

// RequireUser checks caps against the authenticated user alone.
func (h *BaseHandler) RequireUser(c *gin.Context, caps ...auth.Capability) (*auth.Access, bool) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return nil, false
	}
	access, err := h.access.ResolveUser(h.GetDB(c), userID)
	return h.require(c, access, err, caps)
}

// RequireConversation resolves the conversation and the caller's membership,
// then checks caps.
func (h *BaseHandler) RequireConversation(c *gin.Context, conversationID string, caps ...auth.Capability) (*auth.Access, bool) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return nil, false
	}
	access, err := h.access.ResolveConversation(h.GetDB(c), userID, conversationID)
	return h.require(c, access, err, caps)
}

// RequireMessage resolves the message with its conversation, then checks caps.
func (h *BaseHandler) RequireMessage(c *gin.Context, messageID string, caps ...auth.Capability) (*auth.Access, bool) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return nil, false
	}
	access, err := h.access.ResolveMessage(h.GetDB(c), userID, messageID)
	return h.require(c, access, err, caps)
}

func (h *BaseHandler) require(c *gin.Context, access *auth.Access, err error, caps []auth.Capability) (*auth.Access, bool) {
	if err != nil {
		h.HandleServiceError(c, err)
		return nil, false
	}
	if err := auth.Require(access, caps...); err != nil {
		h.HandleServiceError(c, err)
		return nil, false
	}
	return access, true
}
