package controller

import (
	"strconv"

	"itsm/internal/common/http/middleware"
	"itsm/internal/directory/service"
	"itsm/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// AccountController handles login and account administration endpoints.
type AccountController struct {
	accountService *service.AccountService
}

// NewAccountController creates a new AccountController.
func NewAccountController(accountService *service.AccountService) *AccountController {
	return &AccountController{accountService: accountService}
}

// Login handles user login.
func (h *AccountController) Login(c *gin.Context) {
	var req service.LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.accountService.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Create handles account creation.
func (h *AccountController) Create(c *gin.Context) {
	var req service.CreateAccountInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	account, err := h.accountService.CreateAccount(c.Request.Context(), middleware.Principal(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, account)
}

// Delete handles account removal.
func (h *AccountController) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid account id")
		return
	}

	if err := h.accountService.DeleteAccount(c.Request.Context(), middleware.Principal(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Account deleted", nil)
}
