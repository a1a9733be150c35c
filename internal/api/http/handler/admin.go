package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	admin *licenses.Admin
}

func NewAdminHandler(admin *licenses.Admin) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// CreateLicense issues a new license key.
// POST /api/v1/admin/licenses
func (h *AdminHandler) CreateLicense(ctx *gin.Context) {
	var req dto.CreateLicenseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lic, err := h.admin.CreateLicense(ctx.Request.Context(), licenses.CreateLicenseParams{
		CustomerEmail:  req.CustomerEmail,
		CustomerName:   req.CustomerName,
		PlanType:       req.PlanType,
		DurationMonths: req.DurationMonths,
		MaxActivations: req.MaxActivations,
		Notes:          req.Notes,
	})
	if err != nil {
		h.writeError(ctx, "create license", err)
		return
	}

	ctx.JSON(http.StatusCreated, dto.NewLicenseResponse(lic))
}

// ListLicenses returns licenses newest first.
// GET /api/v1/admin/licenses?page=1&page_size=20
func (h *AdminHandler) ListLicenses(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))

	if page < 1 {
		page = 1
	}
	if page > licenses.MaxPage {
		page = licenses.MaxPage
	}
	if pageSize < 1 || pageSize > licenses.MaxPageSize {
		pageSize = 20
	}

	list, total, err := h.admin.ListLicenses(ctx.Request.Context(), page, pageSize)
	if err != nil {
		h.writeError(ctx, "list licenses", err)
		return
	}

	resp := dto.ListLicensesResponse{
		Licenses: make([]dto.LicenseResponse, len(list)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for i := range list {
		resp.Licenses[i] = dto.NewLicenseResponse(&list[i])
	}
	ctx.JSON(http.StatusOK, resp)
}

// GetLicense returns one license with its activations.
// GET /api/v1/admin/licenses/:key
func (h *AdminHandler) GetLicense(ctx *gin.Context) {
	lic, err := h.admin.GetLicense(ctx.Request.Context(), ctx.Param("key"))
	if err != nil {
		h.writeError(ctx, "get license", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewLicenseResponse(lic))
}

// DeactivateLicense disables a license without touching its activations.
// POST /api/v1/admin/licenses/:key/deactivate
func (h *AdminHandler) DeactivateLicense(ctx *gin.Context) {
	lic, err := h.admin.Deactivate(ctx.Request.Context(), ctx.Param("key"))
	if err != nil {
		h.writeError(ctx, "deactivate license", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewLicenseResponse(lic))
}

// ReactivateLicense re-enables a deactivated license.
// POST /api/v1/admin/licenses/:key/reactivate
func (h *AdminHandler) ReactivateLicense(ctx *gin.Context) {
	lic, err := h.admin.Reactivate(ctx.Request.Context(), ctx.Param("key"))
	if err != nil {
		h.writeError(ctx, "reactivate license", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewLicenseResponse(lic))
}

func (h *AdminHandler) writeError(ctx *gin.Context, op string, err error) {
	switch {
	case licenses.IsValidationError(err):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, licenses.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
	case errors.Is(err, licenses.ErrDuplicateKey):
		ctx.JSON(http.StatusConflict, gin.H{"error": "License key already exists, retry the request"})
	default:
		slog.Error("Admin operation failed", "op", op, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
