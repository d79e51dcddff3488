package handler

import (
	"net/http"
	"strconv"

	"github.com/drims/drims-backend/internal/relief/lock"
	"github.com/drims/drims-backend/internal/relief/repository"
	"github.com/drims/drims-backend/internal/relief/service"
	"github.com/drims/drims-backend/pkg/actor"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/httputil"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// PackageHandler handles relief package endpoints
type PackageHandler struct {
	packages *service.PackageService
	dispatch *service.DispatchService
	locker   *lock.PackageLocker
	logger   *logger.Logger
}

// NewPackageHandler creates a new package handler
func NewPackageHandler(packages *service.PackageService, dispatch *service.DispatchService, locker *lock.PackageLocker, log *logger.Logger) *PackageHandler {
	return &PackageHandler{
		packages: packages,
		dispatch: dispatch,
		locker:   locker,
		logger:   log,
	}
}

func packageID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "packageID"), 10, 64)
	if err != nil {
		return 0, errors.BadRequest("invalid package ID")
	}
	return id, nil
}

// CreateRequest is the body for creating a package
type CreateRequest struct {
	ReliefReqID int64 `json:"reliefreq_id" validate:"required,gt=0"`
}

// Create creates a draft package against a relief request
func (h *PackageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	pkg, err := h.packages.CreatePackage(r.Context(), req.ReliefReqID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, pkg)
}

// PackageResponse is a package with its allocation rows
type PackageResponse struct {
	*repository.ReliefPackage
	Items []*repository.ReliefPackageItem `json:"items"`
}

// Get returns a package with its allocation rows
func (h *PackageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := packageID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	pkg, rows, err := h.packages.GetPackage(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, &PackageResponse{ReliefPackage: pkg, Items: rows})
}

// Items returns a package's allocation rows
func (h *PackageHandler) Items(w http.ResponseWriter, r *http.Request) {
	id, err := packageID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	_, rows, err := h.packages.GetPackage(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rows)
}

// SaveAllocationsRequest is the body for saving a package's allocation plans
type SaveAllocationsRequest struct {
	VersionNbr int                          `json:"version_nbr" validate:"required,gt=0"`
	Plans      []service.ItemAllocationPlan `json:"plans" validate:"required,min=1"`
}

// SaveAllocations validates and persists the finalized allocation plans
func (h *PackageHandler) SaveAllocations(w http.ResponseWriter, r *http.Request) {
	id, err := packageID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req SaveAllocationsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.packages.SaveAllocations(r.Context(), id, req.VersionNbr, req.Plans); err != nil {
		httputil.Error(w, err)
		return
	}

	pkg, rows, err := h.packages.GetPackage(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, &PackageResponse{ReliefPackage: pkg, Items: rows})
}

// DispatchRequest is the body for dispatching a package
type DispatchRequest struct {
	VersionNbr int                          `json:"version_nbr" validate:"required,gt=0"`
	Plans      []service.ItemAllocationPlan `json:"plans,omitempty"`
}

// Dispatch commits a package for dispatch
func (h *PackageHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	id, err := packageID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req DispatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.dispatch.Dispatch(r.Context(), id, req.VersionNbr, req.Plans); err != nil {
		httputil.Error(w, err)
		return
	}

	pkg, rows, err := h.packages.GetPackage(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, &PackageResponse{ReliefPackage: pkg, Items: rows})
}

// Lock acquires the edit lock for a package on behalf of the caller
func (h *PackageHandler) Lock(w http.ResponseWriter, r *http.Request) {
	id, err := packageID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	a := actor.FromContext(r.Context())
	if a == nil {
		httputil.Error(w, errors.Unauthorized("authentication required"))
		return
	}

	if err := h.locker.Acquire(r.Context(), id, a.UserName); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"locked_by": a.UserName})
}

// Unlock releases the caller's edit lock for a package
func (h *PackageHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	id, err := packageID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	a := actor.FromContext(r.Context())
	if a == nil {
		httputil.Error(w, errors.Unauthorized("authentication required"))
		return
	}

	if err := h.locker.Release(r.Context(), id, a.UserName); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
