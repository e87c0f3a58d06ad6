package handler

import (
	"errors"

	"market-escrow-api/internal/repository"
	"market-escrow-api/internal/service"
	"market-escrow-api/pkg/apierror"
)

// mapError translates store and service sentinel errors into API errors
// with the specific user-visible reason each rejection requires.
func mapError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apierror.NotFound("")
	case errors.Is(err, repository.ErrOutOfStock):
		return apierror.PreconditionFailed("out of stock")
	case errors.Is(err, repository.ErrOrderNotPending):
		return apierror.PreconditionFailed("order is not pending")
	case errors.Is(err, repository.ErrTransferFailed):
		return apierror.DeliveryFailed(err.Error())
	case errors.Is(err, service.ErrNotSeller):
		return apierror.PreconditionFailed("seller role required")
	case errors.Is(err, service.ErrNoUploadIntent):
		return apierror.PreconditionFailed("no upload intent set; declare a category first")
	case errors.Is(err, service.ErrFilenameRejected):
		return apierror.BadRequest("file type not allowed")
	case errors.Is(err, service.ErrInvalidAmount):
		return apierror.BadRequest("invalid amount")
	case errors.Is(err, service.ErrInsufficientBalance):
		return apierror.PreconditionFailed("amount exceeds balance")
	default:
		return err
	}
}
