package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/stablepay-io/ms-go-notify/app/factory"
	"github.com/stablepay-io/ms-go-notify/app/mapper"
	"github.com/stablepay-io/ms-go-notify/app/service"
	"github.com/stablepay-io/ms-go-notify/app/types"
)

type PaymentController struct {
	notifyService *service.NotifyService
	logger        logrus.FieldLogger
}

func NewPaymentController(notifyService *service.NotifyService) *PaymentController {
	return &PaymentController{
		notifyService: notifyService,
		logger:        factory.NewModuleLogger("payments-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) CreatePayment(ctx echo.Context) error {
	req, err := types.NewCreatePaymentRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.notifyService.CreatePayment(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrPaymentAlreadyExists):
			return writeError(ctx, http.StatusConflict, err.Error())
		default:
			c.logger.WithError(err).Error("Create payment failed")
			return writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(item)})
}

func (c *PaymentController) GetPayment(ctx echo.Context) error {
	id, err := types.IDFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.notifyService.GetPayment(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			return writeError(ctx, http.StatusNotFound, "payment not found")
		}
		c.logger.WithError(err).Error("Get payment failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(item)})
}

func (c *PaymentController) ListPayments(ctx echo.Context) error {
	req, err := types.NewListPaymentsRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.notifyService.ListPayments(ctx.Request().Context(), req)
	if err != nil {
		c.logger.WithError(err).Error("List payments failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListPaymentsResponse{Payments: mapper.PaymentsToResponse(items)})
}

func writeError(ctx echo.Context, status int, message string) error {
	return ctx.JSON(status, &types.ErrorResponse{Error: message})
}
