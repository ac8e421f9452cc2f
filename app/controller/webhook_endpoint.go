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

type WebhookEndpointController struct {
	notifyService *service.NotifyService
	logger        logrus.FieldLogger
}

func NewWebhookEndpointController(notifyService *service.NotifyService) *WebhookEndpointController {
	return &WebhookEndpointController{
		notifyService: notifyService,
		logger:        factory.NewModuleLogger("webhook-endpoints-controller"),
	}
}

func (c *WebhookEndpointController) CreateEndpoint(ctx echo.Context) error {
	req, err := types.NewCreateWebhookEndpointRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.notifyService.CreateEndpoint(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return writeError(ctx, http.StatusBadRequest, err.Error())
		}
		c.logger.WithError(err).Error("Create endpoint failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	// The only response that includes the secret.
	return ctx.JSON(http.StatusCreated, &types.WebhookEndpointEnvelopeResponse{Endpoint: mapper.EndpointToCreatedResponse(item)})
}

func (c *WebhookEndpointController) GetEndpoint(ctx echo.Context) error {
	id, err := types.IDFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.notifyService.GetEndpoint(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrEndpointNotFound) {
			return writeError(ctx, http.StatusNotFound, "endpoint not found")
		}
		c.logger.WithError(err).Error("Get endpoint failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.WebhookEndpointEnvelopeResponse{Endpoint: mapper.EndpointToResponse(item)})
}

func (c *WebhookEndpointController) UpdateEndpoint(ctx echo.Context) error {
	req, err := types.NewUpdateWebhookEndpointRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.notifyService.UpdateEndpoint(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEndpointNotFound):
			return writeError(ctx, http.StatusNotFound, "endpoint not found")
		case errors.Is(err, service.ErrEndpointRevoked):
			return writeError(ctx, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrInvalidRequest):
			return writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			c.logger.WithError(err).Error("Update endpoint failed")
			return writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.WebhookEndpointEnvelopeResponse{Endpoint: mapper.EndpointToResponse(item)})
}

func (c *WebhookEndpointController) RevokeEndpoint(ctx echo.Context) error {
	id, err := types.IDFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.notifyService.RevokeEndpoint(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrEndpointNotFound) {
			return writeError(ctx, http.StatusNotFound, "endpoint not found")
		}
		c.logger.WithError(err).Error("Revoke endpoint failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.WebhookEndpointEnvelopeResponse{Endpoint: mapper.EndpointToResponse(item)})
}

func (c *WebhookEndpointController) ListEndpoints(ctx echo.Context) error {
	req, err := types.NewListWebhookEndpointsRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.notifyService.ListEndpoints(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return writeError(ctx, http.StatusBadRequest, err.Error())
		}
		c.logger.WithError(err).Error("List endpoints failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListWebhookEndpointsResponse{Endpoints: mapper.EndpointsToResponse(items)})
}
