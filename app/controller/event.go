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

type EventController struct {
	notifyService *service.NotifyService
	logger        logrus.FieldLogger
}

func NewEventController(notifyService *service.NotifyService) *EventController {
	return &EventController{
		notifyService: notifyService,
		logger:        factory.NewModuleLogger("events-controller"),
	}
}

func (c *EventController) GetEvent(ctx echo.Context) error {
	id, err := types.IDFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.notifyService.GetEvent(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrEventNotFound) {
			return writeError(ctx, http.StatusNotFound, "event not found")
		}
		c.logger.WithError(err).Error("Get event failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.EventEnvelopeResponse{Event: mapper.EventToResponse(item)})
}

func (c *EventController) ListEvents(ctx echo.Context) error {
	req, err := types.NewListEventsRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.notifyService.ListEvents(ctx.Request().Context(), req)
	if err != nil {
		c.logger.WithError(err).Error("List events failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListEventsResponse{Events: mapper.EventsToResponse(items)})
}

func (c *EventController) ListEventDeliveries(ctx echo.Context) error {
	id, err := types.IDFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.notifyService.ListEventDeliveries(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrEventNotFound) {
			return writeError(ctx, http.StatusNotFound, "event not found")
		}
		c.logger.WithError(err).Error("List event deliveries failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListDeliveriesResponse{Deliveries: mapper.DeliveriesToResponse(items)})
}

func (c *EventController) ListDeliveries(ctx echo.Context) error {
	req, err := types.NewListDeliveriesRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.notifyService.ListDeliveries(ctx.Request().Context(), req)
	if err != nil {
		c.logger.WithError(err).Error("List deliveries failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListDeliveriesResponse{Deliveries: mapper.DeliveriesToResponse(items)})
}
