package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"github.com/kursadbilgin/quota-dispatch/internal/service"
)

const (
	maxBulkMessages = 10000
	maxBulkDelay    = time.Minute
	formatCSV       = "csv"
	jobStatusQueued = "QUEUED"
)

type MessageDispatcher interface {
	Channel() domain.Channel
	SendOne(ctx context.Context, destination string, body string, preferred string) domain.DispatchResult
	SendBulk(ctx context.Context, messages []domain.Message, opts service.BulkOptions) *domain.BulkJob
}

type UsageReporter interface {
	GetCapacity() service.Capacity
	GetUsageReport() service.UsageReport
}

type ProviderToggler interface {
	SetEnabled(name string, enabled bool) error
}

type BulkEnqueuer interface {
	Enqueue(ctx context.Context, channel domain.Channel, messages []domain.Message, opts service.BulkOptions) (string, error)
}

type JobReader interface {
	GetByID(ctx context.Context, id string) (*domain.BulkJob, error)
}

// DispatchDeps wires the engine entry points behind the HTTP routes.
type DispatchDeps struct {
	Dispatchers []MessageDispatcher
	Reporter    UsageReporter
	Providers   ProviderToggler
	Jobs        JobReader
	// Queue is optional; without it ?async=true bulk requests are refused.
	Queue BulkEnqueuer
}

type DispatchHandler struct {
	dispatchers map[domain.Channel]MessageDispatcher
	reporter    UsageReporter
	providers   ProviderToggler
	jobs        JobReader
	queue       BulkEnqueuer
}

func NewDispatchHandler(deps DispatchDeps) (*DispatchHandler, error) {
	if len(deps.Dispatchers) == 0 {
		return nil, fmt.Errorf("at least one dispatcher is required")
	}
	if deps.Reporter == nil {
		return nil, fmt.Errorf("usage reporter is required")
	}
	if deps.Providers == nil {
		return nil, fmt.Errorf("provider toggler is required")
	}

	dispatchers := make(map[domain.Channel]MessageDispatcher, len(deps.Dispatchers))
	for _, d := range deps.Dispatchers {
		dispatchers[d.Channel()] = d
	}

	return &DispatchHandler{
		dispatchers: dispatchers,
		reporter:    deps.Reporter,
		providers:   deps.Providers,
		jobs:        deps.Jobs,
		queue:       deps.Queue,
	}, nil
}

func RegisterDispatchRoutes(router fiber.Router, deps DispatchDeps) error {
	h, err := NewDispatchHandler(deps)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/messages", h.SendMessage)
	v1.Post("/messages/bulk", h.SendBulk)
	v1.Get("/jobs/:id", h.GetJob)
	v1.Get("/capacity", h.GetCapacity)
	v1.Get("/usage", h.GetUsage)
	v1.Post("/providers/:name/enable", h.EnableProvider)
	v1.Post("/providers/:name/disable", h.DisableProvider)

	return nil
}

type sendMessageRequest struct {
	Channel           string `json:"channel"`
	Destination       string `json:"destination"`
	Body              string `json:"body"`
	PreferredProvider string `json:"preferredProvider"`
}

type bulkRequest struct {
	Channel           string           `json:"channel"`
	Messages          []domain.Message `json:"messages"`
	Concurrency       int              `json:"concurrency"`
	DelayMS           int64            `json:"delayMs"`
	PreferredProvider string           `json:"preferredProvider"`
}

type jobResponse struct {
	JobID       string                  `json:"jobId"`
	Channel     string                  `json:"channel"`
	Status      string                  `json:"status"`
	Concurrency int                     `json:"concurrency"`
	DelayMS     int64                   `json:"delayMs"`
	Summary     domain.BulkSummary      `json:"summary"`
	Results     []domain.DispatchResult `json:"results"`
	CreatedAt   time.Time               `json:"createdAt"`
}

func (h *DispatchHandler) SendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	dispatcher, err := h.dispatcher(req.Channel)
	if err != nil {
		return toHTTPError(err)
	}
	if strings.TrimSpace(req.Body) == "" {
		return toHTTPError(fmt.Errorf("%w: body is required", domain.ErrValidation))
	}

	result := dispatcher.SendOne(c.UserContext(), req.Destination, req.Body, req.PreferredProvider)
	return c.Status(resultStatus(result)).JSON(result)
}

func (h *DispatchHandler) SendBulk(c *fiber.Ctx) error {
	var req bulkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	dispatcher, err := h.dispatcher(req.Channel)
	if err != nil {
		return toHTTPError(err)
	}
	if err := validateBulkRequest(req); err != nil {
		return toHTTPError(err)
	}

	opts := service.BulkOptions{
		Concurrency: req.Concurrency,
		Delay:       time.Duration(req.DelayMS) * time.Millisecond,
		Preferred:   req.PreferredProvider,
	}

	if c.QueryBool("async") {
		return h.enqueueBulk(c, dispatcher.Channel(), req.Messages, opts)
	}

	job := dispatcher.SendBulk(c.UserContext(), req.Messages, opts)

	if wantsCSV(c) {
		return writeCSV(c, job)
	}
	return c.Status(fiber.StatusOK).JSON(toJobResponse(job))
}

func (h *DispatchHandler) enqueueBulk(c *fiber.Ctx, channel domain.Channel, messages []domain.Message, opts service.BulkOptions) error {
	if h.queue == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "async bulk dispatch is not configured")
	}

	jobID, err := h.queue.Enqueue(c.UserContext(), channel, messages, opts)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"jobId":  jobID,
		"status": jobStatusQueued,
	})
}

func (h *DispatchHandler) GetJob(c *fiber.Ctx) error {
	if h.jobs == nil {
		return fiber.NewError(fiber.StatusNotFound, "job store is not configured")
	}

	job, err := h.jobs.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	if wantsCSV(c) {
		return writeCSV(c, job)
	}
	return c.Status(fiber.StatusOK).JSON(toJobResponse(job))
}

func (h *DispatchHandler) GetCapacity(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.reporter.GetCapacity())
}

func (h *DispatchHandler) GetUsage(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.reporter.GetUsageReport())
}

func (h *DispatchHandler) EnableProvider(c *fiber.Ctx) error {
	return h.setEnabled(c, true)
}

func (h *DispatchHandler) DisableProvider(c *fiber.Ctx) error {
	return h.setEnabled(c, false)
}

func (h *DispatchHandler) setEnabled(c *fiber.Ctx, enabled bool) error {
	name := c.Params("name")
	if err := h.providers.SetEnabled(name, enabled); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"name":    name,
		"enabled": enabled,
	})
}

func (h *DispatchHandler) dispatcher(rawChannel string) (MessageDispatcher, error) {
	channel, err := domain.ParseChannelFromString(rawChannel)
	if err != nil {
		return nil, err
	}
	dispatcher, ok := h.dispatchers[channel]
	if !ok {
		return nil, fmt.Errorf("%w: channel %s is not configured", domain.ErrValidation, channel)
	}
	return dispatcher, nil
}

func validateBulkRequest(req bulkRequest) error {
	if len(req.Messages) == 0 {
		return fmt.Errorf("%w: messages is required", domain.ErrValidation)
	}
	if len(req.Messages) > maxBulkMessages {
		return fmt.Errorf("%w: at most %d messages per bulk request", domain.ErrValidation, maxBulkMessages)
	}
	if req.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must not be negative", domain.ErrValidation)
	}
	if req.DelayMS < 0 || time.Duration(req.DelayMS)*time.Millisecond > maxBulkDelay {
		return fmt.Errorf("%w: delayMs must be between 0 and %d", domain.ErrValidation, maxBulkDelay.Milliseconds())
	}
	return nil
}

func resultStatus(result domain.DispatchResult) int {
	switch {
	case result.Success:
		return fiber.StatusOK
	case errors.Is(result.Err, domain.ErrInvalidDestination):
		return fiber.StatusUnprocessableEntity
	case errors.Is(result.Err, domain.ErrNoProviderAvailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusBadGateway
	}
}

func wantsCSV(c *fiber.Ctx) bool {
	return strings.EqualFold(strings.TrimSpace(c.Query("format")), formatCSV)
}

func writeCSV(c *fiber.Ctx, job *domain.BulkJob) error {
	var buf bytes.Buffer
	if err := service.ExportResults(&buf, job.Results); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="job-%s.csv"`, job.ID))
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}

func toJobResponse(job *domain.BulkJob) jobResponse {
	return jobResponse{
		JobID:       job.ID,
		Channel:     job.Channel.String(),
		Status:      job.Summary.Status().String(),
		Concurrency: job.Concurrency,
		DelayMS:     job.Delay.Milliseconds(),
		Summary:     job.Summary,
		Results:     job.Results,
		CreatedAt:   job.CreatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
