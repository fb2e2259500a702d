package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mjkirchner/tvrecorder/internal/models"
	"github.com/mjkirchner/tvrecorder/internal/scheduler"
	"github.com/mjkirchner/tvrecorder/internal/tuner"
)

// ScheduleHandler exposes the Schedule Queue over HTTP: listing what is
// queued, adding a new one-off schedule for an upstream program, and
// cancelling one.
type ScheduleHandler struct {
	queue *scheduler.Queue
	tuner *tuner.Client
}

// NewScheduleHandler constructs a ScheduleHandler over queue, using tuner
// to resolve a program id into its upstream Program before queuing it.
func NewScheduleHandler(queue *scheduler.Queue, tuner *tuner.Client) *ScheduleHandler {
	return &ScheduleHandler{queue: queue, tuner: tuner}
}

// Register registers the schedule routes with the API.
func (h *ScheduleHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSchedules",
		Method:      "GET",
		Path:        "/q/sched",
		Summary:     "List queued schedules",
		Description: "Returns every Schedule currently held in the Schedule Queue",
		Tags:        []string{"Schedules"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "addSchedule",
		Method:      "PUT",
		Path:        "/new/sched",
		Summary:     "Queue a new one-off schedule",
		Description: "Fetches the given program id from the upstream tuner and adds it to the Schedule Queue",
		Tags:        []string{"Schedules"},
	}, h.Add)

	huma.Register(api, huma.Operation{
		OperationID: "removeSchedule",
		Method:      "DELETE",
		Path:        "/q/sched",
		Summary:     "Cancel a queued schedule",
		Description: "Removes the Schedule matching the given program id, if any",
		Tags:        []string{"Schedules"},
	}, h.Remove)
}

// ListSchedulesInput is the input for listing schedules.
type ListSchedulesInput struct{}

// ListSchedulesOutput is the output for listing schedules.
type ListSchedulesOutput struct {
	Body struct {
		Schedules []models.Schedule `json:"schedules"`
	}
}

// List returns every queued Schedule.
func (h *ScheduleHandler) List(_ context.Context, _ *ListSchedulesInput) (*ListSchedulesOutput, error) {
	resp := &ListSchedulesOutput{}
	resp.Body.Schedules = h.queue.Snapshot()
	return resp, nil
}

// AddScheduleInput is the input for adding a schedule.
type AddScheduleInput struct {
	ProgramID int64 `query:"id" doc:"upstream program id to record"`
}

// AddScheduleOutput is the output for adding a schedule.
type AddScheduleOutput struct {
	Body models.Schedule
}

// Add fetches the program from the upstream tuner and queues an active,
// ad-hoc (PlanNone) Schedule for it.
func (h *ScheduleHandler) Add(ctx context.Context, input *AddScheduleInput) (*AddScheduleOutput, error) {
	program, err := h.tuner.GetProgram(ctx, input.ProgramID)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("fetching program from upstream tuner", err)
	}

	sched := models.Schedule{
		Program:  program,
		PlanID:   models.NonePlan(),
		IsActive: true,
	}

	if err := h.queue.Add(sched); err != nil {
		if errors.Is(err, models.ErrDuplicateSchedule) {
			return nil, huma.Error409Conflict(err.Error())
		}
		return nil, huma.Error500InternalServerError("queuing schedule", err)
	}

	return &AddScheduleOutput{Body: sched}, nil
}

// RemoveScheduleInput is the input for removing a schedule.
type RemoveScheduleInput struct {
	ProgramID int64 `query:"id" doc:"program id of the schedule to cancel"`
}

// RemoveScheduleOutput is the (empty-body) output for removing a
// schedule.
type RemoveScheduleOutput struct{}

// Remove cancels the Schedule for the given program id.
func (h *ScheduleHandler) Remove(_ context.Context, input *RemoveScheduleInput) (*RemoveScheduleOutput, error) {
	if !h.queue.Remove(input.ProgramID) {
		return nil, huma.Error404NotFound(models.ErrScheduleNotFound.Error())
	}
	return &RemoveScheduleOutput{}, nil
}
