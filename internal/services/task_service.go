package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"tareas/internal/models"
	"tareas/internal/store"
)

// ErrNotOwner is returned when a task belongs to a different user than
// the one attempting the mutation.
var ErrNotOwner = errors.New("task belongs to another user")

// TaskService handles the per-user task workflow.
type TaskService struct {
	store  store.DocumentStore
	events EventPublisher
}

// NewTaskService creates a new TaskService.
func NewTaskService(docs store.DocumentStore, events EventPublisher) *TaskService {
	return &TaskService{
		store:  docs,
		events: events,
	}
}

// List returns the tasks owned by uid, oldest first.
func (s *TaskService) List(ctx context.Context, uid string) ([]models.Task, error) {
	iter, err := s.store.Query(ctx, store.CollectionTasks, "uid", "==", uid)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks for %s: %w", uid, err)
	}

	var tasks []models.Task
	for {
		doc, err := iter.Next()
		if errors.Is(err, store.ErrIteratorDone) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tasks for %s: %w", uid, err)
		}
		tasks = append(tasks, models.TaskFromFields(doc.ID, doc.Fields))
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Create stores a new pending task owned by uid and returns its id.
func (s *TaskService) Create(ctx context.Context, uid, title, description string) (string, error) {
	fields := store.Fields{
		"titulo":         title,
		"descripcion":    description,
		"estado":         models.StatusPending,
		"uid":            uid,
		"fecha_creacion": store.ServerTimestamp,
	}
	id, err := s.store.Add(ctx, store.CollectionTasks, fields)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	publish(s.events, "task.created", map[string]any{"id": id, "uid": uid})
	return id, nil
}

// Get returns one task by id, for edit-form prefill.
func (s *TaskService) Get(ctx context.Context, id string) (models.Task, error) {
	fields, err := s.store.Get(ctx, store.CollectionTasks, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Task{}, err
		}
		return models.Task{}, fmt.Errorf("failed to load task %s: %w", id, err)
	}
	return models.TaskFromFields(id, fields), nil
}

// Update edits a task's title, description and status, stamping an
// update time. The task must exist and belong to uid; nothing is
// mutated otherwise.
func (s *TaskService) Update(ctx context.Context, id, uid, title, description, status string) error {
	fields, err := s.store.Get(ctx, store.CollectionTasks, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to load task %s: %w", id, err)
	}
	if owner, _ := fields["uid"].(string); owner != uid {
		return ErrNotOwner
	}

	err = s.store.UpdateFields(ctx, store.CollectionTasks, id, store.Fields{
		"titulo":              title,
		"descripcion":         description,
		"estado":              status,
		"fecha_actualizacion": store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}

	publish(s.events, "task.updated", map[string]any{"id": id, "uid": uid})
	return nil
}

// Delete removes a task by id.
// TODO: deletion does not verify ownership the way Update does; needs a
// product decision before tightening it.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, store.CollectionTasks, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}

	publish(s.events, "task.deleted", map[string]any{"id": id})
	return nil
}
