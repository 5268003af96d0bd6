package handlers

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"tareas/internal/flash"
	"tareas/internal/middleware"
	"tareas/internal/models"
	"tareas/internal/services"
	"tareas/internal/store"
)

// TaskHandler handles the task list/create/edit/delete pages.
type TaskHandler struct {
	tasks    *services.TaskService
	sessions *session.Store
	validate *validator.Validate
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks *services.TaskService, sessions *session.Store) *TaskHandler {
	return &TaskHandler{
		tasks:    tasks,
		sessions: sessions,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the task routes. The router is expected to
// carry the session guard.
func (h *TaskHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/tareas/", h.HandleList)
	router.Get("/tareas/crear/", h.HandleCreateForm)
	router.Post("/tareas/crear/", h.HandleCreate)
	router.Get("/tareas/editar/:id", h.HandleEditForm)
	router.Post("/tareas/editar/:id", h.HandleEdit)
	router.Get("/tareas/eliminar/:id", h.HandleDelete)
}

// CreateTaskRequest represents the task creation form.
type CreateTaskRequest struct {
	Title       string `form:"titulo" validate:"required,max=200"`
	Description string `form:"descripcion" validate:"omitempty,max=1000"`
}

// EditTaskRequest represents the task edit form.
type EditTaskRequest struct {
	Title       string `form:"titulo" validate:"required,max=200"`
	Description string `form:"descripcion" validate:"omitempty,max=1000"`
	Status      string `form:"estado" validate:"required,max=50"`
}

// HandleList shows the caller's own tasks. A store failure yields an
// empty list plus a notice, never a hard failure.
func (h *TaskHandler) HandleList(c *fiber.Ctx) error {
	uid, _ := c.Locals(middleware.SessionUID).(string)

	bind := fiber.Map{
		"Messages": popFlash(c, h.sessions),
	}

	tasks, err := h.tasks.List(c.UserContext(), uid)
	if err != nil {
		log.Printf("Error listing tasks for %s: %v", uid, err)
		bind["Error"] = "could not load your tasks, try again later"
		tasks = nil
	}
	bind["Tareas"] = tasks

	return c.Render("tareas", bind)
}

// HandleCreateForm renders the empty creation form.
func (h *TaskHandler) HandleCreateForm(c *fiber.Ctx) error {
	return c.Render("crear_tarea", fiber.Map{})
}

// HandleCreate stores a new pending task owned by the session's UID.
func (h *TaskHandler) HandleCreate(c *fiber.Ctx) error {
	uid, _ := c.Locals(middleware.SessionUID).(string)

	var req CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing create-task form: %v", err)
		return c.Status(fiber.StatusBadRequest).Render("crear_tarea", fiber.Map{
			"Error": "invalid form submission",
		})
	}

	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).Render("crear_tarea", fiber.Map{
			"Errors":      validationMessages(err),
			"Title":       req.Title,
			"Description": req.Description,
		})
	}

	if _, err := h.tasks.Create(c.UserContext(), uid, req.Title, req.Description); err != nil {
		log.Printf("Error creating task for %s: %v", uid, err)
		return c.Render("crear_tarea", fiber.Map{
			"Error":       "could not save the task, try again",
			"Title":       req.Title,
			"Description": req.Description,
		})
	}

	addFlash(c, h.sessions, flash.LevelSuccess, "task created")
	return c.Redirect("/tareas/")
}

// HandleEditForm renders the edit form pre-filled with current fields.
func (h *TaskHandler) HandleEditForm(c *fiber.Ctx) error {
	uid, _ := c.Locals(middleware.SessionUID).(string)
	id := c.Params("id")

	task, err := h.tasks.Get(c.UserContext(), id)
	if err != nil {
		log.Printf("Error loading task %s: %v", id, err)
		if errors.Is(err, store.ErrNotFound) {
			addFlash(c, h.sessions, flash.LevelError, "task not found")
		} else {
			addFlash(c, h.sessions, flash.LevelError, "could not load the task, try again later")
		}
		return c.Redirect("/tareas/")
	}
	if task.OwnerUID != uid {
		log.Printf("Warning: user %s attempted to edit task %s owned by %s", uid, id, task.OwnerUID)
		addFlash(c, h.sessions, flash.LevelError, "you do not have permission to edit this task")
		return c.Redirect("/tareas/")
	}

	return c.Render("editar_tarea", fiber.Map{
		"Tarea": task,
	})
}

// HandleEdit applies a submitted edit, enforcing ownership.
func (h *TaskHandler) HandleEdit(c *fiber.Ctx) error {
	uid, _ := c.Locals(middleware.SessionUID).(string)
	id := c.Params("id")

	var req EditTaskRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing edit-task form: %v", err)
		addFlash(c, h.sessions, flash.LevelError, "invalid form submission")
		return c.Redirect("/tareas/")
	}

	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).Render("editar_tarea", fiber.Map{
			"Errors": validationMessages(err),
			"Tarea": models.Task{
				ID:          id,
				Title:       req.Title,
				Description: req.Description,
				Status:      req.Status,
			},
		})
	}

	err := h.tasks.Update(c.UserContext(), id, uid, req.Title, req.Description, req.Status)
	switch {
	case err == nil:
		addFlash(c, h.sessions, flash.LevelSuccess, "task updated")
	case errors.Is(err, store.ErrNotFound):
		addFlash(c, h.sessions, flash.LevelError, "task not found")
	case errors.Is(err, services.ErrNotOwner):
		log.Printf("Warning: user %s attempted to edit task %s without ownership", uid, id)
		addFlash(c, h.sessions, flash.LevelError, "you do not have permission to edit this task")
	default:
		log.Printf("Error updating task %s: %v", id, err)
		addFlash(c, h.sessions, flash.LevelError, "could not update the task, try again later")
	}

	return c.Redirect("/tareas/")
}

// HandleDelete removes a task and reports the outcome.
func (h *TaskHandler) HandleDelete(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.tasks.Delete(c.UserContext(), id); err != nil {
		log.Printf("Error deleting task %s: %v", id, err)
		addFlash(c, h.sessions, flash.LevelError, "could not delete the task, try again later")
	} else {
		addFlash(c, h.sessions, flash.LevelSuccess, "task deleted")
	}

	return c.Redirect("/tareas/")
}
