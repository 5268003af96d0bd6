package models

import "time"

// StatusPending is the status every task starts in.
const StatusPending = "Pending"

// Task represents a to-do document stored in the "tareas" collection,
// keyed by a store-generated identifier. OwnerUID is set at creation and
// never changes afterwards.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"titulo" validate:"required,max=200"`
	Description string    `json:"descripcion" validate:"omitempty,max=1000"`
	Status      string    `json:"estado"`
	OwnerUID    string    `json:"uid"`
	CreatedAt   time.Time `json:"fecha_creacion"`
	UpdatedAt   time.Time `json:"fecha_actualizacion"`
}

// TaskFromFields rebuilds a Task from a raw document read.
// Missing or mistyped fields are left at their zero value.
func TaskFromFields(id string, fields map[string]any) Task {
	t := Task{ID: id}
	if v, ok := fields["titulo"].(string); ok {
		t.Title = v
	}
	if v, ok := fields["descripcion"].(string); ok {
		t.Description = v
	}
	if v, ok := fields["estado"].(string); ok {
		t.Status = v
	}
	if v, ok := fields["uid"].(string); ok {
		t.OwnerUID = v
	}
	if v, ok := fields["fecha_creacion"].(time.Time); ok {
		t.CreatedAt = v
	}
	if v, ok := fields["fecha_actualizacion"].(time.Time); ok {
		t.UpdatedAt = v
	}
	return t
}
