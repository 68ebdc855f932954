package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"taskhub/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// maxPage keeps (page-1)*pageSize inside a 32-bit OFFSET.
	maxPage = math.MaxInt32 / MaxPageSize
)

// FileStore persists uploaded bytes and returns the reference to record on
// the task.
type FileStore interface {
	Store(ctx context.Context, r io.Reader, filename, contentType string, size int64) (*models.Attachment, error)
}

// AttachmentReleaser frees a stored object that no task references anymore.
// Release is best-effort; failures are handled by the implementation.
type AttachmentReleaser interface {
	ReleaseAttachment(ctx context.Context, url string)
}

type TaskInput struct {
	Title       string  `json:"title" form:"title"`
	Description *string `json:"description" form:"description"`
}

// TaskPatch carries a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Done        *bool   `json:"done"`
	RemoveFile  bool    `json:"removeFile"`
}

type FileUpload struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Size        int64
}

type TaskPage struct {
	Tasks      []models.Task `json:"tasks"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	Total      int64         `json:"total"`
	TotalPages int           `json:"totalPages"`
}

type TaskService interface {
	ListPersonal(ctx context.Context, caller Caller) ([]models.Task, error)
	ListPersonalPage(ctx context.Context, caller Caller, page, pageSize int) (*TaskPage, error)
	Create(ctx context.Context, caller Caller, input TaskInput) (*models.Task, error)
	Update(ctx context.Context, caller Caller, id uuid.UUID, patch TaskPatch) (*models.Task, error)
	Delete(ctx context.Context, caller Caller, id uuid.UUID) (bool, error)
	AttachFile(ctx context.Context, caller Caller, id uuid.UUID, upload FileUpload) (*models.Attachment, error)

	ListGroupTasks(ctx context.Context, caller Caller, groupID uuid.UUID) ([]models.Task, error)
	CreateGroupTask(ctx context.Context, caller Caller, groupID uuid.UUID, input TaskInput) (*models.Task, error)

	ListUserTasks(ctx context.Context, caller Caller, userID uuid.UUID) ([]models.Task, error)
	ListAnyGroupTasks(ctx context.Context, caller Caller, groupID uuid.UUID) ([]models.Task, error)
}

type TaskServiceImpl struct {
	db       *gorm.DB
	files    FileStore
	releaser AttachmentReleaser
	log      *slog.Logger
}

func NewTaskService(db *gorm.DB, files FileStore, releaser AttachmentReleaser, log *slog.Logger) *TaskServiceImpl {
	return &TaskServiceImpl{db: db, files: files, releaser: releaser, log: log}
}

// NormalizePage clamps page to [1, maxPage] and pageSize to [1, MaxPageSize].
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func (s *TaskServiceImpl) ListPersonal(ctx context.Context, caller Caller) ([]models.Task, error) {
	tasks := []models.Task{}
	err := s.db.WithContext(ctx).
		Scopes(Personal, NewestFirst).
		Where("tasks.user_id = ?", caller.ID).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskServiceImpl) ListPersonalPage(ctx context.Context, caller Caller, page, pageSize int) (*TaskPage, error) {
	page, pageSize = NormalizePage(page, pageSize)
	personal := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Task{}).
			Scopes(Personal).
			Where("tasks.user_id = ?", caller.ID)
	}

	var total int64
	if err := personal().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	tasks := []models.Task{}
	err := personal().
		Scopes(NewestFirst).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if totalPages < 1 {
		totalPages = 1
	}

	return &TaskPage{
		Tasks:      tasks,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

func (s *TaskServiceImpl) Create(ctx context.Context, caller Caller, input TaskInput) (*models.Task, error) {
	task, err := newTask(caller, input)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

func (s *TaskServiceImpl) CreateGroupTask(ctx context.Context, caller Caller, groupID uuid.UUID, input TaskInput) (*models.Task, error) {
	if err := requireGroupAccess(ctx, s.db, groupID, caller); err != nil {
		return nil, err
	}
	task, err := newTask(caller, input)
	if err != nil {
		return nil, err
	}

	task.GroupID = &groupID
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("create group task: %w", err)
	}
	return task, nil
}

func newTask(caller Caller, input TaskInput) (*models.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("title is required")
	}

	task := &models.Task{Title: title, UserID: caller.ID}
	if input.Description != nil && *input.Description != "" {
		description := *input.Description
		task.Description = &description
	}
	return task, nil
}

func (s *TaskServiceImpl) Update(ctx context.Context, caller Caller, id uuid.UUID, patch TaskPatch) (*models.Task, error) {
	updates := map[string]interface{}{}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, validationError("title cannot be empty")
		}
		updates["title"] = title
	}
	if patch.Description != nil {
		if *patch.Description == "" {
			updates["description"] = nil
		} else {
			updates["description"] = *patch.Description
		}
	}
	if patch.Done != nil {
		updates["done"] = *patch.Done
	}

	var task models.Task
	var released string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Scopes(OwnedBy(caller)).First(&task, "tasks.id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("find task: %w", err)
		}

		if patch.RemoveFile && task.HasAttachment() {
			released = *task.FileURL
			var cleared *models.Attachment
			for column, value := range cleared.Columns() {
				updates[column] = value
			}
		}

		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&task).Updates(updates).Error; err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return tx.First(&task, "id = ?", task.ID).Error
	})
	if err != nil {
		return nil, err
	}

	if released != "" {
		s.releaser.ReleaseAttachment(ctx, released)
	}
	return &task, nil
}

// Delete reports whether a row matched. Callers decide whether a miss is an
// error.
func (s *TaskServiceImpl) Delete(ctx context.Context, caller Caller, id uuid.UUID) (bool, error) {
	var task models.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Scopes(OwnedBy(caller)).Select("id", "file_url").First(&task, "tasks.id = ?", id).Error
		if err != nil {
			return err
		}
		return tx.Delete(&models.Task{}, "id = ?", task.ID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}

	if task.HasAttachment() {
		s.releaser.ReleaseAttachment(ctx, *task.FileURL)
	}
	s.log.Debug("task deleted", "task_id", id, "by", caller.ID)
	return true, nil
}

// AttachFile checks access, stores the file and then records it on the task.
// The file_url being replaced is re-read under a row lock in the same
// transaction as the write, so the released object is always the one that was
// actually overwritten. A store that cannot be recorded is released again.
func (s *TaskServiceImpl) AttachFile(ctx context.Context, caller Caller, id uuid.UUID, upload FileUpload) (*models.Attachment, error) {
	if upload.Reader == nil {
		return nil, validationError("no file was uploaded")
	}

	var exists int64
	err := s.db.WithContext(ctx).Model(&models.Task{}).
		Scopes(OwnedBy(caller)).
		Where("tasks.id = ?", id).
		Count(&exists).Error
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	if exists == 0 {
		return nil, ErrTaskNotFound
	}

	attachment, err := s.files.Store(ctx, upload.Reader, upload.Filename, upload.ContentType, upload.Size)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	var replaced string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Scopes(OwnedBy(caller)).
			Select("id", "file_url").
			First(&task, "tasks.id = ?", id).Error
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Task{}).Where("id = ?", task.ID).Updates(attachment.Columns()).Error; err != nil {
			return err
		}
		if task.HasAttachment() && *task.FileURL != attachment.URL {
			replaced = *task.FileURL
		}
		return nil
	})
	if err != nil {
		s.releaser.ReleaseAttachment(ctx, attachment.URL)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("record attachment: %w", err)
	}

	if replaced != "" {
		s.releaser.ReleaseAttachment(ctx, replaced)
	}

	s.log.Info("attachment stored", "task_id", id, "url", attachment.URL, "mime_type", attachment.MimeType)
	return attachment, nil
}

func (s *TaskServiceImpl) ListGroupTasks(ctx context.Context, caller Caller, groupID uuid.UUID) ([]models.Task, error) {
	if err := requireGroupAccess(ctx, s.db, groupID, caller); err != nil {
		return nil, err
	}
	return s.groupTasks(ctx, groupID)
}

func (s *TaskServiceImpl) ListUserTasks(ctx context.Context, caller Caller, userID uuid.UUID) ([]models.Task, error) {
	if !caller.IsAdmin() {
		return nil, ErrAdminRequired
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if count == 0 {
		return nil, ErrUserNotFound
	}

	tasks := []models.Task{}
	err := s.db.WithContext(ctx).
		Scopes(Personal, NewestFirst).
		Where("tasks.user_id = ?", userID).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list user tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskServiceImpl) ListAnyGroupTasks(ctx context.Context, caller Caller, groupID uuid.UUID) ([]models.Task, error) {
	if !caller.IsAdmin() {
		return nil, ErrAdminRequired
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Group{}).Where("id = ?", groupID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("find group: %w", err)
	}
	if count == 0 {
		return nil, ErrGroupNotFound
	}
	return s.groupTasks(ctx, groupID)
}

func (s *TaskServiceImpl) groupTasks(ctx context.Context, groupID uuid.UUID) ([]models.Task, error) {
	tasks := []models.Task{}
	err := s.db.WithContext(ctx).
		Scopes(WithOwnerName, NewestFirst).
		Where("tasks.group_id = ?", groupID).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list group tasks: %w", err)
	}
	return tasks, nil
}
