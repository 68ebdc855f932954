package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"taskhub/backend/internal/models"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type TaskServiceTestSuite struct {
	suite.Suite
	db       *gorm.DB
	store    *fakeStore
	releaser *fakeReleaser
	service  *TaskServiceImpl
	ctx      context.Context

	alice, bob, admin *models.User
}

func (suite *TaskServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.store = &fakeStore{}
	suite.releaser = &fakeReleaser{}
	suite.service = NewTaskService(suite.db, suite.store, suite.releaser, quietLogger())
	suite.ctx = context.Background()

	suite.alice = createUser(suite.T(), suite.db, "alice", models.RoleUser)
	suite.bob = createUser(suite.T(), suite.db, "bob", models.RoleUser)
	suite.admin = createUser(suite.T(), suite.db, "admin", models.RoleAdmin)
}

func (suite *TaskServiceTestSuite) caller(u *models.User) Caller {
	return CallerFromUser(u)
}

func (suite *TaskServiceTestSuite) upload(content string) FileUpload {
	return FileUpload{Reader: strings.NewReader(content), Filename: "notes.txt", ContentType: "text/plain", Size: int64(len(content))}
}

func (suite *TaskServiceTestSuite) TestCreate_TrimsTitleAndOwnsTask() {
	description := "details"
	task, err := suite.service.Create(suite.ctx, suite.caller(suite.alice), TaskInput{Title: "  Buy milk ", Description: &description})
	suite.Require().NoError(err)

	suite.Equal("Buy milk", task.Title)
	suite.Equal(suite.alice.ID, task.UserID)
	suite.Nil(task.GroupID)
	suite.False(task.Done)
	suite.Require().NotNil(task.Description)
	suite.Equal("details", *task.Description)
}

func (suite *TaskServiceTestSuite) TestCreate_RequiresTitle() {
	_, err := suite.service.Create(suite.ctx, suite.caller(suite.alice), TaskInput{Title: "   "})
	suite.ErrorIs(err, ErrValidation)
}

func (suite *TaskServiceTestSuite) TestListPersonal_OnlyOwnUngroupedNewestFirst() {
	base := time.Now().Add(-time.Hour)
	createTask(suite.T(), suite.db, suite.alice, "older", nil, base)
	createTask(suite.T(), suite.db, suite.alice, "newer", nil, base.Add(time.Minute))
	createTask(suite.T(), suite.db, suite.bob, "bob's", nil, base)

	group := models.Group{Name: "g"}
	suite.Require().NoError(suite.db.Create(&group).Error)
	createTask(suite.T(), suite.db, suite.alice, "group task", &group.ID, base.Add(2*time.Minute))

	tasks, err := suite.service.ListPersonal(suite.ctx, suite.caller(suite.alice))
	suite.Require().NoError(err)
	suite.Require().Len(tasks, 2)
	suite.Equal("newer", tasks[0].Title)
	suite.Equal("older", tasks[1].Title)

	// Admins get their own list here too.
	tasks, err = suite.service.ListPersonal(suite.ctx, suite.caller(suite.admin))
	suite.Require().NoError(err)
	suite.Empty(tasks)
}

func (suite *TaskServiceTestSuite) TestListPersonalPage() {
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		createTask(suite.T(), suite.db, suite.alice, "task", nil, base.Add(time.Duration(i)*time.Second))
	}

	page, err := suite.service.ListPersonalPage(suite.ctx, suite.caller(suite.alice), 3, 10)
	suite.Require().NoError(err)
	suite.Equal(int64(25), page.Total)
	suite.Equal(3, page.TotalPages)
	suite.Equal(3, page.Page)
	suite.Len(page.Tasks, 5)

	page, err = suite.service.ListPersonalPage(suite.ctx, suite.caller(suite.bob), 0, 0)
	suite.Require().NoError(err)
	suite.Equal(1, page.Page)
	suite.Equal(DefaultPageSize, page.PageSize)
	suite.Equal(1, page.TotalPages)
	suite.NotNil(page.Tasks)
	suite.Empty(page.Tasks)
}

func (suite *TaskServiceTestSuite) TestNormalizePage() {
	page, size := NormalizePage(-4, 1000)
	suite.Equal(1, page)
	suite.Equal(MaxPageSize, size)

	page, size = NormalizePage(2, 25)
	suite.Equal(2, page)
	suite.Equal(25, size)

	page, size = NormalizePage(math.MaxInt, MaxPageSize)
	suite.Equal(maxPage, page)
	suite.LessOrEqual(int64(page-1)*int64(size), int64(math.MaxInt32))
}

func (suite *TaskServiceTestSuite) TestListPersonalPage_HugePageIsEmpty() {
	createTask(suite.T(), suite.db, suite.alice, "only", nil, time.Now())

	page, err := suite.service.ListPersonalPage(suite.ctx, suite.caller(suite.alice), math.MaxInt, 10)
	suite.Require().NoError(err)
	suite.Equal(maxPage, page.Page)
	suite.Equal(int64(1), page.Total)
	suite.Empty(page.Tasks)
}

func (suite *TaskServiceTestSuite) TestUpdate_PartialFields() {
	task := createTask(suite.T(), suite.db, suite.alice, "original", nil, time.Now())

	updated, err := suite.service.Update(suite.ctx, suite.caller(suite.alice), task.ID, TaskPatch{Done: boolPtr(true)})
	suite.Require().NoError(err)
	suite.True(updated.Done)
	suite.Equal("original", updated.Title)

	updated, err = suite.service.Update(suite.ctx, suite.caller(suite.alice), task.ID, TaskPatch{Title: strPtr("renamed")})
	suite.Require().NoError(err)
	suite.Equal("renamed", updated.Title)
	suite.True(updated.Done)

	_, err = suite.service.Update(suite.ctx, suite.caller(suite.alice), task.ID, TaskPatch{Title: strPtr(" ")})
	suite.ErrorIs(err, ErrValidation)
}

func (suite *TaskServiceTestSuite) TestUpdate_EmptyDescriptionClears() {
	description := "details"
	task, err := suite.service.Create(suite.ctx, suite.caller(suite.alice), TaskInput{Title: "t", Description: &description})
	suite.Require().NoError(err)

	updated, err := suite.service.Update(suite.ctx, suite.caller(suite.alice), task.ID, TaskPatch{Description: strPtr("")})
	suite.Require().NoError(err)
	suite.Nil(updated.Description)

	var stored models.Task
	suite.Require().NoError(suite.db.First(&stored, "id = ?", task.ID).Error)
	suite.Nil(stored.Description)

	empty, err := suite.service.Create(suite.ctx, suite.caller(suite.alice), TaskInput{Title: "t", Description: strPtr("")})
	suite.Require().NoError(err)
	suite.Nil(empty.Description)
}

func (suite *TaskServiceTestSuite) TestUpdate_ForeignTaskIsNotFound() {
	task := createTask(suite.T(), suite.db, suite.alice, "private", nil, time.Now())

	_, err := suite.service.Update(suite.ctx, suite.caller(suite.bob), task.ID, TaskPatch{Title: strPtr("hijacked")})
	suite.ErrorIs(err, ErrTaskNotFound)

	var stored models.Task
	suite.Require().NoError(suite.db.First(&stored, "id = ?", task.ID).Error)
	suite.Equal("private", stored.Title)

	_, err = suite.service.Update(suite.ctx, suite.caller(suite.alice), uuid.Must(uuid.NewV4()), TaskPatch{Done: boolPtr(true)})
	suite.ErrorIs(err, ErrNotFound)
}

func (suite *TaskServiceTestSuite) TestUpdate_AdminCanEditAnyTask() {
	task := createTask(suite.T(), suite.db, suite.alice, "private", nil, time.Now())

	updated, err := suite.service.Update(suite.ctx, suite.caller(suite.admin), task.ID, TaskPatch{Done: boolPtr(true)})
	suite.Require().NoError(err)
	suite.True(updated.Done)
	suite.Equal(suite.alice.ID, updated.UserID)
}

func (suite *TaskServiceTestSuite) TestUpdate_RemoveFileClearsAndReleases() {
	task := createTask(suite.T(), suite.db, suite.alice, "with file", nil, time.Now())
	attachment := &models.Attachment{URL: "/uploads/a.txt", OriginalFilename: "a.txt", MimeType: "text/plain"}
	suite.Require().NoError(suite.db.Model(task).Updates(attachment.Columns()).Error)

	updated, err := suite.service.Update(suite.ctx, suite.caller(suite.alice), task.ID, TaskPatch{RemoveFile: true})
	suite.Require().NoError(err)
	suite.Nil(updated.FileURL)
	suite.Nil(updated.OriginalFilename)
	suite.Nil(updated.MimeType)
	suite.Equal([]string{"/uploads/a.txt"}, suite.releaser.urls())

	// Removing again is a no-op.
	_, err = suite.service.Update(suite.ctx, suite.caller(suite.alice), task.ID, TaskPatch{RemoveFile: true})
	suite.Require().NoError(err)
	suite.Len(suite.releaser.urls(), 1)
}

func (suite *TaskServiceTestSuite) TestDelete() {
	task := createTask(suite.T(), suite.db, suite.alice, "doomed", nil, time.Now())
	suite.Require().NoError(suite.db.Model(task).Update("file_url", "/uploads/doomed.txt").Error)

	deleted, err := suite.service.Delete(suite.ctx, suite.caller(suite.bob), task.ID)
	suite.Require().NoError(err)
	suite.False(deleted)

	deleted, err = suite.service.Delete(suite.ctx, suite.caller(suite.alice), task.ID)
	suite.Require().NoError(err)
	suite.True(deleted)
	suite.Equal([]string{"/uploads/doomed.txt"}, suite.releaser.urls())

	deleted, err = suite.service.Delete(suite.ctx, suite.caller(suite.alice), task.ID)
	suite.Require().NoError(err)
	suite.False(deleted)

	var count int64
	suite.db.Model(&models.Task{}).Where("id = ?", task.ID).Count(&count)
	suite.Zero(count)
}

func (suite *TaskServiceTestSuite) TestAttachFile_RecordsAndReplaces() {
	task := createTask(suite.T(), suite.db, suite.alice, "report", nil, time.Now())

	first, err := suite.service.AttachFile(suite.ctx, suite.caller(suite.alice), task.ID, suite.upload("v1"))
	suite.Require().NoError(err)
	suite.Equal("notes.txt", first.OriginalFilename)

	var stored models.Task
	suite.Require().NoError(suite.db.First(&stored, "id = ?", task.ID).Error)
	suite.Require().NotNil(stored.FileURL)
	suite.Equal(first.URL, *stored.FileURL)
	suite.Equal("text/plain", *stored.MimeType)

	second, err := suite.service.AttachFile(suite.ctx, suite.caller(suite.alice), task.ID, suite.upload("v2"))
	suite.Require().NoError(err)
	suite.NotEqual(first.URL, second.URL)
	suite.Equal([]string{first.URL}, suite.releaser.urls())
}

func (suite *TaskServiceTestSuite) TestAttachFile_ForeignTaskStoresNothing() {
	task := createTask(suite.T(), suite.db, suite.alice, "report", nil, time.Now())

	_, err := suite.service.AttachFile(suite.ctx, suite.caller(suite.bob), task.ID, suite.upload("evil"))
	suite.ErrorIs(err, ErrTaskNotFound)
	suite.Empty(suite.store.stored)
}

func (suite *TaskServiceTestSuite) TestAttachFile_ReleasesWhenTaskVanishes() {
	task := createTask(suite.T(), suite.db, suite.alice, "report", nil, time.Now())
	suite.store.onStore = func() {
		suite.db.Delete(&models.Task{}, "id = ?", task.ID)
	}

	_, err := suite.service.AttachFile(suite.ctx, suite.caller(suite.alice), task.ID, suite.upload("late"))
	suite.ErrorIs(err, ErrTaskNotFound)
	suite.Require().Len(suite.store.stored, 1)
	suite.Equal(suite.store.stored, suite.releaser.urls())
}

func (suite *TaskServiceTestSuite) TestAttachFile_ReleasesFileReplacedDuringStore() {
	task := createTask(suite.T(), suite.db, suite.alice, "report", nil, time.Now())
	suite.Require().NoError(suite.db.Model(task).Update("file_url", "/uploads/original.txt").Error)
	suite.store.onStore = func() {
		suite.db.Model(&models.Task{}).Where("id = ?", task.ID).Update("file_url", "/uploads/concurrent.txt")
	}

	attachment, err := suite.service.AttachFile(suite.ctx, suite.caller(suite.alice), task.ID, suite.upload("mine"))
	suite.Require().NoError(err)
	suite.Equal([]string{"/uploads/concurrent.txt"}, suite.releaser.urls())

	var stored models.Task
	suite.Require().NoError(suite.db.First(&stored, "id = ?", task.ID).Error)
	suite.Require().NotNil(stored.FileURL)
	suite.Equal(attachment.URL, *stored.FileURL)
}

func (suite *TaskServiceTestSuite) TestAttachFile_StoreFailure() {
	task := createTask(suite.T(), suite.db, suite.alice, "report", nil, time.Now())
	suite.store.err = errors.New("disk full")

	_, err := suite.service.AttachFile(suite.ctx, suite.caller(suite.alice), task.ID, suite.upload("x"))
	suite.Error(err)

	_, err = suite.service.AttachFile(suite.ctx, suite.caller(suite.alice), task.ID, FileUpload{})
	suite.ErrorIs(err, ErrValidation)
}

func (suite *TaskServiceTestSuite) TestGroupTasks_RequireAcceptedMembership() {
	group := models.Group{Name: "team", Members: []models.GroupMember{
		{UserID: suite.alice.ID, Role: models.MemberRoleAdmin, Status: models.MemberStatusAccepted},
		{UserID: suite.bob.ID, Role: models.MemberRoleMember, Status: models.MemberStatusPending},
	}}
	suite.Require().NoError(suite.db.Create(&group).Error)

	task, err := suite.service.CreateGroupTask(suite.ctx, suite.caller(suite.alice), group.ID, TaskInput{Title: "shared"})
	suite.Require().NoError(err)
	suite.Require().NotNil(task.GroupID)
	suite.Equal(group.ID, *task.GroupID)

	tasks, err := suite.service.ListGroupTasks(suite.ctx, suite.caller(suite.alice), group.ID)
	suite.Require().NoError(err)
	suite.Require().Len(tasks, 1)
	suite.Require().NotNil(tasks[0].User)
	suite.Equal("alice", tasks[0].User.Name)
	suite.Empty(tasks[0].User.Email)

	_, err = suite.service.ListGroupTasks(suite.ctx, suite.caller(suite.bob), group.ID)
	suite.ErrorIs(err, ErrNotGroupMember)
	_, err = suite.service.CreateGroupTask(suite.ctx, suite.caller(suite.bob), group.ID, TaskInput{Title: "nope"})
	suite.ErrorIs(err, ErrForbidden)
	// Membership is decided before the body is validated.
	_, err = suite.service.CreateGroupTask(suite.ctx, suite.caller(suite.bob), group.ID, TaskInput{Title: " "})
	suite.ErrorIs(err, ErrNotGroupMember)
	_, err = suite.service.CreateGroupTask(suite.ctx, suite.caller(suite.alice), uuid.Must(uuid.NewV4()), TaskInput{})
	suite.ErrorIs(err, ErrGroupNotFound)
	_, err = suite.service.CreateGroupTask(suite.ctx, suite.caller(suite.alice), group.ID, TaskInput{Title: " "})
	suite.ErrorIs(err, ErrValidation)

	// No admin bypass on member routes.
	_, err = suite.service.ListGroupTasks(suite.ctx, suite.caller(suite.admin), group.ID)
	suite.ErrorIs(err, ErrNotGroupMember)

	_, err = suite.service.ListGroupTasks(suite.ctx, suite.caller(suite.alice), uuid.Must(uuid.NewV4()))
	suite.ErrorIs(err, ErrGroupNotFound)

	// Group tasks stay out of the personal list.
	personal, err := suite.service.ListPersonal(suite.ctx, suite.caller(suite.alice))
	suite.Require().NoError(err)
	suite.Empty(personal)
}

func (suite *TaskServiceTestSuite) TestAdminListings() {
	createTask(suite.T(), suite.db, suite.alice, "mine", nil, time.Now())
	group := models.Group{Name: "team"}
	suite.Require().NoError(suite.db.Create(&group).Error)
	createTask(suite.T(), suite.db, suite.bob, "group", &group.ID, time.Now())

	_, err := suite.service.ListUserTasks(suite.ctx, suite.caller(suite.bob), suite.alice.ID)
	suite.ErrorIs(err, ErrAdminRequired)

	tasks, err := suite.service.ListUserTasks(suite.ctx, suite.caller(suite.admin), suite.alice.ID)
	suite.Require().NoError(err)
	suite.Len(tasks, 1)

	_, err = suite.service.ListUserTasks(suite.ctx, suite.caller(suite.admin), uuid.Must(uuid.NewV4()))
	suite.ErrorIs(err, ErrUserNotFound)

	tasks, err = suite.service.ListAnyGroupTasks(suite.ctx, suite.caller(suite.admin), group.ID)
	suite.Require().NoError(err)
	suite.Require().Len(tasks, 1)
	suite.Require().NotNil(tasks[0].User)
	suite.Equal("bob", tasks[0].User.Name)

	_, err = suite.service.ListAnyGroupTasks(suite.ctx, suite.caller(suite.admin), uuid.Must(uuid.NewV4()))
	suite.ErrorIs(err, ErrGroupNotFound)
}

func TestTaskServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TaskServiceTestSuite))
}
