package project

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/studyspace/core/internal/models"
	"github.com/studyspace/core/internal/pkg/pagination"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:project_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ProjectModel{},
		&models.DocumentModel{},
		&models.DocumentChunkModel{},
		&models.ChatHistoryModel{},
		&models.ProjectAnalysisModel{},
		&models.ProjectAnalysisItemModel{},
	))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestGetOwnedEnforcesOwnership(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	created, err := svc.Create("owner", &CreateProjectDTO{Name: "mine"})
	require.NoError(t, err)

	p, err := svc.GetOwned("owner", created.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "mine", p.Name)

	// Another user sees nothing, same as a missing id.
	p, err = svc.GetOwned("intruder", created.ID)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = svc.GetOwned("owner", "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestListScopedToUser(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	for i := 0; i < 3; i++ {
		_, err := svc.Create("alice", &CreateProjectDTO{Name: fmt.Sprintf("a%d", i)})
		require.NoError(t, err)
	}
	_, err := svc.Create("bob", &CreateProjectDTO{Name: "b0"})
	require.NoError(t, err)

	items, pag, err := svc.List("alice", pagination.Query{Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.EqualValues(t, 3, pag.Total)

	items, _, err = svc.List("bob", pagination.Query{Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestUpdatePartial(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	created, err := svc.Create("u1", &CreateProjectDTO{Name: "old", Description: "desc"})
	require.NoError(t, err)

	name := "new"
	p, err := svc.Update("u1", created.ID, &UpdateProjectDTO{Name: &name})
	require.NoError(t, err)
	require.NotNil(t, p)

	fresh, err := svc.GetOwned("u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", fresh.Name)
	assert.Equal(t, "desc", fresh.Description)

	// Updating a foreign project is a silent miss.
	p, err = svc.Update("intruder", created.ID, &UpdateProjectDTO{Name: &name})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestDeleteCascades(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	created, err := svc.Create("u1", &CreateProjectDTO{Name: "p"})
	require.NoError(t, err)

	doc := models.DocumentModel{ProjectID: created.ID, Filename: "f.txt", FilePath: "/x", Status: models.DocumentCompleted}
	require.NoError(t, db.Create(&doc).Error)
	require.NoError(t, db.Create(&models.DocumentChunkModel{DocumentID: doc.ID, ChunkIndex: 0, ChunkText: "t"}).Error)
	require.NoError(t, db.Create(&models.ChatHistoryModel{ProjectID: created.ID, UserID: "u1", Question: "q", Answer: "a"}).Error)
	require.NoError(t, db.Create(&models.ProjectAnalysisModel{ProjectID: created.ID, Summary: "s"}).Error)

	require.NoError(t, svc.Delete("u1", created.ID))

	p, err := svc.GetOwned("u1", created.ID)
	require.NoError(t, err)
	assert.Nil(t, p)

	var count int64
	require.NoError(t, db.Model(&models.DocumentModel{}).Where("project_id = ?", created.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
	require.NoError(t, db.Model(&models.DocumentChunkModel{}).Where("document_id = ?", doc.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
	require.NoError(t, db.Model(&models.ChatHistoryModel{}).Where("project_id = ?", created.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
	require.NoError(t, db.Model(&models.ProjectAnalysisModel{}).Where("project_id = ?", created.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestDeleteForeignProject(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	created, err := svc.Create("u1", &CreateProjectDTO{Name: "p"})
	require.NoError(t, err)

	err = svc.Delete("intruder", created.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Still there for the owner.
	p, err := svc.GetOwned("u1", created.ID)
	require.NoError(t, err)
	assert.NotNil(t, p)
}
