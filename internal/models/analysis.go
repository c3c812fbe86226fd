package models

import "gorm.io/datatypes"

// ProjectAnalysisModel caches whole-project study artifacts. At most one row
// per project; individual fields are filled lazily as artifacts are generated.
type ProjectAnalysisModel struct {
	Base
	ProjectID     string         `json:"project_id"     gorm:"uniqueIndex;not null"`
	Summary       string         `json:"summary"        gorm:"type:text"`
	KeyPoints     string         `json:"key_points"     gorm:"type:text"`
	ExamQuestions datatypes.JSON `json:"exam_questions" gorm:"type:json"`
}

func (ProjectAnalysisModel) TableName() string { return "project_analyses" }

// ProjectAnalysisItemModel caches study artifacts for an explicit document
// selection. DocumentsHash is the sorted comma-joined document id list.
type ProjectAnalysisItemModel struct {
	Base
	ProjectID     string         `json:"project_id"     gorm:"index;not null;uniqueIndex:idx_project_hash"`
	DocumentsHash string         `json:"documents_hash" gorm:"not null;uniqueIndex:idx_project_hash"`
	Summary       string         `json:"summary"        gorm:"type:text"`
	KeyPoints     string         `json:"key_points"     gorm:"type:text"`
	ExamQuestions datatypes.JSON `json:"exam_questions" gorm:"type:json"`
}

func (ProjectAnalysisItemModel) TableName() string { return "project_analysis_items" }
