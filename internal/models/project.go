package models

// ProjectModel groups a user's uploaded documents and chat history.
type ProjectModel struct {
	Base
	UserID      string `json:"user_id"     gorm:"index;not null"`
	Name        string `json:"name"        gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`
}

func (ProjectModel) TableName() string { return "projects" }
