package models

// ChatHistoryModel is one question/answer exchange in a project. Append-only.
type ChatHistoryModel struct {
	Base
	ProjectID string `json:"project_id" gorm:"index;not null"`
	UserID    string `json:"user_id"    gorm:"index;not null"`
	Question  string `json:"question"   gorm:"type:text;not null"`
	Answer    string `json:"answer"     gorm:"type:text;not null"`
}

func (ChatHistoryModel) TableName() string { return "chat_histories" }
