package models

// DocumentStatus is the ingestion lifecycle state of an uploaded document.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// DocumentModel is an uploaded source file belonging to a project.
type DocumentModel struct {
	Base
	ProjectID string         `json:"project_id" gorm:"index;not null"`
	Filename  string         `json:"filename"   gorm:"not null"`
	FilePath  string         `json:"-"          gorm:"not null"`
	Status    DocumentStatus `json:"status"     gorm:"type:varchar(16);default:'pending';index"`
}

func (DocumentModel) TableName() string { return "documents" }

// DocumentChunkModel is an embedded slice of a document's extracted text.
// ChunkIndex is the zero-based emission order within the document.
type DocumentChunkModel struct {
	Base
	DocumentID string `json:"document_id" gorm:"index;not null;uniqueIndex:idx_doc_chunk"`
	ChunkIndex int    `json:"chunk_index" gorm:"not null;uniqueIndex:idx_doc_chunk"`
	ChunkText  string `json:"chunk_text"  gorm:"type:text;not null"`
	Embedding  Vector `json:"-"           gorm:"type:text"`
}

func (DocumentChunkModel) TableName() string { return "document_chunks" }
