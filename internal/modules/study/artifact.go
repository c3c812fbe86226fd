package study

import (
	"encoding/json"
	"sort"
	"strings"
)

// KeyPoint is one extracted concept in a study guide.
type KeyPoint struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Importance  string `json:"importance"`
}

// ExamQuestion is one generated multiple-choice question.
type ExamQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// QuestionAnswer pairs a user question with its generated answer.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type keyPointsPayload struct {
	Points []KeyPoint `json:"points"`
}

type examPayload struct {
	Questions []ExamQuestion `json:"questions"`
}

type userQuestionsPayload struct {
	Results []QuestionAnswer `json:"results"`
}

// ArtifactKind selects which cached field an artifact lives in.
type ArtifactKind string

const (
	KindSummary   ArtifactKind = "summary"
	KindKeyPoints ArtifactKind = "key_points"
	KindExam      ArtifactKind = "exam_questions"
)

// Artifact is a tagged study result: Kind says which of the payload fields
// is meaningful. Summaries carry Text; the other kinds carry their list.
type Artifact struct {
	Kind      ArtifactKind
	Text      string
	KeyPoints []KeyPoint
	Questions []ExamQuestion
}

func emptyArtifact(kind ArtifactKind) Artifact {
	a := Artifact{Kind: kind}
	switch kind {
	case KindKeyPoints:
		a.KeyPoints = []KeyPoint{}
	case KindExam:
		a.Questions = []ExamQuestion{}
	}
	return a
}

// Valid reports whether the artifact is worth caching: lists must be
// non-empty, summaries must be non-empty and not a generation error echoed
// back as text.
func (a Artifact) Valid() bool {
	switch a.Kind {
	case KindKeyPoints:
		return len(a.KeyPoints) > 0
	case KindExam:
		return len(a.Questions) > 0
	case KindSummary:
		text := strings.TrimSpace(a.Text)
		if text == "" {
			return false
		}
		if strings.Contains(text, "Error") || strings.Contains(strings.ToLower(text), "помилка") {
			return false
		}
		return true
	}
	return false
}

// serialize produces the cache column representation: raw text for
// summaries, a JSON envelope for the structured kinds.
func (a Artifact) serialize() (string, error) {
	switch a.Kind {
	case KindKeyPoints:
		b, err := json.Marshal(keyPointsPayload{Points: a.KeyPoints})
		return string(b), err
	case KindExam:
		b, err := json.Marshal(examPayload{Questions: a.Questions})
		return string(b), err
	default:
		return a.Text, nil
	}
}

// deserializeArtifact rehydrates a cached column. The exam column may hold
// either the envelope or a bare question list, both shapes were written
// historically.
func deserializeArtifact(kind ArtifactKind, raw string) (Artifact, error) {
	a := Artifact{Kind: kind}
	switch kind {
	case KindKeyPoints:
		var payload keyPointsPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return a, err
		}
		a.KeyPoints = payload.Points
	case KindExam:
		var payload examPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil || payload.Questions == nil {
			var bare []ExamQuestion
			if bareErr := json.Unmarshal([]byte(raw), &bare); bareErr != nil {
				if err != nil {
					return a, err
				}
				return a, bareErr
			}
			a.Questions = bare
			return a, nil
		}
		a.Questions = payload.Questions
	default:
		a.Text = raw
	}
	return a, nil
}

// Fingerprint is the cache key for a document selection: the sorted,
// comma-joined document ids. An empty selection fingerprints to "" and maps
// to the whole-project cache row.
func Fingerprint(documentIDs []string) string {
	if len(documentIDs) == 0 {
		return ""
	}
	ids := make([]string, len(documentIDs))
	copy(ids, documentIDs)
	sort.Strings(ids)
	return strings.Join(ids, ",")
}
