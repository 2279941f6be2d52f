package models

import "time"

// Classification вердикт детектора.
type Classification string

const (
	ClassHuman Classification = "human"
	ClassAI    Classification = "ai"
	ClassMixed Classification = "mixed"
)

// Valid сообщает, известен ли вердикт.
func (c Classification) Valid() bool {
	switch c {
	case ClassHuman, ClassAI, ClassMixed:
		return true
	default:
		return false
	}
}

// Highlight фрагмент текста, отмеченный детектором.
type Highlight struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Reason string `json:"reason"`
}

// DetectionResult ответ внешнего сервиса детекции.
type DetectionResult struct {
	Classification  Classification `json:"classification"`
	ConfidenceScore float64        `json:"confidence_score"`
	Highlights      []Highlight    `json:"highlights"`
	Suggestions     []string       `json:"suggestions"`
}

// Analysis сохранённый результат анализа в истории пользователя.
type Analysis struct {
	ID              string         `json:"id"`
	UserUID         string         `json:"user_id"`
	Text            string         `json:"text"`
	Classification  Classification `json:"classification"`
	ConfidenceScore float64        `json:"confidence_score"`
	Highlights      []Highlight    `json:"highlights"`
	Suggestions     []string       `json:"suggestions"`
	CreatedAt       time.Time      `json:"created_at"`
}

// AnalysisRequest запрос на анализ текста.
type AnalysisRequest struct {
	Text     string `json:"text" validate:"required,max=50000"`
	FileName string `json:"file_name,omitempty"`
	FileType string `json:"file_type,omitempty"`
}
