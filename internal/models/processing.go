package models

// ProcessingStatus 单个文件在一次运行中的生命周期
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusError      ProcessingStatus = "error"
)

// IsFinished reports whether the record reached a terminal status.
func (s ProcessingStatus) IsFinished() bool {
	return s == StatusCompleted || s == StatusError
}

// Stage 仅用于进度展示的流水线检查点
type Stage string

const (
	StageUpload       Stage = "upload"
	StageLLMStart     Stage = "llm_start"
	StageLLMAnalyzing Stage = "llm_analyzing"
	StageLLMComplete  Stage = "llm_complete"
	StageParsing      Stage = "parsing"
	StageHTMLComplete Stage = "html_complete"
	StageProcessing   Stage = "processing"
	StageConverting   Stage = "converting"
	StageCompleted    Stage = "completed"
)

// ProcessingRecord 每个文件的瞬时处理状态
type ProcessingRecord struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Status         ProcessingStatus `json:"status"`
	Progress       int              `json:"progress"`
	Message        string           `json:"message,omitempty"`
	SubMessage     string           `json:"subMessage,omitempty"`
	Stage          Stage            `json:"stage,omitempty"`
	ElapsedSeconds int              `json:"elapsedTime"`
	DownloadURL    string           `json:"downloadUrl,omitempty"`
	HTMLContent    string           `json:"htmlContent,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// NewPendingRecord creates the initial record for a selected file.
func NewPendingRecord(f *UploadedFile) *ProcessingRecord {
	return &ProcessingRecord{
		ID:      f.ID,
		Name:    f.Name,
		Status:  StatusPending,
		Message: "等待处理",
	}
}

// AggregateProgress 所有记录进度的平均值
func AggregateProgress(records []ProcessingRecord) int {
	if len(records) == 0 {
		return 0
	}
	total := 0
	for _, r := range records {
		total += r.Progress
	}
	return total / len(records)
}
