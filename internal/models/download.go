package models

// DownloadStatus 下载页每个条目的状态
type DownloadStatus string

const (
	DownloadReady       DownloadStatus = "ready"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadDownloaded  DownloadStatus = "downloaded"
)

// CanTransition reports whether moving from s to next is allowed:
// ready -> downloading -> downloaded, and downloading -> ready on failure.
// A downloaded item may be downloaded again.
func (s DownloadStatus) CanTransition(next DownloadStatus) bool {
	switch s {
	case DownloadReady, DownloadDownloaded:
		return next == DownloadDownloading
	case DownloadDownloading:
		return next == DownloadDownloaded || next == DownloadReady
	}
	return false
}

// DownloadItem FormatResult 在下载页的投影
type DownloadItem struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	OriginalName string         `json:"originalName"`
	DownloadURL  string         `json:"downloadUrl"`
	ObjectKey    string         `json:"-"`
	HTMLContent  string         `json:"htmlContent"`
	Status       DownloadStatus `json:"status"`
	Deleting     bool           `json:"deleting,omitempty"`
}

// NewDownloadItem projects a persisted result into a ready item.
func NewDownloadItem(r FormatResult) *DownloadItem {
	return &DownloadItem{
		ID:           r.ID,
		Name:         FormattedName(r.Name),
		OriginalName: r.Name,
		DownloadURL:  r.DownloadURL,
		ObjectKey:    r.ObjectKey,
		HTMLContent:  r.HTMLContent,
		Status:       DownloadReady,
	}
}
