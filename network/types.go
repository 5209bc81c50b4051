package network

type initUploadRequest struct {
	FileName      string `json:"fileName"`
	FileSize      int64  `json:"fileSize"`
	FileExtension string `json:"fileExtension"`
	ContentType   string `json:"contentType,omitempty"`
}

// InitUploadResponse is the multipart upload plan issued by the service.
type InitUploadResponse struct {
	UploadID      string         `json:"uploadId"`
	PartSize      int64          `json:"partSize"`
	TotalParts    int            `json:"totalParts"`
	UploadedParts []int          `json:"uploadedParts,omitempty"`
	PresignedURLs map[int]string `json:"presignedUrls"`
}

// GetUploadURLResponse is the answer of the finalize call.
type GetUploadURLResponse struct {
	URL string `json:"url"`
}

// SubmitRequest is the body of a conversion submit call.
type SubmitRequest struct {
	PDFURL            string `json:"pdfURL"`
	Model             string `json:"model"`
	IncludesFootnotes bool   `json:"includesFootnotes"`
	IgnorePDFErrors   bool   `json:"ignorePdfErrors"`
	IgnoreOCRErrors   bool   `json:"ignoreOcrErrors"`
}

// SubmitResponse ...
type SubmitResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionID,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ConversionResultData ...
type ConversionResultData struct {
	DownloadURL string `json:"downloadURL"`
}

// ConversionResult is one status report of a submitted conversion.
type ConversionResult struct {
	State string                `json:"state"`
	Data  *ConversionResultData `json:"data,omitempty"`
	Error string                `json:"error,omitempty"`
}
