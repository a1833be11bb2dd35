package models

// ContentType is the image category reported by the content gate.
type ContentType string

const (
	ContentHomework      ContentType = "homework"
	ContentTextbook      ContentType = "textbook"
	ContentNotes         ContentType = "notes"
	ContentDiagram       ContentType = "diagram"
	ContentInappropriate ContentType = "inappropriate"
	ContentUnclear       ContentType = "unclear"
	ContentOther         ContentType = "other"
)

// VisionVerdict is the content gate's classification of one image.
type VisionVerdict struct {
	IsEducational bool        `json:"is_educational"`
	ContentType   ContentType `json:"content_type"`
}
