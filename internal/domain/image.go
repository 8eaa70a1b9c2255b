package domain

var (
	ErrImageTypeNotSupported = NewError(KindValidation, "image type not supported")
	ErrImageTypeMismatch     = NewError(KindValidation, "image ext does not match content type")
	ErrImageTooLarge         = NewError(KindValidation, "image too large")
	// ErrInvalidImageReference is returned when a reference does not point at an uploaded image.
	ErrInvalidImageReference = NewError(KindValidation, "invalid image reference")
)

// ImageUploadResponse is returned for every stored upload. URL is the public
// reference to put into an item's image_url.
type ImageUploadResponse struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType"`
}
