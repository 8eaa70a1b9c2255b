package imagesvc

// ImageConfig holds configuration parameters for the image service.
type ImageConfig struct {
	// Interpolator specifies the image scaling algorithm to use.
	// Valid values are: "nearestneighbor", "catmullrom", "bilinear", "approxbilinear"
	Interpolator string `env:"INTERPOLATOR" default:"catmullrom"`

	// MaxDimension caps the requested width and height of resized images.
	MaxDimension int `env:"MAX_DIMENSION" default:"4096"`

	// PublicBaseURL is prepended to media references returned by uploads,
	// e.g. "https://joynest.example". Empty yields host-relative references.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" default:""`
}
