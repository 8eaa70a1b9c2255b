package mediasvc

// MediaConfig holds configuration parameters for the media service.
type MediaConfig struct {
	// MaxSize is the maximum allowed file size for uploads in bytes.
	// Default is 5MiB.
	MaxSize int64 `env:"MAX_SIZE" default:"5242880"`
}
