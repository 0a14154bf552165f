package modules

// Config collects the tunable parameters of the pipeline. Values not set by
// the operator fall back to the defaults below.
type Config struct {
	// SegmentSize is the size of a full segment in bytes. Only the final
	// segment of a file may be shorter.
	SegmentSize uint64

	// PackSize bounds the size of a container article grouping several
	// segments.
	PackSize uint64

	// CompressionThreshold is the ratio a compressed segment must beat for
	// compression to be kept. A threshold of 0.9 keeps compression only
	// when it saves at least 10%.
	CompressionThreshold float64

	// RedundancyLevel is the number of replicas posted per segment, in
	// addition to the original. Bounded by MaxRedundancyLevel.
	RedundancyLevel int

	// UploadWorkers and DownloadWorkers bound the worker pools.
	UploadWorkers   int
	DownloadWorkers int

	// ScannerWorkers bounds the hashing parallelism of the scanner.
	ScannerWorkers int

	// MaxRetries bounds how often a task is retried before failing.
	MaxRetries int

	// MaxTasksPerFolder caps concurrent in-flight tasks per folder so a
	// single large folder cannot monopolize the worker pool.
	MaxTasksPerFolder int

	// SkipPatterns lists names excluded from scanning. This is policy, not
	// a hard rule; operators may override it.
	SkipPatterns []string

	// Newsgroup is the group segments are posted to.
	Newsgroup string
}

const (
	// DefaultSegmentSize is 768 KiB.
	DefaultSegmentSize = 768 * 1024

	// DefaultPackSize is 50 MiB.
	DefaultPackSize = 50 * 1024 * 1024

	// DefaultCompressionThreshold keeps compression only when it saves at
	// least 10%.
	DefaultCompressionThreshold = 0.9

	// MaxRedundancyLevel bounds the replica count encodable in segment ids
	// and pack headers.
	MaxRedundancyLevel = 15

	// DefaultWorkers is the default size of the upload and download pools.
	DefaultWorkers = 4

	// DefaultScannerWorkers is the default hashing parallelism.
	DefaultScannerWorkers = 8

	// DefaultMaxRetries bounds task retries.
	DefaultMaxRetries = 3

	// DefaultMaxTasksPerFolder caps per-folder queue occupancy.
	DefaultMaxTasksPerFolder = 2

	// DefaultNewsgroup is the posting group used when none is configured.
	DefaultNewsgroup = "alt.binaries.misc"

	// BackpressureFactor scales the worker count into the pending-queue
	// high-water mark that blocks new admissions.
	BackpressureFactor = 10
)

// DefaultSkipPatterns are the names excluded from scanning by default:
// dotfiles, interpreter caches, and VCS directories.
var DefaultSkipPatterns = []string{".*", "__pycache__", ".git", ".svn"}

// DefaultConfig returns a Config populated with the default values.
func DefaultConfig() Config {
	return Config{
		SegmentSize:          DefaultSegmentSize,
		PackSize:             DefaultPackSize,
		CompressionThreshold: DefaultCompressionThreshold,
		RedundancyLevel:      0,
		UploadWorkers:        DefaultWorkers,
		DownloadWorkers:      DefaultWorkers,
		ScannerWorkers:       DefaultScannerWorkers,
		MaxRetries:           DefaultMaxRetries,
		MaxTasksPerFolder:    DefaultMaxTasksPerFolder,
		SkipPatterns:         append([]string(nil), DefaultSkipPatterns...),
		Newsgroup:            DefaultNewsgroup,
	}
}
