package media

// Kind partitions media into the two pipeline paths.
type Kind string

const (
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)
