package loaders

// Resource is the result of a loader: the decoded payload plus where it came from.
type Resource struct {
	Name     string
	FullPath string
	DataSize uint64
	Data     interface{}
}
