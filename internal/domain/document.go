package domain

// Document identifies one scanned obligation request.
// Name is the file name the serial is derived from; URI locates the bytes
// for the source that listed it (a path, gs:// or s3:// style URI).
type Document struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
	Size int64  `json:"size,omitempty"`
}
