package domain

const (
	PathEmpty        = ""
	PathCurrent      = "."
	PathParent       = ".."
	PathRoot         = "/"
	HiddenFilePrefix = "."
	ExtensionZip     = ".zip"
	RootArchiveName  = "root"
	MIMEOctetStream  = "application/octet-stream"
	MIMEZip          = "application/zip"
	RangeUnitBytes   = "bytes"
	RangePrefix      = "bytes="
)
