package server

const (
	OperationInfo         = "info"
	OperationUpload       = "upload"
	OperationCreateFolder = "create_folder"
	OperationDelete       = "delete"
	OperationRename       = "rename"
	OperationDownload     = "download"

	LogEntryInspected      = "Entry inspected"
	LogEntriesSkipped      = "Some entries were skipped"
	LogUploadFinished      = "Upload finished"
	LogFolderCreated       = "Folder created"
	LogFileOrFolderDeleted = "File or folder deleted"
	LogFileOrFolderRenamed = "File or folder renamed"
	LogDownloadFinished    = "Download finished"
	LogDownloadAborted     = "Download aborted"

	PathVar = "path"

	HeaderAcceptRanges       = "Accept-Ranges"
	HeaderContentDisposition = "Content-Disposition"
	HeaderContentLength      = "Content-Length"
	HeaderContentRange       = "Content-Range"
	HeaderContentType        = "Content-Type"
	HeaderRange              = "Range"

	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain; charset=utf-8"

	DownloadKindFile    = "file"
	DownloadKindArchive = "archive"

	MessageOK = "OK"

	// тело rename это маленький JSON, больше не читаем.
	maxRenameBodyBytes = 64 << 10
)
