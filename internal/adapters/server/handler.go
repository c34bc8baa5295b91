package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"filegate/internal/config"
	"filegate/internal/domain"
	"filegate/internal/metrics"
)

type Handler struct {
	uc          domain.FileManagement
	maxBodySize int64
}

// apiResponse общий конверт для всех не потоковых ответов.
type apiResponse struct {
	Code    int                   `json:"code"`
	Message string                `json:"message"`
	Data    any                   `json:"data"`
	Skipped []domain.SkippedEntry `json:"skipped,omitempty"`
}

type renameRequest struct {
	NewName string `json:"newname"`
}

func NewHandler(uc domain.FileManagement, cfg *config.Config) *Handler {
	return &Handler{
		uc:          uc,
		maxBodySize: cfg.Transfer.MaxBodyBytes,
	}
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	path := pathFromRequest(r)

	listing, err := h.uc.Inspect(path)
	if err != nil {
		h.handleError(w, err, path)
		return
	}

	fields := logrus.Fields{
		"operation": OperationInfo,
		"path":      path,
		"entries":   len(listing.Entries),
	}
	if len(listing.Skipped) > 0 {
		fields["skipped"] = len(listing.Skipped)
		logrus.WithFields(fields).Warn(LogEntriesSkipped)
	} else {
		logrus.WithFields(fields).Debug(LogEntryInspected)
	}

	h.writeJSON(w, http.StatusOK, apiResponse{
		Code:    http.StatusOK,
		Message: MessageOK,
		Data:    listing.Entries,
		Skipped: listing.Skipped,
	})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	path := pathFromRequest(r)

	err := h.uc.Delete(path)
	metrics.RecordMutation(OperationDelete, err == nil)
	if err != nil {
		h.handleError(w, err, path)
		return
	}

	logrus.WithFields(logrus.Fields{
		"operation": OperationDelete,
		"path":      path,
	}).Info(LogFileOrFolderDeleted)

	h.writeMessage(w, fmt.Sprintf("success remove %s", path))
}

func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	path := pathFromRequest(r)

	var body renameRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRenameBodyBytes)).Decode(&body); err != nil {
		h.handleError(w, fmt.Errorf("decode rename body: %w: %w", domain.ErrBadRequest, err), path)
		return
	}

	err := h.uc.Rename(path, body.NewName)
	metrics.RecordMutation(OperationRename, err == nil)
	if err != nil {
		h.handleError(w, err, path)
		return
	}

	logrus.WithFields(logrus.Fields{
		"operation": OperationRename,
		"path":      path,
		"new_name":  body.NewName,
	}).Info(LogFileOrFolderRenamed)

	h.writeMessage(w, fmt.Sprintf("success %s to %s", path, body.NewName))
}

func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	path := pathFromRequest(r)

	err := h.uc.CreateFolder(path)
	metrics.RecordMutation(OperationCreateFolder, err == nil)
	if err != nil {
		h.handleError(w, err, path)
		return
	}

	logrus.WithFields(logrus.Fields{
		"operation": OperationCreateFolder,
		"path":      path,
	}).Info(LogFolderCreated)

	h.writeMessage(w, fmt.Sprintf("success create %s", path))
}

// multipartSource адаптер multipart.Reader к domain.PartSource.
type multipartSource struct {
	reader *multipart.Reader
}

func (s multipartSource) NextPart() (domain.UploadPart, error) {
	part, err := s.reader.NextPart()
	if err != nil {
		return nil, err
	}
	return part, nil
}

// Upload тело не разбирается целиком: части читаются потоком прямо в файлы.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	path := pathFromRequest(r)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	reader, err := r.MultipartReader()
	if err != nil {
		h.handleError(w, fmt.Errorf("upload to '%s': %w: %w", path, domain.ErrBadRequest, err), path)
		return
	}

	report, err := h.uc.Upload(r.Context(), path, multipartSource{reader: reader})
	if err != nil {
		h.handleError(w, err, path)
		return
	}
	metrics.RecordUpload(report.TotalBytes, len(report.Files), len(report.Failed))

	logrus.WithFields(logrus.Fields{
		"operation": OperationUpload,
		"path":      path,
		"files":     len(report.Files),
		"failed":    len(report.Failed),
		"total":     report.Total,
	}).Info(LogUploadFinished)

	h.writeJSON(w, http.StatusOK, apiResponse{
		Code:    http.StatusOK,
		Message: fmt.Sprintf("success upload to %s and total %s", displayPath(path), report.Total),
		Data:    report,
	})
}

// Download отдаёт файл (с учётом Range) или директорию zip-архивом.
// после WriteHeader ошибки уже не отдать клиенту, только в лог.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	path := pathFromRequest(r)

	download, err := h.uc.OpenDownload(path, r.Header.Get(HeaderRange))
	if err != nil {
		var rangeErr *domain.RangeError
		if errors.As(err, &rangeErr) {
			h.rangeNotSatisfiable(w, path, rangeErr)
			return
		}
		h.handleError(w, err, path)
		return
	}

	header := w.Header()
	header.Set(HeaderContentType, download.ContentType)
	header.Set(HeaderContentDisposition, contentDisposition(download.Name))

	if download.Archive != nil {
		w.WriteHeader(http.StatusOK)
		cw := &countingWriter{w: w}
		archiveErr := download.Archive(r.Context(), cw)
		h.logDownload(path, DownloadKindArchive, cw.n, archiveErr)
		return
	}
	defer func() {
		if closeErr := download.Body.Close(); closeErr != nil {
			logrus.Warnf("Failed to close %s: %v", download.Name, closeErr)
		}
	}()

	header.Set(HeaderAcceptRanges, domain.RangeUnitBytes)
	header.Set(HeaderContentLength, strconv.FormatInt(download.Range.Len(), 10))

	status := http.StatusOK
	if download.Partial {
		header.Set(HeaderContentRange, download.Range.ContentRange(download.Size))
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)

	n, pumpErr := h.uc.Pump(r.Context(), w, download.Body)
	h.logDownload(path, DownloadKindFile, n, pumpErr)
}

func (h *Handler) logDownload(path, kind string, n int64, err error) {
	metrics.RecordDownload(kind, n, err == nil)

	entry := logrus.WithFields(logrus.Fields{
		"operation": OperationDownload,
		"path":      path,
		"kind":      kind,
		"bytes":     n,
	})
	if err != nil {
		entry.Warnf("%s: %v", LogDownloadAborted, err)
		return
	}
	entry.Info(LogDownloadFinished)
}

func (h *Handler) rangeNotSatisfiable(w http.ResponseWriter, path string, err *domain.RangeError) {
	logrus.WithFields(logrus.Fields{
		"operation": OperationDownload,
		"path":      path,
		"range":     err.Header,
	}).Warn(err.Error())

	body := domain.UnsatisfiedContentRange(err.Size)
	w.Header().Set(HeaderContentRange, body)
	w.Header().Set(HeaderContentType, ContentTypeText)
	w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	if _, writeErr := io.WriteString(w, body); writeErr != nil {
		logrus.Warnf("Failed to write response: %v", writeErr)
	}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, apiResponse{Code: http.StatusOK, Message: MessageOK})
}

// NotFound и MethodNotAllowed отвечают тем же конвертом, что и остальное API.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusNotFound, apiResponse{
		Code:    http.StatusNotFound,
		Message: fmt.Sprintf("%s not found", r.URL.Path),
	})
}

func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusMethodNotAllowed, apiResponse{
		Code:    http.StatusMethodNotAllowed,
		Message: fmt.Sprintf("method %s not allowed", r.Method),
	})
}

func pathFromRequest(r *http.Request) string {
	return mux.Vars(r)[PathVar]
}

var dispositionEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func contentDisposition(name string) string {
	return fmt.Sprintf(`attachment; filename="%s"`, dispositionEscaper.Replace(name))
}

// countingWriter считает отданные байты архива для метрик и лога.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type errorType int

const (
	errorTypeBadRequest errorType = iota
	errorTypeForbidden
	errorTypeNotFound
	errorTypeConflict
	errorTypeRangeNotSatisfiable
	errorTypeUnsupportedMediaType
	errorTypeInternal
)

// getErrorType сопоставляет доменные ошибки с HTTP-кодами статуса.
// централизация преобразования ошибок.
func (h *Handler) getErrorType(err error) errorType {
	switch {
	case errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrNameTooLong),
		errors.Is(err, domain.ErrNotDirectory),
		errors.Is(err, domain.ErrUnsupportedOperation),
		errors.Is(err, domain.ErrBadRequest):
		return errorTypeBadRequest
	case errors.Is(err, domain.ErrPathTraversal),
		errors.Is(err, domain.ErrRootProtected),
		errors.Is(err, domain.ErrPermissionDenied):
		return errorTypeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return errorTypeNotFound
	case errors.Is(err, domain.ErrConflict):
		return errorTypeConflict
	case errors.Is(err, domain.ErrRangeNotSatisfiable):
		return errorTypeRangeNotSatisfiable
	case errors.Is(err, domain.ErrUnsupportedEncoding):
		return errorTypeUnsupportedMediaType
	default:
		return errorTypeInternal
	}
}

// handleError клиенту уходит только его относительный путь и код,
// вся цепочка ошибки с абсолютными путями остаётся в логе.
func (h *Handler) handleError(w http.ResponseWriter, err error, path string) {
	var httpStatus int
	var clientMessage string

	switch h.getErrorType(err) {
	case errorTypeBadRequest:
		httpStatus = http.StatusBadRequest
		clientMessage = "bad request"
	case errorTypeForbidden:
		httpStatus = http.StatusForbidden
		clientMessage = "forbidden"
	case errorTypeNotFound:
		httpStatus = http.StatusNotFound
		clientMessage = "not found"
	case errorTypeConflict:
		httpStatus = http.StatusConflict
		clientMessage = "conflict"
	case errorTypeRangeNotSatisfiable:
		httpStatus = http.StatusRequestedRangeNotSatisfiable
		clientMessage = "range not satisfiable"
	case errorTypeUnsupportedMediaType:
		httpStatus = http.StatusUnsupportedMediaType
		clientMessage = "unsupported content encoding"
	case errorTypeInternal:
		httpStatus = http.StatusInternalServerError
		clientMessage = "internal error"
	}

	logrus.Errorf("HTTP %d Error: %s. Details: %+v", httpStatus, clientMessage, err)
	h.writeJSON(w, httpStatus, apiResponse{
		Code:    httpStatus,
		Message: fmt.Sprintf("%s %s", displayPath(path), clientMessage),
	})
}

func displayPath(path string) string {
	if path == domain.PathEmpty {
		return domain.PathRoot
	}
	return path
}

func (h *Handler) writeMessage(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusOK, apiResponse{Code: http.StatusOK, Message: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logrus.Warnf("Failed to write response: %v", err)
	}
}
