// Package files validates, stores and indexes user uploads.
package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"velvet/velvet/sources/psql/dao"
	"velvet/velvet/sources/psql/models"
	"velvet/velvet/sources/storage"
	"velvet/velvet/utils/errs"
	"velvet/velvet/utils/logging"
	"velvet/velvet/utils/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	TypePDF   = "pdf"
	TypeCSV   = "csv"
	TypeExcel = "excel"
)

const (
	MimePDF  = "application/pdf"
	MimeCSV  = "text/csv"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var allowedTypes = map[string]string{
	MimePDF:  TypePDF,
	MimeCSV:  TypeCSV,
	MimeXLSX: TypeExcel,
}

// Indexer receives the extracted text of a stored file.
type Indexer interface {
	IndexDocument(ctx context.Context, file *models.UploadedFile, text string) (int, error)
	RemoveDocument(ctx context.Context, fileID uuid.UUID) error
}

type Processor struct {
	store    storage.ObjectStore
	files    *dao.FileDAO
	indexer  Indexer
	maxBytes int64
}

// NewProcessor builds a processor. store may be nil when object storage is
// not configured, in which case every upload fails as unavailable.
func NewProcessor(db *gorm.DB, store storage.ObjectStore, indexer Indexer, maxBytes int64) *Processor {
	return &Processor{store: store, files: dao.NewFileDAO(db), indexer: indexer, maxBytes: maxBytes}
}

func (p *Processor) MaxBytes() int64 { return p.maxBytes }

// FileType maps an upload content type to its file type, or "" when the
// type is not accepted.
func FileType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return allowedTypes[mt]
}

// Process stores the upload, records it and indexes its text. Extraction or
// indexing problems mark the file failed but are not returned as errors.
func (p *Processor) Process(ctx context.Context, userID uuid.UUID, filename, contentType string, r io.Reader) (*types.FileUploadResponse, error) {
	const op = "files.process"
	defer logging.LogDuration(ctx, "file_process")()
	start := time.Now()

	fileType := FileType(contentType)
	if fileType == "" {
		return nil, errs.InvalidArgument(op, "unsupported file type, use PDF, CSV or Excel")
	}
	if filename == "" {
		return nil, errs.InvalidArgument(op, "filename is required")
	}

	tooLarge := errs.TooLarge(op, fmt.Sprintf("file exceeds %d MB", p.maxBytes>>20))
	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, tooLarge
		}
		return nil, errs.InvalidArgument(op, "could not read upload")
	}
	if int64(len(data)) > p.maxBytes {
		return nil, tooLarge
	}
	if len(data) == 0 {
		return nil, errs.InvalidArgument(op, "file is empty")
	}
	if p.store == nil {
		return nil, errs.Unavailable(op, fmt.Errorf("object storage not configured"))
	}

	file := &models.UploadedFile{
		ID:          uuid.New(),
		UserID:      userID,
		Filename:    filename,
		ContentType: contentType,
		FileType:    fileType,
		SizeBytes:   int64(len(data)),
		Status:      models.FileStatusProcessed,
	}
	file.StorageKey = storage.UploadKey(userID.String(), file.ID.String(), filename)

	if err := p.store.Put(ctx, file.StorageKey, bytes.NewReader(data), file.SizeBytes, contentType); err != nil {
		return nil, errs.Unavailable(op, err)
	}

	text, extractErr := extract(fileType, data)
	if extractErr != nil {
		logging.ErrorLogger.Error("Text extraction failed",
			zap.String("file_id", file.ID.String()), zap.Error(extractErr))
		file.Status = models.FileStatusFailed
	}

	if err := p.files.CreateFile(ctx, file); err != nil {
		// keep storage consistent with the table
		if delErr := p.store.Delete(ctx, file.StorageKey); delErr != nil {
			logging.ErrorLogger.Error("Orphaned upload", zap.String("key", file.StorageKey), zap.Error(delErr))
		}
		return nil, errs.Unavailable(op, err)
	}

	if file.Status == models.FileStatusProcessed && text != "" && p.indexer != nil {
		if _, err := p.indexer.IndexDocument(ctx, file, text); err != nil {
			logging.ErrorLogger.Error("Indexing failed",
				zap.String("file_id", file.ID.String()), zap.Error(err))
			file.Status = models.FileStatusFailed
			if err := p.files.UpdateStatus(ctx, file.ID, file.Status); err != nil {
				logging.ErrorLogger.Error("Status update failed", zap.Error(err))
			}
		}
	}

	logging.AppLogger.Info("File processed",
		zap.String("file_id", file.ID.String()),
		zap.String("type", fileType),
		zap.Int64("size", file.SizeBytes),
		zap.String("status", file.Status))

	return &types.FileUploadResponse{
		FileID:         file.ID,
		Filename:       file.Filename,
		FileType:       file.FileType,
		Size:           file.SizeBytes,
		Status:         file.Status,
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

// extract returns "" with no error for spreadsheets, which are stored but not
// indexed.
func extract(fileType string, data []byte) (string, error) {
	switch fileType {
	case TypePDF:
		return extractPDF(data)
	case TypeCSV:
		return extractCSV(data)
	default:
		return "", nil
	}
}

func toInfo(f models.UploadedFile) types.FileInfo {
	return types.FileInfo{
		ID:        f.ID,
		Filename:  f.Filename,
		FileType:  f.FileType,
		Size:      f.SizeBytes,
		Status:    f.Status,
		CreatedAt: f.CreatedAt,
	}
}

// List returns the caller's live uploads, newest first.
func (p *Processor) List(ctx context.Context, userID uuid.UUID) ([]types.FileInfo, error) {
	const op = "files.list"
	rows, err := p.files.ListFilesByUser(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	out := make([]types.FileInfo, len(rows))
	for i, f := range rows {
		out[i] = toInfo(f)
	}
	return out, nil
}

// Open returns the stored bytes of an upload. The caller closes the reader.
func (p *Processor) Open(ctx context.Context, userID, fileID uuid.UUID) (*types.FileInfo, io.ReadCloser, error) {
	const op = "files.open"
	file, err := p.files.GetFile(ctx, fileID, userID)
	if err != nil {
		return nil, nil, errs.Unavailable(op, err)
	}
	if file == nil {
		return nil, nil, errs.NotFound(op, "file not found")
	}
	if p.store == nil {
		return nil, nil, errs.Unavailable(op, fmt.Errorf("object storage not configured"))
	}
	rc, err := p.store.Get(ctx, file.StorageKey)
	if err != nil {
		return nil, nil, errs.Unavailable(op, err)
	}
	info := toInfo(*file)
	return &info, rc, nil
}

// Delete hides the upload and drops its chunks from retrieval. The stored
// object is removed on a best-effort basis.
func (p *Processor) Delete(ctx context.Context, userID, fileID uuid.UUID) error {
	const op = "files.delete"
	file, err := p.files.GetFile(ctx, fileID, userID)
	if err != nil {
		return errs.Unavailable(op, err)
	}
	if file == nil {
		return errs.NotFound(op, "file not found")
	}
	ok, err := p.files.SoftDeleteFile(ctx, fileID, userID)
	if err != nil {
		return errs.Unavailable(op, err)
	}
	if !ok {
		return errs.NotFound(op, "file not found")
	}
	if p.indexer != nil {
		if err := p.indexer.RemoveDocument(ctx, fileID); err != nil {
			logging.ErrorLogger.Error("Chunk removal failed", zap.String("file_id", fileID.String()), zap.Error(err))
		}
	}
	if p.store != nil {
		if err := p.store.Delete(ctx, file.StorageKey); err != nil {
			logging.ErrorLogger.Error("Object removal failed", zap.String("key", file.StorageKey), zap.Error(err))
		}
	}
	logging.AppLogger.Info("File deleted", zap.String("file_id", fileID.String()))
	return nil
}
