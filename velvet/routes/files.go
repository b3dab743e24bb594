package routes

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"velvet/velvet/middlewares"
	"velvet/velvet/services/files"
	"velvet/velvet/utils/errs"

	"github.com/go-chi/chi/v5"
)

// multipart framing allowance on top of the file size limit
const multipartSlack = 1 << 20

func FileRoutes(proc *files.Processor, verifier middlewares.TokenVerifier) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares.AuthMiddleware(verifier))

	r.Post("/upload", func(w http.ResponseWriter, r *http.Request) {
		const op = "files.upload"
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, proc.MaxBytes()+multipartSlack)

		mr, err := r.MultipartReader()
		if err != nil {
			writeError(w, r, errs.InvalidArgument(op, "expected a multipart form upload"))
			return
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				writeError(w, r, errs.InvalidArgument(op, "missing file field"))
				return
			}
			if err != nil {
				var mbe *http.MaxBytesError
				if errors.As(err, &mbe) {
					writeError(w, r, errs.TooLarge(op, "upload too large"))
					return
				}
				writeError(w, r, errs.InvalidArgument(op, "malformed multipart body"))
				return
			}
			if part.FormName() != "file" {
				part.Close()
				continue
			}
			res, err := proc.Process(r.Context(), userID, part.FileName(), part.Header.Get("Content-Type"), part)
			part.Close()
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, res)
			return
		}
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		list, err := proc.List(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	})

	r.Get("/{fileID}", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		fileID, err := pathUUID(r, "fileID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		info, rc, err := proc.Open(r.Context(), userID, fileID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Filename}))
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		io.Copy(w, rc)
	})

	r.Delete("/{fileID}", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		fileID, err := pathUUID(r, "fileID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := proc.Delete(r.Context(), userID, fileID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}
