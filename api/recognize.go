package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/facturaIA/captcha-ocr-service/internal/auth"
	"github.com/facturaIA/captcha-ocr-service/internal/models"
	"github.com/facturaIA/captcha-ocr-service/internal/ocr"
)

const (
	sourceMultipart = "multipart"
	sourceBase64    = "base64"

	auditTimeout = 5 * time.Second
)

var (
	errBusy             = errors.New("server busy, try again later")
	errUnsupportedMedia = errors.New("unsupported image type")
)

// recognized is a successful dispatch plus its audit identifiers.
type recognized struct {
	ocr.Result
	ID     string
	Sample string
}

// upload is an image read from the request body.
type upload struct {
	data        []byte
	name        string
	contentType string
	base64      string
	source      string
}

// RecognizeUpload handles multipart uploads for the backend in the URL.
func (h *Handler) RecognizeUpload(w http.ResponseWriter, r *http.Request) {
	backend := mux.Vars(r)["backend"]
	res, err := h.recognize(w, r, backend, h.readMultipart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, res)
}

// RecognizeBase64 handles {"base64": "..."} bodies for the backend in the URL.
func (h *Handler) RecognizeBase64(w http.ResponseWriter, r *http.Request) {
	backend := mux.Vars(r)["backend"]
	res, err := h.recognize(w, r, backend, h.readBase64)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, res)
}

// RecognizeDefault serves /api/v1/ocr: {"base64_string"} in, {"text"} out,
// using the default backend.
func (h *Handler) RecognizeDefault(w http.ResponseWriter, r *http.Request) {
	res, err := h.recognize(w, r, h.config.OCR.DefaultBackend, h.readBase64)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.TextResponse{Text: res.Text})
}

// legacyUpload and legacyBase64 answer with the bare recognized string.
func (h *Handler) legacyUpload(backend string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.recognize(w, r, backend, h.readMultipart)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res.Text)
	}
}

func (h *Handler) legacyBase64(backend string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.recognize(w, r, backend, h.readBase64)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res.Text)
	}
}

// recognize admits the request, reads the image and dispatches it. Every
// attempt that reaches a backend is recorded in the audit log.
func (h *Handler) recognize(w http.ResponseWriter, r *http.Request, backend string, read func(http.ResponseWriter, *http.Request) (*upload, error)) (recognized, error) {
	ctx := r.Context()
	release, err := h.admit(ctx)
	if err != nil {
		return recognized{}, err
	}
	defer release()

	up, err := read(w, r)
	if err != nil {
		return recognized{}, err
	}

	start := time.Now()
	var res ocr.Result
	if up.source == sourceBase64 {
		res, err = h.dispatcher.RecognizeBase64(ctx, backend, up.base64, up.name)
	} else {
		res, err = h.dispatcher.RecognizeBytes(ctx, backend, up.data, up.name)
	}
	id := uuid.NewString()

	h.logger.InfoContext(ctx, "recognition request",
		"id", id,
		"backend", backend,
		"source", up.source,
		"subject", auth.Subject(ctx),
		"ok", err == nil,
	)
	if ocr.IsCallerError(err) {
		return recognized{}, err
	}
	sample := h.audit(ctx, id, backend, up, res, err, time.Since(start))
	if err != nil {
		return recognized{}, err
	}
	return recognized{Result: res, ID: id, Sample: sample}, nil
}

// admit waits up to the queue timeout for a recognition slot.
func (h *Handler) admit(ctx context.Context) (func(), error) {
	wait := h.config.Server.QueueTimeout
	if wait <= 0 {
		wait = 5 * time.Second
	}
	actx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := h.sem.Acquire(actx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errBusy
	}
	return func() { h.sem.Release(1) }, nil
}

func (h *Handler) maxUpload() int64 {
	if n := h.config.Server.MaxUploadSize; n > 0 {
		return n
	}
	return MaxUploadSize
}

func (h *Handler) readMultipart(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload())
	if err := r.ParseMultipartForm(h.maxUpload()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, &ocr.Error{Kind: ocr.KindInvalidInput, Op: "upload", Message: "invalid form data", Err: err}
	}

	// Accept both "file" and "image" field names
	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("image")
		if err != nil {
			return nil, &ocr.Error{Kind: ocr.KindInvalidInput, Op: "upload", Message: "No file provided (use 'file' or 'image' field)"}
		}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &ocr.Error{Kind: ocr.KindInvalidInput, Op: "upload", Message: "failed to read file", Err: err}
	}

	contentType := header.Header.Get("Content-Type")
	if len(data) > 0 {
		detected, ok := ocr.DetectImageType(data)
		if !ok {
			return nil, errUnsupportedMedia
		}
		contentType = detected
	}
	return &upload{data: data, name: header.Filename, contentType: contentType, source: sourceMultipart}, nil
}

func (h *Handler) readBase64(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload())
	var req models.Base64Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, &ocr.Error{Kind: ocr.KindInvalidInput, Op: "decode request", Message: "invalid JSON body", Err: err}
	}
	return &upload{base64: req.Payload(), name: req.FileName, source: sourceBase64}, nil
}

// audit records the attempt and, when an archive is configured, the sample.
// It returns the archived object name, or "". Failures here never fail the
// request.
func (h *Handler) audit(ctx context.Context, id, backend string, up *upload, res ocr.Result, recErr error, elapsed time.Duration) string {
	if h.store == nil && h.archive == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	rec := &models.Recognition{
		ID:         id,
		Backend:    backend,
		Source:     up.source,
		Text:       res.Text,
		Status:     "succeeded",
		DurationMS: elapsed.Milliseconds(),
	}
	if recErr != nil {
		rec.Status = "failed"
		rec.ErrorKind = ocr.KindOf(recErr).String()
	}

	if h.archive != nil {
		data, contentType := up.data, up.contentType
		if up.source == sourceBase64 {
			data, contentType, _ = ocr.DecodeBase64Image(up.base64)
		}
		if len(data) > 0 {
			object, err := h.archive.SaveSample(ctx, backend, id, data, contentType)
			if err != nil {
				h.logger.WarnContext(ctx, "failed to archive sample", "id", id, "error", err)
			} else {
				rec.SampleObject = object
			}
		}
	}

	if h.store != nil {
		if err := h.store.SaveRecognition(ctx, rec); err != nil {
			h.logger.WarnContext(ctx, "failed to save recognition", "id", id, "error", err)
		}
	}
	return rec.SampleObject
}

func (h *Handler) writeResult(w http.ResponseWriter, res recognized) {
	writeJSON(w, http.StatusOK, models.RecognitionResponse{
		Success:  true,
		ID:       res.ID,
		Backend:  res.Backend,
		Text:     res.Text,
		Duration: res.Duration.Seconds(),
		Sample:   res.Sample,
	})
}

// writeError maps err to a status code. Backend diagnostics are logged,
// never returned to the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"kind", ocr.KindOf(err).String(),
			"error", err,
		)
	}
	writeJSON(w, status, models.ErrorResponse{Success: false, Error: msg, Kind: kindLabel(err)})
}

func statusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "image too large"
	case errors.Is(err, errUnsupportedMedia):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, errBusy):
		return http.StatusServiceUnavailable, err.Error()
	}

	switch ocr.KindOf(err) {
	case ocr.KindInvalidInput:
		return http.StatusBadRequest, ocr.Message(err)
	case ocr.KindAccessDenied:
		return http.StatusForbidden, ocr.Message(err)
	case ocr.KindNotFound:
		return http.StatusNotFound, ocr.Message(err)
	case ocr.KindBackendExecution:
		return http.StatusBadGateway, "recognition failed"
	case ocr.KindConfiguration:
		return http.StatusInternalServerError, "OCR backend is misconfigured"
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, "request cancelled"
	}
	return http.StatusInternalServerError, "internal error"
}

func kindLabel(err error) string {
	if k := ocr.KindOf(err); k != ocr.KindUnknown {
		return k.String()
	}
	return ""
}
