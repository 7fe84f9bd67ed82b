package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"filebox/internal/api"
	"filebox/internal/models"
	"filebox/internal/transfer"
)

// multipartOverhead bounds the non-file bytes of an upload form.
const multipartOverhead = 1 << 20 // 1 MiB

func (s *Server) handleUploadMultipart(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.files.MaxUploadBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(s.multipartMemory); err != nil {
		s.writeServiceError(w, r, classifyMultipartError(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeServiceError(w, r, badRequestCode(fmt.Errorf("no file uploaded"), ErrCodeMissingRequired))
		return
	}
	defer file.Close()

	bundle, err := parseBundleFlag(r.FormValue("isZipped"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var constituents []models.Constituent
	if bundle {
		constituents, err = parseConstituents(r.FormValue("originalFiles"))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	body, contentType := sniffContentType(file, header.Header.Get("Content-Type"))
	s.upload(w, r, owner, transfer.UploadInput{
		Filename:     sanitizeFilename(header.Filename),
		ContentType:  contentType,
		DeclaredSize: header.Size,
		Bundle:       bundle,
		Constituents: constituents,
		Content:      body,
	})
}

func (s *Server) handleUploadRaw(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	name := sanitizeFilename(query.Get("name"))
	if name == "" {
		s.writeServiceError(w, r, badRequestCode(fmt.Errorf("name is required"), ErrCodeMissingRequired))
		return
	}
	bundle, err := parseBundleFlag(query.Get("bundle"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var constituents []models.Constituent
	if bundle {
		constituents, err = parseConstituents(r.Header.Get(api.BundleConstituentsHeader))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	body, contentType := sniffContentType(r.Body, r.Header.Get("Content-Type"))
	s.upload(w, r, owner, transfer.UploadInput{
		Filename:     name,
		ContentType:  contentType,
		DeclaredSize: r.ContentLength,
		Bundle:       bundle,
		Constituents: constituents,
		Content:      body,
	})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request, owner models.Identity, in transfer.UploadInput) {
	ref, err := s.files.Upload(r.Context(), owner, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.UploadResponse{
		Message:  "File uploaded successfully",
		FileID:   ref.BlobID,
		IsZipped: ref.IsBundle(),
		File:     ref,
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	listing, err := s.files.List(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	dl, err := s.files.Download(r.Context(), owner, r.PathValue("fileId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer dl.Close()

	header := w.Header()
	header.Set("Content-Type", dl.ContentType())
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Reference.DisplayName}))
	header.Set("Content-Length", strconv.FormatInt(dl.Metadata.Length, 10))
	if dl.Metadata.Digest != "" {
		header.Set(api.ContentDigestHeader, dl.Metadata.Digest)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := dl.WriteTo(w); err != nil {
		var streamErr *transfer.StreamError
		if errors.As(err, &streamErr) {
			s.log().Warn("aborting download response",
				"file_id", dl.Metadata.ID, "written", streamErr.Written, "error", streamErr.Err,
				"request_id", requestIDFromContext(r.Context()))
		}
		panic(http.ErrAbortHandler)
	}
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return fmt.Errorf("request body too large: %w", models.ErrPayloadTooLarge)
	}
	return badRequestCode(err, ErrCodeInvalidArgument)
}

func parseBundleFlag(value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, badRequestCode(fmt.Errorf("invalid bundle flag %q", value), ErrCodeInvalidArgument)
	}
	return parsed, nil
}

func parseConstituents(raw string) ([]models.Constituent, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, badRequestCode(fmt.Errorf("originalFiles is required for bundles"), ErrCodeInvalidBundle)
	}
	var constituents []models.Constituent
	if err := json.Unmarshal([]byte(raw), &constituents); err != nil {
		return nil, badRequestCode(fmt.Errorf("invalid originalFiles: %w", err), ErrCodeInvalidBundle)
	}
	if err := models.ValidateConstituents(constituents); err != nil {
		return nil, badRequestCode(err, ErrCodeInvalidBundle)
	}
	return constituents, nil
}

// sniffContentType returns a reader that still yields the peeked bytes and
// the declared type, falling back to content sniffing.
func sniffContentType(r io.Reader, declared string) (io.Reader, string) {
	buffered := bufio.NewReader(r)
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != models.FallbackContentType {
		return buffered, declared
	}
	peek, _ := buffered.Peek(512)
	if len(peek) == 0 {
		return buffered, models.FallbackContentType
	}
	return buffered, http.DetectContentType(peek)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
}
