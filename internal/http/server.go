package httpapp

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gosimple/slug"

	"github.com/seblog/micropub/internal/auth"
	"github.com/seblog/micropub/internal/config"
	"github.com/seblog/micropub/internal/micropub"
	"github.com/seblog/micropub/internal/model"
	"github.com/seblog/micropub/internal/rate"
	"github.com/seblog/micropub/internal/store"
)

const maxBodyBytes = 1 << 20
const maxUploadMemory = 32 << 20

type Server struct {
	store      store.EntryStore
	verifier   *auth.Verifier
	normalizer *micropub.Normalizer
	limiter    rate.Limiter
	cfg        config.Config
}

func NewServer(st store.EntryStore, verifier *auth.Verifier, normalizer *micropub.Normalizer, limiter rate.Limiter, cfg config.Config) *Server {
	return &Server{store: st, verifier: verifier, normalizer: normalizer, limiter: limiter, cfg: cfg}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/micropub" {
		switch r.Method {
		case http.MethodPost:
			s.handleCreate(w, r)
		case http.MethodGet:
			s.handleQuery(w, r)
		default:
			methodNotAllowed(w)
		}
		return
	}
	if strings.HasPrefix(path, "/entries/") {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleEntry(w, r)
		return
	}
	if strings.HasPrefix(path, "/media/") {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleMedia(w, r)
		return
	}

	notFound(w)
}

// handleCreate runs the creation pipeline: authorize, decode, normalize,
// persist, attach uploads. Any failure short-circuits to the protocol
// error mapping; there is no partial recovery.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r) {
		return
	}

	body, err := prepareBody(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeProtocolError(w, micropub.InvalidRequest(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)))
			return
		}
		writeProtocolError(w, micropub.InvalidRequest(fmt.Sprintf("unreadable request body: %v", err)))
		return
	}

	token, err := s.verifier.Verify(r, "create")
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	if !sameSite(token.Me, s.cfg.BaseURL) {
		writeProtocolError(w, micropub.Forbidden("you are not me"))
		return
	}

	payload, err := micropub.Decode(body, r.PostForm)
	if err != nil {
		writeProtocolError(w, err)
		return
	}

	fields, err := s.normalizer.Normalize(r.Context(), payload, token)
	if err != nil {
		writeProtocolError(w, err)
		return
	}

	entry := &model.Entry{
		Slug:   micropub.DeriveSlug(fields),
		Kind:   "entry",
		Fields: fields,
	}
	if err := s.store.CreateEntry(r.Context(), entry); err != nil {
		if errors.Is(err, store.ErrDuplicateSlug) {
			writeProtocolError(w, micropub.InvalidRequest(fmt.Sprintf("an entry named %q already exists", entry.Slug)))
			return
		}
		writeProtocolError(w, micropub.Internal("post could not be created"))
		return
	}
	location := s.entryURL(entry.Slug)

	if err := s.attachUploads(r, entry); err != nil {
		// The entry persists without its media; report the failure but
		// keep the created location discoverable.
		log.Printf("upload attachment failed for %s: %v", location, err)
		writeProtocolError(w, err)
		return
	}

	w.Header().Set("Location", location)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "yay, new post created"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	token, err := s.verifier.Verify(r, "")
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	if !sameSite(token.Me, s.cfg.BaseURL) {
		writeProtocolError(w, micropub.Forbidden("you are not me"))
		return
	}

	switch r.URL.Query().Get("q") {
	case "config":
		writeJSON(w, http.StatusOK, map[string]any{})
	case "syndicate-to":
		// No syndication targets implemented.
		writeJSON(w, http.StatusOK, map[string]any{})
	default:
		writeProtocolError(w, micropub.InvalidRequest("unsupported q value"))
	}
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	slugName := strings.TrimPrefix(r.URL.Path, "/entries/")
	entry, err := s.store.GetEntry(r.Context(), slugName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(w)
			return
		}
		writeProtocolError(w, micropub.Internal(err.Error()))
		return
	}

	fields := make(map[string]string, len(entry.Fields))
	for name, value := range entry.Fields {
		if name == "token" {
			continue
		}
		fields[name] = value
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slug":   entry.Slug,
		"kind":   entry.Kind,
		"fields": fields,
	})
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/media/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		notFound(w)
		return
	}
	file, err := s.store.GetFile(r.Context(), parts[0], parts[1])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(w)
			return
		}
		writeProtocolError(w, micropub.Internal(err.Error()))
		return
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(file.Data)
}

// prepareBody readies the two wire encodings: multipart requests get
// their form and file parts parsed, everything else is slurped so the
// decoder can try JSON first and fall back to form fields.
func prepareBody(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			return nil, err
		}
		return nil, nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if contentType == "" || strings.Contains(contentType, "application/x-www-form-urlencoded") {
		if form, err := url.ParseQuery(string(body)); err == nil {
			r.PostForm = form
		}
	}
	return body, nil
}

func (s *Server) attachUploads(r *http.Request, entry *model.Entry) error {
	headers := collectUploads(r.MultipartForm, s.cfg.MaxUploads)
	if len(headers) == 0 {
		return nil
	}

	var urls []string
	if photo := entry.Fields["photo"]; photo != "" {
		urls = append(urls, photo)
	}
	for _, header := range headers {
		file, err := s.saveUpload(r, entry.Slug, header)
		if err != nil {
			return err
		}
		urls = append(urls, s.fileURL(entry.Slug, file.Name))
	}

	joined := strings.Join(urls, ",")
	if err := s.store.UpdateEntryField(r.Context(), entry.Slug, "photo", joined); err != nil {
		return micropub.Internal(fmt.Sprintf("attach photos: %v", err))
	}
	entry.Fields["photo"] = joined
	return nil
}

// collectUploads drains photo uploads from index 0 upward. The first
// missing index terminates the sequence; anything after a gap is
// ignored.
func collectUploads(form *multipart.Form, max int) []*multipart.FileHeader {
	var headers []*multipart.FileHeader
	for i := 0; i < max; i++ {
		header, ok := tryNextUpload(form, i)
		if !ok {
			break
		}
		headers = append(headers, header)
	}
	return headers
}

func tryNextUpload(form *multipart.Form, index int) (*multipart.FileHeader, bool) {
	if form == nil {
		return nil, false
	}
	if headers := form.File[fmt.Sprintf("photo[%d]", index)]; len(headers) > 0 {
		return headers[0], true
	}
	for _, key := range []string{"photo[]", "photo"} {
		if headers := form.File[key]; index < len(headers) {
			return headers[index], true
		}
	}
	return nil, false
}

func (s *Server) saveUpload(r *http.Request, slugName string, header *multipart.FileHeader) (*model.File, error) {
	src, err := header.Open()
	if err != nil {
		return nil, micropub.Internal(fmt.Sprintf("upload %s: %v", header.Filename, err))
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, micropub.Internal(fmt.Sprintf("upload %s: %v", header.Filename, err))
	}

	file := &model.File{
		Slug:        slugName,
		Name:        safeFilename(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	if err := s.store.SaveFile(r.Context(), file); err != nil {
		return nil, micropub.Internal(fmt.Sprintf("save %s: %v", file.Name, err))
	}
	return file, nil
}

func safeFilename(name string) string {
	name = filepath.Base(name)
	ext := filepath.Ext(name)
	base := slug.Make(strings.TrimSuffix(name, ext))
	if base == "" {
		base = "file"
	}
	if ext != "" {
		ext = "." + slug.Make(ext)
	}
	return base + ext
}

func (s *Server) entryURL(slugName string) string {
	return fmt.Sprintf("%s/entries/%s", strings.TrimSuffix(s.cfg.BaseURL, "/"), slugName)
}

func (s *Server) fileURL(slugName, fileName string) string {
	return fmt.Sprintf("%s/media/%s/%s", strings.TrimSuffix(s.cfg.BaseURL, "/"), slugName, fileName)
}

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil || s.cfg.RateLimits.CreatePerMinute <= 0 {
		return true
	}
	key := "create:ip:" + clientIP(r)
	if ok, retry := s.limiter.Allow(key); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "rate limit exceeded",
			"retry_after": int(retry.Seconds()),
		})
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// sameSite compares the identity URL against this server's base URL,
// ignoring scheme, case, a www prefix, and trailing slashes.
func sameSite(me, base string) bool {
	key := siteKey(me)
	return key != "" && key == siteKey(base)
}

func siteKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
