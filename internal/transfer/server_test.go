package transfer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// storedFile is what the fake server keeps per upload.
type storedFile struct {
	data   []byte
	hint   string
	pwType string
	sha    string
}

// fakeVault is an in-memory vault server.
type fakeVault struct {
	mu sync.Mutex

	files       map[string]storedFile
	valid       map[string]bool // access tokens the server accepts
	refresh     string          // the one refresh token the server accepts
	generation  int
	uploadCalls int
	refreshes   int

	uploadStatus int // non-zero: answer every upload with this status
	refreshFails bool
}

func newFakeVault() *fakeVault {
	return &fakeVault{
		files:   map[string]storedFile{},
		valid:   map[string]bool{"A0": true},
		refresh: "R0",
	}
}

func (v *fakeVault) revokeAccess() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.valid = map[string]bool{}
}

func (v *fakeVault) authorized(r *http.Request) bool {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	return v.valid[tok]
}

func reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (v *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch {
	case r.URL.Path == "/api/refresh":
		v.handleRefresh(w, r)
		return
	case !v.authorized(r):
		reply(w, http.StatusUnauthorized, map[string]string{"message": "invalid or expired token"})
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/upload":
		v.handleUpload(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/download/"):
		v.handleDownload(w, strings.TrimPrefix(r.URL.Path, "/api/download/"))
	case r.Method == http.MethodGet && r.URL.Path == "/api/files":
		v.handleList(w)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/files/"):
		name := strings.TrimPrefix(r.URL.Path, "/api/files/")
		if _, ok := v.files[name]; !ok {
			reply(w, http.StatusNotFound, map[string]string{"message": "File not found"})
			return
		}

		delete(v.files, name)
		reply(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
	default:
		reply(w, http.StatusNotFound, map[string]string{"message": "no route"})
	}
}

func (v *fakeVault) handleRefresh(w http.ResponseWriter, r *http.Request) {
	v.refreshes++

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}

	_ = json.NewDecoder(r.Body).Decode(&body)

	if v.refreshFails || body.RefreshToken != v.refresh {
		reply(w, http.StatusUnauthorized, map[string]string{"message": "Invalid or expired refresh token"})
		return
	}

	v.generation++
	access := fmt.Sprintf("A%d", v.generation)
	v.refresh = fmt.Sprintf("R%d", v.generation)
	v.valid[access] = true

	reply(w, http.StatusOK, map[string]string{"token": access, "refreshToken": v.refresh})
}

func (v *fakeVault) handleUpload(w http.ResponseWriter, r *http.Request) {
	v.uploadCalls++

	if v.uploadStatus != 0 {
		reply(w, v.uploadStatus, map[string]string{"message": "upload rejected"})
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		reply(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	data, err := base64.StdEncoding.DecodeString(r.FormValue("data"))
	if err != nil {
		reply(w, http.StatusBadRequest, map[string]string{"message": "bad data"})
		return
	}

	v.files[r.FormValue("filename")] = storedFile{
		data:   data,
		hint:   r.FormValue("passwordHint"),
		pwType: r.FormValue("passwordType"),
		sha:    r.FormValue("sha256sum"),
	}

	reply(w, http.StatusOK, map[string]any{
		"message": "File uploaded successfully",
		"storage": map[string]int64{"total_bytes": int64(len(data)), "limit_bytes": 1 << 30},
	})
}

func (v *fakeVault) handleDownload(w http.ResponseWriter, name string) {
	f, ok := v.files[name]
	if !ok {
		reply(w, http.StatusNotFound, map[string]string{"message": "File not found"})
		return
	}

	reply(w, http.StatusOK, map[string]string{
		"data":         base64.StdEncoding.EncodeToString(f.data),
		"passwordHint": f.hint,
		"passwordType": f.pwType,
		"sha256sum":    f.sha,
	})
}

func (v *fakeVault) handleList(w http.ResponseWriter) {
	files := make([]map[string]any, 0, len(v.files))
	for name, f := range v.files {
		files = append(files, map[string]any{
			"filename":     name,
			"passwordHint": f.hint,
			"passwordType": f.pwType,
			"sha256sum":    f.sha,
			"size_bytes":   len(f.data),
			"uploadDate":   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}

	reply(w, http.StatusOK, map[string]any{
		"files":   files,
		"storage": map[string]any{"total_bytes": 10, "limit_bytes": 100, "available_bytes": 90, "usage_percent": 10.0},
	})
}

// tamper edits a stored file in place.
func (v *fakeVault) tamper(name string, fn func(*storedFile)) {
	v.mu.Lock()
	defer v.mu.Unlock()

	f := v.files[name]
	fn(&f)
	v.files[name] = f
}

func (v *fakeVault) file(name string) (storedFile, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	f, ok := v.files[name]

	return f, ok
}

func (v *fakeVault) put(name string, f storedFile) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.files[name] = f
}

func (v *fakeVault) failUploads(status int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.uploadStatus = status
}

func (v *fakeVault) failRefresh() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.refreshFails = true
}

func (v *fakeVault) counts() (uploads, refreshes int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.uploadCalls, v.refreshes
}
