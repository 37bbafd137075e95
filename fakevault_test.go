package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

type vaultFile struct {
	data   []byte
	hint   string
	pwType string
	sha    string
}

// cliVault is an in-memory vault server covering the account and file
// endpoints the CLI calls.
type cliVault struct {
	mu sync.Mutex

	accounts map[string]bool
	access   map[string]string // access token -> email
	refresh  map[string]string // refresh token -> email
	files    map[string]vaultFile
	next     int

	requests int
	uploads  int
	logouts  int
	revokes  int
}

func newCLIVault() *cliVault {
	return &cliVault{
		accounts: map[string]bool{},
		access:   map[string]string{},
		refresh:  map[string]string{},
		files:    map[string]vaultFile{},
	}
}

func writeReply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// issue mints a token pair for email. Caller holds mu.
func (v *cliVault) issue(email string) map[string]any {
	v.next++
	access := fmt.Sprintf("access-%d", v.next)
	refresh := fmt.Sprintf("refresh-%d", v.next)
	v.access[access] = email
	v.refresh[refresh] = email

	return map[string]any{"token": access, "refreshToken": refresh}
}

func (v *cliVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.requests++

	var body map[string]string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch r.URL.Path {
	case "/api/opaque/health":
		writeReply(w, http.StatusOK, map[string]any{"status": "healthy", "message": "all systems ready"})
		return
	case "/api/salt":
		writeReply(w, http.StatusOK, map[string]string{"salt": "salt-of-" + body["email"]})
		return
	case "/api/opaque/register":
		if v.accounts[body["email"]] {
			writeReply(w, http.StatusConflict, map[string]string{"message": "User already exists"})
			return
		}

		v.accounts[body["email"]] = true
		pair := v.issue(body["email"])
		pair["sessionKey"] = base64.StdEncoding.EncodeToString([]byte("handshake-export"))
		writeReply(w, http.StatusOK, pair)

		return
	case "/api/login":
		if !v.accounts[body["email"]] || body["passwordHash"] == "" {
			writeReply(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}

		pair := v.issue(body["email"])
		pair["user"] = map[string]any{"email": body["email"], "is_approved": true}
		writeReply(w, http.StatusOK, pair)

		return
	case "/api/refresh":
		email, ok := v.refresh[body["refreshToken"]]
		if !ok {
			writeReply(w, http.StatusUnauthorized, map[string]string{"message": "Invalid refresh token"})
			return
		}

		delete(v.refresh, body["refreshToken"])
		writeReply(w, http.StatusOK, v.issue(email))

		return
	case "/api/logout":
		v.logouts++
		delete(v.refresh, body["refreshToken"])
		writeReply(w, http.StatusOK, map[string]string{"message": "Logged out"})

		return
	}

	email, ok := v.access[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
	if !ok {
		writeReply(w, http.StatusUnauthorized, map[string]string{"message": "invalid or expired token"})
		return
	}

	switch {
	case r.URL.Path == "/api/revoke-all":
		v.revokes++
		v.revokeAll(email)
		writeReply(w, http.StatusOK, map[string]string{"message": "All sessions revoked"})
	case r.Method == http.MethodPost && r.URL.Path == "/api/upload":
		v.handleUpload(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/download/"):
		f, ok := v.files[strings.TrimPrefix(r.URL.Path, "/api/download/")]
		if !ok {
			writeReply(w, http.StatusNotFound, map[string]string{"message": "File not found"})
			return
		}

		writeReply(w, http.StatusOK, map[string]string{
			"data":         base64.StdEncoding.EncodeToString(f.data),
			"passwordHint": f.hint,
			"passwordType": f.pwType,
			"sha256sum":    f.sha,
		})
	case r.Method == http.MethodGet && r.URL.Path == "/api/files":
		v.handleList(w)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/files/"):
		name := strings.TrimPrefix(r.URL.Path, "/api/files/")
		if _, ok := v.files[name]; !ok {
			writeReply(w, http.StatusNotFound, map[string]string{"message": "File not found"})
			return
		}

		delete(v.files, name)
		writeReply(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
	default:
		writeReply(w, http.StatusNotFound, map[string]string{"message": "no route"})
	}
}

func (v *cliVault) revokeAll(email string) {
	for tok, owner := range v.access {
		if owner == email {
			delete(v.access, tok)
		}
	}

	for tok, owner := range v.refresh {
		if owner == email {
			delete(v.refresh, tok)
		}
	}
}

func (v *cliVault) handleUpload(w http.ResponseWriter, r *http.Request) {
	v.uploads++

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeReply(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	data, err := base64.StdEncoding.DecodeString(r.FormValue("data"))
	if err != nil {
		writeReply(w, http.StatusBadRequest, map[string]string{"message": "bad data"})
		return
	}

	v.files[r.FormValue("filename")] = vaultFile{
		data:   data,
		hint:   r.FormValue("passwordHint"),
		pwType: r.FormValue("passwordType"),
		sha:    r.FormValue("sha256sum"),
	}

	writeReply(w, http.StatusOK, map[string]any{
		"message": "File uploaded successfully",
		"storage": v.storage(),
	})
}

func (v *cliVault) handleList(w http.ResponseWriter) {
	files := make([]map[string]any, 0, len(v.files))
	for name, f := range v.files {
		files = append(files, map[string]any{
			"filename":     name,
			"passwordHint": f.hint,
			"passwordType": f.pwType,
			"sha256sum":    f.sha,
			"size_bytes":   len(f.data),
			"uploadDate":   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		})
	}

	writeReply(w, http.StatusOK, map[string]any{"files": files, "storage": v.storage()})
}

func (v *cliVault) storage() map[string]any {
	var total int64
	for _, f := range v.files {
		total += int64(len(f.data))
	}

	const limit = 1 << 30

	return map[string]any{
		"total_bytes":     total,
		"limit_bytes":     limit,
		"available_bytes": limit - total,
		"usage_percent":   float64(total) * 100 / limit,
	}
}

func (v *cliVault) counts() (uploads, logouts, revokes int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.uploads, v.logouts, v.revokes
}

func (v *cliVault) requestCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.requests
}

func (v *cliVault) hasFile(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, ok := v.files[name]

	return ok
}

func (v *cliVault) expireAccessTokens() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.access = map[string]string{}
}
