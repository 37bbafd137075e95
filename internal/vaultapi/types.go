package vaultapi

import (
	"time"

	"golang.org/x/oauth2"
)

// Password types a file can be sealed under.
const (
	PasswordTypeAccount = "account"
	PasswordTypeCustom  = "custom"
)

// User is the account summary returned by login.
type User struct {
	Email          string  `json:"email"`
	IsApproved     bool    `json:"is_approved"`
	IsAdmin        bool    `json:"is_admin"`
	TotalStorage   int64   `json:"total_storage"`
	StorageLimit   int64   `json:"storage_limit"`
	StorageUsedPct float64 `json:"storage_used_pc"`
}

// LoginResult is a successful login: a fresh token pair and the account.
type LoginResult struct {
	Token *oauth2.Token
	User  User
}

// RegisterResult is a successful registration: a token pair and the session
// key export the server derived during the handshake.
type RegisterResult struct {
	Token      *oauth2.Token
	SessionKey []byte
}

// tokenPairResponse is the wire shape shared by login, register and refresh.
type tokenPairResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user,omitempty"`
	SessionKey   []byte `json:"sessionKey,omitempty"` // base64 on the wire
}

func (r tokenPairResponse) pair() (*oauth2.Token, error) {
	if r.Token == "" || r.RefreshToken == "" {
		return nil, ErrInvalidResult
	}

	return &oauth2.Token{
		AccessToken:  r.Token,
		RefreshToken: r.RefreshToken,
		TokenType:    "Bearer",
	}, nil
}

// UploadParams is one encrypted file submission.
type UploadParams struct {
	Filename     string
	Data         []byte // sealed envelope
	PasswordHint string
	PasswordType string
	SHA256       string // digest of the plaintext, lowercase hex
}

// DownloadedFile is the server's copy of a file: the sealed envelope plus the
// metadata recorded at upload.
type DownloadedFile struct {
	Data         []byte `json:"data"` // base64 on the wire
	PasswordHint string `json:"passwordHint"`
	PasswordType string `json:"passwordType"`
	SHA256       string `json:"sha256sum"`
}

// FileInfo is one entry of the file listing.
type FileInfo struct {
	Filename     string    `json:"filename"`
	PasswordHint string    `json:"passwordHint"`
	PasswordType string    `json:"passwordType"`
	SHA256       string    `json:"sha256sum"`
	SizeBytes    int64     `json:"size_bytes"`
	SizeReadable string    `json:"size_readable"`
	UploadDate   time.Time `json:"uploadDate"`
}

// Storage is the account's quota usage.
type Storage struct {
	TotalBytes     int64   `json:"total_bytes"`
	LimitBytes     int64   `json:"limit_bytes"`
	AvailableBytes int64   `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}

// Listing is the response of the file listing endpoint.
type Listing struct {
	Files   []FileInfo `json:"files"`
	Storage Storage    `json:"storage"`
}

// ServerHealth is the server readiness report.
type ServerHealth struct {
	OpaqueReady       bool   `json:"opaqueReady"`
	ServerKeysLoaded  bool   `json:"serverKeysLoaded"`
	DatabaseConnected bool   `json:"databaseConnected"`
	Status            string `json:"status"`
	Message           string `json:"message"`
}
