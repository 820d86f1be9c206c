// Package credentials provides secure credential storage with an
// encrypted-database fallback for when the OS keyring is unavailable.
package credentials

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/ravnmail/ravncore/internal/crypto"
	"github.com/ravnmail/ravncore/internal/logging"
)

const serviceName = "ravncore"

// ErrCredentialNotFound is returned when no credential is stored for the
// requested account/key.
var ErrCredentialNotFound = errors.New("credential not found")

// OAuthToken is the subset of golang.org/x/oauth2.Token persisted per
// account; kept local to avoid a credentials->oauth2 import for a
// four-field struct.
type OAuthToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiryUnix   int64  `json:"expiry_unix"`
}

// Store provides credential storage with OS keyring and encrypted DB
// fallback, keyed by account id.
type Store struct {
	db             *sql.DB
	encryptor      *crypto.Encryptor
	keyringEnabled bool
	log            zerolog.Logger
}

// NewStore creates a credential store. It tries the OS keyring, falling
// back to encrypted database storage when unavailable (headless CI,
// sandboxed containers, some Linux desktops without a secret service).
func NewStore(db *sql.DB, dataDir string) (*Store, error) {
	log := logging.WithComponent("credentials")

	encryptor, err := crypto.NewEncryptor(dataDir)
	if err != nil {
		return nil, fmt.Errorf("create encryptor: %w", err)
	}

	keyringEnabled := testKeyring()
	if keyringEnabled {
		log.Info().Msg("OS keyring available, using as primary credential storage")
	} else {
		log.Warn().Msg("OS keyring not available, using encrypted database storage")
	}

	return &Store{db: db, encryptor: encryptor, keyringEnabled: keyringEnabled, log: log}, nil
}

func testKeyring() bool {
	const testKey = "ravncore-test-keyring-check"
	if err := gokeyring.Set(serviceName, testKey, "test"); err != nil {
		return false
	}
	gokeyring.Delete(serviceName, testKey)
	return true
}

// IsKeyringEnabled reports whether the OS keyring is being used.
func (s *Store) IsKeyringEnabled() bool {
	return s.keyringEnabled
}

// SetPassword stores an IMAP password for an account.
func (s *Store) SetPassword(accountID, password string) error {
	if password == "" {
		return nil
	}
	if s.keyringEnabled {
		if err := gokeyring.Set(serviceName, "password:"+accountID, password); err == nil {
			s.log.Debug().Str("account_id", accountID).Msg("password stored in OS keyring")
			s.clearDBColumn(accountID, "encrypted_password")
			return nil
		} else {
			s.log.Warn().Err(err).Msg("failed to store password in OS keyring, using fallback")
		}
	}
	return s.setEncryptedColumn(accountID, "encrypted_password", password)
}

// GetPassword retrieves an IMAP password for an account.
func (s *Store) GetPassword(accountID string) (string, error) {
	if s.keyringEnabled {
		password, err := gokeyring.Get(serviceName, "password:"+accountID)
		if err == nil {
			return password, nil
		}
		if !errors.Is(err, gokeyring.ErrNotFound) {
			s.log.Warn().Err(err).Msg("error reading password from OS keyring, trying fallback")
		}
	}
	return s.getEncryptedColumn(accountID, "encrypted_password")
}

// DeletePassword removes a stored IMAP password.
func (s *Store) DeletePassword(accountID string) error {
	if s.keyringEnabled {
		gokeyring.Delete(serviceName, "password:"+accountID)
	}
	s.clearDBColumn(accountID, "encrypted_password")
	return nil
}

// SetOAuthToken stores an OAuth2 token for an account (gmail, office365).
func (s *Store) SetOAuthToken(accountID string, token OAuthToken) error {
	encoded, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal oauth token: %w", err)
	}
	if s.keyringEnabled {
		if err := gokeyring.Set(serviceName, "oauth:"+accountID, string(encoded)); err == nil {
			s.log.Debug().Str("account_id", accountID).Msg("oauth token stored in OS keyring")
			s.clearDBColumn(accountID, "encrypted_oauth_token")
			return nil
		} else {
			s.log.Warn().Err(err).Msg("failed to store oauth token in OS keyring, using fallback")
		}
	}
	return s.setEncryptedColumn(accountID, "encrypted_oauth_token", string(encoded))
}

// GetOAuthToken retrieves an OAuth2 token for an account.
func (s *Store) GetOAuthToken(accountID string) (OAuthToken, error) {
	var raw string
	if s.keyringEnabled {
		v, err := gokeyring.Get(serviceName, "oauth:"+accountID)
		if err == nil {
			raw = v
		} else if !errors.Is(err, gokeyring.ErrNotFound) {
			s.log.Warn().Err(err).Msg("error reading oauth token from OS keyring, trying fallback")
		}
	}
	if raw == "" {
		v, err := s.getEncryptedColumn(accountID, "encrypted_oauth_token")
		if err != nil {
			return OAuthToken{}, err
		}
		raw = v
	}

	var token OAuthToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return OAuthToken{}, fmt.Errorf("unmarshal oauth token: %w", err)
	}
	return token, nil
}

// DeleteOAuthToken removes a stored OAuth2 token.
func (s *Store) DeleteOAuthToken(accountID string) error {
	if s.keyringEnabled {
		gokeyring.Delete(serviceName, "oauth:"+accountID)
	}
	s.clearDBColumn(accountID, "encrypted_oauth_token")
	return nil
}

// DeleteAllCredentials removes every credential for an account. Called
// when the account is deleted, before the cascading row delete.
func (s *Store) DeleteAllCredentials(accountID string) error {
	_ = s.DeletePassword(accountID)
	_ = s.DeleteOAuthToken(accountID)
	return nil
}

func (s *Store) setEncryptedColumn(accountID, column, value string) error {
	encrypted, err := s.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", column, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO account_credentials (account_id, `+column+`) VALUES (?, ?)
		 ON CONFLICT(account_id) DO UPDATE SET `+column+` = excluded.`+column,
		accountID, encrypted,
	)
	if err != nil {
		return fmt.Errorf("store encrypted %s: %w", column, err)
	}
	s.log.Debug().Str("account_id", accountID).Str("column", column).Msg("stored in encrypted database")
	return nil
}

func (s *Store) getEncryptedColumn(accountID, column string) (string, error) {
	var encrypted sql.NullString
	err := s.db.QueryRow(
		`SELECT `+column+` FROM account_credentials WHERE account_id = ?`,
		accountID,
	).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) || !encrypted.Valid || encrypted.String == "" {
		return "", ErrCredentialNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query %s: %w", column, err)
	}

	decrypted, err := s.encryptor.Decrypt(encrypted.String)
	if err != nil {
		return "", fmt.Errorf("decrypt %s: %w", column, err)
	}
	return decrypted, nil
}

func (s *Store) clearDBColumn(accountID, column string) {
	s.db.Exec(`UPDATE account_credentials SET `+column+` = NULL WHERE account_id = ?`, accountID)
}
