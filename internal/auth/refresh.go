package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/fsutil"
	"github.com/anchor-vcs/anchor/pkg/model"
)

// RefreshTokenTTL bounds the life of a refresh token.
const RefreshTokenTTL = 7 * 24 * time.Hour

// RefreshStore is the persistent rotating refresh token store. Records are
// keyed by sha256(token); the plaintext token exists only in transit.
type RefreshStore struct {
	mu      sync.Mutex
	path    string
	records map[string]*model.RefreshRecord
	log     *logrus.Logger
	now     func() time.Time
}

// NewRefreshStore loads the store from its JSON file, pruning records that
// have already expired. A missing file starts an empty store.
func NewRefreshStore(path string, log *logrus.Logger) (*RefreshStore, error) {
	rs := &RefreshStore{
		path:    path,
		records: make(map[string]*model.RefreshRecord),
		log:     log,
		now:     time.Now,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rs, nil
		}
		return nil, errclass.ErrInternal.WithMessagef("read refresh store: %v", err)
	}
	if err := json.Unmarshal(data, &rs.records); err != nil {
		return nil, errclass.ErrInternal.WithMessagef("parse refresh store: %v", err)
	}
	now := rs.now()
	for hash, rec := range rs.records {
		if rec.Expired(now) {
			delete(rs.records, hash)
		}
	}
	return rs, nil
}

// HashToken returns the storage key for a plaintext token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errclass.ErrInternal.WithMessagef("generate token: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue mints a fresh refresh token for a user and device.
func (rs *RefreshStore) Issue(username, fpt string) (string, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	token, err := newToken()
	if err != nil {
		return "", err
	}
	now := rs.now()
	rs.records[HashToken(token)] = &model.RefreshRecord{
		Username:    username,
		Fingerprint: fpt,
		CreatedAt:   now,
		ExpiresAt:   now.Add(RefreshTokenTTL),
	}
	if err := rs.persist(); err != nil {
		return "", err
	}
	return token, nil
}

// Rotate validates a presented token and exchanges it for a new one.
// Replay of an already-rotated token, or a device fingerprint change,
// invalidates the whole rotation family.
func (rs *RefreshStore) Rotate(token, fpt string) (string, string, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	hash := HashToken(token)
	rec, ok := rs.records[hash]
	if !ok {
		return "", "", errclass.ErrUnauthenticated.WithMessage("unknown refresh token")
	}

	if rec.Used {
		// A retired token came back: someone other than the holder of the
		// newest token has it. Burn the whole chain.
		rs.invalidateFamily(hash)
		if err := rs.persist(); err != nil {
			return "", "", err
		}
		rs.log.WithField("user", rec.Username).Warn("refresh token replay, family invalidated")
		return "", "", errclass.ErrReplay.WithMessage("refresh token reuse detected")
	}

	if rec.Expired(rs.now()) {
		delete(rs.records, hash)
		if err := rs.persist(); err != nil {
			return "", "", err
		}
		return "", "", errclass.ErrExpiredToken.WithMessage("refresh token expired")
	}

	if rec.Fingerprint != "" && fpt != "" && rec.Fingerprint != fpt {
		rs.invalidateFamily(hash)
		if err := rs.persist(); err != nil {
			return "", "", err
		}
		rs.log.WithField("user", rec.Username).Warn("refresh token fingerprint mismatch, family invalidated")
		return "", "", errclass.ErrFingerprintMismatch.WithMessage("refresh token bound to a different device")
	}

	next, err := newToken()
	if err != nil {
		return "", "", err
	}
	nextHash := HashToken(next)
	now := rs.now()
	rs.records[nextHash] = &model.RefreshRecord{
		Username:    rec.Username,
		Fingerprint: rec.Fingerprint,
		CreatedAt:   now,
		ExpiresAt:   now.Add(RefreshTokenTTL),
	}
	rec.Used = true
	rec.RotatedTo = nextHash
	if err := rs.persist(); err != nil {
		return "", "", err
	}
	return rec.Username, next, nil
}

// Revoke invalidates the family containing the presented token. Used on
// logout and after sensitive account changes.
func (rs *RefreshStore) Revoke(token string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	hash := HashToken(token)
	if _, ok := rs.records[hash]; !ok {
		return nil
	}
	rs.invalidateFamily(hash)
	return rs.persist()
}

// RevokeAllUser deletes every record belonging to a user.
func (rs *RefreshStore) RevokeAllUser(username string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for hash, rec := range rs.records {
		if rec.Username == username {
			delete(rs.records, hash)
		}
	}
	return rs.persist()
}

// invalidateFamily deletes the rotation chain containing hash: ancestors
// whose rotated_to chains reach it and every descendant it rotated into.
// Callers hold the mutex.
func (rs *RefreshStore) invalidateFamily(hash string) {
	family := map[string]bool{hash: true}
	// Expand until no record on either side of a rotated_to edge is outside
	// the family.
	for {
		grew := false
		for h, rec := range rs.records {
			if family[h] && rec.RotatedTo != "" && !family[rec.RotatedTo] {
				family[rec.RotatedTo] = true
				grew = true
			}
			if rec.RotatedTo != "" && family[rec.RotatedTo] && !family[h] {
				family[h] = true
				grew = true
			}
		}
		if !grew {
			break
		}
	}
	for h := range family {
		delete(rs.records, h)
	}
}

// Count returns the number of live records. Test hook.
func (rs *RefreshStore) Count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.records)
}

func (rs *RefreshStore) persist() error {
	data, err := json.MarshalIndent(rs.records, "", "  ")
	if err != nil {
		return errclass.ErrInternal.WithMessagef("marshal refresh store: %v", err)
	}
	if err := fsutil.AtomicWrite(rs.path, data, 0o600); err != nil {
		return errclass.ErrInternal.WithMessagef("write refresh store: %v", err)
	}
	return nil
}
