package auth

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/anchor-vcs/anchor/pkg/errclass"
)

// challengeTTL bounds how long an issued challenge may be answered.
const challengeTTL = 2 * time.Minute

type challenge struct {
	value   string
	expires time.Time
}

// ChallengeStore issues one-shot login challenges per user.
type ChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]challenge
	now        func() time.Time
}

// NewChallengeStore creates an empty challenge store.
func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{
		challenges: make(map[string]challenge),
		now:        time.Now,
	}
}

// Issue creates a fresh challenge for a username, replacing any pending one.
func (cs *ChallengeStore) Issue(username string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errclass.ErrInternal.WithMessagef("generate challenge: %v", err)
	}
	value := base64.StdEncoding.EncodeToString(buf)

	cs.mu.Lock()
	cs.challenges[username] = challenge{value: value, expires: cs.now().Add(challengeTTL)}
	cs.mu.Unlock()
	return value, nil
}

// Take consumes the pending challenge for a username. A challenge answers
// at most one login attempt.
func (cs *ChallengeStore) Take(username string) (string, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	ch, ok := cs.challenges[username]
	if !ok {
		return "", errclass.ErrUnauthenticated.WithMessage("no pending challenge")
	}
	delete(cs.challenges, username)
	if cs.now().After(ch.expires) {
		return "", errclass.ErrUnauthenticated.WithMessage("challenge expired")
	}
	return ch.value, nil
}

// VerifySSHSignature checks a raw signature over the challenge bytes against
// a public key in authorized_keys format. Ed25519 and RSA (PKCS#1 v1.5 with
// SHA-256) keys are accepted.
func VerifySSHSignature(authorizedKey string, challenge, signature []byte) error {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(authorizedKey))
	if err != nil {
		return errclass.ErrInvalid.WithMessagef("parse public key: %v", err)
	}
	cryptoPub, ok := pub.(ssh.CryptoPublicKey)
	if !ok {
		return errclass.ErrInvalid.WithMessage("unsupported key type")
	}
	switch key := cryptoPub.CryptoPublicKey().(type) {
	case ed25519.PublicKey:
		if !ed25519.Verify(key, challenge, signature) {
			return errclass.ErrUnauthenticated.WithMessage("signature verification failed")
		}
		return nil
	case *rsa.PublicKey:
		digest := sha256.Sum256(challenge)
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature); err != nil {
			return errclass.ErrUnauthenticated.WithMessage("signature verification failed")
		}
		return nil
	default:
		return errclass.ErrInvalid.WithMessagef("unsupported key type %s", pub.Type())
	}
}
