package auth

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/anchor-vcs/anchor/pkg/errclass"
)

func TestChallengeIssueAndTake(t *testing.T) {
	cs := NewChallengeStore()

	ch, err := cs.Issue("alice")
	require.NoError(t, err)
	require.NotEmpty(t, ch)

	got, err := cs.Take("alice")
	require.NoError(t, err)
	assert.Equal(t, ch, got)

	// One-shot: a second take fails.
	_, err = cs.Take("alice")
	assert.ErrorIs(t, err, errclass.ErrUnauthenticated)
}

func TestChallengeExpiry(t *testing.T) {
	cs := NewChallengeStore()
	_, err := cs.Issue("alice")
	require.NoError(t, err)

	cs.now = func() time.Time { return time.Now().Add(3 * time.Minute) }
	_, err = cs.Take("alice")
	assert.ErrorIs(t, err, errclass.ErrUnauthenticated)
}

func TestVerifyEd25519Signature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	authorized := string(ssh.MarshalAuthorizedKey(sshPub))

	challenge := []byte("login-challenge-bytes")
	sig := ed25519.Sign(priv, challenge)

	assert.NoError(t, VerifySSHSignature(authorized, challenge, sig))

	err = VerifySSHSignature(authorized, []byte("different challenge"), sig)
	assert.ErrorIs(t, err, errclass.ErrUnauthenticated)
}

func TestVerifyRSASignature(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(&key.PublicKey)
	require.NoError(t, err)
	authorized := string(ssh.MarshalAuthorizedKey(sshPub))

	challenge := []byte("login-challenge-bytes")
	digest := sha256.Sum256(challenge)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)

	assert.NoError(t, VerifySSHSignature(authorized, challenge, sig))

	sig[0] ^= 0xff
	err = VerifySSHSignature(authorized, challenge, sig)
	assert.ErrorIs(t, err, errclass.ErrUnauthenticated)
}

func TestVerifyBadPublicKey(t *testing.T) {
	err := VerifySSHSignature("not a key", []byte("c"), []byte("s"))
	assert.ErrorIs(t, err, errclass.ErrInvalid)
}
