package etransfer

import (
	"errors"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"testing"

	"github.com/emersion/go-msgauth/dkim"
	"github.com/stretchr/testify/require"

	"github.com/jac4e/serveit/internal/apperrors"
)

func stubDKIM(verifications []*dkim.Verification, err error) func(io.Reader) ([]*dkim.Verification, error) {
	return func(io.Reader) ([]*dkim.Verification, error) {
		return verifications, err
	}
}

func passHeader() mail.Header {
	return mail.Header{
		"Authentication-Results": []string{
			"mx.example.com; arc=pass; spf=pass smtp.mailfrom=payments.interac.ca",
		},
	}
}

func TestAuthenticator(t *testing.T) {
	raw := []byte("From: notify@payments.interac.ca\r\n\r\nbody")

	t.Run("trusted signature and arc pass", func(t *testing.T) {
		auth := NewAuthenticator(t.TempDir())
		auth.verifyDKIM = stubDKIM([]*dkim.Verification{
			{Domain: "payments.interac.ca"},
		}, nil)

		err := auth.Authenticate("msg-1", raw, passHeader())

		require.NoError(t, err)
	})

	t.Run("untrusted signing domain is rejected and dumped", func(t *testing.T) {
		auditDir := t.TempDir()
		auth := NewAuthenticator(auditDir)
		auth.verifyDKIM = stubDKIM([]*dkim.Verification{
			{Domain: "evil.example.com"},
		}, nil)

		err := auth.Authenticate("msg-1", raw, passHeader())

		require.ErrorIs(t, err, apperrors.ErrMessageUnverified)

		dir := filepath.Join(auditDir, "etransfer", "unverified", "msg-1")
		dumped, readErr := os.ReadFile(filepath.Join(dir, "message.eml"))
		require.NoError(t, readErr)
		require.Equal(t, raw, dumped)
		_, readErr = os.Stat(filepath.Join(dir, "report.json"))
		require.NoError(t, readErr)
	})

	t.Run("trusted signer mixed with an untrusted one is rejected", func(t *testing.T) {
		auth := NewAuthenticator(t.TempDir())
		auth.verifyDKIM = stubDKIM([]*dkim.Verification{
			{Domain: "payments.interac.ca"},
			{Domain: "evil.example.com"},
		}, nil)

		err := auth.Authenticate("msg-1", raw, passHeader())

		require.ErrorIs(t, err, apperrors.ErrMessageUnverified)
	})

	t.Run("untrusted signer with a broken signature still taints the message", func(t *testing.T) {
		auth := NewAuthenticator(t.TempDir())
		auth.verifyDKIM = stubDKIM([]*dkim.Verification{
			{Domain: "payments.interac.ca"},
			{Domain: "evil.example.com", Err: errors.New("bad signature")},
		}, nil)

		err := auth.Authenticate("msg-1", raw, passHeader())

		require.ErrorIs(t, err, apperrors.ErrMessageUnverified)
	})

	t.Run("failed signature on a trusted domain is rejected", func(t *testing.T) {
		auth := NewAuthenticator(t.TempDir())
		auth.verifyDKIM = stubDKIM([]*dkim.Verification{
			{Domain: "payments.interac.ca", Err: errors.New("bad signature")},
		}, nil)

		err := auth.Authenticate("msg-1", raw, passHeader())

		require.ErrorIs(t, err, apperrors.ErrMessageUnverified)
	})

	t.Run("arc fail is rejected even with a trusted signature", func(t *testing.T) {
		auth := NewAuthenticator(t.TempDir())
		auth.verifyDKIM = stubDKIM([]*dkim.Verification{
			{Domain: "amazonses.com"},
		}, nil)
		header := mail.Header{
			"Authentication-Results": []string{"mx.example.com; arc=fail"},
		}

		err := auth.Authenticate("msg-1", raw, header)

		require.ErrorIs(t, err, apperrors.ErrMessageUnverified)
	})

	t.Run("missing arc verdict is rejected", func(t *testing.T) {
		auth := NewAuthenticator(t.TempDir())
		auth.verifyDKIM = stubDKIM([]*dkim.Verification{
			{Domain: "payments.interac.ca"},
		}, nil)

		err := auth.Authenticate("msg-1", raw, mail.Header{})

		require.ErrorIs(t, err, apperrors.ErrMessageUnverified)
	})

	t.Run("dkim error is rejected", func(t *testing.T) {
		auth := NewAuthenticator(t.TempDir())
		auth.verifyDKIM = stubDKIM(nil, errors.New("no signature found"))

		err := auth.Authenticate("msg-1", raw, passHeader())

		require.ErrorIs(t, err, apperrors.ErrMessageUnverified)
	})
}

func TestArcResult(t *testing.T) {
	t.Run("reads the arc verdict", func(t *testing.T) {
		require.Equal(t, "pass", arcResult(passHeader()))
	})

	t.Run("no header means none", func(t *testing.T) {
		require.Equal(t, "none", arcResult(mail.Header{}))
	})
}
