package etransfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-msgauth/authres"
	"github.com/emersion/go-msgauth/dkim"

	"github.com/jac4e/serveit/internal/apperrors"
)

// Domains whose DKIM signature we accept as proof the notice came from the
// bank's mail pipeline. Interac signs directly, SES signs mail relayed
// through Amazon.
var trustedSigners = map[string]bool{
	"payments.interac.ca": true,
	"amazonses.com":       true,
}

// Authenticator decides whether a transfer notice can be trusted. Two checks
// must both hold: a valid DKIM signature from a trusted domain, and an "arc"
// pass stamped by the receiving provider. Rejected messages are dumped to
// the audit directory for manual review.
type Authenticator struct {
	auditDir string

	// dkim.Verify, swappable in tests
	verifyDKIM func(r io.Reader) ([]*dkim.Verification, error)
}

func NewAuthenticator(auditDir string) *Authenticator {
	return &Authenticator{
		auditDir:   auditDir,
		verifyDKIM: dkim.Verify,
	}
}

type authReport struct {
	SignedDomains []string `json:"signed_domains"`
	ARC           string   `json:"arc"`
	Reason        string   `json:"reason"`
}

func (a *Authenticator) Authenticate(msgID string, raw []byte, header mail.Header) error {
	report := authReport{
		ARC: arcResult(header),
	}

	verifications, err := a.verifyDKIM(bytes.NewReader(raw))
	if err != nil {
		report.Reason = fmt.Sprintf("dkim verification failed: %v", err)
		return a.reject(msgID, raw, report)
	}

	// Every signing domain on the message must be trusted, not just one of
	// them. A notice co-signed by an untrusted domain is rejected outright,
	// whether or not that signature verifies.
	trusted := false
	for _, v := range verifications {
		domain := strings.ToLower(v.Domain)
		report.SignedDomains = append(report.SignedDomains, domain)
		if !trustedSigners[domain] {
			report.Reason = fmt.Sprintf("signing domain %q is not trusted", domain)
			return a.reject(msgID, raw, report)
		}
		if v.Err == nil {
			trusted = true
		}
	}

	switch {
	case !trusted:
		report.Reason = "no valid dkim signature from a trusted domain"
	case report.ARC != "pass":
		report.Reason = fmt.Sprintf("arc result is %q", report.ARC)
	default:
		return nil
	}

	return a.reject(msgID, raw, report)
}

// arcResult reads the provider stamped Authentication-Results headers and
// returns the aggregate arc verdict, or "none" when the provider did not
// evaluate the chain.
func arcResult(header mail.Header) string {
	for _, value := range header["Authentication-Results"] {
		_, results, err := authres.Parse(value)
		if err != nil {
			continue
		}
		for _, result := range results {
			switch r := result.(type) {
			case *authres.ARCResult:
				return string(r.Value)
			case *authres.GenericResult:
				if strings.EqualFold(r.Method, "arc") {
					return string(r.Value)
				}
			}
		}
	}
	return "none"
}

func (a *Authenticator) reject(msgID string, raw []byte, report authReport) error {
	if a.auditDir != "" {
		if err := a.dump(msgID, raw, report); err != nil {
			return fmt.Errorf("audit dump: %v: %w", err, apperrors.ErrMessageUnverified)
		}
	}
	return fmt.Errorf("%s: %w", report.Reason, apperrors.ErrMessageUnverified)
}

// dump preserves the raw message and the verdict under the audit directory
// so a human can decide what to do with it
func (a *Authenticator) dump(msgID string, raw []byte, report authReport) error {
	dir := filepath.Join(a.auditDir, "etransfer", "unverified", msgID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, "message.eml"), raw, 0o640); err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "report.json"), encoded, 0o640)
}
