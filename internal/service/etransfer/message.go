package etransfer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// notice is an incoming e-transfer email reduced to the pieces the poller
// inspects: the headers and the HTML body the bank rendered.
type notice struct {
	header mail.Header
	html   string
}

func parseNotice(raw []byte) (notice, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return notice{}, fmt.Errorf("read message: %w", err)
	}

	html, found, err := findHTMLPart(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return notice{}, err
	}
	if !found {
		return notice{}, fmt.Errorf("message has no html part")
	}

	return notice{header: msg.Header, html: html}, nil
}

// messageHeader reads just the header block. A message too malformed to
// carry headers yields an empty header, so authentication still runs and
// rejects it on its own terms.
func messageHeader(raw []byte) mail.Header {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return mail.Header{}
	}
	return msg.Header
}

// findHTMLPart descends multipart containers until it reaches a text/html
// leaf. Depth first, first match wins.
func findHTMLPart(contentType string, encoding string, body io.Reader) (string, bool, error) {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false, fmt.Errorf("parse content type: %w", err)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return "", false, fmt.Errorf("multipart without boundary")
		}

		reader := multipart.NewReader(body, boundary)
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				return "", false, nil
			}
			if err != nil {
				return "", false, fmt.Errorf("read part: %w", err)
			}

			html, found, err := findHTMLPart(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return "", false, err
			}
			if found {
				return html, true, nil
			}
		}
	}

	if mediaType != "text/html" {
		return "", false, nil
	}

	decoded, err := decodeBody(encoding, body)
	if err != nil {
		return "", false, err
	}
	return decoded, true, nil
}

func decodeBody(encoding string, body io.Reader) (string, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(data), nil
}
