package imapprovider

import (
	"bytes"
	"io"
	"mime"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/ravnmail/ravncore/internal/provider"
)

// maxPartSize bounds how much of any single MIME part is read into memory;
// a part larger than this is truncated rather than risking an OOM on a
// maliciously large or corrupt message.
const maxPartSize = 32 << 20

// parsedBody is the result of decoding one RFC 5322 message.
type parsedBody struct {
	BodyText       string
	BodyHTML       string
	HasAttachments bool
	Attachments    []provider.SyncAttachment
}

// parseBody decodes a raw RFC 5322 message into plain/HTML bodies and
// attachment metadata by walking the multipart tree. S/MIME and
// PGP/MIME parts are treated as opaque attachments.
func parseBody(raw []byte) *parsedBody {
	result := &parsedBody{}
	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil {
		result.BodyText = string(raw)
		return result
	}

	if mr := entity.MultipartReader(); mr != nil {
		parseMultipart(mr, result)
	} else {
		parseSinglePart(entity, result)
	}
	return result
}

func parseMultipart(mr gomessage.MultipartReader, result *parsedBody) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return
		}

		contentType, ctParams, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		disposition, dispParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		contentID := strings.Trim(part.Header.Get("Content-ID"), "<>")

		if disposition == "attachment" {
			result.HasAttachments = true
			result.Attachments = append(result.Attachments, readAttachment(part, contentType, dispParams, contentID, contentID != ""))
			continue
		}

		if strings.HasPrefix(contentType, "multipart/") {
			if nested := part.MultipartReader(); nested != nil {
				parseMultipart(nested, result)
			}
			continue
		}

		if (disposition == "inline" && strings.HasPrefix(contentType, "image/")) ||
			(contentID != "" && strings.HasPrefix(contentType, "image/")) {
			result.HasAttachments = true
			result.Attachments = append(result.Attachments, readAttachment(part, contentType, dispParams, contentID, true))
			continue
		}

		partBody, _ := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
		decoded := decodePartText(partBody, contentType, ctParams)

		switch contentType {
		case "text/plain":
			if result.BodyText == "" {
				result.BodyText = decoded
			}
		case "text/html":
			if result.BodyHTML == "" {
				result.BodyHTML = decoded
			}
		default:
			if contentType != "" && !strings.HasPrefix(contentType, "text/") {
				result.HasAttachments = true
			}
		}
	}
}

func parseSinglePart(entity *gomessage.Entity, result *parsedBody) {
	contentType, params, _ := mime.ParseMediaType(entity.Header.Get("Content-Type"))
	body, err := io.ReadAll(io.LimitReader(entity.Body, maxPartSize))
	if err != nil {
		return
	}
	decoded := decodePartText(body, contentType, params)
	if contentType == "text/html" {
		result.BodyHTML = decoded
	} else {
		result.BodyText = decoded
	}
}

func decodePartText(body []byte, contentType string, params map[string]string) string {
	charsetName := params["charset"]
	if charsetName == "" && contentType == "text/html" {
		charsetName = extractCharsetFromHTML(body)
	}
	body = decodeQuotedPrintableIfNeeded(body)
	return decodeCharset(body, charsetName)
}

func readAttachment(part *gomessage.Entity, contentType string, dispParams map[string]string, contentID string, isInline bool) provider.SyncAttachment {
	filename := dispParams["filename"]
	if filename == "" {
		_, ctParams, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		filename = ctParams["name"]
	}
	filename = decodeMIMEWord(filename)

	data, _ := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
	return provider.SyncAttachment{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		ContentID:   contentID,
		IsInline:    isInline,
		Data:        data,
	}
}
