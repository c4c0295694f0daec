package domain

import (
	"fmt"
	"path/filepath"
)

// AttachmentKind is the tag of the Attachment variant.
type AttachmentKind string

// Attachment kinds.
const (
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentDocument AttachmentKind = "document"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentVoice    AttachmentKind = "voice"
)

// IsValid returns true if the kind is known.
func (k AttachmentKind) IsValid() bool {
	switch k {
	case AttachmentPhoto, AttachmentDocument, AttachmentVideo, AttachmentAudio, AttachmentVoice:
		return true
	}
	return false
}

// Icon returns the marker used when rendering the attachment.
func (k AttachmentKind) Icon() string {
	switch k {
	case AttachmentPhoto:
		return "🖼️"
	case AttachmentDocument:
		return "📄"
	case AttachmentVideo:
		return "🎥"
	case AttachmentAudio:
		return "🎵"
	case AttachmentVoice:
		return "🎤"
	default:
		return "📎"
	}
}

// Attachment is a file downloaded with an inbound message.
// Exactly one of the media fields matching Kind is set.
type Attachment struct {
	Photo    *PhotoMeta     `json:"photo,omitempty" yaml:"photo,omitempty"`
	Document *DocumentMeta  `json:"document,omitempty" yaml:"document,omitempty"`
	Video    *MediaMeta     `json:"video,omitempty" yaml:"video,omitempty"`
	Audio    *AudioMeta     `json:"audio,omitempty" yaml:"audio,omitempty"`
	Voice    *MediaMeta     `json:"voice,omitempty" yaml:"voice,omitempty"`
	Kind     AttachmentKind `json:"type" yaml:"type"`
	Path     string         `json:"path" yaml:"path"`
	Size     int64          `json:"size" yaml:"size"`
}

// PhotoMeta is photo-specific metadata.
type PhotoMeta struct {
	Width  int `json:"width,omitempty" yaml:"width,omitempty"`
	Height int `json:"height,omitempty" yaml:"height,omitempty"`
}

// DocumentMeta is document-specific metadata.
type DocumentMeta struct {
	FileName string `json:"file_name,omitempty" yaml:"file_name,omitempty"`
	MIMEType string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
}

// AudioMeta is audio-specific metadata.
type AudioMeta struct {
	FileName string `json:"file_name,omitempty" yaml:"file_name,omitempty"`
	Duration int    `json:"duration,omitempty" yaml:"duration,omitempty"` // Seconds
}

// MediaMeta is metadata for video and voice messages.
type MediaMeta struct {
	Duration int `json:"duration,omitempty" yaml:"duration,omitempty"` // Seconds
}

// NewPhoto creates a photo attachment.
func NewPhoto(path string, size int64, width, height int) Attachment {
	return Attachment{Kind: AttachmentPhoto, Path: path, Size: size, Photo: &PhotoMeta{Width: width, Height: height}}
}

// NewDocument creates a document attachment.
func NewDocument(path string, size int64, fileName, mimeType string) Attachment {
	return Attachment{Kind: AttachmentDocument, Path: path, Size: size, Document: &DocumentMeta{FileName: fileName, MIMEType: mimeType}}
}

// NewVideo creates a video attachment.
func NewVideo(path string, size int64, duration int) Attachment {
	return Attachment{Kind: AttachmentVideo, Path: path, Size: size, Video: &MediaMeta{Duration: duration}}
}

// NewAudio creates an audio attachment.
func NewAudio(path string, size int64, fileName string, duration int) Attachment {
	return Attachment{Kind: AttachmentAudio, Path: path, Size: size, Audio: &AudioMeta{FileName: fileName, Duration: duration}}
}

// NewVoice creates a voice attachment.
func NewVoice(path string, size int64, duration int) Attachment {
	return Attachment{Kind: AttachmentVoice, Path: path, Size: size, Voice: &MediaMeta{Duration: duration}}
}

// Validate checks that the variant tag matches its metadata.
func (a Attachment) Validate() error {
	if !a.Kind.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAttachment, a.Kind)
	}
	if a.Path == "" {
		return fmt.Errorf("%w: %s has no local path", ErrInvalidAttachment, a.Kind)
	}
	if a.Size < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidAttachment)
	}
	var ok bool
	switch a.Kind {
	case AttachmentPhoto:
		ok = a.Photo != nil
	case AttachmentDocument:
		ok = a.Document != nil
	case AttachmentVideo:
		ok = a.Video != nil
	case AttachmentAudio:
		ok = a.Audio != nil
	case AttachmentVoice:
		ok = a.Voice != nil
	}
	if !ok {
		return fmt.Errorf("%w: %s metadata missing", ErrInvalidAttachment, a.Kind)
	}
	return nil
}

// FileName returns the base name of the local file.
func (a Attachment) FileName() string {
	return filepath.Base(a.Path)
}

// HumanSize formats a byte count as B, KB or MB.
func HumanSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/1024/1024)
	}
}
