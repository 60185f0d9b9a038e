package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type VideoStatus string

const (
	StatusNew         VideoStatus = "new"
	StatusQueued      VideoStatus = "queued"
	StatusDownloading VideoStatus = "downloading"
	StatusGrabbed     VideoStatus = "grabbed"
	StatusGrabError   VideoStatus = "grab_error"
	StatusIgnore      VideoStatus = "ignore"
)

var AllStatuses = []VideoStatus{
	StatusNew,
	StatusQueued,
	StatusDownloading,
	StatusGrabbed,
	StatusGrabError,
	StatusIgnore,
}

var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError reports a status change that is not an edge of the video
// lifecycle. It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	From VideoStatus
	To   VideoStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var transitions = map[VideoStatus][]VideoStatus{
	StatusNew:         {StatusQueued},
	StatusQueued:      {StatusDownloading},
	StatusDownloading: {StatusGrabbed, StatusGrabError},
	StatusGrabError:   {StatusQueued},
}

func ParseVideoStatus(s string) (VideoStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown video status %q", s)
}

func (s VideoStatus) String() string {
	return string(s)
}

// IsTerminal reports whether automated processing is finished with the video.
func (s VideoStatus) IsTerminal() bool {
	return s == StatusGrabbed || s == StatusIgnore
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// Writing the current status again is always allowed, and any status may be
// overridden to StatusIgnore.
func (s VideoStatus) CanTransition(next VideoStatus) bool {
	if s == next || next == StatusIgnore {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func Transition(from, to VideoStatus) error {
	if !from.CanTransition(to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// VideoRecord is a video as reported by a remote source, before it is stored.
type VideoRecord struct {
	ID             string
	URL            string
	Title          string
	TitleAlt       string
	Description    string
	DescriptionAlt string
	ThumbnailURL   string
	PublishedAt    time.Time
	Duration       int
}

func (r VideoRecord) String() string {
	return fmt.Sprintf("VideoRecord{id: %q, title: %q, url: %q, published_at: %s}", r.ID, r.Title, r.URL, r.PublishedAt.Format(time.RFC3339))
}

type Video struct {
	VideoRecord
	ID        uuid.UUID
	ChannelID uuid.UUID
	Status    VideoStatus
	DateAdded time.Time
}
