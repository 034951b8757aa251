package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"teamdesk/api/internal/blob"
	"teamdesk/api/internal/realtime"
	"teamdesk/api/internal/search"
	"teamdesk/api/internal/store"
	"teamdesk/api/internal/util"
)

const (
	EventAnnouncementNew     = "announcement:new"
	EventAnnouncementUpdated = "announcement:updated"
	EventAnnouncementDeleted = "announcement:deleted"

	announcementListLimit = 200
)

var audiences = map[string]struct{}{"all": {}, "member": {}, "team_leader": {}}

// Upload is a file received from a client.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type AnnouncementInput struct {
	Title   *string
	Message *string
	SendTo  *string
	Image   *Upload
}

type AnnouncementResult struct {
	Announcement store.Announcement
	Effects      Effects
}

// AnnouncementView adds the image link to an announcement.
type AnnouncementView struct {
	store.Announcement
	ImageURL string `json:"image_url,omitempty"`
}

func ViewAnnouncement(a store.Announcement) AnnouncementView {
	view := AnnouncementView{Announcement: a}
	if a.ImageKey != "" {
		view.ImageURL = "/api/announcements/" + a.ID.Hex() + "/image"
	}
	return view
}

func audience(raw *string) (string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return "member", nil
	}
	value := strings.ToLower(strings.TrimSpace(*raw))
	if _, ok := audiences[value]; !ok {
		return "", invalid("sendTo must be one of all, member, team_leader")
	}
	return value, nil
}

func (s *Service) ListAnnouncements(ctx context.Context) ([]store.Announcement, error) {
	return s.store.ListAnnouncements(ctx, announcementListLimit)
}

func (s *Service) GetAnnouncement(ctx context.Context, id store.Ref) (store.Announcement, error) {
	a, err := s.store.GetAnnouncement(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Announcement{}, notFound("Announcement")
	}
	return a, err
}

func (s *Service) CreateAnnouncement(ctx context.Context, in AnnouncementInput, createdBy store.Ref) (AnnouncementResult, error) {
	message := strings.TrimSpace(deref(in.Message))
	if message == "" {
		return AnnouncementResult{}, invalid("Message is required")
	}
	sendTo, err := audience(in.SendTo)
	if err != nil {
		return AnnouncementResult{}, err
	}

	now := s.now()
	a := store.Announcement{
		ID:        store.NewRef(),
		Title:     strings.TrimSpace(deref(in.Title)),
		Message:   message,
		SendTo:    sendTo,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Image != nil {
		info, err := s.putImage(ctx, *in.Image)
		if err != nil {
			return AnnouncementResult{}, err
		}
		a.ImageKey, a.ImageType = info.Key, info.ContentType
	}
	if err := s.store.InsertAnnouncement(ctx, a); err != nil {
		s.dropBlob(ctx, a.ImageKey)
		return AnnouncementResult{}, fmt.Errorf("create announcement: %w", err)
	}

	result := AnnouncementResult{Announcement: a}
	s.emit(ctx, &result.Effects, EventAnnouncementNew, ViewAnnouncement(a), realtime.AnnouncementsRoom)
	s.indexAnnouncement(a)
	s.finish("create announcement", result.Effects)
	return result, nil
}

func (s *Service) UpdateAnnouncement(ctx context.Context, id store.Ref, in AnnouncementInput) (AnnouncementResult, error) {
	current, err := s.GetAnnouncement(ctx, id)
	if err != nil {
		return AnnouncementResult{}, err
	}

	var patch store.AnnouncementPatch
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		patch.Title = &title
	}
	if in.Message != nil {
		message := strings.TrimSpace(*in.Message)
		if message == "" {
			return AnnouncementResult{}, invalid("Message is required")
		}
		patch.Message = &message
	}
	if in.SendTo != nil {
		sendTo, err := audience(in.SendTo)
		if err != nil {
			return AnnouncementResult{}, err
		}
		patch.SendTo = &sendTo
	}
	if in.Image != nil {
		info, err := s.putImage(ctx, *in.Image)
		if err != nil {
			return AnnouncementResult{}, err
		}
		patch.ImageKey, patch.ImageType = &info.Key, &info.ContentType
	}
	if patch == (store.AnnouncementPatch{}) {
		return AnnouncementResult{Announcement: current}, nil
	}

	if err := s.store.UpdateAnnouncement(ctx, id, patch); err != nil {
		if patch.ImageKey != nil {
			s.dropBlob(ctx, *patch.ImageKey)
		}
		return AnnouncementResult{}, fmt.Errorf("update announcement: %w", err)
	}
	if patch.ImageKey != nil {
		s.dropBlob(ctx, current.ImageKey)
	}
	updated, err := s.GetAnnouncement(ctx, id)
	if err != nil {
		return AnnouncementResult{}, err
	}

	result := AnnouncementResult{Announcement: updated}
	s.emit(ctx, &result.Effects, EventAnnouncementUpdated, ViewAnnouncement(updated), realtime.AnnouncementsRoom)
	s.indexAnnouncement(updated)
	s.finish("update announcement", result.Effects)
	return result, nil
}

func (s *Service) DeleteAnnouncement(ctx context.Context, id store.Ref) (AnnouncementResult, error) {
	current, err := s.GetAnnouncement(ctx, id)
	if err != nil {
		return AnnouncementResult{}, err
	}
	if err := s.store.DeleteAnnouncement(ctx, id); err != nil {
		return AnnouncementResult{}, fmt.Errorf("delete announcement: %w", err)
	}
	s.dropBlob(ctx, current.ImageKey)

	result := AnnouncementResult{Announcement: current}
	s.emit(ctx, &result.Effects, EventAnnouncementDeleted, map[string]any{"_id": id.Hex()}, realtime.AnnouncementsRoom)
	if s.search != nil {
		s.search.DeleteAnnouncement(id.Hex())
	}
	s.finish("delete announcement", result.Effects)
	return result, nil
}

// AnnouncementImage opens the announcement's image. The caller closes it.
func (s *Service) AnnouncementImage(ctx context.Context, id store.Ref) (io.ReadCloser, blob.Info, error) {
	a, err := s.GetAnnouncement(ctx, id)
	if err != nil {
		return nil, blob.Info{}, err
	}
	if a.ImageKey == "" {
		return nil, blob.Info{}, notFound("Image")
	}
	if s.blobs == nil {
		return nil, blob.Info{}, unavailable("Blob storage")
	}
	body, info, err := s.blobs.Get(ctx, a.ImageKey)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, blob.Info{}, notFound("Image")
	}
	if err != nil {
		return nil, blob.Info{}, err
	}
	if info.ContentType == "" {
		info.ContentType = a.ImageType
	}
	return body, info, nil
}

func (s *Service) putImage(ctx context.Context, up Upload) (blob.Info, error) {
	if s.blobs == nil {
		return blob.Info{}, unavailable("Blob storage")
	}
	if !strings.HasPrefix(strings.ToLower(up.ContentType), "image/") {
		return blob.Info{}, invalid("Image must be an image file")
	}
	key := fmt.Sprintf("announcements/%s-%s", util.NewID(""), util.SafeName(up.Name))
	info, err := s.blobs.Put(ctx, key, up.Body, up.Size, up.ContentType)
	if err != nil {
		return blob.Info{}, fmt.Errorf("store image: %w", err)
	}
	return info, nil
}

// dropBlob deletes an object that is no longer referenced. Failures are
// logged and otherwise ignored.
func (s *Service) dropBlob(ctx context.Context, key string) {
	if key == "" || s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		s.log.Warn().Str("key", key).Err(err).Msg("blob delete failed")
	}
}

func (s *Service) indexAnnouncement(a store.Announcement) {
	if s.search == nil {
		return
	}
	s.search.IndexAnnouncement(search.AnnouncementRecord{
		ID:      a.ID.Hex(),
		Title:   a.Title,
		Message: a.Message,
		SendTo:  a.SendTo,
	})
}
