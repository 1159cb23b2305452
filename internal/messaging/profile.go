package messaging

import (
	"context"
	"fmt"

	"campus-messaging/internal/media"
	"campus-messaging/internal/models"
	"campus-messaging/internal/realtime"
	"campus-messaging/internal/repositories"
	"campus-messaging/internal/storage"
)

// ProfileMedia replaces the caller's avatar and cover images.
type ProfileMedia struct {
	repo    repositories.ProfileRepository
	objects storage.ObjectStore
	deps    Deps
}

func NewProfileMedia(repo repositories.ProfileRepository, objects storage.ObjectStore, deps Deps) *ProfileMedia {
	return &ProfileMedia{repo: repo, objects: objects, deps: deps.withDefaults()}
}

func (p *ProfileMedia) UploadAvatar(ctx context.Context, f media.File) (string, error) {
	return p.upload(ctx, media.PurposeAvatar, f)
}

func (p *ProfileMedia) UploadCover(ctx context.Context, f media.File) (string, error) {
	return p.upload(ctx, media.PurposeCover, f)
}

func (p *ProfileMedia) upload(ctx context.Context, purpose media.Purpose, f media.File) (string, error) {
	op := fmt.Sprintf("upload %s", purpose)

	userID, err := currentUser(ctx)
	if err != nil {
		return "", err
	}
	if err := media.Validate(purpose, &f); err != nil {
		return "", fileError(op, err)
	}

	body, err := f.Open()
	if err != nil {
		return "", remoteError(op, err)
	}
	defer body.Close()

	url, err := p.objects.Put(ctx, storage.Object{
		Bucket:      media.ProfileBucket,
		Path:        media.ProfileObjectPath(userID, purpose, f.Name),
		ContentType: f.ContentType,
		Body:        body,
		Overwrite:   true,
	})
	if err != nil {
		return "", remoteError(op, err)
	}

	if purpose == media.PurposeCover {
		err = p.repo.UpdateCover(ctx, userID, url)
	} else {
		err = p.repo.UpdateAvatar(ctx, userID, url)
	}
	if err != nil {
		return "", remoteError(op, err)
	}

	p.deps.Bus.Invalidate(realtime.ConversationsRoot, realtime.MessagesRoot)
	p.deps.publish(ctx, models.DomainEvent{
		Type:    models.EventProfileMedia,
		ActorID: userID,
		Detail:  string(purpose),
	})
	return url, nil
}
